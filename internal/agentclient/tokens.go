package agentclient

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenEstimator counts tokens client-side for backends that do not report
// exact usage, caching one encoding per name across calls.
type tokenEstimator struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

var estimator = &tokenEstimator{encodings: make(map[string]*tiktoken.Tiktoken)}

func (e *tokenEstimator) encodingFor(name string) *tiktoken.Tiktoken {
	if name == "" {
		name = "cl100k_base"
	}

	e.mu.RLock()
	enc, ok := e.encodings[name]
	e.mu.RUnlock()
	if ok {
		return enc
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}

	e.mu.Lock()
	e.encodings[name] = enc
	e.mu.Unlock()
	return enc
}

// Count estimates the token count of text under the given encoding name.
// Falls back to a 4-chars-per-token heuristic if no encoding could be
// loaded.
func (e *tokenEstimator) Count(encodingName, text string) int {
	if text == "" {
		return 0
	}
	enc := e.encodingFor(encodingName)
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
