// Package broker establishes and tears down per-block side-effect
// environments: the active LLM credential at a process-local path, and an
// ephemeral workspace directory when a block declares a source repository.
package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kandev/conductor/internal/common/logger"
	v1 "github.com/kandev/conductor/pkg/api/v1"
	"go.uber.org/zap"
)

// ProfileStore resolves the currently selected CredentialProfile. Out-of-
// band storage (a config file, a secrets manager, …) is not this package's
// concern; ProfileStore is the seam.
type ProfileStore interface {
	Selected(ctx context.Context) (*v1.CredentialProfile, error)
}

// EnvProfileStore reads the selected profile from environment variables,
// mirroring the teacher's environment-backed credential provider: a fixed
// set of known vendor key names, optionally under a prefix.
type EnvProfileStore struct {
	Prefix string
}

var knownAPIKeyPatterns = []string{
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"AZURE_OPENAI_API_KEY",
	"COHERE_API_KEY",
	"MISTRAL_API_KEY",
	"TOGETHER_API_KEY",
}

// Selected returns the first known vendor key found in the environment, or
// nil if none is configured (the caller logs a warning and proceeds; calls
// then fail with AgentUnavailable rather than hanging).
func (s *EnvProfileStore) Selected(ctx context.Context) (*v1.CredentialProfile, error) {
	for _, key := range knownAPIKeyPatterns {
		if v := lookupEnv(s.Prefix, key); v != "" {
			return &v1.CredentialProfile{
				ID:       key,
				Provider: key,
				Data:     map[string]string{key: v},
			}, nil
		}
	}
	return nil, nil
}

func lookupEnv(prefix, key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if prefix != "" {
		return os.Getenv(prefix + key)
	}
	return ""
}

// CredentialBroker materializes the selected profile at a conventional,
// process-local path before every agent call. Writes are serialized and
// skipped entirely when the content is unchanged, per the idempotence
// invariant (§8 invariant 9: one write after the first for the same
// selected profile).
type CredentialBroker struct {
	store Store
	path  string
	log   *logger.Logger

	mu        sync.Mutex
	lastHash  string
}

// Store is the profile lookup CredentialBroker depends on: a type alias of
// ProfileStore, so any stub injected here implements Selected.
type Store = ProfileStore

// NewCredentialBroker builds a broker that writes to path.
func NewCredentialBroker(store Store, path string, log *logger.Logger) *CredentialBroker {
	if log == nil {
		log = logger.Default()
	}
	return &CredentialBroker{store: store, path: path, log: log.WithFields(zap.String("component", "broker.credentials"))}
}

// Restore is the idempotent credential-restore hook: it reads the currently
// selected profile and writes it to the conventional location with
// restrictive permissions, skipping the write if the content hash matches
// the last write. Satisfies agentclient.CredentialRestoreFunc.
func (b *CredentialBroker) Restore(ctx context.Context) error {
	profile, err := b.store.Selected(ctx)
	if err != nil {
		return fmt.Errorf("resolving selected credential profile: %w", err)
	}
	if profile == nil {
		b.log.Warn("no credential profile selected; agent calls will fail with AgentUnavailable")
		return nil
	}

	content := serializeProfile(profile)
	hash := contentHash(content)

	b.mu.Lock()
	defer b.mu.Unlock()

	if hash == b.lastHash {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}
	if err := os.WriteFile(b.path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}

	b.lastHash = hash
	return nil
}

func serializeProfile(p *v1.CredentialProfile) string {
	keys := make([]string, 0, len(p.Data))
	for k := range p.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out string
	for _, k := range keys {
		out += k + "=" + p.Data[k] + "\n"
	}
	return out
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
