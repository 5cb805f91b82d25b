package agentclient

// ModelConfig describes one selectable LLM model and its pricing for cost
// estimation.
type ModelConfig struct {
	ID                 string
	Name               string
	Provider           string
	ContextWindow      int
	PricePerInputToken float64
	PricePerOutputToken float64
	// TiktokenEncoding names the encoding used to estimate token counts for
	// this model when the backend does not report exact usage.
	TiktokenEncoding string
}

// DefaultModels returns the built-in model catalogue. A deployment can
// extend or replace this via Registry.Register.
func DefaultModels() []*ModelConfig {
	return []*ModelConfig{
		{
			ID:                  "claude-3-5-sonnet",
			Name:                "Claude 3.5 Sonnet",
			Provider:            "anthropic",
			ContextWindow:       200000,
			PricePerInputToken:  0.000003,
			PricePerOutputToken: 0.000015,
			TiktokenEncoding:    "cl100k_base",
		},
		{
			ID:                  "gpt-4o",
			Name:                "GPT-4o",
			Provider:            "openai",
			ContextWindow:       128000,
			PricePerInputToken:  0.0000025,
			PricePerOutputToken: 0.00001,
			TiktokenEncoding:    "o200k_base",
		},
		{
			ID:                  "default",
			Name:                "Default Stub Model",
			Provider:            "stub",
			ContextWindow:       32000,
			PricePerInputToken:  0,
			PricePerOutputToken: 0,
			TiktokenEncoding:    "cl100k_base",
		},
	}
}

// Registry resolves a model id to its ModelConfig.
type Registry struct {
	models map[string]*ModelConfig
}

// NewRegistry builds a Registry pre-populated with DefaultModels.
func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]*ModelConfig)}
	for _, m := range DefaultModels() {
		r.models[m.ID] = m
	}
	return r
}

// Register adds or replaces a model entry.
func (r *Registry) Register(m *ModelConfig) {
	r.models[m.ID] = m
}

// Get returns the model config for id, falling back to "default" if id is
// empty or unknown.
func (r *Registry) Get(id string) *ModelConfig {
	if id != "" {
		if m, ok := r.models[id]; ok {
			return m
		}
	}
	if m, ok := r.models["default"]; ok {
		return m
	}
	return &ModelConfig{ID: "default", TiktokenEncoding: "cl100k_base"}
}
