package ai

import (
	"context"
	"sync"

	"github.com/planforge/planforge/internal/models"
)

// FinishReason describes why the provider stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// Message is one turn in a generation conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// GenerateRequest is the provider-agnostic generation input. The
// orchestrator builds it from the assembled context and the resolved
// route; adapters translate it into their vendor wire format.
type GenerateRequest struct {
	ModelKey  string
	Intent    string
	Messages  []Message
	MaxTokens int
	// JSONResponse asks the model to emit a single JSON object.
	JSONResponse bool
}

// TokenUsage reports provider-side token accounting when available.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// GenerateResponse is the provider-agnostic generation output.
type GenerateResponse struct {
	Content      string
	FinishReason FinishReason
	Usage        TokenUsage
	LatencyMs    int64
}

// Adapter is one configured AI provider.
type Adapter interface {
	// Name returns the provider key used in routes ("openai", ...).
	Name() string
	// Generate performs one completion call.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	// SupportsModel reports whether the adapter can serve the model key.
	SupportsModel(modelKey string) bool
}

// Streamer is an optional adapter capability for incremental output.
type Streamer interface {
	// Stream generates and delivers content chunks to the callback. The
	// final response carries the full concatenated content.
	Stream(ctx context.Context, req GenerateRequest, onChunk func(string)) (*GenerateResponse, error)
}

// AdapterFactory builds an adapter from provider configuration.
type AdapterFactory func(config map[string]string) (Adapter, error)

// Registry resolves provider names to live adapters. Construction is
// lazy: the first Get for a provider runs its factory, later calls
// reuse the cached adapter. Safe for concurrent use.
type Registry struct {
	factories map[string]AdapterFactory
	adapters  sync.Map // provider name -> Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]AdapterFactory)}
}

// Register installs a factory for a provider name. Call during startup,
// before any Get.
func (r *Registry) Register(name string, factory AdapterFactory) {
	r.factories[name] = factory
}

// Get returns the adapter for a provider, building it on first use.
func (r *Registry) Get(name string, config map[string]string) (Adapter, error) {
	if cached, ok := r.adapters.Load(name); ok {
		return cached.(Adapter), nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, &ProviderNotConfiguredError{Provider: name}
	}
	adapter, err := factory(config)
	if err != nil {
		return nil, err
	}
	actual, _ := r.adapters.LoadOrStore(name, adapter)
	return actual.(Adapter), nil
}

// ForRoute returns the adapter for a resolved route, verifying it can
// serve the route's model.
func (r *Registry) ForRoute(route *models.ResolvedRoute, config map[string]string) (Adapter, error) {
	adapter, err := r.Get(route.Provider, config)
	if err != nil {
		return nil, err
	}
	if !adapter.SupportsModel(route.ModelKey) {
		return nil, &ModelNotSupportedError{Provider: route.Provider, ModelKey: route.ModelKey}
	}
	return adapter, nil
}
