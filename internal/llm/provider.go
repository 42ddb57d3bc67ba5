package llm

import "context"

// Provider defines the interface for LLM providers. The pipeline treats a
// provider as a synchronous request/response completion service.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}
