package feedback

import "context"

// Provider generates feedback for request content.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: implementations must honor cancellation/deadlines. An attempt
// that outlives its deadline is abandoned and may overlap the next retry.
// - Errors: failures that are not worth retrying should be marked with
// PermanentError or resilience.Permanent. Everything else is retried.
// - Ownership: content must not be modified. The returned slice is owned by
// the caller.
type Provider interface {
	// Generate returns feedback for content. The tag selects the kind of
	// feedback, for example the prompt variant.
	Generate(ctx context.Context, tag string, content []byte) ([]byte, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, tag string, content []byte) ([]byte, error)

// Generate calls f.
func (f ProviderFunc) Generate(ctx context.Context, tag string, content []byte) ([]byte, error) {
	return f(ctx, tag, content)
}
