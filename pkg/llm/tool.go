// Package llm abstracts streaming text generation behind a small Tool
// contract. Production uses the Gemini-backed client; simulations without
// credentials and all tests use the deterministic mock.
package llm

import "context"

// TokenSink receives streamed tokens as they are produced. Passed explicitly
// so no mutable closure is shared across parallel agent workers.
type TokenSink func(token string)

// Input is one generation request.
type Input struct {
	SystemPrompt string
	UserPrompt   string
	// EmitToken, when non-nil, is called for each streamed token before the
	// full text is returned.
	EmitToken TokenSink
}

// Tool generates one utterance from a prompt pair.
type Tool interface {
	Generate(ctx context.Context, in Input) (string, error)
	Close() error
}
