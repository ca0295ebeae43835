package extraction

import "context"

// Generator sends a prompt plus one document to a generative model and returns
// the raw text it produced. Implementations return *ServiceError when the
// service answers with a non-success status.
type Generator interface {
	Generate(ctx context.Context, prompt string, data []byte, mimeType string) (*Generation, error)
	ModelName() string
}

// Generation is a single model response.
type Generation struct {
	Text         string
	InputTokens  int
	OutputTokens int
	StatusCode   int
}
