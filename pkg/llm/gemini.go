package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// defaultGenerateTimeout bounds a single LLM call. Per-task timeouts live
// here rather than in the orchestrator.
const defaultGenerateTimeout = 60 * time.Second

// GeminiConfig configures the Gemini-backed tool.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Gemini is the production Tool backed by the Gemini API with streaming.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini-backed tool.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGenerateTimeout
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{client: client, model: model, timeout: timeout}, nil
}

// Generate streams one utterance and returns the full text.
func (g *Gemini) Generate(ctx context.Context, in Input) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{}
	if in.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(in.SystemPrompt, genai.RoleUser)
	}

	var sb strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(in.UserPrompt), config) {
		if err != nil {
			return "", fmt.Errorf("gemini: stream: %w", err)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if in.EmitToken != nil {
			in.EmitToken(chunk)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// Close releases the client. The genai client holds no long-lived
// connection that needs explicit teardown.
func (g *Gemini) Close() error {
	return nil
}
