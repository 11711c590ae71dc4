// Package ai implements the summarization collaborator backed by the Gemini
// API. Sinks depend on the Completer interface so tests can substitute a fake.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is used when a hook config leaves the model unset.
const DefaultModel = "gemini-1.5-flash"

// ErrEmptyCompletion is returned when the model produced no text candidates.
var ErrEmptyCompletion = errors.New("model returned no text")

// Request is one completion call.
type Request struct {
	System      string
	Content     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Completer produces a text completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type completer struct {
	apiKey string
}

func NewCompleter(apiKey string) Completer {
	return &completer{apiKey: apiKey}
}

func (c *completer) Complete(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("no API key configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create model client: %w", err)
	}
	defer client.Close()

	modelName := req.Model
	if modelName == "" {
		modelName = DefaultModel
	}

	model := client.GenerativeModel(modelName)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	slog.Debug("Requesting completion", "model", modelName, "content_tokens", EstimateTokens(req.Content))

	resp, err := model.GenerateContent(ctx, genai.Text(req.Content))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	var out strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out.WriteString(string(text))
			}
		}
	}
	if out.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(out.String()), nil
}
