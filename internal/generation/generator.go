// Package generation calls a chat model to produce grounded answers.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// ErrGenerationFailure reports a failed or empty chat completion.
var ErrGenerationFailure = errors.New("generation failure")

// Generator sends single-turn prompts to a chat model.
type Generator struct {
	client *openai.Client
	model  string
}

// NewGenerator creates a generator with the given OpenAI client and model.
func NewGenerator(client *openai.Client, model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{
		client: client,
		model:  model,
	}
}

// Model returns the chat model identifier.
func (g *Generator) Model() string {
	return g.model
}

// Generate sends prompt as a user message and returns the model's reply verbatim.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(g.model),
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion failed: %v", ErrGenerationFailure, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrGenerationFailure)
	}

	return resp.Choices[0].Message.Content, nil
}
