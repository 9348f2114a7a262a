package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := openai.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL+"/v1/"),
		option.WithMaxRetries(0),
	)
	return NewGenerator(&client, "test-chat")
}

func writeCompletion(w http.ResponseWriter, choices []string) {
	out := make([]map[string]any, len(choices))
	for i, c := range choices {
		out[i] = map[string]any{
			"index":         i,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": c},
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-chat",
		"choices": out,
	})
}

func TestGenerate_ReturnsContentVerbatim(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-chat", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "What is the deadline?", req.Messages[0].Content)

		writeCompletion(w, []string{"  March 1.\n"})
	})

	got, err := g.Generate(context.Background(), "What is the deadline?")
	require.NoError(t, err)
	assert.Equal(t, "  March 1.\n", got)
}

func TestGenerate_NoChoices(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, nil)
	})

	_, err := g.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrGenerationFailure)
}

func TestGenerate_ServerError(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	_, err := g.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrGenerationFailure)
}

func TestNewGenerator_DefaultModel(t *testing.T) {
	assert.Equal(t, DefaultModel, NewGenerator(nil, "").Model())
}
