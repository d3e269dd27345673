package vision

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/labelscan/internal/recognizer"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) && assert.Len(t, req.Messages, 2) {
			parts := req.Messages[1].MultiContent
			if assert.Len(t, parts, 2) && assert.NotNil(t, parts[1].ImageURL) {
				assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
			}
		}

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "chatcmpl-1",
			Object: "chat.completion",
			Model:  "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRecognize_ParsesJSONReply(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"text":"BATCH CODE: LOT-1\nEXP 15/03/2026","confidence":87}`)

	r, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	rec, err := r.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 20, 10)))
	require.NoError(t, err)
	assert.Equal(t, "BATCH CODE: LOT-1\nEXP 15/03/2026", rec.Text)
	assert.InDelta(t, 87.0, rec.Confidence, 1e-9)
	assert.Equal(t, "vision", r.Name())
}

func TestRecognize_ServerErrorIsUnavailable(t *testing.T) {
	srv := chatServer(t, http.StatusServiceUnavailable, "")

	r, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = r.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 20, 10)))
	assert.ErrorIs(t, err, recognizer.ErrUnavailable)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    recognizer.Recognition
	}{
		{"json", `{"text":" PROD-1 ","confidence":40}`, recognizer.Recognition{Text: "PROD-1", Confidence: 40}},
		{"fenced", "```json\n{\"text\":\"A\",\"confidence\":120}\n```", recognizer.Recognition{Text: "A", Confidence: 100}},
		{"missing confidence", `{"text":"A"}`, recognizer.Recognition{Text: "A", Confidence: DefaultConfidence}},
		{"plain text", "Organic Apples", recognizer.Recognition{Text: "Organic Apples", Confidence: DefaultConfidence}},
		{"empty text", `{"text":"","confidence":0}`, recognizer.Recognition{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseReply(tt.content))
		})
	}
}
