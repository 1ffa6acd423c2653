package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// mockChatClient implements chatClient for testing
type mockChatClient struct {
	createFunc func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (m *mockChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return m.createFunc(ctx, req)
}

func chatReply(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
	}}}
}

func TestReceiptScanner_Scan(t *testing.T) {
	var captured openai.ChatCompletionRequest
	s := NewReceiptScanner(Config{Model: "gpt-4o", Categories: []string{"Travel"}}, zap.NewNop())
	s.client = &mockChatClient{createFunc: func(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		captured = req
		return chatReply(`{"amount": 19.99, "currency": "EUR", "date": "2024-05-04", "description": "Taxi", "category": "Travel"}`), nil
	}}

	fields, err := s.Scan(context.Background(), tinyPNG(t), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "EUR", fields.Currency)
	assert.Equal(t, "Taxi", fields.Description)

	require.Len(t, captured.Messages, 2)
	parts := captured.Messages[1].MultiContent
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].Text, "Travel")
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
	assert.Equal(t, openai.ImageURLDetailHigh, parts[1].ImageURL.Detail)
}

func TestReceiptScanner_Errors(t *testing.T) {
	s := NewReceiptScanner(Config{}, zap.NewNop())

	t.Run("unsupported content", func(t *testing.T) {
		_, err := s.Scan(context.Background(), []byte("hello"), "text/plain")
		assert.ErrorIs(t, err, ErrUnsupportedContent)
	})

	t.Run("api failure", func(t *testing.T) {
		s.client = &mockChatClient{createFunc: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, errors.New("rate limited")
		}}
		_, err := s.Scan(context.Background(), tinyPNG(t), "image/png")
		assert.ErrorContains(t, err, "rate limited")
	})

	t.Run("no choices", func(t *testing.T) {
		s.client = &mockChatClient{createFunc: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, nil
		}}
		_, err := s.Scan(context.Background(), tinyPNG(t), "image/png")
		assert.Error(t, err)
	})
}

func TestReceiptScanner_OverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatReply(`{"amount": "7.50", "currency": "GBP"}`))
	}))
	defer srv.Close()

	s := NewReceiptScanner(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"}, zap.NewNop())
	fields, err := s.Scan(context.Background(), tinyPNG(t), "image/png; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, "GBP", fields.Currency)
	assert.True(t, fields.Amount.Valid)
}

func TestPrepareImage(t *testing.T) {
	pngData := tinyPNG(t)

	out, mime, err := prepareImage(pngData, "IMAGE/PNG")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, pngData, out)

	_, _, err = prepareImage([]byte("not a gif"), "image/gif")
	assert.ErrorIs(t, err, ErrUnsupportedContent)

	assert.True(t, isHEIC([]byte("\x00\x00\x00\x18ftypheic0000"), ""))
	assert.False(t, isHEIC(pngData, "image/png"))
}
