package openai

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config holds receipt scanner settings
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Categories []string
	Prompts    *PromptConfig
}

// chatClient is the slice of the OpenAI client the scanner needs
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ReceiptScanner implements port.ReceiptScanner using the OpenAI vision API
type ReceiptScanner struct {
	client     chatClient
	model      string
	categories []string
	prompts    *PromptConfig
	logger     *zap.Logger
}

// NewReceiptScanner creates a new OpenAI receipt scanner
func NewReceiptScanner(cfg Config, logger *zap.Logger) *ReceiptScanner {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.Prompts == nil {
		cfg.Prompts = DefaultPrompts()
	}
	return &ReceiptScanner{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		categories: cfg.Categories,
		prompts:    cfg.Prompts,
		logger:     logger,
	}
}

// Scan extracts expense fields from a receipt image or PDF
func (s *ReceiptScanner) Scan(ctx context.Context, content []byte, contentType string) (*port.ReceiptFields, error) {
	imageData, mimeType, err := prepareImage(content, contentType)
	if err != nil {
		return nil, err
	}

	prompt, err := renderTemplate(s.prompts.ReceiptExtraction.UserTemplate, promptData{Categories: s.categories})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Scanning receipt with Vision API",
		zap.String("mime_type", mimeType), zap.Int("bytes", len(imageData)))

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.prompts.ReceiptExtraction.MaxTokens,
		Temperature: s.prompts.ReceiptExtraction.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: s.prompts.ReceiptExtraction.System,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageData)),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		s.logger.Error("Vision API call failed", zap.Error(err))
		return nil, fmt.Errorf("vision API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from Vision API")
	}

	reply := resp.Choices[0].Message.Content
	fields, err := parseReceiptFields(reply)
	if err != nil {
		s.logger.Error("Failed to parse Vision API response", zap.Error(err), zap.String("content", reply))
		return nil, err
	}

	s.logger.Info("Receipt fields extracted",
		zap.Bool("amount_found", fields.Amount.Valid),
		zap.String("currency", fields.Currency),
		zap.Bool("date_found", fields.Date != nil))
	return fields, nil
}

var _ port.ReceiptScanner = (*ReceiptScanner)(nil)
