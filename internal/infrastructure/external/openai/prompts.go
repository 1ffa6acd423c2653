package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptConfig holds the receipt extraction prompt and model parameters
type PromptConfig struct {
	ReceiptExtraction struct {
		Temperature  float32 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		System       string  `yaml:"system"`
		UserTemplate string  `yaml:"user_template"`
	} `yaml:"receipt_extraction"`
}

// promptData is the template input for UserTemplate
type promptData struct {
	Categories []string
}

const defaultSystemPrompt = "You read receipts and invoices and extract expense fields with exact accuracy. Always respond with valid JSON."

const defaultUserTemplate = `Examine this receipt and extract the expense it documents.

Return ONLY a JSON object with this exact structure:
{
  "amount": number,
  "currency": "ISO 4217 code, e.g. USD",
  "date": "YYYY-MM-DD",
  "description": "merchant name and a short description",
  "category": "string"
}
{{- if .Categories}}

Pick category from: {{range $i, $c := .Categories}}{{if $i}}, {{end}}{{$c}}{{end}}.
{{- end}}

Rules:
- amount is the final total actually paid, without currency symbols
- if a field is not visible or unclear, use null
- do not guess values`

// DefaultPrompts returns the built-in prompt configuration
func DefaultPrompts() *PromptConfig {
	p := &PromptConfig{}
	p.ReceiptExtraction.Temperature = 0.1
	p.ReceiptExtraction.MaxTokens = 1024
	p.ReceiptExtraction.System = defaultSystemPrompt
	p.ReceiptExtraction.UserTemplate = defaultUserTemplate
	return p
}

// LoadPrompts loads prompt configuration from a YAML file. Missing fields keep their defaults.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	prompts := DefaultPrompts()
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	if _, err := renderTemplate(prompts.ReceiptExtraction.UserTemplate, promptData{}); err != nil {
		return nil, fmt.Errorf("invalid receipt_extraction.user_template: %w", err)
	}
	return prompts, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
