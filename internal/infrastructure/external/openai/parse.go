package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/pkg/utils"
	"github.com/shopspring/decimal"
)

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006", "02.01.2006", "Jan 2, 2006", "2 Jan 2006"}

// extractedReceipt mirrors the JSON object requested by the prompt
type extractedReceipt struct {
	Amount      json.RawMessage `json:"amount"`
	Currency    string          `json:"currency"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
}

// parseReceiptFields turns a model reply into ReceiptFields. Values that do not
// parse are dropped rather than guessed.
func parseReceiptFields(content string) (*port.ReceiptFields, error) {
	var raw extractedReceipt
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			return nil, errors.New("no JSON object found in response")
		}
		if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	fields := &port.ReceiptFields{
		Amount:      parseAmount(raw.Amount),
		Description: utils.SanitizeString(raw.Description),
		Category:    utils.SanitizeString(raw.Category),
	}

	if code := strings.ToUpper(strings.TrimSpace(raw.Currency)); utils.ValidateCurrencyCode(code) == nil {
		fields.Currency = code
	}

	if d := strings.TrimSpace(raw.Date); d != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, d); err == nil {
				fields.Date = &t
				break
			}
		}
	}

	return fields, nil
}

// parseAmount accepts a JSON number or a numeric string, optionally with thousands separators
func parseAmount(raw json.RawMessage) decimal.NullDecimal {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.NullDecimal{}
	}
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// extractJSON returns the first balanced JSON object in content, which may be
// wrapped in prose or a markdown code block
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escapeNext := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escapeNext = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
