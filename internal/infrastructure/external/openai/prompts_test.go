package openai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDefaultPrompt(t *testing.T) {
	p := DefaultPrompts()

	out, err := renderTemplate(p.ReceiptExtraction.UserTemplate, promptData{Categories: []string{"Travel", "Meals"}})
	require.NoError(t, err)
	assert.Contains(t, out, "Pick category from: Travel, Meals.")

	out, err = renderTemplate(p.ReceiptExtraction.UserTemplate, promptData{})
	require.NoError(t, err)
	assert.NotContains(t, out, "Pick category")
}

func TestLoadPrompts(t *testing.T) {
	dir := t.TempDir()

	t.Run("overrides keep defaults for missing fields", func(t *testing.T) {
		path := filepath.Join(dir, "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("receipt_extraction:\n  temperature: 0.3\n  system: \"Be brief.\"\n"), 0o600))

		p, err := LoadPrompts(path)
		require.NoError(t, err)
		assert.InDelta(t, 0.3, p.ReceiptExtraction.Temperature, 1e-6)
		assert.Equal(t, "Be brief.", p.ReceiptExtraction.System)
		assert.Equal(t, 1024, p.ReceiptExtraction.MaxTokens)
		assert.Equal(t, defaultUserTemplate, p.ReceiptExtraction.UserTemplate)
	})

	t.Run("broken template", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("receipt_extraction:\n  user_template: \"{{.Nope\"\n"), 0o600))

		_, err := LoadPrompts(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPrompts(filepath.Join(dir, "absent.yaml"))
		assert.Error(t, err)
	})
}
