package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToEnglish(t *testing.T) {
	b, err := Load("de")
	require.NoError(t, err)
	assert.Equal(t, "en", b.Lang())

	text, err := b.Render(KeyApology, map[string]any{"MaxIterations": 5})
	require.NoError(t, err)
	assert.Contains(t, text, "within 5 steps")
}

func TestRenderToolResult(t *testing.T) {
	b, err := Load("en")
	require.NoError(t, err)

	text, err := b.Render(KeyToolSuccess, map[string]any{"Tool": "get_device_info"})
	require.NoError(t, err)
	assert.Equal(t, "Tool 'get_device_info' executed successfully.", text)

	text, err = b.Render(KeyToolSuccess, map[string]any{"Tool": "x", "Result": "{}"})
	require.NoError(t, err)
	assert.Equal(t, "Tool 'x' executed successfully.\nResult: {}", text)

	text, err = b.Render(KeyToolFailure, map[string]any{"Tool": "x", "Error": "timeout"})
	require.NoError(t, err)
	assert.Equal(t, "Tool 'x' failed.\nError: timeout", text)
}

func TestRussianBundle(t *testing.T) {
	b, err := Load(" RU ")
	require.NoError(t, err)
	assert.Equal(t, "ru", b.Lang())
	_, err = b.Render(KeySystemPrompt, map[string]any{"Tools": []map[string]any{}})
	require.NoError(t, err)
}

func TestRenderMissingKey(t *testing.T) {
	b, err := Load("en")
	require.NoError(t, err)
	_, err = b.Render("nope", nil)
	require.Error(t, err)

	assert.Equal(t, "fallback", RenderOr(b, "nope", nil, "fallback"))
	assert.Equal(t, "fallback", RenderOr(nil, KeyApology, nil, "fallback"))

	var nilBundle *Bundle
	_, err = nilBundle.Render(KeyApology, nil)
	require.Error(t, err)
}
