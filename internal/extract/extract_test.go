package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFencedBlock(t *testing.T) {
	text := "Let me create that folder.\n```json\n{\"tool_call\": {\"tool_name\": \"create_directory\", \"parameters\": {\"path\": \"/home/alice/x\"}}}\n```\nOne moment."

	cleaned, call, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, "create_directory", call.ToolName)
	assert.Equal(t, map[string]any{"path": "/home/alice/x"}, call.Parameters)
	assert.Equal(t, "Let me create that folder.\n\nOne moment.", cleaned)
}

func TestBareFence(t *testing.T) {
	text := "```\n{\"tool_call\":{\"tool_name\":\"get_running_processes\",\"parameters\":{}}}\n```"
	cleaned, call, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, "get_running_processes", call.ToolName)
	assert.Empty(t, call.Parameters)
	assert.Equal(t, "", cleaned)
}

func TestOuterObjectWinsOverNested(t *testing.T) {
	text := `Sure: {"tool_call": {"tool_name": "write_text_file", "parameters": {"path": "/home/a.json", "content": "{\"x\": {\"y\": 1}}"}}} done`

	cleaned, call, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, "write_text_file", call.ToolName)
	assert.Equal(t, `{"x": {"y": 1}}`, call.Parameters["content"])
	assert.Equal(t, "Sure:  done", cleaned)
}

func TestNestedMarkerOnlyInOuter(t *testing.T) {
	text := `{"tool_call": {"tool_name": "open_app", "parameters": {"app_name": "notepad", "arguments": [], "meta": {"tool_name": "nope"}}}}`
	_, call, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, "open_app", call.ToolName)
}

func TestMalformedCandidatesSkipped(t *testing.T) {
	text := "First {not json} then {\"other\": 1} and finally " +
		`{"tool_call": {"tool_name": "list_directory", "parameters": {"path": "/home", "recursive": false}}}`

	cleaned, call, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, "list_directory", call.ToolName)
	assert.Equal(t, false, call.Parameters["recursive"])
	assert.Equal(t, "First {not json} then {\"other\": 1} and finally", cleaned)
}

func TestUnbalancedBraceSkipped(t *testing.T) {
	text := `oops { {"tool_call": {"tool_name": "close_app", "parameters": {"app_name": "calculator"}}}`
	_, call, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, "close_app", call.ToolName)
}

func TestRejectsIncompleteCalls(t *testing.T) {
	for _, text := range []string{
		`{"tool_call": {"tool_name": "", "parameters": {}}}`,
		`{"tool_call": {"tool_name": "x"}}`,
		`{"tool_call": {"tool_name": "x", "parameters": []}}`,
		`{"tool_call": {"tool_name": 5, "parameters": {}}}`,
		`{"tool_call": "x"}`,
		`{"tool_name": "x", "parameters": {}}`,
		"plain answer with no json",
	} {
		cleaned, call, ok := Extract(text)
		assert.False(t, ok, text)
		assert.Nil(t, call, text)
		assert.Equal(t, text, cleaned)
	}
}

func TestNumbersKeepPrecision(t *testing.T) {
	_, call, ok := Extract(`{"tool_call": {"tool_name": "probe", "parameters": {"count": 3}}}`)
	require.True(t, ok)
	assert.Equal(t, json.Number("3"), call.Parameters["count"])
}

func TestFenceWithoutCallFallsBackToScan(t *testing.T) {
	text := "```json\n{\"example\": true}\n```\n" +
		`{"tool_call": {"tool_name": "read_text_file", "parameters": {"path": "/home/a"}}}`
	cleaned, call, ok := Extract(text)
	require.True(t, ok)
	assert.Equal(t, "read_text_file", call.ToolName)
	assert.Equal(t, "```json\n{\"example\": true}\n```", cleaned)
}
