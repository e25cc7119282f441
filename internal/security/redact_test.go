package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactArguments(t *testing.T) {
	long := strings.Repeat("a", MaxLoggedValue+10)
	in := map[string]any{
		"path":     "/home/alice/notes.txt",
		"content":  long,
		"Password": "hunter2",
		"headers":  map[string]any{"Authorization": "Bearer x", "accept": "json"},
		"args":     []any{"--token", 3},
	}

	out := RedactArguments(in)
	assert.Equal(t, "/home/alice/notes.txt", out["path"])
	assert.Equal(t, "***", out["Password"])
	assert.Equal(t, strings.Repeat("a", MaxLoggedValue)+"...(10 more bytes)", out["content"])
	assert.Equal(t, map[string]any{"Authorization": "***", "accept": "json"}, out["headers"])
	assert.Equal(t, []any{"--token", 3}, out["args"])

	assert.Equal(t, "hunter2", in["Password"])
	assert.Nil(t, RedactArguments(nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...(1 more bytes)", Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
