package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsDuplicateName(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(ToolDefinition{Name: "read_text_file", Category: CategoryFileSystem}))

	err := c.Register(ToolDefinition{Name: "read_text_file", Category: CategorySystem})
	require.ErrorIs(t, err, ErrDuplicateName)

	got, ok := c.Get("read_text_file")
	require.True(t, ok)
	assert.Equal(t, CategoryFileSystem, got.Category)
	assert.Equal(t, 1, c.Len())
}

func TestRegisterValidatesSchema(t *testing.T) {
	c := New()

	assert.Error(t, c.Register(ToolDefinition{Name: "  "}))
	assert.Error(t, c.Register(ToolDefinition{Name: "a", Permission: "owner"}))
	assert.Error(t, c.Register(ToolDefinition{Name: "b", Params: []ParamSpec{{Name: "x", Type: "float"}}}))
	assert.Error(t, c.Register(ToolDefinition{Name: "c", Params: []ParamSpec{{Name: "x", Type: TypeString, Pattern: "("}}}))
	assert.Error(t, c.Register(ToolDefinition{Name: "d", Params: []ParamSpec{
		{Name: "x", Type: TypeString},
		{Name: "x", Type: TypeString},
	}}))
	assert.Equal(t, 0, c.Len())
}

func TestRegisterCompilesAnchoredPattern(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(ToolDefinition{
		Name:   "open_app",
		Params: []ParamSpec{{Name: "app_name", Type: TypeString, Pattern: "[a-z]+"}},
	}))

	tool, ok := c.Get("open_app")
	require.True(t, ok)
	p, ok := tool.Param("app_name")
	require.True(t, ok)
	require.NotNil(t, p.Regexp())
	assert.True(t, p.Regexp().MatchString("notepad.exe"))
	assert.False(t, p.Regexp().MatchString("1notepad"))
}

func TestListViews(t *testing.T) {
	c := New()
	defs := []ToolDefinition{
		{Name: "create_directory", Category: CategoryFileSystem},
		{Name: "open_app", Category: CategoryApplication},
		{Name: "list_directory", Category: CategoryFileSystem},
		{Name: "get_device_info", Category: CategoryDevice},
	}
	for _, d := range defs {
		require.NoError(t, c.Register(d))
	}

	all := c.ListAll()
	require.Len(t, all, 4)
	assert.Equal(t, "create_directory", all[0].Name)
	assert.Equal(t, "get_device_info", all[3].Name)

	fs := c.ListByCategory(CategoryFileSystem)
	require.Len(t, fs, 2)
	assert.Equal(t, "list_directory", fs[1].Name)
	assert.Empty(t, c.ListByCategory(CategoryHomelab))

	assert.Equal(t, []string{CategoryFileSystem, CategoryApplication, CategoryDevice}, c.Categories())

	_, ok := c.Get("missing")
	assert.False(t, ok)
}
