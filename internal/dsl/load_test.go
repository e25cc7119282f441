package dsl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/orion-orchestrator/configs"
	"github.com/codex-k8s/orion-orchestrator/internal/catalog"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	raw, err := configs.Load(configs.DefaultTools)
	require.NoError(t, err)

	cfg, err := Load(raw)
	require.NoError(t, err)
	assert.Equal(t, "orion-orchestrator", cfg.Server.Name)

	cat := catalog.New()
	require.NoError(t, cfg.Register(cat))
	assert.Equal(t, 13, cat.Len())

	tool, ok := cat.Get("copy_file")
	require.True(t, ok)
	assert.Equal(t, catalog.PermissionPath, tool.Permission)
	require.Len(t, tool.Params, 3)
	assert.Equal(t, catalog.TypePath, tool.Params[1].Type)
	assert.Equal(t, false, tool.Params[2].Default)

	info, ok := cat.Get("get_device_info")
	require.True(t, ok)
	assert.Equal(t, catalog.PermissionNone, info.Permission)

	open, ok := cat.Get("open_app")
	require.True(t, ok)
	assert.Equal(t, []any{}, open.Params[1].Default)

	del, ok := cat.Get("delete_file")
	require.True(t, ok)
	assert.True(t, del.Dangerous)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load([]byte(`
tools:
  - name: x
    category: device
    executor: shell
`))
	require.Error(t, err)
}

func TestLoadNormalizesDefaults(t *testing.T) {
	cfg, err := Load([]byte(`
tools:
  - name: resize
    category: SYSTEM
    permission: none
    params:
      - name: width
        type: Integer
        default: 640
        min: 1
        max: 4096
`))
	require.NoError(t, err)
	tool := cfg.Tools[0]
	assert.Equal(t, "system", tool.Category)
	assert.Equal(t, "", tool.Permission)
	assert.Equal(t, "integer", tool.Params[0].Type)
	assert.Equal(t, int64(640), tool.Params[0].Default)

	defs := cfg.Definitions()
	require.NotNil(t, defs[0].Params[0].Range)
	assert.Equal(t, 4096.0, *defs[0].Params[0].Range.Max)
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]string{
		"empty": `tools: []`,
		"duplicate": `
tools:
  - {name: a, category: device}
  - {name: a, category: device}`,
		"bad type": `
tools:
  - name: a
    category: device
    params: [{name: x, type: float}]`,
		"bad regex": `
tools:
  - name: a
    category: device
    params: [{name: x, type: string, regex: "("}]`,
		"path without param": `
tools:
  - {name: a, category: file_system, permission: path}`,
		"app without app_name": `
tools:
  - name: a
    category: application
    permission: app
    params: [{name: app, type: string}]`,
		"bad permission": `
tools:
  - {name: a, category: device, permission: root}`,
		"min above max": `
tools:
  - name: a
    category: device
    params: [{name: n, type: integer, min: 5, max: 1}]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFileExpandsEnv(t *testing.T) {
	t.Setenv("ORION_TEST_TOOL_PREFIX", "lab")
	path := filepath.Join(t.TempDir(), "tools.yaml")
	body := `tools:
  - name: {{ env "ORION_TEST_TOOL_PREFIX" }}_ping
    description: Ping a homelab host
    category: homelab
    params:
      - name: host
        type: string
        required: true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, "lab_ping", cfg.Tools[0].Name)
}
