package tool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalog(t *testing.T) {
	data := []byte(`
tools:
  - id: scene
    name: 场景
    agent_id: scene-3d-generator
    enabled: true
  - id: old
    name: 旧工具
    agent_id: missing-agent
    enabled: false
`)
	tools, err := ParseCatalog(data)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "scene-3d-generator", tools[0].AgentID)
	assert.True(t, tools[0].Enabled)
	assert.False(t, tools[1].Enabled)
}

func TestParseCatalogRejectsDuplicates(t *testing.T) {
	_, err := ParseCatalog([]byte("tools:\n  - id: a\n  - id: a\n"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("tools:\n  - name: nameless\n"))
	assert.Error(t, err)
}

func TestLoadFileFallsBackToSeed(t *testing.T) {
	tools, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Seed(), tools)

	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools:\n  - id: x\n    agent_id: y\n"), 0o600))
	tools, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", tools[0].ID)
}

func TestMemoryStoreFindByID(t *testing.T) {
	store := NewMemoryStore(Seed())
	got, ok := store.FindByID("research")
	require.True(t, ok)
	assert.Equal(t, "school-research-assistant", got.AgentID)

	_, ok = store.FindByID("nope")
	assert.False(t, ok)
}
