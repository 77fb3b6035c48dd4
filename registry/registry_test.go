package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r := Default()

	t.Run("temporal flags", func(t *testing.T) {
		assert.True(t, r.IsTemporal("milestone"))
		assert.True(t, r.IsTemporal("phase"))
		assert.False(t, r.IsTemporal("door"))
		assert.False(t, r.IsTemporal("unknown"))
	})

	t.Run("workflow flags", func(t *testing.T) {
		for _, name := range []string{"change", "conflict", "decision", "note", "import_batch"} {
			assert.True(t, r.IsWorkflow(name), name)
		}
		assert.False(t, r.IsWorkflow("schedule"))
	})

	t.Run("source flags", func(t *testing.T) {
		assert.True(t, r.IsSource("schedule"))
		assert.True(t, r.IsSource("specification"))
		assert.True(t, r.IsSource("drawing"))
		assert.False(t, r.IsSource("conflict"))
	})

	t.Run("ordinal property", func(t *testing.T) {
		assert.Equal(t, "ordinal", r.OrdinalProperty("milestone"))
		assert.Empty(t, r.OrdinalProperty("door"))
	})

	t.Run("property normalizers", func(t *testing.T) {
		assert.Equal(t, "dimension", r.NormalizerFor("door", "width"))
		assert.Equal(t, "text", r.NormalizerFor("door", "material"))
		assert.Empty(t, r.NormalizerFor("door", "unregistered"))
	})
}

func TestNew(t *testing.T) {
	t.Run("rejects duplicate names", func(t *testing.T) {
		_, err := New([]TypeDescriptor{{Name: "door"}, {Name: "door"}})
		assert.Error(t, err)
	})

	t.Run("rejects missing name", func(t *testing.T) {
		_, err := New([]TypeDescriptor{{Label: "Anonymous"}})
		assert.Error(t, err)
	})

	t.Run("defaults ordinal property for temporal types", func(t *testing.T) {
		r, err := New([]TypeDescriptor{{Name: "sprint", Temporal: true}})
		require.NoError(t, err)
		assert.Equal(t, DefaultOrdinalProperty, r.OrdinalProperty("sprint"))
	})
}

func TestLoadMergesExternalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")
	content := `
types:
  - name: door
    label: Door Assembly
    unique_identifier: true
  - name: window
    label: Window
    navigable: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := Load(path)
	require.NoError(t, err)

	// External file overrides the built-in door and adds window.
	door, ok := r.Get("door")
	require.True(t, ok)
	assert.Equal(t, "Door Assembly", door.Label)
	assert.True(t, door.UniqueIdentifier)

	assert.True(t, r.Known("window"))
	// Built-ins not mentioned in the file survive.
	assert.True(t, r.IsTemporal("milestone"))
}

func TestValidTarget(t *testing.T) {
	r, err := New([]TypeDescriptor{
		{Name: "floor", ValidTargets: []string{"room"}},
		{Name: "room"},
		{Name: "door"},
	})
	require.NoError(t, err)

	assert.True(t, r.ValidTarget("floor", "room"))
	assert.False(t, r.ValidTarget("floor", "door"))
	// No ValidTargets list means unrestricted.
	assert.True(t, r.ValidTarget("room", "door"))
	assert.False(t, r.ValidTarget("unknown", "door"))
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")
	require.NoError(t, os.WriteFile(path, []byte("types:\n  - name: widget\n"), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, r.Watch(path))
	defer r.Close()

	require.NoError(t, os.WriteFile(path, []byte("types:\n  - name: gadget\n"), 0o644))

	assert.Eventually(t, func() bool {
		return r.Known("gadget")
	}, 2*time.Second, 10*time.Millisecond)
}
