package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadBindingsParsesParamAndTriggerRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bindings.toml")
	contents := `
[[binding]]
channel = 1
controller = 21
target = "intensity"

[[binding]]
channel = 0
controller = 22
trigger = true
target = "next_preset"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	bindings, err := LoadBindings(path)
	require.NoError(t, err)
	require.Len(t, bindings, 2)

	require.Equal(t, uint8(1), bindings[0].Channel)
	require.Equal(t, uint8(21), bindings[0].Controller)
	require.False(t, bindings[0].IsTrigger)
	require.Equal(t, "intensity", bindings[0].Target)

	require.Equal(t, uint8(0), bindings[1].Channel)
	require.True(t, bindings[1].IsTrigger)
	require.Equal(t, "next_preset", bindings[1].Target)
}

func TestLoadBindingsMissingFileErrors(t *testing.T) {
	_, err := LoadBindings("/nonexistent/path/bindings.toml")
	require.Error(t, err)
}
