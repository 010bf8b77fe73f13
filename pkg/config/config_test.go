package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestUnresolvedWithoutSources(t *testing.T) {
	c, err := New(WithSearchPaths(t.TempDir()))
	require.NoError(t, err)

	_, ok := c.DefaultAdapter()
	assert.False(t, ok)
	_, ok = c.DefaultPort()
	assert.False(t, ok)
	assert.Empty(t, c.File())
	assert.Empty(t, c.Scenario())
}

func TestPropertiesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "onewire.properties", "onewire.adapter.default=DS9097U\nonewire.port.default=/dev/ttyS0\n")

	c, err := New(WithSearchPaths(dir))
	require.NoError(t, err)

	name, ok := c.DefaultAdapter()
	require.True(t, ok)
	assert.Equal(t, "DS9097U", name)
	port, ok := c.DefaultPort()
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyS0", port)
	assert.Equal(t, filepath.Join(dir, "onewire.properties"), c.File())
}

func TestYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bench.yaml", "onewire:\n  adapter:\n    default: Simulator\n  sim:\n    scenario: bus.yaml\n")

	c, err := New(WithConfigFile(path))
	require.NoError(t, err)

	name, ok := c.DefaultAdapter()
	require.True(t, ok)
	assert.Equal(t, "Simulator", name)
	assert.Equal(t, "bus.yaml", c.Scenario())
}

func TestBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "onewire.yaml", "onewire: [unterminated\n")
	_, err := New(WithConfigFile(path))
	assert.Error(t, err)
}

func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "onewire.properties", "onewire.adapter.default=DS9097U\n")

	smart := func(key string) (string, bool) {
		if key == KeyPort {
			return "USB1", true
		}
		return "DS9490", true
	}

	c, err := New(WithSearchPaths(dir), WithSmartDefault(smart))
	require.NoError(t, err)

	// file beats smart default
	name, _ := c.DefaultAdapter()
	assert.Equal(t, "DS9097U", name)
	// smart default fills the gap
	port, ok := c.DefaultPort()
	require.True(t, ok)
	assert.Equal(t, "USB1", port)

	// environment beats file
	t.Setenv("ONEWIRE_ADAPTER_DEFAULT", "Simulator")
	name, _ = c.DefaultAdapter()
	assert.Equal(t, "Simulator", name)

	// explicit override beats environment
	c.Set(KeyAdapter, "DS9490")
	name, _ = c.DefaultAdapter()
	assert.Equal(t, "DS9490", name)
}

func TestSmartDefaultDeclines(t *testing.T) {
	c, err := New(WithSearchPaths(t.TempDir()))
	require.NoError(t, err)
	c.SetSmartDefault(func(string) (string, bool) { return "", false })
	_, ok := c.DefaultAdapter()
	assert.False(t, ok)
}
