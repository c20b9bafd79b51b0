package settings

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bundled = fstest.MapFS{
	"defaults.yaml": &fstest.MapFile{Data: []byte(`
players:
  min: 2
  max: 8
countdown: 5s
`)},
	"broken.yaml": &fstest.MapFile{Data: []byte("players: [unclosed\n")},
}

func TestNewCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "game.yaml")

	_, err := New(path)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "game.ini"))
	assert.Error(t, err)
}

func TestGetBeforeLoadIsEmpty(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "game.yaml"))
	require.NoError(t, err)

	require.NotNil(t, s.Get())
	assert.Empty(t, s.Get().AllSettings())
	assert.Equal(t, 3, s.Int("players.min", 3))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "game.yaml"), WithDefaults(bundled, "defaults.yaml"))
	require.NoError(t, err)

	require.NoError(t, s.Load())
	assert.Equal(t, 2, s.Int("players.min", 0))
	assert.Equal(t, 8, s.Int("players.max", 0))
	assert.Equal(t, 5*time.Second, s.Duration("countdown", 0))
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	require.NoError(t, os.WriteFile(path, []byte("players:\n  max: 16\nname: custom\n"), 0o644))

	s, err := New(path, WithDefaults(bundled, "defaults.yaml"))
	require.NoError(t, err)
	require.NoError(t, s.Load())

	assert.Equal(t, 16, s.Int("players.max", 0))
	assert.Equal(t, 2, s.Int("players.min", 0), "nested defaults fill in keys absent from the file")
	assert.Equal(t, "custom", s.String("name", ""))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	s, err := New(path, WithDefaults(bundled, "defaults.yaml"))
	require.NoError(t, err)
	require.NoError(t, s.Load())

	s.Get().Set("players.max", 12)
	require.NoError(t, s.Save())

	reloaded, err := New(path)
	require.NoError(t, err)
	require.NoError(t, reloaded.Load())

	assert.Equal(t, 12, reloaded.Int("players.max", 0))
	assert.Equal(t, 2, reloaded.Int("players.min", 0), "defaults are persisted on first save")
}

func TestLoadBrokenDefaultsKeepsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	require.NoError(t, os.WriteFile(path, []byte("players:\n  max: 4\n"), 0o644))

	s, err := New(path, WithDefaults(bundled, "broken.yaml"))
	require.NoError(t, err)

	err = s.Load()
	require.ErrorIs(t, err, ErrDefaults)
	assert.Equal(t, 4, s.Int("players.max", 0))
	assert.False(t, s.Get().IsSet("players.min"))
}

func TestLoadMissingDefaults(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "game.yaml"), WithDefaults(bundled, "absent.yaml"))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Load(), ErrDefaults)
}

func TestLoadCorruptFileKeepsPreviousTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	require.NoError(t, os.WriteFile(path, []byte("players:\n  max: 6\n"), 0o644))

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Load())

	require.NoError(t, os.WriteFile(path, []byte("players: [unclosed\n"), 0o644))
	assert.Error(t, s.Load())
	assert.Equal(t, 6, s.Int("players.max", 0))
}

func TestJSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"players":{"max":3}}`), 0o644))

	s, err := New(path, WithDefaults(bundled, "defaults.yaml"))
	require.NoError(t, err)
	require.NoError(t, s.Load())

	assert.Equal(t, 3, s.Int("players.max", 0))
	assert.Equal(t, 2, s.Int("players.min", 0))
}
