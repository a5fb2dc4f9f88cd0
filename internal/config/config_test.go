package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRepo(t *testing.T) {
	for _, in := range []string{"https://github.com/foo/bar", "foo/bar", "/foo/bar/", "  foo/bar  "} {
		got, err := NormalizeRepo(in)
		require.NoError(t, err, in)
		assert.Equal(t, "foo/bar", got, in)
	}

	for _, in := range []string{"foo", "", "foo/bar/baz", "/bar", "foo/"} {
		_, err := NormalizeRepo(in)
		assert.ErrorIs(t, err, ErrInvalidRepo, in)
	}
}

func TestParseRepoInput(t *testing.T) {
	got, err := ParseRepoInput("foo/bar, baz/qux foo/bar\nhttps://github.com/a/b")
	require.NoError(t, err)
	assert.Equal(t, []string{"foo/bar", "baz/qux", "a/b"}, got)

	_, err = ParseRepoInput("foo/bar, foo")
	assert.ErrorIs(t, err, ErrInvalidRepo)
	assert.Contains(t, err.Error(), "invalid repository identifier")
}

func TestSplitRepo(t *testing.T) {
	owner, name, err := SplitRepo("foo/bar")
	require.NoError(t, err)
	assert.Equal(t, "foo", owner)
	assert.Equal(t, "bar", name)

	_, _, err = SplitRepo("foo")
	assert.ErrorIs(t, err, ErrInvalidRepo)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Empty(t, cfg.Repos)
	assert.Equal(t, 5, cfg.RefreshSeconds)
	assert.Equal(t, 5*time.Second, cfg.RefreshInterval())
	assert.Equal(t, "info", cfg.LogLevel())
	assert.Equal(t, DefaultLogFile(), cfg.LogPath())
}

func TestSaveKeepsDefaultsOutOfFile(t *testing.T) {
	f := File{Path: filepath.Join(t.TempDir(), "config.yaml")}

	cfg, err := f.Load()
	require.NoError(t, err)
	cfg.Repos = []string{"foo/bar"}
	require.NoError(t, f.Save(cfg))

	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "log_file")
	assert.NotContains(t, string(data), "level")
	assert.Contains(t, string(data), "foo/bar")

	reloaded, err := f.Load()
	require.NoError(t, err)
	assert.Empty(t, reloaded.LogFile)
	assert.Equal(t, DefaultLogFile(), reloaded.LogPath())
}

func TestLoadNormalizesRepos(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "repos:\n  - https://github.com/foo/bar\n  - foo/bar\n  - baz/qux\nrefresh_seconds: 12\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo/bar", "baz/qux"}, cfg.Repos)
	assert.Equal(t, 12, cfg.RefreshSeconds)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "bad repo", data: "repos: [foo]\n"},
		{name: "bad level", data: "log:\n  level: loud\n"},
		{name: "bad yaml", data: "repos: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := &Config{Repos: []string{"foo/bar"}, RefreshSeconds: 9, LogFile: "/tmp/x.log", Log: LogConfig{Level: "debug"}}
	require.NoError(t, Save(path, in))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFileStore(t *testing.T) {
	f := File{Path: filepath.Join(t.TempDir(), "nested", "config.yaml")}

	cfg, err := f.Load()
	require.NoError(t, err)
	cfg.Repos = []string{"foo/bar"}
	require.NoError(t, f.Save(cfg))

	reloaded, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"foo/bar"}, reloaded.Repos)
}
