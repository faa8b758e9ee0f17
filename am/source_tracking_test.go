package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func settingByKey(settings []SettingInfo, key string) (SettingInfo, bool) {
	for _, s := range settings {
		if s.Key == key {
			return s, true
		}
	}
	return SettingInfo{}, false
}

func TestMergeConfigFiles_Precedence(t *testing.T) {
	t.Cleanup(Reset)
	Reset()

	dir := t.TempDir()
	user := SourceInfo{Source: SourceUser, Path: filepath.Join(dir, "home", "am.toml")}
	project := SourceInfo{Source: SourceProject, Path: filepath.Join(dir, "project", "am.toml")}
	missing := SourceInfo{Source: SourceSystem, Path: filepath.Join(dir, "etc", "config.toml")}

	writeConfig(t, user.Path, "[buffer]\nwindow_ms = 500\n\n[graph]\nremoval_grace_ms = 100\n")
	writeConfig(t, project.Path, "[buffer]\nwindow_ms = 250\n")

	v := viper.New()
	SetDefaults(v)
	mergeConfigFiles(v, []SourceInfo{missing, user, project})

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Buffer.WindowMS, "project file wins over user file")
	assert.Equal(t, 100, cfg.Graph.RemovalGraceMS)

	assert.Equal(t, project, ConfigSources["buffer.window_ms"])
	assert.Equal(t, user, ConfigSources["graph.removal_grace_ms"])
	_, tracked := ConfigSources["stream.base_url"]
	assert.False(t, tracked, "defaults are not attributed to a file")
}

func TestMergeConfigFiles_SkipsUnreadable(t *testing.T) {
	t.Cleanup(Reset)
	Reset()

	path := filepath.Join(t.TempDir(), "am.toml")
	writeConfig(t, path, "[buffer\nwindow_ms = ")

	v := viper.New()
	SetDefaults(v)
	mergeConfigFiles(v, []SourceInfo{{Source: SourceProject, Path: path}})

	assert.Empty(t, ConfigSources)
	assert.Equal(t, DefaultBufferWindowMS, v.GetInt("buffer.window_ms"))
}

func TestIntrospect(t *testing.T) {
	t.Setenv("SPROUT_STREAM_BASE_URL", "https://agents.example.com")

	v := viper.New()
	SetDefaults(v)
	v.Set("buffer.window_ms", 250)
	v.Set("stream.base_url", "https://agents.example.com")

	sources := map[string]SourceInfo{
		"buffer.window_ms": {Source: SourceProject, Path: "/work/am.toml"},
		"stream.base_url":  {Source: SourceUser, Path: "/home/u/.sprout/am.toml"},
	}
	settings := introspect(v.AllSettings(), sources)

	window, ok := settingByKey(settings, "buffer.window_ms")
	require.True(t, ok)
	assert.Equal(t, SourceProject, window.Source)
	assert.Equal(t, "/work/am.toml", window.SourcePath)

	base, ok := settingByKey(settings, "stream.base_url")
	require.True(t, ok)
	assert.Equal(t, SourceEnvironment, base.Source, "environment overrides any file")
	assert.Equal(t, "SPROUT_STREAM_BASE_URL", base.SourcePath)

	grace, ok := settingByKey(settings, "graph.removal_grace_ms")
	require.True(t, ok)
	assert.Equal(t, SourceDefault, grace.Source)

	for i := 1; i < len(settings); i++ {
		assert.Less(t, settings[i-1].Key, settings[i].Key, "settings are sorted by key")
	}
}

func TestGetConfigIntrospection_ProjectFile(t *testing.T) {
	t.Cleanup(Reset)
	Reset()

	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, filepath.Join(home, configDirName, "am.toml"), "[graph]\nmastery_threshold = 0.8\n")
	writeConfig(t, filepath.Join(work, "am.toml"), "[server]\naddr = \"localhost:9000\"\n")
	t.Chdir(work)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", cfg.Server.Addr)
	assert.InDelta(t, 0.8, cfg.Graph.MasteryThreshold, 1e-9)

	settings, err := GetConfigIntrospection()
	require.NoError(t, err)

	addr, ok := settingByKey(settings, "server.addr")
	require.True(t, ok)
	assert.Equal(t, SourceProject, addr.Source)

	threshold, ok := settingByKey(settings, "graph.mastery_threshold")
	require.True(t, ok)
	assert.Equal(t, SourceUser, threshold.Source)
}
