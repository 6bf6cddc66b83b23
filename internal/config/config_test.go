package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedhook/seedhook/internal/apperr"
)

func writeConfig(t *testing.T, dir string, doc map[string]interface{}) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoadMissingFileCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	_, err := Load(path)
	assert.True(t, apperr.Is(err, apperr.ErrConfig), "expected ErrConfig, got %v", err)
	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "expected default config file to be created")

	data, _ := os.ReadFile(path)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(9091), raw["rpc-port"])
}

// TestConfigRoundTripsPlainPassword covers spec.md §8's "Config round-trip"
// property: a plain password is obfuscated on disk but Load still returns
// the original cleartext.
func TestConfigRoundTripsPlainPassword(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]interface{}{
		"log-level":        "INFO",
		"rpc-path":         "/transmission/rpc",
		"rpc-port":         9091.0,
		"rpc-username":     "admin",
		"rpc-password":     "hunter2",
		"seed-dir":         filepath.Join(dir, "seed"),
		"watch-dir":        filepath.Join(dir, "watch"),
		"dest-dir-default": filepath.Join(dir, "dest"),
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.RPCPassword)

	data, _ := os.ReadFile(path)
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	stored := raw["rpc-password"].(string)
	assert.NotEqual(t, "hunter2", stored, "password must not be persisted in cleartext")
	assert.Equal(t, byte('{'), stored[0], "persisted password should be {HEX}-wrapped")

	// Loading again must decode the now-obfuscated password back to the
	// same cleartext and must not rewrite the file a second time.
	cfg2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg2.RPCPassword)

	data2, _ := os.ReadFile(path)
	var raw2 map[string]interface{}
	json.Unmarshal(data2, &raw2)
	assert.Equal(t, stored, raw2["rpc-password"], "second load must not rewrite an already-obfuscated password")
}

func TestLoadRejectsRelativeSeedDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]interface{}{
		"seed-dir":         "relative/seed",
		"dest-dir-default": filepath.Join(dir, "dest"),
	})
	_, err := Load(path)
	assert.True(t, apperr.Is(err, apperr.ErrConfig), "expected ErrConfig for relative seed-dir, got %v", err)
}

func TestLoadRejectsEmptyDestDirDefault(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]interface{}{
		"seed-dir": filepath.Join(dir, "seed"),
	})
	_, err := Load(path)
	assert.True(t, apperr.Is(err, apperr.ErrConfig), "expected ErrConfig for missing dest-dir-default, got %v", err)
}

func TestLoadFallsBackCategoryDestsToDefault(t *testing.T) {
	dir := t.TempDir()
	defaultDir := filepath.Join(dir, "dest")
	path := writeConfig(t, dir, map[string]interface{}{
		"seed-dir":         filepath.Join(dir, "seed"),
		"dest-dir-default": defaultDir,
	})
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultDir, cfg.DestDirMovies)
	assert.Equal(t, defaultDir, cfg.DestDirTVShows)
	assert.Equal(t, defaultDir, cfg.DestDirMusic)
	assert.Equal(t, defaultDir, cfg.DestDirAV)
}

func TestLoadRevertsWrongTypedFieldToDefault(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]interface{}{
		"seed-dir":         filepath.Join(dir, "seed"),
		"dest-dir-default": filepath.Join(dir, "dest"),
		"rpc-port":         "not-a-number",
	})
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9091, cfg.RPCPort, "wrong-typed input should revert to default")
}
