package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func withConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RTUN_CONFIG_DIR", dir)
	return dir
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	withConfigDir(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	withConfigDir(t)

	cfg := Default()
	cfg.LogLevel = "debug"
	cfg.Tunnel.ServerAddr = "gateway.example.test"
	cfg.Tunnel.Username = "deploy"
	cfg.Tunnel.RemotePort = 4040

	require.NoError(t, Save(cfg))

	loaded, err := Load()
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestFilePathUsesConfigDir(t *testing.T) {
	dir := withConfigDir(t)
	require.Equal(t, filepath.Join(dir, "config.yaml"), FilePath())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := withConfigDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("not: [valid"), 0644))

	_, err := Load()
	require.Error(t, err)
}
