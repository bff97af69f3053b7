package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	RawDir   string `json:"raw_dir"`
	Password string `json:"password"`
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestReadConfigMergesLocalOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{raw_dir: "/var/lib/raw"}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{password: "hunter2", raw_dir: "/tmp/raw"}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	// local values win
	require.Equal(t, "/tmp/raw", cfg.RawDir)
	require.Equal(t, "hunter2", cfg.Password)
}

func TestReadConfigLocalOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{password: "hunter2"}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "hunter2", cfg.Password)
}

func TestReadConfigMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocalVariant(t *testing.T) {
	require.Equal(t, "config.local.json5", localVariant("config.json5"))
	require.Equal(t, filepath.Join("etc", "telemetry.local.json5"), localVariant(filepath.Join("etc", "telemetry.json5")))
}
