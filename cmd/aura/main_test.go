package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura/pkg/config"
	"aura/pkg/logx"
)

func TestParseWindow(t *testing.T) {
	d, err := parseWindow("1d")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	d, err = parseWindow("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = parseWindow("soon")
	require.Error(t, err)
	_, err = parseWindow("0s")
	require.Error(t, err)
}

func TestLoadSecrets(t *testing.T) {
	dir := t.TempDir()
	logger := logx.NewLogger("test")

	t.Run("missing default file is ignored", func(t *testing.T) {
		cfg := config.Default()
		cfg.Database.Path = filepath.Join(dir, "aura.db")
		require.NoError(t, loadSecrets(cfg, "", logger))
	})

	t.Run("missing explicit file fails", func(t *testing.T) {
		cfg := config.Default()
		require.Error(t, loadSecrets(cfg, filepath.Join(dir, "nope.enc"), logger))
	})

	t.Run("decrypts with password from env", func(t *testing.T) {
		path := filepath.Join(dir, config.SecretsFileName)
		require.NoError(t, config.EncryptSecretsFile(path, "hunter2", map[string]string{"GOOGLE_API_KEY": "AIza-secret"}))
		t.Setenv(PasswordEnvVar, "hunter2")

		cfg := config.Default()
		cfg.Database.Path = filepath.Join(dir, "aura.db")
		require.NoError(t, loadSecrets(cfg, "", logger))
		assert.NotEmpty(t, cfg.APIKeys)

		t.Setenv(PasswordEnvVar, "wrong")
		require.Error(t, loadSecrets(config.Default(), path, logger))
	})
}

func TestRunDiagnoseWithoutKeys(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("active_model_id: gemini-2.5-flash\n"), 0o600))
	t.Setenv("GOOGLE_API_KEY", "")

	var out bytes.Buffer
	code := run(options{
		configPath: cfgPath,
		dbPath:     filepath.Join(dir, "aura.db"),
		diagnose:   true,
	}, &out)
	assert.Equal(t, 1, code)

	var d map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &d))
	assert.Equal(t, false, d["success"])
	assert.Equal(t, "gemini-2.5-flash", d["active_model_id"])
}

func TestRunUsageRequiresPrometheusURL(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("active_model_id: gemini-2.5-flash\n"), 0o600))

	var out bytes.Buffer
	assert.Equal(t, 1, run(options{configPath: cfgPath, dbPath: filepath.Join(dir, "aura.db"), usage: true, window: "1d"}, &out))
	assert.Empty(t, out.String())
}
