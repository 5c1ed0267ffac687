package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("AUDIONOTES_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8787", cfg.ListenAddr)
	assert.Equal(t, "en-US", cfg.LanguageTag)
	assert.NotEmpty(t, cfg.DBPath)
	assert.NotContains(t, cfg.DBPath, "~")
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
db_path: /tmp/notes.db
listen_addr: ":9999"
language_tag: de-DE
backup:
  bucket: my-notes
  aws_region: eu-central-1
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	t.Setenv("AUDIONOTES_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/notes.db", cfg.DBPath)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "de-DE", cfg.LanguageTag)
	assert.Equal(t, "my-notes", cfg.Backup.Bucket)
	assert.Equal(t, "eu-central-1", cfg.Backup.AWSRegion)
	// unset keys still get defaults
	assert.NotEmpty(t, cfg.RecordingsDir)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: [unclosed"), 0644))
	t.Setenv("AUDIONOTES_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestPathHonorsEnvOverride(t *testing.T) {
	t.Setenv("AUDIONOTES_CONFIG", "/etc/custom.yaml")

	path, err := Path()
	require.NoError(t, err)
	assert.Equal(t, "/etc/custom.yaml", path)
}
