package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoadConfig_LayersEnvironmentOverBase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
server:
  port: ":8080"
`)
	writeFile(t, dir, "prod.yaml", `
db:
  host: db.internal
`)

	cfg, err := LoadConfig("prod", dir)
	require.NoError(t, err)

	db := cfg["db"].(map[string]interface{})
	assert.Equal(t, "db.internal", db["host"])
	assert.Equal(t, 5432, db["port"])
	assert.Equal(t, ":8080", cfg["server"].(map[string]interface{})["port"])
}

func TestLoadConfig_SubstitutesSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
llm:
  hosted:
    api_key: "${PHISHBOX_TEST_KEY}"
`)
	writeFile(t, dir, "secrets.env", "# comment\nPHISHBOX_TEST_KEY='sk-test'\n")

	cfg, err := LoadConfig("local", dir)
	require.NoError(t, err)

	hosted := cfg["llm"].(map[string]interface{})["hosted"].(map[string]interface{})
	assert.Equal(t, "sk-test", hosted["api_key"])
}

func TestDecode_IntoStruct(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: pg
  port: 6543
  name: mailbox
`)

	var out struct {
		DB DBConfig `yaml:"db"`
	}
	require.NoError(t, Decode("local", dir, &out))
	assert.Equal(t, "pg", out.DB.Host)
	assert.Equal(t, 6543, out.DB.Port)
	assert.Equal(t, "mailbox", out.DB.Name)
}

func TestLoadConfig_MissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	assert.Error(t, err)
}

func TestOverrideDBFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "override")
	t.Setenv("DB_PORT", "not-a-number")

	cfg := DBConfig{Host: "orig", Port: 5432}
	OverrideDBFromEnv(&cfg)

	assert.Equal(t, "override", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
}
