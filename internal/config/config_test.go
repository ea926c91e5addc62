package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("KUDOS_SESSION_SECRET", "")
	t.Setenv("KUDOS_APP_ENV", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("NODE_ENV", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "session", cfg.Session.CookieName)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, []string{"en", "ko"}, cfg.I18n.Supported)
	assert.Equal(t, "en", cfg.I18n.Fallback)
	assert.Equal(t, "{{lng}}/{{ns}}.json", cfg.I18n.LoadPath)
	assert.False(t, cfg.Production())
	assert.ErrorIs(t, cfg.Validate(), ErrMissingSessionSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("KUDOS_SESSION_SECRET", "primary")
	t.Setenv("KUDOS_SESSION_SECRETS", "old-1, old-2")
	t.Setenv("KUDOS_SESSION_MAXAGE", "1h")
	t.Setenv("KUDOS_I18N_SUPPORTED", "en, ko, ja")
	t.Setenv("KUDOS_APP_ENV", "production")
	t.Setenv("KUDOS_AUTH_HASHWORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.Equal(t, time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, []string{"en", "ko", "ja"}, cfg.I18n.Supported)
	assert.Equal(t, 2, cfg.Auth.HashWorkers)
	assert.Equal(t, []string{"primary", "old-1", "old-2"}, cfg.SigningSecrets())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_PlainSessionSecret(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("KUDOS_SESSION_SECRET", "")
	t.Setenv("SESSION_SECRET", "from-plain-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"from-plain-env"}, cfg.SigningSecrets())
}

func TestLoad_EnvironmentAliases(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("KUDOS_APP_ENV", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("NODE_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Production())

	t.Setenv("APP_ENV", "development")
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, cfg.Production(), "APP_ENV takes precedence over NODE_ENV")
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("KUDOS_SESSION_SECRET", "")
	t.Setenv("SESSION_SECRET", "")

	content := []byte("server:\n  addr: 127.0.0.1:9999\nsession:\n  secret: file-secret\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "file-secret", cfg.Session.Secret)
}

func TestLoadDotEnv_DoesNotOverrideExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nKUDOS_TEST_DOTENV_NEW=\"fresh\"\nKUDOS_TEST_DOTENV_SET=ignored\nbroken-line\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("KUDOS_TEST_DOTENV_SET", "kept")
	t.Cleanup(func() { _ = os.Unsetenv("KUDOS_TEST_DOTENV_NEW") })

	loadDotEnv(path)

	assert.Equal(t, "fresh", os.Getenv("KUDOS_TEST_DOTENV_NEW"))
	assert.Equal(t, "kept", os.Getenv("KUDOS_TEST_DOTENV_SET"))
}

func TestValidate(t *testing.T) {
	var cfg Config
	cfg.Session.Secret = "s"
	cfg.Database.Driver = "mysql"
	cfg.I18n.Supported = []string{"en"}
	assert.Error(t, cfg.Validate())

	cfg.Database.Driver = "postgres"
	assert.Error(t, cfg.Validate(), "postgres needs a dsn")

	cfg.Database.DSN = "postgres://localhost/kudos"
	assert.NoError(t, cfg.Validate())

	cfg.I18n.Supported = nil
	assert.Error(t, cfg.Validate())
}

func TestSigningSecrets_Dedup(t *testing.T) {
	var cfg Config
	cfg.Session.Secret = " a "
	cfg.Session.Secrets = []string{"b", "a", ""}
	assert.Equal(t, []string{"a", "b"}, cfg.SigningSecrets())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
