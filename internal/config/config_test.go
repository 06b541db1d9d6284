package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"tablekeeper/pkg/errors"
)

// clearEnv unsets every bound variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, b := range envBindings {
		t.Setenv(b.env, "")
		require.NoError(t, os.Unsetenv(b.env))
	}
}

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	clearEnv(t)
	v := viper.New()
	Setup(v)
	return v
}

func TestDefaults(t *testing.T) {
	v := newViper(t)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "PRODDB", cfg.Snowflake.Database)
	assert.Equal(t, "TEAM_DATA_ANALYTICS_ETL", cfg.Snowflake.Warehouse)
	assert.Equal(t, "public", cfg.Snowflake.Schema)
	assert.Equal(t, 60*time.Second, cfg.Snowflake.Timeout)
	assert.Equal(t, "table_allowlist.json", cfg.Files.Allowlist)
	assert.Equal(t, "schema_repository.json", cfg.Files.Repository)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestEnvironmentOverridesConfigFile(t *testing.T) {
	v := newViper(t)

	path := filepath.Join(t.TempDir(), "tablekeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
snowflake:
  account: file-account
  warehouse: FILE_WH
  timeout: 90
files:
  allowlist: custom_allowlist.json
`), 0600))
	require.NoError(t, ReadConfigFile(v, path))

	t.Setenv("SNOWFLAKE_ACCOUNT", "env-account")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "env-account", cfg.Snowflake.Account)
	assert.Equal(t, "FILE_WH", cfg.Snowflake.Warehouse)
	assert.Equal(t, 90*time.Second, cfg.Snowflake.Timeout)
	assert.Equal(t, "custom_allowlist.json", cfg.Files.Allowlist)
}

func TestTimeoutFromEnvironment(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"30", 30 * time.Second},
		{"2m", 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			v := newViper(t)
			t.Setenv("SNOWFLAKE_TIMEOUT", tt.value)

			cfg, err := Load(v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Snowflake.Timeout)
		})
	}
}

func TestInvalidTimeout(t *testing.T) {
	v := newViper(t)
	t.Setenv("SNOWFLAKE_TIMEOUT", "soon")

	_, err := Load(v)
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetErrorCode(err))
}

func TestMissingExplicitConfigFile(t *testing.T) {
	v := newViper(t)

	err := ReadConfigFile(v, filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, errors.ErrCodeConfigNotFound, errors.GetErrorCode(err))
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SNOWFLAKE_ACCOUNT", "real-account")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"SNOWFLAKE_USER=dotenv_user\nSNOWFLAKE_ACCOUNT=dotenv_account\nUNRELATED=1\n"), 0600))

	exported, err := LoadDotEnv(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"SNOWFLAKE_USER"}, exported)
	assert.Equal(t, "dotenv_user", os.Getenv("SNOWFLAKE_USER"))
	assert.Equal(t, "real-account", os.Getenv("SNOWFLAKE_ACCOUNT"))
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	exported, err := LoadDotEnv(filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
	assert.Empty(t, exported)
}

func TestKeyringFallback(t *testing.T) {
	keyring.MockInit()

	v := newViper(t)
	t.Setenv("SNOWFLAKE_ACCOUNT", "xy12345")
	t.Setenv("SNOWFLAKE_USER", "Analyst")

	require.NoError(t, SetPassword("xy12345", "analyst", "from-keyring"))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", cfg.Snowflake.Password)

	t.Setenv("SNOWFLAKE_PASSWORD", "from-env")
	cfg, err = Load(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Snowflake.Password)

	require.NoError(t, DeletePassword("xy12345", "analyst"))
	_, err = GetPassword("xy12345", "analyst")
	assert.ErrorIs(t, err, keyring.ErrNotFound)
	assert.NoError(t, DeletePassword("xy12345", "analyst"))
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "tablekeeper.yaml")

	cfg := Defaults()
	cfg.Snowflake.Account = "xy12345"
	cfg.Snowflake.Password = "secret"

	require.NoError(t, WriteTemplate(path, cfg, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "account: xy12345")
	assert.Contains(t, string(data), "warehouse: TEAM_DATA_ANALYTICS_ETL")
	assert.NotContains(t, string(data), "secret")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	err = WriteTemplate(path, cfg, false)
	assert.Equal(t, errors.ErrCodeFileOperation, errors.GetErrorCode(err))
	assert.NoError(t, WriteTemplate(path, cfg, true))
}

func TestMaskedParams(t *testing.T) {
	cfg := Defaults()
	cfg.Snowflake.Account = "xy12345"
	cfg.Snowflake.Password = "secret"

	params := MaskedParams(&cfg)
	values := map[string]string{}
	for _, p := range params {
		values[p.Name] = p.Value
	}

	assert.Equal(t, "xy12345", values["Account"])
	assert.Equal(t, "********", values["Password"])
	assert.Equal(t, "password", values["Authentication"])
	assert.Equal(t, "(default)", values["Role"])

	cfg.Snowflake.Password = ""
	cfg.Snowflake.PrivateKeyPath = "/keys/rsa.p8"
	for _, p := range MaskedParams(&cfg) {
		if p.Name == "Password" {
			assert.Equal(t, "(not set)", p.Value)
		}
	}
}

func TestConnection(t *testing.T) {
	cfg := Defaults()
	cfg.Snowflake.User = "analyst"
	cfg.Snowflake.Role = "ANALYST_ROLE"

	conn := Connection(&cfg)
	assert.Equal(t, "analyst", conn.Username)
	assert.Equal(t, "ANALYST_ROLE", conn.Role)
	assert.Equal(t, "PRODDB", conn.Database)
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"90s", 90 * time.Second, false},
		{"45", 45 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"later", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseTimeout(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
