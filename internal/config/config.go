package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"tablekeeper/internal/common"
	"tablekeeper/internal/snowflake"
	"tablekeeper/pkg/errors"
	"tablekeeper/pkg/models"
)

const (
	// FileName is the config file name searched in "." and ~/.tablekeeper.
	FileName = "tablekeeper"
	// KeyringService is the OS keyring service passwords are stored under.
	KeyringService = "tablekeeper"
)

// envBindings maps config keys to the environment variables that set them.
var envBindings = []struct {
	key, env string
}{
	{"snowflake.account", "SNOWFLAKE_ACCOUNT"},
	{"snowflake.user", "SNOWFLAKE_USER"},
	{"snowflake.password", "SNOWFLAKE_PASSWORD"},
	{"snowflake.private_key_path", "SNOWFLAKE_PRIVATE_KEY_PATH"},
	{"snowflake.database", "SNOWFLAKE_DATABASE"},
	{"snowflake.warehouse", "SNOWFLAKE_WAREHOUSE"},
	{"snowflake.schema", "SNOWFLAKE_SCHEMA"},
	{"snowflake.role", "SNOWFLAKE_ROLE"},
	{"snowflake.timeout", "SNOWFLAKE_TIMEOUT"},
	{"files.allowlist", "TABLEKEEPER_ALLOWLIST"},
	{"files.repository", "TABLEKEEPER_REPOSITORY"},
	{"files.docs", "TABLEKEEPER_DOCS"},
	{"files.reference", "TABLEKEEPER_REFERENCE"},
	{"log.level", "TABLEKEEPER_LOG_LEVEL"},
	{"log.format", "TABLEKEEPER_LOG_FORMAT"},
}

// Defaults returns the built-in configuration.
func Defaults() models.Config {
	return models.Config{
		Snowflake: models.Snowflake{
			Database:  "PRODDB",
			Warehouse: "TEAM_DATA_ANALYTICS_ETL",
			Schema:    "public",
			Timeout:   snowflake.DefaultTimeout,
		},
		Files: models.Files{
			Allowlist:  "table_allowlist.json",
			Repository: "schema_repository.json",
			Docs:       "schema_documentation.md",
			Reference:  "mcp_reference.json",
		},
		Log: models.Log{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Setup registers defaults and environment bindings on v. Flags are bound by
// the caller with v.BindPFlag.
func Setup(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("snowflake.database", d.Snowflake.Database)
	v.SetDefault("snowflake.warehouse", d.Snowflake.Warehouse)
	v.SetDefault("snowflake.schema", d.Snowflake.Schema)
	v.SetDefault("snowflake.timeout", d.Snowflake.Timeout)
	v.SetDefault("files.allowlist", d.Files.Allowlist)
	v.SetDefault("files.repository", d.Files.Repository)
	v.SetDefault("files.docs", d.Files.Docs)
	v.SetDefault("files.reference", d.Files.Reference)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	for _, b := range envBindings {
		_ = v.BindEnv(b.key, b.env)
	}
}

// ConfigDir returns ~/.tablekeeper.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tablekeeper"
	}
	return filepath.Join(home, ".tablekeeper")
}

// ReadConfigFile reads the explicit file, or searches "." and ConfigDir for
// tablekeeper.yaml. A missing file is not an error.
func ReadConfigFile(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(ConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && explicit == "" {
			return nil
		}
		if explicit != "" && os.IsNotExist(err) {
			return errors.Wrap(err, errors.ErrCodeConfigNotFound, "Config file not found").
				WithContext("path", explicit)
		}
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to read config file").
			WithContext("path", v.ConfigFileUsed())
	}
	return nil
}

// LoadDotEnv exports the variables of a .env file that are not already set
// in the environment, so real environment variables win over the file. A
// missing file is ignored. It returns the names it exported.
func LoadDotEnv(path string) ([]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - user supplied env file
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to read env file").
			WithContext("path", path)
	}

	env := viper.New()
	env.SetConfigType("env")
	if err := env.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to parse env file").
			WithContext("path", path)
	}

	var exported []string
	for _, b := range envBindings {
		if _, set := os.LookupEnv(b.env); set {
			continue
		}
		key := strings.ToLower(b.env)
		if !env.IsSet(key) {
			continue
		}
		if err := os.Setenv(b.env, env.GetString(key)); err != nil {
			return exported, errors.Wrap(err, errors.ErrCodeInternal, "Failed to export env variable").
				WithContext("name", b.env)
		}
		exported = append(exported, b.env)
	}
	return exported, nil
}

// Load decodes the merged configuration. When no password or private key is
// configured, the password stored in the OS keyring for the user is used.
func Load(v *viper.Viper) (*models.Config, error) {
	if raw := v.Get("snowflake.timeout"); raw != nil {
		d, err := timeoutValue(raw)
		if err != nil {
			return nil, err
		}
		v.Set("snowflake.timeout", d)
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Invalid configuration")
	}

	sf := &cfg.Snowflake
	if sf.Password == "" && sf.PrivateKeyPath == "" && sf.User != "" {
		if pw, err := GetPassword(sf.Account, sf.User); err == nil {
			sf.Password = pw
		}
	}
	return &cfg, nil
}

// Connection converts the snowflake section to service settings.
func Connection(cfg *models.Config) snowflake.Config {
	sf := cfg.Snowflake
	return snowflake.Config{
		Account:        sf.Account,
		Username:       sf.User,
		Password:       sf.Password,
		PrivateKeyPath: sf.PrivateKeyPath,
		Database:       sf.Database,
		Schema:         sf.Schema,
		Warehouse:      sf.Warehouse,
		Role:           sf.Role,
		Timeout:        sf.Timeout,
	}
}

func keyringUser(account, user string) string {
	return strings.ToLower(user + "@" + account)
}

// SetPassword stores the password for user@account in the OS keyring.
func SetPassword(account, user, password string) error {
	if err := keyring.Set(KeyringService, keyringUser(account, user), password); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to store password in keyring").
			WithSuggestions("Set SNOWFLAKE_PASSWORD in the environment or .env instead")
	}
	return nil
}

// GetPassword reads the password stored for user@account.
func GetPassword(account, user string) (string, error) {
	pw, err := keyring.Get(KeyringService, keyringUser(account, user))
	if err != nil {
		return "", err
	}
	return pw, nil
}

// DeletePassword removes the stored password. A missing entry is not an error.
func DeletePassword(account, user string) error {
	err := keyring.Delete(KeyringService, keyringUser(account, user))
	if err != nil && err != keyring.ErrNotFound {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to remove password from keyring")
	}
	return nil
}

// WriteTemplate writes cfg as YAML to path. Passwords are never written; use
// the keyring or the environment for them. An existing file is kept unless
// force is set.
func WriteTemplate(path string, cfg models.Config, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.New(errors.ErrCodeFileOperation, "Config file already exists").
			WithContext("path", path).
			WithSuggestions("Use --force to overwrite it")
	}

	cfg.Snowflake.Password = ""
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to marshal config")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, common.DirPermissionSecure); err != nil {
			return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to create config directory").
				WithContext("path", dir)
		}
	}
	if err := os.WriteFile(path, data, common.FilePermissionSecure); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to write config file").
			WithContext("path", path)
	}
	return nil
}

// Param is a named connection setting for display.
type Param struct {
	Name  string
	Value string
}

// MaskedParams lists the connection settings with secrets masked.
func MaskedParams(cfg *models.Config) []Param {
	sf := cfg.Snowflake
	auth := "password"
	if sf.PrivateKeyPath != "" {
		auth = "key pair (" + sf.PrivateKeyPath + ")"
	}
	return []Param{
		{"Account", sf.Account},
		{"User", sf.User},
		{"Password", mask(sf.Password)},
		{"Authentication", auth},
		{"Database", sf.Database},
		{"Warehouse", sf.Warehouse},
		{"Schema", sf.Schema},
		{"Role", orDefault(sf.Role, "(default)")},
		{"Timeout", sf.Timeout.String()},
	}
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return "********"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func timeoutValue(raw interface{}) (time.Duration, error) {
	switch t := raw.(type) {
	case time.Duration:
		return t, nil
	case int:
		return time.Duration(t) * time.Second, nil
	case int64:
		return time.Duration(t) * time.Second, nil
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	case string:
		return ParseTimeout(t)
	default:
		return ParseTimeout(fmt.Sprint(t))
	}
}

// ParseTimeout accepts a duration ("90s") or a bare number of seconds.
func ParseTimeout(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	var secs int
	if _, err := fmt.Sscanf(s, "%d", &secs); err != nil || secs < 0 {
		return 0, errors.ValidationError("timeout", s, "expected a duration such as 90s")
	}
	return time.Duration(secs) * time.Second, nil
}
