package models

import "time"

// Config is the tablekeeper configuration file, tablekeeper.yaml.
type Config struct {
	Snowflake Snowflake `yaml:"snowflake" mapstructure:"snowflake"`
	Files     Files     `yaml:"files" mapstructure:"files"`
	Log       Log       `yaml:"log" mapstructure:"log"`
}

type Snowflake struct {
	Account        string        `yaml:"account" mapstructure:"account"`
	User           string        `yaml:"user" mapstructure:"user"`
	Password       string        `yaml:"password,omitempty" mapstructure:"password"`
	PrivateKeyPath string        `yaml:"private_key_path,omitempty" mapstructure:"private_key_path"`
	Database       string        `yaml:"database" mapstructure:"database"`
	Warehouse      string        `yaml:"warehouse" mapstructure:"warehouse"`
	Schema         string        `yaml:"schema" mapstructure:"schema"`
	Role           string        `yaml:"role,omitempty" mapstructure:"role"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Files names the documents the commands read and write.
type Files struct {
	Allowlist  string `yaml:"allowlist" mapstructure:"allowlist"`
	Repository string `yaml:"repository" mapstructure:"repository"`
	Docs       string `yaml:"docs" mapstructure:"docs"`
	Reference  string `yaml:"reference" mapstructure:"reference"`
}

type Log struct {
	Level  string `yaml:"level" mapstructure:"level"`  // debug, info, warn or error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}
