/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package config

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/logger"
)

// EnvPrefix prefixes every environment override, e.g. ENTITYWORK_SQL_HOST.
const EnvPrefix = "ENTITYWORK"

// Config is the process configuration of an entitywork host.
type Config struct {
	Log      logger.Config  `mapstructure:"log" yaml:"log"`
	Context  ContextConfig  `mapstructure:"context" yaml:"context"`
	Memory   MemoryConfig   `mapstructure:"memory" yaml:"memory"`
	SQL      SQLConfig      `mapstructure:"sql" yaml:"sql"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb" yaml:"dynamodb"`
}

// ContextConfig tunes the context factory.
type ContextConfig struct {
	Holder    string `mapstructure:"holder" yaml:"holder" validate:"oneof=scoped shared"`
	Isolation string `mapstructure:"isolation" yaml:"isolation" validate:"oneof=default read_uncommitted read_committed repeatable_read serializable"`
	ReadOnly  bool   `mapstructure:"read_only" yaml:"read_only"`
}

// IsolationLevel maps Isolation onto database/sql.
func (c ContextConfig) IsolationLevel() sql.IsolationLevel {
	switch c.Isolation {
	case "read_uncommitted":
		return sql.LevelReadUncommitted
	case "read_committed":
		return sql.LevelReadCommitted
	case "repeatable_read":
		return sql.LevelRepeatableRead
	case "serializable":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// MemoryConfig enables the in-memory provider.
type MemoryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// SQLConfig configures the gorm provider over MySQL.
type SQLConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Host            string        `mapstructure:"host" yaml:"host" validate:"required_if=Enabled true"`
	Port            string        `mapstructure:"port" yaml:"port"`
	Username        string        `mapstructure:"username" yaml:"username" validate:"required_if=Enabled true"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Database        string        `mapstructure:"database" yaml:"database" validate:"required_if=Enabled true"`
	Params          string        `mapstructure:"params" yaml:"params"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold" yaml:"slow_threshold"`
	AutoMigrate     bool          `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// DSN renders the go-sql-driver/mysql data source name.
func (c SQLConfig) DSN() string {
	params := c.Params
	if params == "" {
		params = "parseTime=true&loc=UTC&charset=utf8mb4&collation=utf8mb4_unicode_ci"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s", c.Username, c.Password, c.Host, c.Port, c.Database, params)
}

// DynamoDBConfig configures the DynamoDB provider.
type DynamoDBConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	Region         string `mapstructure:"region" yaml:"region" validate:"required_if=Enabled true"`
	Table          string `mapstructure:"table" yaml:"table" validate:"required_if=Enabled true"`
	AccessKey      string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey      string `mapstructure:"secret_key" yaml:"secret_key"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	ScanPageSize   int32  `mapstructure:"scan_page_size" yaml:"scan_page_size" validate:"gte=0"`
	ConsistentRead bool   `mapstructure:"consistent_read" yaml:"consistent_read"`
}

// Load reads an optional .env file, then the YAML file at path (or ./entitywork.yaml and
// ./config/entitywork.yaml when path is empty), then ENTITYWORK_* environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "loading .env")
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("entitywork")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("context.holder", "scoped")
	v.SetDefault("context.isolation", "default")
	v.SetDefault("context.read_only", false)

	v.SetDefault("memory.enabled", true)

	v.SetDefault("sql.enabled", false)
	v.SetDefault("sql.host", "localhost")
	v.SetDefault("sql.port", "3306")
	v.SetDefault("sql.username", "")
	v.SetDefault("sql.password", "")
	v.SetDefault("sql.database", "")
	v.SetDefault("sql.params", "")
	v.SetDefault("sql.max_open_conns", 25)
	v.SetDefault("sql.max_idle_conns", 10)
	v.SetDefault("sql.conn_max_lifetime", "10m")
	v.SetDefault("sql.conn_max_idle_time", "5m")
	v.SetDefault("sql.log_level", "warn")
	v.SetDefault("sql.slow_threshold", "200ms")
	v.SetDefault("sql.auto_migrate", false)

	v.SetDefault("dynamodb.enabled", false)
	v.SetDefault("dynamodb.region", "")
	v.SetDefault("dynamodb.table", "")
	v.SetDefault("dynamodb.access_key", "")
	v.SetDefault("dynamodb.secret_key", "")
	v.SetDefault("dynamodb.endpoint", "")
	v.SetDefault("dynamodb.scan_page_size", 100)
	v.SetDefault("dynamodb.consistent_read", false)
}

var validate = validator.New()

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.NewConfigurationError("config", fe.Namespace(), fmt.Sprintf("failed on the %q rule", fe.Tag()))
		}
		return errors.NewConfigurationError("config", "", err.Error())
	}
	return nil
}

const redacted = "******"

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() (string, error) {
	masked := *c
	if masked.SQL.Password != "" {
		masked.SQL.Password = redacted
	}
	if masked.DynamoDB.SecretKey != "" {
		masked.DynamoDB.SecretKey = redacted
	}
	out, err := yaml.Marshal(&masked)
	if err != nil {
		return "", errors.Wrap(err, "rendering config")
	}
	return string(out), nil
}
