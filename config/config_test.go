/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package config

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/entitywork/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "scoped", cfg.Context.Holder)
	assert.True(t, cfg.Memory.Enabled)
	assert.False(t, cfg.SQL.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.SQL.ConnMaxLifetime)
	assert.Equal(t, int32(100), cfg.DynamoDB.ScanPageSize)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := writeFile(t, "entitywork.yaml", `
context:
  isolation: serializable
sql:
  enabled: true
  host: db.internal
  username: app
  password: s3cret
  database: staff
dynamodb:
  region: eu-west-1
`)
	t.Setenv("ENTITYWORK_SQL_HOST", "override.internal")
	t.Setenv("ENTITYWORK_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "override.internal", cfg.SQL.Host)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, sql.LevelSerializable, cfg.Context.IsolationLevel())
	assert.Equal(t, "app:s3cret@tcp(override.internal:3306)/staff?parseTime=true&loc=UTC&charset=utf8mb4&collation=utf8mb4_unicode_ci", cfg.SQL.DSN())
	assert.Equal(t, "eu-west-1", cfg.DynamoDB.Region)
}

func TestLoadRejectsInvalidSections(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"unknown holder", "context:\n  holder: thread\n", "Config.Context.Holder"},
		{"sql without database", "sql:\n  enabled: true\n  username: app\n", "Config.SQL.Database"},
		{"dynamodb without table", "dynamodb:\n  enabled: true\n  region: us-east-1\n", "Config.DynamoDB.Table"},
		{"log file without path", "log:\n  output: file\n", "Config.Log.FilePath"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "entitywork.yaml", tt.yaml))
			var cerr *errors.ConfigurationError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestYAMLMasksSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.SQL.Password = "s3cret"
	cfg.DynamoDB.SecretKey = "aws-secret"
	cfg.DynamoDB.Region = "us-east-1"

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, out, "s3cret")
	assert.NotContains(t, out, "aws-secret")
	assert.Contains(t, out, "region: us-east-1")
	assert.Equal(t, "s3cret", cfg.SQL.Password, "the original is untouched")
}
