package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskboard/internal/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv blanks every variable LoadConfig reads so the host
// environment cannot leak into a test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"CONFIG", "APP_ENV", "ADDR", "PORT", "STORAGE",
		"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD", "DB_SSLMODE", "DB_DSN",
		"MIGRATE_PATH", "JWT_SECRET", "TOKEN_TTL", "BCRYPT_COST", "ALLOWED_ORIGINS",
	} {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE", StorageMemory)

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.Env)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "migrations", cfg.MigratePath)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadConfigPrecedence(t *testing.T) {
	clearConfigEnv(t)
	path := writeFile(t, "config.yaml", `
env: dev
port: 9000
storage: memory
jwt_secret: from-file
token_ttl: 2h
allowed_origins:
  - http://localhost:3000
`)

	tests := []struct {
		name string
		env  map[string]string
		args []string
		want struct {
			env    string
			port   int
			secret string
			ttl    time.Duration
		}
	}{
		{
			name: "file only",
			args: []string{"--config", path},
			want: struct {
				env    string
				port   int
				secret string
				ttl    time.Duration
			}{env: EnvDev, port: 9000, secret: "from-file", ttl: 2 * time.Hour},
		},
		{
			name: "env beats file",
			env:  map[string]string{"PORT": "9100", "JWT_SECRET": "from-env"},
			args: []string{"-c", path},
			want: struct {
				env    string
				port   int
				secret string
				ttl    time.Duration
			}{env: EnvDev, port: 9100, secret: "from-env", ttl: 2 * time.Hour},
		},
		{
			name: "flags beat env",
			env:  map[string]string{"PORT": "9100", "APP_ENV": EnvProd},
			args: []string{"--config", path, "--port", "9200", "--env", EnvLocal, "--token-ttl", "30m"},
			want: struct {
				env    string
				port   int
				secret string
				ttl    time.Duration
			}{env: EnvLocal, port: 9200, secret: "from-file", ttl: 30 * time.Minute},
		},
		{
			name: "config path from environment",
			env:  map[string]string{"CONFIG": path},
			want: struct {
				env    string
				port   int
				secret string
				ttl    time.Duration
			}{env: EnvDev, port: 9000, secret: "from-file", ttl: 2 * time.Hour},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want.env, cfg.Env)
			assert.Equal(t, tt.want.port, cfg.Port)
			assert.Equal(t, tt.want.secret, cfg.JWTSecret)
			assert.Equal(t, tt.want.ttl, cfg.TokenTTL)
			assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
		})
	}
}

func TestLoadConfigJSONFile(t *testing.T) {
	clearConfigEnv(t)
	path := writeFile(t, "config.json", `{"storage":"postgres","db_dsn":"postgres://u:p@db:5432/tasks","jwt_secret":"s","bcrypt_cost":4}`)

	cfg, err := LoadConfig([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, "postgres://u:p@db:5432/tasks", cfg.DSN())
	assert.Equal(t, 4, cfg.BcryptCost)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		file    string
		content string
		wantErr error
	}{
		{
			name:    "missing secret",
			env:     map[string]string{"STORAGE": StorageMemory},
			wantErr: errors.ErrConfigMissing,
		},
		{
			name:    "missing database settings",
			env:     map[string]string{"JWT_SECRET": "s", "DB_HOST": "localhost"},
			wantErr: errors.ErrConfigMissing,
		},
		{
			name:    "bad port",
			env:     map[string]string{"JWT_SECRET": "s", "STORAGE": StorageMemory, "PORT": "eighty"},
			wantErr: errors.ErrConfigInvalidFormat,
		},
		{
			name:    "port out of range",
			env:     map[string]string{"JWT_SECRET": "s", "STORAGE": StorageMemory, "PORT": "70000"},
			wantErr: errors.ErrConfigInvalidFormat,
		},
		{
			name:    "unknown storage",
			env:     map[string]string{"JWT_SECRET": "s", "STORAGE": "redis"},
			wantErr: errors.ErrConfigInvalidFormat,
		},
		{
			name:    "unknown env",
			env:     map[string]string{"JWT_SECRET": "s", "STORAGE": StorageMemory, "APP_ENV": "staging"},
			wantErr: errors.ErrConfigInvalidFormat,
		},
		{
			name:    "bad ttl",
			env:     map[string]string{"JWT_SECRET": "s", "STORAGE": StorageMemory, "TOKEN_TTL": "forever"},
			wantErr: errors.ErrConfigInvalidFormat,
		},
		{
			name:    "unparsable file",
			file:    "config.json",
			content: "{not json",
			wantErr: errors.ErrConfigParseFailed,
		},
		{
			name:    "missing file",
			env:     map[string]string{"CONFIG": "/does/not/exist.yaml"},
			wantErr: errors.ErrConfigFileReadFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var args []string
			if tt.file != "" {
				args = []string{"--config", writeFile(t, tt.file, tt.content)}
			}

			cfg, err := LoadConfig(args)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, cfg)
		})
	}
}

func TestConfigDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBHost = "db"
	cfg.DBName = "tasks"
	cfg.DBUser = "app"
	cfg.DBPassword = "p@ss word"

	assert.Equal(t, "postgres://app:p%40ss%20word@db:5432/tasks?sslmode=disable", cfg.DSN())

	cfg.DBDSN = "postgres://override"
	assert.Equal(t, "postgres://override", cfg.DSN())
}
