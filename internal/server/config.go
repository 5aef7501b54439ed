package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"taskboard/internal/domain/errors"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Config is built once at startup and passed by pointer to every component
// that needs it.
type Config struct {
	Env            string
	Addr           string
	Port           int
	Storage        string
	DBHost         string
	DBPort         int
	DBName         string
	DBUser         string
	DBPassword     string
	DBSSLMode      string
	DBDSN          string
	MigratePath    string
	JWTSecret      string
	TokenTTL       time.Duration
	BcryptCost     int
	AllowedOrigins []string
}

const (
	defaultEnv         = EnvLocal
	defaultAddr        = "0.0.0.0"
	defaultPort        = 8080
	defaultDBPort      = 5432
	defaultSSLMode     = "disable"
	defaultMigratePath = "migrations"
	defaultTokenTTL    = 24 * time.Hour
)

func DefaultConfig() *Config {
	return &Config{
		Env:            defaultEnv,
		Addr:           defaultAddr,
		Port:           defaultPort,
		Storage:        StoragePostgres,
		DBPort:         defaultDBPort,
		DBSSLMode:      defaultSSLMode,
		MigratePath:    defaultMigratePath,
		TokenTTL:       defaultTokenTTL,
		AllowedOrigins: []string{"*"},
	}
}

// fileConfig mirrors Config for JSON and YAML files. Pointer fields let a
// file override only what it mentions.
type fileConfig struct {
	Env            *string  `json:"env" yaml:"env"`
	Addr           *string  `json:"addr" yaml:"addr"`
	Port           *int     `json:"port" yaml:"port"`
	Storage        *string  `json:"storage" yaml:"storage"`
	DBHost         *string  `json:"db_host" yaml:"db_host"`
	DBPort         *int     `json:"db_port" yaml:"db_port"`
	DBName         *string  `json:"db_name" yaml:"db_name"`
	DBUser         *string  `json:"db_user" yaml:"db_user"`
	DBPassword     *string  `json:"db_password" yaml:"db_password"`
	DBSSLMode      *string  `json:"db_sslmode" yaml:"db_sslmode"`
	DBDSN          *string  `json:"db_dsn" yaml:"db_dsn"`
	MigratePath    *string  `json:"migrate_path" yaml:"migrate_path"`
	JWTSecret      *string  `json:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL       *string  `json:"token_ttl" yaml:"token_ttl"`
	BcryptCost     *int     `json:"bcrypt_cost" yaml:"bcrypt_cost"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// LoadConfig resolves configuration from defaults, an optional config file,
// the environment and finally command-line flags, then validates it.
func LoadConfig(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("taskboard", pflag.ContinueOnError)
	configFile := fs.StringP("config", "c", "", "path to a JSON or YAML config file")
	fs.String("env", defaultEnv, "environment: local, dev or prod")
	fs.String("addr", defaultAddr, "listen address")
	fs.Int("port", defaultPort, "listen port")
	fs.String("storage", StoragePostgres, "storage backend: postgres or memory")
	fs.String("dsn", "", "database DSN (overrides the DB_* settings)")
	fs.String("migrate-path", defaultMigratePath, "directory with SQL migrations")
	fs.Duration("token-ttl", defaultTokenTTL, "lifetime of issued tokens")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	path := *configFile
	if path == "" {
		path = os.Getenv("CONFIG")
	}
	if path != "" {
		if err := loadConfigFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyFlagOverrides(fs, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w %s: %v", errors.ErrConfigFileReadFailed, path, err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("%w %s: %v", errors.ErrConfigParseFailed, path, err)
	}
	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.Env, fc.Env)
	setString(&cfg.Addr, fc.Addr)
	setInt(&cfg.Port, fc.Port)
	setString(&cfg.Storage, fc.Storage)
	setString(&cfg.DBHost, fc.DBHost)
	setInt(&cfg.DBPort, fc.DBPort)
	setString(&cfg.DBName, fc.DBName)
	setString(&cfg.DBUser, fc.DBUser)
	setString(&cfg.DBPassword, fc.DBPassword)
	setString(&cfg.DBSSLMode, fc.DBSSLMode)
	setString(&cfg.DBDSN, fc.DBDSN)
	setString(&cfg.MigratePath, fc.MigratePath)
	setString(&cfg.JWTSecret, fc.JWTSecret)
	setInt(&cfg.BcryptCost, fc.BcryptCost)
	if fc.TokenTTL != nil {
		ttl, err := time.ParseDuration(*fc.TokenTTL)
		if err != nil {
			return fmt.Errorf("%w: token_ttl %q", errors.ErrConfigInvalidFormat, *fc.TokenTTL)
		}
		cfg.TokenTTL = ttl
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	envString := map[string]*string{
		"APP_ENV":      &cfg.Env,
		"ADDR":         &cfg.Addr,
		"STORAGE":      &cfg.Storage,
		"DB_HOST":      &cfg.DBHost,
		"DB_NAME":      &cfg.DBName,
		"DB_USER":      &cfg.DBUser,
		"DB_PASSWORD":  &cfg.DBPassword,
		"DB_SSLMODE":   &cfg.DBSSLMode,
		"DB_DSN":       &cfg.DBDSN,
		"MIGRATE_PATH": &cfg.MigratePath,
		"JWT_SECRET":   &cfg.JWTSecret,
	}
	for name, dst := range envString {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	envInt := map[string]*int{
		"PORT":        &cfg.Port,
		"DB_PORT":     &cfg.DBPort,
		"BCRYPT_COST": &cfg.BcryptCost,
	}
	for name, dst := range envInt {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", errors.ErrConfigInvalidFormat, name, v)
		}
		*dst = n
	}

	if v := os.Getenv("TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: TOKEN_TTL=%q", errors.ErrConfigInvalidFormat, v)
		}
		cfg.TokenTTL = ttl
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	return nil
}

// applyFlagOverrides copies only the flags given explicitly on the command line.
func applyFlagOverrides(fs *pflag.FlagSet, cfg *Config) {
	if fs.Changed("env") {
		cfg.Env, _ = fs.GetString("env")
	}
	if fs.Changed("addr") {
		cfg.Addr, _ = fs.GetString("addr")
	}
	if fs.Changed("port") {
		cfg.Port, _ = fs.GetInt("port")
	}
	if fs.Changed("storage") {
		cfg.Storage, _ = fs.GetString("storage")
	}
	if fs.Changed("dsn") {
		cfg.DBDSN, _ = fs.GetString("dsn")
	}
	if fs.Changed("migrate-path") {
		cfg.MigratePath, _ = fs.GetString("migrate-path")
	}
	if fs.Changed("token-ttl") {
		cfg.TokenTTL, _ = fs.GetDuration("token-ttl")
	}
}

// Validate reports the first configuration problem that must stop startup.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("%w: env %q", errors.ErrConfigInvalidFormat, c.Env)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", errors.ErrConfigInvalidFormat, c.Port)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: token ttl must be positive", errors.ErrConfigInvalidFormat)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET", errors.ErrConfigMissing)
	}

	switch c.Storage {
	case StorageMemory:
		return nil
	case StoragePostgres:
	default:
		return fmt.Errorf("%w: storage %q", errors.ErrConfigInvalidFormat, c.Storage)
	}
	if c.DBDSN != "" {
		return nil
	}
	var missing []string
	for name, v := range map[string]string{
		"DB_HOST":     c.DBHost,
		"DB_NAME":     c.DBName,
		"DB_USER":     c.DBUser,
		"DB_PASSWORD": c.DBPassword,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", errors.ErrConfigMissing, strings.Join(missing, ", "))
	}
	return nil
}

// DSN returns the database connection string.
func (c *Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.DBSSLMode}}.Encode(),
	}
	return u.String()
}

func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Addr, strconv.Itoa(c.Port))
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
