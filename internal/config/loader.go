// Package config loads the service configuration. Sources are applied in increasing order of
// precedence: built-in defaults, an optional YAML file, a .env file, the process environment and
// finally command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/example/meeting-service/internal/logging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MEETINGS_"

// MinSecretLength is the shortest accepted JWT secret.
const MinSecretLength = 32

// Config captures the service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// CORSAllowedOrigins lists browser origins allowed to call the API. "*" allows any origin.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// Addr returns the listen address.
func (c HTTPConfig) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// DatabaseConfig selects the storage backend. DSN is a file path for sqlite and a connection
// string for postgres.
type DatabaseConfig struct {
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"dsn"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	// MaxIdleConns and ConnMaxLifetime apply to postgres only; sqlite uses a single connection.
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AuthConfig holds token settings. NextAuthSecret enables session cookie authentication.
type AuthConfig struct {
	JWTSecret      string        `yaml:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	NextAuthSecret string        `yaml:"nextauth_secret"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Logging converts the settings for logging.New.
func (c LogConfig) Logging() logging.Config {
	return logging.Config{
		Level:  c.Level,
		Format: c.Format,
		File: logging.FileConfig{
			Path:       c.File,
			MaxSizeMB:  c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAgeDays: c.MaxAgeDays,
			Compress:   c.Compress,
		},
	}
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Runtime bool `yaml:"runtime"`
}

// Default returns the built-in configuration. It lacks the JWT secret and is therefore not
// valid on its own.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:               8080,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       15 * time.Second,
			IdleTimeout:        60 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			CORSAllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:      "sqlite",
			DSN:         "data/meetings.db",
			BusyTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Log:  LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{
			Enabled: true,
			Runtime: true,
		},
	}
}

// Options tells Load where to read from. Zero values select the process defaults.
type Options struct {
	// Args are the command-line arguments without the program name.
	Args []string
	// LookupEnv replaces os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// EnvFile is the dotenv file to read; it is ignored when it does not exist.
	EnvFile string
	// Usage receives flag usage output.
	Usage io.Writer
}

// ErrHelp is returned when -h or --help was requested.
var ErrHelp = pflag.ErrHelp

// Load builds the configuration. Every missing or invalid key is reported in a single error.
func Load(opts Options) (Config, error) {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.EnvFile == "" {
		opts.EnvFile = ".env"
	}

	flags, values := newFlagSet(opts.Usage)
	if err := flags.Parse(opts.Args); err != nil {
		return Config{}, err
	}

	dotenv, err := readDotenv(opts.EnvFile)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := opts.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	cfg := Default()

	path := values.config
	if !flags.Changed("config") {
		if v, ok := lookup(EnvPrefix + "CONFIG"); ok {
			path = strings.TrimSpace(v)
		}
	}
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	p := &parser{lookup: lookup}
	p.applyEnv(&cfg)
	values.apply(flags, &cfg)
	p.validate(&cfg)

	if err := p.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readDotenv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return values, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

type flagValues struct {
	config   string
	port     int
	driver   string
	dsn      string
	logLevel string
}

func newFlagSet(usage io.Writer) (*pflag.FlagSet, *flagValues) {
	values := &flagValues{}
	flags := pflag.NewFlagSet("meetings", pflag.ContinueOnError)
	if usage != nil {
		flags.SetOutput(usage)
	} else {
		flags.SetOutput(io.Discard)
	}
	flags.StringVar(&values.config, "config", "", "path to a YAML configuration file")
	flags.IntVar(&values.port, "port", 0, "HTTP listen port")
	flags.StringVar(&values.driver, "db-driver", "", "storage driver (sqlite or postgres)")
	flags.StringVar(&values.dsn, "db-dsn", "", "sqlite file path or postgres connection string")
	flags.StringVar(&values.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	return flags, values
}

func (v *flagValues) apply(flags *pflag.FlagSet, cfg *Config) {
	if flags.Changed("port") {
		cfg.HTTP.Port = v.port
	}
	if flags.Changed("db-driver") {
		cfg.Database.Driver = v.driver
	}
	if flags.Changed("db-dsn") {
		cfg.Database.DSN = v.dsn
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = v.logLevel
	}
}

type parser struct {
	lookup  func(string) (string, bool)
	missing []string
	invalid []string
}

func (p *parser) env(name string) (string, bool) {
	v, ok := p.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) string(name string, dst *string) {
	if v, ok := p.env(name); ok {
		*dst = v
	}
}

func (p *parser) int(name string, dst *int) {
	if v, ok := p.env(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			p.invalid = append(p.invalid, EnvPrefix+name)
			return
		}
		*dst = n
	}
}

func (p *parser) duration(name string, dst *time.Duration) {
	if v, ok := p.env(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			p.invalid = append(p.invalid, EnvPrefix+name)
			return
		}
		*dst = d
	}
}

func (p *parser) bool(name string, dst *bool) {
	if v, ok := p.env(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.invalid = append(p.invalid, EnvPrefix+name)
			return
		}
		*dst = b
	}
}

func (p *parser) list(name string, dst *[]string) {
	v, ok := p.env(name)
	if !ok {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

func (p *parser) applyEnv(cfg *Config) {
	p.int("HTTP_PORT", &cfg.HTTP.Port)
	p.duration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	p.duration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	p.duration("HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout)
	p.duration("HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)
	p.list("HTTP_CORS_ALLOWED_ORIGINS", &cfg.HTTP.CORSAllowedOrigins)

	p.string("DB_DRIVER", &cfg.Database.Driver)
	p.string("DB_DSN", &cfg.Database.DSN)
	p.duration("DB_BUSY_TIMEOUT", &cfg.Database.BusyTimeout)
	p.int("DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	p.int("DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)
	p.duration("DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)

	p.string("JWT_SECRET", &cfg.Auth.JWTSecret)
	p.duration("TOKEN_TTL", &cfg.Auth.TokenTTL)
	p.string("NEXTAUTH_SECRET", &cfg.Auth.NextAuthSecret)

	p.string("LOG_LEVEL", &cfg.Log.Level)
	p.string("LOG_FORMAT", &cfg.Log.Format)
	p.string("LOG_FILE", &cfg.Log.File)
	p.int("LOG_MAX_SIZE_MB", &cfg.Log.MaxSizeMB)
	p.int("LOG_MAX_BACKUPS", &cfg.Log.MaxBackups)
	p.int("LOG_MAX_AGE_DAYS", &cfg.Log.MaxAgeDays)
	p.bool("LOG_COMPRESS", &cfg.Log.Compress)

	p.bool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	p.bool("METRICS_RUNTIME", &cfg.Metrics.Runtime)
}

// validate checks the merged configuration. Keys are reported by their environment name.
func (p *parser) validate(cfg *Config) {
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		p.invalidKey("HTTP_PORT")
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		p.invalidKey("DB_DRIVER")
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		p.missingKey("DB_DSN")
	}

	switch secret := cfg.Auth.JWTSecret; {
	case secret == "":
		p.missingKey("JWT_SECRET")
	case len(secret) < MinSecretLength:
		p.invalidKey("JWT_SECRET")
	}
	if cfg.Auth.TokenTTL <= 0 {
		p.invalidKey("TOKEN_TTL")
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		p.invalidKey("LOG_LEVEL")
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		p.invalidKey("LOG_FORMAT")
	}
}

func (p *parser) missingKey(name string) {
	p.missing = appendUnique(p.missing, EnvPrefix+name)
}

func (p *parser) invalidKey(name string) {
	p.invalid = appendUnique(p.invalid, EnvPrefix+name)
}

func (p *parser) err() error {
	var errs []error
	if len(p.missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required configuration: %s", strings.Join(p.missing, ", ")))
	}
	if len(p.invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid configuration values: %s", strings.Join(p.invalid, ", ")))
	}
	return errors.Join(errs...)
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
