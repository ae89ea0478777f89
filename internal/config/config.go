// Package config loads runtime settings for portero from an optional .env
// file, an optional YAML file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config holds runtime settings for the gateway.
type Config struct {
	AppEnv string
	Port   string

	SigningSecret string
	TokenTTL      time.Duration
	TokenIssuer   string
	BcryptCost    int

	Store          StoreConfig
	RejectInactive bool

	AllowedOrigins  []string
	AuthRoutePrefix string
	ServiceBanner   string
	HealthTimeout   time.Duration

	EventsRedisURL string
	EventsTopic    string

	LogLevel  string
	LogFormat string

	SeedUsers []SeedUser
}

// StoreConfig selects and addresses the hosted credential store.
type StoreConfig struct {
	Driver    string
	Endpoint  string
	Key       string
	KeyPrefix string
	Schema    Schema
}

// Schema names the users table and its columns.
type Schema struct {
	Table        string `yaml:"table"`
	ID           string `yaml:"id"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	CreatedAt    string `yaml:"created_at"`
	LastLogin    string `yaml:"last_login"`
	Active       string `yaml:"active"`
	AccountType  string `yaml:"account_type"`
}

// SeedUser is a row preloaded into the memory store.
type SeedUser struct {
	ID           string `yaml:"id"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Active       *bool  `yaml:"active"`
	AccountType  string `yaml:"account_type"`
}

// IsDevelopment reports whether APP_ENV selects development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// LoadDefaults populates Config with development-friendly defaults. The
// signing secret and store address have no default.
func (c *Config) LoadDefaults() {
	c.AppEnv = "production"
	c.Port = "5000"
	c.TokenTTL = 24 * time.Hour
	c.TokenIssuer = "portero"
	c.BcryptCost = 12
	c.Store = StoreConfig{
		Driver:    DriverPostgres,
		KeyPrefix: "portero:",
		Schema:    DefaultSchema(),
	}
	c.AllowedOrigins = []string{"http://localhost:3000"}
	c.AuthRoutePrefix = "/auth"
	c.ServiceBanner = "portero authentication gateway"
	c.HealthTimeout = 3 * time.Second
	c.EventsTopic = "portero.session"
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// DefaultSchema is the column layout used when none is configured.
func DefaultSchema() Schema {
	return Schema{
		Table:        "users",
		ID:           "id",
		Username:     "username",
		PasswordHash: "password_hash",
		CreatedAt:    "created_at",
		LastLogin:    "last_login",
		Active:       "active",
		AccountType:  "account_type",
	}
}

// Load builds a Config from defaults, the dotenv file, CONFIG_FILE and the
// environment, then validates it.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{}
	cfg.LoadDefaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile reads .env.development in development and .env otherwise.
// A missing file is not an error.
func loadEnvFile() {
	name := ".env"
	if strings.EqualFold(os.Getenv("APP_ENV"), "development") {
		name = ".env.development"
	}
	_ = godotenv.Load(name)
}

func (c *Config) loadEnv() error {
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.Port = getEnv("PORT", c.Port)

	c.SigningSecret = getEnv("SIGNING_SECRET", getEnv("JWT_SECRET", c.SigningSecret))
	c.TokenIssuer = getEnv("TOKEN_ISSUER", c.TokenIssuer)

	ttl, err := getEnvAsInt("TOKEN_TTL_SECONDS", int(c.TokenTTL/time.Second))
	if err != nil {
		return err
	}
	c.TokenTTL = time.Duration(ttl) * time.Second

	if c.BcryptCost, err = getEnvAsInt("BCRYPT_COST", c.BcryptCost); err != nil {
		return err
	}

	// SUPABASE_URL and SUPABASE_KEY address a project's REST API
	if url := os.Getenv("SUPABASE_URL"); url != "" && os.Getenv("STORE_ENDPOINT") == "" {
		c.Store.Driver = DriverSupabase
		c.Store.Endpoint = url
	}
	c.Store.Driver = strings.ToLower(getEnv("STORE_DRIVER", c.Store.Driver))
	c.Store.Endpoint = getEnv("STORE_ENDPOINT", c.Store.Endpoint)
	c.Store.Key = getEnv("STORE_KEY", getEnv("SUPABASE_KEY", c.Store.Key))
	c.Store.KeyPrefix = getEnv("STORE_KEY_PREFIX", c.Store.KeyPrefix)
	c.Store.Schema.Table = getEnv("USERS_TABLE", c.Store.Schema.Table)

	if c.RejectInactive, err = getEnvAsBool("REJECT_INACTIVE", c.RejectInactive); err != nil {
		return err
	}

	if origins := getEnv("ALLOWED_ORIGINS", os.Getenv("CORS_ORIGINS")); origins != "" {
		c.AllowedOrigins = parseCSV(origins)
	}
	c.AuthRoutePrefix = getEnv("AUTH_ROUTE_PREFIX", c.AuthRoutePrefix)
	c.ServiceBanner = getEnv("SERVICE_BANNER", c.ServiceBanner)

	timeout, err := getEnvAsInt("HEALTH_TIMEOUT_SECONDS", int(c.HealthTimeout/time.Second))
	if err != nil {
		return err
	}
	c.HealthTimeout = time.Duration(timeout) * time.Second

	c.EventsRedisURL = getEnv("EVENTS_REDIS_URL", c.EventsRedisURL)
	c.EventsTopic = getEnv("EVENTS_TOPIC", c.EventsTopic)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	return nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	var errs []error

	if c.SigningSecret == "" {
		errs = append(errs, errors.New("SIGNING_SECRET is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL_SECONDS must be positive"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.HealthTimeout <= 0 {
		errs = append(errs, errors.New("HEALTH_TIMEOUT_SECONDS must be positive"))
	}

	switch c.Store.Driver {
	case DriverPostgres, DriverSupabase, DriverRedis:
		if c.Store.Endpoint == "" {
			errs = append(errs, errors.New("STORE_ENDPOINT is required"))
		}
		if c.Store.Key == "" {
			errs = append(errs, errors.New("STORE_KEY is required"))
		}
		if c.Store.Driver == DriverSupabase && c.Store.Endpoint != "" &&
			!strings.HasPrefix(c.Store.Endpoint, "https://") && !strings.HasPrefix(c.Store.Endpoint, "http://") {
			errs = append(errs, errors.New("STORE_ENDPOINT must be the project's http(s) URL for the supabase driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	if c.Store.Schema.Table == "" {
		errs = append(errs, errors.New("users table name is empty"))
	}
	if !strings.HasPrefix(c.AuthRoutePrefix, "/") {
		errs = append(errs, errors.New("AUTH_ROUTE_PREFIX must start with /"))
	}
	for _, o := range c.AllowedOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			errs = append(errs, fmt.Errorf("ALLOWED_ORIGINS: %q must be * or start with http:// or https://", o))
		}
	}

	return errors.Join(errs...)
}

// fileConfig is the YAML layout of CONFIG_FILE. Only non-zero values
// override the defaults.
type fileConfig struct {
	Server struct {
		Port            string   `yaml:"port"`
		AllowedOrigins  []string `yaml:"allowed_origins"`
		AuthRoutePrefix string   `yaml:"auth_route_prefix"`
		ServiceBanner   string   `yaml:"service_banner"`
	} `yaml:"server"`
	Token struct {
		TTLSeconds int    `yaml:"ttl_seconds"`
		Issuer     string `yaml:"issuer"`
		BcryptCost int    `yaml:"bcrypt_cost"`
	} `yaml:"token"`
	Store struct {
		Driver         string `yaml:"driver"`
		Endpoint       string `yaml:"endpoint"`
		KeyPrefix      string `yaml:"key_prefix"`
		RejectInactive *bool  `yaml:"reject_inactive"`
		Schema         Schema `yaml:"schema"`
	} `yaml:"store"`
	Events struct {
		RedisURL string `yaml:"redis_url"`
		Topic    string `yaml:"topic"`
	} `yaml:"events"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	SeedUsers []SeedUser `yaml:"seed_users"`
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Port, f.Server.Port)
	if len(f.Server.AllowedOrigins) > 0 {
		c.AllowedOrigins = f.Server.AllowedOrigins
	}
	setString(&c.AuthRoutePrefix, f.Server.AuthRoutePrefix)
	setString(&c.ServiceBanner, f.Server.ServiceBanner)

	if f.Token.TTLSeconds > 0 {
		c.TokenTTL = time.Duration(f.Token.TTLSeconds) * time.Second
	}
	setString(&c.TokenIssuer, f.Token.Issuer)
	if f.Token.BcryptCost > 0 {
		c.BcryptCost = f.Token.BcryptCost
	}

	setString(&c.Store.Driver, f.Store.Driver)
	setString(&c.Store.Endpoint, f.Store.Endpoint)
	setString(&c.Store.KeyPrefix, f.Store.KeyPrefix)
	if f.Store.RejectInactive != nil {
		c.RejectInactive = *f.Store.RejectInactive
	}
	c.Store.Schema.merge(f.Store.Schema)

	setString(&c.EventsRedisURL, f.Events.RedisURL)
	setString(&c.EventsTopic, f.Events.Topic)
	setString(&c.LogLevel, f.Log.Level)
	setString(&c.LogFormat, f.Log.Format)

	c.SeedUsers = f.SeedUsers
	return nil
}

func (s *Schema) merge(o Schema) {
	setString(&s.Table, o.Table)
	setString(&s.ID, o.ID)
	setString(&s.Username, o.Username)
	setString(&s.PasswordHash, o.PasswordHash)
	setString(&s.CreatedAt, o.CreatedAt)
	setString(&s.LastLogin, o.LastLogin)
	setString(&s.Active, o.Active)
	setString(&s.AccountType, o.AccountType)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// getEnv returns the variable's value, or defaultValue when it is unset or empty.
func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

// parseCSV splits a comma-separated list, dropping empty entries.
func parseCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
