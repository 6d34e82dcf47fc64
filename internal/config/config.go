package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	AWS       AWSConfig       `yaml:"aws"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Identity  IdentityConfig  `yaml:"identity"`
	APNs      APNsConfig      `yaml:"apns"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Media     MediaConfig     `yaml:"media"`
	Friends   FriendsConfig   `yaml:"friends"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration. Driver "memory" keeps all
// records and payloads in process memory and ignores the connection and
// S3 settings.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
	Migrate  bool   `yaml:"migrate"`
}

// AWSConfig holds S3 asset storage configuration
type AWSConfig struct {
	Region     string        `yaml:"region"`
	S3Bucket   string        `yaml:"s3_bucket"`
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	Endpoint   string        `yaml:"endpoint"` // S3-compatible providers
	PathStyle  bool          `yaml:"path_style"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// IdentityConfig selects how POST /users credentials are verified.
// Mode "device" trusts the credential as an installation id, "firebase"
// verifies it as a Firebase ID token.
type IdentityConfig struct {
	Mode            string `yaml:"mode"`
	CredentialsFile string `yaml:"credentials_file"`
}

// APNsConfig enables offline delivery notifications
type APNsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CertificateFile string `yaml:"certificate_file"`
	Password        string `yaml:"password"`
	Topic           string `yaml:"topic"`
	Production      bool   `yaml:"production"`
}

// RateLimitConfig holds per-IP limiter settings
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// RefreshConfig controls the periodic history refresher
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
	Budget   time.Duration `yaml:"budget"`
}

// MediaConfig bounds uploads and history pages
type MediaConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	HistoryLimit   int   `yaml:"history_limit"`
}

// FriendsConfig controls friend list presentation.
// SortMode is "collate" (locale-aware, case-insensitive) or "bytewise".
type FriendsConfig struct {
	SortMode string `yaml:"sort_mode"`
}

// Default returns a configuration with every optional value filled in
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			SSLMode:  "disable",
			MaxConns: 25,
			MinConns: 2,
			Migrate:  true,
		},
		AWS: AWSConfig{
			Region:     "us-east-1",
			PresignTTL: 15 * time.Minute,
		},
		JWT:       JWTConfig{TTL: 365 * 24 * time.Hour},
		Log:       LogConfig{Level: "info"},
		Identity:  IdentityConfig{Mode: "device"},
		RateLimit: RateLimitConfig{RPS: 5, Burst: 30},
		Refresh: RefreshConfig{
			Interval: 6 * time.Hour,
			Budget:   25 * time.Second,
		},
		Media: MediaConfig{
			MaxUploadBytes: 50 << 20,
			HistoryLimit:   100,
		},
		Friends: FriendsConfig{SortMode: "collate"},
	}
}

// Load reads configuration from a YAML file, then applies .env and
// environment overrides. A missing file is not an error: defaults and
// the environment are enough to run.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnv(cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "PORT")
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.Host, "DATABASE_HOST")
	setInt(&cfg.Database.Port, "DATABASE_PORT")
	setString(&cfg.Database.User, "DATABASE_USER")
	setString(&cfg.Database.Password, "DATABASE_PASSWORD")
	setString(&cfg.Database.DBName, "DATABASE_NAME")
	setString(&cfg.AWS.Region, "AWS_REGION")
	setString(&cfg.AWS.S3Bucket, "S3_BUCKET")
	setString(&cfg.AWS.AccessKey, "AWS_ACCESS_KEY_ID")
	setString(&cfg.AWS.SecretKey, "AWS_SECRET_ACCESS_KEY")
	setString(&cfg.AWS.Endpoint, "S3_ENDPOINT")
	setString(&cfg.JWT.Secret, "JWT_SECRET")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Identity.Mode, "IDENTITY_MODE")
	setString(&cfg.Identity.CredentialsFile, "FIREBASE_CREDENTIALS_FILE")
	setString(&cfg.APNs.Password, "APNS_CERT_PASSWORD")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "warning" {
		c.Log.Level = "warn"
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Identity.Mode = strings.ToLower(strings.TrimSpace(c.Identity.Mode))
	c.Friends.SortMode = strings.ToLower(strings.TrimSpace(c.Friends.SortMode))
	if c.Media.HistoryLimit <= 0 {
		c.Media.HistoryLimit = 100
	}
	if c.Refresh.Budget <= 0 {
		c.Refresh.Budget = 25 * time.Second
	}
}

// Validate checks the values that have no safe default
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "postgres":
		if c.AWS.S3Bucket == "" {
			return errors.New("aws.s3_bucket is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	switch c.Identity.Mode {
	case "device":
	case "firebase":
		if c.Identity.CredentialsFile == "" {
			return errors.New("identity.credentials_file is required in firebase mode")
		}
	default:
		return fmt.Errorf("unknown identity.mode %q", c.Identity.Mode)
	}
	switch c.Friends.SortMode {
	case "collate", "bytewise":
	default:
		return fmt.Errorf("unknown friends.sort_mode %q", c.Friends.SortMode)
	}
	if c.APNs.Enabled && (c.APNs.CertificateFile == "" || c.APNs.Topic == "") {
		return errors.New("apns.certificate_file and apns.topic are required when apns is enabled")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 1 {
		return errors.New("rate_limit.rps must be >= 0 and rate_limit.burst >= 1")
	}
	if c.Refresh.Interval <= 0 {
		return errors.New("refresh.interval must be positive")
	}
	return nil
}

// Addr returns the listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
