package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pkglogger "github.com/damoang/coinchat/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Config 애플리케이션 설정
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	CORS      CORSConfig      `yaml:"cors"`
	Coins     CoinsConfig     `yaml:"coins"`
	Chat      ChatConfig      `yaml:"chat"`
	Typing    TypingConfig    `yaml:"typing"`
	Razorpay  RazorpayConfig  `yaml:"razorpay"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Env  string `yaml:"env"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// GetDSN MySQL DSN
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.DBName)
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	ExpiresIn time.Duration `yaml:"expires_in"`
}

type CORSConfig struct {
	AllowOrigins string `yaml:"allow_origins"`
}

// CoinsConfig wallet rules.
type CoinsConfig struct {
	FreeGrant int    `yaml:"free_grant"`
	Currency  string `yaml:"currency"`
}

// ChatConfig messaging limits.
type ChatConfig struct {
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
	DefaultPageSize int           `yaml:"default_page_size"`
	MaxPageSize     int           `yaml:"max_page_size"`
	PartnerLimit    int           `yaml:"partner_limit"`
	MaxPartnerLimit int           `yaml:"max_partner_limit"`
}

// TypingConfig presence timings.
type TypingConfig struct {
	StartThrottle time.Duration `yaml:"start_throttle"`
	IdleStop      time.Duration `yaml:"idle_stop"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

type RazorpayConfig struct {
	KeyID         string `yaml:"key_id"`
	KeySecret     string `yaml:"key_secret"`
	WebhookSecret string `yaml:"webhook_secret"`
	BaseURL       string `yaml:"base_url"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// Enabled reports whether domain events should be published.
func (a AMQPConfig) Enabled() bool {
	return a.URL != ""
}

type RateLimitConfig struct {
	SendPerMinute int `yaml:"send_per_minute"`
	APIPerMinute  int `yaml:"api_per_minute"`
}

// Default returns a config usable for local development and tests.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, Env: "development"},
		Database: DatabaseConfig{Host: "localhost", Port: 3306, User: "root", DBName: "coinchat", MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: 5 * time.Minute},
		Redis:    RedisConfig{Host: "localhost", Port: 6379, PoolSize: 10},
		JWT:      JWTConfig{ExpiresIn: 24 * time.Hour},
		CORS:     CORSConfig{AllowOrigins: "http://localhost:3000"},
		Coins:    CoinsConfig{FreeGrant: 20, Currency: "INR"},
		Chat: ChatConfig{
			DuplicateWindow: 3 * time.Second,
			DefaultPageSize: 20,
			MaxPageSize:     100,
			PartnerLimit:    50,
			MaxPartnerLimit: 100,
		},
		Typing: TypingConfig{
			StartThrottle: 450 * time.Millisecond,
			IdleStop:      1200 * time.Millisecond,
			StaleAfter:    2500 * time.Millisecond,
		},
		AMQP:      AMQPConfig{Exchange: "coinchat.events"},
		RateLimit: RateLimitConfig{SendPerMinute: 60, APIPerMinute: 600},
	}
}

// Load reads the YAML file at path over Default(), expanding ${VAR} references,
// then applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Env, "APP_ENV")
	setInt(&cfg.Server.Port, "PORT")
	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.DBName, "DB_NAME")
	setString(&cfg.Redis.Host, "REDIS_HOST")
	setInt(&cfg.Redis.Port, "REDIS_PORT")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.JWT.Secret, "JWT_SECRET")
	setString(&cfg.CORS.AllowOrigins, "CORS_ALLOW_ORIGINS")
	setString(&cfg.Razorpay.KeyID, "RAZORPAY_KEY_ID")
	setString(&cfg.Razorpay.KeySecret, "RAZORPAY_KEY_SECRET")
	setString(&cfg.Razorpay.WebhookSecret, "RAZORPAY_WEBHOOK_SECRET")
	setString(&cfg.AMQP.URL, "RABBITMQ_URL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// IsDevelopment 개발 환경 여부
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev" || c.Server.Env == "local"
}

// Validate checks invariants that must hold before serving traffic.
func (c *Config) Validate() error {
	var problems []string
	if c.Coins.FreeGrant < 0 {
		problems = append(problems, "coins.free_grant must be >= 0")
	}
	if c.Chat.MaxPageSize < 1 || c.Chat.DefaultPageSize < 1 || c.Chat.DefaultPageSize > c.Chat.MaxPageSize {
		problems = append(problems, "chat page sizes must satisfy 1 <= default <= max")
	}
	if !c.IsDevelopment() {
		if c.JWT.Secret == "" {
			problems = append(problems, "jwt.secret is required")
		}
		if c.Razorpay.KeySecret == "" {
			problems = append(problems, "razorpay.key_secret is required")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LogResolved prints the effective settings with secrets masked.
func LogResolved(cfg *Config) {
	pkglogger.GetLogger().Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Str("db", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)).
		Str("redis", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)).
		Bool("jwt_secret_set", cfg.JWT.Secret != "").
		Bool("razorpay_secret_set", cfg.Razorpay.KeySecret != "").
		Bool("amqp_enabled", cfg.AMQP.Enabled()).
		Int("free_grant", cfg.Coins.FreeGrant).
		Dur("duplicate_window", cfg.Chat.DuplicateWindow).
		Msg("configuration resolved")
}
