package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/code100x/contestauth"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Server is the process configuration of contestauth-server.
type Server struct {
	Env      string        `mapstructure:"env"`
	LogLevel string        `mapstructure:"log_level"`
	HTTP     HTTPConfig    `mapstructure:"http"`
	Redis    RedisConfig   `mapstructure:"redis"`
	Mongo    MongoConfig   `mapstructure:"mongo"`
	Auth     AuthConfig    `mapstructure:"auth"`
	SMTP     SMTPConfig    `mapstructure:"smtp"`
	Admin    AdminConfig   `mapstructure:"admin"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
}

type HTTPConfig struct {
	Port              int           `mapstructure:"port"`
	Prefix            string        `mapstructure:"prefix"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	TrustProxyHeaders bool          `mapstructure:"trust_proxy_headers"`
	AccessLog         bool          `mapstructure:"access_log"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig selects the Redis backend. An empty URL starts an in-process
// miniredis, which is refused in production.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// MongoConfig selects the user store. An empty URI keeps users in memory.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	OTPTTL        time.Duration `mapstructure:"otp_ttl"`
	OTPAttempts   int           `mapstructure:"otp_max_attempts"`
	CookieDomain  string        `mapstructure:"cookie_domain"`
	ExposeDevCode bool          `mapstructure:"expose_dev_code"`
	IPThrottle    bool          `mapstructure:"ip_throttle"`
	Audit         bool          `mapstructure:"audit"`
}

// SMTPConfig is unused when Host is empty; codes are then logged.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Production reports whether Env names a production deployment.
func (s *Server) Production() bool {
	return strings.EqualFold(s.Env, "production") || strings.EqualFold(s.Env, "prod")
}

func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.HTTP.Port)
}

// SlogLevel maps LogLevel to a slog level; unknown values mean info.
func (s *Server) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("http.port", 3000)
	v.SetDefault("http.prefix", "/api/v1/user")
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.trust_proxy_headers", false)
	v.SetDefault("http.access_log", true)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("redis.url", "")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "contest")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 30*24*time.Hour)
	v.SetDefault("auth.otp_ttl", 5*time.Minute)
	v.SetDefault("auth.otp_max_attempts", 5)
	v.SetDefault("auth.cookie_domain", "")
	v.SetDefault("auth.expose_dev_code", false)
	v.SetDefault("auth.ip_throttle", true)
	v.SetDefault("auth.audit", false)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")

	v.SetDefault("metrics.enabled", true)
}

// Short names accepted alongside the derived ones (HTTP_PORT, AUTH_JWT_SECRET, ...).
var envAliases = map[string][]string{
	"env":             {"APP_ENV"},
	"http.port":       {"PORT"},
	"redis.url":       {"REDIS_URL"},
	"mongo.uri":       {"MONGO_URI", "DATABASE_URL"},
	"auth.jwt_secret": {"JWT_SECRET"},
	"smtp.from":       {"FROM_EMAIL"},
	"smtp.password":   {"SMTP_PASS"},
	"admin.email":     {"ADMIN_EMAIL"},
	"admin.password":  {"ADMIN_PASSWORD"},
}

// Load reads .env files (missing ones are skipped), then the optional config
// file at path, then the environment. Later sources win.
func Load(path string, dotenv ...string) (*Server, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		// The derived name must stay bound when aliases are added.
		bind := append([]string{key, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(bind...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Server{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.HTTP.AllowedOrigins = splitList(cfg.HTTP.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts both a list and a single comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (s *Server) Validate() error {
	if s.HTTP.Port <= 0 || s.HTTP.Port > 65535 {
		return fmt.Errorf("config: invalid http port %d", s.HTTP.Port)
	}
	if s.Auth.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if (s.Admin.Email == "") != (s.Admin.Password == "") {
		return errors.New("config: ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	if s.SMTP.Host != "" && s.SMTP.From == "" {
		return errors.New("config: smtp.from is required when smtp.host is set")
	}
	if s.Production() {
		if s.Redis.URL == "" {
			return errors.New("config: production requires REDIS_URL")
		}
		if s.SMTP.Host == "" {
			return errors.New("config: production requires an SMTP relay")
		}
	}
	return nil
}

// Engine builds the library configuration. The result is checked again by
// the engine builder, which enforces the production hardening rules.
func (s *Server) Engine() contestauth.Config {
	cfg := contestauth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(s.Auth.JWTSecret)
	cfg.JWT.AccessTTL = s.Auth.AccessTTL
	cfg.JWT.RefreshTTL = s.Auth.RefreshTTL
	cfg.OTP.TTL = s.Auth.OTPTTL
	cfg.OTP.MaxAttempts = s.Auth.OTPAttempts
	cfg.OTP.ExposeDevCode = s.Auth.ExposeDevCode && !s.Production()
	cfg.Cookie.Domain = s.Auth.CookieDomain
	cfg.Audit.Enabled = s.Auth.Audit
	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = s.Metrics.Enabled
	cfg.Security.ProductionMode = s.Production()
	cfg.Security.EnableIPThrottle = s.Auth.IPThrottle
	return cfg
}
