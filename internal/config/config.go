package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/service-desk/internal/client"
	"gopkg.in/yaml.v3"
)

// Config represents the desk configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Backend   BackendConfig    `yaml:"backend"`
	Auth      AuthConfig       `yaml:"auth"`
	Mongo     MongoConfig      `yaml:"mongo"`
	MQTT      MQTTConfig       `yaml:"mqtt"`
	Log       LogConfig        `yaml:"log"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Endpoints client.Endpoints `yaml:"endpoints"`

	// ConfigPath is the path to the config file (not serialized)
	ConfigPath string `yaml:"-"`
}

// ServerConfig represents the console server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
}

// BackendConfig points at the shop's REST backend
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig controls desk session tokens
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	TokenFile string        `yaml:"token_file"`
}

// MongoConfig configures the action journal. An empty URI disables it.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// MQTTConfig configures desk notifications. An empty broker disables them.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// LogConfig configures logrus
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig limits write requests per client. Clients are keyed by
// their remote address; forwarded headers count only with TrustProxy.
type RateLimitConfig struct {
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
	TrustProxy bool    `yaml:"trust_proxy"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Backend: BackendConfig{
			URL:     "http://localhost:8081",
			Timeout: 15 * time.Second,
		},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Mongo: MongoConfig{
			Database:   "service_desk",
			Collection: "journal",
		},
		MQTT: MQTTConfig{
			Topic:    "service-desk/notifications",
			ClientID: "service-desk",
		},
		Log:       LogConfig{Level: "info", Format: "text"},
		RateLimit: RateLimitConfig{RPS: 5, Burst: 10},
		Endpoints: client.DefaultEndpoints(),
	}
}

// Load reads .env (if present), then the YAML file named by DESK_CONFIG or
// found in the usual locations (if any), then applies environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("Failed to load .env file")
	}

	cfg := Default()

	configPaths := []string{"service-desk.yaml", "configs/service-desk.yaml", "/etc/service-desk/config.yaml"}
	if p := os.Getenv("DESK_CONFIG"); p != "" {
		configPaths = []string{p}
	}
	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && os.Getenv("DESK_CONFIG") == "" {
				continue
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.ConfigPath = path
		break
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("PORT", &c.Server.Port)
	setString("BACKEND_URL", &c.Backend.URL)
	setString("JWT_SECRET", &c.Auth.JWTSecret)
	setString("DESK_TOKEN_FILE", &c.Auth.TokenFile)
	setString("MONGO_URI", &c.Mongo.URI)
	setString("MONGO_DB", &c.Mongo.Database)
	setString("MQTT_BROKER", &c.MQTT.Broker)
	setString("MQTT_TOPIC", &c.MQTT.Topic)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)

	if v := os.Getenv("BACKEND_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BACKEND_TIMEOUT: %w", err)
		}
		c.Backend.Timeout = d
	}
	if v := os.Getenv("JWT_EXPIRY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid JWT_EXPIRY: %w", err)
		}
		c.Auth.TokenTTL = d
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
		}
		c.RateLimit.RPS = f
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
		}
		c.RateLimit.Burst = n
	}
	if v := os.Getenv("TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRUST_PROXY: %w", err)
		}
		c.RateLimit.TrustProxy = b
	}
	return nil
}

// Validate checks the settings the desk cannot run without.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend url is required")
	}
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	// Without a secret session roles are read from unverified tokens, which
	// must not guard the journal.
	if c.Mongo.URI != "" && c.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required when the action journal is enabled")
	}
	e := c.Endpoints
	for name, list := range map[string][]string{
		"completed_services": e.CompletedServices,
		"service":            e.Service,
		"invoice_details":    e.InvoiceDetails,
		"invoice":            e.Invoice,
		"payment":            e.Payment,
		"delivery":           e.Delivery,
		"login":              e.Login,
	} {
		if len(list) == 0 {
			return fmt.Errorf("endpoints.%s must list at least one path", name)
		}
	}
	return nil
}

// SetupLogging applies the log level and format to the standard logrus logger.
func (c *Config) SetupLogging() {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		log.WithField("level", c.Log.Level).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.Log.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
