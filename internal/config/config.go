package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultJWTSecret = "default-secret-change-me-in-production"

// Config holds the bridge configuration. Values come from defaults, then the
// optional YAML file named by CONFIG_FILE, then environment variables.
type Config struct {
	Address string `yaml:"address"`
	DBPath  string `yaml:"db_path"`
	LogFile string `yaml:"log_file"`

	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	AgentAPIKey   string        `yaml:"agent_api_key"`
	AdminUsername string        `yaml:"admin_username"`
	AdminPassword string        `yaml:"admin_password"`

	// CommandTTL fails commands left pending longer than this, 0 keeps them forever
	CommandTTL    time.Duration `yaml:"command_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Per agent client, requests per second
	AgentRateLimit float64 `yaml:"agent_rate_limit"`
	AgentRateBurst int     `yaml:"agent_rate_burst"`

	TelegramToken  string `yaml:"telegram_bot_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`

	// TelegramCommands lets the alert chat control the copier through the bot
	TelegramCommands bool `yaml:"telegram_commands"`
}

func defaults() *Config {
	return &Config{
		Address:        "0.0.0.0:8080",
		DBPath:         "./copier_bridge.db",
		LogFile:        "copier_bridge.log",
		JWTSecret:      defaultJWTSecret,
		TokenTTL:       24 * time.Hour,
		AdminUsername:  "admin",
		SweepInterval:  time.Minute,
		AgentRateLimit: 20,
		AgentRateBurst: 40,
	}
}

// Load reads the configuration and warns about insecure settings
func Load(logger *slog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}

		logger.Info("📄 Config file loaded", slog.String("path", path))
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == defaultJWTSecret {
		logger.Warn("⚠️  JWT_SECRET not set, using default (insecure!)")
	}

	if cfg.AgentAPIKey == "" {
		logger.Warn("⚠️  AGENT_API_KEY not set, agent endpoints are unauthenticated")
	}

	if cfg.CommandTTL > 0 {
		logger.Info("⌛ Pending commands expire", slog.Duration("ttl", cfg.CommandTTL))
	}

	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) loadEnv() error {
	c.Address = getEnv("ADDRESS", c.Address)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.AgentAPIKey = getEnv("AGENT_API_KEY", c.AgentAPIKey)
	c.AdminUsername = getEnv("ADMIN_USERNAME", c.AdminUsername)
	c.AdminPassword = getEnv("ADMIN_PASSWORD", c.AdminPassword)
	c.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramToken)

	var err error
	if c.TokenTTL, err = getEnvDuration("TOKEN_TTL", c.TokenTTL); err != nil {
		return err
	}

	if c.CommandTTL, err = getEnvDuration("COMMAND_TTL", c.CommandTTL); err != nil {
		return err
	}

	if c.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL", c.SweepInterval); err != nil {
		return err
	}

	if v := os.Getenv("AGENT_RATE_LIMIT"); v != "" {
		if c.AgentRateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("AGENT_RATE_LIMIT: %w", err)
		}
	}

	if v := os.Getenv("AGENT_RATE_BURST"); v != "" {
		if c.AgentRateBurst, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("AGENT_RATE_BURST: %w", err)
		}
	}

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if c.TelegramChatID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
	}

	if v := os.Getenv("TELEGRAM_COMMANDS"); v != "" {
		if c.TelegramCommands, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("TELEGRAM_COMMANDS: %w", err)
		}
	}

	return nil
}

func (c *Config) validate() error {
	switch {
	case c.Address == "":
		return errors.New("address must not be empty")
	case c.DBPath == "":
		return errors.New("db_path must not be empty")
	case c.TokenTTL <= 0:
		return errors.New("token_ttl must be positive")
	case c.CommandTTL < 0:
		return errors.New("command_ttl must not be negative")
	case c.CommandTTL > 0 && c.SweepInterval <= 0:
		return errors.New("sweep_interval must be positive when command_ttl is set")
	case c.TelegramToken != "" && c.TelegramChatID == 0:
		return errors.New("telegram_chat_id is required with telegram_bot_token")
	case c.TelegramCommands && c.TelegramToken == "":
		return errors.New("telegram_commands needs telegram_bot_token")
	}

	return nil
}

// TelegramEnabled reports whether alerts go to Telegram
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	return d, nil
}
