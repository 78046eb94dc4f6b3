package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Client    ClientConfig    `yaml:"client"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ClientConfig is used by the CLI commands that talk to a running server.
type ClientConfig struct {
	APIURL  string        `yaml:"api_url"`
	WSURL   string        `yaml:"ws_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the YAML file at path (boardsync.yaml when empty), falling back
// to defaults when it does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "boardsync.yaml"
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.overrideFromEnv()
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "3001",
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			DSN: "./boardsync.db",
		},
		JWT: JWTConfig{
			Secret:     "your-default-secret-key-change-in-production",
			ExpireHour: 24 * 7,
		},
		RateLimit: RateLimitConfig{
			RPS:   20,
			Burst: 40,
		},
		Client: ClientConfig{
			APIURL:  "http://localhost:3001/api",
			WSURL:   "ws://localhost:3001/api/ws",
			Timeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64); err == nil {
		c.RateLimit.RPS = rps
	}
	if burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST")); err == nil {
		c.RateLimit.Burst = burst
	}
	if api := os.Getenv("BOARDSYNC_API"); api != "" {
		c.Client.APIURL = api
	}
	if ws := os.Getenv("BOARDSYNC_WS"); ws != "" {
		c.Client.WSURL = ws
	}
	if token := os.Getenv("BOARDSYNC_TOKEN"); token != "" {
		c.Client.Token = token
	}
	if timeout, err := time.ParseDuration(os.Getenv("BOARDSYNC_TIMEOUT")); err == nil {
		c.Client.Timeout = timeout
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// Addr is the listen address for the server.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// LoadEnv loads environment variables from a .env file. Variables already
// set in the environment win over the file.
func LoadEnv(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		if _, set := os.LookupEnv(key); set {
			continue
		}
		os.Setenv(key, value)
	}

	return scanner.Err()
}
