package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultSignalURL = "ws://localhost:8080/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// Config holds the signaling server configuration.
type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	AdminPassword  string
	LogLevel       string

	// MaxRoomIDLength rejects longer room identifiers. Zero disables the check.
	MaxRoomIDLength int

	Redis RedisConfig
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// ClientConfig holds the participant-side configuration.
type ClientConfig struct {
	SignalURL  string
	STUNServer string
	TieBreak   bool
	LogLevel   string
}

// ClientOptions carries command line overrides. Empty fields fall back to
// the environment, then to defaults.
type ClientOptions struct {
	SignalURL  string
	STUNServer string
	NoTieBreak bool
}

// Load reads the server configuration from a .env file (if present) and the
// environment. Environment variables take precedence over .env values.
func Load() *Config {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := strings.Split(originsStr, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		AllowedOrigins:  origins,
		JWTSecret:       getEnv("JWT_SECRET", "change-me-in-production"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		MaxRoomIDLength: getEnvInt("ROOM_ID_MAX_LEN", 0),
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
}

// LoadClient reads the participant configuration with the following priority:
// command line options, environment variables, defaults.
func LoadClient(opts ClientOptions) *ClientConfig {
	_ = godotenv.Load()

	signalURL := opts.SignalURL
	if signalURL == "" {
		signalURL = getEnv("SIGNAL_URL", DefaultSignalURL)
	}

	stunServer := opts.STUNServer
	if stunServer == "" {
		stunServer = getEnv("STUN_SERVER", DefaultSTUN)
	}

	tieBreak := getEnvBool("TIE_BREAK", true)
	if opts.NoTieBreak {
		tieBreak = false
	}

	return &ClientConfig{
		SignalURL:  signalURL,
		STUNServer: stunServer,
		TieBreak:   tieBreak,
		LogLevel:   getEnv("LOG_LEVEL", "error"),
	}
}

// ICEServers returns the configured STUN urls, or nil when disabled with
// STUN_SERVER=none.
func (c *ClientConfig) ICEServers() []string {
	if c.STUNServer == "" || c.STUNServer == "none" {
		return nil
	}
	return []string{c.STUNServer}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
