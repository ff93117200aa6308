package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	MongoURI       string
	MongoDatabase  string
	RedisURI       string // empty disables Redis-backed features
	JWTSecret      string
	JWTExpiration  time.Duration
	Port           string
	FrontendURL    string
	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL(s)
	Environment    string   // ENV: production, development, etc.
	LogLevel       string
	DBTimeout      time.Duration
	TrustProxy     bool // honour X-Forwarded-For for client IPs

	// Chat
	ChatRequireAuth     bool
	ChatMaxMessageBytes int64
	ChatRatePerSecond   float64
	ChatRateBurst       int
	ChatHistoryDefault  int
	ChatHistoryMax      int
	ChatWriteTimeout    time.Duration
	ChatPingInterval    time.Duration
}

func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))

	allowedOrigins := parseOrigins(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		for _, u := range []string{getEnv("FRONTEND_URL", "http://localhost:3000"), getEnv("FRONTEND_URL_2", "")} {
			u = strings.TrimSpace(u)
			if u != "" {
				allowedOrigins = append(allowedOrigins, u)
			}
		}
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	return &Config{
		MongoURI:       getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017")),
		MongoDatabase:  getEnv("MONGODB_DB", "learnify_db"),
		RedisURI:       getEnv("REDIS_URI", ""),
		JWTSecret:      getEnv("JWT_SECRET", "your-secret-key-change-this-in-production"),
		JWTExpiration:  time.Duration(getEnvInt("JWT_EXPIRATION_HOURS", 24)) * time.Hour,
		Port:           getEnv("PORT", "8000"),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:3000"),
		AllowedOrigins: allowedOrigins,
		Environment:    env,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DBTimeout:      getEnvDuration("DB_TIMEOUT", 5*time.Second),
		TrustProxy:     getEnvBool("TRUST_PROXY", false),

		ChatRequireAuth:     getEnvBool("CHAT_REQUIRE_AUTH", false),
		ChatMaxMessageBytes: int64(getEnvInt("CHAT_MAX_MESSAGE_BYTES", 64*1024)),
		ChatRatePerSecond:   getEnvFloat("CHAT_RATE_PER_SECOND", 5),
		ChatRateBurst:       getEnvInt("CHAT_RATE_BURST", 10),
		ChatHistoryDefault:  getEnvInt("CHAT_HISTORY_DEFAULT_LIMIT", 50),
		ChatHistoryMax:      getEnvInt("CHAT_HISTORY_MAX_LIMIT", 200),
		ChatWriteTimeout:    getEnvDuration("CHAT_WRITE_TIMEOUT", 10*time.Second),
		ChatPingInterval:    getEnvDuration("CHAT_PING_INTERVAL", 30*time.Second),
	}
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
