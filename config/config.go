package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Redis       RedisConfig
	Matchmaking MatchmakingConfig
	Generator   GeneratorConfig
	Rtc         RtcConfig
	Kafka       KafkaConfig
	Log         LogConfig
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

type MatchmakingConfig struct {
	// Entries older than FreshnessWindow are treated as abandoned.
	FreshnessWindow time.Duration
	// How often a waiter re-scans the topic queue for new candidates.
	RescanInterval time.Duration
	// TTL heartbeat used by presence-cleanup registrations.
	PresenceTTL time.Duration
}

type GeneratorConfig struct {
	URL         string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

type RtcConfig struct {
	ICEServers       []string
	SoftRestartLimit int
	RestartDelay     time.Duration
}

type KafkaConfig struct {
	Brokers              []string
	ProducerRetryMax     int
	ProducerRequiredAcks int
	Enabled              bool
}

type LogConfig struct {
	Level    string
	Mode     string
	Encoding string
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", "development"),
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Matchmaking: MatchmakingConfig{
			FreshnessWindow: getEnvAsDuration("MATCH_FRESHNESS_WINDOW", 120*time.Second),
			RescanInterval:  getEnvAsDuration("MATCH_RESCAN_INTERVAL", 10*time.Second),
			PresenceTTL:     getEnvAsDuration("MATCH_PRESENCE_TTL", 30*time.Second),
		},
		Generator: GeneratorConfig{
			URL:         getEnv("GENERATOR_URL", "http://localhost:8090/generate"),
			Timeout:     getEnvAsDuration("GENERATOR_TIMEOUT", 20*time.Second),
			MaxAttempts: getEnvAsInt("GENERATOR_MAX_ATTEMPTS", 3),
			RetryDelay:  getEnvAsDuration("GENERATOR_RETRY_DELAY", time.Second),
		},
		Rtc: RtcConfig{
			ICEServers:       getEnvAsSlice("RTC_ICE_SERVERS", []string{"stun:stun.l.google.com:19302"}),
			SoftRestartLimit: getEnvAsInt("RTC_SOFT_RESTART_LIMIT", 5),
			RestartDelay:     getEnvAsDuration("RTC_RESTART_DELAY", 2*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:              getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ProducerRetryMax:     getEnvAsInt("KAFKA_PRODUCER_RETRY_MAX", 3),
			ProducerRequiredAcks: getEnvAsInt("KAFKA_PRODUCER_REQUIRED_ACKS", 1),
			Enabled:              getEnvAsBool("KAFKA_ENABLED", true),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Mode:     getEnv("LOG_MODE", "development"),
			Encoding: getEnv("LOG_ENCODING", "console"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Matchmaking.FreshnessWindow <= 0 {
		return fmt.Errorf("freshness window must be positive")
	}

	if c.Matchmaking.RescanInterval <= 0 {
		return fmt.Errorf("rescan interval must be positive")
	}

	if c.Generator.MaxAttempts <= 0 {
		return fmt.Errorf("generator max attempts must be positive")
	}

	if c.Rtc.SoftRestartLimit <= 0 {
		return fmt.Errorf("soft restart limit must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
