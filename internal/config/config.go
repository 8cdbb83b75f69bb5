package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rawblock/ring-engine/internal/heuristics"
)

// Config is the process configuration, read from the environment.
// Infrastructure endpoints are optional: an unset DATABASE_URL, REDIS_ADDR
// or KAFKA_BROKERS disables that integration instead of failing startup.
type Config struct {
	Port           string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ReportCacheTTL time.Duration

	KafkaBrokers    []string
	KafkaTopicRings string
	KafkaTopicRuns  string

	AuthToken       string
	AllowedOrigins  string
	RateLimitPerMin int
	RateLimitBurst  int

	AlertWebhookURL  string
	AlertMinSeverity string
	AlertMaxPerRun   int

	Detection heuristics.DetectionConfig
}

// Load reads the environment. Malformed numeric or duration values are
// errors rather than silent fallbacks.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnvOrDefault("PORT", "5339"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicRings:  getEnvOrDefault("KAFKA_TOPIC_RINGS", "fraud.rings.detected"),
		KafkaTopicRuns:   getEnvOrDefault("KAFKA_TOPIC_RUNS", "fraud.runs.completed"),
		AuthToken:        os.Getenv("API_AUTH_TOKEN"),
		AllowedOrigins:   os.Getenv("ALLOWED_ORIGINS"),
		AlertWebhookURL:  os.Getenv("ALERT_WEBHOOK_URL"),
		AlertMinSeverity: getEnvOrDefault("ALERT_MIN_SEVERITY", "high"),
		Detection:        heuristics.DefaultDetectionConfig(),
	}

	var err error
	if cfg.RedisDB, err = envInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.ReportCacheTTL, err = envDuration("REPORT_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMin, err = envInt("RATE_LIMIT_PER_MIN", 30); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = envInt("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.AlertMaxPerRun, err = envInt("ALERT_MAX_PER_RUN", 50); err != nil {
		return nil, err
	}

	if err := loadDetection(&cfg.Detection); err != nil {
		return nil, err
	}
	if err := cfg.Detection.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadDetection(d *heuristics.DetectionConfig) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"CYCLE_MIN_LEN", &d.Cycles.MinLen},
		{"CYCLE_MAX_LEN", &d.Cycles.MaxLen},
		{"CYCLE_LIMIT", &d.Cycles.Limit},
		{"SMURF_THRESHOLD", &d.Smurfing.Threshold},
		{"SHELL_MIN_TX", &d.ShellChains.MinInterTx},
		{"SHELL_MAX_TX", &d.ShellChains.MaxInterTx},
		{"SHELL_LIMIT", &d.ShellChains.Limit},
		{"GUARD_MIN_TX", &d.Guard.MinTotalTx},
	}
	for _, f := range ints {
		v, err := envInt(f.key, *f.dst)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	var err error
	if d.Smurfing.Window, err = envDuration("SMURF_WINDOW", d.Smurfing.Window); err != nil {
		return err
	}
	if d.Guard.MinActiveSpan, err = envDuration("GUARD_MIN_SPAN", d.Guard.MinActiveSpan); err != nil {
		return err
	}
	if d.Guard.Penalty, err = envFloat("GUARD_PENALTY", d.Guard.Penalty); err != nil {
		return err
	}
	if d.MinSuspicionScore, err = envFloat("MIN_SUSPICION_SCORE", d.MinSuspicionScore); err != nil {
		return err
	}
	return nil
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", key, err)
	}
	return v, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
