package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pennyrush/pennyrush/go/internal/auction"
	"gopkg.in/yaml.v3"
)

// Config holds process-level settings read from the environment. Game
// mechanics live in a separate rules file so they can be tuned without
// touching deployment config.
type Config struct {
	Port          string
	RulesPath     string
	NATSUrl       string
	RedisAddr     string
	CatalogURL    string
	IdentityURL   string
	StreamName    string
	SubjectPrefix string
}

func loadConfigFromEnv() Config {
	return Config{
		Port:          getEnv("PORT", "8080"),
		RulesPath:     getEnv("RULES_PATH", ""),
		NATSUrl:       getEnv("NATS_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		CatalogURL:    getEnv("CATALOG_URL", "http://localhost:8081"),
		IdentityURL:   getEnv("IDENTITY_URL", ""),
		StreamName:    getEnv("EVENT_STREAM", "AUCTION_EVENTS"),
		SubjectPrefix: getEnv("EVENT_SUBJECT_PREFIX", "auction.events"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadRules reads game mechanics from a YAML file, falling back to the
// standard production values when no file is configured.
func loadRules(path string) (auction.Rules, error) {
	rules := auction.DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("failed to read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("failed to parse rules file: %w", err)
	}

	if rules.ClickCost <= 0 {
		return rules, fmt.Errorf("click_cost must be positive")
	}
	if rules.TimerReset <= 0 || rules.FinalPhaseThreshold <= 0 {
		return rules, fmt.Errorf("timer_reset and final_phase_threshold must be positive")
	}
	return rules, nil
}
