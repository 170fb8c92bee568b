package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DatabaseURL       string
	OpenAIAPIKey      string
	GoogleBooksAPIKey string
	ExtractionModel   string
	DataDir           string
	Port              string
	LogLevel          string
	LogFormat         string
	Environment       string
	EnrichRatePerSec  float64
	ExtractWorkers    int
}

func Load() *Config {
	return &Config{
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", "postgres://localhost/bookpile?sslmode=disable"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		GoogleBooksAPIKey: os.Getenv("GOOGLE_BOOKS_API_KEY"),
		ExtractionModel:   getEnvOrDefault("EXTRACTION_MODEL", "gpt-4o-mini"),
		DataDir:           getEnvOrDefault("BOOKPILE_DATA_DIR", defaultDataDir()),
		Port:              getEnvOrDefault("PORT", "8080"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "INFO"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "text"),
		Environment:       getEnvOrDefault("ENVIRONMENT", "development"),
		EnrichRatePerSec:  getEnvFloat("ENRICH_RATE_PER_SEC", 2.0),
		ExtractWorkers:    getEnvInt("EXTRACT_WORKERS", 4),
	}
}

func (c *Config) Validate() error {
	var problems []string

	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}

	if c.OpenAIAPIKey == "" {
		problems = append(problems, "OPENAI_API_KEY is required")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	if !contains(validLogLevels, strings.ToUpper(c.LogLevel)) {
		problems = append(problems, "LOG_LEVEL must be one of: DEBUG, INFO, WARN, ERROR")
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		problems = append(problems, "LOG_FORMAT must be one of: text, json")
	}

	if c.EnrichRatePerSec <= 0 {
		problems = append(problems, "ENRICH_RATE_PER_SEC must be positive")
	}

	if c.ExtractWorkers < 1 {
		problems = append(problems, "EXTRACT_WORKERS must be at least 1")
	}

	if len(problems) > 0 {
		return errors.New(problems[0])
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bookpile"
	}
	return home + "/.bookpile"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
