package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN       string
	Environment string
	Timezone    string

	WorkStart            string
	WorkEnd              string
	SlotDurationMin      int
	AdvanceNoticeHours   int
	AllowWeekends        bool
	RetentionDays        int
	CleanupIntervalHours int

	MigrationsPath string
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg := &Config{
		DBDSN:       os.Getenv("DB_DSN"),
		Environment: getEnvOrDefault("ENV", "development"),
		Timezone:    getEnvOrDefault("TIMEZONE", "UTC"),

		WorkStart:            getEnvOrDefault("WORK_START", "09:00"),
		WorkEnd:              getEnvOrDefault("WORK_END", "17:00"),
		SlotDurationMin:      getEnvIntOrDefault("SLOT_DURATION_MIN", 60),
		AdvanceNoticeHours:   getEnvIntOrDefault("ADVANCE_NOTICE_HOURS", 3),
		AllowWeekends:        getEnvBoolOrDefault("ALLOW_WEEKENDS", false),
		RetentionDays:        getEnvIntOrDefault("RETENTION_DAYS", 30),
		CleanupIntervalHours: getEnvIntOrDefault("CLEANUP_INTERVAL_HOURS", 24),

		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", "migrations"),
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.SlotDurationMin <= 0 {
		return nil, fmt.Errorf("SLOT_DURATION_MIN must be positive, got %d", cfg.SlotDurationMin)
	}
	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("RETENTION_DAYS must be positive, got %d", cfg.RetentionDays)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("TIMEZONE %q is not a valid IANA zone: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location возвращает таймзону конфигурации. Load уже проверил её валидность.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️  %s=%q is not a number, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBoolOrDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("⚠️  %s=%q is not a bool, using default %t", key, v, def)
		return def
	}
	return b
}
