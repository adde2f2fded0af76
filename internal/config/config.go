package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config collects every runtime setting from environment variables.
type Config struct {
	BotToken       string
	BotAPIEndpoint string
	DefaultAdminID int64

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Step is the booking time quantum. All reservation boundaries and
	// durations are multiples of it.
	Step time.Duration
	// WorkingStart/WorkingEnd are offsets from local midnight.
	WorkingStart time.Duration
	WorkingEnd   time.Duration
	MaxDuration  time.Duration

	LeadStart      time.Duration
	LeadEnd        time.Duration
	ConfirmTimeout time.Duration
	MisfireGrace   time.Duration
	DialogStall    time.Duration

	Location *time.Location
}

func Load() (*Config, error) {
	cfg := &Config{
		BotToken:       os.Getenv("BOT_TOKEN"),
		BotAPIEndpoint: os.Getenv("BOT_API_ENDPOINT"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         os.Getenv("DB_USER"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         os.Getenv("DB_NAME"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	adminIDStr := os.Getenv("DEFAULT_ADMIN_ID")
	if adminIDStr == "" {
		return nil, fmt.Errorf("DEFAULT_ADMIN_ID is required")
	}
	adminID, err := strconv.ParseInt(adminIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_ADMIN_ID: %w", err)
	}
	cfg.DefaultAdminID = adminID

	stepMinutes, err := getEnvInt("STEP_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	if stepMinutes <= 0 {
		return nil, fmt.Errorf("STEP_MINUTES must be positive, got %d", stepMinutes)
	}
	cfg.Step = time.Duration(stepMinutes) * time.Minute

	cfg.WorkingStart, err = getEnvTimeOfDay("WORKING_START", 9*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.WorkingEnd, err = getEnvTimeOfDay("WORKING_END", 18*time.Hour)
	if err != nil {
		return nil, err
	}
	if cfg.WorkingEnd <= cfg.WorkingStart {
		return nil, fmt.Errorf("WORKING_END must be after WORKING_START")
	}

	maxHours, err := getEnvInt("MAX_DURATION_HOURS", 8)
	if err != nil {
		return nil, err
	}
	cfg.MaxDuration = time.Duration(maxHours) * time.Hour
	if cfg.MaxDuration < cfg.Step {
		return nil, fmt.Errorf("MAX_DURATION_HOURS shorter than one step")
	}

	leadStart, err := getEnvInt("LEAD_START_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	cfg.LeadStart = time.Duration(leadStart) * time.Minute

	leadEnd, err := getEnvInt("LEAD_END_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	cfg.LeadEnd = time.Duration(leadEnd) * time.Minute

	confirmTimeout, err := getEnvInt("CONFIRM_TIMEOUT_SECONDS", 900)
	if err != nil {
		return nil, err
	}
	cfg.ConfirmTimeout = time.Duration(confirmTimeout) * time.Second

	grace, err := getEnvInt("SCHEDULER_MISFIRE_GRACE_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	cfg.MisfireGrace = time.Duration(grace) * time.Second

	stall, err := getEnvInt("DIALOG_STALL_TIMEOUT_SECONDS", 600)
	if err != nil {
		return nil, err
	}
	cfg.DialogStall = time.Duration(stall) * time.Second

	tzName := getEnv("TIMEZONE", "Local")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tzName, err)
	}
	cfg.Location = loc

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// getEnvTimeOfDay parses "HH:MM" into an offset from midnight.
func getEnvTimeOfDay(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (want HH:MM): %w", key, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
