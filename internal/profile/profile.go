package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/chronoplan/server/timezone"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where chronoplan stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// Timezone is the IANA zone used for work days and date-only inputs.
	Timezone string

	// Work day policy
	WorkStartHour int    // CHRONOPLAN_WORK_START_HOUR (default: 9)
	WorkEndHour   int    // CHRONOPLAN_WORK_END_HOUR (default: 18)
	WorkDays      string // CHRONOPLAN_WORK_DAYS (default: mon,tue,wed,thu,fri)

	// Engine limits
	MaxRecurrenceInstances int // CHRONOPLAN_MAX_RECURRENCE_INSTANCES (default: 1000)
	HorizonDays            int // CHRONOPLAN_HORIZON_DAYS (default: 14)

	// AI Configuration
	AIEnabled       bool   // CHRONOPLAN_AI_ENABLED
	AIOpenAIAPIKey  string // CHRONOPLAN_AI_OPENAI_API_KEY
	AIOpenAIBaseURL string // CHRONOPLAN_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AILLMModel      string // CHRONOPLAN_AI_LLM_MODEL (default: gpt-4o-mini)

	// Google Calendar
	GoogleClientID     string        // CHRONOPLAN_GOOGLE_CLIENT_ID
	GoogleClientSecret string        // CHRONOPLAN_GOOGLE_CLIENT_SECRET
	GoogleSyncInterval time.Duration // CHRONOPLAN_GOOGLE_SYNC_INTERVAL (default: 15m)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and an API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && p.AIOpenAIAPIKey != ""
}

// IsGoogleEnabled returns true when OAuth client credentials are configured.
func (p *Profile) IsGoogleEnabled() bool {
	return p.GoogleClientID != "" && p.GoogleClientSecret != ""
}

// Location resolves Timezone, defaulting to the local zone.
func (p *Profile) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.Local, nil
	}
	loc, err := timezone.ParseTimezone(p.Timezone)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve location")
	}
	return loc, nil
}

// ParseWorkDays parses WorkDays ("mon,tue,...") into weekdays.
func (p *Profile) ParseWorkDays() ([]time.Weekday, error) {
	names := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
		"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	}
	var days []time.Weekday
	for _, part := range strings.Split(p.WorkDays, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if len(part) > 3 {
			part = part[:3]
		}
		day, ok := names[part]
		if !ok {
			return nil, errors.Errorf("unknown work day %q", part)
		}
		days = append(days, day)
	}
	if len(days) == 0 {
		return nil, errors.New("at least one work day is required")
	}
	return days, nil
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("ignoring invalid integer env", slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return n
}

// FromEnv loads the settings that are not exposed as command flags.
func (p *Profile) FromEnv() {
	p.WorkStartHour = getIntEnvOrDefault("CHRONOPLAN_WORK_START_HOUR", 9)
	p.WorkEndHour = getIntEnvOrDefault("CHRONOPLAN_WORK_END_HOUR", 18)
	p.WorkDays = getEnvOrDefault("CHRONOPLAN_WORK_DAYS", "mon,tue,wed,thu,fri")
	p.MaxRecurrenceInstances = getIntEnvOrDefault("CHRONOPLAN_MAX_RECURRENCE_INSTANCES", 1000)
	p.HorizonDays = getIntEnvOrDefault("CHRONOPLAN_HORIZON_DAYS", 14)

	p.AIEnabled = os.Getenv("CHRONOPLAN_AI_ENABLED") == "true"
	p.AIOpenAIAPIKey = os.Getenv("CHRONOPLAN_AI_OPENAI_API_KEY")
	p.AIOpenAIBaseURL = getEnvOrDefault("CHRONOPLAN_AI_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.AILLMModel = getEnvOrDefault("CHRONOPLAN_AI_LLM_MODEL", "gpt-4o-mini")

	p.GoogleClientID = os.Getenv("CHRONOPLAN_GOOGLE_CLIENT_ID")
	p.GoogleClientSecret = os.Getenv("CHRONOPLAN_GOOGLE_CLIENT_SECRET")
	p.GoogleSyncInterval = 15 * time.Minute
	if v := os.Getenv("CHRONOPLAN_GOOGLE_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			p.GoogleSyncInterval = d
		} else {
			slog.Warn("ignoring invalid sync interval", slog.String("value", v))
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "chronoplan")
		} else {
			p.Data = "/var/opt/chronoplan"
		}
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0770); err != nil {
				slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("chronoplan_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for the postgres driver")
	}

	if _, err := p.Location(); err != nil {
		return err
	}
	if p.WorkStartHour < 0 || p.WorkEndHour > 24 || p.WorkStartHour >= p.WorkEndHour {
		return errors.Errorf("invalid work hours %d-%d", p.WorkStartHour, p.WorkEndHour)
	}
	if _, err := p.ParseWorkDays(); err != nil {
		return err
	}
	if p.MaxRecurrenceInstances <= 0 {
		return errors.New("max recurrence instances must be positive")
	}
	if p.HorizonDays <= 0 {
		return errors.New("horizon days must be positive")
	}
	return nil
}
