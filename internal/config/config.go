package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/backup"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const envPrefix = "CHOREQUEST_"

type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string
	Location  *time.Location

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	ReminderSchedule string
	SessionTTL       time.Duration

	// AllowedOrigins are extra host patterns browsers may open /ws from.
	AllowedOrigins []string

	Backup          backup.Config
	BackupSchedule  string
	BackupRetention time.Duration
}

// PushEnabled reports whether a VAPID key pair is configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Load reads configuration from the environment. Files named in envFiles are
// loaded first when present; variables already set in the environment win.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DBPath:           getEnv("DB_PATH", "chorequest.db"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		VAPIDPublicKey:   getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:  getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:     getEnv("VAPID_SUBJECT", "mailto:admin@chorequest.local"),
		ReminderSchedule: getEnv("REMINDER_SCHEDULE", "0 8 * * *"),
		BackupSchedule:   getEnv("BACKUP_SCHEDULE", "0 3 * * *"),
		Backup: backup.Config{
			Endpoint:   getEnv("BACKUP_ENDPOINT", ""),
			Bucket:     getEnv("BACKUP_BUCKET", ""),
			Region:     getEnv("BACKUP_REGION", "us-east-1"),
			AccessKey:  getEnv("BACKUP_ACCESS_KEY", ""),
			SecretKey:  getEnv("BACKUP_SECRET_KEY", ""),
			Prefix:     getEnv("BACKUP_PREFIX", "chorequest"),
			Passphrase: getEnv("BACKUP_PASSPHRASE", ""),
		},
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid %sPORT %q", envPrefix, cfg.Port)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid %sLOG_FORMAT %q: want text or json", envPrefix, cfg.LogFormat)
	}

	tz := getEnv("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid %sTIMEZONE %q: %w", envPrefix, tz, err)
	}
	cfg.Location = loc

	if _, err := cron.ParseStandard(cfg.ReminderSchedule); err != nil {
		return nil, fmt.Errorf("invalid %sREMINDER_SCHEDULE %q: %w", envPrefix, cfg.ReminderSchedule, err)
	}

	ttl, err := getEnvAsDuration("SESSION_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid %sSESSION_TTL %s: must be positive", envPrefix, ttl)
	}
	cfg.SessionTTL = ttl

	for _, origin := range strings.Split(getEnv("ALLOWED_ORIGINS", ""), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if _, err := cron.ParseStandard(cfg.BackupSchedule); err != nil {
		return nil, fmt.Errorf("invalid %sBACKUP_SCHEDULE %q: %w", envPrefix, cfg.BackupSchedule, err)
	}
	retention, err := getEnvAsDuration("BACKUP_RETENTION", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	if retention <= 0 {
		return nil, fmt.Errorf("invalid %sBACKUP_RETENTION %s: must be positive", envPrefix, retention)
	}
	cfg.BackupRetention = retention
	if cfg.Backup.Bucket != "" && cfg.Backup.Passphrase == "" {
		return nil, fmt.Errorf("%sBACKUP_PASSPHRASE is required when %sBACKUP_BUCKET is set", envPrefix, envPrefix)
	}

	if (cfg.VAPIDPublicKey == "") != (cfg.VAPIDPrivateKey == "") {
		return nil, fmt.Errorf("%sVAPID_PUBLIC_KEY and %sVAPID_PRIVATE_KEY must be set together", envPrefix, envPrefix)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(envPrefix + key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s %q: %w", envPrefix, key, raw, err)
	}
	return d, nil
}
