// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	BackendMemory    = "memory"
	BackendSQL       = "sql"
	BackendBadger    = "badger"
	BackendLocal     = "local"
	BackendGCS       = "gcs"
	BackendFirestore = "firestore"
)

// Config holds every setting the service reads at startup.
type Config struct {
	AppPort  string
	LogLevel string

	JWTSecret string
	TokenTTL  time.Duration

	StorageBackend   string
	DatabaseDriver   string
	DatabaseDSN      string
	BadgerDir        string
	LocalStoragePath string
	GCSBucket        string
	GCSProject       string
	FirestoreProject string

	PublicBaseURL string
	RabbitMQURL   string

	UpdateMaxAttempts int
	UpdateBackoff     time.Duration
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("STORAGE_BACKEND", BackendMemory)
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "photoshare.db")
	v.SetDefault("BADGER_DIR", "data/badger")
	v.SetDefault("LOCAL_STORAGE_PATH", "data/blobs")
	v.SetDefault("GCS_BUCKET", "")
	v.SetDefault("GCS_PROJECT", "")
	v.SetDefault("FIRESTORE_PROJECT", "")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("UPDATE_MAX_ATTEMPTS", 3)
	v.SetDefault("UPDATE_BACKOFF", "10ms")
}

// Load reads configuration from environment variables, falling back to the
// defaults above.
func Load() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppPort:           v.GetString("APP_PORT"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		TokenTTL:          v.GetDuration("TOKEN_TTL"),
		StorageBackend:    strings.ToLower(v.GetString("STORAGE_BACKEND")),
		DatabaseDriver:    v.GetString("DATABASE_DRIVER"),
		DatabaseDSN:       v.GetString("DATABASE_DSN"),
		BadgerDir:         v.GetString("BADGER_DIR"),
		LocalStoragePath:  v.GetString("LOCAL_STORAGE_PATH"),
		GCSBucket:         v.GetString("GCS_BUCKET"),
		GCSProject:        v.GetString("GCS_PROJECT"),
		FirestoreProject:  v.GetString("FIRESTORE_PROJECT"),
		PublicBaseURL:     v.GetString("PUBLIC_BASE_URL"),
		RabbitMQURL:       v.GetString("RABBITMQ_URL"),
		UpdateMaxAttempts: v.GetInt("UPDATE_MAX_ATTEMPTS"),
		UpdateBackoff:     v.GetDuration("UPDATE_BACKOFF"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.UpdateMaxAttempts < 1 {
		return fmt.Errorf("UPDATE_MAX_ATTEMPTS must be at least 1, got %d", c.UpdateMaxAttempts)
	}
	if c.UpdateBackoff < 0 {
		return fmt.Errorf("UPDATE_BACKOFF must not be negative, got %s", c.UpdateBackoff)
	}

	switch c.StorageBackend {
	case BackendMemory:
	case BackendSQL:
		if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
			return fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver)
		}
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the sql backend")
		}
	case BackendBadger:
		if c.BadgerDir == "" {
			return fmt.Errorf("BADGER_DIR is required for the badger backend")
		}
	case BackendLocal:
		if c.LocalStoragePath == "" {
			return fmt.Errorf("LOCAL_STORAGE_PATH is required for the local backend")
		}
	case BackendGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required for the gcs backend")
		}
	case BackendFirestore:
		if c.FirestoreProject == "" {
			return fmt.Errorf("FIRESTORE_PROJECT is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}
