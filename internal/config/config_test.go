package config_test

import (
	"testing"
	"time"

	"photoshare/internal/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.FromViper(defaults())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppPort)
	assert.Equal(t, config.BackendMemory, cfg.StorageBackend)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 3, cfg.UpdateMaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.UpdateBackoff)
	assert.Empty(t, cfg.RabbitMQURL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "SQL")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "host=db user=photos")
	t.Setenv("UPDATE_MAX_ATTEMPTS", "7")
	t.Setenv("UPDATE_BACKOFF", "25ms")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.BackendSQL, cfg.StorageBackend)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "host=db user=photos", cfg.DatabaseDSN)
	assert.Equal(t, 7, cfg.UpdateMaxAttempts)
	assert.Equal(t, 25*time.Millisecond, cfg.UpdateBackoff)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]any{
		"unknown backend":      {"STORAGE_BACKEND": "tape"},
		"gcs without bucket":   {"STORAGE_BACKEND": "gcs"},
		"firestore no project": {"STORAGE_BACKEND": "firestore"},
		"bad sql driver":       {"STORAGE_BACKEND": "sql", "DATABASE_DRIVER": "oracle"},
		"zero attempts":        {"UPDATE_MAX_ATTEMPTS": 0},
		"empty secret":         {"JWT_SECRET": ""},
	}
	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			v := defaults()
			for k, val := range overrides {
				v.Set(k, val)
			}
			_, err := config.FromViper(v)
			assert.Error(t, err)
		})
	}
}

func defaults() *viper.Viper {
	v := viper.New()
	config.SetDefaults(v)
	return v
}
