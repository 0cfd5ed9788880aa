package config

import (
	"os"
	"testing"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"KKSYNC_APP_NAME":                              os.Getenv("KKSYNC_APP_NAME"),
		"KKSYNC_APP_ENV":                               os.Getenv("KKSYNC_APP_ENV"),
		"KKSYNC_APP_PORT":                              os.Getenv("KKSYNC_APP_PORT"),
		"KKSYNC_DATABASE_HOST":                         os.Getenv("KKSYNC_DATABASE_HOST"),
		"KKSYNC_DATABASE_PORT":                         os.Getenv("KKSYNC_DATABASE_PORT"),
		"KKSYNC_DATABASE_PASSWORD":                     os.Getenv("KKSYNC_DATABASE_PASSWORD"),
		"KKSYNC_DATABASE_SSLMODE":                      os.Getenv("KKSYNC_DATABASE_SSLMODE"),
		"KKSYNC_DATABASE_MAX_OPEN_CONNS":               os.Getenv("KKSYNC_DATABASE_MAX_OPEN_CONNS"),
		"KKSYNC_DATABASE_MAX_IDLE_CONNS":               os.Getenv("KKSYNC_DATABASE_MAX_IDLE_CONNS"),
		"KKSYNC_JWT_SECRET":                            os.Getenv("KKSYNC_JWT_SECRET"),
		"KKSYNC_RELAY_SHARED_SECRET":                   os.Getenv("KKSYNC_RELAY_SHARED_SECRET"),
		"KKSYNC_SYNC_CONCURRENCY":                      os.Getenv("KKSYNC_SYNC_CONCURRENCY"),
		"KKSYNC_SYNC_STALE_RUN_TTL":                    os.Getenv("KKSYNC_SYNC_STALE_RUN_TTL"),
		"KKSYNC_SYNC_TASKS_PROD_ACSTG_TO_AC_CEILING":   os.Getenv("KKSYNC_SYNC_TASKS_PROD_ACSTG_TO_AC_CEILING"),
		"KKSYNC_SYNC_TASKS_PROD_ACSTG_TO_AC_PAGE_SIZE": os.Getenv("KKSYNC_SYNC_TASKS_PROD_ACSTG_TO_AC_PAGE_SIZE"),
		"KKSYNC_SYNC_TASKS_PRICE_KK_TO_ACSTG_INTERVAL": os.Getenv("KKSYNC_SYNC_TASKS_PRICE_KK_TO_ACSTG_INTERVAL"),
		"KKSYNC_STORAGE_ARCHIVE_ENABLED":               os.Getenv("KKSYNC_STORAGE_ARCHIVE_ENABLED"),
		"KKSYNC_STORAGE_BUCKET":                        os.Getenv("KKSYNC_STORAGE_BUCKET"),
		"KKSYNC_COMMERCE_RATE_LIMIT":                   os.Getenv("KKSYNC_COMMERCE_RATE_LIMIT"),
		"KKSYNC_TELEMETRY_SAMPLING_RATIO":              os.Getenv("KKSYNC_TELEMETRY_SAMPLING_RATIO"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "kksync", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "kksync", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, 10, cfg.Sync.Concurrency)
		assert.Equal(t, 6*time.Hour, cfg.Sync.StaleRunTTL)
		assert.Equal(t, "kksync:run:", cfg.Redis.Prefix)
		assert.Len(t, cfg.Sync.Tasks, 10)
	})

	t.Run("loads values from environment variables with KKSYNC prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("KKSYNC_APP_NAME", "sync-test")
		os.Setenv("KKSYNC_APP_PORT", "9000")
		os.Setenv("KKSYNC_DATABASE_HOST", "testdb.local")
		os.Setenv("KKSYNC_DATABASE_PORT", "5433")
		os.Setenv("KKSYNC_SYNC_CONCURRENCY", "4")
		os.Setenv("KKSYNC_SYNC_STALE_RUN_TTL", "2h")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "sync-test", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 4, cfg.Sync.Concurrency)
		assert.Equal(t, 2*time.Hour, cfg.Sync.StaleRunTTL)
	})

	t.Run("task overrides merge into definitions", func(t *testing.T) {
		clearEnv()
		os.Setenv("KKSYNC_SYNC_TASKS_PROD_ACSTG_TO_AC_CEILING", "40")
		os.Setenv("KKSYNC_SYNC_TASKS_PROD_ACSTG_TO_AC_PAGE_SIZE", "5")
		os.Setenv("KKSYNC_SYNC_TASKS_PRICE_KK_TO_ACSTG_INTERVAL", "30m")

		cfg, err := Load()
		require.NoError(t, err)

		defs := cfg.TaskDefinitions()
		assert.Equal(t, 40, defs[integration.TaskProductToCommerce].Ceiling)
		assert.Equal(t, 5, defs[integration.TaskProductToCommerce].PageSize)
		assert.Equal(t, 500, defs[integration.TaskPriceToCommerce].Ceiling)
		assert.Equal(t, 30*time.Minute, cfg.Sync.Tasks[integration.TaskPriceToStaging].Interval)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("KKSYNC_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("KKSYNC_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates negative task ceiling", func(t *testing.T) {
		clearEnv()
		os.Setenv("KKSYNC_SYNC_TASKS_PROD_ACSTG_TO_AC_CEILING", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "prod_acstg_to_ac")
	})

	t.Run("archive requires a bucket", func(t *testing.T) {
		clearEnv()
		os.Setenv("KKSYNC_STORAGE_ARCHIVE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.bucket")

		os.Setenv("KKSYNC_STORAGE_BUCKET", "extracts")
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Storage.ArchiveEnabled)
	})

	t.Run("validates negative rate limit", func(t *testing.T) {
		clearEnv()
		os.Setenv("KKSYNC_COMMERCE_RATE_LIMIT", "-2")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "commerce.rate_limit")
	})

	t.Run("validates sampling ratio range", func(t *testing.T) {
		clearEnv()
		os.Setenv("KKSYNC_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})

	t.Run("production requires secrets", func(t *testing.T) {
		clearEnv()
		os.Setenv("KKSYNC_APP_ENV", "production")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret")

		os.Setenv("KKSYNC_JWT_SECRET", "0123456789abcdef0123456789abcdef")
		os.Setenv("KKSYNC_DATABASE_PASSWORD", "pw")
		os.Setenv("KKSYNC_DATABASE_SSLMODE", "require")
		_, err = Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "relay.shared_secret")

		os.Setenv("KKSYNC_RELAY_SHARED_SECRET", "s3cret")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "plain",
			cfg:  DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "pw", DBName: "kksync", SSLMode: "disable"},
			want: "postgres://postgres:pw@localhost:5432/kksync?sslmode=disable",
		},
		{
			name: "escapes special characters",
			cfg:  DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss/word", DBName: "kksync", SSLMode: "require"},
			want: "postgres://u:p%40ss%2Fword@db:5432/kksync?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: 6380}.Addr())
}
