package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "game-scores", cfg.Kafka.Topic)
	assert.Equal(t, "score-ledger", cfg.Kafka.GroupID)
	assert.Equal(t, 10, cfg.Leaderboard.DefaultLimit)
	assert.Equal(t, 100, cfg.Leaderboard.MaxLimit)
	assert.Equal(t, 30*time.Second, cfg.Leaderboard.CacheTTL)
	assert.Equal(t, 1*time.Minute, cfg.Refresh.Interval)
	assert.True(t, cfg.Refresh.Enabled)
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_PG_PASSWORD", "s3cret")
	t.Setenv("ADMIN_KEY", "")

	content := `
server:
  port: 9090
postgres:
  host: db.internal
  user: ledger
  password: ${TEST_PG_PASSWORD}
  database: scores
leaderboard:
  default_limit: 25
admin:
  key: hunter2
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "s3cret", cfg.Postgres.Password)
	assert.Equal(t, 25, cfg.Leaderboard.DefaultLimit)
	assert.Equal(t, "hunter2", cfg.Admin.Key)

	// Unset fields fall back to defaults
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 100, cfg.Leaderboard.MaxLimit)
	assert.Equal(t, "game-scores", cfg.Kafka.Topic)
}

func TestLoadAdminKeyFromEnv(t *testing.T) {
	t.Setenv("ADMIN_KEY", "env-admin-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8081\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-admin-key", cfg.Admin.Key)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "ledger",
		Password: "pw",
		Database: "scores",
	}
	assert.Equal(t, "postgres://ledger:pw@localhost:5432/scores?sslmode=disable", cfg.ConnectionString())

	cfg.SSLMode = "require"
	assert.Equal(t, "postgres://ledger:pw@localhost:5432/scores?sslmode=require", cfg.ConnectionString())
}
