package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddress)
	assert.Equal(t, 30*time.Second, cfg.Server.Heartbeat)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, 200*time.Millisecond, cfg.Game.TickInterval)
	assert.Equal(t, 1, cfg.Game.ArenasPerMinigame)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  http_address: ":7000"
  rate_per_second: 5
database:
  driver: gorm
  postgres:
    host: db
    dbname: games
game:
  tick_interval: 1s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("MINIGAME_SERVER_HTTP_ADDRESS", ":7100")
	t.Setenv("MINIGAME_REDIS_ENABLED", "true")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, ":7100", cfg.Server.HTTPAddress, "env wins over the file")
	assert.Equal(t, 5.0, cfg.Server.RatePerSecond)
	assert.Equal(t, "gorm", cfg.Database.Driver)
	assert.Equal(t, "db", cfg.Database.Postgres.Host)
	assert.Equal(t, "games", cfg.Database.Postgres.DBName)
	assert.Equal(t, "postgres", cfg.Database.Postgres.User)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Second, cfg.Game.TickInterval)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("MINIGAME_DATABASE_DRIVER", "mysql")
	_, err := LoadConfig(t.TempDir())
	assert.ErrorContains(t, err, "unknown database driver")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [\n"), 0o644))
	_, err = LoadConfig(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{Driver: "pq"}, Game: GameConfig{TickInterval: time.Second}}
	assert.NoError(t, cfg.Validate())

	cfg.Game.TickInterval = 0
	assert.Error(t, cfg.Validate())

	cfg.Game.TickInterval = time.Second
	cfg.Game.ArenasPerMinigame = -1
	assert.Error(t, cfg.Validate())
}
