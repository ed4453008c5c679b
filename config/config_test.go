package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clanpoints/config"
	"github.com/warp/clanpoints/rewards"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, config.Default().Validate())
}

func TestLoad_LegacyJSON(t *testing.T) {
	// GIVEN: the legacy config.json layout with numeric IDs
	path := writeFile(t, "config.json", `{
    "token": "secret",
    "prefix": "?",
    "guild_id": 123456789012345678,
    "allowed_channel_ids": [111, 222],
    "rank_up_thresholds": {"500": "Veteran", "100": "Member"},
    "streak_multiplier": 0.2
}`)

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "?", cfg.Prefix)
	assert.Equal(t, config.ID("123456789012345678"), cfg.GuildID)
	assert.Equal(t, []string{"111", "222"}, cfg.ChannelIDs())
	assert.Equal(t, 0.2, cfg.RewardOptions().Multiplier)
	assert.Equal(t, rewards.KindStreak, cfg.RewardOptions().Kind)

	tiers, err := cfg.Tiers()
	require.NoError(t, err)
	tier, ok := tiers.TierFor(600)
	require.True(t, ok)
	assert.Equal(t, "Veteran", tier.Name)

	// untouched sections keep their defaults
	assert.Equal(t, 24*time.Hour, cfg.Sweep.Interval)
	assert.Equal(t, "json", cfg.Storage.Backend)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "bot.yaml", `
prefix: "!"
rewards:
  policy: flat
  base: 25
  unit: GC
sweep:
  interval: 6h
  lapse_mode: restamp
storage:
  backend: sqlite
  path: data/ledger.db
log:
  level: debug
  format: json
`)

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "flat", cfg.Rewards.Policy)
	assert.Equal(t, int64(25), cfg.Rewards.Base)
	assert.Equal(t, "GC", cfg.Rewards.Unit)
	assert.Equal(t, 6*time.Hour, cfg.Sweep.Interval)
	assert.Equal(t, "restamp", cfg.Sweep.LapseMode)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "bot.toml", `
prefix = "!"
guild_id = 42
allowed_channel_ids = ["7", 8]

[rewards]
policy = "streak"
base = 10
multiplier = 0.1
cap = 5

[storage]
backend = "badger"
path = "data/badger"

[http]
addr = "127.0.0.1:9090"
`)

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, config.ID("42"), cfg.GuildID)
	assert.Equal(t, []string{"7", "8"}, cfg.ChannelIDs())
	assert.Equal(t, 5, cfg.Rewards.Cap)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTP.Addr)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"bad policy":    "rewards:\n  policy: lottery\n",
		"bad backend":   "storage:\n  backend: floppy\n",
		"negative base": "rewards:\n  base: -1\n",
		"bad threshold": "rank_up_thresholds:\n  lots: Elder\n",
		"unknown key":   "colour: blue\n",
		"bad webhook":   "notify:\n  webhook_url: not a url\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, "bot.yaml", body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MemoryBackendNeedsNoPath(t *testing.T) {
	cfg, err := config.Load(writeFile(t, "bot.yaml", "storage:\n  backend: memory\n  path: \"\"\n"))

	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := config.Load(writeFile(t, "bot.ini", "prefix=!"))
	assert.Error(t, err)
}
