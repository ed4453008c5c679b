/*
Package config loads the bot configuration.

PURPOSE:
  One file configures the whole process. YAML and JSON files are decoded
  with yaml.v3 (JSON is valid YAML), TOML files with BurntSushi/toml; the
  extension decides. Values not present in the file keep their defaults.

LEGACY KEYS:
  token, prefix, guild_id, allowed_channel_ids, rank_up_thresholds and
  streak_multiplier are accepted exactly as the legacy config.json
  spelled them, including numeric IDs.

EXAMPLE (YAML):
  prefix: "!"
  guild_id: 123456789
  allowed_channel_ids: [111, 222]
  rank_up_thresholds: {"500": "Veteran", "100": "Member"}
  rewards: {policy: streak, base: 10, multiplier: 0.1, cap: 10}
  storage: {backend: sqlite, path: data/ledger.db}

SEE ALSO:
  - cmd/pointsbot: flag overrides
*/
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/warp/clanpoints/rewards"
)

// =============================================================================
// TYPES
// =============================================================================

// Config is the full process configuration.
type Config struct {
	Token             string            `yaml:"token" toml:"token"`
	Prefix            string            `yaml:"prefix" toml:"prefix" validate:"required"`
	GuildID           ID                `yaml:"guild_id" toml:"guild_id"`
	AllowedChannelIDs []ID              `yaml:"allowed_channel_ids" toml:"allowed_channel_ids"`
	RankUpThresholds  map[string]string `yaml:"rank_up_thresholds" toml:"rank_up_thresholds"`
	StreakMultiplier  *float64          `yaml:"streak_multiplier" toml:"streak_multiplier" validate:"omitempty,gte=0"`
	GrantableRoles    []string          `yaml:"grantable_roles" toml:"grantable_roles"`

	// Capabilities maps a capability name to the roles that confer it.
	Capabilities map[string][]string `yaml:"capabilities" toml:"capabilities"`

	Rewards RewardsConfig `yaml:"rewards" toml:"rewards"`
	Sweep   SweepConfig   `yaml:"sweep" toml:"sweep"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	HTTP    HTTPConfig    `yaml:"http" toml:"http"`
	Notify  NotifyConfig  `yaml:"notify" toml:"notify"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

type RewardsConfig struct {
	Policy     string  `yaml:"policy" toml:"policy" validate:"oneof=flat streak"`
	Base       int64   `yaml:"base" toml:"base" validate:"gte=0"`
	Multiplier float64 `yaml:"multiplier" toml:"multiplier" validate:"gte=0"`
	Cap        int     `yaml:"cap" toml:"cap" validate:"gte=0"`
	Unit       string  `yaml:"unit" toml:"unit" validate:"required"`
}

type SweepConfig struct {
	Enabled   bool          `yaml:"enabled" toml:"enabled"`
	Interval  time.Duration `yaml:"interval" toml:"interval" validate:"gt=0"`
	LapseMode string        `yaml:"lapse_mode" toml:"lapse_mode" validate:"oneof=clear restamp"`
}

type StorageConfig struct {
	Backend            string `yaml:"backend" toml:"backend" validate:"oneof=json sqlite badger memory"`
	Path               string `yaml:"path" toml:"path" validate:"required_unless=Backend memory"`
	BackupPath         string `yaml:"backup_path" toml:"backup_path"`
	LegacyLifetimePath string `yaml:"legacy_lifetime_path" toml:"legacy_lifetime_path"`
	AuditCapacity      int    `yaml:"audit_capacity" toml:"audit_capacity" validate:"gte=0"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" toml:"addr" validate:"required"`
	CORSOrigins     []string      `yaml:"cors_origins" toml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" validate:"gte=0"`
}

type NotifyConfig struct {
	WebhookURL    string  `yaml:"webhook_url" toml:"webhook_url" validate:"omitempty,url"`
	RatePerSecond float64 `yaml:"rate_per_second" toml:"rate_per_second" validate:"gt=0"`
	Burst         int     `yaml:"burst" toml:"burst" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=auto json text"`
}

// ID is a chat identifier. Files may spell it as a number or a string.
type ID string

// UnmarshalTOML accepts integers as well as strings.
func (id *ID) UnmarshalTOML(v any) error {
	switch t := v.(type) {
	case string:
		*id = ID(t)
	case int64:
		*id = ID(strconv.FormatInt(t, 10))
	default:
		return fmt.Errorf("id: unsupported value %v", v)
	}
	return nil
}

// =============================================================================
// DEFAULTS & LOADING
// =============================================================================

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	return Config{
		Prefix: "!",
		Capabilities: map[string][]string{
			"eligible":      {"Member", "Trial"},
			"admin":         {"Admin"},
			"ranked":        {"Ranked"},
			"guest":         {"Guest"},
			"special-guest": {"Special Guest"},
		},
		GrantableRoles: []string{"Member", "Trial", "Ranked"},
		Rewards: RewardsConfig{
			Policy:     "streak",
			Base:       10,
			Multiplier: 0.1,
			Cap:        10,
			Unit:       "CP",
		},
		Sweep: SweepConfig{
			Enabled:   true,
			Interval:  24 * time.Hour,
			LapseMode: "clear",
		},
		Storage: StorageConfig{
			Backend:       "json",
			Path:          filepath.Join("data", "points.json"),
			BackupPath:    filepath.Join("data", "points_backup.txt"),
			AuditCapacity: 10000,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Notify: NotifyConfig{
			RatePerSecond: 5,
			Burst:         5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("parse %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	case ".yaml", ".yml", ".json", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// =============================================================================
// VALIDATION
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the rank thresholds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
			}
			sort.Strings(msgs)
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Tiers(); err != nil {
		return fmt.Errorf("invalid config: rank_up_thresholds: %w", err)
	}
	return nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// RewardOptions returns the reward policy options. A top-level
// streak_multiplier overrides rewards.multiplier.
func (c Config) RewardOptions() rewards.Options {
	opts := rewards.Options{
		Kind:       rewards.Kind(c.Rewards.Policy),
		Base:       c.Rewards.Base,
		Multiplier: c.Rewards.Multiplier,
		Cap:        c.Rewards.Cap,
	}
	if c.StreakMultiplier != nil {
		opts.Multiplier = *c.StreakMultiplier
	}
	return opts
}

func (c Config) Tiers() (rewards.Tiers, error) {
	return rewards.ParseTiers(c.RankUpThresholds)
}

// ChannelIDs returns the allowed channels as plain strings.
func (c Config) ChannelIDs() []string {
	out := make([]string, len(c.AllowedChannelIDs))
	for i, id := range c.AllowedChannelIDs {
		out[i] = string(id)
	}
	return out
}
