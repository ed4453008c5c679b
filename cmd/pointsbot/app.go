package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/warp/clanpoints/api"
	"github.com/warp/clanpoints/bot"
	"github.com/warp/clanpoints/claim"
	"github.com/warp/clanpoints/config"
	"github.com/warp/clanpoints/directory"
	"github.com/warp/clanpoints/leaderboard"
	"github.com/warp/clanpoints/ledger"
	"github.com/warp/clanpoints/ledger/store"
	"github.com/warp/clanpoints/logging"
	"github.com/warp/clanpoints/metrics"
	"github.com/warp/clanpoints/notify"
	"github.com/warp/clanpoints/rewards"
	"github.com/warp/clanpoints/store/badger"
	"github.com/warp/clanpoints/store/jsonfile"
	"github.com/warp/clanpoints/store/sqlite"
	"github.com/warp/clanpoints/sweep"
)

// app holds the wired components of a running bot.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   *store.Memory
	audit   ledger.AuditLog
	sweep   *sweep.Scheduler
	handler *api.Handler
}

// loadConfig reads --config (or the defaults) and applies --log-level.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return config.Config{}, err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// openPersister opens the configured backend. The memory backend has no
// persister. The returned audit log is nil unless the backend provides one.
func openPersister(cfg config.StorageConfig) (ledger.Persister, ledger.AuditLog, error) {
	switch cfg.Backend {
	case "memory":
		return nil, nil, nil
	case "json":
		p := jsonfile.New(cfg.Path)
		p.LegacyLifetimePath = cfg.LegacyLifetimePath
		return p, nil, nil
	case "sqlite":
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "badger":
		p, err := badger.Open(badger.Config{Path: cfg.Path})
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// openStore opens and loads the ledger. A corrupt ledger is logged and the
// bot starts empty.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*store.Memory, ledger.AuditLog, error) {
	p, audit, err := openPersister(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	st := store.NewMemory()
	if p != nil {
		st = store.NewPersistent(p)
	}
	if audit == nil {
		audit = store.NewMemoryAudit(cfg.AuditCapacity)
	}

	if err := st.Load(ctx); err != nil {
		if !errors.Is(err, ledger.ErrCorruptStore) {
			st.Close()
			return nil, nil, err
		}
		logger.Error("ledger is corrupt, starting with an empty ledger", "backend", cfg.Backend, "path", cfg.Path, "error", err)
	}
	return st, audit, nil
}

// capabilities converts the configured table, or returns nil for the defaults.
func capabilities(table map[string][]string) map[bot.Capability][]string {
	if len(table) == 0 {
		return nil
	}
	out := make(map[bot.Capability][]string, len(table))
	for name, roles := range table {
		out[bot.Capability(name)] = roles
	}
	return out
}

// newApp wires every component from cfg.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger, err := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	policy, err := rewards.NewPolicy(cfg.RewardOptions())
	if err != nil {
		return nil, err
	}
	tiers, err := cfg.Tiers()
	if err != nil {
		return nil, err
	}
	mode, err := sweep.ParseLapseMode(cfg.Sweep.LapseMode)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	st, audit, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	roster := directory.NewRoster()
	auth := directory.NewRoleAuthorizer(roster, capabilities(cfg.Capabilities))

	admin := ledger.NewAdmin(st, audit, cfg.Storage.BackupPath)
	board := leaderboard.NewRenderer(st, roster)
	board.Unit = cfg.Rewards.Unit

	d := bot.NewDispatcher(claim.NewEngine(st, policy, m), admin, board, auth, roster)
	d.Roles = auth
	d.Tiers = tiers
	d.AllowedChannels = cfg.ChannelIDs()
	d.GrantableRoles = cfg.GrantableRoles
	d.Unit = cfg.Rewards.Unit
	d.Metrics = m
	if cfg.Notify.WebhookURL != "" {
		d.Notifier = notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.RatePerSecond, cfg.Notify.Burst)
	} else {
		d.Notifier = notify.NewLog(logger)
	}

	sched := sweep.NewScheduler(sweep.NewSweeper(st, mode), m)
	sched.Interval = cfg.Sweep.Interval
	sched.Enabled = cfg.Sweep.Enabled

	h := api.NewHandler(d, roster, cfg.Prefix)
	h.Audit = audit
	h.Sweep = sched

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		store:   st,
		audit:   audit,
		sweep:   sched,
		handler: h,
	}, nil
}

func (a *app) routerOptions() api.Options {
	return api.Options{
		CORSOrigins: a.cfg.HTTP.CORSOrigins,
		Token:       a.cfg.Token,
		Community:   string(a.cfg.GuildID),
		Metrics:     a.metrics.Handler(),
	}
}

func (a *app) Close() error {
	return a.store.Close()
}
