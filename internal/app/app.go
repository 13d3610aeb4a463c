// Package app wires the store, configuration and delivery channels into an engine.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"movetrack/internal/attachments"
	"movetrack/internal/config"
	"movetrack/internal/db"
	"movetrack/internal/engine"
	"movetrack/internal/migrate"
	"movetrack/internal/notify"
	"movetrack/internal/registry"
)

// Options select the workspace and config file. An empty ConfigPath uses the workspace
// config, falling back to the built-in catalog.
type Options struct {
	Workspace  string
	ConfigPath string
	Log        *zap.Logger
}

type App struct {
	DB          *sql.DB
	Config      *config.Config
	Registry    *registry.Registry
	Dispatcher  *notify.Dispatcher
	Attachments attachments.Store
	Engine      engine.Engine
	Log         *zap.Logger
}

// Open builds an App from opts and brings the schema up to date.
func Open(ctx context.Context, opts Options) (*App, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store, err := attachments.New(ctx, cfg.Attachments, opts.Workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	dispatcher := NewDispatcher(cfg, log)

	eng := engine.New(conn, cfg, reg)
	eng.Notifier = dispatcher
	eng.Attachments = store
	eng.Log = log
	return &App{
		DB:          conn,
		Config:      cfg,
		Registry:    reg,
		Dispatcher:  dispatcher,
		Attachments: store,
		Engine:      eng,
		Log:         log,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		cfg, err := config.FromFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", opts.ConfigPath, err)
		}
		return cfg, nil
	}
	return config.LoadOptional(opts.Workspace)
}

// NewDispatcher builds the sinks enabled in cfg.
func NewDispatcher(cfg *config.Config, log *zap.Logger) *notify.Dispatcher {
	d := &notify.Dispatcher{Log: log, Timeout: cfg.Timeouts.Notify()}
	if cfg.Notifications.Log {
		d.Sinks = append(d.Sinks, notify.LogSink{Log: log})
	}
	if len(cfg.Notifications.Webhooks) > 0 {
		d.Sinks = append(d.Sinks, notify.NewWebhookSink(cfg.Notifications.Webhooks))
	}
	if cfg.Notifications.Mail.Enabled {
		d.Sinks = append(d.Sinks, notify.NewMailSink(cfg.Notifications.Mail))
	}
	return d
}

// SeedAdmin creates the first administrator when credentials are given and no user exists.
func (a *App) SeedAdmin(ctx context.Context, name, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	u, created, err := a.Engine.SeedAdmin(ctx, name, email, password)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		a.Log.Info("seeded administrator", zap.String("email", u.Email), zap.String("user_id", u.ID))
	}
	return nil
}
