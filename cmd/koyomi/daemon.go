package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koyomidev/koyomi/internal/adapter"
	"github.com/koyomidev/koyomi/internal/daemon"
	"github.com/koyomidev/koyomi/internal/gitsync"
	"github.com/koyomidev/koyomi/internal/nlp"
	"github.com/koyomidev/koyomi/internal/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the assistant as a long-lived service",
	Long:  `Starts the chat adapter and the periodic scheduler under component lifecycle orchestration: check-ins, calendar sync, notification escalation and session cleanup all run on their configured cadence.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var git *gitsync.Syncer
		if cfg.Git.Enabled {
			git, err = gitsync.NewSyncer(cfg.Vault, cfg.Git)
			if err != nil {
				return err
			}
		}

		d := daemon.New()
		d.AddComponent(&storeComponent{app: a})
		d.AddComponent(scheduler.New(scheduler.Options{
			Config:        cfg.Scheduler,
			Notifications: cfg.Notifications,
			Location:      a.loc,
			Checkins:      a.checkins,
			SyncEngine:    a.engine,
			Notify:        a.notify,
			Sessions:      a.sessions,
			Git:           git,
			GitInterval:   cfg.Git.SyncInterval,
		}))

		if cfg.Telegram.Enabled {
			parser, err := nlp.NewParser(cfg.NLP)
			if err != nil {
				return err
			}
			d.AddComponent(adapter.NewTelegramAdapter(adapter.Options{
				Config:   cfg.Telegram,
				Location: a.loc,
				Tasks:    a.tasks,
				Parser:   parser,
				Finder:   a.finder,
				Engine:   a.engine,
				Sessions: a.sessions,
				Notify:   a.notify,
				Checkins: a.checkins,
				Store:    a.store,
			}))
		}

		return d.Run(cmd.Context())
	},
}

// storeComponent exposes the already-open index store to the lifecycle
// manager so dependents can order themselves after it.
type storeComponent struct {
	app *app
}

func (c *storeComponent) Name() string { return "store" }

func (c *storeComponent) Dependencies() []string { return nil }

func (c *storeComponent) Init(ctx context.Context) error { return nil }

func (c *storeComponent) Start(ctx context.Context) error { return nil }

func (c *storeComponent) Stop(ctx context.Context) error { return nil }

func (c *storeComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	health := &daemon.ComponentHealth{Name: c.Name()}
	if err := c.app.store.Ping(ctx); err != nil {
		health.Error = err
		return health, nil
	}
	health.Healthy = true
	return health, nil
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
