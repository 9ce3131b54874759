package main

import (
	"fmt"
	"time"

	"github.com/koyomidev/koyomi/internal/calendar"
	"github.com/koyomidev/koyomi/internal/checkin"
	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/notify"
	"github.com/koyomidev/koyomi/internal/session"
	"github.com/koyomidev/koyomi/internal/store"
	"github.com/koyomidev/koyomi/internal/sync"
	"github.com/koyomidev/koyomi/internal/task"
	"github.com/koyomidev/koyomi/internal/vault"
)

// app bundles the wired services shared by the subcommands.
type app struct {
	cfg      *config.Config
	loc      *time.Location
	store    *store.Store
	vault    *vault.Vault
	indexer  *vault.Indexer
	client   *calendar.GoogleClient
	finder   *calendar.SlotFinder
	engine   *sync.Engine
	tasks    *task.Service
	sessions *session.Manager
	notify   *notify.Manager
	checkins *checkin.Service
}

func newApp(cfg *config.Config) (*app, error) {
	loc, err := time.LoadLocation(cfg.Server.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Server.Timezone, err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	v := vault.New(cfg.Vault.Path, time.Now)
	client := calendar.NewGoogleClient(cfg.Calendar, time.Now)
	finder := calendar.NewSlotFinder(client, loc, cfg.Slots, time.Now)
	engine := sync.NewEngine(st, v, client, loc, cfg.Sync, time.Now)

	sessions, err := session.NewManager(st, cfg.Sessions, time.Now)
	if err != nil {
		st.Close()
		return nil, err
	}
	publisher := notify.NewNtfyPublisher(cfg.Notifications)
	notifier, err := notify.NewManager(st, publisher, cfg.Notifications, time.Now)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		loc:      loc,
		store:    st,
		vault:    v,
		indexer:  vault.NewIndexer(v, st),
		client:   client,
		finder:   finder,
		engine:   engine,
		tasks:    task.NewService(st, v, time.Now),
		sessions: sessions,
		notify:   notifier,
		checkins: checkin.NewService(st, v, notifier, loc, time.Now),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
