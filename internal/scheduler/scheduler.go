package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/koyomidev/koyomi/internal/checkin"
	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/daemon"
	"github.com/koyomidev/koyomi/internal/gitsync"
	"github.com/koyomidev/koyomi/internal/notify"
	"github.com/koyomidev/koyomi/internal/session"
	"github.com/koyomidev/koyomi/internal/sync"
)

// Scheduler drives the periodic work: check-ins, calendar sync, notification
// escalation, session cleanup and optional vault git sync. One cron runner
// in the configured timezone; each entry is one job.
type Scheduler struct {
	cfg      config.SchedulerConfig
	interval string
	loc      *time.Location

	checkins *checkin.Service
	engine   *sync.Engine
	notify   *notify.Manager
	sessions *session.Manager
	git      *gitsync.Syncer
	gitSpec  string

	cron    *cron.Cron
	baseCtx context.Context
}

type Options struct {
	Config        config.SchedulerConfig
	Notifications config.NotificationsConfig
	Location      *time.Location
	Checkins      *checkin.Service
	SyncEngine    *sync.Engine
	Notify        *notify.Manager
	Sessions      *session.Manager
	Git           *gitsync.Syncer
	GitInterval   string
}

func New(opts Options) *Scheduler {
	return &Scheduler{
		cfg:      opts.Config,
		interval: opts.Notifications.EscalationInterval,
		loc:      opts.Location,
		checkins: opts.Checkins,
		engine:   opts.SyncEngine,
		notify:   opts.Notify,
		sessions: opts.Sessions,
		git:      opts.Git,
		gitSpec:  opts.GitInterval,
	}
}

func (s *Scheduler) Name() string { return "scheduler" }

func (s *Scheduler) Dependencies() []string { return []string{"store"} }

func (s *Scheduler) Init(ctx context.Context) error {
	s.cron = cron.New(cron.WithLocation(s.loc))

	jobs := []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{"morning-checkin", orDefault(s.cfg.MorningCheckin, config.DefaultMorningCheckin), s.checkins.Morning},
		{"evening-review", orDefault(s.cfg.EveningReview, config.DefaultEveningReview), s.checkins.Evening},
		{"periodic-checkin", orDefault(s.cfg.PeriodicCheckin, config.DefaultPeriodicCheckin), s.checkins.Periodic},
		{"calendar-sync", orDefault(s.cfg.SyncInterval, config.DefaultSyncInterval), s.runSync},
		{"escalation-check", escalationSpec(s.interval), s.runEscalation},
		{"session-cleanup", orDefault(s.cfg.CleanupInterval, config.DefaultCleanupInterval), s.runCleanup},
	}
	if s.git != nil {
		jobs = append(jobs, struct {
			name string
			spec string
			fn   func(context.Context) error
		}{"vault-git-sync", orDefault(s.gitSpec, config.DefaultGitSyncInterval), s.git.Sync})
	}

	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(job.spec, func() {
			if err := job.fn(s.baseCtx); err != nil {
				slog.Error("Scheduled job failed", "job", job.name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("register job %s (%q): %w", job.name, job.spec, err)
		}
		slog.Info("Registered scheduled job", "job", job.name, "spec", job.spec)
	}
	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.baseCtx = ctx
	s.cron.Start()
	slog.Info("Scheduler started", "jobs", len(s.cron.Entries()), "timezone", s.loc.String())
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Scheduler) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	healthy := s.cron != nil && len(s.cron.Entries()) > 0
	return &daemon.ComponentHealth{Name: s.Name(), Healthy: healthy}, nil
}

func (s *Scheduler) runSync(ctx context.Context) error {
	_, err := s.engine.RunBidirectionalSync(ctx)
	return err
}

func (s *Scheduler) runEscalation(ctx context.Context) error {
	_, err := s.notify.EscalatePending(ctx)
	return err
}

func (s *Scheduler) runCleanup(ctx context.Context) error {
	_, err := s.sessions.CleanupExpiredSessions(ctx)
	return err
}

func orDefault(spec, fallback string) string {
	if spec == "" {
		return fallback
	}
	return spec
}

// escalationSpec turns the configured check cadence (a duration) into a cron
// entry.
func escalationSpec(interval string) string {
	d, err := config.DurationOrDefault(interval, config.DefaultEscalationInterval)
	if err != nil {
		d, _ = time.ParseDuration(config.DefaultEscalationInterval)
	}
	return "@every " + d.String()
}
