// Package digest posts a scheduled summary of the day's announcements into
// the relay's destination chat.
package digest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gtrbot/internal/history"
	kit "gtrbot/internal/transport"
	logx "gtrbot/pkg/logx"
)

const defaultSchedule = "0 9 * * *"

type Config struct {
	Enabled  bool
	Schedule string
	Timezone string
}

// Service runs the cron schedule. It only posts when the relay has a
// destination and the history store is enabled.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	store   history.Store
	target  func() (kit.ChatTarget, bool)

	cfg  Config
	cron *cron.Cron
}

func New(cfg Config, adapter kit.Adapter, store history.Store, target func() (kit.ChatTarget, bool), log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}
	return &Service{log: log, adapter: adapter, store: store, target: target, cfg: cfg}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Start schedules the digest job. Idempotent; returns an error only for an
// unparseable schedule.
func (s *Service) Start(ctx context.Context) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	if !s.cfg.Enabled || s.store == nil {
		return nil
	}

	loc := time.Local
	if s.cfg.Timezone != "" {
		l, err := time.LoadLocation(s.cfg.Timezone)
		if err != nil {
			return fmt.Errorf("digest timezone: %w", err)
		}
		loc = l
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(s.cfg.Schedule, s.run); err != nil {
		return fmt.Errorf("digest schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.log.Info("digest scheduled", logx.String("schedule", s.cfg.Schedule))
	return nil
}

// Reconfigure applies a new config, restarting the schedule if anything
// changed. A config that fails to schedule leaves the digest stopped.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}

	s.mu.Lock()
	same := s.cfg == cfg
	running := s.cron != nil
	s.mu.Unlock()
	if same && (running == cfg.Enabled || s.store == nil) {
		return
	}

	s.Stop(ctx)
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	if err := s.Start(ctx); err != nil {
		s.log.Warn("digest reconfigure failed", logx.Err(err))
	}
}

// Stop halts the schedule and waits for a running job, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	to, ok := s.target()
	if !ok {
		return
	}

	total, wrs, err := s.store.CountSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		s.log.Warn("digest count failed", logx.Err(err))
		return
	}
	if total == 0 {
		return
	}

	text := fmt.Sprintf("Daily digest: %d announcements in the last 24h (%d world records).", total, wrs)
	if _, err := s.adapter.SendText(ctx, to, text, nil); err != nil {
		s.log.Warn("digest post failed", logx.Err(err))
		return
	}
	s.log.Info("digest posted", logx.Int("total", total), logx.Int("world_records", wrs))
}
