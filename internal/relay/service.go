// Package relay implements the announcement pipeline: stream events in,
// eligibility and dedup filtering, metadata enrichment, formatting, and a
// single delivery call per eligible event.
package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"gtrbot/internal/eventbus"
	"gtrbot/internal/gtr"
	"gtrbot/internal/metrics"
	rtsup "gtrbot/internal/runtime/supervisor"
	kit "gtrbot/internal/transport"
	logx "gtrbot/pkg/logx"
)

const (
	ModeQueued = "queued"
	ModeDirect = "direct"
)

// Enricher resolves stream identifiers into display metadata. *gtr.Client
// satisfies it; tests substitute fakes.
type Enricher interface {
	GetRecord(ctx context.Context, id int) (*gtr.Record, error)
	GetUserName(ctx context.Context, id int) string
	GetLevelInfo(ctx context.Context, id int) (label, thumbnailURL string)
}

// Sink posts one formatted notification. No retry; a failure is final.
type Sink interface {
	Deliver(ctx context.Context, to kit.ChatTarget, n *Notification) error
}

// Config is the relay's runtime configuration. Mode is fixed at Start; the
// other fields may change via Apply.
type Config struct {
	Enabled       bool
	Mode          string
	DrainInterval time.Duration
	RatePerSec    int
	ChatID        int64
}

// DeliveryEvent is published on the bus after each successful delivery.
type DeliveryEvent struct {
	Key        string
	Title      string
	LevelLabel string
	TimeLabel  string
	Rank       gtr.Rank
	ChatID     int64
	At         time.Time
}

// Service is the relay orchestrator. It is safe for concurrent use; in
// direct mode HandleRaw may be called from multiple goroutines.
type Service struct {
	mu sync.Mutex

	log      logx.Logger
	enricher Enricher
	sink     Sink
	bus      eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	dedup *dedup
	queue *queue
	dest  destination

	accepting bool
	inflight  sync.WaitGroup
	sup       *rtsup.Supervisor
	stopDone  chan struct{} // non-nil while stopping

	delivered atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
	startedAt atomic.Int64 // unix nano, 0 when stopped
}

func New(cfg Config, enricher Enricher, sink Sink, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:      log,
		enricher: enricher,
		sink:     sink,
		bus:      bus,
		dedup:    newDedup(),
		queue:    newQueue(),
	}
	s.applyLocked(cfg)
	if cfg.ChatID != 0 {
		s.dest.Set(kit.ChatTarget{ChatID: cfg.ChatID})
	}
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply updates the live tunables. Mode changes are ignored until restart.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	cfg.Mode = s.cfg.Mode
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Mode != ModeDirect {
		cfg.Mode = ModeQueued
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// SetDestination arms the relay with an announcement target.
func (s *Service) SetDestination(t kit.ChatTarget) { s.dest.Set(t) }

// ClearDestination disarms the relay. Events received while unset are
// dropped without being marked seen.
func (s *Service) ClearDestination() { s.dest.Clear() }

func (s *Service) Destination() (kit.ChatTarget, bool) { return s.dest.Get() }

// Start launches the drain loop in queued mode. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.sup != nil {
		s.mu.Unlock()
		return
	}
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.accepting = true
	mode := s.cfg.Mode
	interval := s.cfg.DrainInterval
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "relay"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	s.startedAt.Store(time.Now().UnixNano())

	if mode == ModeQueued {
		sup.GoRestart("drain", func(c context.Context) error {
			s.drainLoop(c, interval)
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("relay drain loop exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
}

// Stop halts intake, drains queued events best-effort until ctx's deadline,
// and waits for any in-flight delivery. Events still queued at the deadline
// are dropped with a log line.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	sup := s.sup
	if sup == nil {
		s.accepting = false
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = sup.Stop(context.Background())

		// Final drain: queued events deserve a delivery attempt before the
		// process exits.
		for ctx.Err() == nil {
			ev := s.queue.Dequeue()
			if ev == nil {
				break
			}
			s.handle(ctx, ev)
		}
		if n := s.queue.Len(); n > 0 {
			s.log.Warn("dropping undelivered events on shutdown", logx.Int("count", n))
		}

		s.inflight.Wait()

		s.mu.Lock()
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
		s.startedAt.Store(0)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// HandleRaw accepts one raw stream message. Queued mode only enqueues;
// direct mode processes inline on the caller's goroutine. Malformed
// documents are discarded without side effects.
func (s *Service) HandleRaw(ctx context.Context, raw []byte) {
	s.mu.Lock()
	accepting := s.accepting
	mode := s.cfg.Mode
	s.mu.Unlock()
	if !accepting {
		return
	}

	ev, err := gtr.DecodeEvent(raw)
	if err != nil {
		metrics.EventsDiscarded.WithLabelValues("malformed").Inc()
		s.log.Debug("discarding malformed stream message", logx.Err(err))
		return
	}
	if !plausible(ev) {
		metrics.EventsDiscarded.WithLabelValues("malformed").Inc()
		return
	}

	if mode == ModeDirect {
		s.handle(ctx, ev)
		return
	}
	s.queue.Enqueue(ev)
}

// plausible rejects JSON documents that decode but match neither event
// shape (e.g. "{}" or an unrelated object).
func plausible(ev *gtr.Event) bool {
	if ev.ID != nil {
		return true
	}
	return ev.User != 0 || ev.Level != 0 || ev.Time != 0 || len(ev.Splits) > 0 || ev.ScreenshotURL != ""
}

func (s *Service) drainLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ev := s.queue.Dequeue(); ev != nil {
				s.handle(ctx, ev)
			}
		}
	}
}

// handle drives one event from arrival to delivery. Every fault is caught
// here and converted to a log entry; nothing propagates to the caller.
func (s *Service) handle(ctx context.Context, ev *gtr.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic while handling event", logx.Any("panic", r))
		}
	}()

	if ev == nil {
		return
	}

	// Cheapest checks first: destination, then dedup, then eligibility.
	dest, ok := s.dest.Get()
	if !ok {
		s.skipped.Add(1)
		metrics.EventsDiscarded.WithLabelValues("no_destination").Inc()
		return
	}

	key := ev.Key()
	if s.dedup.HasSeen(key) {
		metrics.EventsDiscarded.WithLabelValues("duplicate").Inc()
		return
	}

	rank := gtr.RankWorldRecord
	if !ev.SelfContained() {
		rec, err := s.enricher.GetRecord(ctx, *ev.ID)
		if err != nil {
			s.log.Warn("record fetch failed", logx.String("key", key), logx.Err(err))
			metrics.EventsDiscarded.WithLabelValues("fetch_failed").Inc()
			return
		}
		if rec == nil || !rec.IsWorldRecord || rec.ScreenshotURL == "" {
			s.skipped.Add(1)
			metrics.EventsDiscarded.WithLabelValues("ineligible").Inc()
			return
		}
		full := *ev
		full.User = rec.User
		full.Level = rec.Level
		full.Time = rec.Time
		full.Splits = rec.Splits
		full.ScreenshotURL = rec.ScreenshotURL
		full.IsWorldRecord = true
		full.IsValid = rec.IsValid
		ev = &full
	} else {
		rank = ev.RankOf()
	}

	// Mark seen before delivery so a slow send cannot let a concurrent
	// duplicate interleave. A failed send therefore stays undelivered.
	if !s.dedup.MarkIfNew(key) {
		metrics.EventsDiscarded.WithLabelValues("duplicate").Inc()
		return
	}

	s.inflight.Add(1)
	defer s.inflight.Done()

	enr := Enrichment{
		DisplayName: s.enricher.GetUserName(ctx, ev.User),
	}
	enr.LevelLabel, enr.ThumbnailURL = s.enricher.GetLevelInfo(ctx, ev.Level)

	n, err := BuildNotification(ev, enr, rank)
	if err != nil {
		s.log.Error("failed to build announcement", logx.String("key", key), logx.Err(err))
		metrics.EventsDiscarded.WithLabelValues("format").Inc()
		return
	}

	s.mu.Lock()
	limiter := s.limiter
	s.mu.Unlock()
	if err := limiter.Wait(ctx); err != nil {
		s.failed.Add(1)
		metrics.Deliveries.WithLabelValues("failed").Inc()
		return
	}

	if err := s.sink.Deliver(ctx, dest, n); err != nil {
		s.failed.Add(1)
		metrics.Deliveries.WithLabelValues("failed").Inc()
		s.log.Error("delivery failed", logx.String("key", key), logx.Err(err))
		s.publish("relay.failed", &DeliveryEvent{Key: key, Title: n.Title, ChatID: dest.ChatID, At: time.Now()})
		return
	}

	s.delivered.Add(1)
	metrics.Deliveries.WithLabelValues("sent").Inc()
	s.log.Info("announcement delivered",
		logx.String("key", key),
		logx.String("title", n.Title),
		logx.Int64("chat", dest.ChatID))
	s.publish("relay.delivered", &DeliveryEvent{
		Key:        key,
		Title:      n.Title,
		LevelLabel: n.LevelLabel,
		TimeLabel:  n.TimeLabel,
		Rank:       rank,
		ChatID:     dest.ChatID,
		At:         time.Now(),
	})
}

func (s *Service) publish(typ string, data *DeliveryEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}

// Status is a point-in-time snapshot for /status.
type Status struct {
	Running    bool
	Mode       string
	Armed      bool
	ChatID     int64
	QueueDepth int
	DedupSize  int
	Delivered  uint64
	Failed     uint64
	Skipped    uint64
	Uptime     time.Duration
}

func (s *Service) Status() Status {
	s.mu.Lock()
	mode := s.cfg.Mode
	running := s.sup != nil && s.stopDone == nil
	s.mu.Unlock()

	st := Status{
		Running:    running,
		Mode:       mode,
		QueueDepth: s.queue.Len(),
		DedupSize:  s.dedup.Len(),
		Delivered:  s.delivered.Load(),
		Failed:     s.failed.Load(),
		Skipped:    s.skipped.Load(),
	}
	if t, ok := s.dest.Get(); ok {
		st.Armed = true
		st.ChatID = t.ChatID
	}
	if ns := s.startedAt.Load(); ns != 0 {
		st.Uptime = time.Since(time.Unix(0, ns))
	}
	return st
}
