// Package app wires the bot together: config, logging, transport, the
// relay pipeline, and the optional history/digest/debug services.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gtrbot/internal/commands"
	"gtrbot/internal/config"
	"gtrbot/internal/digest"
	"gtrbot/internal/eventbus"
	"gtrbot/internal/gtr"
	"gtrbot/internal/history"
	"gtrbot/internal/observability/debugsrv"
	"gtrbot/internal/relay"
	rtsup "gtrbot/internal/runtime/supervisor"
	sinktg "gtrbot/internal/sink/telegram"
	"gtrbot/internal/stream"
	kit "gtrbot/internal/transport"
	telegram "gtrbot/internal/transport/telegram/adapter"
	logx "gtrbot/pkg/logx"
)

// StopReason labels why the app is shutting down, for the final log line.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter kit.Adapter
	store   history.Store

	relay    *relay.Service
	source   *stream.Source
	digest   *digest.Service
	debug    *debugsrv.Service
	recorder *history.Recorder
	cmds     *commands.Handler

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap logging with the Telegram sink disabled, set the target,
	// then Apply() the final config so Apply doesn't warn about a missing
	// target.
	baseLogCfg := mapLogConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))
	applyLogTarget(logSvc, cfg)
	logSvc.Apply(mapLogConfig(cfg))

	bus := eventbus.New()

	var store history.Store
	if hc := mapHistoryConfig(cfg); hc.Driver != "" {
		st, err := history.Open(hc, log.With(logx.String("comp", "history")))
		if err != nil {
			return nil, err
		}
		store = st
		if store != nil {
			log.Info("history enabled", logx.String("driver", hc.Driver))
		}
	}

	apiTimeout, err := config.ParseDurationOrDefault("api.timeout", cfg.API.Timeout, 8*time.Second)
	if err != nil {
		return nil, err
	}
	client := gtr.NewClient(cfg.API.BaseURL, apiTimeout, log.With(logx.String("comp", "gtr")))

	sink := sinktg.New(ad, log.With(logx.String("comp", "sink")))

	rcfg, err := mapRelayConfig(cfg)
	if err != nil {
		return nil, err
	}
	relaySvc := relay.New(rcfg, client, sink, log.With(logx.String("comp", "relay")), bus)

	handshake, err := config.ParseDurationOrDefault("stream.handshake_timeout", cfg.Stream.HandshakeTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	source := stream.New(stream.Config{
		URL:              cfg.Stream.URL,
		HandshakeTimeout: handshake,
		MaxMessageBytes:  cfg.Stream.MaxMessageBytes,
	}, relaySvc.HandleRaw, log.With(logx.String("comp", "stream")))

	digestSvc := digest.New(mapDigestConfig(cfg), ad, store, relaySvc.Destination,
		log.With(logx.String("comp", "digest")))

	dbgCfg, err := mapDebugConfig(cfg)
	if err != nil {
		return nil, err
	}
	debugSvc := debugsrv.New(dbgCfg, log.With(logx.String("comp", "debugsrv")))

	recorder := history.NewRecorder(store, bus, log.With(logx.String("comp", "history")))

	cmds := commands.New(relaySvc, store, ad, cfg.Telegram.OwnerUserIDs,
		log.With(logx.String("comp", "commands")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		adapter:  ad,
		store:    store,
		relay:    relaySvc,
		source:   source,
		digest:   digestSvc,
		debug:    debugSvc,
		recorder: recorder,
		cmds:     cmds,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.recorder.Start(a.sup)

	if a.relay.Enabled() {
		a.relay.Start(a.sup.Context())
	}
	a.source.Start(a.sup.Context())
	if a.debug.Enabled() {
		a.debug.Start(a.sup.Context())
	}
	if err := a.digest.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return c.Err()
			case upd, ok := <-a.updates:
				if !ok {
					return nil
				}
				a.cmds.Handle(c, upd)
			}
		}
	})

	// Hot-reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(ctx context.Context, prev, cfg *config.Config) {
	applyLogTarget(a.logs, cfg)
	a.logs.Apply(mapLogConfig(cfg))

	// Relay tunables apply live; mode does not.
	rcfg, err := mapRelayConfig(cfg)
	if err != nil {
		a.log.Warn("invalid relay config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.relay.Enabled()
		a.relay.Apply(rcfg)
		if wasEnabled && !rcfg.Enabled {
			a.log.Info("relay disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.relay.Stop(stopCtx)
			cancel()
		} else if !wasEnabled && rcfg.Enabled {
			a.log.Info("relay enabled via config")
			a.relay.Start(ctx)
		}
	}

	a.digest.Reconfigure(ctx, mapDigestConfig(cfg))

	if dbgCfg, err := mapDebugConfig(cfg); err != nil {
		a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
	} else {
		a.debug.Reconfigure(ctx, dbgCfg)
	}

	// Restart-only sections.
	if prev != nil {
		if prev.Stream != cfg.Stream {
			a.log.Warn("stream config changed; restart required for changes to take effect")
		}
		if prev.API != cfg.API {
			a.log.Warn("api config changed; restart required for changes to take effect")
		}
		if !historyEqual(prev.History, cfg.History) {
			a.log.Warn("history config changed; restart required for changes to take effect")
		}
	}

	a.log.Info("config reloaded")
}

func historyEqual(a, b *config.HistoryConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Stop intake first (stream), then drain the relay, then everything
	// that only serves them.
	step("stream", 3*time.Second, func(c context.Context) error { a.source.Stop(c); return nil })
	step("relay", 5*time.Second, func(c context.Context) error { a.relay.Stop(c); return nil })
	step("digest", 2*time.Second, func(c context.Context) error { a.digest.Stop(c); return nil })
	step("debugsrv", 1*time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("history", 1*time.Second, func(c context.Context) error {
		a.recorder.Stop()
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func applyLogTarget(logs *logx.Service, cfg *config.Config) {
	if raw := strings.TrimSpace(cfg.Telegram.GroupLog); raw != "" {
		if chatID, err := strconv.ParseInt(raw, 10, 64); err == nil {
			logs.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
			return
		}
	}
	logs.SetTelegramTarget(0, 0)
}

func mapRelayConfig(cfg *config.Config) (relay.Config, error) {
	drain, err := config.ParseDurationOrDefault("relay.drain_interval", cfg.Relay.DrainInterval, time.Second)
	if err != nil {
		return relay.Config{}, err
	}
	enabled := true
	if cfg.Relay.Enabled != nil {
		enabled = *cfg.Relay.Enabled
	}
	return relay.Config{
		Enabled:       enabled,
		Mode:          cfg.Relay.Mode,
		DrainInterval: drain,
		RatePerSec:    cfg.Relay.RatePerSec,
		ChatID:        cfg.Relay.ChatID,
	}, nil
}

func mapHistoryConfig(cfg *config.Config) history.Config {
	if cfg.History == nil {
		return history.Config{}
	}
	busy, _ := config.ParseDurationOrDefault("history.busy_timeout", cfg.History.BusyTimeout, 5*time.Second)
	return history.Config{
		Driver:      cfg.History.Driver,
		Path:        cfg.History.Path,
		BusyTimeout: busy,
		Keep:        cfg.History.Keep,
	}
}

func mapDigestConfig(cfg *config.Config) digest.Config {
	if cfg.Digest == nil {
		return digest.Config{}
	}
	return digest.Config{
		Enabled:  cfg.Digest.Enabled,
		Schedule: cfg.Digest.Schedule,
		Timezone: cfg.Digest.Timezone,
	}
}

func mapDebugConfig(cfg *config.Config) (debugsrv.Config, error) {
	if cfg.Debug == nil {
		return debugsrv.Config{}, nil
	}
	read, err := config.ParseDurationOrDefault("debug.read_timeout", cfg.Debug.ReadTimeout, 0)
	if err != nil {
		return debugsrv.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("debug.write_timeout", cfg.Debug.WriteTimeout, 0)
	if err != nil {
		return debugsrv.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("debug.idle_timeout", cfg.Debug.IdleTimeout, 0)
	if err != nil {
		return debugsrv.Config{}, err
	}
	return debugsrv.Config{
		Enabled:       cfg.Debug.Enabled,
		Addr:          cfg.Debug.Addr,
		Prefix:        cfg.Debug.Prefix,
		Token:         cfg.Debug.Token,
		AllowInsecure: cfg.Debug.AllowInsecure,
		Metrics:       cfg.Debug.Metrics,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}
