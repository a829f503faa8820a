// Package stream maintains the websocket connection to the GTR record feed
// and hands raw messages to a handler. Reconnects are supervised with
// backoff; the handler never sees connection lifecycle.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gtrbot/internal/metrics"
	rtsup "gtrbot/internal/runtime/supervisor"
	logx "gtrbot/pkg/logx"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultMaxMessageBytes = 512 * 1024
	defaultHandshake       = 10 * time.Second
)

// Handler receives one raw text message. It must not block for long; in
// queued pipelines it only enqueues.
type Handler func(ctx context.Context, raw []byte)

type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	MaxMessageBytes  int64
}

// Source is the dial-side websocket consumer.
type Source struct {
	mu sync.Mutex

	log     logx.Logger
	cfg     Config
	handler Handler

	conn     *websocket.Conn
	sup      *rtsup.Supervisor
	stopDone chan struct{}
}

func New(cfg Config, handler Handler, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshake
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	return &Source{log: log, cfg: cfg, handler: handler}
}

// Start launches the supervised connect-and-read loop. Idempotent.
func (s *Source) Start(ctx context.Context) {
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
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "stream"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("stream.read", func(c context.Context) error {
		err := s.runOnce(c)
		if c.Err() != nil {
			return c.Err()
		}
		metrics.StreamReconnects.Inc()
		if err == nil {
			err = errors.New("stream closed")
		}
		return err
	},
		rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
}

// Stop sends a normal-closure frame and waits for the read loop to exit,
// bounded by ctx.
func (s *Source) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	sup := s.sup
	if sup == nil {
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
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing")
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
	}

	go func() {
		defer close(done)
		_ = sup.Stop(context.Background())
		s.mu.Lock()
		s.sup = nil
		s.conn = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// runOnce dials, reads until the connection drops or ctx is canceled, and
// returns the terminal error. The supervisor handles the backoff.
func (s *Source) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.log.Info("stream connected", logx.String("url", s.cfg.URL))

	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Keepalive pings. Closing the connection unblocks ReadMessage, so the
	// ping loop owns teardown on ctx cancel; the read loop signals it via
	// readDone when the connection drops first.
	readDone := make(chan struct{})
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-readDone:
				return
			case <-t.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
	defer func() {
		close(readDone)
		<-pingDone
	}()

	for {
		typ, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if typ != websocket.TextMessage {
			continue
		}
		metrics.StreamMessages.Inc()
		s.handler(ctx, raw)
	}
}
