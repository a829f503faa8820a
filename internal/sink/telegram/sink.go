// Package telegram renders announcements and posts them through the
// transport adapter. One send per notification; failures are final.
package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"

	"gtrbot/internal/relay"
	kit "gtrbot/internal/transport"
	logx "gtrbot/pkg/logx"
)

// Sink delivers announcements as a photo (the run screenshot) with an HTML
// caption.
type Sink struct {
	adapter kit.Adapter
	log     logx.Logger
}

func New(adapter kit.Adapter, log logx.Logger) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{adapter: adapter, log: log}
}

// Deliver sends the notification once. No retry on failure.
func (s *Sink) Deliver(ctx context.Context, to kit.ChatTarget, n *relay.Notification) error {
	caption := renderCaption(n)
	opt := &kit.SendOptions{ParseMode: "HTML"}

	if n.ImageURL != "" {
		if _, err := s.adapter.SendPhoto(ctx, to, n.ImageURL, caption, opt); err != nil {
			return fmt.Errorf("send photo: %w", err)
		}
		return nil
	}
	if _, err := s.adapter.SendText(ctx, to, caption, opt); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

func renderCaption(n *relay.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(n.Title))
	fmt.Fprintf(&b, "<a href=%q>%s</a>\n\n", n.AuthorURL, html.EscapeString(n.AuthorName))
	fmt.Fprintf(&b, "<b>Level:</b> %s\n", html.EscapeString(n.LevelLabel))
	fmt.Fprintf(&b, "<b>Time:</b> %s\n", n.TimeLabel)
	fmt.Fprintf(&b, "<b>Splits:</b> %s", n.Splits)
	return b.String()
}
