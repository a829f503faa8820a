// Package commands implements the owner-only admin surface: /start, /stop,
// /status and /recent. Messages from anyone else are ignored silently.
package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gtrbot/internal/history"
	"gtrbot/internal/relay"
	kit "gtrbot/internal/transport"
	logx "gtrbot/pkg/logx"
)

type Handler struct {
	relay   *relay.Service
	store   history.Store
	adapter kit.Adapter
	owners  map[int64]struct{}
	log     logx.Logger
}

func New(r *relay.Service, store history.Store, adapter kit.Adapter, owners []int64, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	own := make(map[int64]struct{}, len(owners))
	for _, id := range owners {
		own[id] = struct{}{}
	}
	return &Handler{relay: r, store: store, adapter: adapter, owners: own, log: log}
}

// Handle processes one inbound update. Non-commands and non-owners are
// dropped without a reply.
func (h *Handler) Handle(ctx context.Context, upd kit.Update) {
	msg := upd.Message
	if msg == nil || !strings.HasPrefix(msg.Text, "/") {
		return
	}
	if _, ok := h.owners[msg.FromID]; !ok {
		return
	}

	fields := strings.Fields(msg.Text)
	cmd := strings.TrimPrefix(fields[0], "/")
	// "/status@gtrbot" addresses this bot in a group
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}

	switch strings.ToLower(cmd) {
	case "start":
		h.cmdStart(ctx, msg, fields[1:])
	case "stop":
		h.cmdStop(ctx, msg)
	case "status":
		h.cmdStatus(ctx, msg)
	case "recent":
		h.cmdRecent(ctx, msg, fields[1:])
	}
}

// cmdStart arms the relay. Without an argument the announcement target is
// the chat the command came from; an explicit chat id overrides that.
func (h *Handler) cmdStart(ctx context.Context, msg *kit.Message, args []string) {
	target := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id == 0 {
			h.reply(ctx, msg, "Usage: /start [chat_id]")
			return
		}
		target = kit.ChatTarget{ChatID: id}
	}
	h.relay.SetDestination(target)
	h.log.Info("relay armed", logx.Int64("chat", target.ChatID), logx.Int64("by", msg.FromID))
	h.reply(ctx, msg, "Started")
}

func (h *Handler) cmdStop(ctx context.Context, msg *kit.Message) {
	h.relay.ClearDestination()
	h.log.Info("relay disarmed", logx.Int64("by", msg.FromID))
	h.reply(ctx, msg, "Stopped")
}

func (h *Handler) cmdStatus(ctx context.Context, msg *kit.Message) {
	st := h.relay.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "relay: running=%v mode=%s\n", st.Running, st.Mode)
	if st.Armed {
		fmt.Fprintf(&b, "destination: %d\n", st.ChatID)
	} else {
		b.WriteString("destination: unset\n")
	}
	fmt.Fprintf(&b, "delivered=%d failed=%d skipped=%d\n", st.Delivered, st.Failed, st.Skipped)
	fmt.Fprintf(&b, "queue=%d dedup=%d\n", st.QueueDepth, st.DedupSize)
	if st.Uptime > 0 {
		fmt.Fprintf(&b, "uptime=%s", st.Uptime.Round(time.Second))
	}
	h.reply(ctx, msg, b.String())
}

func (h *Handler) cmdRecent(ctx context.Context, msg *kit.Message, args []string) {
	if h.store == nil {
		h.reply(ctx, msg, "history is disabled")
		return
	}
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	items, err := h.store.Recent(ctx, limit)
	if err != nil {
		h.log.Warn("recent lookup failed", logx.Err(err))
		h.reply(ctx, msg, "history lookup failed")
		return
	}
	if len(items) == 0 {
		h.reply(ctx, msg, "no deliveries yet")
		return
	}
	var b strings.Builder
	for _, d := range items {
		status := "ok"
		if !d.OK {
			status = "failed"
		}
		fmt.Fprintf(&b, "%s  %s  [%s]\n", d.At.Format("02 Jan 15:04"), d.Title, status)
	}
	h.reply(ctx, msg, strings.TrimRight(b.String(), "\n"))
}

func (h *Handler) reply(ctx context.Context, msg *kit.Message, text string) {
	to := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if _, err := h.adapter.SendText(ctx, to, text, nil); err != nil {
		h.log.Warn("reply failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
	}
}
