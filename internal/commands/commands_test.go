package commands

import (
	"context"
	"strings"
	"testing"

	"gtrbot/internal/relay"
	kit "gtrbot/internal/transport"
	logx "gtrbot/pkg/logx"
)

type nopSink struct{}

func (nopSink) Deliver(context.Context, kit.ChatTarget, *relay.Notification) error { return nil }

type captureAdapter struct {
	texts []string
}

func (a *captureAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *captureAdapter) Stop(context.Context) error                     { return nil }

func (a *captureAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.texts = append(a.texts, text)
	return kit.MessageRef{}, nil
}

func (a *captureAdapter) SendPhoto(_ context.Context, _ kit.ChatTarget, _, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func newHandler(a *captureAdapter) (*Handler, *relay.Service) {
	r := relay.New(relay.Config{Enabled: true}, nil, nopSink{}, logx.Nop(), nil)
	return New(r, nil, a, []int64{100}, logx.Nop()), r
}

func ownerMsg(text string) kit.Update {
	return kit.Update{Message: &kit.Message{ChatID: 7, FromID: 100, Text: text}}
}

func TestStartArmsRelay(t *testing.T) {
	a := &captureAdapter{}
	h, r := newHandler(a)

	h.Handle(context.Background(), ownerMsg("/start"))
	to, ok := r.Destination()
	if !ok || to.ChatID != 7 {
		t.Fatalf("destination = %+v ok=%v", to, ok)
	}
	if len(a.texts) != 1 || a.texts[0] != "Started" {
		t.Fatalf("replies = %v", a.texts)
	}
}

func TestStartWithExplicitChatID(t *testing.T) {
	a := &captureAdapter{}
	h, r := newHandler(a)

	h.Handle(context.Background(), ownerMsg("/start -100123"))
	to, ok := r.Destination()
	if !ok || to.ChatID != -100123 {
		t.Fatalf("destination = %+v ok=%v", to, ok)
	}

	h.Handle(context.Background(), ownerMsg("/start nope"))
	if len(a.texts) != 2 || !strings.Contains(a.texts[1], "Usage") {
		t.Fatalf("replies = %v", a.texts)
	}
}

func TestStopDisarmsRelay(t *testing.T) {
	a := &captureAdapter{}
	h, r := newHandler(a)

	h.Handle(context.Background(), ownerMsg("/start"))
	h.Handle(context.Background(), ownerMsg("/stop"))
	if _, ok := r.Destination(); ok {
		t.Fatal("destination still set after /stop")
	}
}

func TestNonOwnerIsSilentlyIgnored(t *testing.T) {
	a := &captureAdapter{}
	h, r := newHandler(a)

	h.Handle(context.Background(), kit.Update{Message: &kit.Message{ChatID: 7, FromID: 999, Text: "/start"}})
	if _, ok := r.Destination(); ok {
		t.Fatal("non-owner armed the relay")
	}
	if len(a.texts) != 0 {
		t.Fatalf("non-owner got a reply: %v", a.texts)
	}
}

func TestStatusReportsState(t *testing.T) {
	a := &captureAdapter{}
	h, _ := newHandler(a)

	h.Handle(context.Background(), ownerMsg("/status"))
	if len(a.texts) != 1 {
		t.Fatalf("replies = %v", a.texts)
	}
	if !strings.Contains(a.texts[0], "destination: unset") {
		t.Fatalf("status = %q", a.texts[0])
	}
}

func TestBotSuffixAndCase(t *testing.T) {
	a := &captureAdapter{}
	h, r := newHandler(a)

	h.Handle(context.Background(), ownerMsg("/START@gtrbot"))
	if _, ok := r.Destination(); !ok {
		t.Fatal("suffixed command was not recognized")
	}
}

func TestRecentWithoutHistory(t *testing.T) {
	a := &captureAdapter{}
	h, _ := newHandler(a)

	h.Handle(context.Background(), ownerMsg("/recent"))
	if len(a.texts) != 1 || !strings.Contains(a.texts[0], "disabled") {
		t.Fatalf("replies = %v", a.texts)
	}
}
