package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gtrbot/internal/relay"
	kit "gtrbot/internal/transport"
	logx "gtrbot/pkg/logx"
)

type recordingAdapter struct {
	photos   []string
	captions []string
	texts    []string
	err      error
}

func (a *recordingAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *recordingAdapter) Stop(context.Context) error                     { return nil }

func (a *recordingAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	if a.err != nil {
		return kit.MessageRef{}, a.err
	}
	a.texts = append(a.texts, text)
	return kit.MessageRef{}, nil
}

func (a *recordingAdapter) SendPhoto(_ context.Context, _ kit.ChatTarget, photoURL, caption string, _ *kit.SendOptions) (kit.MessageRef, error) {
	if a.err != nil {
		return kit.MessageRef{}, a.err
	}
	a.photos = append(a.photos, photoURL)
	a.captions = append(a.captions, caption)
	return kit.MessageRef{}, nil
}

func sampleNotification() *relay.Notification {
	return &relay.Notification{
		Title:      "Zeepy has set a new world record!",
		AuthorName: "Zeepkist GTR",
		AuthorURL:  "https://zeepkist-gtr.com",
		ImageURL:   "https://storage.googleapis.com/zeepkist-gtr/screenshots/s.png",
		LevelLabel: "Loop <3 by Builder",
		TimeLabel:  "01:05.200",
		Splits:     "00:30.100, 00:35.100",
	}
}

func TestDeliverSendsPhotoWithCaption(t *testing.T) {
	a := &recordingAdapter{}
	s := New(a, logx.Nop())

	if err := s.Deliver(context.Background(), kit.ChatTarget{ChatID: 1}, sampleNotification()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(a.photos) != 1 {
		t.Fatalf("photos sent = %d, want 1", len(a.photos))
	}
	cap := a.captions[0]
	for _, want := range []string{"world record", "01:05.200", "00:30.100, 00:35.100", "Loop &lt;3 by Builder"} {
		if !strings.Contains(cap, want) {
			t.Errorf("caption missing %q:\n%s", want, cap)
		}
	}
}

func TestDeliverFallsBackToTextWithoutImage(t *testing.T) {
	a := &recordingAdapter{}
	s := New(a, logx.Nop())
	n := sampleNotification()
	n.ImageURL = ""

	if err := s.Deliver(context.Background(), kit.ChatTarget{ChatID: 1}, n); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(a.photos) != 0 || len(a.texts) != 1 {
		t.Fatalf("photos=%d texts=%d, want 0/1", len(a.photos), len(a.texts))
	}
}

func TestDeliverPropagatesError(t *testing.T) {
	a := &recordingAdapter{err: errors.New("telegram down")}
	s := New(a, logx.Nop())
	if err := s.Deliver(context.Background(), kit.ChatTarget{ChatID: 1}, sampleNotification()); err == nil {
		t.Fatal("expected error")
	}
}
