package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gtrbot/internal/gtr"
	kit "gtrbot/internal/transport"
	logx "gtrbot/pkg/logx"
)

type fakeEnricher struct {
	mu      sync.Mutex
	records map[int]*gtr.Record
	fetches int
}

func (f *fakeEnricher) GetRecord(_ context.Context, id int) (*gtr.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("record %d not found", id)
	}
	return rec, nil
}

func (f *fakeEnricher) GetUserName(context.Context, int) string { return "Zeepy" }

func (f *fakeEnricher) GetLevelInfo(context.Context, int) (string, string) {
	return "Loop by Builder", ""
}

type fakeSink struct {
	mu        sync.Mutex
	delivered []*Notification
	targets   []kit.ChatTarget
	err       error
}

func (f *fakeSink) Deliver(_ context.Context, to kit.ChatTarget, n *Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, n)
	f.targets = append(f.targets, to)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func newTestService(t *testing.T, mode string, sink Sink, enr Enricher) *Service {
	t.Helper()
	if enr == nil {
		enr = &fakeEnricher{}
	}
	cfg := Config{
		Enabled:       true,
		Mode:          mode,
		DrainInterval: 5 * time.Millisecond,
		RatePerSec:    1000,
	}
	return New(cfg, enr, sink, logx.Nop(), nil)
}

func TestDirectModeEndToEnd(t *testing.T) {
	sink := &fakeSink{}
	s := newTestService(t, ModeDirect, sink, nil)
	s.SetDestination(kit.ChatTarget{ChatID: 42})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	raw := []byte(`{"user":1,"level":2,"time":65.2,"splits":[30.1,35.1],"isWorldRecord":true,"isValid":true}`)
	s.HandleRaw(context.Background(), raw)

	require.Equal(t, 1, sink.count())
	n := sink.delivered[0]
	require.Contains(t, n.Title, "has set a new world record!")
	require.Equal(t, "01:05.200", n.TimeLabel)
	require.Equal(t, "00:30.100, 00:35.100", n.Splits)
	require.Equal(t, int64(42), sink.targets[0].ChatID)
}

func TestUnsetDestinationDropsWithoutMarking(t *testing.T) {
	sink := &fakeSink{}
	s := newTestService(t, ModeDirect, sink, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	raw := []byte(`{"user":1,"level":2,"time":10,"isValid":true}`)
	s.HandleRaw(context.Background(), raw)
	require.Equal(t, 0, sink.count())
	require.Equal(t, 0, s.dedup.Len())

	// Arming afterwards lets the same event through: it was never seen.
	s.SetDestination(kit.ChatTarget{ChatID: 1})
	s.HandleRaw(context.Background(), raw)
	require.Equal(t, 1, sink.count())
}

func TestDuplicateIdentifierDeliversOnce(t *testing.T) {
	enr := &fakeEnricher{records: map[int]*gtr.Record{
		7: {ID: 7, User: 1, Level: 2, Time: 12.5, ScreenshotURL: "https://storage.googleapis.com/zeepkist-gtr/screenshots/x.png", IsWorldRecord: true, IsValid: true},
	}}
	sink := &fakeSink{}
	s := newTestService(t, ModeDirect, sink, enr)
	s.SetDestination(kit.ChatTarget{ChatID: 1})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	raw := []byte(`{"id":7}`)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.HandleRaw(context.Background(), raw)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, sink.count())
}

func TestIdentifierEligibility(t *testing.T) {
	enr := &fakeEnricher{records: map[int]*gtr.Record{
		1: {ID: 1, IsWorldRecord: false, ScreenshotURL: "https://x/s.png"},
		2: {ID: 2, IsWorldRecord: true, ScreenshotURL: ""},
		3: {ID: 3, IsWorldRecord: true, ScreenshotURL: "https://x/s.png", Time: 9.5},
	}}
	sink := &fakeSink{}
	s := newTestService(t, ModeDirect, sink, enr)
	s.SetDestination(kit.ChatTarget{ChatID: 1})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	for _, id := range []int{1, 2, 3, 99} {
		s.HandleRaw(context.Background(), []byte(fmt.Sprintf(`{"id":%d}`, id)))
	}
	require.Equal(t, 1, sink.count())
	require.Contains(t, sink.delivered[0].Title, "world record")
}

func TestQueuedModeFIFO(t *testing.T) {
	sink := &fakeSink{}
	s := newTestService(t, ModeQueued, sink, nil)
	s.SetDestination(kit.ChatTarget{ChatID: 1})
	s.Start(context.Background())

	for i := 1; i <= 3; i++ {
		raw := []byte(fmt.Sprintf(`{"user":%d,"level":1,"time":%d,"isValid":true}`, i, i))
		s.HandleRaw(context.Background(), raw)
	}

	deadline := time.After(2 * time.Second)
	for sink.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out: delivered %d of 3", sink.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	s.Stop(context.Background())

	for i, want := range []string{"00:01.000", "00:02.000", "00:03.000"} {
		require.Equal(t, want, sink.delivered[i].TimeLabel, "delivery %d out of order", i)
	}
}

func TestMalformedMessageIsNoOp(t *testing.T) {
	sink := &fakeSink{}
	s := newTestService(t, ModeDirect, sink, nil)
	s.SetDestination(kit.ChatTarget{ChatID: 1})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	for _, raw := range []string{"not json", "{}", `{"unrelated":"doc"}`, `[1,2,3]`} {
		s.HandleRaw(context.Background(), []byte(raw))
	}
	require.Equal(t, 0, sink.count())
	require.Equal(t, 0, s.dedup.Len())
}

func TestDeliveryFailureIsFinal(t *testing.T) {
	sink := &fakeSink{err: fmt.Errorf("boom")}
	s := newTestService(t, ModeDirect, sink, nil)
	s.SetDestination(kit.ChatTarget{ChatID: 1})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	raw := []byte(`{"user":1,"level":2,"time":10,"isValid":true}`)
	s.HandleRaw(context.Background(), raw)
	require.Equal(t, 0, sink.count())

	// Marked seen before the failed send: a retry of the same event is
	// suppressed even though nothing was delivered.
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	s.HandleRaw(context.Background(), raw)
	require.Equal(t, 0, sink.count())
	require.Equal(t, uint64(1), s.Status().Failed)
}

func TestStopDrainsQueue(t *testing.T) {
	sink := &fakeSink{}
	s := newTestService(t, ModeQueued, sink, nil)
	s.SetDestination(kit.ChatTarget{ChatID: 1})
	// Slow ticks so events are still queued when Stop runs.
	s.Apply(Config{Enabled: true, DrainInterval: time.Hour, RatePerSec: 1000})
	s.Start(context.Background())

	for i := 1; i <= 5; i++ {
		raw := []byte(fmt.Sprintf(`{"user":%d,"level":1,"time":%d,"isValid":true}`, i, i))
		s.HandleRaw(context.Background(), raw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
	require.Equal(t, 5, sink.count())
}

func TestDedupMarkIfNewConcurrent(t *testing.T) {
	d := newDedup()
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.MarkIfNew("record:1") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("MarkIfNew won %d times, want 1", wins)
	}
}

func TestQueueFIFO(t *testing.T) {
	q := newQueue()
	if q.Dequeue() != nil {
		t.Fatal("empty queue should dequeue nil")
	}
	for i := 0; i < 3; i++ {
		id := i
		q.Enqueue(&gtr.Event{ID: &id})
	}
	for i := 0; i < 3; i++ {
		ev := q.Dequeue()
		if ev == nil || *ev.ID != i {
			t.Fatalf("dequeue %d: got %v", i, ev)
		}
	}
}
