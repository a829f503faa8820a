package history

import (
	"context"

	"gtrbot/internal/eventbus"
	"gtrbot/internal/relay"
	rtsup "gtrbot/internal/runtime/supervisor"
	logx "gtrbot/pkg/logx"
)

// Recorder subscribes to relay delivery events and appends them to the
// store. Best-effort: a write failure is logged and the event is gone.
type Recorder struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger

	unsub func()
}

func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, bus: bus, log: log}
}

// Start begins consuming delivery events on the given supervisor. No-op if
// the store or bus is absent.
func (r *Recorder) Start(sup *rtsup.Supervisor) {
	if r.store == nil || r.bus == nil {
		return
	}
	ch, unsub := r.bus.Subscribe(64)
	r.unsub = unsub
	sup.Go0("history.record", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				r.record(ctx, ev)
			}
		}
	})
}

func (r *Recorder) Stop() {
	if r.unsub != nil {
		r.unsub()
		r.unsub = nil
	}
}

func (r *Recorder) record(ctx context.Context, ev eventbus.Event) {
	de, ok := ev.Data.(*relay.DeliveryEvent)
	if !ok {
		return
	}
	d := Delivery{
		At:         de.At,
		Key:        de.Key,
		Title:      de.Title,
		LevelLabel: de.LevelLabel,
		TimeLabel:  de.TimeLabel,
		Rank:       int(de.Rank),
		ChatID:     de.ChatID,
		OK:         ev.Type == "relay.delivered",
	}
	if !d.OK {
		d.Error = "delivery failed"
	}
	if err := r.store.AppendDelivery(ctx, d); err != nil {
		r.log.Warn("history append failed", logx.String("key", d.Key), logx.Err(err))
	}
}
