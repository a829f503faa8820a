package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gtrbot/internal/gtr"
	logx "gtrbot/pkg/logx"
)

func openFileStore(t *testing.T, keep int) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.jsonl")
	st, err := Open(Config{Driver: "file", Path: path, Keep: keep}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st, path
}

func TestFileStoreAppendAndRecent(t *testing.T) {
	st, _ := openFileStore(t, 10)
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d := Delivery{
			At:     time.Now().Add(time.Duration(i) * time.Second),
			Key:    "record:" + string(rune('a'+i)),
			Title:  "t",
			ChatID: 1,
			OK:     true,
		}
		if err := st.AppendDelivery(ctx, d); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].Key != "record:c" || got[1].Key != "record:b" {
		t.Fatalf("order wrong: %q, %q", got[0].Key, got[1].Key)
	}
}

func TestFileStoreKeepBound(t *testing.T) {
	st, _ := openFileStore(t, 2)
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := st.AppendDelivery(ctx, Delivery{Key: "k", Title: "t", OK: true}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := st.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want keep=2", len(got))
	}
}

func TestFileStoreReplayAcrossReopen(t *testing.T) {
	st, path := openFileStore(t, 10)
	ctx := context.Background()
	if err := st.AppendDelivery(ctx, Delivery{Key: "record:1", Title: "t", OK: true}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st2, err := Open(Config{Driver: "file", Path: path, Keep: 10}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	got, err := st2.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Key != "record:1" {
		t.Fatalf("replay got %+v", got)
	}
}

func TestFileStoreCountSince(t *testing.T) {
	st, _ := openFileStore(t, 10)
	defer st.Close()

	ctx := context.Background()
	now := time.Now()
	entries := []Delivery{
		{At: now.Add(-2 * time.Hour), Key: "old", OK: true, Rank: int(gtr.RankWorldRecord)},
		{At: now.Add(-10 * time.Minute), Key: "wr", OK: true, Rank: int(gtr.RankWorldRecord)},
		{At: now.Add(-5 * time.Minute), Key: "pb", OK: true, Rank: int(gtr.RankPersonalBest)},
		{At: now.Add(-1 * time.Minute), Key: "fail", OK: false, Rank: int(gtr.RankWorldRecord)},
	}
	for _, d := range entries {
		d.Title = "t"
		if err := st.AppendDelivery(ctx, d); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	total, wrs, err := st.CountSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if total != 2 || wrs != 1 {
		t.Fatalf("total=%d wrs=%d, want 2/1", total, wrs)
	}
}

func TestOpenDisabled(t *testing.T) {
	st, err := Open(Config{Driver: ""}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("disabled open: st=%v err=%v", st, err)
	}
	st, err = Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("disabled open: st=%v err=%v", st, err)
	}
}
