package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gtrbot/internal/gtr"
	logx "gtrbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// One append-only JSON Lines file holds every delivery; the most recent
// entries are mirrored in memory so Recent and CountSince never re-read the
// file on the hot path.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	file *os.File

	keep   int
	recent []Delivery // oldest first, at most keep entries
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for file driver")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, keep: cfg.Keep}
	if err := s.loadTail(path); err != nil {
		log.Warn("history replay failed; starting empty", logx.String("path", path), logx.Err(err))
		s.recent = nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.file = f
	return s, nil
}

// loadTail replays the jsonl file, keeping only the newest entries. Corrupt
// lines (e.g. from a crash mid-append) are skipped.
func (s *fileStore) loadTail(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var d Delivery
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			continue
		}
		s.recent = append(s.recent, d)
		if len(s.recent) > s.keep {
			s.recent = s.recent[len(s.recent)-s.keep:]
		}
	}
	return sc.Err()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendDelivery(ctx context.Context, d Delivery) error {
	_ = ctx
	if d.At.IsZero() {
		d.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("history file closed")
	}
	if err := json.NewEncoder(s.file).Encode(d); err != nil {
		return err
	}
	s.recent = append(s.recent, d)
	if len(s.recent) > s.keep {
		s.recent = s.recent[len(s.recent)-s.keep:]
	}
	return nil
}

func (s *fileStore) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]Delivery, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

func (s *fileStore) CountSince(ctx context.Context, since time.Time) (int, int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	total, wrs := 0, 0
	for i := len(s.recent) - 1; i >= 0; i-- {
		d := s.recent[i]
		if d.At.Before(since) {
			break
		}
		if !d.OK {
			continue
		}
		total++
		if d.Rank == int(gtr.RankWorldRecord) {
			wrs++
		}
	}
	return total, wrs, nil
}
