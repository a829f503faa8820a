// Package gtr models the GTR backend's stream events and REST lookups.
package gtr

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Event is one message off the record stream. Two shapes arrive on the same
// feed:
//
//   - identifier-only: {"id": 123}
//   - self-contained:  {"user": 1, "level": 2, "time": 65.2, "splits": [...],
//     "screenshotUrl": "...", "isWorldRecord": true, "isBest": false,
//     "isValid": true}
//
// The self-contained shape carries everything needed to rank the run; the
// identifier-only shape needs a follow-up record fetch.
type Event struct {
	ID *int `json:"id,omitempty"`

	User          int       `json:"user,omitempty"`
	Level         int       `json:"level,omitempty"`
	Time          float64   `json:"time,omitempty"`
	Splits        []float64 `json:"splits,omitempty"`
	ScreenshotURL string    `json:"screenshotUrl,omitempty"`
	IsWorldRecord bool      `json:"isWorldRecord,omitempty"`
	IsBest        bool      `json:"isBest,omitempty"`
	IsValid       bool      `json:"isValid,omitempty"`
}

// SelfContained reports whether the event carries full run data (no record
// fetch needed).
func (e *Event) SelfContained() bool { return e.ID == nil }

// Key returns the dedup identifier for the event. Identifier-only events key
// on the record id; self-contained events have no server-assigned id, so the
// run's own coordinates stand in for one.
func (e *Event) Key() string {
	if e.ID != nil {
		return fmt.Sprintf("record:%d", *e.ID)
	}
	return fmt.Sprintf("run:%d:%d:%.3f", e.User, e.Level, e.Time)
}

// DecodeEvent parses a raw stream message. A document that is valid JSON but
// matches neither shape decodes to a zero event, which the pipeline discards
// downstream.
func DecodeEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Record is the full run as returned by GET /records/{id}.
type Record struct {
	ID            int       `json:"id"`
	User          int       `json:"user"`
	Level         int       `json:"level"`
	Time          float64   `json:"time"`
	Splits        []float64 `json:"splits"`
	ScreenshotURL string    `json:"screenshotUrl"`
	IsWorldRecord bool      `json:"isWr"`
	IsBest        bool      `json:"isBest"`
	IsValid       bool      `json:"isValid"`
}

// User is the subset of GET /users/{id} the bot cares about.
type User struct {
	ID        int    `json:"id"`
	SteamName string `json:"steamName"`
}

// Level is the subset of GET /levels/{id} the bot cares about.
type Level struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Author       string `json:"author"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Rank orders a run by achievement. Higher wins when picking a title.
type Rank int

const (
	RankDefault Rank = iota
	RankInvalid
	RankPersonalBest
	RankWorldRecord
)

// RankOf computes the run's rank as a priority-ordered match.
func (e *Event) RankOf() Rank {
	switch {
	case e.IsWorldRecord:
		return RankWorldRecord
	case e.IsBest:
		return RankPersonalBest
	case !e.IsValid:
		return RankInvalid
	default:
		return RankDefault
	}
}
