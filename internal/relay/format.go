package relay

import (
	"fmt"
	"math"
	"strings"

	"gtrbot/internal/gtr"
)

const (
	authorName = "Zeepkist GTR"
	authorURL  = "https://zeepkist-gtr.com"

	storageCanonicalPrefix = "https://storage.googleapis.com/zeepkist-gtr/"
	storageDownloadPrefix  = "https://storage.googleapis.com/download/storage/v1/b/zeepkist-gtr/o/"

	maxCaptionRunes = 1024
)

// Enrichment is the resolved display metadata for one event. Produced fresh
// per event and discarded after formatting.
type Enrichment struct {
	DisplayName  string
	LevelLabel   string
	ThumbnailURL string
}

// Notification is the fully-formatted announcement handed to the sink.
type Notification struct {
	Title        string
	AuthorName   string
	AuthorURL    string
	ThumbnailURL string
	ImageURL     string

	LevelLabel string
	TimeLabel  string
	Splits     string
}

// FormatTime renders a duration in seconds as MM:SS.mmm, or HH:MM:SS.mmm at
// one hour and above. Negative inputs clamp to zero.
func FormatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
	}
	return fmt.Sprintf("%02d:%02d.%03d", m, s, ms)
}

// FormatSplits renders each split with FormatTime, comma-joined. Nil or
// empty input renders as an empty string.
func FormatSplits(splits []float64) string {
	if len(splits) == 0 {
		return ""
	}
	parts := make([]string, len(splits))
	for i, s := range splits {
		parts[i] = FormatTime(s)
	}
	return strings.Join(parts, ", ")
}

// NormalizeStorageURL rewrites GCS "download" API object URLs to their
// direct form. URLs already in the direct form pass through unchanged.
func NormalizeStorageURL(url string) string {
	if strings.HasPrefix(url, storageCanonicalPrefix) {
		return url
	}
	return strings.Replace(url, storageDownloadPrefix, storageCanonicalPrefix, 1)
}

// Title picks the headline by the run's rank.
func Title(name string, rank gtr.Rank) string {
	switch rank {
	case gtr.RankWorldRecord:
		return fmt.Sprintf("%s has set a new world record!", name)
	case gtr.RankPersonalBest:
		return fmt.Sprintf("%s has set a new personal best!", name)
	case gtr.RankInvalid:
		return fmt.Sprintf("%s has finished an invalid run!", name)
	default:
		return fmt.Sprintf("%s has finished a run!", name)
	}
}

// BuildNotification composes the announcement for a ranked run. It is a pure
// transform; any composition failure is returned to the caller, which logs
// and abandons the event.
func BuildNotification(ev *gtr.Event, enr Enrichment, rank gtr.Rank) (*Notification, error) {
	title := Title(enr.DisplayName, rank)
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("relay: empty title")
	}
	n := &Notification{
		Title:        title,
		AuthorName:   authorName,
		AuthorURL:    authorURL,
		ThumbnailURL: NormalizeStorageURL(enr.ThumbnailURL),
		ImageURL:     NormalizeStorageURL(ev.ScreenshotURL),
		LevelLabel:   enr.LevelLabel,
		TimeLabel:    FormatTime(ev.Time),
		Splits:       FormatSplits(ev.Splits),
	}
	if n.captionRunes() > maxCaptionRunes {
		return nil, fmt.Errorf("relay: caption too long (%d runes)", n.captionRunes())
	}
	return n, nil
}

func (n *Notification) captionRunes() int {
	total := 0
	for _, s := range []string{n.Title, n.AuthorName, n.LevelLabel, n.TimeLabel, n.Splits} {
		total += len([]rune(s))
	}
	return total
}
