package relay

import (
	"strings"
	"testing"

	"gtrbot/internal/gtr"
)

func TestFormatTime(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "00:00.000"},
		{-1, "00:00.000"},
		{65.2, "01:05.200"},
		{125.5, "02:05.500"},
		{3599.999, "59:59.999"},
		{3600, "01:00:00.000"},
		{3725.25, "01:02:05.250"},
		{0.0004, "00:00.000"},
		{0.0006, "00:00.001"},
	}
	for _, c := range cases {
		if got := FormatTime(c.in); got != c.want {
			t.Errorf("FormatTime(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatSplits(t *testing.T) {
	if got := FormatSplits(nil); got != "" {
		t.Fatalf("FormatSplits(nil) = %q, want empty", got)
	}
	if got := FormatSplits([]float64{}); got != "" {
		t.Fatalf("FormatSplits(empty) = %q, want empty", got)
	}
	got := FormatSplits([]float64{30.1, 35.1})
	if got != "00:30.100, 00:35.100" {
		t.Fatalf("FormatSplits = %q", got)
	}
}

func TestNormalizeStorageURL(t *testing.T) {
	direct := "https://storage.googleapis.com/zeepkist-gtr/screenshots/abc.png"
	if got := NormalizeStorageURL(direct); got != direct {
		t.Fatalf("direct URL changed: %q", got)
	}
	download := "https://storage.googleapis.com/download/storage/v1/b/zeepkist-gtr/o/screenshots/abc.png"
	want := "https://storage.googleapis.com/zeepkist-gtr/screenshots/abc.png"
	if got := NormalizeStorageURL(download); got != want {
		t.Fatalf("NormalizeStorageURL = %q, want %q", got, want)
	}
	other := "https://example.com/x.png"
	if got := NormalizeStorageURL(other); got != other {
		t.Fatalf("unrelated URL changed: %q", got)
	}
}

func TestTitleRanking(t *testing.T) {
	cases := []struct {
		ev   gtr.Event
		want string
	}{
		{gtr.Event{IsWorldRecord: true, IsBest: true, IsValid: true}, "world record"},
		{gtr.Event{IsBest: true, IsValid: true}, "personal best"},
		{gtr.Event{IsValid: false}, "invalid run"},
		{gtr.Event{IsValid: true}, "finished a run"},
	}
	for i, c := range cases {
		got := Title("Zeepy", c.ev.RankOf())
		if !strings.Contains(got, c.want) {
			t.Errorf("case %d: title %q does not contain %q", i, got, c.want)
		}
		if !strings.HasPrefix(got, "Zeepy ") {
			t.Errorf("case %d: title %q missing player name", i, got)
		}
	}
}

func TestBuildNotification(t *testing.T) {
	ev := &gtr.Event{
		User:          1,
		Level:         2,
		Time:          65.2,
		Splits:        []float64{30.1, 35.1},
		ScreenshotURL: "https://storage.googleapis.com/download/storage/v1/b/zeepkist-gtr/o/screenshots/s.png",
		IsWorldRecord: true,
		IsValid:       true,
	}
	enr := Enrichment{
		DisplayName:  "Zeepy",
		LevelLabel:   "Loop by Builder",
		ThumbnailURL: "https://storage.googleapis.com/zeepkist-gtr/thumbnails/t.png",
	}
	n, err := BuildNotification(ev, enr, ev.RankOf())
	if err != nil {
		t.Fatalf("BuildNotification: %v", err)
	}
	if n.Title != "Zeepy has set a new world record!" {
		t.Errorf("title = %q", n.Title)
	}
	if n.TimeLabel != "01:05.200" {
		t.Errorf("time = %q", n.TimeLabel)
	}
	if n.Splits != "00:30.100, 00:35.100" {
		t.Errorf("splits = %q", n.Splits)
	}
	if n.ImageURL != "https://storage.googleapis.com/zeepkist-gtr/screenshots/s.png" {
		t.Errorf("image = %q", n.ImageURL)
	}
	if n.ThumbnailURL != enr.ThumbnailURL {
		t.Errorf("thumbnail = %q", n.ThumbnailURL)
	}
	if n.AuthorName != "Zeepkist GTR" {
		t.Errorf("author = %q", n.AuthorName)
	}
}

func TestBuildNotificationRejectsOversizedCaption(t *testing.T) {
	ev := &gtr.Event{User: 1, Level: 2, Time: 1, IsValid: true}
	enr := Enrichment{
		DisplayName: "Zeepy",
		LevelLabel:  strings.Repeat("x", 2000),
	}
	if _, err := BuildNotification(ev, enr, ev.RankOf()); err == nil {
		t.Fatal("expected error for oversized caption")
	}
}
