package gtr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "gtrbot/pkg/logx"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL, 2*time.Second, logx.Nop())
}

func TestGetRecord(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/records/7", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"user":1,"level":2,"time":65.2,"isWr":true,"screenshotUrl":"https://x/s.png"}`))
	})

	rec, err := c.GetRecord(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, rec.IsWorldRecord)
	require.Equal(t, 65.2, rec.Time)
	require.Equal(t, "https://x/s.png", rec.ScreenshotURL)
}

func TestGetRecordNon200(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := c.GetRecord(context.Background(), 7)
	require.Error(t, err)
}

func TestGetUserNameFallsBackToUnknown(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/1":
			_, _ = w.Write([]byte(`{"id":1,"steamName":"Zeepy"}`))
		case "/users/2":
			_, _ = w.Write([]byte(`{"id":2,"steamName":""}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	})

	require.Equal(t, "Zeepy", c.GetUserName(context.Background(), 1))
	require.Equal(t, UnknownName, c.GetUserName(context.Background(), 2))
	require.Equal(t, UnknownName, c.GetUserName(context.Background(), 3))
}

func TestGetLevelInfo(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/levels/2" {
			_, _ = w.Write([]byte(`{"id":2,"name":"Loop","author":"Builder","thumbnailUrl":"https://x/t.png"}`))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	label, thumb := c.GetLevelInfo(context.Background(), 2)
	require.Equal(t, "Loop by Builder", label)
	require.Equal(t, "https://x/t.png", thumb)

	label, thumb = c.GetLevelInfo(context.Background(), 9)
	require.Equal(t, UnknownLevel, label)
	require.Empty(t, thumb)
}

func TestDecodeEventShapes(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"id":123}`))
	require.NoError(t, err)
	require.False(t, ev.SelfContained())
	require.Equal(t, "record:123", ev.Key())

	ev, err = DecodeEvent([]byte(`{"user":1,"level":2,"time":65.2,"isWorldRecord":true,"isValid":true}`))
	require.NoError(t, err)
	require.True(t, ev.SelfContained())
	require.Equal(t, RankWorldRecord, ev.RankOf())

	_, err = DecodeEvent([]byte(`not json`))
	require.Error(t, err)
}
