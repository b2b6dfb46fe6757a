package nhl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/roster/EDM/20232024", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rosterJSON))
	})
	mux.HandleFunc("/v1/player/8478402/game-log/20232024/2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(gameLogJSON))
	})
	mux.HandleFunc("/v1/gamecenter/2023020003/landing", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(landingJSON))
	})
	mux.HandleFunc("/v1/roster/XXX/20232024", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Fetch(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, 0, nil)
	ctx := context.Background()

	roster, err := c.FetchRoster(ctx, "EDM", "20232024")
	require.NoError(t, err)
	assert.Len(t, extractArray(roster, "forwards"), 2)

	log, err := c.FetchGameLog(ctx, 8478402, "20232024", GameTypeRegular)
	require.NoError(t, err)
	assert.Len(t, extractArray(log, "gameLog"), 2)

	landing, err := c.FetchGameLanding(ctx, 2023020003)
	require.NoError(t, err)
	assert.Equal(t, "2023-10-11", extractString(landing, "gameDate"))
}

func TestClient_Errors(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, 0, nil)

	_, err := c.FetchRoster(context.Background(), "SEA", "20232024")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	_, err = c.FetchRoster(context.Background(), "XXX", "20232024")
	assert.ErrorContains(t, err, "decoding response")
}

func TestClient_ThrottleHonoursContext(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, time.Hour, nil)

	_, err := c.FetchRoster(context.Background(), "EDM", "20232024")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.FetchRoster(ctx, "EDM", "20232024")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
