package nhl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	BaseURL = "https://api-web.nhle.com"

	// GameTypeRegular is the game-log type for regular season games
	GameTypeRegular = 2
)

// DefaultTeams lists every current franchise abbreviation.
var DefaultTeams = []string{
	"ANA", "UTA", "BOS", "BUF", "CAR", "CBJ", "CGY", "CHI", "COL", "DAL", "DET",
	"EDM", "FLA", "LAK", "MIN", "MTL", "NSH", "NJD", "NYI", "NYR", "OTT", "PHI",
	"PIT", "SEA", "SJS", "STL", "TBL", "TOR", "VAN", "VGK", "WSH", "WPG",
}

// StatusError is returned when the API answers with a non-200 status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Client handles NHL web API requests. Requests are spaced by at least delay, across all
// goroutines sharing the client.
type Client struct {
	baseURL string
	http    *http.Client
	delay   time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	last time.Time
}

// New creates a client for baseURL (BaseURL when empty).
func New(baseURL string, delay time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		delay:   delay,
		logger:  logger,
	}
}

// FetchRoster fetches a team's roster for a season (e.g. "20232024").
func (c *Client) FetchRoster(ctx context.Context, team, season string) (map[string]interface{}, error) {
	return c.fetch(ctx, fmt.Sprintf("%s/v1/roster/%s/%s", c.baseURL, team, season))
}

// FetchGameLog fetches one player's per-game log for a season and game type.
func (c *Client) FetchGameLog(ctx context.Context, playerID int64, season string, gameType int) (map[string]interface{}, error) {
	return c.fetch(ctx, fmt.Sprintf("%s/v1/player/%d/game-log/%s/%d", c.baseURL, playerID, season, gameType))
}

// FetchGameLanding fetches the game center landing document, which carries the scoring summary.
func (c *Client) FetchGameLanding(ctx context.Context, gameID int64) (map[string]interface{}, error) {
	return c.fetch(ctx, fmt.Sprintf("%s/v1/gamecenter/%d/landing", c.baseURL, gameID))
}

// wait blocks until the next request slot.
func (c *Client) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return nil
	}

	c.mu.Lock()
	next := c.last.Add(c.delay)
	now := time.Now()
	if next.Before(now) {
		next = now
	}
	c.last = next
	c.mu.Unlock()

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) fetch(ctx context.Context, url string) (map[string]interface{}, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("nhl request", zap.String("url", url))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w (body: %s)", err, string(body[:min(len(body), 200)]))
	}

	return result, nil
}
