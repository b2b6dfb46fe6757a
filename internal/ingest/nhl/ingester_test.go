package nhl

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/linemate/internal/analysis"
)

type fakeFetcher struct {
	rosters  map[string]string
	logs     map[int64]string
	landings map[int64]string
}

func (f *fakeFetcher) get(docs map[string]string, key string) (map[string]interface{}, error) {
	doc, ok := docs[key]
	if !ok {
		return nil, &StatusError{URL: key, StatusCode: 404}
	}
	return decodeString(doc)
}

func decodeString(s string) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (f *fakeFetcher) FetchRoster(ctx context.Context, team, season string) (map[string]interface{}, error) {
	return f.get(f.rosters, team)
}

func (f *fakeFetcher) FetchGameLog(ctx context.Context, playerID int64, season string, gameType int) (map[string]interface{}, error) {
	doc, ok := f.logs[playerID]
	if !ok {
		return nil, errors.New("connection reset")
	}
	return decodeString(doc)
}

func (f *fakeFetcher) FetchGameLanding(ctx context.Context, gameID int64) (map[string]interface{}, error) {
	doc, ok := f.landings[gameID]
	if !ok {
		return nil, &StatusError{URL: strconv.FormatInt(gameID, 10), StatusCode: 404}
	}
	return decodeString(doc)
}

type recordingProgress struct {
	mu       sync.Mutex
	teams    map[string]int
	failures []analysis.EntityFailure
}

func (p *recordingProgress) OnTeamDone(team string, players, records int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.teams == nil {
		p.teams = map[string]int{}
	}
	p.teams[team] = records
}

func (p *recordingProgress) OnFailure(f analysis.EntityFailure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, f)
}

func TestIngester_IngestSeason(t *testing.T) {
	fetcher := &fakeFetcher{
		rosters: map[string]string{"EDM": rosterJSON},
		logs: map[int64]string{
			8478402: gameLogJSON,
			8477934: `{"gameLog": []}`,
			// Bouchard's log is missing and fails
		},
	}
	progress := &recordingProgress{}
	ing := NewIngester(fetcher, 0, 4, nil)

	result, err := ing.IngestSeason(context.Background(), "20232024", []string{"EDM", "SEA"}, progress)
	require.NoError(t, err)

	assert.Equal(t, "20232024", result.Season)
	assert.Equal(t, 3, result.Players)
	assert.Len(t, result.Records, 2)
	require.Len(t, result.Failures, 2)

	kinds := map[string]string{}
	for _, f := range result.Failures {
		kinds[f.Kind] = f.ID
	}
	assert.Equal(t, "SEA", kinds["roster"])
	assert.Equal(t, "8480803", kinds["player"])

	assert.Equal(t, map[string]int{"EDM": 2, "SEA": 0}, progress.teams)
	assert.Len(t, progress.failures, 2)
}

func TestIngester_Cancelled(t *testing.T) {
	fetcher := &fakeFetcher{rosters: map[string]string{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ing := NewIngester(&ctxFetcher{fakeFetcher: fetcher}, 0, 1, nil)
	_, err := ing.IngestSeason(ctx, "20232024", []string{"EDM"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// ctxFetcher fails like a real client once the context is done.
type ctxFetcher struct {
	*fakeFetcher
}

func (f *ctxFetcher) FetchRoster(ctx context.Context, team, season string) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.fakeFetcher.FetchRoster(ctx, team, season)
}

func TestIngester_IngestScoringPlays(t *testing.T) {
	fetcher := &fakeFetcher{landings: map[int64]string{2023020003: landingJSON}}
	ing := NewIngester(fetcher, 0, 2, nil)

	result, err := ing.IngestScoringPlays(context.Background(), []int64{2023020003, 2023020099})
	require.NoError(t, err)

	require.Len(t, result.Plays[2023020003], 2)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "game", result.Failures[0].Kind)
	assert.Equal(t, "2023020099", result.Failures[0].ID)
}
