package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/backfill"
	"github.com/fortuna/linemate/internal/cache"
	"github.com/fortuna/linemate/internal/export"
	"github.com/fortuna/linemate/internal/ingest/nhl"
	"github.com/fortuna/linemate/internal/publisher"
	"github.com/fortuna/linemate/internal/store"
	"github.com/fortuna/linemate/internal/store/repository"
)

const (
	current = "20232024"
	prior   = "20222023"
)

func newTestDB(t *testing.T) *store.Database {
	t.Helper()
	db, err := store.NewDatabase(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(context.Background()))
	return db
}

// season builds one team's logs: each player gets one row per game with the given points.
func season(team string, gameBase int64, points map[string][]int) []analysis.GameRecord {
	var rows []analysis.GameRecord
	id := int64(1)
	for name, series := range points {
		first, last := name, "Skater"
		for g, p := range series {
			rows = append(rows, analysis.GameRecord{
				PlayerID:   gameBase + id,
				FirstName:  first,
				LastName:   last,
				TeamAbbrev: team,
				GameID:     gameBase + int64(g),
				GameDate:   fmt.Sprintf("2023-11-%02d", g+1),
				Points:     p,
				Goals:      p,
			})
		}
		id++
	}
	return rows
}

func seed(t *testing.T, db *store.Database, label string, rows []analysis.GameRecord) {
	t.Helper()
	_, err := repository.NewGameLogRepository(db).UpsertBatch(context.Background(), label, rows)
	require.NoError(t, err)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publisher.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e publisher.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []publisher.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publisher.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func TestPipelineService_Run(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	seed(t, db, current, season("EDM", 2023020000, map[string][]int{
		"A": {1, 0, 2, 1},
		"B": {1, 0, 2, 0},
		"C": {0, 1, 0, 1},
	}))
	// Prior has only the A-B pair; it is computed on demand
	seed(t, db, prior, season("EDM", 2022020000, map[string][]int{
		"A": {0, 1, 2},
		"B": {0, 1, 2},
	}))

	pub := &recordingPublisher{}
	dir := t.TempDir()
	stores := cache.NewStoreCache(2)
	svc := NewPipelineService(db, analysis.StatPoints, PipelineDeps{
		Stores:    stores,
		Publisher: pub,
		Exporter:  export.NewExporter(dir, nil, nil),
	})

	run, err := svc.Run(ctx, current, prior, TriggerCommand)
	require.NoError(t, err)

	assert.Equal(t, store.RunStatusCompleted, run.Status)
	assert.Equal(t, 12, run.Records)
	assert.Equal(t, 1, run.Teams)
	assert.Equal(t, 3, run.Pairs)
	assert.Equal(t, 1, run.MatchedPrior)
	assert.True(t, run.FinishedAt.Valid)

	assert.Equal(t, []publisher.EventType{publisher.EventPipelineStarted, publisher.EventPipelineCompleted}, pub.types())

	_, ok := stores.Get(current)
	assert.True(t, ok, "fresh store is cached")

	corr := repository.NewCorrelationRepository(db)
	priorTable, err := corr.ListSeason(ctx, prior, analysis.StatPoints)
	require.NoError(t, err)
	require.Len(t, priorTable, 1)
	assert.Equal(t, analysis.Coefficient(1), priorTable[0].Correlation)

	joined, err := corr.ListJoined(ctx, current, prior)
	require.NoError(t, err)
	require.Len(t, joined, 3)
	for _, j := range joined {
		if j.PairID == "A Skater-B Skater" {
			require.True(t, j.HasPrior())
			assert.Equal(t, analysis.Coefficient(1), *j.PriorCorrelation)
			assert.Equal(t, 3, *j.PriorTotalPointsA)
		} else {
			assert.False(t, j.HasPrior())
		}
	}

	_, err = os.Stat(filepath.Join(dir, export.CorrelationsName(current)))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, export.JoinedName(current, prior)))
	assert.NoError(t, err)

	runs, err := svc.RecentRuns(ctx, current, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.RunID, runs[0].RunID)
	assert.Equal(t, 3, runs[0].Pairs)
}

func TestPipelineService_PriorTableFollowsGameLogs(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	seed(t, db, current, season("EDM", 2023020000, map[string][]int{
		"A": {1, 0, 2},
		"B": {1, 0, 2},
	}))
	seed(t, db, prior, season("EDM", 2022020000, map[string][]int{
		"A": {0, 1, 2},
		"B": {0, 1, 2},
	}))

	corr := repository.NewCorrelationRepository(db)
	svc := NewPipelineService(db, analysis.StatPoints, PipelineDeps{})
	_, err := svc.Run(ctx, current, prior, TriggerCommand)
	require.NoError(t, err)

	table, err := corr.ListSeason(ctx, prior, analysis.StatPoints)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, analysis.Coefficient(1), table[0].Correlation)

	// Corrected prior logs replace the computed table on the next run
	seed(t, db, prior, season("EDM", 2022020000, map[string][]int{
		"A": {0, 1, 2},
		"B": {2, 1, 0},
	}))
	_, err = svc.Run(ctx, current, prior, TriggerCommand)
	require.NoError(t, err)

	table, err = corr.ListSeason(ctx, prior, analysis.StatPoints)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, analysis.Coefficient(-1), table[0].Correlation)

	joined, err := corr.ListJoined(ctx, current, prior)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	require.True(t, joined[0].HasPrior())
	assert.Equal(t, analysis.Coefficient(-1), *joined[0].PriorCorrelation)

	// A pipeline on another stat does not reuse the points table
	goals := NewPipelineService(db, analysis.StatGoals, PipelineDeps{})
	_, err = goals.Run(ctx, current, prior, TriggerCommand)
	require.NoError(t, err)
	_, err = corr.ListSeason(ctx, prior, analysis.StatGoals)
	assert.NoError(t, err)
	_, err = corr.ListSeason(ctx, prior, analysis.StatPoints)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPipelineService_RunWithoutData(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewPipelineService(newTestDB(t), "", PipelineDeps{Publisher: pub})

	run, err := svc.Run(context.Background(), current, "", TriggerAPI)
	assert.ErrorIs(t, err, ErrNoGameLogs)
	require.NotNil(t, run)
	assert.Equal(t, store.RunStatusFailed, run.Status)
	assert.True(t, run.ErrorMessage.Valid)
	assert.Equal(t, []publisher.EventType{publisher.EventPipelineStarted, publisher.EventPipelineFailed}, pub.types())
}

func TestQueryService(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seed(t, db, current, season("EDM", 2023020000, map[string][]int{
		"A": {1, 0, 2, 1},
		"B": {1, 0, 2, 0},
		"C": {0, 1, 0, 1},
	}))

	stores := cache.NewStoreCache(2)
	_, err := NewPipelineService(db, "", PipelineDeps{Stores: stores}).Run(ctx, current, prior, TriggerCommand)
	require.NoError(t, err)

	q := NewQueryService(db, stores, nil, analysis.TrioOptions{Limit: 5, MaxRoster: 60}, nil)

	t.Run("correlations", func(t *testing.T) {
		all, err := q.Correlations(ctx, current, prior, analysis.CorrelationFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		withC, err := q.Correlations(ctx, current, prior, analysis.CorrelationFilter{Name: "c skater"})
		require.NoError(t, err)
		assert.Len(t, withC, 2)

		_, err = q.Correlations(ctx, "19992000", prior, analysis.CorrelationFilter{})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("games", func(t *testing.T) {
		games, err := q.Games(ctx, current, []analysis.GameCondition{
			{Player: "A Skater", Stat: analysis.StatPoints, Min: 1},
			{Player: "B Skater", Stat: analysis.StatPoints, Min: 1},
		}, true)
		require.NoError(t, err)
		assert.Equal(t, []analysis.GameRef{
			{GameID: 2023020000, GameDate: "2023-11-01"},
			{GameID: 2023020002, GameDate: "2023-11-03"},
		}, games)

		_, err = q.Games(ctx, "19992000", nil, true)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("trios", func(t *testing.T) {
		trios, err := q.Trios(ctx, current, "edm", analysis.TrioOptions{})
		require.NoError(t, err)
		require.Len(t, trios, 1)
		assert.Equal(t, 0, trios[0].Count)

		n, err := q.TrioCount(ctx, current, "EDM", [3]string{"C Skater", "A Skater", "B Skater"}, analysis.TrioOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		_, err = q.Trios(ctx, current, "SEA", analysis.TrioOptions{})
		assert.ErrorIs(t, err, analysis.ErrUnknownTeam)
	})

	t.Run("involvement", func(t *testing.T) {
		plays := repository.NewScoringPlayRepository(db)
		require.NoError(t, plays.ReplaceGame(ctx, current, 2023020000, []analysis.ScoringPlay{
			{GameID: 2023020000, GameDate: "2023-11-01", Team: "EDM", Scorer: "A Skater", Assist1: "B Skater"},
			{GameID: 2023020000, GameDate: "2023-11-01", Team: "EDM", Scorer: "B Skater"},
		}))

		summary, err := q.Involvement(ctx, current, "A Skater")
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Plays)
		require.Len(t, summary.Teammates, 1)
		assert.Equal(t, analysis.Involvement{Teammate: "B Skater", Count: 1, Percentage: 100}, summary.Teammates[0])
	})

	t.Run("summary", func(t *testing.T) {
		s, err := q.Summary(ctx, current)
		require.NoError(t, err)
		assert.Equal(t, 12, s.GameLogs)
		assert.Equal(t, 3, s.Pairs)
	})
}

type staticIngester struct {
	records []analysis.GameRecord
}

func (i staticIngester) IngestSeason(_ context.Context, s string, _ []string, _ nhl.Progress) (*nhl.SeasonResult, error) {
	return &nhl.SeasonResult{Season: s, Records: i.records}, nil
}

func (i staticIngester) IngestScoringPlays(context.Context, []int64) (*nhl.PlaysResult, error) {
	return &nhl.PlaysResult{}, nil
}

func TestQueryService_SeesBackfilledGames(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	game := func(id int64, date string) []analysis.GameRecord {
		var rows []analysis.GameRecord
		for n, first := range []string{"A", "B", "C"} {
			rows = append(rows, analysis.GameRecord{
				PlayerID: int64(n + 1), FirstName: first, LastName: "Skater", TeamAbbrev: "EDM",
				GameID: id, GameDate: date, Points: 1, Goals: 1,
			})
		}
		return rows
	}
	seed(t, db, current, game(2023020001, "2023-11-01"))

	stores := cache.NewStoreCache(2)
	q := NewQueryService(db, stores, nil, analysis.TrioOptions{}, nil)
	conds := []analysis.GameCondition{{Player: "A Skater", Stat: analysis.StatPoints, Min: 1}}
	trio := [3]string{"A Skater", "B Skater", "C Skater"}

	games, err := q.Games(ctx, current, conds, true)
	require.NoError(t, err)
	require.Len(t, games, 1)
	n, err := q.TrioCount(ctx, current, "EDM", trio, analysis.TrioOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A backfill adds a second game without recomputing
	runner := backfill.NewRunner(db, staticIngester{records: game(2023020002, "2023-11-03")}, nil, nil, nil)
	runner.SetCaches(stores, cache.Nop{})
	_, err = runner.Run(ctx, backfill.JobSpec{Season: current, Teams: []string{"EDM"}}, nil)
	require.NoError(t, err)

	games, err = q.Games(ctx, current, conds, true)
	require.NoError(t, err)
	assert.Len(t, games, 2)
	n, err = q.TrioCount(ctx, current, "EDM", trio, analysis.TrioOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPlayerService_Suggest(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seed(t, db, current, []analysis.GameRecord{
		{PlayerID: 1, FirstName: "Connor", LastName: "McDavid", TeamAbbrev: "EDM", GameID: 1, GameDate: "2023-10-11"},
		{PlayerID: 2, FirstName: "Connor", LastName: "Bedard", TeamAbbrev: "CHI", GameID: 2, GameDate: "2023-10-11"},
		{PlayerID: 3, FirstName: "Leon", LastName: "Draisaitl", TeamAbbrev: "EDM", GameID: 1, GameDate: "2023-10-11"},
	})
	svc := NewPlayerService(db)

	got, err := svc.Suggest(ctx, current, "mcdav", 5)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "Connor McDavid", got[0].Name)

	got, err = svc.Suggest(ctx, current, "connor", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = svc.Suggest(ctx, current, "  ", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	teams, err := svc.Teams(ctx, current)
	require.NoError(t, err)
	assert.Equal(t, []string{"CHI", "EDM"}, teams)

	roster, err := svc.Roster(ctx, current, "edm")
	require.NoError(t, err)
	assert.Equal(t, []string{"Connor McDavid", "Leon Draisaitl"}, roster)
}
