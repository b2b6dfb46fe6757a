package backfill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/cache"
	"github.com/fortuna/linemate/internal/ingest/nhl"
	"github.com/fortuna/linemate/internal/store"
	"github.com/fortuna/linemate/internal/store/repository"
)

func newTestDB(t *testing.T) *store.Database {
	t.Helper()
	db, err := store.NewDatabase(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(context.Background()))
	return db
}

type mockIngester struct {
	mock.Mock
}

func (m *mockIngester) IngestSeason(ctx context.Context, season string, teams []string, progress nhl.Progress) (*nhl.SeasonResult, error) {
	args := m.Called(ctx, season, teams, progress)
	if res, ok := args.Get(0).(*nhl.SeasonResult); ok {
		for _, t := range teams {
			progress.OnTeamDone(t, 1, len(res.Records))
		}
		for _, f := range res.Failures {
			progress.OnFailure(f)
		}
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockIngester) IngestScoringPlays(ctx context.Context, gameIDs []int64) (*nhl.PlaysResult, error) {
	args := m.Called(ctx, gameIDs)
	res, _ := args.Get(0).(*nhl.PlaysResult)
	return res, args.Error(1)
}

type mockRecomputer struct {
	mock.Mock
}

func (m *mockRecomputer) Run(ctx context.Context, season, prior, trigger string) (*store.PipelineRun, error) {
	args := m.Called(ctx, season, prior, trigger)
	run, _ := args.Get(0).(*store.PipelineRun)
	return run, args.Error(1)
}

type mockResults struct {
	mock.Mock
}

func (m *mockResults) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	args := m.Called(ctx, key, dest)
	return args.Bool(0), args.Error(1)
}

func (m *mockResults) SetJSON(ctx context.Context, key string, value interface{}) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockResults) InvalidateSeason(ctx context.Context, season string) error {
	return m.Called(ctx, season).Error(0)
}

func edmLogs() []analysis.GameRecord {
	return []analysis.GameRecord{
		{PlayerID: 8478402, FirstName: "Connor", LastName: "McDavid", TeamAbbrev: "EDM", GameID: 2023020003, GameDate: "2023-10-11", Points: 1},
		{PlayerID: 8477934, FirstName: "Leon", LastName: "Draisaitl", TeamAbbrev: "EDM", GameID: 2023020003, GameDate: "2023-10-11", Points: 1},
		{PlayerID: 8478402, FirstName: "Connor", LastName: "McDavid", TeamAbbrev: "EDM", GameID: 2023020020, GameDate: "2023-10-14"},
	}
}

func TestRequest_Normalize(t *testing.T) {
	req, err := Request{Season: " 20232024 ", Teams: []string{"edm", " ", "Tor"}}.normalize()
	require.NoError(t, err)
	assert.Equal(t, "20232024", req.Season)
	assert.Equal(t, []string{"EDM", "TOR"}, req.Teams)
	require.NotNil(t, req.ScoringPlays)
	assert.True(t, *req.ScoringPlays)

	_, err = Request{Season: "2023"}.normalize()
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = Request{Season: "20232024", Teams: []string{"XXX"}}.normalize()
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPreviousSeason(t *testing.T) {
	assert.Equal(t, "20222023", PreviousSeason("20232024"))
	assert.Equal(t, "", PreviousSeason("bogus"))
}

func TestService_RunsQueuedJob(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	ing := &mockIngester{}
	ing.On("IngestSeason", mock.Anything, "20232024", []string{"EDM"}, mock.Anything).Return(&nhl.SeasonResult{
		Season:   "20232024",
		Records:  edmLogs(),
		Players:  2,
		Failures: []analysis.EntityFailure{{Kind: "player", ID: "8480803", Err: "status 500"}},
	}, nil)
	ing.On("IngestScoringPlays", mock.Anything, []int64{2023020003, 2023020020}).Return(&nhl.PlaysResult{
		Plays: map[int64][]analysis.ScoringPlay{
			2023020003: {{GameID: 2023020003, GameDate: "2023-10-11", Team: "EDM", Scorer: "Leon Draisaitl", Assist1: "Connor McDavid"}},
		},
		Failures: []analysis.EntityFailure{{Kind: "game", ID: "2023020020", Err: "status 404"}},
	}, nil)

	rec := &mockRecomputer{}
	rec.On("Run", mock.Anything, "20232024", "20222023", "backfill").Return(&store.PipelineRun{RunID: "run-1"}, nil)

	svc := NewService(db, NewRunner(db, ing, rec, nil, nil), nil, nil)

	job, err := svc.Enqueue(ctx, Request{Season: "20232024", Teams: []string{"edm"}, Recompute: true})
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Len(t, job.JobID, 36)

	ran, err := svc.RunNext(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	stored, err := svc.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, stored.Status)
	assert.Equal(t, []string{"EDM"}, stored.Teams)
	assert.True(t, stored.Recompute)
	assert.Equal(t, 3, stored.RecordsIngested)
	assert.Equal(t, 2, stored.Failures)
	assert.Equal(t, 1, stored.ProgressCurrent)
	assert.True(t, stored.CompletedAt.Valid)

	logs, err := repository.NewGameLogRepository(db).ListBySeason(ctx, "20232024")
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	plays, err := repository.NewScoringPlayRepository(db).ListBySeason(ctx, "20232024")
	require.NoError(t, err)
	assert.Len(t, plays, 1)

	ing.AssertExpectations(t)
	rec.AssertExpectations(t)

	ran, err = svc.RunNext(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "queue drained")

	status, err := svc.GetStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.ActiveJob)
	require.Len(t, status.History, 1)
}

func TestService_FailedJob(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	ing := &mockIngester{}
	ing.On("IngestSeason", mock.Anything, "20232024", mock.Anything, mock.Anything).Return(nil, errors.New("api down"))

	svc := NewService(db, NewRunner(db, ing, nil, nil, nil), nil, nil)
	job, err := svc.Enqueue(ctx, Request{Season: "20232024"})
	require.NoError(t, err)
	assert.Equal(t, len(nhl.DefaultTeams), job.ProgressTotal)

	_, err = svc.RunNext(ctx)
	require.NoError(t, err)

	stored, err := svc.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	require.True(t, stored.LastError.Valid)
	assert.Contains(t, stored.LastError.String, "api down")
}

func TestService_DryRun(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ing := &mockIngester{}

	svc := NewService(db, NewRunner(db, ing, nil, nil, nil), nil, nil)
	job, err := svc.Enqueue(ctx, Request{Season: "20232024", DryRun: true})
	require.NoError(t, err)

	_, err = svc.RunNext(ctx)
	require.NoError(t, err)

	stored, err := svc.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, stored.Status)
	assert.True(t, stored.DryRun)
	ing.AssertNotCalled(t, "IngestSeason", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_DryRunSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ing := &mockIngester{}

	before := NewService(db, NewRunner(db, ing, nil, nil, nil), nil, nil)
	job, err := before.Enqueue(ctx, Request{Season: "20232024", Teams: []string{"EDM"}, DryRun: true})
	require.NoError(t, err)

	// a fresh service over the same database picks the queued job up
	after := NewService(db, NewRunner(db, ing, nil, nil, nil), nil, nil)
	ran, err := after.RunNext(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	stored, err := after.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, stored.Status)
	assert.True(t, stored.DryRun)
	ing.AssertNotCalled(t, "IngestSeason", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	logs, err := repository.NewGameLogRepository(db).ListBySeason(ctx, "20232024")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRunner_InvalidatesCaches(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	ing := &mockIngester{}
	ing.On("IngestSeason", mock.Anything, "20232024", []string{"EDM"}, mock.Anything).Return(&nhl.SeasonResult{
		Season:  "20232024",
		Records: edmLogs(),
		Players: 2,
	}, nil)

	stale, _ := analysis.NewStore("20232024", edmLogs()[:1])
	other, _ := analysis.NewStore("20222023", nil)
	stores := cache.NewStoreCache(4)
	stores.Add("20232024", stale)
	stores.Add("20222023", other)

	results := &mockResults{}
	results.On("InvalidateSeason", mock.Anything, "20232024").Return(nil)

	runner := NewRunner(db, ing, nil, nil, nil)
	runner.SetCaches(stores, results)

	outcome, err := runner.Run(ctx, JobSpec{Season: "20232024", Teams: []string{"EDM"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Records)

	_, ok := stores.Get("20232024")
	assert.False(t, ok, "ingested season is reloaded on the next query")
	_, ok = stores.Get("20222023")
	assert.True(t, ok)
	results.AssertCalled(t, "InvalidateSeason", mock.Anything, "20232024")
}

func TestRunner_DryRunKeepsCaches(t *testing.T) {
	stores := cache.NewStoreCache(2)
	cached, _ := analysis.NewStore("20232024", edmLogs())
	stores.Add("20232024", cached)
	results := &mockResults{}

	runner := NewRunner(newTestDB(t), &mockIngester{}, nil, nil, nil)
	runner.SetCaches(stores, results)

	_, err := runner.Run(context.Background(), JobSpec{Season: "20232024", DryRun: true}, nil)
	require.NoError(t, err)

	_, ok := stores.Get("20232024")
	assert.True(t, ok)
	results.AssertNotCalled(t, "InvalidateSeason", mock.Anything, mock.Anything)
}

func TestRepository_GetJobNotFound(t *testing.T) {
	_, err := NewRepository(newTestDB(t)).GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
