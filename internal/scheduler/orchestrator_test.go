package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/linemate/internal/backfill"
	"github.com/fortuna/linemate/internal/store"
)

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, req backfill.Request) (*backfill.Job, error) {
	args := m.Called(ctx, req)
	job, _ := args.Get(0).(*backfill.Job)
	return job, args.Error(1)
}

type mockRecomputer struct {
	mock.Mock
}

func (m *mockRecomputer) Run(ctx context.Context, season, prior, trigger string) (*store.PipelineRun, error) {
	args := m.Called(ctx, season, prior, trigger)
	run, _ := args.Get(0).(*store.PipelineRun)
	return run, args.Error(1)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	_, err := NewOrchestrator(Config{}, nil, nil, nil)
	assert.Error(t, err)

	_, err = NewOrchestrator(Config{Spec: "not a cron"}, nil, &mockRecomputer{}, nil)
	assert.ErrorContains(t, err, "parsing schedule")
}

func TestOrchestrator_TickEnqueues(t *testing.T) {
	enq := &mockEnqueuer{}
	enq.On("Enqueue", mock.Anything, backfill.Request{Season: "20232024", Teams: []string{"EDM"}, Recompute: true}).
		Return(&backfill.Job{JobID: "job-1"}, nil).Once()

	o, err := NewOrchestrator(Config{Season: "20232024", PriorSeason: "20222023", Teams: []string{"EDM"}}, enq, nil, nil)
	require.NoError(t, err)

	o.Tick(context.Background())
	enq.AssertExpectations(t)

	at, lastErr := o.LastRun()
	assert.False(t, at.IsZero())
	assert.NoError(t, lastErr)
}

func TestOrchestrator_TickRecomputes(t *testing.T) {
	rec := &mockRecomputer{}
	rec.On("Run", mock.Anything, "20232024", "20222023", "schedule").Return(nil, errors.New("no data")).Once()

	o, err := NewOrchestrator(Config{Season: "20232024", PriorSeason: "20222023"}, nil, rec, nil)
	require.NoError(t, err)

	o.Tick(context.Background())
	rec.AssertExpectations(t)

	_, lastErr := o.LastRun()
	assert.EqualError(t, lastErr, "no data")
}

func TestOrchestrator_StartStop(t *testing.T) {
	o, err := NewOrchestrator(Config{Spec: "@hourly", Season: "20232024"}, nil, &mockRecomputer{}, nil)
	require.NoError(t, err)

	o.Start()
	assert.False(t, o.Next().IsZero())
	require.NoError(t, o.Stop(context.Background()))
}
