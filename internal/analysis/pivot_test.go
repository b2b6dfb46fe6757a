package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPivot_RestrictsColumnsToTeam(t *testing.T) {
	store, _ := NewStore("2023", []GameRecord{
		line(1, "Brad", "Marchand", "BOS", 1, "2023-10-01", 1),
		line(2, "David", "Pastrnak", "BOS", 1, "2023-10-01", 2),
		line(2, "David", "Pastrnak", "BOS", 2, "2023-10-03", 0),
		line(3, "Auston", "Matthews", "TOR", 3, "2023-10-01", 3),
	})

	pivot, err := BuildPivot(store, "bos", StatPoints)
	require.NoError(t, err)

	assert.Equal(t, "BOS", pivot.Team)
	assert.Equal(t, []string{"Brad Marchand", "David Pastrnak"}, pivot.Players)
	assert.False(t, pivot.HasPlayer("Auston Matthews"))
	require.Len(t, pivot.Rows, 2)
	assert.Equal(t, PivotKey{GameDate: "2023-10-01", Team: "BOS"}, pivot.Rows[0])

	v, ok := pivot.Value("David Pastrnak", 0)
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)

	_, ok = pivot.Value("Brad Marchand", 1)
	assert.False(t, ok, "missing cell stays missing")

	col := pivot.Column("Brad Marchand")
	require.Len(t, col, 2)
	assert.Equal(t, 1.0, col[0])
	assert.True(t, math.IsNaN(col[1]))
	assert.Nil(t, pivot.Column("Auston Matthews"))
}

func TestBuildPivot_AveragesSameDateCollisions(t *testing.T) {
	// Double-header: two games on one date share a pivot row
	store, _ := NewStore("2023", []GameRecord{
		line(1, "A", "One", "NJD", 1, "2023-10-01", 1),
		line(1, "A", "One", "NJD", 2, "2023-10-01", 2),
		line(2, "B", "Two", "NJD", 1, "2023-10-01", 0),
	})

	pivot, err := BuildPivot(store, "NJD", StatPoints)
	require.NoError(t, err)
	assert.Len(t, pivot.Rows, 1)
	assert.Equal(t, 1, pivot.Collisions)

	v, ok := pivot.Value("A One", 0)
	require.True(t, ok)
	assert.Equal(t, 1.5, v)
}

func TestBuildPivot_UnknownTeam(t *testing.T) {
	store, _ := NewStore("2023", []GameRecord{line(1, "A", "One", "NJD", 1, "2023-10-01", 1)})

	_, err := BuildPivot(store, "SEA", StatPoints)
	assert.ErrorIs(t, err, ErrUnknownTeam)
}
