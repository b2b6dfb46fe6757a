package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeGameTeam(a, b, c []int) *Store {
	var rows []GameRecord
	for i := 0; i < 3; i++ {
		game := int64(i + 1)
		date := dateOf(i + 1)
		rows = append(rows,
			line(1, "A", "Skater", "CAR", game, date, a[i]),
			line(2, "B", "Skater", "CAR", game, date, b[i]),
			line(3, "C", "Skater", "CAR", game, date, c[i]),
		)
	}
	store, _ := NewStore("2023", rows)
	return store
}

func TestTopTrios_HandComputedScenario(t *testing.T) {
	t.Run("no game with all three", func(t *testing.T) {
		store := threeGameTeam([]int{1, 0, 2}, []int{0, 1, 1}, []int{1, 1, 0})

		trios, err := TopTrios(store, "CAR", TrioOptions{})
		require.NoError(t, err)
		require.Len(t, trios, 1)
		assert.Equal(t, [3]string{"A Skater", "B Skater", "C Skater"}, trios[0].Players)
		assert.Equal(t, 0, trios[0].Count)
		assert.Equal(t, 3, trios[0].TeamGames)
	})

	t.Run("only game two has all three", func(t *testing.T) {
		store := threeGameTeam([]int{1, 1, 2}, []int{0, 1, 1}, []int{1, 1, 0})

		trios, err := TopTrios(store, "CAR", TrioOptions{})
		require.NoError(t, err)
		require.Len(t, trios, 1)
		assert.Equal(t, 1, trios[0].Count)
	})
}

func TestTopTrios_BoundsOrderingAndLimit(t *testing.T) {
	series := map[string][]int{
		"P1": {1, 1, 1, 1},
		"P2": {1, 1, 1, 0},
		"P3": {1, 1, 0, 0},
		"P4": {1, 0, 0, 0},
		"P5": {0, 0, 0, 0},
	}
	store, _ := NewStore("2023", teamSeason("WPG", 1, series))

	all, err := TopTrios(store, "WPG", TrioOptions{Limit: -1})
	require.NoError(t, err)
	assert.Len(t, all, 10)

	games := store.TeamGameCount("WPG")
	for i, tr := range all {
		assert.GreaterOrEqual(t, tr.Count, 0)
		assert.LessOrEqual(t, tr.Count, games)
		if i > 0 {
			assert.GreaterOrEqual(t, all[i-1].Count, tr.Count)
		}

		n, err := TrioCount(store, "WPG", [3]string{tr.Players[2], tr.Players[0], tr.Players[1]}, TrioOptions{})
		require.NoError(t, err)
		assert.Equal(t, tr.Count, n, "permutation of %v", tr.Players)
	}

	assert.Equal(t, [3]string{"P1 Player", "P2 Player", "P3 Player"}, all[0].Players)
	assert.Equal(t, 2, all[0].Count)

	top, err := TopTrios(store, "WPG", TrioOptions{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, top, 3)

	// A higher threshold qualifies nobody
	strict, err := TopTrios(store, "WPG", TrioOptions{Threshold: 2, Limit: -1})
	require.NoError(t, err)
	for _, tr := range strict {
		assert.Zero(t, tr.Count)
	}
}

func TestTopTrios_Errors(t *testing.T) {
	store := threeGameTeam([]int{1, 1, 1}, []int{1, 1, 1}, []int{1, 1, 1})

	_, err := TopTrios(store, "SEA", TrioOptions{})
	assert.ErrorIs(t, err, ErrUnknownTeam)

	_, err = TopTrios(store, "CAR", TrioOptions{MaxRoster: 2})
	assert.ErrorIs(t, err, ErrRosterTooLarge)

	_, err = TopTrios(store, "CAR", TrioOptions{Stat: "Hits"})
	assert.ErrorIs(t, err, ErrUnknownStat)

	_, err = TrioCount(store, "CAR", [3]string{"A Skater", "B Skater", "Nobody"}, TrioOptions{})
	assert.ErrorIs(t, err, ErrUnknownPlayer)

	_, err = TrioCount(store, "SEA", [3]string{"A Skater", "B Skater", "C Skater"}, TrioOptions{})
	assert.ErrorIs(t, err, ErrUnknownTeam)

	_, err = TrioCount(store, "CAR", [3]string{"A Skater", "A Skater", "B Skater"}, TrioOptions{})
	assert.ErrorIs(t, err, ErrDuplicatePlayer)

	_, err = TrioCount(store, "CAR", [3]string{"A Skater", "B Skater", "A Skater"}, TrioOptions{})
	assert.ErrorIs(t, err, ErrDuplicatePlayer)
}
