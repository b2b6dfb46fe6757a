package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pair(team, a, b string, corr Coefficient, ta, tb int) CorrelationRecord {
	a, b = CanonicalPair(a, b)
	return CorrelationRecord{
		Team:         team,
		PlayerA:      a,
		PlayerB:      b,
		Correlation:  corr,
		TotalPointsA: ta,
		TotalPointsB: tb,
		PairID:       PairID(a, b),
	}
}

func TestJoinSeasons(t *testing.T) {
	current := []CorrelationRecord{
		pair("EDM", "Connor McDavid", "Leon Draisaitl", 0.41, 132, 106),
		pair("EDM", "Zach Hyman", "Connor McDavid", 0.22, 77, 132),
		pair("COL", "Cale Makar", "Nathan MacKinnon", Undefined(), 90, 140),
	}
	prior := []CorrelationRecord{
		pair("EDM", "Connor McDavid", "Leon Draisaitl", 0.35, 153, 128),
		pair("EDM", "Connor McDavid", "Leon Draisaitl", 0.10, 1, 1),
		pair("NYR", "Artemi Panarin", "Mika Zibanejad", 0.30, 92, 91),
		pair("EDM", "Zach Hyman", "Connor McDavid", Undefined(), 83, 153),
	}

	joined := JoinSeasons(current, prior)
	require.Len(t, joined, len(current))

	for i, j := range joined {
		assert.Equal(t, current[i].PairID, j.PairID, "current order preserved")
	}

	top := joined[0]
	require.True(t, top.HasPrior())
	assert.Equal(t, Coefficient(0.35), *top.PriorCorrelation, "first prior match wins")
	assert.Equal(t, 153, *top.PriorTotalPointsA)
	assert.Equal(t, 128, *top.PriorTotalPointsB)
	assert.Equal(t, 132, top.TotalPointsA)

	hyman := joined[1]
	require.True(t, hyman.HasPrior())
	assert.False(t, hyman.PriorCorrelation.Defined())

	col := joined[2]
	assert.False(t, col.HasPrior())
	assert.Nil(t, col.PriorCorrelation)
	assert.Nil(t, col.PriorTotalPointsB)

	for _, j := range joined {
		assert.NotEqual(t, PairID("Artemi Panarin", "Mika Zibanejad"), j.PairID, "prior-only pair leaked")
	}
}

func TestJoinSeasons_EmptyPrior(t *testing.T) {
	current := []CorrelationRecord{pair("EDM", "A", "B", 0.5, 1, 2)}

	joined := JoinSeasons(current, nil)
	require.Len(t, joined, 1)
	assert.False(t, joined[0].HasPrior())
}
