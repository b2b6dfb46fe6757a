package analysis

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// CorrelationRecord is one unordered teammate pair within one team.
type CorrelationRecord struct {
	Team         string      `json:"team"`
	PlayerA      string      `json:"player_a"`
	PlayerB      string      `json:"player_b"`
	Correlation  Coefficient `json:"correlation"`
	TotalPointsA int         `json:"total_points_a"`
	TotalPointsB int         `json:"total_points_b"`
	Games        int         `json:"games"`
	PairID       string      `json:"pair_id"`
}

// PairID is the cross-season join key for two names in canonical order.
func PairID(a, b string) string {
	a, b = CanonicalPair(a, b)
	return a + "-" + b
}

// CanonicalPair orders two names lexicographically.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// CorrelationOptions controls a correlation run.
type CorrelationOptions struct {
	// Stat is the pivot value and the statistic summed into the totals. Defaults to Points.
	Stat Stat
}

// PairCorrelation computes the pairwise-complete Pearson coefficient of two aligned columns.
// Rows where either side is missing (NaN) are excluded. It also returns the number of rows used.
// Fewer than two shared rows, or no variance on either side, leaves the result undefined.
func PairCorrelation(x, y []float64) (Coefficient, int) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}

	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}

	shared := len(xs)
	if shared < 2 || constant(xs) || constant(ys) {
		return Undefined(), shared
	}

	r, err := stats.Correlation(xs, ys)
	if err != nil || math.IsNaN(r) {
		return Undefined(), shared
	}

	r = math.Max(-1, math.Min(1, r))
	return Coefficient(Round2(r)), shared
}

func constant(vals []float64) bool {
	for _, v := range vals[1:] {
		if v != vals[0] {
			return false
		}
	}
	return true
}

// TeamCorrelations returns one record per unordered pair of the pivot's players. Totals are the
// season-wide sums of the pivot statistic from the store.
func TeamCorrelations(store *Store, pivot *TeamPivot) ([]CorrelationRecord, error) {
	totals := make(map[string]int, len(pivot.Players))
	for _, name := range pivot.Players {
		t, err := store.SeasonTotal(name, pivot.Stat)
		if err != nil {
			return nil, err
		}
		totals[name] = t
	}

	players := pivot.Players
	var out []CorrelationRecord
	for i := 0; i < len(players); i++ {
		for j := i + 1; j < len(players); j++ {
			a, b := CanonicalPair(players[i], players[j])
			if a == b {
				continue
			}
			corr, games := PairCorrelation(pivot.cells[pivot.colIndex[a]], pivot.cells[pivot.colIndex[b]])
			out = append(out, CorrelationRecord{
				Team:         pivot.Team,
				PlayerA:      a,
				PlayerB:      b,
				Correlation:  corr,
				TotalPointsA: totals[a],
				TotalPointsB: totals[b],
				Games:        games,
				PairID:       a + "-" + b,
			})
		}
	}

	return out, nil
}

// CorrelationRun is the output of ComputeCorrelations.
type CorrelationRun struct {
	Records    []CorrelationRecord `json:"records"`
	Teams      int                 `json:"teams"`
	Collisions int                 `json:"collisions"`
	Dropped    int                 `json:"dropped_duplicates"`
}

// ComputeCorrelations builds a pivot per team and returns the season's correlation table:
// sorted by correlation descending (undefined last) and deduplicated on (PlayerA, PlayerB).
// A pair that was teammates on two teams keeps only its highest-ranked record.
func ComputeCorrelations(store *Store, opts CorrelationOptions) (*CorrelationRun, error) {
	if opts.Stat == "" {
		opts.Stat = StatPoints
	}
	if _, err := ParseStat(string(opts.Stat)); err != nil {
		return nil, err
	}

	run := &CorrelationRun{}
	var all []CorrelationRecord
	for _, team := range store.Teams() {
		pivot, err := BuildPivot(store, team, opts.Stat)
		if err != nil {
			return nil, err
		}
		recs, err := TeamCorrelations(store, pivot)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
		run.Teams++
		run.Collisions += pivot.Collisions
	}

	SortCorrelations(all)

	type pairKey struct{ a, b string }
	seen := make(map[pairKey]struct{}, len(all))
	run.Records = make([]CorrelationRecord, 0, len(all))
	for _, r := range all {
		k := pairKey{r.PlayerA, r.PlayerB}
		if _, dup := seen[k]; dup {
			run.Dropped++
			continue
		}
		seen[k] = struct{}{}
		run.Records = append(run.Records, r)
	}

	return run, nil
}

// SortCorrelations orders records by correlation descending with undefined values last; ties
// fall back to team and player names so output is deterministic.
func SortCorrelations(recs []CorrelationRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		ci, cj := recs[i].Correlation, recs[j].Correlation
		if ci.Defined() != cj.Defined() {
			return ci.Defined()
		}
		if ci.Defined() && ci != cj {
			return ci > cj
		}
		if recs[i].Team != recs[j].Team {
			return recs[i].Team < recs[j].Team
		}
		if recs[i].PlayerA != recs[j].PlayerA {
			return recs[i].PlayerA < recs[j].PlayerA
		}
		return recs[i].PlayerB < recs[j].PlayerB
	})
}
