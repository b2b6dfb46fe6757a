package analysis

import (
	"sort"
	"strings"
)

// CorrelationFilter selects rows from a joined correlation table. Zero values disable a
// predicate; thresholds are strict (>) and apply to both players of the pair.
type CorrelationFilter struct {
	Name            string `json:"name,omitempty"`
	Team            string `json:"team,omitempty"`
	MinTotalCurrent *int   `json:"min_total_current,omitempty"`
	MinTotalPrior   *int   `json:"min_total_prior,omitempty"`
}

// FilterCorrelations applies the filter and keeps the input order. A prior threshold never
// matches a row without prior-season data.
func FilterCorrelations(records []JoinedCorrelationRecord, f CorrelationFilter) []JoinedCorrelationRecord {
	needle := strings.ToLower(strings.TrimSpace(f.Name))
	team := strings.TrimSpace(f.Team)

	out := make([]JoinedCorrelationRecord, 0)
	for _, r := range records {
		if needle != "" &&
			!strings.Contains(strings.ToLower(r.PlayerA), needle) &&
			!strings.Contains(strings.ToLower(r.PlayerB), needle) {
			continue
		}
		if team != "" && r.Team != team {
			continue
		}
		if f.MinTotalCurrent != nil {
			min := *f.MinTotalCurrent
			if r.TotalPointsA <= min || r.TotalPointsB <= min {
				continue
			}
		}
		if f.MinTotalPrior != nil {
			if !r.HasPrior() {
				continue
			}
			min := *f.MinTotalPrior
			if *r.PriorTotalPointsA <= min || *r.PriorTotalPointsB <= min {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// GameCondition requires Player to have recorded at least Min of Stat in a game.
type GameCondition struct {
	Player string `json:"player"`
	Stat   Stat   `json:"stat"`
	Min    int    `json:"min"`
}

// GameRef identifies a game in query results.
type GameRef struct {
	GameID   int64  `json:"game_id"`
	GameDate string `json:"game_date"`
}

// FilterGames returns the distinct games satisfying the conditions. Each condition yields its
// own set of game ids; with requireAll the sets are intersected, otherwise unioned. Result order
// is by date then game id.
func FilterGames(store *Store, conditions []GameCondition, requireAll bool) ([]GameRef, error) {
	if len(conditions) == 0 {
		return []GameRef{}, nil
	}

	dates := make(map[int64]string)
	sets := make([]map[int64]struct{}, 0, len(conditions))
	for _, c := range conditions {
		stat, err := ParseStat(string(c.Stat))
		if err != nil {
			return nil, err
		}
		set := make(map[int64]struct{})
		for _, r := range store.ByPlayer(c.Player) {
			v, err := r.Value(stat)
			if err != nil {
				return nil, err
			}
			if v >= c.Min {
				set[r.GameID] = struct{}{}
				dates[r.GameID] = r.GameDate
			}
		}
		sets = append(sets, set)
	}

	var result map[int64]struct{}
	if requireAll {
		result = sets[0]
		for _, s := range sets[1:] {
			next := make(map[int64]struct{})
			for id := range result {
				if _, ok := s[id]; ok {
					next[id] = struct{}{}
				}
			}
			result = next
		}
	} else {
		result = make(map[int64]struct{})
		for _, s := range sets {
			for id := range s {
				result[id] = struct{}{}
			}
		}
	}

	refs := make([]GameRef, 0, len(result))
	for id := range result {
		refs = append(refs, GameRef{GameID: id, GameDate: dates[id]})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].GameDate != refs[j].GameDate {
			return refs[i].GameDate < refs[j].GameDate
		}
		return refs[i].GameID < refs[j].GameID
	})
	return refs, nil
}
