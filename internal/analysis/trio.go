package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// TrioRecord counts the games in which all three players met the qualifying threshold.
type TrioRecord struct {
	Team      string    `json:"team"`
	Players   [3]string `json:"players"`
	Count     int       `json:"count"`
	TeamGames int       `json:"team_games"`
}

// TrioOptions controls trio enumeration.
type TrioOptions struct {
	Stat      Stat // default Points
	Threshold int  // default 1
	Limit     int  // default 10; negative returns every trio
	MaxRoster int  // 0 disables the cap
}

const DefaultTrioLimit = 10

func (o TrioOptions) withDefaults() TrioOptions {
	if o.Stat == "" {
		o.Stat = StatPoints
	}
	if o.Threshold == 0 {
		o.Threshold = 1
	}
	if o.Limit == 0 {
		o.Limit = DefaultTrioLimit
	}
	return o
}

// TopTrios enumerates every combination of three players on the team's roster and returns
// them ordered by co-occurrence count.
func TopTrios(store *Store, team string, opts TrioOptions) ([]TrioRecord, error) {
	opts = opts.withDefaults()
	team = strings.ToUpper(strings.TrimSpace(team))
	if !store.HasTeam(team) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTeam, team)
	}

	roster := store.Players(team)
	if opts.MaxRoster > 0 && len(roster) > opts.MaxRoster {
		return nil, fmt.Errorf("%w: %s has %d players (cap %d)", ErrRosterTooLarge, team, len(roster), opts.MaxRoster)
	}

	// Qualifying games per player, computed once
	qualifying := make([]map[int64]struct{}, len(roster))
	pos := make(map[string]int, len(roster))
	for i, name := range roster {
		pos[name] = i
		qualifying[i] = make(map[int64]struct{})
	}
	for _, r := range store.ByTeam(team) {
		v, err := r.Value(opts.Stat)
		if err != nil {
			return nil, err
		}
		if v >= opts.Threshold {
			qualifying[pos[r.FullName]][r.GameID] = struct{}{}
		}
	}

	teamGames := store.TeamGameCount(team)
	var trios []TrioRecord
	for i := 0; i < len(roster); i++ {
		for j := i + 1; j < len(roster); j++ {
			for k := j + 1; k < len(roster); k++ {
				trios = append(trios, TrioRecord{
					Team:      team,
					Players:   [3]string{roster[i], roster[j], roster[k]},
					Count:     intersectCount(qualifying[i], qualifying[j], qualifying[k]),
					TeamGames: teamGames,
				})
			}
		}
	}

	sort.SliceStable(trios, func(a, b int) bool {
		if trios[a].Count != trios[b].Count {
			return trios[a].Count > trios[b].Count
		}
		for n := 0; n < 3; n++ {
			if trios[a].Players[n] != trios[b].Players[n] {
				return trios[a].Players[n] < trios[b].Players[n]
			}
		}
		return false
	})

	if opts.Limit > 0 && len(trios) > opts.Limit {
		trios = trios[:opts.Limit]
	}
	return trios, nil
}

// intersectCount counts game ids present in all three sets, walking the smallest.
func intersectCount(sets ...map[int64]struct{}) int {
	sort.Slice(sets, func(i, j int) bool { return len(sets[i]) < len(sets[j]) })

	count := 0
	for id := range sets[0] {
		all := true
		for _, s := range sets[1:] {
			if _, ok := s[id]; !ok {
				all = false
				break
			}
		}
		if all {
			count++
		}
	}
	return count
}

// TrioCount returns the co-occurrence count for one named trio in any order. The three names
// must be distinct players on the team.
func TrioCount(store *Store, team string, players [3]string, opts TrioOptions) (int, error) {
	opts = opts.withDefaults()
	if !store.HasTeam(team) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTeam, team)
	}
	for i := 0; i < len(players); i++ {
		for j := i + 1; j < len(players); j++ {
			if players[i] == players[j] {
				return 0, fmt.Errorf("%w: %q", ErrDuplicatePlayer, players[i])
			}
		}
	}

	sets := make([]map[int64]struct{}, 3)
	for n, name := range players {
		if !store.HasPlayer(name) {
			return 0, fmt.Errorf("%w: %q", ErrUnknownPlayer, name)
		}
		sets[n] = make(map[int64]struct{})
		for _, r := range store.ByPlayer(name) {
			if !strings.EqualFold(r.TeamAbbrev, team) {
				continue
			}
			v, err := r.Value(opts.Stat)
			if err != nil {
				return 0, err
			}
			if v >= opts.Threshold {
				sets[n][r.GameID] = struct{}{}
			}
		}
	}
	return intersectCount(sets...), nil
}
