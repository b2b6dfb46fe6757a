package analysis

import (
	"sort"
	"strings"
)

// ScoringPlay is one goal: the scorer and up to two assists, all as full names.
type ScoringPlay struct {
	GameID   int64  `json:"game_id"`
	GameDate string `json:"game_date"`
	Team     string `json:"team"`
	Scorer   string `json:"scorer"`
	Assist1  string `json:"assist1,omitempty"`
	Assist2  string `json:"assist2,omitempty"`
}

// Participants returns the distinct non-empty names credited on the play.
func (p ScoringPlay) Participants() []string {
	out := make([]string, 0, 3)
	for _, n := range []string{p.Scorer, p.Assist1, p.Assist2} {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		dup := false
		for _, o := range out {
			if o == n {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, n)
		}
	}
	return out
}

// Involvement is how often a teammate shared a scoring play with the player.
type Involvement struct {
	Teammate   string  `json:"teammate"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// InvolvementSummary is the response for one player.
type InvolvementSummary struct {
	Player    string        `json:"player"`
	Plays     int           `json:"plays"`
	Teammates []Involvement `json:"teammates"`
}

// TeammateInvolvement finds every play the player took part in and counts each other name
// credited on those plays, as a share of the player's involved plays.
func TeammateInvolvement(plays []ScoringPlay, player string) InvolvementSummary {
	summary := InvolvementSummary{Player: player, Teammates: []Involvement{}}
	counts := make(map[string]int)

	for _, p := range plays {
		names := p.Participants()
		involved := false
		for _, n := range names {
			if n == player {
				involved = true
				break
			}
		}
		if !involved {
			continue
		}

		summary.Plays++
		for _, n := range names {
			if n != player {
				counts[n]++
			}
		}
	}

	if summary.Plays == 0 {
		return summary
	}

	for name, c := range counts {
		summary.Teammates = append(summary.Teammates, Involvement{
			Teammate:   name,
			Count:      c,
			Percentage: Round2(float64(c) / float64(summary.Plays) * 100),
		})
	}
	sort.Slice(summary.Teammates, func(i, j int) bool {
		if summary.Teammates[i].Count != summary.Teammates[j].Count {
			return summary.Teammates[i].Count > summary.Teammates[j].Count
		}
		return summary.Teammates[i].Teammate < summary.Teammates[j].Teammate
	})

	return summary
}
