package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// PivotKey identifies a pivot row. Two games a team plays on the same date share a key.
type PivotKey struct {
	GameDate string `json:"game_date"`
	Team     string `json:"team"`
}

// TeamPivot is a wide table for one team: one row per (date, team), one column per player.
type TeamPivot struct {
	Team    string     `json:"team"`
	Stat    Stat       `json:"stat"`
	Rows    []PivotKey `json:"rows"`
	Players []string   `json:"players"`

	// Collisions counts cells that received more than one record and were averaged.
	Collisions int `json:"collisions"`

	cells    [][]float64 // [column][row], NaN where the player has no record
	colIndex map[string]int
}

// BuildPivot reshapes a team's records into a TeamPivot for the given statistic. Columns are
// restricted to players with at least one record for the team.
func BuildPivot(store *Store, team string, stat Stat) (*TeamPivot, error) {
	team = strings.ToUpper(strings.TrimSpace(team))
	records := store.ByTeam(team)
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTeam, team)
	}

	// Row and column sets first
	dates := make(map[string]struct{})
	names := make(map[string]struct{})
	for _, r := range records {
		dates[r.GameDate] = struct{}{}
		names[r.FullName] = struct{}{}
	}

	p := &TeamPivot{
		Team:     team,
		Stat:     stat,
		Rows:     make([]PivotKey, 0, len(dates)),
		Players:  make([]string, 0, len(names)),
		colIndex: make(map[string]int, len(names)),
	}

	sortedDates := make([]string, 0, len(dates))
	for d := range dates {
		sortedDates = append(sortedDates, d)
	}
	sort.Strings(sortedDates)
	rowIndex := make(map[string]int, len(sortedDates))
	for i, d := range sortedDates {
		rowIndex[d] = i
		p.Rows = append(p.Rows, PivotKey{GameDate: d, Team: team})
	}

	for n := range names {
		p.Players = append(p.Players, n)
	}
	sort.Strings(p.Players)

	sums := make([][]float64, len(p.Players))
	counts := make([][]int, len(p.Players))
	for i, n := range p.Players {
		p.colIndex[n] = i
		sums[i] = make([]float64, len(p.Rows))
		counts[i] = make([]int, len(p.Rows))
	}

	for _, r := range records {
		v, err := r.Value(stat)
		if err != nil {
			return nil, err
		}
		c := p.colIndex[r.FullName]
		row := rowIndex[r.GameDate]
		sums[c][row] += float64(v)
		counts[c][row]++
	}

	// Mean aggregation on collisions, missing elsewhere
	p.cells = make([][]float64, len(p.Players))
	for c := range p.Players {
		col := make([]float64, len(p.Rows))
		for row := range p.Rows {
			switch n := counts[c][row]; {
			case n == 0:
				col[row] = math.NaN()
			case n == 1:
				col[row] = sums[c][row]
			default:
				p.Collisions++
				col[row] = sums[c][row] / float64(n)
			}
		}
		p.cells[c] = col
	}

	return p, nil
}

// HasPlayer reports whether the pivot carries a column for the player.
func (p *TeamPivot) HasPlayer(name string) bool {
	_, ok := p.colIndex[name]
	return ok
}

// Value returns a cell, with ok=false when the player has no record on that row.
func (p *TeamPivot) Value(player string, row int) (float64, bool) {
	c, ok := p.colIndex[player]
	if !ok || row < 0 || row >= len(p.Rows) {
		return 0, false
	}
	v := p.cells[c][row]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Column returns a copy of a player's column; missing cells are NaN.
func (p *TeamPivot) Column(player string) []float64 {
	c, ok := p.colIndex[player]
	if !ok {
		return nil
	}
	out := make([]float64, len(p.cells[c]))
	copy(out, p.cells[c])
	return out
}
