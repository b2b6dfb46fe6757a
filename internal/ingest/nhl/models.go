package nhl

import (
	"strconv"

	"github.com/fortuna/linemate/internal/analysis"
)

// RosterPlayer is a skater taken from a team roster.
type RosterPlayer struct {
	ID           int64
	FirstName    string
	LastName     string
	PositionCode string
	Team         string
}

// SeasonResult is everything fetched for a season ingest.
type SeasonResult struct {
	Season   string
	Records  []analysis.GameRecord
	Players  int
	Failures []analysis.EntityFailure
}

// PlaysResult is the scoring plays fetched for a set of games.
type PlaysResult struct {
	Plays    map[int64][]analysis.ScoringPlay
	Failures []analysis.EntityFailure
}

// Progress receives ingest progress. Implementations must be safe for concurrent use.
type Progress interface {
	OnTeamDone(team string, players, records int)
	OnFailure(f analysis.EntityFailure)
}

// ValidSeason reports whether s is an eight-digit season id spanning consecutive years.
func ValidSeason(s string) bool {
	if len(s) != 8 {
		return false
	}
	start, err1 := strconv.Atoi(s[:4])
	end, err2 := strconv.Atoi(s[4:])
	return err1 == nil && err2 == nil && end == start+1
}
