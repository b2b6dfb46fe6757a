package nhl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fortuna/linemate/internal/analysis"
)

// rosterGroups are the roster sections that hold skaters. Goalies are never read.
var rosterGroups = []string{"forwards", "defensemen"}

// ParseRoster returns the skaters on a roster document.
func ParseRoster(data map[string]interface{}, team string) []RosterPlayer {
	var players []RosterPlayer
	for _, group := range rosterGroups {
		for _, item := range extractArray(data, group) {
			p, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			pos := extractString(p, "positionCode")
			if pos == "G" {
				continue
			}
			players = append(players, RosterPlayer{
				ID:           extractInt64(p, "id"),
				FirstName:    localized(p, "firstName"),
				LastName:     localized(p, "lastName"),
				PositionCode: pos,
				Team:         team,
			})
		}
	}
	return players
}

// ParseGameLog converts a player's game-log document into records. The team comes from each
// game entry, so traded players are attributed to the team they played for that night.
func ParseGameLog(data map[string]interface{}, player RosterPlayer) ([]analysis.GameRecord, error) {
	raw, ok := data["gameLog"]
	if !ok {
		return nil, fmt.Errorf("no gameLog in response for player %d", player.ID)
	}
	entries, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("gameLog for player %d is not a list", player.ID)
	}

	records := make([]analysis.GameRecord, 0, len(entries))
	for _, item := range entries {
		g, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		toi := extractString(g, "toi")
		secs, _ := analysis.ParseTOI(toi)

		records = append(records, analysis.GameRecord{
			PlayerID:         player.ID,
			FirstName:        player.FirstName,
			LastName:         player.LastName,
			TeamAbbrev:       fallbackString(extractString(g, "teamAbbrev"), player.Team),
			OpponentAbbrev:   extractString(g, "opponentAbbrev"),
			GameID:           extractInt64(g, "gameId"),
			GameDate:         extractString(g, "gameDate"),
			HomeRoadFlag:     extractString(g, "homeRoadFlag"),
			Goals:            extractInt(g, "goals"),
			Assists:          extractInt(g, "assists"),
			Points:           extractInt(g, "points"),
			PlusMinus:        extractInt(g, "plusMinus"),
			PowerPlayGoals:   extractInt(g, "powerPlayGoals"),
			PowerPlayPoints:  extractInt(g, "powerPlayPoints"),
			GameWinningGoals: extractInt(g, "gameWinningGoals"),
			Shots:            extractInt(g, "shots"),
			Shifts:           extractInt(g, "shifts"),
			PIM:              extractInt(g, "pim"),
			TOI:              toi,
			TOISeconds:       secs,
		})
	}

	return records, nil
}

// ParseScoringPlays reads summary.scoring[].goals[] from a game landing document.
func ParseScoringPlays(data map[string]interface{}, gameID int64) ([]analysis.ScoringPlay, error) {
	summary := extractMap(data, "summary")
	if len(summary) == 0 {
		return nil, fmt.Errorf("no summary in landing for game %d", gameID)
	}

	gameDate := extractString(data, "gameDate")

	var plays []analysis.ScoringPlay
	for _, periodItem := range extractArray(summary, "scoring") {
		period, ok := periodItem.(map[string]interface{})
		if !ok {
			continue
		}
		for _, goalItem := range extractArray(period, "goals") {
			goal, ok := goalItem.(map[string]interface{})
			if !ok {
				continue
			}

			play := analysis.ScoringPlay{
				GameID:   gameID,
				GameDate: gameDate,
				Team:     localized(goal, "teamAbbrev"),
				Scorer:   personName(goal),
			}

			assists := extractArray(goal, "assists")
			if len(assists) > 0 {
				if a, ok := assists[0].(map[string]interface{}); ok {
					play.Assist1 = personName(a)
				}
			}
			if len(assists) > 1 {
				if a, ok := assists[1].(map[string]interface{}); ok {
					play.Assist2 = personName(a)
				}
			}

			if play.Scorer == "" {
				continue
			}
			plays = append(plays, play)
		}
	}

	return plays, nil
}

// personName builds the same "First Last" identity the game logs use.
func personName(m map[string]interface{}) string {
	first, last := localized(m, "firstName"), localized(m, "lastName")
	if first == "" || last == "" {
		return ""
	}
	return analysis.FullNameOf(first, last)
}

// Helper functions

// localized reads a {"default": "..."} field, accepting a plain string as well.
func localized(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case map[string]interface{}:
		return extractString(v, "default")
	default:
		return ""
	}
}

func extractString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

func fallbackString(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func extractInt(m map[string]interface{}, key string) int {
	return int(extractInt64(m, key))
}

func extractInt64(m map[string]interface{}, key string) int64 {
	switch val := m[key].(type) {
	case float64:
		return int64(val)
	case string:
		i, _ := strconv.ParseInt(val, 10, 64)
		return i
	case int:
		return int64(val)
	case int64:
		return val
	default:
		return 0
	}
}

func extractMap(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key]; ok {
		if mapVal, ok := v.(map[string]interface{}); ok {
			return mapVal
		}
	}
	return map[string]interface{}{}
}

func extractArray(m map[string]interface{}, key string) []interface{} {
	if v, ok := m[key]; ok {
		if arrVal, ok := v.([]interface{}); ok {
			return arrVal
		}
	}
	return []interface{}{}
}
