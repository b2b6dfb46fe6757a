package analysis

import (
	"fmt"
	"strconv"
	"strings"
)

// Stat names a per-game counting statistic. Values match the game log CSV headers.
type Stat string

const (
	StatGoals            Stat = "Goals"
	StatAssists          Stat = "Assists"
	StatPoints           Stat = "Points"
	StatShots            Stat = "Shots"
	StatPlusMinus        Stat = "PlusMinus"
	StatPowerPlayGoals   Stat = "PowerPlayGoals"
	StatPowerPlayPoints  Stat = "PowerPlayPoints"
	StatGameWinningGoals Stat = "GameWinningGoals"
	StatShifts           Stat = "Shifts"
	StatPIM              Stat = "PIM"
	StatTOI              Stat = "TOI"
)

// AllStats lists every statistic a GameRecord carries, in CSV column order.
var AllStats = []Stat{
	StatGoals,
	StatAssists,
	StatPoints,
	StatPlusMinus,
	StatPowerPlayGoals,
	StatPowerPlayPoints,
	StatGameWinningGoals,
	StatShots,
	StatShifts,
	StatPIM,
	StatTOI,
}

// ParseStat resolves a statistic name case-insensitively.
func ParseStat(name string) (Stat, error) {
	trimmed := strings.TrimSpace(name)
	for _, s := range AllStats {
		if strings.EqualFold(string(s), trimmed) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStat, name)
}

// ParseTOI converts an "MM:SS" time-on-ice string into seconds.
func ParseTOI(toi string) (int, error) {
	toi = strings.TrimSpace(toi)
	if toi == "" {
		return 0, nil
	}

	mins, secs, ok := strings.Cut(toi, ":")
	if !ok {
		return 0, fmt.Errorf("invalid time on ice %q", toi)
	}

	m, err := strconv.Atoi(mins)
	if err != nil {
		return 0, fmt.Errorf("invalid time on ice %q: %w", toi, err)
	}
	s, err := strconv.Atoi(secs)
	if err != nil || s < 0 || s >= 60 {
		return 0, fmt.Errorf("invalid time on ice %q", toi)
	}

	return m*60 + s, nil
}
