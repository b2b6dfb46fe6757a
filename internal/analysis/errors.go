package analysis

import "errors"

var (
	ErrUnknownStat     = errors.New("unknown statistic")
	ErrUnknownTeam     = errors.New("unknown team")
	ErrUnknownPlayer   = errors.New("unknown player")
	ErrRosterTooLarge  = errors.New("roster too large for trio enumeration")
	ErrDuplicatePlayer = errors.New("player named more than once")
)
