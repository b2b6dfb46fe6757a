// Package cache holds query results in Redis and parsed season data in process.
package cache

import (
	"context"
	"strings"
)

// Results is a season-scoped JSON result cache.
type Results interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}) error
	InvalidateSeason(ctx context.Context, season string) error
}

// SeasonKey joins a season and the query parts into a cache key.
func SeasonKey(season string, parts ...string) string {
	return "season:" + season + ":" + strings.Join(parts, ":")
}

// Nop is a Results that never hits.
type Nop struct{}

func (Nop) GetJSON(context.Context, string, interface{}) (bool, error) { return false, nil }
func (Nop) SetJSON(context.Context, string, interface{}) error         { return nil }
func (Nop) InvalidateSeason(context.Context, string) error             { return nil }
