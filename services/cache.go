package services

import (
	"context"
	"time"
)

// Cache is the JSON cache used for hot lookups. Misses and failures are silent.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) bool
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration)
	InvalidateByPrefix(ctx context.Context, prefix string)
}

type nopCache struct{}

func (nopCache) GetJSON(context.Context, string, interface{}) bool           { return false }
func (nopCache) SetJSON(context.Context, string, interface{}, time.Duration) {}
func (nopCache) InvalidateByPrefix(context.Context, string)                  {}

func cacheOrNop(c Cache) Cache {
	if c == nil {
		return nopCache{}
	}
	return c
}
