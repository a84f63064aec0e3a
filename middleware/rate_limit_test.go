package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestLimiterSetPerKey(t *testing.T) {
	set := &limiterSet{limiters: map[string]*rateLimiter{}, limit: rate.Every(time.Second), burst: 2}
	now := time.Now()

	assert.True(t, set.allow("a", now))
	assert.True(t, set.allow("a", now))
	assert.False(t, set.allow("a", now))
	assert.True(t, set.allow("b", now), "keys have their own bucket")

	assert.True(t, set.allow("a", now.Add(time.Second)))
}

func TestLimiterSetForgetsIdleKeys(t *testing.T) {
	set := &limiterSet{limiters: map[string]*rateLimiter{}, limit: rate.Every(time.Hour), burst: 1}
	now := time.Now()

	assert.True(t, set.allow("a", now))
	assert.False(t, set.allow("a", now))

	later := now.Add(limiterIdle + time.Second)
	assert.True(t, set.allow("b", later))
	assert.NotContains(t, set.limiters, "a")
	assert.True(t, set.allow("a", later))
}
