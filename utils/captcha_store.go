package utils

import (
	"context"
	"time"

	"github.com/mojocn/base64Captcha"
	"github.com/redis/go-redis/v9"
)

const captchaKeyPrefix = "captcha:"

// redisCaptchaStore keeps captcha answers in Redis so any instance can verify them.
type redisCaptchaStore struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisCaptchaStore returns a base64Captcha.Store whose answers expire after ttl.
func NewRedisCaptchaStore(client *redis.Client, ttl time.Duration) base64Captcha.Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &redisCaptchaStore{client: client, ttl: ttl, timeout: 2 * time.Second}
}

func (s *redisCaptchaStore) Set(id, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Set(ctx, captchaKeyPrefix+id, value, s.ttl).Err()
}

// Get reads the answer; clear removes it in the same round trip (GETDEL, Redis 6.2+).
func (s *redisCaptchaStore) Get(id string, clear bool) string {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	var cmd *redis.StringCmd
	if clear {
		cmd = s.client.GetDel(ctx, captchaKeyPrefix+id)
	} else {
		cmd = s.client.Get(ctx, captchaKeyPrefix+id)
	}
	v, err := cmd.Result()
	if err != nil {
		return ""
	}
	return v
}

func (s *redisCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}
