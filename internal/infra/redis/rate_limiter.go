package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter is a fixed-window counter: the first hit in a window sets the
// expiry, every hit past limit is refused until the key expires.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

// WalletOpKey scopes the limit to one user and one wallet operation.
func WalletOpKey(userID, op string) string {
	return fmt.Sprintf("rate_limit:%s:%s", userID, op)
}
