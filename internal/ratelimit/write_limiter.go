package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/config"
	"go.uber.org/fx"
)

const writeKeyPrefix = "billbook:ratelimit:write"

type Params struct {
	fx.In

	Config config.Config
	Bucket *TokenBucket `optional:"true"`
}

// WriteLimiter throttles invoice and party writes per acting user.
type WriteLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewWriteLimiter(p Params) *WriteLimiter {
	return &WriteLimiter{
		bucket: p.Bucket,
		rate:   p.Config.RateLimit.WriteRate,
		burst:  p.Config.RateLimit.WriteBurst,
	}
}

// Enabled is false without Redis or with a non-positive rate or burst.
func (w *WriteLimiter) Enabled() bool {
	return w != nil && w.bucket != nil && w.rate > 0 && w.burst > 0
}

func (w *WriteLimiter) AllowUser(ctx context.Context, userID snowflake.ID) (Result, error) {
	if !w.Enabled() {
		return Result{}, ErrNotConfigured
	}
	return w.bucket.Allow(ctx, fmt.Sprintf("%s:%d", writeKeyPrefix, userID.Int64()), w.rate, w.burst)
}
