package ports

import "context"

// RateLimiter decides whether another request for key is allowed
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
