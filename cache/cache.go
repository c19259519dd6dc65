package cache

import (
	"context"
	"time"

	"github.com/spectra-gallery/spectra-playground/models"
)

type PlaygroundCache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	// Subscribe delivers messages to handler until ctx ends.
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error

	// SetShare caches a share entry for ttl; a non-positive ttl is a no-op.
	SetShare(ctx context.Context, share models.ShareEntry, ttl time.Duration) error
	// GetShare reports found=false on a cache miss.
	GetShare(ctx context.Context, token string) (share models.ShareEntry, found bool, err error)
	InvalidateShares(ctx context.Context, tokens []string) error

	// IncrementAttempts bumps the counter at key and returns its new value.
	// The counter expires window after its first increment.
	IncrementAttempts(ctx context.Context, key string, window time.Duration) (int64, error)
	ResetAttempts(ctx context.Context, key string) error
}

func ResourceChannel(resourceId string) string {
	return "resource:" + resourceId
}
