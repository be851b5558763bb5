// Package redis holds a best-effort fast path for duplicate webhook
// deliveries. The transactional status check in the order state machine is
// the primary guard; this cache just saves a database round trip when the
// provider redelivers an event that already succeeded.
package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const dedupKeyPrefix = "webhook_event:"

type Dedup struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewDedup(client *redis.Client) *Dedup {
	return &Dedup{
		Client: client,
		TTL:    24 * time.Hour,
	}
}

// FirstDelivery marks the event id as seen and reports whether this was the
// first delivery. SETNX makes the check-and-mark atomic across instances.
func (d *Dedup) FirstDelivery(ctx context.Context, eventID string) (bool, error) {
	return d.Client.SetNX(ctx, dedupKeyPrefix+eventID, 1, d.TTL).Result()
}

// Forget drops the seen marker so a provider retry can get through after a
// processing failure.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.Client.Del(ctx, dedupKeyPrefix+eventID).Err()
}
