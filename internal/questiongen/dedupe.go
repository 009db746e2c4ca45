package questiongen

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// dedupeTTL bounds how long a cross-process duplicate claim is held before
// the DB-level unique guard becomes authoritative again.
const dedupeTTL = 10 * time.Minute

// redisDedupe stages duplicate-hash claims in Redis ahead of the DB round
// trip, cheaply rejecting a second concurrent generator call for the same
// (owner, hash) before either reaches RecordAttempt. Optional: when no
// client is configured the DB unique index is the sole guard.
type redisDedupe struct {
	client *redis.Client
}

func newRedisDedupe(client *redis.Client) *redisDedupe {
	return &redisDedupe{client: client}
}

// claim attempts to stake a claim on key, returning true if this call won
// it (the DB insert should proceed) and false if another call already holds
// it (treat as a duplicate).
func (d *redisDedupe) claim(ctx context.Context, key string) (bool, error) {
	if d == nil || d.client == nil {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, "questiongen:dedupe:"+key, "1", dedupeTTL).Result()
	if err != nil {
		return true, nil // Redis unavailable: fall back to the DB guard alone.
	}
	return ok, nil
}
