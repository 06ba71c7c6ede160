package quarantine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTrackerWindow bounds how long repeated-source observations count
// toward the same attacker.
const DefaultTrackerWindow = 15 * time.Minute

// Tracker counts per-source observations in redis with a sliding TTL, so
// repeated-offender state survives restarts and is shared across instances.
type Tracker struct {
	client *redis.Client
	window time.Duration
}

// NewTracker creates a tracker over the given redis client. A zero window
// falls back to DefaultTrackerWindow.
func NewTracker(client *redis.Client, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultTrackerWindow
	}
	return &Tracker{client: client, window: window}
}

// Observe records one hit for the source and returns the running count
// within the window. Each hit refreshes the window.
func (t *Tracker) Observe(ctx context.Context, source string) (int64, error) {
	key := t.key(source)

	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("track source %s: %w", source, err)
	}

	return incr.Val(), nil
}

// Count returns the current hit count for a source without recording one.
func (t *Tracker) Count(ctx context.Context, source string) (int64, error) {
	count, err := t.client.Get(ctx, t.key(source)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("read source count %s: %w", source, err)
	}
	return count, nil
}

// Reset clears the counter for a source, typically after containment.
func (t *Tracker) Reset(ctx context.Context, source string) error {
	if err := t.client.Del(ctx, t.key(source)).Err(); err != nil {
		return fmt.Errorf("reset source count %s: %w", source, err)
	}
	return nil
}

func (t *Tracker) key(source string) string {
	return "responsegarden:source_hits:" + source
}
