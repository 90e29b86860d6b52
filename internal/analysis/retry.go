package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Retry schedules expressed as data: one table per error family. The
// loop consults the table instead of branching on attempt counts.
var retrySchedules = map[error][]time.Duration{
	ErrRateLimited: {1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second},
	ErrOverloaded:  {5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second, 25 * time.Second},
}

// withRetry runs fn, retrying per the schedule of the error family it
// returns. Errors outside the tables propagate immediately.
func withRetry(ctx context.Context, provider string, fn func() (*Response, error)) (*Response, error) {
	attempt := map[error]int{}
	for {
		resp, err := fn()
		if err == nil {
			return resp, nil
		}

		var family error
		for f := range retrySchedules {
			if errors.Is(err, f) {
				family = f
				break
			}
		}
		if family == nil {
			return nil, err
		}

		schedule := retrySchedules[family]
		n := attempt[family]
		if n >= len(schedule) {
			return nil, err
		}
		attempt[family] = n + 1

		log.Warn().
			Err(err).
			Str("provider", provider).
			Int("attempt", n+1).
			Dur("backoff", schedule[n]).
			Msg("LLM call retrying")

		select {
		case <-time.After(schedule[n]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
