package platform

import (
	"context"

	"golang.org/x/time/rate"
)

// newLimiter builds the token bucket enforcing the shared per-second and
// per-hour budgets. Burst is sized from the hourly budget so a client that
// has been idle can still make a reasonable number of calls back to back,
// per design: burst = rate_limit_hr/3600 (at least 1).
func newLimiter(perSecond, perHour int) *rate.Limiter {
	burst := perHour / 3600
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (c *Client) waitForBudget(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
