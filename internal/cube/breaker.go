package cube

import (
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// breaker returns the circuit breaker guarding one cube, creating it on
// first use. Each cube trips independently.
func (c *Client) breaker(cube string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[cube]; ok {
		return cb
	}
	failures := c.cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cube,
		MaxRequests: 1,
		Timeout:     c.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state changed",
				zap.String("cube", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			c.metrics.SetBreakerState(name, float64(to))
		},
	})
	c.breakers[cube] = cb
	c.metrics.SetBreakerState(cube, float64(gobreaker.StateClosed))
	return cb
}

// BreakerStates reports the state of every breaker created so far.
func (c *Client) BreakerStates() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.breakers))
	for name, cb := range c.breakers {
		out[name] = cb.State().String()
	}
	return out
}
