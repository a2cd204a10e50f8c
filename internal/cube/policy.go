package cube

import (
	"strings"
	"time"
)

// DefaultConflictSignatures are body fragments the cube engine emits when a
// refresh collides with a running query.
var DefaultConflictSignatures = []string{
	"Deadlock",
	"deadlock victim",
	"Lock wait timeout",
}

// RetryPolicy controls how many times a cube is requested and how long the
// client waits in between.
type RetryPolicy struct {
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number after a plain failure.
	BaseDelay time.Duration
	// ConflictDelay replaces BaseDelay when a 5xx body carries a signature.
	ConflictDelay      time.Duration
	ConflictSignatures []string
}

func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        3,
		BaseDelay:          2 * time.Second,
		ConflictDelay:      10 * time.Second,
		ConflictSignatures: DefaultConflictSignatures,
	}
}

// NoDelayPolicy keeps the attempt count and signatures of DefaultPolicy but
// never sleeps.
func NoDelayPolicy() RetryPolicy {
	p := DefaultPolicy()
	p.BaseDelay = 0
	p.ConflictDelay = 0
	return p
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

func (p RetryPolicy) isConflict(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	text := string(body)
	for _, sig := range p.ConflictSignatures {
		if sig != "" && strings.Contains(text, sig) {
			return true
		}
	}
	return false
}
