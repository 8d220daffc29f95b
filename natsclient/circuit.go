package natsclient

import (
	"sync"
	"time"
)

const initialBackoff = time.Second

// breaker counts consecutive connect failures. Every threshold failures it
// trips; each trip doubles the backoff up to max.
type breaker struct {
	threshold int32
	max       time.Duration

	mu          sync.Mutex
	total       int32
	consecutive int32
	backoff     time.Duration
	lastFailure time.Time
}

func newBreaker(threshold int32, max time.Duration) *breaker {
	return &breaker{threshold: threshold, max: max, backoff: initialBackoff}
}

// fail records one failure. When it trips, wait is how long the circuit
// should stay open before a retry is allowed.
func (b *breaker) fail(now time.Time) (tripped bool, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	b.lastFailure = now
	b.consecutive++
	if b.consecutive < b.threshold {
		return false, 0
	}
	b.consecutive = 0

	wait = b.backoff
	b.backoff = min(b.backoff*2, b.max)
	return true, wait
}

func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total, b.consecutive = 0, 0
	b.backoff = initialBackoff
	b.lastFailure = time.Time{}
}

func (b *breaker) snapshot() (total int32, backoff time.Duration, last time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total, b.backoff, b.lastFailure
}
