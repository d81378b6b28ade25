package channels

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// outboundRateLimit and outboundBurst pace each channel's outbound sends
// independently of the bounded-retry policy: retries handle transient
// failures, this limiter paces the steady-state send rate so a burst of
// worker output does not overrun a channel's own API limits.
const (
	outboundRateLimit = 1 // messages per second, steady state
	outboundBurst      = 5
)

// OutboundLimiter paces outbound sends per channel name.
type OutboundLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewOutboundLimiter returns an empty per-channel limiter set.
func NewOutboundLimiter() *OutboundLimiter {
	return &OutboundLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (l *OutboundLimiter) limiterFor(channelName string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[channelName]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(outboundRateLimit), outboundBurst)
		l.limiters[channelName] = lim
	}
	return lim
}

// Wait blocks until channelName's bucket allows one more send, or ctx is
// cancelled.
func (l *OutboundLimiter) Wait(ctx context.Context, channelName string) error {
	return l.limiterFor(channelName).Wait(ctx)
}

// retryDelays is the bounded-retry backoff schedule for transient channel
// send failures: 3 attempts with this schedule.
var retryDelays = []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 900 * time.Millisecond}

// SendWithRetry calls send up to len(retryDelays)+1 times, backing off
// between attempts, and logs-and-continues (returns the last error) rather
// than surfacing a transient failure to the user.
func SendWithRetry(ctx context.Context, send func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = send()
		if err == nil {
			return nil
		}
		if attempt >= len(retryDelays) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelays[attempt]):
		}
	}
}
