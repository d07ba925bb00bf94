package streaming

import "time"

// keepAliveScheduler tracks how long the connection has been idle and fires
// once the configured interval passes without a successful write. It is
// owned by the outbound writer goroutine and not safe for concurrent use.
type keepAliveScheduler struct {
	interval time.Duration
	timer    *time.Timer
	lastSent time.Time
}

func newKeepAliveScheduler(interval time.Duration, now time.Time) *keepAliveScheduler {
	k := &keepAliveScheduler{interval: interval, lastSent: now}
	if interval > 0 {
		k.timer = time.NewTimer(interval)
	}
	return k
}

// C fires when a keep-alive may be due. It is nil, and so never ready, when
// keep-alives are disabled.
func (k *keepAliveScheduler) C() <-chan time.Time {
	if k.timer == nil {
		return nil
	}
	return k.timer.C
}

// touch records a successful write and re-arms the timer.
func (k *keepAliveScheduler) touch(now time.Time) {
	k.lastSent = now
	if k.timer != nil {
		k.timer.Reset(k.interval)
	}
}

func (k *keepAliveScheduler) idle(now time.Time) time.Duration {
	return now.Sub(k.lastSent)
}

func (k *keepAliveScheduler) due(now time.Time) bool {
	return k.interval > 0 && k.idle(now) >= k.interval
}

// postpone re-arms the timer for the remainder of the interval.
func (k *keepAliveScheduler) postpone(now time.Time) {
	if k.timer != nil {
		k.timer.Reset(k.interval - k.idle(now))
	}
}

func (k *keepAliveScheduler) stop() {
	if k.timer != nil {
		k.timer.Stop()
	}
}
