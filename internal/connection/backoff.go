package connection

import "time"

// reconnector tracks reconnect attempts and produces the delay before the
// next one: the floor doubled per attempt until it reaches the ceiling,
// where it holds. Attempts are unbounded; only explicit disconnection or
// a rejected credential stops the loop.
type reconnector struct {
	floor   time.Duration
	ceiling time.Duration
	attempt int
}

func newReconnector(floor, ceiling time.Duration) *reconnector {
	if floor <= 0 {
		floor = time.Second
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &reconnector{floor: floor, ceiling: ceiling}
}

func (r *reconnector) nextDelay() time.Duration {
	delay := r.floor
	for i := 0; i < r.attempt; i++ {
		delay *= 2
		if delay >= r.ceiling {
			delay = r.ceiling
			break
		}
	}
	r.attempt++
	return delay
}

func (r *reconnector) attempts() int { return r.attempt }

func (r *reconnector) reset() { r.attempt = 0 }
