package chatflow

import (
	"context"
	"sync"
	"time"
)

// Countdown is a wall-clock timer for one question. It ticks once per
// Interval, reporting the seconds left, and calls OnExpire exactly once when
// the count reaches zero unless Stop won the race.
type Countdown struct {
	Seconds  int
	Interval time.Duration
	OnTick   func(remaining int)
	OnExpire func()

	mu        sync.Mutex
	remaining int
	finished  bool
	stop      chan struct{}
	done      chan struct{}
}

// Start begins counting down in a goroutine. Cancelling ctx behaves like Stop.
func (c *Countdown) Start(ctx context.Context) {
	interval := c.Interval
	if interval <= 0 {
		interval = time.Second
	}
	c.mu.Lock()
	c.remaining = c.Seconds
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	if c.Seconds <= 0 {
		go func() {
			defer close(c.done)
			c.expire()
		}()
		return
	}

	go func() {
		defer close(c.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				c.Stop()
				return
			case <-c.stop:
				return
			case <-t.C:
				c.mu.Lock()
				if c.finished {
					c.mu.Unlock()
					return
				}
				c.remaining--
				left := c.remaining
				c.mu.Unlock()
				if c.OnTick != nil {
					c.OnTick(left)
				}
				if left <= 0 {
					c.expire()
					return
				}
			}
		}
	}()
}

func (c *Countdown) expire() {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.remaining = 0
	c.mu.Unlock()
	if c.OnExpire != nil {
		c.OnExpire()
	}
}

// Stop cancels the countdown. It reports the seconds left and whether the
// countdown was still running, i.e. OnExpire has not and will not fire.
func (c *Countdown) Stop() (remaining int, stopped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return c.remaining, false
	}
	c.finished = true
	if c.stop != nil {
		close(c.stop)
	}
	return c.remaining, true
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Done is closed once the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}
