// Package playback owns the current day offset and drives rendering from a
// ticker, slider seeks and resets.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultInterval = 100 * time.Millisecond

type State string

const (
	Stopped State = "stopped"
	Playing State = "playing"
)

// RenderFunc draws the map for offset. It runs with the controller locked
// and must not call back into the controller.
type RenderFunc func(offset int, state State)

type Snapshot struct {
	State    State `json:"state"`
	Offset   int   `json:"offset"`
	DayCount int   `json:"dayCount"`
}

type Controller struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	interval time.Duration
	render   RenderFunc
	logger   *slog.Logger

	dayCount int
	offset   int
	state    State

	ticker clockwork.Ticker
	stop   chan struct{}
	done   chan struct{}
}

type Option func(*Controller)

func WithClock(c clockwork.Clock) Option {
	return func(ctrl *Controller) { ctrl.clock = c }
}

func WithInterval(d time.Duration) Option {
	return func(ctrl *Controller) {
		if d > 0 {
			ctrl.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(ctrl *Controller) { ctrl.logger = l }
}

// New returns a stopped controller at offset 0. dayCount below 1 is treated
// as 1.
func New(dayCount int, render RenderFunc, opts ...Option) *Controller {
	if dayCount < 1 {
		dayCount = 1
	}
	c := &Controller{
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
		render:   render,
		logger:   slog.Default(),
		dayCount: dayCount,
		state:    Stopped,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{State: c.state, Offset: c.offset, DayCount: c.dayCount}
}

// Render redraws the current offset without changing it.
func (c *Controller) Render() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renderLocked()
	return c.snapshotLocked()
}

// Play starts ticking. Calling it while already playing is a no-op.
func (c *Controller) Play() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLocked()
	return c.snapshotLocked()
}

func (c *Controller) startLocked() {
	if c.state == Playing {
		return
	}
	c.state = Playing
	c.ticker = c.clock.NewTicker(c.interval)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(c.ticker, c.stop, c.done)
	c.logger.Debug("playback started", "offset", c.offset, "interval", c.interval)
}

// Pause stops ticking and keeps the offset.
func (c *Controller) Pause() Snapshot {
	c.mu.Lock()
	done := c.stopLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if done != nil {
		<-done
	}
	return snap
}

// Toggle switches between Playing and Stopped.
func (c *Controller) Toggle() Snapshot {
	c.mu.Lock()
	var done chan struct{}
	if c.state == Playing {
		done = c.stopLocked()
	} else {
		c.startLocked()
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if done != nil {
		<-done
	}
	return snap
}

// Reset moves to offset 0 and renders. The play state is unchanged.
func (c *Controller) Reset() Snapshot {
	return c.Seek(0)
}

// Seek moves to offset, clamped to the day range, and renders. The play
// state is unchanged.
func (c *Controller) Seek(offset int) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = c.clamp(offset)
	c.renderLocked()
	return c.snapshotLocked()
}

// Close stops the ticker. The controller can still be used afterwards.
func (c *Controller) Close() {
	c.Pause()
}

func (c *Controller) clamp(offset int) int {
	if offset < 0 {
		return 0
	}
	if offset >= c.dayCount {
		return c.dayCount - 1
	}
	return offset
}

func (c *Controller) stopLocked() chan struct{} {
	if c.state != Playing {
		return nil
	}
	c.state = Stopped
	c.ticker.Stop()
	close(c.stop)
	done := c.done
	c.ticker, c.stop, c.done = nil, nil, nil
	c.logger.Debug("playback paused", "offset", c.offset)
	return done
}

func (c *Controller) loop(ticker clockwork.Ticker, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if !c.tick(stop) {
				return
			}
		}
	}
}

// tick advances one day. It reports false when the loop was stopped while
// waiting for the lock.
func (c *Controller) tick(stop chan struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-stop:
		return false
	default:
	}
	c.offset++
	if c.offset >= c.dayCount {
		c.offset = 0
	}
	c.renderLocked()
	return true
}

func (c *Controller) renderLocked() {
	if c.render != nil {
		c.render(c.offset, c.state)
	}
}
