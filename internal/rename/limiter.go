// Package rename coalesces and rate-limits channel renames.
//
// Every channel has its own small state machine:
//
//	Idle --Schedule--> Scheduled(at) --timer--> Applying --done--> Idle
//	                       ^                        |
//	                       +---- newer request -----+
//
// Requests overwrite the desired name, so bursts collapse to the latest
// value. At most one apply runs per channel, and attempts are spaced by
// at least MinInterval.
package rename

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-channels/internal/clock"
)

// Renamer performs the external rename.
type Renamer interface {
	ChannelName(ctx context.Context, channelRef string) (string, error)
	RenameChannel(ctx context.Context, channelRef, name string) error
}

// Config holds limiter timings.
type Config struct {
	// FastDelay is used when the channel has been quiet for longer than Quiescence.
	FastDelay time.Duration
	// Debounce is used for every other request and is extended by newer ones.
	Debounce time.Duration
	// Quiescence is the idle time after which a request is applied quickly.
	Quiescence time.Duration
	// MinInterval separates two apply attempts on one channel.
	MinInterval time.Duration
	// RetryBackoff is the wait after a failed apply.
	RetryBackoff time.Duration
	// CallTimeout bounds each external call.
	CallTimeout time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		FastDelay:    250 * time.Millisecond,
		Debounce:     500 * time.Millisecond,
		Quiescence:   8 * time.Second,
		MinInterval:  3 * time.Second,
		RetryBackoff: 4 * time.Second,
		CallTimeout:  10 * time.Second,
	}
}

type phase int

const (
	phaseIdle phase = iota
	phaseScheduled
	phaseApplying
)

func (p phase) String() string {
	switch p {
	case phaseScheduled:
		return "scheduled"
	case phaseApplying:
		return "applying"
	default:
		return "idle"
	}
}

type channelState struct {
	desired     string
	phase       phase
	dueAt       time.Time
	timer       clock.Timer
	gen         uint64
	lastAttempt time.Time
	lastApplied time.Time
	// pending is set when a request arrives while an apply is in flight.
	pending bool
	// backingOff keeps a retry timer from being shortened by newer requests.
	backingOff bool
	// forgotten marks a channel dropped while its apply was in flight. The
	// entry lives until that apply finishes.
	forgotten bool
}

// Stats is a point-in-time view of one channel, used by tests and diagnostics.
type Stats struct {
	Desired     string
	Phase       string
	DueAt       time.Time
	LastApplied time.Time
}

// Observer receives apply outcomes. It may be nil.
type Observer interface {
	RenameApplied(channelRef string)
	RenameSkipped(channelRef string)
	RenameFailed(channelRef string)
}

// Limiter schedules renames for many channels.
type Limiter struct {
	mu       sync.Mutex
	cfg      Config
	clock    clock.Clock
	renamer  Renamer
	logger   *zap.Logger
	observer Observer
	channels map[string]*channelState
	closed   bool
}

// NewLimiter constructs a limiter. Non-positive timings fall back to defaults.
func NewLimiter(renamer Renamer, clk clock.Clock, cfg Config, logger *zap.Logger, observer Observer) *Limiter {
	def := DefaultConfig()
	if cfg.FastDelay <= 0 {
		cfg.FastDelay = def.FastDelay
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.Quiescence <= 0 {
		cfg.Quiescence = def.Quiescence
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		cfg:      cfg,
		clock:    clk,
		renamer:  renamer,
		logger:   logger,
		observer: observer,
		channels: make(map[string]*channelState),
	}
}

// Schedule requests that channelRef eventually be named desiredName. It never
// blocks on the external call and never reports failures.
func (l *Limiter) Schedule(channelRef, desiredName string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || channelRef == "" {
		return
	}

	st, ok := l.channels[channelRef]
	if !ok {
		st = &channelState{}
		l.channels[channelRef] = st
	}
	st.desired = desiredName
	st.forgotten = false

	now := l.clock.Now()
	switch st.phase {
	case phaseApplying:
		st.pending = true
	case phaseScheduled:
		if !st.backingOff {
			l.armLocked(channelRef, st, l.cfg.Debounce)
		}
	default:
		if st.lastApplied.IsZero() || now.Sub(st.lastApplied) > l.cfg.Quiescence {
			l.armLocked(channelRef, st, l.cfg.FastDelay)
		} else {
			l.armLocked(channelRef, st, l.cfg.Debounce)
		}
	}
}

// Forget drops all state for a channel, e.g. after it was deleted. A channel
// with an apply in flight keeps its entry until the apply returns, so a later
// Schedule cannot start a second concurrent apply.
func (l *Limiter) Forget(channelRef string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.channels[channelRef]
	if !ok {
		return
	}
	st.gen++
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	if st.phase == phaseApplying {
		st.forgotten = true
		st.pending = false
		return
	}
	delete(l.channels, channelRef)
}

// Close stops every pending timer. Later Schedule calls are ignored.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	for ref, st := range l.channels {
		st.gen++
		if st.timer != nil {
			st.timer.Stop()
		}
		delete(l.channels, ref)
	}
}

// Stats reports the state of one channel.
func (l *Limiter) Stats(channelRef string) (Stats, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.channels[channelRef]
	if !ok || st.forgotten {
		return Stats{}, false
	}
	return Stats{Desired: st.desired, Phase: st.phase.String(), DueAt: st.dueAt, LastApplied: st.lastApplied}, true
}

// armLocked replaces any pending timer with one firing after d.
func (l *Limiter) armLocked(channelRef string, st *channelState, d time.Duration) {
	if st.timer != nil {
		st.timer.Stop()
	}
	st.gen++
	gen := st.gen
	st.phase = phaseScheduled
	st.dueAt = l.clock.Now().Add(d)
	st.timer = l.clock.AfterFunc(d, func() { l.fire(channelRef, gen) })
}

func (l *Limiter) fire(channelRef string, gen uint64) {
	l.mu.Lock()
	st, ok := l.channels[channelRef]
	if !ok || st.gen != gen || st.phase != phaseScheduled {
		l.mu.Unlock()
		return
	}
	now := l.clock.Now()
	if !st.lastAttempt.IsZero() {
		if wait := l.cfg.MinInterval - now.Sub(st.lastAttempt); wait > 0 {
			l.armLocked(channelRef, st, wait)
			l.mu.Unlock()
			return
		}
	}
	st.phase = phaseApplying
	st.timer = nil
	st.pending = false
	st.backingOff = false
	name := st.desired
	l.mu.Unlock()

	l.apply(channelRef, name)
}

func (l *Limiter) apply(channelRef, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CallTimeout)
	defer cancel()

	current, err := l.renamer.ChannelName(ctx, channelRef)
	if err == nil && current == name {
		l.finish(channelRef, name, false, nil)
		return
	}
	if err != nil {
		l.logger.Debug("current channel name unavailable", zap.String("channel", channelRef), zap.Error(err))
	}
	err = l.renamer.RenameChannel(ctx, channelRef, name)
	l.finish(channelRef, name, true, err)
}

func (l *Limiter) finish(channelRef, name string, attempted bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.channels[channelRef]
	if !ok {
		return
	}
	if st.forgotten {
		delete(l.channels, channelRef)
		return
	}
	now := l.clock.Now()
	if attempted {
		st.lastAttempt = now
	}

	switch {
	case err != nil:
		l.logger.Warn("channel rename failed; retrying",
			zap.String("channel", channelRef),
			zap.String("name", st.desired),
			zap.Duration("backoff", l.cfg.RetryBackoff),
			zap.Error(err))
		l.notify(func(o Observer) { o.RenameFailed(channelRef) })
		l.armLocked(channelRef, st, l.cfg.RetryBackoff)
		st.backingOff = true
		return
	case attempted:
		st.lastApplied = now
		l.logger.Debug("channel renamed", zap.String("channel", channelRef), zap.String("name", name))
		l.notify(func(o Observer) { o.RenameApplied(channelRef) })
	default:
		l.notify(func(o Observer) { o.RenameSkipped(channelRef) })
	}

	if st.pending || st.desired != name {
		st.pending = false
		l.armLocked(channelRef, st, l.cfg.Debounce)
		return
	}
	st.phase = phaseIdle
	st.dueAt = time.Time{}
	st.timer = nil
}

func (l *Limiter) notify(fn func(Observer)) {
	if l.observer != nil {
		fn(l.observer)
	}
}
