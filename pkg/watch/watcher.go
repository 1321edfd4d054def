// Package watch implements the bounded confirmation poll that follows a
// write submission. Rather than trusting the confirmation stream's event
// shapes, the watcher observes the ledger's aggregate poll counter: a count
// above the baseline captured at start is the confirmation signal. Polling
// is attempt-bounded so a watch can never hang.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/tally-network/pollsync/pkg/rpc"
	"go.uber.org/zap"
)

// Policy defaults. A watch waits out SettleDelay before the first read,
// then polls every Interval up to MaxAttempts reads.
const (
	DefaultSettleDelay    = 3 * time.Second
	DefaultInterval       = 2 * time.Second
	DefaultMaxAttempts    = 20
	DefaultKeepFreshEvery = 3
)

// State of a watch. A watcher is single-use: Idle until started, Waiting
// while polling, then back to Idle once the terminal callback dispatched.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateConfirmedEarly
	StateConfirmedByTimeout
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateConfirmedEarly:
		return "confirmedEarly"
	case StateConfirmedByTimeout:
		return "confirmedByTimeout"
	default:
		return "idle"
	}
}

// CountClient is the slice of the rpc client the watcher polls.
type CountClient interface {
	PollCount(ctx context.Context) (rpc.QueryResult, error)
}

// Config carries the polling policy and the watch callbacks.
type Config struct {
	// SettleDelay is the wait before the first poll. Zero means the
	// default.
	SettleDelay time.Duration
	// Interval separates consecutive polls. Zero means the default.
	Interval time.Duration
	// MaxAttempts bounds the poll count. Zero means the default.
	MaxAttempts int
	// KeepFreshEvery fires OnKeepFresh on every n-th attempt while the
	// count has not moved yet. Zero means the default, negative disables
	// the hook.
	KeepFreshEvery int

	// OnConfirmed fires exactly once per watch: at the first attempt
	// whose count exceeds the baseline, or at MaxAttempts without an
	// observed increase.
	OnConfirmed func()
	// OnKeepFresh keeps the view approximately fresh during long
	// confirmations. Optional.
	OnKeepFresh func()
}

func (c Config) withDefaults() Config {
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.KeepFreshEvery == 0 {
		c.KeepFreshEvery = DefaultKeepFreshEvery
	}
	return c
}

// Watcher is a single-use confirmation poll. All state transitions happen
// under one mutex; callbacks dispatch outside it, synchronously within the
// tick, so a new poll cycle never starts before the prior callback
// returned.
type Watcher struct {
	client CountClient
	clock  Clock
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	started  bool
	finished bool
	baseline uint64
	attempts int
	timer    Timer
	ctx      context.Context
	done     chan struct{}
}

func New(client CountClient, cfg Config, clock Clock, logger *zap.Logger) *Watcher {
	return &Watcher{
		client: client,
		clock:  clock,
		cfg:    cfg.withDefaults(),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start captures the baseline count and schedules the first poll after the
// settling delay. A failed or undecodable baseline read counts as an empty
// ledger (baseline 0). Start is a no-op after the first call.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.state = StateWaiting
	w.ctx = ctx
	w.mu.Unlock()

	baseline := w.captureBaseline(ctx)

	w.mu.Lock()
	if w.state != StateWaiting {
		// Stopped while the baseline read was in flight.
		w.mu.Unlock()
		return
	}
	w.baseline = baseline
	w.timer = w.clock.AfterFunc(w.cfg.SettleDelay, w.tick)
	w.mu.Unlock()

	go w.watchContext(ctx)
}

// Stop cancels the watch. Safe to call at any time, from any goroutine,
// repeatedly. A timer firing concurrently with Stop is a no-op: whichever
// takes the state mutex first wins.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

// State reports the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Attempts reports how many polls have run.
func (w *Watcher) Attempts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

func (w *Watcher) stopLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.state == StateWaiting {
		w.state = StateIdle
		w.finishLocked()
	}
}

func (w *Watcher) finishLocked() {
	if !w.finished {
		w.finished = true
		close(w.done)
	}
}

func (w *Watcher) watchContext(ctx context.Context) {
	select {
	case <-ctx.Done():
		w.Stop()
	case <-w.done:
	}
}

// tick runs one poll attempt. It re-checks state after the remote read so a
// result that raced a Stop is discarded.
func (w *Watcher) tick() {
	w.mu.Lock()
	if w.state != StateWaiting {
		w.mu.Unlock()
		return
	}
	if w.ctx != nil && w.ctx.Err() != nil {
		w.stopLocked()
		w.mu.Unlock()
		return
	}
	w.attempts++
	attempt := w.attempts
	baseline := w.baseline
	ctx := w.ctx
	w.mu.Unlock()

	count, ok := w.readCount(ctx)

	w.mu.Lock()
	if w.state != StateWaiting {
		w.mu.Unlock()
		return
	}
	switch {
	case ok && count > baseline:
		w.state = StateConfirmedEarly
	case attempt >= w.cfg.MaxAttempts:
		w.state = StateConfirmedByTimeout
	}
	confirmed := w.state != StateWaiting
	keepFresh := !confirmed && w.cfg.KeepFreshEvery > 0 && attempt%w.cfg.KeepFreshEvery == 0
	if confirmed {
		w.timer = nil
	}
	w.mu.Unlock()

	if keepFresh && w.cfg.OnKeepFresh != nil {
		w.cfg.OnKeepFresh()
	}

	if confirmed {
		if w.cfg.OnConfirmed != nil {
			w.cfg.OnConfirmed()
		}
		w.mu.Lock()
		w.state = StateIdle
		w.finishLocked()
		w.mu.Unlock()
		return
	}

	// Schedule the next poll only after the callback returned, unless a
	// Stop landed in between.
	w.mu.Lock()
	if w.state == StateWaiting {
		w.timer = w.clock.AfterFunc(w.cfg.Interval, w.tick)
	}
	w.mu.Unlock()
}

func (w *Watcher) captureBaseline(ctx context.Context) uint64 {
	res, err := w.client.PollCount(ctx)
	if err != nil {
		w.logger.Warn("Baseline count query failed, assuming empty ledger", zap.Error(err))
		return 0
	}
	count, err := res.Decode()
	if err != nil {
		w.logger.Warn("Baseline count undecodable, assuming empty ledger", zap.Error(err))
		return 0
	}
	return count
}

// readCount polls the counter once. Failures count as "no increase" for
// the attempt.
func (w *Watcher) readCount(ctx context.Context) (uint64, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := w.client.PollCount(ctx)
	if err != nil {
		w.logger.Debug("Confirmation poll failed", zap.Error(err))
		return 0, false
	}
	count, err := res.Decode()
	if err != nil {
		w.logger.Debug("Confirmation poll undecodable", zap.Error(err))
		return 0, false
	}
	return count, true
}
