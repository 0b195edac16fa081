// Package publisher owns the per-group code refresh loop: generate at
// window boundaries, persist, announce, and surface persistence trouble as
// a stale indicator without ever stopping the loop.
package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/teamcodes/internal/logging"
	"github.com/dmitrijs2005/teamcodes/internal/totp"
)

// Persister stores a freshly generated code. ok=false is a soft failure
// (retried next cycle); an error is treated the same way.
type Persister interface {
	PublishCode(ctx context.Context, groupID, code string, now time.Time) (bool, error)
}

// State tracks where the refresh cycle currently is.
type State int

const (
	StateIdle State = iota
	StateGenerating
	StatePersisting
	StatePublished
	StatePersistFailed
)

// Snapshot is the publisher's view of a group's current code. Stale means
// the last persist attempt failed and the stored copy may lag the displayed
// one. Err is set when the secret itself is unusable; Code is then the
// literal "Error".
type Snapshot struct {
	GroupID   string
	Code      string
	Window    int64
	Remaining int
	Stale     bool
	Err       error
}

// Runner drives the refresh loop for one (group, secret) pair.
//
// Lifecycle: Start spawns the loop, Stop cancels it and waits for it to
// drain. All state lives in the loop goroutine, so cycles are serialized by
// construction; the context is re-checked after every suspension point,
// which keeps late persist results from mutating state after Stop.
type Runner struct {
	groupID  string
	secret   string
	persist  Persister
	logger   logging.Logger
	onUpdate func(Snapshot)

	// test seams
	now        func() time.Time
	tickEvery  time.Duration
	forceEvery time.Duration

	mu       sync.Mutex
	snapshot Snapshot
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRunner builds a stopped runner. onUpdate may be nil; when set it is
// called from the loop goroutine after every snapshot change and never
// after Stop returns.
func NewRunner(groupID, secret string, persist Persister, logger logging.Logger, onUpdate func(Snapshot)) *Runner {
	return &Runner{
		groupID:    groupID,
		secret:     secret,
		persist:    persist,
		logger:     logger.With("module", "publisher", "group_id", groupID),
		onUpdate:   onUpdate,
		now:        time.Now,
		tickEvery:  time.Second,
		forceEvery: totp.Period * time.Second,
	}
}

// Start launches the refresh loop: an immediate generate+persist, then a
// per-second boundary check plus an independent force-refresh ticker as a
// backstop against drift or missed boundary ticks.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go func() {
		defer close(done)

		// do not wait for the first window boundary
		lastWindow := r.refresh(ctx)

		tick := time.NewTicker(r.tickEvery)
		defer tick.Stop()
		force := time.NewTicker(r.forceEvery)
		defer force.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				now := r.now()
				if w := totp.Window(now); w != lastWindow {
					lastWindow = r.refresh(ctx)
				} else {
					r.emit(ctx, func(s *Snapshot) { s.Remaining = totp.TimeRemaining(now) })
				}
			case <-force.C:
				lastWindow = r.refresh(ctx)
			}
		}
	}()
}

// Stop cancels the loop and blocks until it has drained. After Stop
// returns no callback runs and the snapshot no longer changes.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Snapshot returns a copy of the latest published snapshot.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// refresh runs one Generating→Persisting cycle and returns the window it
// generated for.
func (r *Runner) refresh(ctx context.Context) int64 {
	now := r.now()
	window := totp.Window(now)

	code, err := totp.Generate(r.secret, now)
	if err != nil {
		// unusable secret: show the literal error code, keep ticking
		r.logger.Error(ctx, "code generation failed", "error", err)
		r.emit(ctx, func(s *Snapshot) {
			*s = Snapshot{GroupID: r.groupID, Code: "Error", Window: window, Remaining: totp.TimeRemaining(now), Err: err}
		})
		return window
	}

	ok, err := r.persist.PublishCode(ctx, r.groupID, code, now)

	// the persist call is a suspension point: re-check activity before
	// touching state so nothing lands after Stop
	if ctx.Err() != nil {
		return window
	}

	stale := err != nil || !ok
	if err != nil {
		r.logger.Warn(ctx, "code persist failed, will retry next cycle", "error", err)
	} else if !ok {
		r.logger.Warn(ctx, "code persist rejected, will retry next cycle")
	}

	r.emit(ctx, func(s *Snapshot) {
		*s = Snapshot{GroupID: r.groupID, Code: code, Window: window, Remaining: totp.TimeRemaining(now), Stale: stale}
	})
	return window
}

// emit applies fn to the snapshot and fires the callback, unless the
// runner has been deactivated.
func (r *Runner) emit(ctx context.Context, fn func(*Snapshot)) {
	if ctx.Err() != nil {
		return
	}

	r.mu.Lock()
	fn(&r.snapshot)
	snap := r.snapshot
	r.mu.Unlock()

	if r.onUpdate != nil {
		r.onUpdate(snap)
	}
}
