// Package worker implements the background synchronization loop for the
// rollup client.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/quarrylabs/rollclient/foundation/rollup/state"
)

// defaultSyncInterval represents how often a sync round runs when nothing
// signals one earlier.
const defaultSyncInterval = 10 * time.Second

// =============================================================================

// Worker manages the sync workflow for the rollup client.
type Worker struct {
	state     *state.State
	wg        sync.WaitGroup
	ticker    *time.Ticker
	shut      chan struct{}
	startSync chan bool
	evHandler state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up the background synchronization.
func Run(st *state.State, interval time.Duration, evHandler state.EventHandler) *Worker {
	if interval <= 0 {
		interval = defaultSyncInterval
	}

	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	w := Worker{
		state:     st,
		ticker:    time.NewTicker(interval),
		shut:      make(chan struct{}),
		startSync: make(chan bool, 1),
		evHandler: evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Bring the view current before the loop takes over.
	w.runSyncRound()

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		hasStarted <- true
		w.syncOperations()
	}()

	<-hasStarted

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.ticker.Stop()

	close(w.shut)
	w.wg.Wait()
}

// SignalSync requests a sync round ahead of the ticker. If a signal is
// already pending a round is coming anyway, so just return.
func (w *Worker) SignalSync() {
	select {
	case w.startSync <- true:
		w.evHandler("worker: SignalSync: sync signaled")
	default:
	}
}

// =============================================================================

// syncOperations runs sync rounds on the ticker and on demand.
func (w *Worker) syncOperations() {
	w.evHandler("worker: syncOperations: G started")
	defer w.evHandler("worker: syncOperations: G completed")

	for {
		select {
		case <-w.startSync:
			w.runSyncRound()

		case <-w.ticker.C:
			w.runSyncRound()

		case <-w.shut:
			return
		}
	}
}

// runSyncRound performs one sync round, retrying transient failures with
// exponential backoff. A validation failure is not transient and is only
// reported.
func (w *Worker) runSyncRound() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cut the round short if shutdown arrives mid retry.
	go func() {
		select {
		case <-w.shut:
			cancel()
		case <-ctx.Done():
		}
	}()

	boff := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)

	operation := func() error {
		_, err := w.state.Sync(ctx)
		if err != nil {
			w.evHandler("worker: runSyncRound: ERROR: %s", err)
		}

		// A rejected delta won't get better by asking again.
		if errors.Is(err, state.ErrDeltaValidation) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, boff); err != nil {
		w.evHandler("worker: runSyncRound: round abandoned: %s", err)
	}
}
