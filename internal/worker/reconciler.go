package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"koin/internal/log"
)

// ReconcilerConfig holds configuration for the reconciler
type ReconcilerConfig struct {
	// Interval is how often every user is refreshed (default: 15m)
	Interval time.Duration

	// Users are reconciled on every pass.
	Users []string
}

// DefaultReconcilerConfig returns sensible defaults
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{Interval: 15 * time.Minute}
}

// Reconciler replays a change for a fixed set of users on a timer. It
// covers messages lost while the worker was down and runs the export when
// no queue is configured at all.
type Reconciler struct {
	worker *SyncWorker
	config ReconcilerConfig
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconciler(w *SyncWorker, config ReconcilerConfig, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Discard()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultReconcilerConfig().Interval
	}
	return &Reconciler{worker: w, config: config, logger: logger.WithComponent(log.ComponentWorker)}
}

// Start begins the loop. Returns an error if already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	r.logger.InfoContext(ctx, "Reconciler started",
		"interval", r.config.Interval, log.FieldCount, len(r.config.Users))
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)

	select {
	case <-r.doneCh:
		r.logger.InfoContext(ctx, "Reconciler stopped gracefully")
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Reconciler stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

// IsRunning returns whether the loop is currently running
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce reconciles every configured user and returns how many failed.
// A failing user does not stop the pass.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	failed := 0
	for _, userID := range r.config.Users {
		select {
		case <-r.stopCh:
			return failed
		case <-ctx.Done():
			return failed
		default:
		}
		if err := r.worker.HandleChange(ctx, userID); err != nil {
			failed++
			r.logger.ErrorContext(ctx, "Failed to reconcile user", log.FieldUserID, userID, log.FieldError, err)
		}
	}
	if failed > 0 {
		r.logger.WarnContext(ctx, "Reconcile pass completed with errors",
			log.FieldCount, len(r.config.Users), "failed", failed)
	}
	return failed
}
