// Package worker consumes change and repair messages: it refreshes derived
// views, runs queued category repairs and exports summaries to Google
// Sheets.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"koin/internal/aggregate"
	"koin/internal/amqp"
	"koin/internal/core"
	"koin/internal/dedupe"
	"koin/internal/log"
	"koin/internal/store"
)

// Views recomputes and serves a user's summaries. *watch.Service
// implements it.
type Views interface {
	Refresh(ctx context.Context, userID string) error
	View(ctx context.Context, userID string, p core.Period) (aggregate.View, error)
}

// Exporter writes a summary somewhere outside the store.
type Exporter interface {
	ExportView(ctx context.Context, userID string, v aggregate.View) error
}

type Repairer interface {
	Repair(ctx context.Context, userID string) (dedupe.Result, error)
}

// SyncWorker handles messages from the koin queue. The exporter may be nil.
type SyncWorker struct {
	views    Views
	exporter Exporter
	repairer Repairer
	months   int
	logger   *log.Logger
	now      func() time.Time
}

// NewSyncWorker builds a worker that exports the last months periods,
// the current one included, after each change.
func NewSyncWorker(views Views, exporter Exporter, repairer Repairer, months int, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if months < 1 {
		months = 1
	}
	return &SyncWorker{
		views:    views,
		exporter: exporter,
		repairer: repairer,
		months:   months,
		logger:   logger.WithComponent(log.ComponentWorker),
		now:      time.Now,
	}
}

// HandleMessage dispatches one queue message. Its signature matches
// amqp.Handler; a returned error requeues the message once.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.Message) error {
	switch msg.Type {
	case amqp.TypeChange:
		w.logger.DebugContext(ctx, "Processing change message",
			log.FieldUserID, msg.UserID, log.FieldCollection, msg.Collections)
		return w.HandleChange(ctx, msg.UserID)
	case amqp.TypeRepair:
		return w.HandleRepair(ctx, msg.UserID)
	}
	return fmt.Errorf("%w: %q", amqp.ErrUnknownMessage, msg.Type)
}

// HandleChange recomputes the user's views and exports the recent periods.
func (w *SyncWorker) HandleChange(ctx context.Context, userID string) error {
	if err := w.views.Refresh(ctx, userID); err != nil {
		return fmt.Errorf("refresh views: %w", err)
	}
	if w.exporter == nil {
		return nil
	}
	return w.Export(ctx, userID)
}

// HandleRepair runs a queued category repair, then treats it as a change.
// Requests without a user scope are dropped, since a retry cannot succeed.
func (w *SyncWorker) HandleRepair(ctx context.Context, userID string) error {
	start := w.now()
	res, err := w.repairer.Repair(ctx, userID)
	if errors.Is(err, store.ErrUnauthorized) {
		w.logger.WarnContext(ctx, "Dropping repair without user scope", log.FieldError, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("repair categories: %w", err)
	}

	w.logger.InfoContext(ctx, "Category repair completed",
		log.NewFields().
			WithUser(userID).
			WithRepair(len(res.DeletedCategoryIDs), len(res.RewrittenTransactionIDs)).
			WithDuration(w.now().Sub(start).Milliseconds()).
			ToSlice()...)

	if len(res.DeletedCategoryIDs) == 0 {
		return nil
	}
	return w.HandleChange(ctx, userID)
}

// Export writes the summaries of the recent periods of userID.
func (w *SyncWorker) Export(ctx context.Context, userID string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for _, p := range w.periods() {
		g.Go(func() error {
			v, err := w.views.View(ctx, userID, p)
			if err != nil {
				return fmt.Errorf("view %s: %w", p, err)
			}
			if err := w.exporter.ExportView(ctx, userID, v); err != nil {
				return fmt.Errorf("export %s: %w", p, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.logger.ErrorContext(ctx, "Failed to export summaries", log.FieldUserID, userID, log.FieldError, err)
		return err
	}
	return nil
}

// periods lists the current period and the months-1 before it, newest
// first.
func (w *SyncWorker) periods() []core.Period {
	out := make([]core.Period, 0, w.months)
	p := core.PeriodOf(w.now())
	for i := 0; i < w.months; i++ {
		out = append(out, p)
		p = p.Prev()
	}
	return out
}
