package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"koin/internal/log"
	"koin/internal/store"
)

// ErrNoChanges wraps every repair failure: when Repair returns an error the
// store holds exactly what it held before the call.
var ErrNoChanges = errors.New("repair failed, no changes were made")

// Result lists what a repair changed. Both lists are sorted.
type Result struct {
	DeletedCategoryIDs      []string `json:"deleted_category_ids"`
	RewrittenTransactionIDs []string `json:"rewritten_transaction_ids"`
}

// DefaultTimeout bounds a shared repair. It runs detached from the
// callers that joined it, so one caller going away cannot abort it for
// the others.
const DefaultTimeout = 30 * time.Second

// Store is what the repairer needs from the document store.
type Store interface {
	store.Reader
	store.Writer
}

// Repairer runs category repairs against a live store. Calls for the same
// user are joined onto the in-flight repair rather than racing it.
type Repairer struct {
	store   Store
	logger  *log.Logger
	flight  singleflight.Group
	timeout time.Duration
}

func NewRepairer(s Store, logger *log.Logger) *Repairer {
	if logger == nil {
		logger = log.Discard()
	}
	return &Repairer{store: s, logger: logger.WithComponent(log.ComponentDedupe), timeout: DefaultTimeout}
}

// Preview builds the plan for userID without writing anything.
func (r *Repairer) Preview(ctx context.Context, userID string) (Plan, error) {
	if err := store.CheckScope(userID); err != nil {
		return Plan{}, err
	}
	cats, err := r.store.Categories(ctx, userID)
	if err != nil {
		return Plan{}, fmt.Errorf("read categories: %w", err)
	}
	txs, err := r.store.Transactions(ctx, userID)
	if err != nil {
		return Plan{}, fmt.Errorf("read transactions: %w", err)
	}
	return BuildPlan(cats, txs), nil
}

// Repair merges duplicate categories of userID and commits the deletions
// and rewrites as one batch. A concurrent call for the same user waits for
// the running repair and shares its result.
func (r *Repairer) Repair(ctx context.Context, userID string) (Result, error) {
	if err := store.CheckScope(userID); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrNoChanges, err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrNoChanges, err)
	}
	v, err, shared := r.flight.Do(userID, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.repair(rctx, userID)
	})
	if shared {
		r.logger.DebugContext(ctx, "Joined in-flight repair", log.FieldUserID, userID)
	}
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (r *Repairer) repair(ctx context.Context, userID string) (Result, error) {
	plan, err := r.Preview(ctx, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Repair aborted", log.NewFields().WithUser(userID).WithError(err).ToSlice()...)
		return Result{}, fmt.Errorf("%w: %w", ErrNoChanges, err)
	}
	if plan.Empty() {
		r.logger.InfoContext(ctx, "No duplicate categories", log.FieldUserID, userID)
		return Result{DeletedCategoryIDs: []string{}, RewrittenTransactionIDs: []string{}}, nil
	}

	if err := r.store.Apply(ctx, userID, plan.Batch()); err != nil {
		r.logger.ErrorContext(ctx, "Repair batch rejected", log.NewFields().
			WithUser(userID).
			WithOperation(log.OpRepair).
			WithError(err).ToSlice()...)
		return Result{}, fmt.Errorf("%w: %w", ErrNoChanges, err)
	}

	res := Result{
		DeletedCategoryIDs:      plan.DeletedCategoryIDs(),
		RewrittenTransactionIDs: plan.RewrittenTransactionIDs(),
	}
	r.logger.InfoContext(ctx, "Categories repaired", log.NewFields().
		WithUser(userID).
		WithOperation(log.OpRepair).
		WithRepair(len(res.DeletedCategoryIDs), len(res.RewrittenTransactionIDs)).ToSlice()...)
	return res, nil
}
