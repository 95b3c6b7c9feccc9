package store

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"koin/internal/aggregate"
)

// SnapshotReader is implemented by stores that can read all four ledger
// collections at one point in time.
type SnapshotReader interface {
	LoadSnapshot(ctx context.Context, userID string) (aggregate.Snapshot, error)
}

// Load returns the four ledger collections of a user as one snapshot. It
// prefers r's own consistent read and otherwise reads the collections
// concurrently.
func Load(ctx context.Context, r Reader, userID string) (aggregate.Snapshot, error) {
	if err := CheckScope(userID); err != nil {
		return aggregate.Snapshot{}, err
	}
	if sr, ok := r.(SnapshotReader); ok {
		return sr.LoadSnapshot(ctx, userID)
	}

	var s aggregate.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.Transactions, err = r.Transactions(gctx, userID)
		if err != nil {
			err = fmt.Errorf("load %s: %w", Transactions, err)
		}
		return err
	})
	g.Go(func() (err error) {
		s.Categories, err = r.Categories(gctx, userID)
		if err != nil {
			err = fmt.Errorf("load %s: %w", Categories, err)
		}
		return err
	})
	g.Go(func() (err error) {
		s.Debts, err = r.Debts(gctx, userID)
		if err != nil {
			err = fmt.Errorf("load %s: %w", Debts, err)
		}
		return err
	})
	g.Go(func() (err error) {
		s.Receivables, err = r.Receivables(gctx, userID)
		if err != nil {
			err = fmt.Errorf("load %s: %w", Receivables, err)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return aggregate.Snapshot{}, err
	}
	return s, nil
}
