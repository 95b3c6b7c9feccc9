package store

import (
	"context"
	"errors"
	"testing"

	"koin/internal/aggregate"
	"koin/internal/core"
)

type splitReader struct {
	fail Collection
}

func (r splitReader) err(c Collection) error {
	if r.fail == c {
		return errors.New("boom")
	}
	return nil
}

func (r splitReader) Transactions(context.Context, string) ([]core.Transaction, error) {
	return []core.Transaction{{ID: "t1"}}, r.err(Transactions)
}

func (r splitReader) Categories(context.Context, string) ([]core.Category, error) {
	return []core.Category{{ID: "c1"}}, r.err(Categories)
}

func (r splitReader) Debts(context.Context, string) ([]core.Debt, error) {
	return nil, r.err(Debts)
}

func (r splitReader) Receivables(context.Context, string) ([]core.Receivable, error) {
	return nil, r.err(Receivables)
}

type snapshotReader struct {
	splitReader
	calls int
}

func (r *snapshotReader) LoadSnapshot(context.Context, string) (aggregate.Snapshot, error) {
	r.calls++
	return aggregate.Snapshot{Debts: []core.Debt{{ID: "d1"}}}, nil
}

func TestLoadReadsEachCollection(t *testing.T) {
	snap, err := Load(context.Background(), splitReader{}, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Transactions) != 1 || len(snap.Categories) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	_, err = Load(context.Background(), splitReader{fail: Debts}, "u1")
	if err == nil || err.Error() != "load debts: boom" {
		t.Fatalf("expected a wrapped debts error, got %v", err)
	}
	if _, err := Load(context.Background(), splitReader{}, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestLoadPrefersSnapshotReader(t *testing.T) {
	r := &snapshotReader{}
	snap, err := Load(context.Background(), r, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.calls != 1 || len(snap.Debts) != 1 || len(snap.Transactions) != 0 {
		t.Fatalf("snapshot reader not used: calls=%d %+v", r.calls, snap)
	}
}
