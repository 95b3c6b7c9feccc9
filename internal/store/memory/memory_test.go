package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"koin/internal/aggregate"
	"koin/internal/core"
	"koin/internal/store"
)

func seeded() *Store {
	s := New()
	s.Seed("u1", aggregate.Snapshot{
		Categories: []core.Category{
			{ID: "c1", Name: "Food", Classification: core.Necessity},
			{ID: "c2", Name: "food ", Classification: core.Necessity},
		},
		Transactions: []core.Transaction{
			{ID: "t1", Amount: core.NewMoney(10), Description: "x", CategoryID: "c2", Date: core.NewDate(2024, 3, 1), Kind: core.KindExpense},
		},
	})
	return s
}

func TestApplyCommitsAndPreservesOrder(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	b := store.NewBatch().
		PutCategory(core.Category{ID: "c3", Name: "Fun", Classification: core.Want}).
		PutCategory(core.Category{ID: "c1", Name: "Groceries", Classification: core.Necessity}).
		Delete(store.Categories, "c2").
		SetTransactionCategory("t1", "c1")
	if err := s.Apply(ctx, "u1", b); err != nil {
		t.Fatalf("apply: %v", err)
	}

	cats, err := s.Categories(ctx, "u1")
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != 2 || cats[0].ID != "c1" || cats[0].Name != "Groceries" || cats[1].ID != "c3" {
		t.Fatalf("unexpected categories: %+v", cats)
	}
	txs, _ := s.Transactions(ctx, "u1")
	if txs[0].CategoryID != "c1" {
		t.Fatalf("transaction not rewritten: %+v", txs[0])
	}
}

func TestApplyIsAtomic(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	before := s.Snapshot("u1")

	b := store.NewBatch().
		Delete(store.Categories, "c2").
		SetTransactionCategory("missing", "c1")
	if err := s.Apply(ctx, "u1", b); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if after := s.Snapshot("u1"); !reflect.DeepEqual(before, after) {
		t.Fatalf("store changed after failed batch:\nbefore=%+v\nafter=%+v", before, after)
	}

	boom := errors.New("boom")
	s.FailNextApply(boom)
	if err := s.Apply(ctx, "u1", store.NewBatch().Delete(store.Categories, "c2")); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if after := s.Snapshot("u1"); !reflect.DeepEqual(before, after) {
		t.Fatalf("store changed after injected failure")
	}

	// The injected failure is consumed.
	if err := s.Apply(ctx, "u1", store.NewBatch().Delete(store.Categories, "c2")); err != nil {
		t.Fatalf("apply after failure: %v", err)
	}
}

func TestScopeIsRequired(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	if _, err := s.Transactions(ctx, ""); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on read, got %v", err)
	}
	if err := s.Apply(ctx, "", store.NewBatch().Delete(store.Categories, "c1")); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on write, got %v", err)
	}
	if err := s.Apply(ctx, "u1", store.NewBatch()); !errors.Is(err, store.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	// Users never see each other's documents.
	if cats, _ := s.Categories(ctx, "u2"); len(cats) != 0 {
		t.Fatalf("unexpected categories for u2: %+v", cats)
	}
}

func TestSubscribeReceivesCommittedSnapshots(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	var got []aggregate.Snapshot
	cancel := s.Subscribe("u1", func(userID string, snap aggregate.Snapshot) {
		if userID != "u1" {
			t.Errorf("unexpected user %q", userID)
		}
		got = append(got, snap)
	})

	if err := s.Apply(ctx, "u1", store.NewBatch().Delete(store.Categories, "c2")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	s.FailNextApply(errors.New("boom"))
	_ = s.Apply(ctx, "u1", store.NewBatch().Delete(store.Categories, "c1"))
	_ = s.Apply(ctx, "u2", store.NewBatch().PutDebt(core.Debt{ID: "d1", Name: "Loan"}))

	if len(got) != 1 || len(got[0].Categories) != 1 {
		t.Fatalf("expected one notification with one category, got %+v", got)
	}

	cancel()
	if err := s.Apply(ctx, "u1", store.NewBatch().Delete(store.Categories, "c1")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("observer called after cancel")
	}
}

func TestLoadReadsAllCollections(t *testing.T) {
	s := seeded()
	s.Seed("u2", aggregate.Snapshot{
		Debts:       []core.Debt{{ID: "d1", Name: "Loan", CurrentBalance: core.NewMoney(5)}},
		Receivables: []core.Receivable{{ID: "r1", Amount: core.NewMoney(2), Status: core.ReceivablePending}},
	})
	snap, err := store.Load(context.Background(), s, "u2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Debts) != 1 || len(snap.Receivables) != 1 || len(snap.Transactions) != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if _, err := store.Load(context.Background(), s, ""); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
