// Package memory is an in-process document store. It backs the "memory"
// data backend and the tests of every component that talks to a store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"koin/internal/aggregate"
	"koin/internal/core"
	"koin/internal/store"
)

type userData struct {
	txs     []core.Transaction
	cats    []core.Category
	debts   []core.Debt
	recs    []core.Receivable
	line    core.CreditLine
	charges []core.CardCharge
}

func (u *userData) clone() *userData {
	if u == nil {
		return &userData{}
	}
	c := &userData{
		txs:     append([]core.Transaction(nil), u.txs...),
		cats:    append([]core.Category(nil), u.cats...),
		debts:   append([]core.Debt(nil), u.debts...),
		recs:    append([]core.Receivable(nil), u.recs...),
		line:    u.line,
		charges: append([]core.CardCharge(nil), u.charges...),
	}
	c.line.Categories = append([]core.CardCategory(nil), u.line.Categories...)
	return c
}

func (u *userData) snapshot() aggregate.Snapshot {
	c := u.clone()
	return aggregate.Snapshot{
		Transactions: c.txs,
		Categories:   c.cats,
		Debts:        c.debts,
		Receivables:  c.recs,
	}
}

// Store keeps every user's collections in memory. Batches are applied on a
// private copy and swapped in on success, so a failed batch leaves no trace.
type Store struct {
	store.Hub

	mu       sync.Mutex
	users    map[string]*userData
	failNext error
}

func New() *Store {
	return &Store{users: make(map[string]*userData)}
}

// Seed replaces a user's ledger collections. Observers are not notified.
func (s *Store) Seed(userID string, snap aggregate.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID].clone()
	u.txs = append([]core.Transaction(nil), snap.Transactions...)
	u.cats = append([]core.Category(nil), snap.Categories...)
	u.debts = append([]core.Debt(nil), snap.Debts...)
	u.recs = append([]core.Receivable(nil), snap.Receivables...)
	s.users[userID] = u
}

// SeedCard replaces a user's credit card sub-ledger.
func (s *Store) SeedCard(userID string, line core.CreditLine, charges []core.CardCharge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID].clone()
	u.line = line
	u.charges = append([]core.CardCharge(nil), charges...)
	s.users[userID] = u
}

// Snapshot returns a copy of a user's ledger collections.
func (s *Store) Snapshot(userID string) aggregate.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID].snapshot()
}

// LoadSnapshot implements store.SnapshotReader.
func (s *Store) LoadSnapshot(ctx context.Context, userID string) (aggregate.Snapshot, error) {
	if err := store.CheckScope(userID); err != nil {
		return aggregate.Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return aggregate.Snapshot{}, err
	}
	return s.Snapshot(userID), nil
}

// FailNextApply makes the next Apply stage its batch and then fail with err
// instead of committing.
func (s *Store) FailNextApply(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *Store) read(ctx context.Context, userID string) (*userData, error) {
	if err := store.CheckScope(userID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID].clone(), nil
}

func (s *Store) Transactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	u, err := s.read(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.txs, nil
}

func (s *Store) Categories(ctx context.Context, userID string) ([]core.Category, error) {
	u, err := s.read(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.cats, nil
}

func (s *Store) Debts(ctx context.Context, userID string) ([]core.Debt, error) {
	u, err := s.read(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.debts, nil
}

func (s *Store) Receivables(ctx context.Context, userID string) ([]core.Receivable, error) {
	u, err := s.read(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.recs, nil
}

func (s *Store) CreditLine(ctx context.Context, userID string) (core.CreditLine, error) {
	u, err := s.read(ctx, userID)
	if err != nil {
		return core.CreditLine{}, err
	}
	return u.line, nil
}

func (s *Store) CardCharges(ctx context.Context, userID string) ([]core.CardCharge, error) {
	u, err := s.read(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.charges, nil
}

// Apply commits every write in b or none of them.
func (s *Store) Apply(ctx context.Context, userID string, b *store.Batch) error {
	if err := store.CheckScope(userID); err != nil {
		return err
	}
	if b.Len() == 0 {
		return store.ErrEmptyBatch
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	next := s.users[userID].clone()
	for i, op := range b.Ops() {
		if err := applyOp(next, op); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("op %d (%s %s/%s): %w", i, op.Type, op.Collection, op.ID, err)
		}
	}
	if err := s.failNext; err != nil {
		s.failNext = nil
		s.mu.Unlock()
		return err
	}
	s.users[userID] = next
	snap := next.snapshot()
	s.mu.Unlock()

	s.Notify(userID, snap)
	return nil
}

func applyOp(u *userData, op store.Op) error {
	switch op.Type {
	case store.OpPut:
		return applyPut(u, op)
	case store.OpDelete:
		switch op.Collection {
		case store.Transactions:
			u.txs = remove(u.txs, op.ID, func(t core.Transaction) string { return t.ID })
		case store.Categories:
			u.cats = remove(u.cats, op.ID, func(c core.Category) string { return c.ID })
		case store.Debts:
			u.debts = remove(u.debts, op.ID, func(d core.Debt) string { return d.ID })
		case store.Receivables:
			u.recs = remove(u.recs, op.ID, func(r core.Receivable) string { return r.ID })
		case store.CardCharges:
			u.charges = remove(u.charges, op.ID, func(c core.CardCharge) string { return c.ID })
		default:
			return fmt.Errorf("delete not supported on %s", op.Collection)
		}
		return nil
	case store.OpSetCategory:
		for i := range u.txs {
			if u.txs[i].ID == op.ID {
				u.txs[i].CategoryID = op.CategoryID
				return nil
			}
		}
		return store.ErrNotFound
	}
	return fmt.Errorf("unknown op type %d", op.Type)
}

func applyPut(u *userData, op store.Op) error {
	switch {
	case op.Transaction != nil:
		u.txs = upsert(u.txs, *op.Transaction, func(t core.Transaction) string { return t.ID })
	case op.Category != nil:
		u.cats = upsert(u.cats, *op.Category, func(c core.Category) string { return c.ID })
	case op.Debt != nil:
		u.debts = upsert(u.debts, *op.Debt, func(d core.Debt) string { return d.ID })
	case op.Receivable != nil:
		u.recs = upsert(u.recs, *op.Receivable, func(r core.Receivable) string { return r.ID })
	case op.CreditLine != nil:
		u.line = *op.CreditLine
		u.line.Categories = append([]core.CardCategory(nil), op.CreditLine.Categories...)
	case op.Charge != nil:
		u.charges = upsert(u.charges, *op.Charge, func(c core.CardCharge) string { return c.ID })
	default:
		return fmt.Errorf("put without payload on %s", op.Collection)
	}
	return nil
}

// upsert replaces the document with the same id in place or appends it.
func upsert[T any](docs []T, doc T, id func(T) string) []T {
	for i := range docs {
		if id(docs[i]) == id(doc) {
			docs[i] = doc
			return docs
		}
	}
	return append(docs, doc)
}

func remove[T any](docs []T, docID string, id func(T) string) []T {
	out := docs[:0]
	for _, d := range docs {
		if id(d) != docID {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) Close() error { return nil }
