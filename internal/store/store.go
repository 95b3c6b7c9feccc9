// Package store defines the ports between koin and its document store.
//
// Every read and write is scoped by a user id. The store owns persistence
// and change notification; the rest of the module only sees snapshots and
// atomic batches.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"koin/internal/aggregate"
	"koin/internal/core"
)

// Collection names, as used in change events and logs.
type Collection string

const (
	Transactions Collection = "transactions"
	Categories   Collection = "categories"
	Debts        Collection = "debts"
	Receivables  Collection = "receivables"
	CreditLines  Collection = "credit_lines"
	CardCharges  Collection = "card_charges"
)

var (
	// ErrUnauthorized is returned when a call has no user scope.
	ErrUnauthorized = errors.New("unauthorized: missing user scope")
	ErrNotFound     = errors.New("document not found")
	ErrEmptyBatch   = errors.New("empty batch")
)

type (
	// Reader reads one user's collections. Order is the store's natural
	// order and is not contractual.
	Reader interface {
		Transactions(ctx context.Context, userID string) ([]core.Transaction, error)
		Categories(ctx context.Context, userID string) ([]core.Category, error)
		Debts(ctx context.Context, userID string) ([]core.Debt, error)
		Receivables(ctx context.Context, userID string) ([]core.Receivable, error)
	}

	// CardReader reads the credit card sub-ledger.
	CardReader interface {
		CreditLine(ctx context.Context, userID string) (core.CreditLine, error)
		CardCharges(ctx context.Context, userID string) ([]core.CardCharge, error)
	}

	// Writer commits a batch atomically: either every operation is applied
	// or none is.
	Writer interface {
		Apply(ctx context.Context, userID string, b *Batch) error
	}

	// Observer receives a fresh snapshot after each committed batch.
	Observer func(userID string, s aggregate.Snapshot)

	// Subscriber registers observers for a user. The returned function
	// cancels the subscription.
	Subscriber interface {
		Subscribe(userID string, fn Observer) (cancel func())
	}

	// Store is the full document store.
	Store interface {
		Reader
		CardReader
		Writer
		Close() error
	}
)

// NewID returns a new random document id.
func NewID() string {
	return uuid.NewString()
}

// CheckScope validates the user scope of a call.
func CheckScope(userID string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	return nil
}
