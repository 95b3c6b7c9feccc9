package store

import (
	"sort"

	"koin/internal/core"
)

// OpType is the kind of a batched write.
type OpType int

const (
	OpPut OpType = iota
	OpDelete
	// OpSetCategory rewrites the category of an existing transaction. The
	// transaction must exist when the batch is applied.
	OpSetCategory
)

func (t OpType) String() string {
	switch t {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	case OpSetCategory:
		return "set_category"
	}
	return "unknown"
}

// Op is one write in a Batch. Exactly one payload field is set for puts.
type Op struct {
	Type       OpType
	Collection Collection
	ID         string

	Transaction *core.Transaction
	Category    *core.Category
	Debt        *core.Debt
	Receivable  *core.Receivable
	CreditLine  *core.CreditLine
	Charge      *core.CardCharge

	// CategoryID is the new category for OpSetCategory.
	CategoryID string
}

// Batch is an ordered list of writes committed as one unit.
type Batch struct {
	ops []Op
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) PutTransaction(t core.Transaction) *Batch {
	b.ops = append(b.ops, Op{Type: OpPut, Collection: Transactions, ID: t.ID, Transaction: &t})
	return b
}

func (b *Batch) PutCategory(c core.Category) *Batch {
	b.ops = append(b.ops, Op{Type: OpPut, Collection: Categories, ID: c.ID, Category: &c})
	return b
}

func (b *Batch) PutDebt(d core.Debt) *Batch {
	b.ops = append(b.ops, Op{Type: OpPut, Collection: Debts, ID: d.ID, Debt: &d})
	return b
}

func (b *Batch) PutReceivable(r core.Receivable) *Batch {
	b.ops = append(b.ops, Op{Type: OpPut, Collection: Receivables, ID: r.ID, Receivable: &r})
	return b
}

// PutCreditLine replaces the user's card configuration.
func (b *Batch) PutCreditLine(l core.CreditLine) *Batch {
	b.ops = append(b.ops, Op{Type: OpPut, Collection: CreditLines, CreditLine: &l})
	return b
}

func (b *Batch) PutCardCharge(c core.CardCharge) *Batch {
	b.ops = append(b.ops, Op{Type: OpPut, Collection: CardCharges, ID: c.ID, Charge: &c})
	return b
}

// Delete removes a document. Deleting a missing document is not an error.
func (b *Batch) Delete(c Collection, id string) *Batch {
	b.ops = append(b.ops, Op{Type: OpDelete, Collection: c, ID: id})
	return b
}

// SetTransactionCategory points an existing transaction at another category.
func (b *Batch) SetTransactionCategory(txID, categoryID string) *Batch {
	b.ops = append(b.ops, Op{Type: OpSetCategory, Collection: Transactions, ID: txID, CategoryID: categoryID})
	return b
}

// Ops returns the batched writes in order.
func (b *Batch) Ops() []Op {
	if b == nil {
		return nil
	}
	return b.ops
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// Collections returns the distinct collections touched by the batch, sorted.
func (b *Batch) Collections() []Collection {
	seen := make(map[Collection]bool)
	var out []Collection
	for _, op := range b.Ops() {
		if !seen[op.Collection] {
			seen[op.Collection] = true
			out = append(out, op.Collection)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
