// Package dedupe merges categories whose names differ only by case or
// surrounding whitespace, and rewrites the transactions that pointed at the
// removed duplicates.
package dedupe

import (
	"sort"

	"koin/internal/core"
	"koin/internal/store"
)

// Group is one set of categories sharing a normalized name.
type Group struct {
	Key       string   `json:"key"`
	Survivor  string   `json:"survivor"`
	VictimIDs []string `json:"victim_ids"`
}

// Rewrite moves one transaction from a victim category to its survivor.
type Rewrite struct {
	TransactionID string `json:"transaction_id"`
	From          string `json:"from"`
	To            string `json:"to"`
}

// Plan is the full repair for one user. The zero Plan changes nothing.
type Plan struct {
	Groups   []Group           `json:"groups"`
	Survivor map[string]string `json:"survivor"` // victim id -> survivor id
	Rewrites []Rewrite         `json:"rewrites"`
}

// BuildPlan groups categories by normalized name and picks one survivor per
// group: the earliest CreatedAt, with the lowest id breaking ties and
// standing in for missing timestamps. Categories with a blank name are
// never merged.
func BuildPlan(cats []core.Category, txs []core.Transaction) Plan {
	byKey := make(map[string][]core.Category)
	for _, c := range cats {
		key := c.NormalizedName()
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], c)
	}

	keys := make([]string, 0, len(byKey))
	for k, members := range byKey {
		if len(members) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	p := Plan{Survivor: make(map[string]string)}
	for _, k := range keys {
		members := byKey[k]
		sort.SliceStable(members, func(i, j int) bool { return older(members[i], members[j]) })
		g := Group{Key: k, Survivor: members[0].ID}
		for _, v := range members[1:] {
			if v.ID == g.Survivor {
				continue
			}
			g.VictimIDs = append(g.VictimIDs, v.ID)
			p.Survivor[v.ID] = g.Survivor
		}
		sort.Strings(g.VictimIDs)
		p.Groups = append(p.Groups, g)
	}

	for _, t := range txs {
		if to, ok := p.Survivor[t.CategoryID]; ok {
			p.Rewrites = append(p.Rewrites, Rewrite{TransactionID: t.ID, From: t.CategoryID, To: to})
		}
	}
	sort.Slice(p.Rewrites, func(i, j int) bool { return p.Rewrites[i].TransactionID < p.Rewrites[j].TransactionID })
	return p
}

// older reports whether a should survive over b.
func older(a, b core.Category) bool {
	az, bz := a.CreatedAt.IsZero(), b.CreatedAt.IsZero()
	switch {
	case !az && !bz && !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.Before(b.CreatedAt)
	case az != bz:
		return !az
	}
	return a.ID < b.ID
}

// Empty reports whether the plan has nothing to do.
func (p Plan) Empty() bool {
	return len(p.Survivor) == 0
}

// DeletedCategoryIDs returns the victim ids, sorted.
func (p Plan) DeletedCategoryIDs() []string {
	out := make([]string, 0, len(p.Survivor))
	for id := range p.Survivor {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RewrittenTransactionIDs returns the ids of the rewritten transactions, sorted.
func (p Plan) RewrittenTransactionIDs() []string {
	out := make([]string, 0, len(p.Rewrites))
	for _, r := range p.Rewrites {
		out = append(out, r.TransactionID)
	}
	return out
}

// Batch turns the plan into one atomic store batch: rewrites first, then
// deletions.
func (p Plan) Batch() *store.Batch {
	b := store.NewBatch()
	for _, r := range p.Rewrites {
		b.SetTransactionCategory(r.TransactionID, r.To)
	}
	for _, id := range p.DeletedCategoryIDs() {
		b.Delete(store.Categories, id)
	}
	return b
}

// ApplyTo returns the collections as they look after the plan is committed.
// The inputs are not modified.
func (p Plan) ApplyTo(cats []core.Category, txs []core.Transaction) ([]core.Category, []core.Transaction) {
	outCats := make([]core.Category, 0, len(cats))
	for _, c := range cats {
		if _, victim := p.Survivor[c.ID]; !victim {
			outCats = append(outCats, c)
		}
	}
	outTxs := make([]core.Transaction, len(txs))
	for i, t := range txs {
		if to, ok := p.Survivor[t.CategoryID]; ok {
			t.CategoryID = to
		}
		outTxs[i] = t
	}
	return outCats, outTxs
}
