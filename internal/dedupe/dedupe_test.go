package dedupe

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"koin/internal/aggregate"
	"koin/internal/core"
	"koin/internal/store"
	"koin/internal/store/memory"
)

func cat(id, name string) core.Category {
	return core.Category{ID: id, Name: name, Classification: core.Necessity}
}

func txn(id, catID string) core.Transaction {
	return core.Transaction{ID: id, Amount: core.NewMoney(1000), Description: "d", CategoryID: catID, Date: core.NewDate(2024, 3, 1), Kind: core.KindExpense}
}

func TestRepairExampleScenario(t *testing.T) {
	s := memory.New()
	s.Seed("u1", aggregate.Snapshot{
		Categories:   []core.Category{cat("a", "Comida"), cat("b", "comida ")},
		Transactions: []core.Transaction{txn("1", "b")},
	})

	res, err := NewRepairer(s, nil).Repair(context.Background(), "u1")
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !reflect.DeepEqual(res.DeletedCategoryIDs, []string{"b"}) || !reflect.DeepEqual(res.RewrittenTransactionIDs, []string{"1"}) {
		t.Fatalf("unexpected result: %+v", res)
	}

	snap := s.Snapshot("u1")
	if len(snap.Categories) != 1 || snap.Categories[0].ID != "a" || snap.Categories[0].Name != "Comida" {
		t.Fatalf("unexpected categories: %+v", snap.Categories)
	}
	if snap.Transactions[0].CategoryID != "a" {
		t.Fatalf("transaction 1 points at %q, want a", snap.Transactions[0].CategoryID)
	}
}

func TestSurvivorSelection(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	withTime := func(c core.Category, ts time.Time) core.Category { c.CreatedAt = ts; return c }

	tests := []struct {
		name string
		cats []core.Category
		want string
	}{
		{"lowest id without timestamps", []core.Category{cat("z", "Ocio"), cat("m", "ocio"), cat("q", " OCIO")}, "m"},
		{"earliest timestamp", []core.Category{withTime(cat("a", "Ocio"), t0.Add(time.Hour)), withTime(cat("b", "ocio"), t0)}, "b"},
		{"timestamp beats missing", []core.Category{cat("a", "Ocio"), withTime(cat("b", "ocio"), t0)}, "b"},
		{"equal timestamps use id", []core.Category{withTime(cat("y", "Ocio"), t0), withTime(cat("x", "ocio"), t0)}, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := BuildPlan(tt.cats, nil)
			if len(p.Groups) != 1 || p.Groups[0].Survivor != tt.want {
				t.Fatalf("groups = %+v, want survivor %s", p.Groups, tt.want)
			}
			// Input order never changes the outcome.
			rev := make([]core.Category, len(tt.cats))
			for i, c := range tt.cats {
				rev[len(tt.cats)-1-i] = c
			}
			if got := BuildPlan(rev, nil).Groups[0].Survivor; got != tt.want {
				t.Fatalf("reversed input survivor = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuildPlanIgnoresBlankAndUniqueNames(t *testing.T) {
	p := BuildPlan([]core.Category{cat("a", ""), cat("b", "  "), cat("c", "Rent")}, []core.Transaction{txn("1", "a")})
	if !p.Empty() || len(p.Rewrites) != 0 {
		t.Fatalf("expected empty plan, got %+v", p)
	}
	if p.Batch().Len() != 0 {
		t.Fatalf("empty plan produced writes")
	}
}

func TestRepairConvergenceAndIntegrity(t *testing.T) {
	cats := []core.Category{
		cat("c1", "Food"), cat("c2", "food"), cat("c3", " FOOD "),
		cat("c4", "Rent"), cat("c5", "rent"),
		cat("c6", "Fun"),
	}
	txs := []core.Transaction{
		txn("t1", "c2"), txn("t2", "c3"), txn("t3", "c5"),
		txn("t4", "c6"), txn("t5", "gone"), txn("t6", ""), txn("t7", "c1"),
	}
	s := memory.New()
	s.Seed("u1", aggregate.Snapshot{Categories: cats, Transactions: txs})

	res, err := NewRepairer(s, nil).Repair(context.Background(), "u1")
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !reflect.DeepEqual(res.DeletedCategoryIDs, []string{"c2", "c3", "c5"}) {
		t.Fatalf("deleted = %v", res.DeletedCategoryIDs)
	}
	if !reflect.DeepEqual(res.RewrittenTransactionIDs, []string{"t1", "t2", "t3"}) {
		t.Fatalf("rewritten = %v", res.RewrittenTransactionIDs)
	}

	snap := s.Snapshot("u1")
	seen := map[string]bool{}
	for _, c := range snap.Categories {
		if seen[c.NormalizedName()] {
			t.Fatalf("duplicate name %q survived", c.Name)
		}
		seen[c.NormalizedName()] = true
	}

	want := map[string]string{"t1": "c1", "t2": "c1", "t3": "c4"}
	for i, tx := range snap.Transactions {
		if to, ok := want[tx.ID]; ok {
			if tx.CategoryID != to {
				t.Errorf("%s -> %s, want %s", tx.ID, tx.CategoryID, to)
			}
			continue
		}
		if !reflect.DeepEqual(tx, txs[i]) {
			t.Errorf("untouched transaction changed: %+v vs %+v", tx, txs[i])
		}
	}

	// A second run finds nothing to do.
	res, err = NewRepairer(s, nil).Repair(context.Background(), "u1")
	if err != nil || len(res.DeletedCategoryIDs) != 0 || len(res.RewrittenTransactionIDs) != 0 {
		t.Fatalf("second repair: %+v %v", res, err)
	}
}

func TestPlanApplyToMatchesStore(t *testing.T) {
	cats := []core.Category{cat("a", "Comida"), cat("b", "comida "), cat("c", "Ocio")}
	txs := []core.Transaction{txn("1", "b"), txn("2", "c")}
	p := BuildPlan(cats, txs)
	gotCats, gotTxs := p.ApplyTo(cats, txs)

	s := memory.New()
	s.Seed("u1", aggregate.Snapshot{Categories: cats, Transactions: txs})
	if err := s.Apply(context.Background(), "u1", p.Batch()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snap := s.Snapshot("u1")
	if !reflect.DeepEqual(gotCats, snap.Categories) || !reflect.DeepEqual(gotTxs, snap.Transactions) {
		t.Fatalf("ApplyTo disagrees with store:\n%+v\n%+v", gotCats, snap.Categories)
	}
	if txs[0].CategoryID != "b" {
		t.Fatalf("ApplyTo modified its input")
	}
}

func TestRepairAtomicUnderFailure(t *testing.T) {
	s := memory.New()
	s.Seed("u1", aggregate.Snapshot{
		Categories:   []core.Category{cat("a", "Comida"), cat("b", "comida "), cat("c", "Ocio"), cat("d", "ocio")},
		Transactions: []core.Transaction{txn("1", "b"), txn("2", "d"), txn("3", "a")},
	})
	before := s.Snapshot("u1")

	boom := errors.New("connection lost")
	s.FailNextApply(boom)
	_, err := NewRepairer(s, nil).Repair(context.Background(), "u1")
	if !errors.Is(err, ErrNoChanges) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrNoChanges wrapping the store error, got %v", err)
	}
	if after := s.Snapshot("u1"); !reflect.DeepEqual(before, after) {
		t.Fatalf("store changed after failed repair")
	}
}

func TestRepairRequiresUser(t *testing.T) {
	_, err := NewRepairer(memory.New(), nil).Repair(context.Background(), "")
	if !errors.Is(err, store.ErrUnauthorized) || !errors.Is(err, ErrNoChanges) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

// gatedStore blocks Apply until released and counts calls.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	applies atomic.Int32
}

func (g *gatedStore) Apply(ctx context.Context, userID string, b *store.Batch) error {
	if g.applies.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return g.Store.Apply(ctx, userID, b)
}

func TestConcurrentRepairsAreSerialized(t *testing.T) {
	mem := memory.New()
	mem.Seed("u1", aggregate.Snapshot{
		Categories:   []core.Category{cat("a", "Comida"), cat("b", "comida")},
		Transactions: []core.Transaction{txn("1", "b")},
	})
	gs := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	r := NewRepairer(gs, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	run := func() {
		defer wg.Done()
		_, err := r.Repair(context.Background(), "u1")
		errs <- err
	}

	wg.Add(1)
	go run()
	<-gs.entered
	wg.Add(1)
	go run()
	close(gs.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("repair: %v", err)
		}
	}
	if n := gs.applies.Load(); n != 1 {
		t.Fatalf("expected a single batch, got %d", n)
	}
	if snap := mem.Snapshot("u1"); len(snap.Categories) != 1 || snap.Transactions[0].CategoryID != "a" {
		t.Fatalf("unexpected final state: %+v", snap)
	}
}

func TestSharedRepairOutlivesFirstCaller(t *testing.T) {
	mem := memory.New()
	mem.Seed("u1", aggregate.Snapshot{
		Categories:   []core.Category{cat("a", "Comida"), cat("b", "comida")},
		Transactions: []core.Transaction{txn("1", "b")},
	})
	gs := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	r := NewRepairer(gs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := r.Repair(ctx, "u1")
		first <- err
	}()
	<-gs.entered

	second := make(chan error, 1)
	go func() {
		_, err := r.Repair(context.Background(), "u1")
		second <- err
	}()
	cancel()
	close(gs.release)

	if err := <-first; err != nil {
		t.Fatalf("first caller: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second caller: %v", err)
	}
	if snap := mem.Snapshot("u1"); len(snap.Categories) != 1 || snap.Transactions[0].CategoryID != "a" {
		t.Fatalf("repair did not commit: %+v", snap)
	}

	if _, err := r.Repair(ctx, "u1"); !errors.Is(err, context.Canceled) || !errors.Is(err, ErrNoChanges) {
		t.Fatalf("expected a cancelled caller to be refused, got %v", err)
	}
}
