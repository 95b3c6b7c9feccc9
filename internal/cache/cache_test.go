package cache

import (
	"testing"
	"time"

	"koin/internal/aggregate"
	"koin/internal/core"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[string, int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("a = %d, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("size = %d, want 2", c.Size())
	}
}

func TestLRUOverwriteRefreshesEntry(t *testing.T) {
	c := NewLRUCache[string, int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)
	c.Set("c", 3)

	if v, ok := c.Get("a"); !ok || v != 10 {
		t.Fatalf("a = %d, %v", v, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
}

func TestLRUExpiration(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string, string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("k should be cached")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("k should have expired")
	}

	c.Set("x", "1")
	c.Set("y", "2")
	now = now.Add(30 * time.Second)
	c.Set("z", "3")
	now = now.Add(45 * time.Second)

	m := NewManager(nil)
	m.Register(c)
	if n := m.CleanNow(); n != 2 {
		t.Errorf("cleaned %d entries, want 2", n)
	}
	if c.Size() != 1 {
		t.Errorf("size = %d, want 1", c.Size())
	}
}

func TestRemoveFunc(t *testing.T) {
	c := NewLRUCache[int, string](10, time.Minute)
	for i := 0; i < 6; i++ {
		c.Set(i, "v")
	}
	if n := c.RemoveFunc(func(k int) bool { return k%2 == 0 }); n != 3 {
		t.Fatalf("removed %d, want 3", n)
	}
	if _, ok := c.Get(1); !ok {
		t.Fatal("odd keys must stay")
	}
}

func TestOnEvictSeesEveryRemoval(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string, int](2, time.Minute)
	c.now = func() time.Time { return now }
	var gone []string
	c.OnEvict(func(k string, _ int) { gone = append(gone, k) })

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3) // overwrite is not an eviction
	c.Set("c", 4)
	c.Delete("a")
	now = now.Add(2 * time.Minute)
	c.CleanExpired()

	want := []string{"b", "a", "c"}
	if len(gone) != len(want) {
		t.Fatalf("evicted %v, want %v", gone, want)
	}
	for i := range want {
		if gone[i] != want[i] {
			t.Fatalf("evicted %v, want %v", gone, want)
		}
	}
}

func TestManagerStartStop(t *testing.T) {
	m := NewManager(nil)
	m.Stop()

	m.Register(NewLRUCache[string, int](1, time.Millisecond))
	m.StartCleanup(5 * time.Millisecond)
	m.StartCleanup(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestViewsInvalidateUser(t *testing.T) {
	v := NewViews(10, time.Minute)
	mar := core.Period{Year: 2024, Month: 3}
	apr := core.Period{Year: 2024, Month: 4}

	v.Put("u1", aggregate.View{Period: mar, TotalIncome: core.NewMoney(1)})
	v.Put("u1", aggregate.View{Period: apr})
	v.Put("u10", aggregate.View{Period: mar})

	got, ok := v.Get("u1", mar)
	if !ok || !got.TotalIncome.Equal(core.NewMoney(1)) {
		t.Fatalf("unexpected view: %+v %v", got, ok)
	}
	if n := v.Invalidate("u1"); n != 2 {
		t.Fatalf("invalidated %d, want 2", n)
	}
	if _, ok := v.Get("u10", mar); !ok {
		t.Fatal("u10 must not be touched by u1 invalidation")
	}
	if v.Size() != 1 {
		t.Fatalf("size = %d, want 1", v.Size())
	}
}
