package cache

import (
	"time"

	"koin/internal/aggregate"
	"koin/internal/core"
)

// viewKey identifies one user's view of one month.
type viewKey struct {
	user   string
	period core.Period
}

// Views caches derived monthly views per user and period.
type Views struct {
	lru *LRUCache[viewKey, aggregate.View]
}

var _ Cache[viewKey, aggregate.View] = (*LRUCache[viewKey, aggregate.View])(nil)

func NewViews(maxSize int, ttl time.Duration) *Views {
	return &Views{lru: NewLRUCache[viewKey, aggregate.View](maxSize, ttl)}
}

func (v *Views) Get(userID string, p core.Period) (aggregate.View, bool) {
	return v.lru.Get(viewKey{userID, p})
}

func (v *Views) Put(userID string, view aggregate.View) {
	v.lru.Set(viewKey{userID, view.Period}, view)
}

// Invalidate drops every cached period of userID.
func (v *Views) Invalidate(userID string) int {
	return v.lru.RemoveFunc(func(k viewKey) bool { return k.user == userID })
}

func (v *Views) CleanExpired() int { return v.lru.CleanExpired() }

func (v *Views) Size() int { return v.lru.Size() }
