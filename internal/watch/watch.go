// Package watch keeps derived views fresh. It recomputes the views a user
// has asked for whenever the store pushes a new snapshot or a change event
// arrives from the queue.
package watch

import (
	"context"
	"sync"
	"time"

	"koin/internal/aggregate"
	"koin/internal/cache"
	"koin/internal/core"
	"koin/internal/log"
	"koin/internal/store"
)

// Service serves views read-through from the cache and recomputes tracked
// periods on change.
type Service struct {
	reader store.Reader
	views  *cache.Views
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	tracked map[string]map[core.Period]struct{}

	// gen counts the snapshots applied per user. A load that started
	// under an older generation must not overwrite the cache.
	genMu sync.Mutex
	gen   map[string]uint64
}

func New(r store.Reader, views *cache.Views, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{
		reader:  r,
		views:   views,
		logger:  logger.WithComponent(log.ComponentWatch),
		now:     time.Now,
		tracked: make(map[string]map[core.Period]struct{}),
		gen:     make(map[string]uint64),
	}
}

// View returns the view of userID for p, computing it on a cache miss.
func (s *Service) View(ctx context.Context, userID string, p core.Period) (aggregate.View, error) {
	if err := p.Validate(); err != nil {
		return aggregate.View{}, err
	}
	s.track(userID, p)
	if v, ok := s.views.Get(userID, p); ok {
		return v, nil
	}
	g := s.generation(userID)
	snap, err := store.Load(ctx, s.reader, userID)
	if err != nil {
		return aggregate.View{}, err
	}
	v := s.compute(userID, snap, p)

	s.genMu.Lock()
	if s.gen[userID] == g {
		s.views.Put(userID, v)
	}
	s.genMu.Unlock()
	return v, nil
}

// Observe recomputes every tracked period of userID from snap. Its
// signature matches store.Observer.
func (s *Service) Observe(userID string, snap aggregate.Snapshot) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.apply(userID, snap)
}

// Refresh reloads userID from the store and recomputes its tracked views.
// A snapshot pushed while the reload was in flight wins over it.
func (s *Service) Refresh(ctx context.Context, userID string) error {
	g := s.generation(userID)
	snap, err := store.Load(ctx, s.reader, userID)
	if err != nil {
		return err
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gen[userID] != g {
		s.logger.Debug("Reload superseded by a newer snapshot", log.FieldUserID, userID)
		return nil
	}
	s.apply(userID, snap)
	return nil
}

// apply must be called with genMu held.
func (s *Service) apply(userID string, snap aggregate.Snapshot) {
	s.gen[userID]++
	s.views.Invalidate(userID)
	for _, p := range s.periods(userID) {
		s.views.Put(userID, s.compute(userID, snap, p))
	}
}

func (s *Service) generation(userID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gen[userID]
}

// Watch subscribes the service to userID's snapshots.
func (s *Service) Watch(sub store.Subscriber, userID string) (cancel func()) {
	s.track(userID, core.PeriodOf(s.now()))
	return sub.Subscribe(userID, s.Observe)
}

// Forget stops tracking userID and drops its cached views. A load already
// in flight for userID will not be cached.
func (s *Service) Forget(userID string) {
	s.mu.Lock()
	delete(s.tracked, userID)
	s.mu.Unlock()

	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gen[userID]++
	s.views.Invalidate(userID)
}

func (s *Service) compute(userID string, snap aggregate.Snapshot, p core.Period) aggregate.View {
	v := aggregate.Aggregate(snap, p)
	if v.Skipped > 0 {
		s.logger.Warn("Transactions with unknown kind skipped",
			log.FieldUserID, userID, log.FieldPeriod, p.String(), log.FieldSkipped, v.Skipped)
	}
	return v
}

func (s *Service) track(userID string, p core.Period) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracked[userID] == nil {
		s.tracked[userID] = make(map[core.Period]struct{})
	}
	s.tracked[userID][p] = struct{}{}
}

func (s *Service) periods(userID string) []core.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Period, 0, len(s.tracked[userID]))
	for p := range s.tracked[userID] {
		out = append(out, p)
	}
	return out
}
