// Package http exposes the ledger, the credit card sub-ledger, the summary
// views and the category repair as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"koin/internal/cache"
	"koin/internal/creditcard"
	"koin/internal/dedupe"
	"koin/internal/ledger"
	"koin/internal/log"
	"koin/internal/middleware/ratelimit"
	"koin/internal/middleware/security"
	"koin/internal/middleware/trace"
	"koin/internal/store"
	"koin/internal/watch"
)

// RepairQueue hands a repair to a background worker. *amqp.Client
// implements it.
type RepairQueue interface {
	PublishRepair(ctx context.Context, userID string) error
}

// Deps are the services behind the API. Subscriber, Jobs and Views may
// be nil.
type Deps struct {
	Store      store.Reader
	Subscriber store.Subscriber
	Ledger     *ledger.Service
	Cards      *creditcard.Service
	Repairer   *dedupe.Repairer
	Watch      *watch.Service
	Views      *cache.Views
	Jobs       RepairQueue

	// UserHeader names the header carrying the authenticated user id.
	UserHeader string
	Logger     *log.Logger

	// MaxWatchedUsers bounds the live subscriptions. The least recently
	// seen user is unsubscribed first. Defaults to DefaultMaxWatchedUsers.
	MaxWatchedUsers int
}

const (
	DefaultMaxWatchedUsers = 1000

	// watchIdle unsubscribes users that have made no request for a while.
	watchIdle = 30 * time.Minute
)

type Server struct {
	http.Server
	deps   Deps
	logger *log.Logger

	rateLimiter  *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	cacheManager *cache.Manager

	watchMu  sync.Mutex
	watching *cache.LRUCache[string, func()]

	started      time.Time
	shutdownOnce sync.Once
}

func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.UserHeader == "" {
		deps.UserHeader = "X-User-ID"
	}
	if deps.MaxWatchedUsers <= 0 {
		deps.MaxWatchedUsers = DefaultMaxWatchedUsers
	}

	s := &Server{
		deps:         deps,
		logger:       deps.Logger.WithComponent(log.ComponentHTTP),
		rateLimiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:     security.NewDetector(security.DefaultDetectorConfig()),
		tracer:       trace.NewMiddleware(),
		cacheManager: cache.NewManager(deps.Logger),
		watching:     cache.NewLRUCache[string, func()](deps.MaxWatchedUsers, watchIdle),
		started:      time.Now(),
	}
	s.watching.OnEvict(func(userID string, cancel func()) {
		cancel()
		if deps.Watch != nil {
			deps.Watch.Forget(userID)
		}
	})
	s.cacheManager.Register(s.watching)
	if deps.Views != nil {
		s.cacheManager.Register(deps.Views)
	}
	s.cacheManager.StartCleanup(5 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.requireUser(h))
	}
	api("GET /api/summary", s.handleSummary)
	api("GET /api/categories", s.handleListCategories)
	api("POST /api/categories", s.handleCreateCategory)
	api("POST /api/categories/defaults", s.handleSeedCategories)
	api("PUT /api/categories/{id}/budget", s.handleSetBudget)
	api("POST /api/transactions", s.handleCreateTransaction)
	api("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	api("POST /api/receivables/{id}/settle", s.handleSettleReceivable)
	api("GET /api/debts", s.handleListDebts)
	api("POST /api/debts", s.handleCreateDebt)
	api("DELETE /api/debts/{id}", s.handleDeleteDebt)
	api("GET /api/card", s.handleCardSummary)
	api("PUT /api/card", s.handleCardSetup)
	api("POST /api/card/buckets", s.handleAddBucket)
	api("POST /api/card/charges", s.handlePostCharge)
	api("GET /api/maintenance/dedupe-categories", s.handlePreviewRepair)
	api("POST /api/maintenance/dedupe-categories", s.handleRepair)

	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, isWrite, func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
	})
	headers := security.NewHeadersMiddleware(security.APIHeadersConfig())

	var h http.Handler = mux
	h = limited(h)
	h = s.detector.Middleware(h)
	h = headers.Middleware(h)
	h = log.AccessLog(h)
	h = log.RequestIDMiddleware(trace.RequestID)(h)
	h = log.Middleware(s.logger)(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops the background cleanups and drains the HTTP server.
// Repeated calls are no-ops.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		s.unwatchAll()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func isWrite(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// watchUser subscribes the view service to userID's snapshots the first
// time the user shows up, so cached summaries follow every write.
func (s *Server) watchUser(userID string) {
	if s.deps.Subscriber == nil || s.deps.Watch == nil {
		return
	}
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if cancel, ok := s.watching.Get(userID); ok {
		s.watching.Set(userID, cancel) // extend the idle deadline
		return
	}
	s.watching.Set(userID, s.deps.Watch.Watch(s.deps.Subscriber, userID))
}

func (s *Server) unwatchAll() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.watching.RemoveFunc(func(string) bool { return true })
}
