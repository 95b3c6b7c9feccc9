package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterWindow(t *testing.T) {
	l := NewLimiter(Config{Limit: 2})
	defer l.Stop()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("other keys are independent")
	}

	now = now.Add(time.Minute)
	if !l.Allow("a") {
		t.Fatal("window should reset after a minute")
	}
	if s := l.Stats(); s.Rejected != 1 || s.Keys != 2 {
		t.Fatalf("unexpected stats: %+v", s)
	}

	now = now.Add(11 * time.Minute)
	l.sweep()
	if s := l.Stats(); s.Keys != 0 {
		t.Fatalf("stale keys not removed: %d", s.Keys)
	}
}

func TestWindowIsFixed(t *testing.T) {
	l := NewLimiter(Config{Limit: 1, Window: 10 * time.Second})
	defer l.Stop()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a")
	for i := 0; i < 3; i++ {
		now = now.Add(3 * time.Second)
		if l.Allow("a") {
			t.Fatalf("request %d inside the window passed", i)
		}
	}
	// Rejected requests do not extend the window.
	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatal("window should have closed")
	}
}

func TestMiddlewareOnlyLimitsMatchingRequests(t *testing.T) {
	l := NewLimiter(Config{Limit: 1})
	defer l.Stop()

	onlyPost := func(r *http.Request) bool { return r.Method == http.MethodPost }
	key := func(r *http.Request) string { return "k" }
	h := l.Middleware(key, onlyPost, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	var codes []int
	var retry string
	for _, method := range []string{http.MethodPost, http.MethodPost, http.MethodGet} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/", nil))
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests {
			retry = rr.Header().Get("Retry-After")
		}
	}
	want := []int{200, 429, 200}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
	if retry == "" || retry == "0" {
		t.Fatalf("Retry-After = %q", retry)
	}
}

func TestCustomRejection(t *testing.T) {
	l := NewLimiter(Config{Limit: 1})
	defer l.Stop()

	h := l.Middleware(func(*http.Request) string { return "k" }, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, want := range []int{http.StatusOK, http.StatusTeapot} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != want {
			t.Fatalf("code = %d, want %d", rr.Code, want)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	l := NewLimiter(DefaultConfig())
	l.Stop()
	l.Stop()
}
