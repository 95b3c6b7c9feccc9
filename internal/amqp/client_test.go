package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

func TestExponentialBackoff(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, maxBackoff}
	for attempt, w := range want {
		if got := exponentialBackoff(attempt); got != w {
			t.Errorf("exponentialBackoff(%d) = %v, want %v", attempt, got, w)
		}
	}
	if got := exponentialBackoff(40); got != maxBackoff {
		t.Errorf("large attempts must stay capped, got %v", got)
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{amqp091.ErrClosed, true},
		{fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("use of closed network connection"), true},
		{errors.New("invalid message"), false},
	}
	for _, tt := range tests {
		if got := isConnectionError(tt.err); got != tt.want {
			t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCircuitBreakerTransitions(t *testing.T) {
	c := &Client{}
	if c.isCircuitOpen() {
		t.Fatal("a new client starts closed")
	}

	for i := 0; i < maxFailures-1; i++ {
		c.recordFailure()
	}
	if c.isCircuitOpen() {
		t.Fatal("circuit opened before reaching the failure threshold")
	}
	c.recordFailure()
	if !c.isCircuitOpen() {
		t.Fatal("circuit should open at the failure threshold")
	}

	c.lastFailure = time.Now().Add(-openTimeout - time.Second)
	if c.isCircuitOpen() || atomic.LoadInt32(&c.state) != StateHalfOpen {
		t.Fatal("circuit should go half-open once the timeout passed")
	}

	// One failed trial publish while half-open reopens immediately.
	c.recordFailure()
	if atomic.LoadInt32(&c.state) != StateOpen {
		t.Fatal("a half-open failure should reopen the circuit")
	}

	c.recordSuccess()
	if c.isCircuitOpen() || atomic.LoadInt64(&c.failureCount) != 0 {
		t.Fatal("success should close the circuit and reset the count")
	}
}

func TestPublishShortCircuits(t *testing.T) {
	c := &Client{}
	atomic.StoreInt32(&c.state, StateOpen)
	c.lastFailure = time.Now()

	if err := c.PublishChange(context.Background(), "u1", []string{"transactions"}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	c.recordSuccess()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.PublishRepair(ctx, "u1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewMessages(t *testing.T) {
	change := NewChangeMessage("u1", []string{"categories", "transactions"})
	if change.Type != TypeChange || change.UserID != "u1" || len(change.Collections) != 2 {
		t.Errorf("unexpected change message: %+v", change)
	}
	if time.Since(change.Timestamp) > time.Second {
		t.Error("timestamp should be recent")
	}

	repair := NewRepairMessage("u2")
	if repair.Type != TypeRepair || repair.UserID != "u2" || repair.Collections != nil {
		t.Errorf("unexpected repair message: %+v", repair)
	}
}

func TestMessageJSON(t *testing.T) {
	timestamp := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := &Message{Type: TypeChange, UserID: "u1", Collections: []string{"debts"}, Timestamp: timestamp}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	parsed, err := MessageFromJSON(data)
	if err != nil {
		t.Fatalf("MessageFromJSON() error = %v", err)
	}
	if parsed.UserID != "u1" || parsed.Collections[0] != "debts" || !parsed.Timestamp.Equal(timestamp) {
		t.Errorf("unexpected round trip: %+v", parsed)
	}
}

func TestMessageFromJSONRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"type": 1}`},
		{"unknown type", `{"type":"sync","user_id":"u1"}`},
		{"missing user", `{"type":"repair"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MessageFromJSON([]byte(tt.body)); err == nil {
				t.Error("expected an error")
			}
		})
	}
	if _, err := MessageFromJSON([]byte(`{"type":"sync","user_id":"u1"}`)); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("expected ErrUnknownMessage, got %v", err)
	}
}
