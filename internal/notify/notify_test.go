package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"quantdinger/internal/domain"
)

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got domain.Notification
	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		received <- struct{}{}
	}))
	defer srv.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := NewWebhookNotifier(srv.URL, log)
	n.Notify(context.Background(), domain.Notification{
		OrderID:    "ord-1",
		StrategyID: "momentum-1",
		Symbol:     "AAPL",
		Status:     domain.StatusFilled,
	})

	<-received
	if got.OrderID != "ord-1" || got.Status != domain.StatusFilled {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookNotifierRetriesTransientFailure(t *testing.T) {
	var calls int
	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		received <- struct{}{}
	}))
	defer srv.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := NewWebhookNotifier(srv.URL, log)
	n.Notify(context.Background(), domain.Notification{OrderID: "ord-1"})

	<-received
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestWebhookNotifierDisabledWhenNoURL(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := NewWebhookNotifier("", log)
	// Must be a no-op, not a panic or a dial attempt.
	n.Notify(context.Background(), domain.Notification{OrderID: "ord-1"})
}
