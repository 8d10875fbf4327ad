package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"paycycle/internal/domain"
	logx "paycycle/pkg/logx"
)

func testSub() *domain.PushSubscription {
	return &domain.PushSubscription{
		ID:        "sub-1",
		OwnerID:   "owner-1",
		Endpoint:  "https://push.example.net/ep/abc",
		P256dhKey: "p256dh-key",
		AuthKey:   "auth-key",
		Active:    true,
	}
}

func TestGatewaySend(t *testing.T) {
	t.Parallel()
	var got gatewayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer relay-token" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	g, err := NewGateway(Config{Endpoint: srv.URL, Token: "relay-token", TTL: 2 * time.Hour}, logx.Nop())
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	payload := Payload{Title: "Rent due", Body: "Landlord, 1200.00 on 2024-06-15", Link: "https://app.example.net/occurrences/occ-1"}
	if err := g.Send(context.Background(), testSub(), payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got.Subscription.Endpoint != "https://push.example.net/ep/abc" {
		t.Fatalf("endpoint = %q", got.Subscription.Endpoint)
	}
	if got.Subscription.Keys.P256dh != "p256dh-key" || got.Subscription.Keys.Auth != "auth-key" {
		t.Fatalf("keys = %+v", got.Subscription.Keys)
	}
	if got.TTL != 7200 {
		t.Fatalf("ttl = %d, want 7200", got.TTL)
	}
	if got.Notification != payload {
		t.Fatalf("notification = %+v, want %+v", got.Notification, payload)
	}
}

func TestGatewayClassifiesGone(t *testing.T) {
	t.Parallel()
	for _, code := range []int{http.StatusNotFound, http.StatusGone} {
		code := code
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		defer srv.Close()

		g, err := NewGateway(Config{Endpoint: srv.URL}, logx.Nop())
		if err != nil {
			t.Fatalf("NewGateway: %v", err)
		}
		err = g.Send(context.Background(), testSub(), Payload{Title: "t"})
		if !errors.Is(err, ErrSubscriptionGone) {
			t.Fatalf("status %d err = %v, want ErrSubscriptionGone", code, err)
		}
	}
}

func TestGatewayOtherFailuresAreNotGone(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g, err := NewGateway(Config{Endpoint: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	err = g.Send(context.Background(), testSub(), Payload{Title: "t"})
	if err == nil {
		t.Fatal("Send succeeded, want error")
	}
	if errors.Is(err, ErrSubscriptionGone) {
		t.Fatalf("5xx classified as gone: %v", err)
	}
}

func TestNewGatewayRejectsBadEndpoint(t *testing.T) {
	t.Parallel()
	if _, err := NewGateway(Config{Endpoint: "ftp://relay.example.net"}, logx.Nop()); err == nil {
		t.Fatal("NewGateway accepted a non-http endpoint")
	}
}

func TestSendWithoutEndpointFails(t *testing.T) {
	t.Parallel()
	g, err := NewGateway(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	if err := g.Send(context.Background(), testSub(), Payload{Title: "t"}); err == nil {
		t.Fatal("Send without a configured endpoint succeeded")
	}
}

func TestApplySwitchesRelay(t *testing.T) {
	t.Parallel()
	var oldHits, newHits int
	oldSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		oldHits++
		w.WriteHeader(http.StatusOK)
	}))
	defer oldSrv.Close()
	newSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		newHits++
		w.WriteHeader(http.StatusOK)
	}))
	defer newSrv.Close()

	g, err := NewGateway(Config{Endpoint: oldSrv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	if err := g.Send(context.Background(), testSub(), Payload{Title: "a"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := g.Apply(Config{Endpoint: newSrv.URL}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := g.Send(context.Background(), testSub(), Payload{Title: "b"}); err != nil {
		t.Fatalf("Send after Apply: %v", err)
	}
	if oldHits != 1 || newHits != 1 {
		t.Fatalf("hits = %d old / %d new, want 1 / 1", oldHits, newHits)
	}
}
