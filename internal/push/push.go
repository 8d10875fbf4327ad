// Package push delivers reminder notifications through an HTTP push relay.
// The relay speaks web push to the browsers; this side posts one JSON
// document per device carrying the stored subscription keys and the rendered
// notification.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"paycycle/internal/domain"
	logx "paycycle/pkg/logx"
)

// ErrSubscriptionGone marks a subscription the relay reported dead (HTTP 404
// or 410). The dispatcher deactivates it; every other failure is treated as
// transient and leaves the subscription alone.
var ErrSubscriptionGone = errors.New("push: subscription gone")

// Payload is one rendered notification.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Link  string `json:"link,omitempty"`
}

// Sender delivers a payload to a single subscription.
type Sender interface {
	Send(ctx context.Context, sub *domain.PushSubscription, p Payload) error
}

// Config for the HTTP gateway.
type Config struct {
	// Endpoint receives POSTed notifications. May be empty until the relay
	// is configured; sends fail until then.
	Endpoint string
	// Token, when set, is sent as a bearer credential.
	Token string
	// Timeout bounds one send. Default 10s.
	Timeout time.Duration
	// TTL hints how long the relay should hold an undelivered notification.
	// Default 1h.
	TTL time.Duration
}

const (
	defaultSendTimeout = 10 * time.Second
	defaultTTL         = time.Hour
)

// Gateway is the HTTP Sender. Apply may swap the relay settings between
// sends.
type Gateway struct {
	mu     sync.Mutex
	cfg    Config
	client *http.Client
	log    logx.Logger
}

func NewGateway(cfg Config, log logx.Logger) (*Gateway, error) {
	if err := checkConfig(&cfg); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}, nil
}

// Apply swaps the relay settings. In-flight sends finish against the old
// client.
func (g *Gateway) Apply(cfg Config) error {
	if err := checkConfig(&cfg); err != nil {
		return err
	}
	g.mu.Lock()
	if cfg.Timeout != g.cfg.Timeout {
		g.client = &http.Client{Timeout: cfg.Timeout}
	}
	g.cfg = cfg
	g.mu.Unlock()
	return nil
}

func checkConfig(cfg *Config) error {
	if e := cfg.Endpoint; e != "" {
		u, err := url.Parse(e)
		if err != nil {
			return fmt.Errorf("push: endpoint: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("push: endpoint %q is not an http(s) URL", e)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSendTimeout
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return nil
}

type gatewayRequest struct {
	Subscription gatewaySubscription `json:"subscription"`
	TTL          int                 `json:"ttl"`
	Notification Payload             `json:"notification"`
}

type gatewaySubscription struct {
	Endpoint string      `json:"endpoint"`
	Keys     gatewayKeys `json:"keys"`
}

type gatewayKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

func (g *Gateway) Send(ctx context.Context, sub *domain.PushSubscription, p Payload) error {
	g.mu.Lock()
	cfg, client := g.cfg, g.client
	g.mu.Unlock()
	if cfg.Endpoint == "" {
		return errors.New("push: relay endpoint not configured")
	}

	body, err := json.Marshal(gatewayRequest{
		Subscription: gatewaySubscription{
			Endpoint: sub.Endpoint,
			Keys:     gatewayKeys{P256dh: sub.P256dhKey, Auth: sub.AuthKey},
		},
		TTL:          int(cfg.TTL.Seconds()),
		Notification: p,
	})
	if err != nil {
		return fmt.Errorf("push: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w (status %d)", ErrSubscriptionGone, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push: relay status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
}
