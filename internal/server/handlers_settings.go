package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"paycycle/internal/domain"
)

type settingsPutRequest struct {
	Enabled  bool   `json:"enabled"`
	TimeZone string `json:"time_zone"`
}

type subscriptionRegisterRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh_key"`
	AuthKey   string `json:"auth_key"`
}

func (s *Service) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	byOwner, err := s.deps.Store.Settings().ByOwners(r.Context(), []string{owner})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, ok := byOwner[owner]
	if !ok {
		// No row yet reads as the defaults.
		st = &domain.NotificationSettings{OwnerID: owner, Enabled: false, TimeZone: "UTC"}
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": st})
}

func (s *Service) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	var req settingsPutRequest
	if err := readJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			err = domain.Invalid("body", "request body is required")
		}
		s.writeError(w, r, err)
		return
	}
	tz := strings.TrimSpace(req.TimeZone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		s.writeError(w, r, domain.Invalidf("time_zone", "unknown IANA timezone %q", tz))
		return
	}
	st := &domain.NotificationSettings{
		OwnerID:   ownerID(r),
		Enabled:   req.Enabled,
		TimeZone:  tz,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.deps.Store.Settings().Upsert(r.Context(), st); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": st})
}

func (s *Service) handleSubscriptionRegister(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRegisterRequest
	if err := readJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			err = domain.Invalid("body", "request body is required")
		}
		s.writeError(w, r, err)
		return
	}
	if err := validateEndpoint(req.Endpoint); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.P256dhKey) == "" {
		s.writeError(w, r, domain.Invalid("p256dh_key", "required"))
		return
	}
	if strings.TrimSpace(req.AuthKey) == "" {
		s.writeError(w, r, domain.Invalid("auth_key", "required"))
		return
	}

	owner := ownerID(r)
	sub := &domain.PushSubscription{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Endpoint:  req.Endpoint,
		P256dhKey: req.P256dhKey,
		AuthKey:   req.AuthKey,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.deps.Store.Subscriptions().Insert(r.Context(), sub); err != nil {
		s.writeError(w, r, err)
		return
	}
	// Insert upserts on (owner, endpoint) and a revived row keeps its
	// original id, so read the authoritative record back.
	active, err := s.deps.Store.Subscriptions().ActiveByOwners(r.Context(), []string{owner})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, cur := range active {
		if cur.Endpoint == req.Endpoint {
			sub = cur
			break
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"subscription": sub})
}

func (s *Service) handleSubscriptionDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Subscriptions().Deactivate(r.Context(), ownerID(r), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return domain.Invalid("endpoint", "must be an http(s) URL")
	}
	return nil
}
