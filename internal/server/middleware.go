package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	logx "paycycle/pkg/logx"
)

type ctxKey int

const ctxOwnerID ctxKey = iota

// ownerID returns the authenticated owner bound by requireJWT.
func ownerID(r *http.Request) string {
	id, _ := r.Context().Value(ctxOwnerID).(string)
	return id
}

// requireJWT authenticates the user surface: HS256 bearer tokens, owner id
// from the sub claim. Malformed, expired or alg-mismatched tokens get 401.
func (s *Service) requireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeErrorBody(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", "")
			return
		}
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.JWTSecret), nil
		})
		if err != nil {
			s.log.Debug("token rejected", logx.Err(err))
			writeErrorBody(w, http.StatusUnauthorized, "unauthorized", "invalid token", "")
			return
		}
		owner := strings.TrimSpace(claims.Subject)
		if owner == "" {
			writeErrorBody(w, http.StatusUnauthorized, "unauthorized", "token has no subject", "")
			return
		}
		ctx := context.WithValue(r.Context(), ctxOwnerID, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireDispatchSecret guards the machine surface. No configured secret
// means the route is switched off and answers 503.
func (s *Service) requireDispatchSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := s.cfg.DispatchSecret
		if secret == "" {
			writeErrorBody(w, http.StatusServiceUnavailable, "unavailable", "dispatch endpoint is not configured", "")
			return
		}
		got := r.Header.Get("X-Dispatch-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			writeErrorBody(w, http.StatusUnauthorized, "unauthorized", "invalid dispatch secret", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// logRequests emits one debug line per request.
func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		s.log.Debug("request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", sw.status),
			logx.Duration("took", time.Since(start)),
		)
	})
}
