package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"paycycle/internal/domain"
	logx "paycycle/pkg/logx"
)

const maxBodyBytes = 1 << 20

// errEmptyBody marks a request without a body; action handlers whose inputs
// are all optional treat it as the zero input.
var errEmptyBody = errors.New("empty body")

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message, field string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message, Field: field}})
}

// writeError maps the four domain error classes onto the wire; anything
// else is a 500 with the detail kept server-side.
func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *domain.ValidationError
		nf *domain.NotFoundError
		ce *domain.ConflictError
		te *domain.TransientStoreError
	)
	switch {
	case errors.As(err, &ve):
		writeErrorBody(w, http.StatusBadRequest, "validation", ve.Reason, ve.Field)
	case errors.As(err, &nf):
		writeErrorBody(w, http.StatusNotFound, "not_found", nf.Error(), "")
	case errors.As(err, &ce):
		writeErrorBody(w, http.StatusConflict, "conflict", ce.Error(), "")
	case errors.As(err, &te):
		s.log.Warn("store unavailable", logx.String("path", r.URL.Path), logx.Err(err))
		writeErrorBody(w, http.StatusServiceUnavailable, "unavailable", "storage temporarily unavailable", "")
	default:
		s.log.Error("handler failed", logx.String("path", r.URL.Path), logx.Err(err))
		writeErrorBody(w, http.StatusInternalServerError, "internal", "internal error", "")
	}
}

// readJSON decodes one strict JSON document: unknown fields and trailing
// data are rejected. An absent body returns errEmptyBody.
func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return domain.Invalid("body", "malformed request body: "+err.Error())
	}
	if dec.More() {
		return domain.Invalid("body", "unexpected data after JSON document")
	}
	return nil
}
