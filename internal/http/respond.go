package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/commerce-core/internal/auth"
	"github.com/fjod/commerce-core/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleError maps an error from the service layer to a status code and
// body. Internal errors are logged and never echoed to the caller.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrUnauthenticated) {
		respondError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return
	}

	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindInternal {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, domain.ErrInternal.Code, domain.ErrInternal.Message)
		return
	}

	status := statusFor(de)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("upstream failure")
	}

	respondJSON(w, status, ErrorResponse{
		Error:   de.Message,
		Code:    de.Code,
		Details: de.Details,
	})
}

func statusFor(de *domain.Error) int {
	switch de.Kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		if de.Code == domain.ErrInvalidStep.Code || de.Code == domain.ErrMissingMetadata.Code {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
