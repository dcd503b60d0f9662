package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"sales-realtime-api/internal/service"
	"sales-realtime-api/pkg/apierror"
	"sales-realtime-api/pkg/response"

	"github.com/rs/zerolog"
)

// writeError maps service errors to API errors.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.Error(w, apierror.ValidationError(err.Error()))
	case errors.Is(err, service.ErrInsufficientStock):
		response.Error(w, apierror.InsufficientStock(err.Error()))
	case errors.Is(err, service.ErrConcurrencyConflict):
		response.Error(w, apierror.Conflict(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		response.Error(w, apierror.NotFound(err.Error()))
	case errors.Is(err, service.ErrInvalidTransition):
		response.Error(w, apierror.InvalidTransition(err.Error()))
	case errors.Is(err, service.ErrPersistence):
		log.Error().Err(err).Msg("store failure")
		response.Error(w, apierror.ServiceUnavailable(""))
	default:
		log.Error().Err(err).Msg("unhandled error")
		response.Error(w, err)
	}
}

// decode reads a JSON body into v.
func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apierror.BadRequest("invalid JSON body")
	}
	return nil
}

// queryInt returns the integer query parameter name or def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierror.ValidationError("invalid query parameter", apierror.FieldError{Field: name, Message: "must be an integer"})
	}
	return n, nil
}
