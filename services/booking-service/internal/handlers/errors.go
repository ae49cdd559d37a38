package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pawmarket/petcare/libs/httpx"
	"github.com/pawmarket/petcare/services/booking-service/internal/booking"
)

type conflictResponse struct {
	Error      string `json:"error"`
	ConflictID string `json:"conflictId,omitempty"`
}

// statusOverrides lets one route answer a kind with a different code than
// the default, e.g. 403 for validation failures on the append endpoint.
type statusOverrides map[booking.Kind]int

func statusFor(kind booking.Kind, overrides statusOverrides) int {
	if code, ok := overrides[kind]; ok {
		return code
	}
	switch kind {
	case booking.KindValidation:
		return http.StatusBadRequest
	case booking.KindAuthorization:
		return http.StatusForbidden
	case booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindSlotNotAvailable:
		return http.StatusUnprocessableEntity
	case booking.KindSlotAlreadyBooked, booking.KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, overrides statusOverrides) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var be *booking.Error
	if !errors.As(err, &be) {
		be = &booking.Error{Kind: booking.KindStorage, Err: err}
	}
	status := statusFor(be.Kind, overrides)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, status, "internal error")
		return
	}
	if be.Kind == booking.KindSlotAlreadyBooked {
		httpx.WriteJSON(w, status, conflictResponse{Error: "Time slot already booked", ConflictID: be.ConflictID})
		return
	}
	httpx.WriteError(w, status, be.Message)
}

func invalid(msg string) error {
	return &booking.Error{Kind: booking.KindValidation, Message: msg}
}
