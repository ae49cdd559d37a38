package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pawmarket/petcare/libs/httpx"
	"github.com/pawmarket/petcare/services/booking-service/internal/booking"
)

type BookingHandler struct {
	coordinator *booking.Coordinator
	resolver    *booking.Resolver
	publisher   *booking.Publisher
	logger      *slog.Logger
	validate    *validator.Validate
}

func NewBookingHandler(coordinator *booking.Coordinator, resolver *booking.Resolver, publisher *booking.Publisher, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		coordinator: coordinator,
		resolver:    resolver,
		publisher:   publisher,
		logger:      logger,
		validate:    newValidator(),
	}
}

// Register mounts the booking routes under /api/v1.
func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/services/{providerId}", h.AppendAvailability)
	mux.HandleFunc("PUT /api/v1/services/{providerId}/availability", h.ReplaceAvailability)
	mux.HandleFunc("GET /api/v1/services/{providerId}/availability", h.AvailableSlots)
	mux.HandleFunc("GET /api/v1/providers/{providerId}/availability-summary", h.Summary)
	mux.HandleFunc("POST /api/v1/services/availability/{providerId}", h.Book)
	mux.HandleFunc("GET /api/v1/reservations", h.ListReservations)
	mux.HandleFunc("GET /api/v1/reservations/{reservationId}", h.GetReservation)
	mux.HandleFunc("POST /api/v1/reservations/{reservationId}/cancel", h.CancelReservation)
	mux.HandleFunc("POST /api/v1/reservations/{reservationId}/status", h.UpdateReservationStatus)
}

func callerID(r *http.Request) string {
	c, _ := httpx.CallerFromRequest(r)
	return c.UserID
}
