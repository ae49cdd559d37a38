package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/pawmarket/petcare/libs/httpx"
	"github.com/pawmarket/petcare/services/booking-service/internal/booking"
	"github.com/pawmarket/petcare/services/booking-service/internal/model"
	"github.com/pawmarket/petcare/services/booking-service/internal/slots"
)

const timeLayout = time.RFC3339

type bookRequest struct {
	PetID     string `json:"petId" validate:"required,uuid"`
	ServiceID string `json:"serviceId" validate:"omitempty,uuid"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot  string `json:"timeSlot" validate:"required,hhmm"`
	Notes     string `json:"notes" validate:"max=2000"`
}

type reservationResponse struct {
	ID                 string  `json:"id"`
	CustomerID         string  `json:"customerId"`
	ProviderID         string  `json:"providerId"`
	PetID              string  `json:"petId"`
	ServiceID          string  `json:"serviceId,omitempty"`
	Date               string  `json:"date"`
	TimeSlot           string  `json:"timeSlot"`
	Status             string  `json:"status"`
	TotalPrice         float64 `json:"totalPrice"`
	Currency           string  `json:"currency"`
	Notes              string  `json:"notes,omitempty"`
	CancellationReason string  `json:"cancellationReason,omitempty"`
	CreatedAt          string  `json:"createdAt"`
	UpdatedAt          string  `json:"updatedAt"`
}

type listResponse struct {
	Reservations []reservationResponse `json:"reservations"`
}

type listQuery struct {
	As     string `query:"as" validate:"omitempty,oneof=customer provider"`
	Status string `query:"status"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed completed cancelled no-show"`
	Reason string `json:"reason" validate:"max=2000"`
}

// Book reserves a slot for the calling customer.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, asValidation(err), nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, h.logger, invalid(describe(err)), nil)
		return
	}

	res, err := h.coordinator.Book(r.Context(), booking.BookRequest{
		CustomerID: callerID(r),
		ProviderID: r.PathValue("providerId"),
		PetID:      req.PetID,
		ServiceID:  req.ServiceID,
		Date:       req.Date,
		TimeSlot:   req.TimeSlot,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(w, r, h.logger, err, nil)
		return
	}
	h.logger.Info("reservation created",
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"reservation_id", res.ID,
		"provider_id", res.ProviderID,
		"date", slots.DateKey(res.Date),
		"time_slot", res.TimeSlot,
	)
	httpx.WriteJSON(w, http.StatusCreated, toReservationResponse(res))
}

func (h *BookingHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	q := listQuery{
		As:     strings.TrimSpace(r.URL.Query().Get("as")),
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
	}
	if err := h.validate.Struct(q); err != nil {
		writeError(w, r, h.logger, invalid(describe(err)), nil)
		return
	}
	var statuses []model.Status
	if q.Status != "" {
		for _, raw := range strings.Split(q.Status, ",") {
			st, ok := model.ParseStatus(strings.TrimSpace(raw))
			if !ok {
				writeError(w, r, h.logger, invalid("unknown status "+raw), nil)
				return
			}
			statuses = append(statuses, st)
		}
	}

	list, err := h.coordinator.List(r.Context(), callerID(r), booking.Perspective(q.As), statuses)
	if err != nil {
		writeError(w, r, h.logger, err, nil)
		return
	}
	resp := listResponse{Reservations: make([]reservationResponse, 0, len(list))}
	for _, res := range list {
		resp.Reservations = append(resp.Reservations, toReservationResponse(res))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.coordinator.Get(r.Context(), r.PathValue("reservationId"), callerID(r))
	if err != nil {
		writeError(w, r, h.logger, err, nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toReservationResponse(res))
}

// CancelReservation takes an optional {reason} body.
func (h *BookingHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, h.logger, asValidation(err), nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, h.logger, invalid(describe(err)), nil)
		return
	}
	res, err := h.coordinator.Cancel(r.Context(), r.PathValue("reservationId"), callerID(r), req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err, nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *BookingHandler) UpdateReservationStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, asValidation(err), nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, h.logger, invalid(describe(err)), nil)
		return
	}
	res, err := h.coordinator.Transition(r.Context(), r.PathValue("reservationId"), callerID(r), model.Status(req.Status), req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err, nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toReservationResponse(res))
}

// asValidation keeps body-size errors intact so they still map to 413.
func asValidation(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return invalid(err.Error())
}

func toReservationResponse(res model.Reservation) reservationResponse {
	return reservationResponse{
		ID:                 res.ID,
		CustomerID:         res.CustomerID,
		ProviderID:         res.ProviderID,
		PetID:              res.PetID,
		ServiceID:          res.ServiceID,
		Date:               slots.DateKey(res.Date),
		TimeSlot:           res.TimeSlot,
		Status:             string(res.Status),
		TotalPrice:         res.TotalPrice,
		Currency:           res.Currency,
		Notes:              res.Notes,
		CancellationReason: res.CancellationReason,
		CreatedAt:          res.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:          res.UpdatedAt.UTC().Format(timeLayout),
	}
}
