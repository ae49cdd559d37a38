package handlers

import (
	"net/http"
	"strings"

	"github.com/pawmarket/petcare/libs/httpx"
	"github.com/pawmarket/petcare/services/booking-service/internal/booking"
	"github.com/pawmarket/petcare/services/booking-service/internal/model"
	"github.com/pawmarket/petcare/services/booking-service/internal/slots"
)

type availabilityRequest struct {
	Times []string `json:"times" validate:"required,min=1,max=1440,dive,hhmm"`
	Date  string   `json:"date" validate:"required,datetime=2006-01-02"`
}

type availabilityEntryResponse struct {
	ID         string   `json:"id"`
	ProviderID string   `json:"providerId"`
	Date       string   `json:"date"`
	Times      []string `json:"times"`
	CreatedAt  string   `json:"createdAt"`
}

type availableSlotsResponse struct {
	AvailableSlots []string `json:"availableSlots"`
}

type slotsQuery struct {
	Date  string `query:"date" validate:"required_without=Month,excluded_with=Month,omitempty,datetime=2006-01-02"`
	Month string `query:"month" validate:"required_without=Date,omitempty,datetime=2006-01"`
}

type daySummaryResponse struct {
	Date               string   `json:"date"`
	AllTimeSlots       []string `json:"allTimeSlots"`
	BookedTimeSlots    []string `json:"bookedTimeSlots"`
	AvailableTimeSlots []string `json:"availableTimeSlots"`
	IsAvailable        bool     `json:"isAvailable"`
}

type summaryStats struct {
	TotalDates            int `json:"totalDates"`
	DatesWithAvailability int `json:"datesWithAvailability"`
}

type summaryResponse struct {
	ProviderID   string               `json:"providerId"`
	Availability []daySummaryResponse `json:"availability"`
	Stats        summaryStats         `json:"stats"`
}

// Malformed availability on the append route is answered with 403.
var appendOverrides = statusOverrides{booking.KindValidation: http.StatusForbidden}

// Non-owners replacing availability get 401.
var replaceOverrides = statusOverrides{booking.KindAuthorization: http.StatusUnauthorized}

func (h *BookingHandler) AppendAvailability(w http.ResponseWriter, r *http.Request) {
	entry, err := h.writeAvailability(r, false)
	if err != nil {
		writeError(w, r, h.logger, err, appendOverrides)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *BookingHandler) ReplaceAvailability(w http.ResponseWriter, r *http.Request) {
	entry, err := h.writeAvailability(r, true)
	if err != nil {
		writeError(w, r, h.logger, err, replaceOverrides)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *BookingHandler) writeAvailability(r *http.Request, replace bool) (model.AvailabilityEntry, error) {
	providerID := r.PathValue("providerId")
	caller := callerID(r)
	// Ownership is settled before the body is looked at.
	if caller == "" || caller != providerID {
		return model.AvailabilityEntry{}, &booking.Error{Kind: booking.KindAuthorization, Message: "only the provider can change its availability"}
	}

	var req availabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		return model.AvailabilityEntry{}, asValidation(err)
	}
	if err := h.validate.Struct(req); err != nil {
		return model.AvailabilityEntry{}, invalid(describe(err))
	}
	if replace {
		return h.publisher.ReplaceAvailability(r.Context(), caller, providerID, req.Date, req.Times)
	}
	return h.publisher.SetAvailability(r.Context(), caller, providerID, req.Date, req.Times)
}

// AvailableSlots serves ?date=YYYY-MM-DD as {availableSlots} and
// ?month=YYYY-MM as a date-keyed map.
func (h *BookingHandler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("providerId")
	q := slotsQuery{
		Date:  strings.TrimSpace(r.URL.Query().Get("date")),
		Month: strings.TrimSpace(r.URL.Query().Get("month")),
	}
	if err := h.validate.Struct(q); err != nil {
		writeError(w, r, h.logger, invalid(describe(err)), nil)
		return
	}

	if q.Date != "" {
		free, err := h.resolver.AvailableSlotsForDate(r.Context(), providerID, q.Date)
		if err != nil {
			writeError(w, r, h.logger, err, nil)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, availableSlotsResponse{AvailableSlots: free})
		return
	}

	year, month, err := slots.ParseMonth(q.Month)
	if err != nil {
		writeError(w, r, h.logger, invalid(err.Error()), nil)
		return
	}
	byDate, err := h.resolver.AvailableSlotsForMonth(r.Context(), providerID, year, month)
	if err != nil {
		writeError(w, r, h.logger, err, nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, byDate)
}

func (h *BookingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.resolver.Summary(r.Context(), r.PathValue("providerId"))
	if err != nil {
		writeError(w, r, h.logger, err, nil)
		return
	}
	resp := summaryResponse{
		ProviderID:   sum.ProviderID,
		Availability: make([]daySummaryResponse, 0, len(sum.Days)),
		Stats: summaryStats{
			TotalDates:            sum.TotalDates,
			DatesWithAvailability: sum.DatesWithAvailability,
		},
	}
	for _, d := range sum.Days {
		resp.Availability = append(resp.Availability, daySummaryResponse{
			Date:               d.Date,
			AllTimeSlots:       d.AllTimeSlots,
			BookedTimeSlots:    d.BookedTimeSlots,
			AvailableTimeSlots: d.AvailableTimeSlots,
			IsAvailable:        d.IsAvailable,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func toEntryResponse(e model.AvailabilityEntry) availabilityEntryResponse {
	return availabilityEntryResponse{
		ID:         e.ID,
		ProviderID: e.ProviderID,
		Date:       slots.DateKey(e.Date),
		Times:      e.Times,
		CreatedAt:  e.CreatedAt.UTC().Format(timeLayout),
	}
}
