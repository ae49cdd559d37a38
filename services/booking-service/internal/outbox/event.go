package outbox

import (
	"encoding/json"
	"time"

	"github.com/pawmarket/petcare/services/booking-service/internal/model"
	"github.com/pawmarket/petcare/services/booking-service/internal/slots"
)

// Event is the envelope written to outbox_events. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	TypeReservationRequested     = "booking.reservation.requested.v1"
	TypeReservationStatusChanged = "booking.reservation.status_changed.v1"
	TypeAvailabilityPublished    = "booking.availability.published.v1"
)

type reservationPayload struct {
	ReservationID      string  `json:"reservation_id"`
	CustomerID         string  `json:"customer_id"`
	ProviderID         string  `json:"provider_id"`
	PetID              string  `json:"pet_id"`
	Date               string  `json:"date"`
	TimeSlot           string  `json:"time_slot"`
	Status             string  `json:"status"`
	PreviousStatus     string  `json:"previous_status,omitempty"`
	TotalPrice         float64 `json:"total_price"`
	Currency           string  `json:"currency"`
	CancellationReason string  `json:"cancellation_reason,omitempty"`
	OccurredAt         string  `json:"occurred_at"`
}

func ReservationRequested(r model.Reservation) Event {
	return reservationEvent(TypeReservationRequested, r, "")
}

func ReservationStatusChanged(r model.Reservation, previous model.Status) Event {
	return reservationEvent(TypeReservationStatusChanged, r, previous)
}

func reservationEvent(eventType string, r model.Reservation, previous model.Status) Event {
	payload, _ := json.Marshal(reservationPayload{
		ReservationID:      r.ID,
		CustomerID:         r.CustomerID,
		ProviderID:         r.ProviderID,
		PetID:              r.PetID,
		Date:               slots.DateKey(r.Date),
		TimeSlot:           r.TimeSlot,
		Status:             string(r.Status),
		PreviousStatus:     string(previous),
		TotalPrice:         r.TotalPrice,
		Currency:           r.Currency,
		CancellationReason: r.CancellationReason,
		OccurredAt:         r.UpdatedAt.UTC().Format(time.RFC3339),
	})
	return Event{
		AggregateType: "reservation",
		AggregateID:   r.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}

type availabilityPayload struct {
	EntryID    string   `json:"entry_id"`
	ProviderID string   `json:"provider_id"`
	Date       string   `json:"date"`
	Times      []string `json:"times"`
	Replaced   bool     `json:"replaced"`
	OccurredAt string   `json:"occurred_at"`
}

// AvailabilityPublished is keyed by provider so a consumer sees one
// provider's declarations in order.
func AvailabilityPublished(e model.AvailabilityEntry, replaced bool) Event {
	payload, _ := json.Marshal(availabilityPayload{
		EntryID:    e.ID,
		ProviderID: e.ProviderID,
		Date:       slots.DateKey(e.Date),
		Times:      e.Times,
		Replaced:   replaced,
		OccurredAt: e.CreatedAt.UTC().Format(time.RFC3339),
	})
	return Event{
		AggregateType: "provider_availability",
		AggregateID:   e.ProviderID,
		EventType:     TypeAvailabilityPublished,
		Payload:       payload,
	}
}
