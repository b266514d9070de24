package booking

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventBookingCreated = "BookingCreated"
	EventBookingDeleted = "BookingDeleted"
)

// Event is the envelope published for every booking change
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	BookingID string          `json:"bookingId"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type BookingCreated struct {
	Booking Booking `json:"booking"`
}

type BookingDeleted struct {
	Booking   Booking   `json:"booking"`
	DeletedAt time.Time `json:"deletedAt"`
}

func newEvent(eventType, bookingID string, data any, now time.Time) (Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		BookingID: bookingID,
		Timestamp: now,
		Data:      payload,
	}, nil
}
