package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/yoga-booking/internal/domain/booking"
	"github.com/example/yoga-booking/internal/email"
)

// Sender delivers booking emails; email.Service satisfies it
type Sender interface {
	SendBookingReceived(to string, d email.BookingDetails) error
	SendBookingCancelled(to string, d email.BookingDetails) error
}

// Handler processes booking events for sending notifications
type Handler struct {
	sender Sender
}

// NewHandler creates a new notification handler
func NewHandler(sender Sender) *Handler {
	return &Handler{sender: sender}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event booking.Event
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	switch event.Type {
	case booking.EventBookingCreated:
		var e booking.BookingCreated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			log.Printf("[Notifier] Failed to unmarshal BookingCreated event: %v", err)
			return err
		}
		return h.notify(event.Type, e.Booking, h.sender.SendBookingReceived)

	case booking.EventBookingDeleted:
		var e booking.BookingDeleted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			log.Printf("[Notifier] Failed to unmarshal BookingDeleted event: %v", err)
			return err
		}
		return h.notify(event.Type, e.Booking, h.sender.SendBookingCancelled)
	}

	return nil
}

func (h *Handler) notify(eventType string, b booking.Booking, send func(string, email.BookingDetails) error) error {
	if b.Email == "" {
		log.Printf("[Notifier] %s for booking %s has no email, skipping", eventType, b.ID)
		return nil
	}

	log.Printf("[Notifier] Processing %s for booking %s", eventType, b.ID)

	details := email.BookingDetails{
		BookingID: b.ID,
		Type:      b.Type,
		Date:      b.Date,
		Time:      b.Time,
		Teacher:   b.Teacher,
	}
	if err := send(b.Email, details); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", b.Email, err)
		return err
	}

	log.Printf("[Notifier] %s email sent to %s for booking %s", eventType, b.Email, b.ID)
	return nil
}
