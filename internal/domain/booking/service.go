package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/yoga-booking/internal/domain/catalog"
	"github.com/example/yoga-booking/internal/infrastructure/store"
	"github.com/example/yoga-booking/internal/metrics"
)

// Publisher delivers booking events; kafka.Producer satisfies it
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Service struct {
	store     store.DocumentStore
	publisher Publisher
	now       func() time.Time
}

// NewService creates a booking service. A nil publisher disables events.
func NewService(ds store.DocumentStore, publisher Publisher) *Service {
	return &Service{
		store:     ds,
		publisher: publisher,
		now:       time.Now,
	}
}

// Create persists a pending booking. The store admits it only while the
// instance has a free seat and the email holds no booking for it.
func (s *Service) Create(ctx context.Context, instance catalog.Instance, course catalog.Course, email string) (string, error) {
	capacity, err := catalog.ParseCapacity(course.Capacity)
	if err != nil {
		return "", err
	}

	b := New(instance, course, email, s.now())
	id, err := s.store.CreateAdmitted(ctx, Collection, b, store.Admission{
		CountKey:  CountKey(instance.ID),
		Limit:     capacity,
		UniqueKey: UniqueKey(instance.ID, email),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create booking: %w", err)
	}
	b.ID = id

	s.publish(ctx, EventBookingCreated, b, BookingCreated{Booking: b})
	return id, nil
}

// Delete removes a booking by id
func (s *Service) Delete(ctx context.Context, bookingID string) error {
	var existing *Booking
	if s.publisher != nil {
		b, err := s.Get(ctx, bookingID)
		switch {
		case err == nil:
			existing = &b
		case errors.Is(err, store.ErrNotFound):
		default:
			log.Printf("[Booking] Failed to read booking %s before delete: %v", bookingID, err)
		}
	}

	if err := s.store.Delete(ctx, Collection, bookingID); err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}

	if existing != nil {
		s.publish(ctx, EventBookingDeleted, *existing, BookingDeleted{Booking: *existing, DeletedAt: s.now()})
	}
	return nil
}

func (s *Service) Get(ctx context.Context, bookingID string) (Booking, error) {
	doc, err := s.store.GetOne(ctx, Collection, bookingID)
	if err != nil {
		return Booking{}, fmt.Errorf("failed to get booking: %w", err)
	}

	var b Booking
	if err := store.Decode(doc, &b); err != nil {
		return Booking{}, err
	}
	return b, nil
}

// List returns every booking in creation order
func (s *Service) List(ctx context.Context) ([]Booking, error) {
	docs, err := s.store.GetAll(ctx, Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings := make([]Booking, 0, len(docs))
	for _, doc := range docs {
		var b Booking
		if err := store.Decode(doc, &b); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

// publish sends an event keyed by instance id. The write already happened,
// so failures are only logged.
func (s *Service) publish(ctx context.Context, eventType string, b Booking, data any) {
	if s.publisher == nil {
		return
	}

	event, err := newEvent(eventType, b.ID, data, s.now())
	if err != nil {
		log.Printf("[Booking] %v", err)
		return
	}
	if err := s.publisher.Publish(ctx, b.InstanceID, event); err != nil {
		log.Printf("[Booking] Failed to publish %s for booking %s: %v", eventType, b.ID, err)
		return
	}
	metrics.EventsPublished.WithLabelValues(eventType).Inc()
}
