package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/yoga-booking/internal/domain/booking"
	"github.com/example/yoga-booking/internal/domain/catalog"
	"github.com/example/yoga-booking/internal/infrastructure/store"
	"github.com/example/yoga-booking/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// loadConcurrency bounds the course/instance reads issued during Load
const loadConcurrency = 8

// CartItem is a booking joined with the course and instance it reserves
type CartItem struct {
	BookingID string           `json:"bookingId"`
	Instance  catalog.Instance `json:"instance"`
	Course    catalog.Course   `json:"course"`
	Email     string           `json:"email"`
}

// Bookings persists and removes bookings; booking.Service satisfies it
type Bookings interface {
	Create(ctx context.Context, instance catalog.Instance, course catalog.Course, email string) (string, error)
	Delete(ctx context.Context, bookingID string) error
	List(ctx context.Context) ([]booking.Booking, error)
}

// Catalog resolves the records a booking points at; catalog.Service satisfies it
type Catalog interface {
	GetCourse(ctx context.Context, courseID string) (catalog.Course, error)
	GetInstance(ctx context.Context, courseID, instanceID string) (catalog.Instance, error)
}

// Aggregate holds every booking in memory and applies the duplicate and
// capacity rules before anything is written. The mutex guards items only and
// is never held across a store call.
type Aggregate struct {
	bookings Bookings
	catalog  Catalog

	mu    sync.Mutex
	items []CartItem
	loads map[*loadDelta]struct{}

	inFlight atomic.Int32
}

func NewAggregate(bookings Bookings, cat Catalog) *Aggregate {
	return &Aggregate{
		bookings: bookings,
		catalog:  cat,
		items:    make([]CartItem, 0),
		loads:    make(map[*loadDelta]struct{}),
	}
}

// loadDelta collects the writes that land while a Load is reading the store
type loadDelta struct {
	added   []CartItem
	removed map[string]bool
}

// Load replaces the cart with every stored booking joined to its course and
// instance. Bookings added or removed through the cart while it runs are
// applied on top of the loaded state. A failure leaves only the bookings
// added during the load.
func (a *Aggregate) Load(ctx context.Context) error {
	defer a.begin()()
	start := time.Now()
	defer func() {
		metrics.CartLoadDuration.Observe(time.Since(start).Seconds())
	}()

	delta := &loadDelta{removed: make(map[string]bool)}
	a.mu.Lock()
	a.loads[delta] = struct{}{}
	a.mu.Unlock()

	items, err := a.resolveAll(ctx)
	if err != nil {
		a.finishLoad(delta, nil)
		log.Printf("[Cart] Failed to load bookings: %v", err)
		return err
	}

	n := a.finishLoad(delta, items)
	log.Printf("[Cart] Loaded %d bookings", n)
	return nil
}

// finishLoad installs loaded items merged with delta and returns the cart size
func (a *Aggregate) finishLoad(delta *loadDelta, loaded []CartItem) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.loads, delta)

	items := make([]CartItem, 0, len(loaded)+len(delta.added))
	present := make(map[string]bool, len(loaded))
	for _, item := range append(loaded, delta.added...) {
		if delta.removed[item.BookingID] || present[item.BookingID] {
			continue
		}
		present[item.BookingID] = true
		items = append(items, item)
	}
	a.items = items
	return len(items)
}

func (a *Aggregate) resolveAll(ctx context.Context) ([]CartItem, error) {
	list, err := a.bookings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}

	items := make([]CartItem, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, b := range list {
		g.Go(func() error {
			item, err := a.resolve(gctx, b)
			if err != nil {
				return err
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func (a *Aggregate) resolve(ctx context.Context, b booking.Booking) (CartItem, error) {
	course, err := a.catalog.GetCourse(ctx, b.CourseID)
	if err != nil {
		return CartItem{}, joinErr(b, err)
	}
	instance, err := a.catalog.GetInstance(ctx, b.CourseID, b.InstanceID)
	if err != nil {
		return CartItem{}, joinErr(b, err)
	}
	return CartItem{
		BookingID: b.ID,
		Instance:  instance,
		Course:    course,
		Email:     b.Email,
	}, nil
}

func joinErr(b booking.Booking, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &JoinResolutionError{
			BookingID:  b.ID,
			CourseID:   b.CourseID,
			InstanceID: b.InstanceID,
			Err:        err,
		}
	}
	return fmt.Errorf("failed to resolve booking %s: %w", b.ID, err)
}

// AddToCart books a seat and appends it to the cart. The returned item is
// built from the inputs; nothing is re-read.
func (a *Aggregate) AddToCart(ctx context.Context, instance catalog.Instance, course catalog.Course, email string) (CartItem, error) {
	defer a.begin()()

	if strings.TrimSpace(email) == "" {
		return CartItem{}, reject(ErrEmailRequired, instance.ID, email)
	}

	a.mu.Lock()
	duplicate := a.hasLocked(instance.ID, email)
	booked := a.countLocked(instance.ID)
	a.mu.Unlock()

	if duplicate {
		return CartItem{}, reject(ErrDuplicateBooking, instance.ID, email)
	}

	capacity, err := catalog.ParseCapacity(course.Capacity)
	if err != nil {
		metrics.BookingsRejected.WithLabelValues("invalid_capacity").Inc()
		return CartItem{}, err
	}
	if booked >= capacity {
		return CartItem{}, reject(ErrClassFull, instance.ID, email)
	}

	id, err := a.bookings.Create(ctx, instance, course, email)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			return CartItem{}, reject(ErrDuplicateBooking, instance.ID, email)
		case errors.Is(err, store.ErrLimitReached):
			return CartItem{}, reject(ErrClassFull, instance.ID, email)
		}
		log.Printf("[Cart] Failed to add booking for instance %s: %v", instance.ID, err)
		return CartItem{}, err
	}

	item := CartItem{
		BookingID: id,
		Instance:  instance,
		Course:    course,
		Email:     email,
	}
	a.mu.Lock()
	a.items = append(a.items, item)
	for delta := range a.loads {
		delta.added = append(delta.added, item)
	}
	a.mu.Unlock()

	metrics.BookingsCreated.Inc()
	log.Printf("[Cart] Booked instance %s for %s (booking %s)", instance.ID, email, id)
	return item, nil
}

// RemoveFromCart deletes the booking and drops every item carrying its id
func (a *Aggregate) RemoveFromCart(ctx context.Context, bookingID string) error {
	defer a.begin()()

	if err := a.bookings.Delete(ctx, bookingID); err != nil {
		log.Printf("[Cart] Failed to remove booking %s: %v", bookingID, err)
		return err
	}

	a.mu.Lock()
	kept := make([]CartItem, 0, len(a.items))
	for _, item := range a.items {
		if item.BookingID != bookingID {
			kept = append(kept, item)
		}
	}
	a.items = kept
	for delta := range a.loads {
		delta.removed[bookingID] = true
	}
	a.mu.Unlock()

	metrics.BookingsRemoved.Inc()
	return nil
}

// ClearCart empties the local cart. Stored bookings are left alone.
func (a *Aggregate) ClearCart() {
	a.replace(make([]CartItem, 0))
}

// Items returns a copy of the cart contents
func (a *Aggregate) Items() []CartItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	items := make([]CartItem, len(a.items))
	copy(items, a.items)
	return items
}

// Busy reports whether a load or a mutating call is running
func (a *Aggregate) Busy() bool {
	return a.inFlight.Load() > 0
}

// BookedCount returns the number of cart items for an instance
func (a *Aggregate) BookedCount(instanceID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.countLocked(instanceID)
}

// AvailableSpots is the capacity left on an instance, never below zero
func (a *Aggregate) AvailableSpots(instanceID, capacity string) (int, error) {
	n, err := catalog.ParseCapacity(capacity)
	if err != nil {
		return 0, err
	}
	spots := n - a.BookedCount(instanceID)
	if spots < 0 {
		spots = 0
	}
	return spots, nil
}

func (a *Aggregate) begin() func() {
	a.inFlight.Add(1)
	return func() { a.inFlight.Add(-1) }
}

func (a *Aggregate) replace(items []CartItem) {
	a.mu.Lock()
	a.items = items
	a.mu.Unlock()
}

func (a *Aggregate) hasLocked(instanceID, email string) bool {
	for _, item := range a.items {
		if item.Instance.ID == instanceID && item.Email == email {
			return true
		}
	}
	return false
}

func (a *Aggregate) countLocked(instanceID string) int {
	n := 0
	for _, item := range a.items {
		if item.Instance.ID == instanceID {
			n++
		}
	}
	return n
}

func reject(reason error, instanceID, email string) error {
	metrics.BookingsRejected.WithLabelValues(rejectionLabel(reason)).Inc()
	return &Rejection{Reason: reason, InstanceID: instanceID, Email: email}
}
