package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/example/yoga-booking/internal/domain/cart"
	"github.com/example/yoga-booking/internal/domain/catalog"
	"github.com/go-chi/chi/v5"
)

const (
	msgBookingFailed = "Failed to book class. Please try again."
	msgRemoveFailed  = "Failed to remove booking. Please try again."
	msgStoreFailed   = "Store unavailable. Please try again."
	msgCartBusy      = "Cart is busy. Please try again."
)

// IdempotencyStore remembers booking responses by request key; redisx.Idempotency satisfies it
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Remember(ctx context.Context, key, bookingID, response string) error
	Forget(ctx context.Context, bookingID string) error
}

type Handlers struct {
	catalog *catalog.Service
	cart    *cart.Aggregate
	idem    IdempotencyStore
}

// NewHandlers wires the API. idem may be nil.
func NewHandlers(cat *catalog.Service, c *cart.Aggregate, idem IdempotencyStore) *Handlers {
	return &Handlers{
		catalog: cat,
		cart:    c,
		idem:    idem,
	}
}

// Catalog Handlers

// ClassView is a class with the seats left on it. AvailableSpots is null when
// the course capacity cannot be read.
type ClassView struct {
	catalog.Class
	AvailableSpots *int `json:"availableSpots"`
}

func (h *Handlers) ListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.catalog.ListClasses(r.Context())
	if err != nil {
		log.Printf("[API] Failed to list classes: %v", err)
		http.Error(w, msgStoreFailed, http.StatusBadGateway)
		return
	}

	views := make([]ClassView, 0, len(classes))
	for _, c := range classes {
		view := ClassView{Class: c}
		if spots, err := h.cart.AvailableSpots(c.Instance.ID, c.Course.Capacity); err == nil {
			view.AvailableSpots = &spots
		}
		views = append(views, view)
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handlers) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var course catalog.Course
	if err := json.NewDecoder(r.Body).Decode(&course); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.catalog.CreateCourse(r.Context(), course)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidCourse) || errors.Is(err, catalog.ErrInvalidCapacity) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("[API] Failed to create course: %v", err)
		http.Error(w, msgStoreFailed, http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) AddInstance(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")

	var inst catalog.Instance
	if err := json.NewDecoder(r.Body).Decode(&inst); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.catalog.AddInstance(r.Context(), courseID, inst)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrInvalidInstance):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, catalog.ErrCourseNotFound):
			http.Error(w, "Course not found", http.StatusNotFound)
		default:
			log.Printf("[API] Failed to add instance to course %s: %v", courseID, err)
			http.Error(w, msgStoreFailed, http.StatusBadGateway)
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// Cart Handlers

type cartResponse struct {
	Items []cart.CartItem `json:"items"`
	Busy  bool            `json:"busy"`
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, cartResponse{
		Items: h.cart.Items(),
		Busy:  h.cart.Busy(),
	})
}

type addToCartRequest struct {
	InstanceID string `json:"instanceId"`
	CourseID   string `json:"courseId"`
	Email      string `json:"email"`
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rejectBusy(w) {
		return
	}

	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.InstanceID == "" || req.CourseID == "" {
		http.Error(w, "instanceId and courseId are required", http.StatusBadRequest)
		return
	}

	var idemKey string
	if key := r.Header.Get("Idempotency-Key"); key != "" && h.idem != nil {
		idemKey = requestKey(key, req)
		cached, ok, err := h.idem.Lookup(ctx, idemKey)
		if err != nil {
			log.Printf("[API] Idempotency lookup failed: %v", err)
		} else if ok {
			w.Header().Set("Idempotent-Replayed", "true")
			respondRaw(w, http.StatusCreated, []byte(cached))
			return
		}
	}

	course, err := h.catalog.GetCourse(ctx, req.CourseID)
	if err != nil {
		respondBookingError(w, err)
		return
	}
	instance, err := h.catalog.GetInstance(ctx, req.CourseID, req.InstanceID)
	if err != nil {
		respondBookingError(w, err)
		return
	}

	item, err := h.cart.AddToCart(ctx, instance, course, req.Email)
	if err != nil {
		respondBookingError(w, err)
		return
	}

	body, err := json.Marshal(item)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if idemKey != "" {
		if err := h.idem.Remember(ctx, idemKey, item.BookingID, string(body)); err != nil {
			log.Printf("[API] Failed to remember idempotency key: %v", err)
		}
	}
	respondRaw(w, http.StatusCreated, body)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	if h.rejectBusy(w) {
		return
	}

	if err := h.cart.RemoveFromCart(r.Context(), bookingID); err != nil {
		http.Error(w, msgRemoveFailed, http.StatusBadGateway)
		return
	}
	if h.idem != nil {
		if err := h.idem.Forget(r.Context(), bookingID); err != nil {
			log.Printf("[API] Failed to drop idempotency key for %s: %v", bookingID, err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	if h.rejectBusy(w) {
		return
	}
	h.cart.ClearCart()
	w.WriteHeader(http.StatusNoContent)
}

// requestKey scopes a client idempotency key to the booking it asks for
func requestKey(clientKey string, req addToCartRequest) string {
	sum := sha256.Sum256([]byte(req.InstanceID + "|" + req.CourseID + "|" + req.Email))
	return clientKey + ":" + hex.EncodeToString(sum[:8])
}

// rejectBusy answers 503 while a load or another cart mutation is running
func (h *Handlers) rejectBusy(w http.ResponseWriter) bool {
	if !h.cart.Busy() {
		return false
	}
	w.Header().Set("Retry-After", "1")
	http.Error(w, msgCartBusy, http.StatusServiceUnavailable)
	return true
}

// respondBookingError maps cart and catalog failures to a status
func respondBookingError(w http.ResponseWriter, err error) {
	var rejection *cart.Rejection
	switch {
	case errors.As(err, &rejection):
		status := http.StatusConflict
		if errors.Is(err, cart.ErrEmailRequired) {
			status = http.StatusBadRequest
		}
		http.Error(w, rejection.Error(), status)
	case errors.Is(err, cart.ErrInvalidCapacity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, catalog.ErrCourseNotFound):
		http.Error(w, "Course not found", http.StatusNotFound)
	case errors.Is(err, catalog.ErrInstanceNotFound):
		http.Error(w, "Instance not found", http.StatusNotFound)
	default:
		log.Printf("[API] Booking failed: %v", err)
		http.Error(w, msgBookingFailed, http.StatusBadGateway)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
