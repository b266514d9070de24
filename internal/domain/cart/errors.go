package cart

import (
	"errors"
	"fmt"

	"github.com/example/yoga-booking/internal/domain/catalog"
)

// Rejection reasons. They reach the caller wrapped in a *Rejection.
var (
	ErrDuplicateBooking = errors.New("you have already booked this class with this email")
	ErrClassFull        = errors.New("sorry, this class is full, please choose another class")
	ErrEmailRequired    = errors.New("email is required")
)

// ErrInvalidCapacity is returned when a course capacity cannot be read
var ErrInvalidCapacity = catalog.ErrInvalidCapacity

// Rejection is a booking refused by the cart rules or by store admission.
// Nothing was persisted for it.
type Rejection struct {
	Reason     error
	InstanceID string
	Email      string
}

func (r *Rejection) Error() string {
	return r.Reason.Error()
}

func (r *Rejection) Unwrap() error {
	return r.Reason
}

// JoinResolutionError means a booking points at a course or instance that
// does not exist
type JoinResolutionError struct {
	BookingID  string
	CourseID   string
	InstanceID string
	Err        error
}

func (e *JoinResolutionError) Error() string {
	return fmt.Sprintf("booking %s references missing course %s / instance %s: %v",
		e.BookingID, e.CourseID, e.InstanceID, e.Err)
}

func (e *JoinResolutionError) Unwrap() error {
	return e.Err
}

func rejectionLabel(reason error) string {
	switch reason {
	case ErrDuplicateBooking:
		return "duplicate"
	case ErrClassFull:
		return "class_full"
	case ErrEmailRequired:
		return "email_required"
	}
	return "other"
}
