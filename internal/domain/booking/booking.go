package booking

import (
	"time"

	"github.com/example/yoga-booking/internal/domain/catalog"
)

const Collection = "bookings"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Booking reserves one seat of one instance for one email. Date, time, type
// and teacher are copies taken when the booking is made.
type Booking struct {
	ID         string    `json:"id,omitempty"`
	InstanceID string    `json:"instanceId"`
	CourseID   string    `json:"courseId"`
	Email      string    `json:"email"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Type       string    `json:"type"`
	Teacher    string    `json:"teacher"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// New builds a pending booking from the class being booked
func New(instance catalog.Instance, course catalog.Course, email string, now time.Time) Booking {
	return Booking{
		InstanceID: instance.ID,
		CourseID:   course.ID,
		Email:      email,
		Date:       instance.Date,
		Time:       course.Time,
		Type:       course.Type,
		Teacher:    instance.Teacher,
		Status:     StatusPending,
		CreatedAt:  now,
	}
}

// CountKey groups the bookings that share an instance's seats
func CountKey(instanceID string) string {
	return "instance:" + instanceID
}

// UniqueKey identifies the one booking an email may hold for an instance
func UniqueKey(instanceID, email string) string {
	return instanceID + "|" + email
}
