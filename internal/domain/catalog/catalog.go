package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/yoga-booking/internal/infrastructure/store"
)

const (
	CoursesCollection      = "courses"
	InstancesSubcollection = "instances"
)

var (
	ErrCourseNotFound   = errors.New("course not found")
	ErrInstanceNotFound = errors.New("instance not found")
	ErrInvalidCourse    = errors.New("course type is required")
	ErrInvalidInstance  = errors.New("instance date is required")
	ErrInvalidCapacity  = errors.New("capacity must be a non-negative whole number")
)

// Course is a recurring class template. Fields are kept as text the way the
// course documents store them.
type Course struct {
	ID          string `json:"id,omitempty"`
	Capacity    string `json:"capacity"`
	DayOfWeek   string `json:"dayOfWeek"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
	Price       string `json:"price"`
	Time        string `json:"time"`
	Type        string `json:"type"`
}

// Instance is one scheduled occurrence of a course
type Instance struct {
	ID       string `json:"id,omitempty"`
	CourseID string `json:"courseId"`
	Date     string `json:"date"`
	Teacher  string `json:"teacher"`
	Comments string `json:"comments"`
}

// Class is an instance with its course attached
type Class struct {
	Instance Instance `json:"instance"`
	Course   Course   `json:"course"`
}

// InstancesPath returns the instances subcollection of a course
func InstancesPath(courseID string) string {
	return store.SubPath(CoursesCollection, courseID, InstancesSubcollection)
}

// ParseCapacity reads a capacity stored as text
func ParseCapacity(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCapacity, text)
	}
	return n, nil
}

// Validate checks the fields a course needs before it is written
func (c Course) Validate() error {
	if strings.TrimSpace(c.Type) == "" {
		return ErrInvalidCourse
	}
	if _, err := ParseCapacity(c.Capacity); err != nil {
		return err
	}
	return nil
}
