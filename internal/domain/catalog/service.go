package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/example/yoga-booking/internal/infrastructure/store"
)

type Service struct {
	store store.DocumentStore
}

func NewService(ds store.DocumentStore) *Service {
	return &Service{store: ds}
}

func (s *Service) CreateCourse(ctx context.Context, c Course) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	c.Capacity = strings.TrimSpace(c.Capacity)

	id, err := s.store.Create(ctx, CoursesCollection, c)
	if err != nil {
		return "", fmt.Errorf("failed to create course: %w", err)
	}
	return id, nil
}

func (s *Service) AddInstance(ctx context.Context, courseID string, inst Instance) (string, error) {
	if strings.TrimSpace(inst.Date) == "" {
		return "", ErrInvalidInstance
	}
	if _, err := s.GetCourse(ctx, courseID); err != nil {
		return "", err
	}
	inst.CourseID = courseID

	id, err := s.store.Create(ctx, InstancesPath(courseID), inst)
	if err != nil {
		return "", fmt.Errorf("failed to add instance: %w", err)
	}
	return id, nil
}

func (s *Service) GetCourse(ctx context.Context, courseID string) (Course, error) {
	doc, err := s.store.GetOne(ctx, CoursesCollection, courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Course{}, fmt.Errorf("%w: %s: %w", ErrCourseNotFound, courseID, err)
		}
		return Course{}, fmt.Errorf("failed to get course: %w", err)
	}

	var c Course
	if err := store.Decode(doc, &c); err != nil {
		return Course{}, err
	}
	return c, nil
}

func (s *Service) GetInstance(ctx context.Context, courseID, instanceID string) (Instance, error) {
	doc, err := s.store.GetOne(ctx, InstancesPath(courseID), instanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Instance{}, fmt.Errorf("%w: %s/%s: %w", ErrInstanceNotFound, courseID, instanceID, err)
		}
		return Instance{}, fmt.Errorf("failed to get instance: %w", err)
	}
	return decodeInstance(courseID, doc)
}

func (s *Service) ListCourses(ctx context.Context) ([]Course, error) {
	docs, err := s.store.GetAll(ctx, CoursesCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	courses := make([]Course, 0, len(docs))
	for _, doc := range docs {
		var c Course
		if err := store.Decode(doc, &c); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, nil
}

func (s *Service) ListInstances(ctx context.Context, courseID string) ([]Instance, error) {
	docs, err := s.store.GetAll(ctx, InstancesPath(courseID))
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return decodeInstances(courseID, docs)
}

// ListClasses returns every instance of every course with its course attached,
// grouped by course and ordered by date within a course
func (s *Service) ListClasses(ctx context.Context) ([]Class, error) {
	courses, err := s.ListCourses(ctx)
	if err != nil {
		return nil, err
	}

	classes := make([]Class, 0)
	for _, c := range courses {
		instances, err := s.ListInstances(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(instances, func(i, j int) bool {
			return instances[i].Date < instances[j].Date
		})
		for _, inst := range instances {
			classes = append(classes, Class{Instance: inst, Course: c})
		}
	}
	return classes, nil
}

type seedCourse struct {
	Course
	Instances []Instance `json:"instances"`
}

// Seed imports a JSON catalog: an array of courses, each with its instances
func (s *Service) Seed(ctx context.Context, r io.Reader) (courses, instances int, err error) {
	var entries []seedCourse
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, 0, fmt.Errorf("failed to decode catalog: %w", err)
	}

	for _, entry := range entries {
		courseID, err := s.CreateCourse(ctx, entry.Course)
		if err != nil {
			return courses, instances, fmt.Errorf("failed to seed course %q: %w", entry.Type, err)
		}
		courses++

		for _, inst := range entry.Instances {
			if _, err := s.AddInstance(ctx, courseID, inst); err != nil {
				return courses, instances, fmt.Errorf("failed to seed instance of %q: %w", entry.Type, err)
			}
			instances++
		}
	}

	log.Printf("[Catalog] Seeded %d courses, %d instances", courses, instances)
	return courses, instances, nil
}

func decodeInstance(courseID string, doc store.Document) (Instance, error) {
	var inst Instance
	if err := store.Decode(doc, &inst); err != nil {
		return Instance{}, err
	}
	if inst.CourseID == "" {
		inst.CourseID = courseID
	}
	return inst, nil
}

func decodeInstances(courseID string, docs []store.Document) ([]Instance, error) {
	instances := make([]Instance, 0, len(docs))
	for _, doc := range docs {
		inst, err := decodeInstance(courseID, doc)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, nil
}
