package booking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/yoga-booking/internal/domain/catalog"
	"github.com/example/yoga-booking/internal/infrastructure/store"
	"github.com/example/yoga-booking/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishCall struct {
	Key   string
	Event Event
}

type mockPublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (p *mockPublisher) Publish(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{Key: key, Event: event.(Event)})
	return p.err
}

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestBookingService() (*Service, *mocks.MockDocumentStore, *mockPublisher) {
	ds := mocks.NewMockDocumentStore()
	pub := &mockPublisher{}
	service := NewService(ds, pub)
	service.now = func() time.Time { return fixedNow }
	return service, ds, pub
}

func testClass() (catalog.Instance, catalog.Course) {
	course := catalog.Course{ID: "c1", Capacity: "2", Time: "10:00", Type: "Yin Yoga"}
	instance := catalog.Instance{ID: "i1", CourseID: "c1", Date: "2024-06-03", Teacher: "Ana"}
	return instance, course
}

// ============================================
// Create Tests
// ============================================

func TestService_Create_Success(t *testing.T) {
	service, ds, _ := newTestBookingService()
	ctx := context.Background()
	instance, course := testClass()

	id, err := service.Create(ctx, instance, course, "a@x.com")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, ds.CreateCalls, 1)
	call := ds.CreateCalls[0]
	assert.Equal(t, Collection, call.CollectionPath)
	require.NotNil(t, call.Admission)
	assert.Equal(t, store.Admission{CountKey: "instance:i1", Limit: 2, UniqueKey: "i1|a@x.com"}, *call.Admission)

	b, err := service.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Booking{
		ID:         id,
		InstanceID: "i1",
		CourseID:   "c1",
		Email:      "a@x.com",
		Date:       "2024-06-03",
		Time:       "10:00",
		Type:       "Yin Yoga",
		Teacher:    "Ana",
		Status:     StatusPending,
		CreatedAt:  fixedNow,
	}, b)
}

func TestService_Create_PersistedFieldNames(t *testing.T) {
	service, ds, _ := newTestBookingService()
	ctx := context.Background()
	instance, course := testClass()

	id, err := service.Create(ctx, instance, course, "a@x.com")
	require.NoError(t, err)

	doc, err := ds.Memory().GetOne(ctx, Collection, id)
	require.NoError(t, err)
	for _, field := range []string{"instanceId", "courseId", "email", "date", "time", "type", "teacher", "status", "createdAt"} {
		assert.Contains(t, doc, field)
	}
	assert.Equal(t, "pending", doc["status"])
}

func TestService_Create_PublishesEvent(t *testing.T) {
	service, _, pub := newTestBookingService()
	instance, course := testClass()

	id, err := service.Create(context.Background(), instance, course, "a@x.com")
	require.NoError(t, err)

	require.Len(t, pub.calls, 1)
	assert.Equal(t, "i1", pub.calls[0].Key)
	event := pub.calls[0].Event
	assert.Equal(t, EventBookingCreated, event.Type)
	assert.Equal(t, id, event.BookingID)
	assert.NotEmpty(t, event.ID)

	var data BookingCreated
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, id, data.Booking.ID)
	assert.Equal(t, "a@x.com", data.Booking.Email)
}

func TestService_Create_PublishFailureIgnored(t *testing.T) {
	service, _, pub := newTestBookingService()
	pub.err = errors.New("broker down")
	instance, course := testClass()

	id, err := service.Create(context.Background(), instance, course, "a@x.com")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestService_Create_WithoutPublisher(t *testing.T) {
	ds := mocks.NewMockDocumentStore()
	service := NewService(ds, nil)
	instance, course := testClass()

	_, err := service.Create(context.Background(), instance, course, "a@x.com")
	assert.NoError(t, err)
}

func TestService_Create_StoreErrorPropagates(t *testing.T) {
	service, ds, pub := newTestBookingService()
	ds.CreateErr = store.ErrStoreWrite
	instance, course := testClass()

	_, err := service.Create(context.Background(), instance, course, "a@x.com")
	assert.ErrorIs(t, err, store.ErrStoreWrite)
	assert.Empty(t, pub.calls)
}

func TestService_Create_AdmissionRejections(t *testing.T) {
	service, _, _ := newTestBookingService()
	ctx := context.Background()
	instance, course := testClass()

	_, err := service.Create(ctx, instance, course, "a@x.com")
	require.NoError(t, err)

	_, err = service.Create(ctx, instance, course, "a@x.com")
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	_, err = service.Create(ctx, instance, course, "b@x.com")
	require.NoError(t, err)

	_, err = service.Create(ctx, instance, course, "c@x.com")
	assert.ErrorIs(t, err, store.ErrLimitReached)
}

func TestService_Create_InvalidCapacity(t *testing.T) {
	service, ds, _ := newTestBookingService()
	instance, course := testClass()
	course.Capacity = "full"

	_, err := service.Create(context.Background(), instance, course, "a@x.com")
	assert.ErrorIs(t, err, catalog.ErrInvalidCapacity)
	assert.Empty(t, ds.CreateCalls)
}

// ============================================
// Delete Tests
// ============================================

func TestService_Delete_Success(t *testing.T) {
	service, ds, pub := newTestBookingService()
	ctx := context.Background()
	instance, course := testClass()

	id, err := service.Create(ctx, instance, course, "a@x.com")
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, id))

	_, err = service.Get(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.Len(t, ds.DeleteCalls, 1)
	assert.Equal(t, mocks.DeleteCall{CollectionPath: Collection, ID: id}, ds.DeleteCalls[0])

	require.Len(t, pub.calls, 2)
	assert.Equal(t, EventBookingDeleted, pub.calls[1].Event.Type)

	var data BookingDeleted
	require.NoError(t, json.Unmarshal(pub.calls[1].Event.Data, &data))
	assert.Equal(t, "a@x.com", data.Booking.Email)
	assert.Equal(t, fixedNow, data.DeletedAt)
}

func TestService_Delete_Missing(t *testing.T) {
	service, _, pub := newTestBookingService()

	require.NoError(t, service.Delete(context.Background(), "missing"))
	assert.Empty(t, pub.calls)
}

func TestService_Delete_StoreErrorPropagates(t *testing.T) {
	service, ds, _ := newTestBookingService()
	ds.DeleteErr = store.ErrStoreWrite

	err := service.Delete(context.Background(), "b1")
	assert.ErrorIs(t, err, store.ErrStoreWrite)
}

func TestService_Delete_FreesSeat(t *testing.T) {
	service, _, _ := newTestBookingService()
	ctx := context.Background()
	instance, course := testClass()
	course.Capacity = "1"

	id, err := service.Create(ctx, instance, course, "a@x.com")
	require.NoError(t, err)
	_, err = service.Create(ctx, instance, course, "b@x.com")
	require.ErrorIs(t, err, store.ErrLimitReached)

	require.NoError(t, service.Delete(ctx, id))

	_, err = service.Create(ctx, instance, course, "b@x.com")
	assert.NoError(t, err)
}

// ============================================
// List Tests
// ============================================

func TestService_List(t *testing.T) {
	service, _, _ := newTestBookingService()
	ctx := context.Background()
	instance, course := testClass()

	first, err := service.Create(ctx, instance, course, "a@x.com")
	require.NoError(t, err)
	second, err := service.Create(ctx, instance, course, "b@x.com")
	require.NoError(t, err)

	bookings, err := service.List(ctx)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, first, bookings[0].ID)
	assert.Equal(t, second, bookings[1].ID)
}

func TestService_List_StoreError(t *testing.T) {
	service, ds, _ := newTestBookingService()
	ds.GetAllErr = store.ErrStoreRead

	_, err := service.List(context.Background())
	assert.ErrorIs(t, err, store.ErrStoreRead)
}
