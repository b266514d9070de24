package mocks

import (
	"context"
	"sync"

	"github.com/example/yoga-booking/internal/infrastructure/store"
)

// MockDocumentStore is a DocumentStore backed by a MemoryStore that records
// calls and can be told to fail
type MockDocumentStore struct {
	mem *store.MemoryStore

	mu          sync.Mutex
	CreateCalls []CreateCall
	DeleteCalls []DeleteCall
	GetAllCalls []string
	GetOneCalls []GetOneCall

	// Errors returned instead of reaching the store
	CreateErr    error
	DeleteErr    error
	GetAllErr    error
	GetOneErr    error
	SubscribeErr error

	// BeforeCreate runs before a create reaches the store
	BeforeCreate func(ctx context.Context, collectionPath string)
}

// CreateCall records parameters passed to Create or CreateAdmitted
type CreateCall struct {
	CollectionPath string
	Record         any
	Admission      *store.Admission
}

// DeleteCall records parameters passed to Delete
type DeleteCall struct {
	CollectionPath string
	ID             string
}

// GetOneCall records parameters passed to GetOne
type GetOneCall struct {
	CollectionPath string
	ID             string
}

// NewMockDocumentStore creates an empty MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{
		mem:         store.NewMemoryStore(),
		CreateCalls: make([]CreateCall, 0),
		DeleteCalls: make([]DeleteCall, 0),
		GetAllCalls: make([]string, 0),
		GetOneCalls: make([]GetOneCall, 0),
	}
}

// Memory exposes the backing store for seeding without recording calls
func (m *MockDocumentStore) Memory() *store.MemoryStore {
	return m.mem
}

func (m *MockDocumentStore) Create(ctx context.Context, collectionPath string, record any) (string, error) {
	if err := m.beforeCreate(ctx, CreateCall{CollectionPath: collectionPath, Record: record}); err != nil {
		return "", err
	}
	return m.mem.Create(ctx, collectionPath, record)
}

func (m *MockDocumentStore) CreateAdmitted(ctx context.Context, collectionPath string, record any, adm store.Admission) (string, error) {
	if err := m.beforeCreate(ctx, CreateCall{CollectionPath: collectionPath, Record: record, Admission: &adm}); err != nil {
		return "", err
	}
	return m.mem.CreateAdmitted(ctx, collectionPath, record, adm)
}

func (m *MockDocumentStore) beforeCreate(ctx context.Context, call CreateCall) error {
	m.mu.Lock()
	m.CreateCalls = append(m.CreateCalls, call)
	err := m.CreateErr
	hook := m.BeforeCreate
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, call.CollectionPath)
	}
	return err
}

func (m *MockDocumentStore) Delete(ctx context.Context, collectionPath, id string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, DeleteCall{CollectionPath: collectionPath, ID: id})
	err := m.DeleteErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	return m.mem.Delete(ctx, collectionPath, id)
}

func (m *MockDocumentStore) GetAll(ctx context.Context, collectionPath string, filters ...store.Filter) ([]store.Document, error) {
	m.mu.Lock()
	m.GetAllCalls = append(m.GetAllCalls, collectionPath)
	err := m.GetAllErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.mem.GetAll(ctx, collectionPath, filters...)
}

func (m *MockDocumentStore) GetOne(ctx context.Context, collectionPath, id string) (store.Document, error) {
	m.mu.Lock()
	m.GetOneCalls = append(m.GetOneCalls, GetOneCall{CollectionPath: collectionPath, ID: id})
	err := m.GetOneErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.mem.GetOne(ctx, collectionPath, id)
}

func (m *MockDocumentStore) Subscribe(ctx context.Context, path string, filters ...store.Filter) (*store.Subscription, error) {
	m.mu.Lock()
	err := m.SubscribeErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.mem.Subscribe(ctx, path, filters...)
}

// CreateCount returns the number of create calls so far
func (m *MockDocumentStore) CreateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CreateCalls)
}

// DeleteCount returns the number of delete calls so far
func (m *MockDocumentStore) DeleteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.DeleteCalls)
}

// Reset clears recorded calls and injected errors; stored documents are kept
func (m *MockDocumentStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls = make([]CreateCall, 0)
	m.DeleteCalls = make([]DeleteCall, 0)
	m.GetAllCalls = make([]string, 0)
	m.GetOneCalls = make([]GetOneCall, 0)
	m.CreateErr = nil
	m.DeleteErr = nil
	m.GetAllErr = nil
	m.GetOneErr = nil
	m.SubscribeErr = nil
	m.BeforeCreate = nil
}

var _ store.DocumentStore = (*MockDocumentStore)(nil)
