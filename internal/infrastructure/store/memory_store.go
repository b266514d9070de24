package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process DocumentStore
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection // path -> collection
	seq         uint64
}

type memCollection struct {
	docs     map[string]*memDoc
	watchers map[chan struct{}]struct{}
}

type memDoc struct {
	fields    map[string]any
	countKey  string
	uniqueKey string
	seq       uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memCollection),
	}
}

// Create stores a document under a generated id
func (s *MemoryStore) Create(ctx context.Context, collectionPath string, record any) (string, error) {
	return s.create(collectionPath, record, nil)
}

// CreateAdmitted stores a document if the admission rule holds
func (s *MemoryStore) CreateAdmitted(ctx context.Context, collectionPath string, record any, adm Admission) (string, error) {
	return s.create(collectionPath, record, &adm)
}

func (s *MemoryStore) create(collectionPath string, record any, adm *Admission) (string, error) {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return "", err
	}
	fields, err := toFields(record)
	if err != nil {
		return "", writeErr("create", ref.String(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(ref.String())
	doc := &memDoc{fields: fields}

	if adm != nil {
		if err := coll.admit(*adm); err != nil {
			return "", err
		}
		doc.countKey = adm.CountKey
		doc.uniqueKey = adm.UniqueKey
	}

	s.seq++
	doc.seq = s.seq
	id := uuid.New().String()
	coll.docs[id] = doc
	coll.notify()

	return id, nil
}

// Delete removes a document
func (s *MemoryStore) Delete(ctx context.Context, collectionPath, id string) error {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[ref.String()]
	if !ok {
		return nil
	}
	if _, ok := coll.docs[id]; !ok {
		return nil
	}
	delete(coll.docs, id)
	coll.notify()
	return nil
}

// GetAll returns matching documents in insertion order
func (s *MemoryStore) GetAll(ctx context.Context, collectionPath string, filters ...Filter) ([]Document, error) {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return nil, err
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(ref.String(), filters), nil
}

// GetOne returns a document by id
func (s *MemoryStore) GetOne(ctx context.Context, collectionPath, id string) (Document, error) {
	ref, err := ParsePath(collectionPath)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if coll, ok := s.collections[ref.String()]; ok {
		if doc, ok := coll.docs[id]; ok {
			return materialize(id, doc.fields), nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, ref.String(), id)
}

// Subscribe emits the matching set now and after every change to the collection
func (s *MemoryStore) Subscribe(ctx context.Context, path string, filters ...Filter) (*Subscription, error) {
	ref, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	key := ref.String()

	changed := make(chan struct{}, 1)
	changed <- struct{}{} // initial snapshot

	s.mu.Lock()
	s.collection(key).watchers[changed] = struct{}{}
	s.mu.Unlock()

	sub := newSubscription(ctx, key)
	sub.start(func(ctx context.Context, emit func([]Document) bool) error {
		defer func() {
			s.mu.Lock()
			delete(s.collections[key].watchers, changed)
			s.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
				s.mu.RLock()
				docs := s.query(key, filters)
				s.mu.RUnlock()
				if !emit(docs) {
					return nil
				}
			}
		}
	})
	return sub, nil
}

// collection returns the named collection, creating it. Caller holds the write lock.
func (s *MemoryStore) collection(key string) *memCollection {
	coll, ok := s.collections[key]
	if !ok {
		coll = &memCollection{
			docs:     make(map[string]*memDoc),
			watchers: make(map[chan struct{}]struct{}),
		}
		s.collections[key] = coll
	}
	return coll
}

// query materializes matching documents. Caller holds a read lock.
func (s *MemoryStore) query(key string, filters []Filter) []Document {
	coll, ok := s.collections[key]
	if !ok {
		return []Document{}
	}

	ids := make([]string, 0, len(coll.docs))
	for id := range coll.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return coll.docs[ids[i]].seq < coll.docs[ids[j]].seq
	})

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc := materialize(id, coll.docs[id].fields)
		if matchAll(doc, filters) {
			docs = append(docs, doc)
		}
	}
	return docs
}

func (c *memCollection) admit(adm Admission) error {
	return adm.check(
		func() (bool, error) {
			for _, doc := range c.docs {
				if doc.uniqueKey == adm.UniqueKey {
					return true, nil
				}
			}
			return false, nil
		},
		func() (int, error) {
			n := 0
			for _, doc := range c.docs {
				if doc.countKey == adm.CountKey {
					n++
				}
			}
			return n, nil
		},
	)
}

// notify wakes every watcher without blocking; pending signals coalesce
func (c *memCollection) notify() {
	for ch := range c.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
