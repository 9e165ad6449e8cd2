package store

import (
	"context"
	"fmt"
	"sync"

	"talad/livesync"
)

// Memory is an in-memory livesync.Store and livesync.Remote. It backs the
// livesync tests and makes the sync core runnable without a database.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]livesync.Document
	watchers    map[string][]*memWatcher
	nextID      int

	// WriteErr, when set, fails every Remote write. Test hook.
	WriteErr error
}

type memWatcher struct {
	ch     chan livesync.ChangeEvent
	ctx    context.Context
	closed bool
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]livesync.Document),
		watchers:    make(map[string][]*memWatcher),
	}
}

func (m *Memory) Load(ctx context.Context, collection string) ([]livesync.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := make([]livesync.Document, 0, len(m.collections[collection]))
	for _, d := range m.collections[collection] {
		docs = append(docs, d.Clone())
	}
	return docs, nil
}

func (m *Memory) Watch(ctx context.Context, collection string) (<-chan livesync.ChangeEvent, error) {
	w := &memWatcher{ch: make(chan livesync.ChangeEvent, 64), ctx: ctx}
	m.mu.Lock()
	m.watchers[collection] = append(m.watchers[collection], w)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.closeWatcher(collection, w)
		m.mu.Unlock()
	}()
	return w.ch, nil
}

func (m *Memory) closeWatcher(collection string, w *memWatcher) {
	if w.closed {
		return
	}
	w.closed = true
	close(w.ch)
	list := m.watchers[collection]
	for i, item := range list {
		if item == w {
			m.watchers[collection] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func (m *Memory) notify(collection string, ev livesync.ChangeEvent) {
	for _, w := range append([]*memWatcher(nil), m.watchers[collection]...) {
		select {
		case w.ch <- ev:
		default:
		}
	}
}

// FailStream delivers a terminal error to every watcher of the collection and
// closes their streams, simulating a broken connection.
func (m *Memory) FailStream(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range append([]*memWatcher(nil), m.watchers[collection]...) {
		select {
		case w.ch <- livesync.ChangeEvent{Err: err}:
		default:
		}
		m.closeWatcher(collection, w)
	}
}

// Create inserts a document, assigning an id when the document has none, and
// returns the id.
func (m *Memory) Create(ctx context.Context, collection string, doc livesync.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return "", m.WriteErr
	}
	stored := doc.Clone()
	id := stored.ID()
	if id == "" {
		m.nextID++
		id = fmt.Sprintf("mem-%06d", m.nextID)
		stored["_id"] = id
	}
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]livesync.Document)
	}
	m.collections[collection][id] = stored
	m.notify(collection, livesync.ChangeEvent{Op: livesync.OpInsert, Doc: stored.Clone()})
	return id, nil
}

func (m *Memory) Get(collection, id string) (livesync.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.collections[collection][id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if _, ok := m.collections[collection][id]; !ok {
		return fmt.Errorf("store: no document %s in %s", id, collection)
	}
	delete(m.collections[collection], id)
	m.notify(collection, livesync.ChangeEvent{Op: livesync.OpDelete, ID: id})
	return nil
}

// DeleteAll removes every document in the collection in one batch.
func (m *Memory) DeleteAll(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	for id := range m.collections[collection] {
		delete(m.collections[collection], id)
		m.notify(collection, livesync.ChangeEvent{Op: livesync.OpDelete, ID: id})
	}
	return nil
}

// UpdateFields overwrites the given fields of one document.
func (m *Memory) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	doc, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("store: no document %s in %s", id, collection)
	}
	for k, v := range fields {
		doc[k] = v
	}
	m.notify(collection, livesync.ChangeEvent{Op: livesync.OpUpdate, Doc: doc.Clone()})
	return nil
}

func (m *Memory) AddToSet(ctx context.Context, collection, id, field string, value any) error {
	return m.mutateList(collection, id, field, func(list []any) []any {
		for _, item := range list {
			if item == value {
				return list
			}
		}
		return append(list, value)
	})
}

func (m *Memory) PullFromSet(ctx context.Context, collection, id, field string, value any) error {
	return m.mutateList(collection, id, field, func(list []any) []any {
		out := list[:0]
		for _, item := range list {
			if item != value {
				out = append(out, item)
			}
		}
		return out
	})
}

func (m *Memory) Push(ctx context.Context, collection, id, field string, value any) error {
	return m.mutateList(collection, id, field, func(list []any) []any {
		return append(list, value)
	})
}

func (m *Memory) mutateList(collection, id, field string, fn func([]any) []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	doc, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("store: no document %s in %s", id, collection)
	}
	list, _ := doc[field].([]any)
	doc[field] = fn(list)
	m.notify(collection, livesync.ChangeEvent{Op: livesync.OpUpdate, Doc: doc.Clone()})
	return nil
}
