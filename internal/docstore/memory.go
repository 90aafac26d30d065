package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and for local development
// without a database. Snapshot delivery is synchronous: subscribers are
// invoked inside the mutating call, so a callback must not call back into
// the store.
type Memory struct {
	mu      sync.Mutex
	cols    map[CollectionPath]map[string]memDoc
	subs    map[CollectionPath]map[int]subscriber
	nextSub int
	lastMs  int64
}

type memDoc struct {
	fields    Fields
	createdAt int64
}

type subscriber struct {
	onSnapshot SnapshotFunc
	onError    ErrorFunc
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		cols: make(map[CollectionPath]map[string]memDoc),
		subs: make(map[CollectionPath]map[int]subscriber),
	}
}

// now returns a strictly increasing unix-millisecond timestamp so that
// snapshot ordering is deterministic even for writes within the same tick.
func (m *Memory) now() int64 {
	ms := time.Now().UnixMilli()
	if ms <= m.lastMs {
		ms = m.lastMs + 1
	}
	m.lastMs = ms
	return ms
}

// resolve strips ServerTimestamp sentinels out of the field set and reports
// whether one was present.
func resolve(fields Fields) (Fields, bool) {
	out := make(Fields, len(fields))
	hasTS := false
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			hasTS = true
			continue
		}
		out[k] = v
	}
	return out, hasTS
}

func (m *Memory) Create(ctx context.Context, col CollectionPath, fields Fields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	f, hasTS := resolve(fields)
	doc := memDoc{fields: f}
	if hasTS {
		doc.createdAt = m.now()
	}
	if m.cols[col] == nil {
		m.cols[col] = make(map[string]memDoc)
	}
	m.cols[col][id] = doc
	m.notifyLocked(col)
	return id, nil
}

func (m *Memory) Set(ctx context.Context, ref DocPath, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, hasTS := resolve(fields)
	doc := memDoc{fields: f}
	if prev, ok := m.cols[ref.Collection][ref.ID]; ok {
		doc.createdAt = prev.createdAt
	} else if hasTS {
		doc.createdAt = m.now()
	}
	if m.cols[ref.Collection] == nil {
		m.cols[ref.Collection] = make(map[string]memDoc)
	}
	m.cols[ref.Collection][ref.ID] = doc
	m.notifyLocked(ref.Collection)
	return nil
}

func (m *Memory) Update(ctx context.Context, ref DocPath, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.cols[ref.Collection][ref.ID]
	if !ok {
		return ErrNotFound{Ref: ref}
	}
	f, _ := resolve(fields)
	for k, v := range f {
		doc.fields[k] = v
	}
	m.cols[ref.Collection][ref.ID] = doc
	m.notifyLocked(ref.Collection)
	return nil
}

// Delete removes a document. Removing an absent document succeeds, matching
// the remote store's delete semantics.
func (m *Memory) Delete(ctx context.Context, ref DocPath) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cols[ref.Collection][ref.ID]; !ok {
		return nil
	}
	delete(m.cols[ref.Collection], ref.ID)
	m.notifyLocked(ref.Collection)
	return nil
}

func (m *Memory) DeleteAll(ctx context.Context, col CollectionPath) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.cols[col]) == 0 {
		return nil
	}
	delete(m.cols, col)
	m.notifyLocked(col)
	return nil
}

func (m *Memory) Exists(ctx context.Context, ref DocPath) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.cols[ref.Collection][ref.ID]
	return ok, nil
}

func (m *Memory) FetchAll(ctx context.Context, col CollectionPath) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshotLocked(col), nil
}

func (m *Memory) ListIDs(ctx context.Context, col CollectionPath) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.cols[col]))
	for id := range m.cols[col] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Subscribe(col CollectionPath, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error) {
	m.mu.Lock()

	m.nextSub++
	id := m.nextSub
	if m.subs[col] == nil {
		m.subs[col] = make(map[int]subscriber)
	}
	m.subs[col][id] = subscriber{onSnapshot: onSnapshot, onError: onError}

	// Initial full snapshot, delivered before Subscribe returns.
	initial := m.snapshotLocked(col)
	m.mu.Unlock()
	onSnapshot(initial)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[col], id)
	}, nil
}

func (m *Memory) snapshotLocked(col CollectionPath) Snapshot {
	snap := make(Snapshot, 0, len(m.cols[col]))
	for id, doc := range m.cols[col] {
		fields := make(Fields, len(doc.fields))
		for k, v := range doc.fields {
			fields[k] = v
		}
		snap = append(snap, Doc{ID: id, Fields: fields, CreatedAt: doc.createdAt})
	}
	sort.Slice(snap, func(i, j int) bool {
		if snap[i].CreatedAt != snap[j].CreatedAt {
			return snap[i].CreatedAt > snap[j].CreatedAt
		}
		return snap[i].ID < snap[j].ID
	})
	return snap
}

// notifyLocked fans the current snapshot out to every subscriber of the
// collection. Runs with the store lock held, so Unsubscribe callers observe
// a hard stop.
func (m *Memory) notifyLocked(col CollectionPath) {
	subs := m.subs[col]
	if len(subs) == 0 {
		return
	}
	snap := m.snapshotLocked(col)
	for _, sub := range subs {
		sub.onSnapshot(snap)
	}
}
