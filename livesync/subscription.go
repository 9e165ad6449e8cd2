package livesync

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"
)

// Subscription is a live ordered view of one collection. Snapshots arrive on
// C; each one replaces the last. After a stream failure a single Snapshot
// with Err set is emitted and the view goes quiet (stale-but-available) until
// Resync or Unsubscribe.
type Subscription struct {
	store      Store
	collection string
	order      OrderSpec
	pred       Predicate

	ch chan Snapshot
	C  <-chan Snapshot

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu       sync.Mutex
	docs     map[string]Document
	failed   error
	closed   bool
	loopDone chan struct{}
}

// Subscribe loads the collection and starts watching it. The initial snapshot
// is emitted before Subscribe returns.
func Subscribe(ctx context.Context, st Store, collection string, order OrderSpec, pred Predicate) (*Subscription, error) {
	sctx, cancel := context.WithCancel(ctx)

	docs, err := st.Load(sctx, collection)
	if err != nil {
		cancel()
		return nil, err
	}

	events, err := st.Watch(sctx, collection)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Subscription{
		store:      st,
		collection: collection,
		order:      order,
		pred:       pred,
		ch:         make(chan Snapshot, 64),
		ctx:        sctx,
		cancel:     cancel,
		docs:       make(map[string]Document, len(docs)),
		loopDone:   make(chan struct{}),
	}
	s.C = s.ch

	for _, d := range docs {
		s.docs[d.ID()] = d
	}
	s.mu.Lock()
	s.emitLocked()
	s.mu.Unlock()

	go s.loop(events, s.loopDone)
	return s, nil
}

func (s *Subscription) Collection() string { return s.collection }

func (s *Subscription) loop(events <-chan ChangeEvent, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.mu.Lock()
			if ev.Err != nil {
				s.failed = ev.Err
				s.deliverLocked(Snapshot{Err: ev.Err})
				s.mu.Unlock()
				return
			}
			switch ev.Op {
			case OpInsert, OpUpdate:
				s.docs[ev.Doc.ID()] = ev.Doc
			case OpDelete:
				delete(s.docs, ev.ID)
			}
			s.emitLocked()
			s.mu.Unlock()
		}
	}
}

// emitLocked materializes and delivers a snapshot. Caller holds mu.
func (s *Subscription) emitLocked() {
	s.deliverLocked(Snapshot{Docs: s.materializeLocked()})
}

// deliverLocked never blocks: when the consumer lags, the oldest pending
// snapshot is dropped. Each snapshot is a full replacement, so dropping
// stale ones is lossless.
func (s *Subscription) deliverLocked(snap Snapshot) {
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *Subscription) materializeLocked() []Document {
	out := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		if s.pred == nil || s.pred(d) {
			out = append(out, d.Clone())
		}
	}
	field, desc := s.order.Field, s.order.Descending
	sort.Slice(out, func(i, j int) bool {
		c := compareValues(out[i][field], out[j][field])
		if c == 0 {
			return out[i].ID() < out[j].ID()
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

// Get returns the current local copy of one document.
func (s *Subscription) Get(id string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// Latest returns the current materialized view without waiting on C.
func (s *Subscription) Latest() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.materializeLocked()
}

// Err reports the terminal stream error, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Resync reloads the collection and emits a fresh snapshot; if the watch
// stream previously failed it is re-established. Safe to call repeatedly: a
// resync of a healthy subscription is just a reload.
func (s *Subscription) Resync(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrUnsubscribed
	}
	s.mu.Unlock()

	docs, err := s.store.Load(ctx, s.collection)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUnsubscribed
	}

	s.docs = make(map[string]Document, len(docs))
	for _, d := range docs {
		s.docs[d.ID()] = d
	}

	if s.failed != nil {
		events, err := s.store.Watch(s.ctx, s.collection)
		if err != nil {
			return err
		}
		s.failed = nil
		s.loopDone = make(chan struct{})
		go s.loop(events, s.loopDone)
	}

	s.emitLocked()
	return nil
}

// Unsubscribe stops emissions and releases the underlying watch. Idempotent,
// and safe after the stream has already failed. In-flight optimistic
// mutations issued through a Mutator are not cancelled.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		done := s.loopDone
		s.mu.Unlock()

		s.cancel()
		<-done
		close(s.ch)
	})
}

// applyToggle flips member's presence in the set field of one local document
// and emits. add selects the direction, making replays of the same intent
// idempotent. Returns false when the document is not in the view.
func (s *Subscription) applyToggle(id, field, member string, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return false
	}
	set := toStringSlice(doc[field])
	if add {
		if !containsString(set, member) {
			set = append(set, member)
		}
	} else {
		set = removeString(set, member)
	}
	doc[field] = toAnySlice(set)
	s.emitLocked()
	return true
}

// applyAppend appends item to the list field of one local document and emits.
func (s *Subscription) applyAppend(id, field string, item any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return false
	}
	list, _ := doc[field].([]any)
	doc[field] = append(list, item)
	s.emitLocked()
	return true
}

// applyRemoveLast retracts the most recent occurrence of item from the list
// field; used to roll a failed optimistic append back.
func (s *Subscription) applyRemoveLast(id, field string, item any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return
	}
	list, _ := doc[field].([]any)
	for i := len(list) - 1; i >= 0; i-- {
		if equalValues(list[i], item) {
			doc[field] = append(list[:i:i], list[i+1:]...)
			s.emitLocked()
			return
		}
	}
}

func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toStringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toAnySlice(list []string) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
