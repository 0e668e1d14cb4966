// Package memory holds the in-process implementation of the shared store,
// used by tests and single-node deployments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nthbao13/cloud-quiz/internal/store"
)

// Store is an in-memory implementation of store.Store. Documents live in a
// plain map; every mutation re-marshals the document and fans it out to the
// document's subscribers in delivery order.
type Store struct {
	mu     sync.Mutex
	docs   map[string]map[string]any
	subs   map[string]map[int]*subscription
	nextID int
}

func NewStore() *Store {
	return &Store{
		docs: make(map[string]map[string]any),
		subs: make(map[string]map[int]*subscription),
	}
}

func (s *Store) Write(ctx context.Context, path string, value any) error {
	docKey, fields, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	jsonValue, err := store.ToJSONValue(value)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	s.mu.Lock()
	doc := store.Patch(s.docs[docKey], fields, jsonValue)
	if doc == nil {
		delete(s.docs, docKey)
	} else {
		s.docs[docKey] = doc
	}
	s.notifyLocked(docKey)
	s.mu.Unlock()
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	docKey, base, err := store.SplitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docs[docKey]
	for key, value := range fields {
		jsonValue, err := store.ToJSONValue(value)
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", path, key, err)
		}
		rel := append(append([]string{}, base...), splitRel(key)...)
		doc = store.Patch(doc, rel, jsonValue)
	}
	if doc == nil {
		delete(s.docs, docKey)
	} else {
		s.docs[docKey] = doc
	}
	s.notifyLocked(docKey)
	return nil
}

func (s *Store) ReadOnce(ctx context.Context, path string, dest any) (bool, error) {
	docKey, fields, err := store.SplitPath(path)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	doc, ok := s.docs[docKey]
	var value any
	if ok {
		value, ok = store.Lookup(doc, fields)
	}
	var data []byte
	if ok {
		data, err = json.Marshal(value)
	}
	s.mu.Unlock()

	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if !ok {
		return false, nil
	}
	if dest != nil {
		if err := json.Unmarshal(data, dest); err != nil {
			return false, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return true, nil
}

func (s *Store) Subscribe(ctx context.Context, path string, fn func(store.Event)) (store.Subscription, error) {
	docKey, _, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		events: make(chan store.Event, 16),
		done:   make(chan struct{}),
	}
	go sub.run(fn)

	s.mu.Lock()
	if s.subs[docKey] == nil {
		s.subs[docKey] = make(map[int]*subscription)
	}
	id := s.nextID
	s.nextID++
	s.subs[docKey][id] = sub
	sub.detach = func() {
		s.mu.Lock()
		delete(s.subs[docKey], id)
		s.mu.Unlock()
	}
	sub.push(s.snapshotLocked(docKey))
	s.mu.Unlock()
	return sub, nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	return s.Write(ctx, path, nil)
}

func (s *Store) snapshotLocked(docKey string) store.Event {
	doc, ok := s.docs[docKey]
	if !ok {
		return store.Event{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return store.Event{}
	}
	return store.Event{Value: data, Exists: true}
}

func (s *Store) notifyLocked(docKey string) {
	ev := s.snapshotLocked(docKey)
	for _, sub := range s.subs[docKey] {
		sub.push(ev)
	}
}

type subscription struct {
	events chan store.Event
	done   chan struct{}
	once   sync.Once
	detach func()
}

func (s *subscription) run(fn func(store.Event)) {
	for {
		select {
		case ev := <-s.events:
			fn(ev)
		case <-s.done:
			return
		}
	}
}

// push enqueues without blocking; when the subscriber lags, the oldest
// pending event is dropped so it only ever observes newer state.
func (s *subscription) push(ev store.Event) {
	select {
	case s.events <- ev:
	default:
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- ev:
		default:
		}
	}
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		if s.detach != nil {
			s.detach()
		}
		close(s.done)
	})
}

func splitRel(key string) []string {
	var out []string
	for _, seg := range strings.Split(key, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
