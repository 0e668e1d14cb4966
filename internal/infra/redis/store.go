// Package redis backs the shared store with Redis: one JSON document per
// key, mutations published on a per-document channel so every subscriber
// mirrors the full current value.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nthbao13/cloud-quiz/internal/store"
)

const keyPrefix = "doc:"

// tombstone is published when a document is removed.
const tombstone = "null"

// Store implements store.Store on a Redis client. Document mutations run as
// optimistic WATCH transactions, so concurrent writers of disjoint subtrees
// of the same document never overwrite each other's fields.
type Store struct {
	client *goredis.Client
	ttl    time.Duration
}

// txRetries bounds restarts when concurrent writers keep touching the same
// document.
const txRetries = 8

// NewStore wraps a Redis client. ttl bounds abandoned documents; zero keeps
// them forever.
func NewStore(client *goredis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
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
	return s.mutateDoc(ctx, docKey, func(doc map[string]any) (map[string]any, error) {
		return store.Patch(doc, fields, jsonValue), nil
	})
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	docKey, base, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	return s.mutateDoc(ctx, docKey, func(doc map[string]any) (map[string]any, error) {
		for key, value := range fields {
			jsonValue, err := store.ToJSONValue(value)
			if err != nil {
				return nil, fmt.Errorf("update %s/%s: %w", path, key, err)
			}
			rel := append(append([]string{}, base...), splitRel(key)...)
			doc = store.Patch(doc, rel, jsonValue)
		}
		return doc, nil
	})
}

// mutateDoc runs one read-patch-store cycle under WATCH; a conflicting
// write by another client fails the transaction and restarts the cycle, so
// sibling-subtree writes are never lost. A nil patched document deletes the
// key and publishes the tombstone.
func (s *Store) mutateDoc(ctx context.Context, docKey string, mutate func(map[string]any) (map[string]any, error)) error {
	key := s.key(docKey)
	for attempt := 0; attempt < txRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			var doc map[string]any
			raw, err := tx.Get(ctx, key).Result()
			switch {
			case err == goredis.Nil:
			case err != nil:
				return fmt.Errorf("load %s: %w", docKey, err)
			default:
				if err := json.Unmarshal([]byte(raw), &doc); err != nil {
					return fmt.Errorf("decode %s: %w", docKey, err)
				}
			}

			doc, err = mutate(doc)
			if err != nil {
				return err
			}
			if doc == nil {
				_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.Publish(ctx, s.channel(docKey), tombstone)
					return nil
				})
				return err
			}

			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode %s: %w", docKey, err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, data, s.ttl)
				pipe.Publish(ctx, s.channel(docKey), data)
				return nil
			})
			return err
		}, key)
		if err != goredis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("write %s: still conflicting after %d attempts", docKey, txRetries)
}

func (s *Store) ReadOnce(ctx context.Context, path string, dest any) (bool, error) {
	docKey, fields, err := store.SplitPath(path)
	if err != nil {
		return false, err
	}
	doc, ok, err := s.loadDoc(ctx, docKey)
	if err != nil || !ok {
		return false, err
	}
	value, ok := store.Lookup(doc, fields)
	if !ok {
		return false, nil
	}
	if dest == nil {
		return true, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	return true, nil
}

func (s *Store) Subscribe(ctx context.Context, path string, fn func(store.Event)) (store.Subscription, error) {
	docKey, _, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}

	pubsub := s.client.Subscribe(ctx, s.channel(docKey))
	// Force the SUBSCRIBE round trip so no published event is missed after
	// the initial snapshot.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	sub := &subscription{pubsub: pubsub}
	go func() {
		initial, err := s.currentEvent(ctx, docKey)
		if err != nil {
			log.Printf("redis store: initial read for %s: %v", docKey, err)
		} else {
			fn(initial)
		}
		for msg := range pubsub.Channel() {
			if msg.Payload == tombstone {
				fn(store.Event{})
				continue
			}
			fn(store.Event{Value: json.RawMessage(msg.Payload), Exists: true})
		}
	}()
	return sub, nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	return s.Write(ctx, path, nil)
}

func (s *Store) loadDoc(ctx context.Context, docKey string) (map[string]any, bool, error) {
	raw, err := s.client.Get(ctx, s.key(docKey)).Result()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", docKey, err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", docKey, err)
	}
	return doc, true, nil
}

func (s *Store) currentEvent(ctx context.Context, docKey string) (store.Event, error) {
	raw, err := s.client.Get(ctx, s.key(docKey)).Result()
	if err == goredis.Nil {
		return store.Event{}, nil
	}
	if err != nil {
		return store.Event{}, err
	}
	return store.Event{Value: json.RawMessage(raw), Exists: true}, nil
}

func (s *Store) key(docKey string) string {
	return keyPrefix + docKey
}

func (s *Store) channel(docKey string) string {
	return keyPrefix + "events:" + docKey
}

type subscription struct {
	pubsub *goredis.PubSub
	once   sync.Once
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		_ = s.pubsub.Close()
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
