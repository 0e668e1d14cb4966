// Package store defines the shared mutable store the multiplayer flow is
// synchronized through: slash-separated paths addressing JSON documents,
// last-write-wins updates, and push subscriptions that deliver the full
// document value on every change.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrBadPath is returned for paths that do not address a document.
var ErrBadPath = errors.New("store: path must have at least two segments")

// Event is one subscription notification. Value holds the full current
// document; Exists is false when the document has been removed, in which
// case Value is nil.
type Event struct {
	Value  json.RawMessage
	Exists bool
}

// Subscription is a handle to an active subscription.
type Subscription interface {
	// Cancel stops delivery. Safe to call more than once.
	Cancel()
}

// Store is the shared mutable store interface. A path's first two segments
// name the document ("rooms/ABC123"); any further segments address fields
// inside it. Writing nil deletes the addressed field. Updates at a parent
// path are not atomic across sibling keys from the perspective of other
// readers.
type Store interface {
	// Write replaces the value at path.
	Write(ctx context.Context, path string, value any) error
	// Update merges fields into the value at path. Field keys may themselves
	// be slash-separated relative paths; nil values delete fields.
	Update(ctx context.Context, path string, fields map[string]any) error
	// ReadOnce reads the current value at path into dest, reporting whether
	// anything was present.
	ReadOnce(ctx context.Context, path string, dest any) (bool, error)
	// Subscribe registers fn for the document addressed by path. The current
	// value (or its absence) is delivered first, then every subsequent change.
	Subscribe(ctx context.Context, path string, fn func(Event)) (Subscription, error)
	// Remove deletes the value at path.
	Remove(ctx context.Context, path string) error
}

// SplitPath splits a slash path into the document key and the field segments
// below it.
func SplitPath(path string) (docKey string, fields []string, err error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) < 2 || segs[0] == "" || segs[1] == "" {
		return "", nil, ErrBadPath
	}
	return segs[0] + "/" + segs[1], segs[2:], nil
}

// ToJSONValue converts an arbitrary value into the generic JSON form
// (map[string]any / []any / primitives) documents are patched with.
func ToJSONValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Patch sets value at the field path inside doc, creating intermediate
// objects as needed. A nil value deletes the field. An empty field path
// replaces the whole document: the returned map is the new root.
func Patch(doc map[string]any, fields []string, value any) map[string]any {
	if len(fields) == 0 {
		if value == nil {
			return nil
		}
		if m, ok := value.(map[string]any); ok {
			return m
		}
		// Document roots are always objects.
		return map[string]any{"value": value}
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	node := doc
	for _, seg := range fields[:len(fields)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	last := fields[len(fields)-1]
	if value == nil {
		delete(node, last)
	} else {
		node[last] = value
	}
	return doc
}

// Lookup resolves the field path inside doc.
func Lookup(doc map[string]any, fields []string) (any, bool) {
	var cur any = doc
	for _, seg := range fields {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
