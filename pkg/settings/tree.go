package settings

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

var (
	// ErrNotMapping is returned when a path walks through a value that is not a mapping
	ErrNotMapping = errors.New("settings: value is not a mapping")

	// ErrNotSequence is returned when appending to a value that is not a sequence
	ErrNotSequence = errors.New("settings: value is not a sequence")

	// ErrAliasExpansion is returned when a document's aliases form a cycle or expand too far
	ErrAliasExpansion = errors.New("settings: alias cycle or expansion limit exceeded")

	// ErrEmptyPath is returned when a mutation is given no path
	ErrEmptyPath = errors.New("settings: empty path")
)

// Tree is an ordered mapping from string keys to heterogeneous values.
//
// Values are scalars (string, bool, int, float64, nil), nested *Tree
// mappings, or ordered []any sequences. Keys keep their insertion order.
type Tree struct {
	keys   []string
	values map[string]any
}

// New creates an empty settings tree
func New() *Tree {
	return &Tree{values: make(map[string]any)}
}

// Len returns the number of keys at this level
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Keys returns the keys at this level in insertion order
func (t *Tree) Keys() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Has reports whether key exists at this level
func (t *Tree) Has(key string) bool {
	if t == nil {
		return false
	}
	_, ok := t.values[key]
	return ok
}

// Lookup returns the value stored at path
func (t *Tree) Lookup(path ...string) (any, bool) {
	if t == nil || len(path) == 0 {
		return nil, false
	}
	cur := t
	for i, key := range path {
		v, ok := cur.values[key]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return v, true
		}
		next, ok := v.(*Tree)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// Get returns the value stored at path, or nil when absent
func (t *Tree) Get(path ...string) any {
	v, _ := t.Lookup(path...)
	return v
}

// String returns the string stored at path, or "" when absent or not a string
func (t *Tree) String(path ...string) string {
	s, _ := t.Get(path...).(string)
	return s
}

// Bool returns the bool stored at path, or false when absent or not a bool
func (t *Tree) Bool(path ...string) bool {
	b, _ := t.Get(path...).(bool)
	return b
}

// Subtree returns the mapping stored at path
func (t *Tree) Subtree(path ...string) (*Tree, bool) {
	if len(path) == 0 {
		return t, t != nil
	}
	v, ok := t.Lookup(path...)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*Tree)
	return sub, ok
}

// Sequence returns the sequence stored at path
func (t *Tree) Sequence(path ...string) ([]any, bool) {
	v, ok := t.Lookup(path...)
	if !ok {
		return nil, false
	}
	seq, ok := v.([]any)
	return seq, ok
}

// Set stores value at path, creating intermediate mappings as needed.
// Existing leaves are overwritten; nothing is ever removed.
func (t *Tree) Set(value any, path ...string) error {
	parent, key, err := t.parentOf(path)
	if err != nil {
		return err
	}
	parent.put(key, normalize(value))
	return nil
}

// Put stores value under key of t itself and returns t. Unlike Set it
// cannot fail, which suits building fresh trees.
func (t *Tree) Put(key string, value any) *Tree {
	t.put(key, normalize(value))
	return t
}

// Append adds value to the end of the sequence at path, creating it when absent
func (t *Tree) Append(value any, path ...string) error {
	return t.appendValue(value, false, path)
}

// AppendUnique is like Append but leaves the sequence untouched when an
// equal value is already present
func (t *Tree) AppendUnique(value any, path ...string) error {
	return t.appendValue(value, true, path)
}

func (t *Tree) appendValue(value any, unique bool, path []string) error {
	parent, key, err := t.parentOf(path)
	if err != nil {
		return err
	}
	value = normalize(value)

	existing, ok := parent.values[key]
	if !ok {
		parent.put(key, []any{value})
		return nil
	}
	seq, ok := existing.([]any)
	if !ok {
		return fmt.Errorf("%w at %v", ErrNotSequence, path)
	}
	if unique {
		for _, item := range seq {
			if valuesEqual(item, value) {
				return nil
			}
		}
	}
	parent.values[key] = append(seq, value)
	return nil
}

// parentOf walks to the mapping that holds the last path element,
// creating missing intermediate mappings.
func (t *Tree) parentOf(path []string) (*Tree, string, error) {
	if len(path) == 0 {
		return nil, "", ErrEmptyPath
	}
	cur := t
	for i, key := range path[:len(path)-1] {
		v, ok := cur.values[key]
		if !ok {
			next := New()
			cur.put(key, next)
			cur = next
			continue
		}
		next, ok := v.(*Tree)
		if !ok {
			return nil, "", fmt.Errorf("%w at %v", ErrNotMapping, path[:i+1])
		}
		cur = next
	}
	return cur, path[len(path)-1], nil
}

func (t *Tree) put(key string, value any) {
	if t.values == nil {
		t.values = make(map[string]any)
	}
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Clone returns a deep copy of the tree
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	out := &Tree{
		keys:   make([]string, len(t.keys)),
		values: make(map[string]any, len(t.values)),
	}
	copy(out.keys, t.keys)
	for k, v := range t.values {
		out.values[k] = cloneValue(v)
	}
	return out
}

// Equal reports whether two trees hold the same keys, in the same order,
// with equal values
func (t *Tree) Equal(other *Tree) bool {
	if t == nil || other == nil {
		return t.Len() == 0 && other.Len() == 0
	}
	if len(t.keys) != len(other.keys) {
		return false
	}
	for i, k := range t.keys {
		if other.keys[i] != k {
			return false
		}
		if !valuesEqual(t.values[k], other.values[k]) {
			return false
		}
	}
	return true
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case *Tree:
		return vv.Clone()
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case *Tree:
		bv, ok := b.(*Tree)
		return ok && av.Equal(bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

// normalize converts common Go shapes into the tree's value model.
// Plain maps are converted with sorted keys since they carry no order.
func normalize(v any) any {
	switch vv := v.(type) {
	case *Tree, nil, string, bool, int, float64:
		return v
	case int64:
		return int(vv)
	case int32:
		return int(vv)
	case float32:
		return float64(vv)
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = normalize(item)
		}
		return out
	case []string:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = item
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t := New()
		for _, k := range keys {
			t.put(k, normalize(vv[k]))
		}
		return t
	case map[string]string:
		m := make(map[string]any, len(vv))
		for k, s := range vv {
			m[k] = s
		}
		return normalize(m)
	default:
		return v
	}
}
