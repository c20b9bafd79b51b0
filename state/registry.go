package state

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/google/btree"
)

var (
	ErrDuplicateKey   = errors.New("state key already registered")
	ErrDuplicateState = errors.New("state already registered under another key")
	ErrNilState       = errors.New("nil state")
	ErrRegistryFrozen = errors.New("state registry is frozen")

	// ErrIncomparableState is returned for states that cannot be compared by
	// identity, such as struct values holding slices or maps.
	ErrIncomparableState = errors.New("state is not comparable")
)

// Entry is a state together with its ordering key.
type Entry struct {
	Key   int
	State State
}

func entryLess(a, b Entry) bool {
	return a.Key < b.Key
}

// Registry holds the states of a minigame ordered by ascending key.
//
// Writes are not safe for concurrent use. Once frozen the registry is
// read-only and may be shared freely.
type Registry struct {
	tree   *btree.BTreeG[Entry]
	keys   map[State]int
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tree: btree.NewG(8, entryLess),
		keys: make(map[State]int),
	}
}

// Put registers s under key. s must be comparable; pointer types always are.
func (r *Registry) Put(key int, s State) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	if s == nil {
		return ErrNilState
	}
	if !hashable(s) {
		return fmt.Errorf("%w: %T", ErrIncomparableState, s)
	}
	if existing, ok := r.tree.Get(Entry{Key: key}); ok {
		return fmt.Errorf("%w: %d (%s)", ErrDuplicateKey, key, existing.State.ID())
	}
	if other, ok := r.keys[s]; ok {
		return fmt.Errorf("%w: %s at %d", ErrDuplicateState, s.ID(), other)
	}
	r.tree.ReplaceOrInsert(Entry{Key: key, State: s})
	r.keys[s] = key
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.frozen = true
}

func (r *Registry) Frozen() bool {
	return r.frozen
}

func (r *Registry) Len() int {
	return r.tree.Len()
}

// Get returns the state registered under key.
func (r *Registry) Get(key int) (State, bool) {
	e, ok := r.tree.Get(Entry{Key: key})
	if !ok {
		return nil, false
	}
	return e.State, true
}

// KeyOf returns the key s is registered under.
func (r *Registry) KeyOf(s State) (int, bool) {
	if s == nil || !hashable(s) {
		return 0, false
	}
	key, ok := r.keys[s]
	return key, ok
}

func (r *Registry) Contains(s State) bool {
	_, ok := r.KeyOf(s)
	return ok
}

// First returns the entry with the smallest key.
func (r *Registry) First() (Entry, bool) {
	return r.tree.Min()
}

// Last returns the entry with the largest key.
func (r *Registry) Last() (Entry, bool) {
	return r.tree.Max()
}

// Next returns the entry with the smallest key strictly greater than key.
// Keys need not be contiguous.
func (r *Registry) Next(key int) (Entry, bool) {
	if key == math.MaxInt {
		return Entry{}, false
	}
	var next Entry
	found := false
	r.tree.AscendGreaterOrEqual(Entry{Key: key + 1}, func(e Entry) bool {
		next, found = e, true
		return false
	})
	return next, found
}

// Entries returns all entries in ascending key order.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, 0, r.tree.Len())
	r.tree.Ascend(func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries
}

func hashable(s State) bool {
	return reflect.ValueOf(s).Comparable()
}
