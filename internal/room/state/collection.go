// Package state provides the replicated room state container: two keyed
// collections (entities and users) that notify listeners on every mutation.
//
// A Store is owned by exactly one room loop and is not safe for concurrent use.
package state

// ChangeKind describes what happened to a key in a collection.
type ChangeKind int

const (
	// Added means the key did not exist before the mutation.
	Added ChangeKind = iota
	// Replaced means an existing value was overwritten or mutated in place.
	Replaced
	// Removed means the key was deleted.
	Removed
)

// String returns the lower-case name of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Replaced:
		return "replaced"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is delivered to listeners after each mutation.
type Change struct {
	Collection string
	Key        string
	Kind       ChangeKind
}

// Listener observes collection mutations.
type Listener func(Change)

// Collection is an insertion-ordered keyed container with change notification.
type Collection[T any] struct {
	name      string
	items     map[string]T
	keys      []string
	listeners []Listener
}

// NewCollection creates an empty named collection.
func NewCollection[T any](name string) *Collection[T] {
	return &Collection[T]{
		name:  name,
		items: make(map[string]T),
	}
}

// Name returns the collection name used in Change events.
func (c *Collection[T]) Name() string {
	return c.name
}

// Get returns the value stored under key.
func (c *Collection[T]) Get(key string) (T, bool) {
	v, ok := c.items[key]
	return v, ok
}

// Has reports whether key is present.
func (c *Collection[T]) Has(key string) bool {
	_, ok := c.items[key]
	return ok
}

// Len returns the number of stored values.
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// Set stores v under key and notifies listeners.
//
// Postcondition: Has(key) is true; listeners receive Added or Replaced.
func (c *Collection[T]) Set(key string, v T) {
	kind := Replaced
	if _, ok := c.items[key]; !ok {
		kind = Added
		c.keys = append(c.keys, key)
	}
	c.items[key] = v
	c.notify(key, kind)
}

// Insert stores v under key only if key is absent.
//
// Postcondition: Returns false and leaves the collection untouched if key exists.
func (c *Collection[T]) Insert(key string, v T) bool {
	if _, ok := c.items[key]; ok {
		return false
	}
	c.Set(key, v)
	return true
}

// Delete removes key. Returns false if it was absent.
func (c *Collection[T]) Delete(key string) bool {
	if _, ok := c.items[key]; !ok {
		return false
	}
	delete(c.items, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
	c.notify(key, Removed)
	return true
}

// Touch notifies listeners that the value under key was mutated in place.
// Returns false if key is absent.
func (c *Collection[T]) Touch(key string) bool {
	if _, ok := c.items[key]; !ok {
		return false
	}
	c.notify(key, Replaced)
	return true
}

// Range calls fn for each entry in insertion order until fn returns false.
// fn must not add or delete keys.
func (c *Collection[T]) Range(fn func(key string, v T) bool) {
	for _, k := range c.keys {
		if !fn(k, c.items[k]) {
			return
		}
	}
}

// Keys returns a copy of the keys in insertion order.
func (c *Collection[T]) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// OnChange registers l to receive every subsequent mutation.
func (c *Collection[T]) OnChange(l Listener) {
	c.listeners = append(c.listeners, l)
}

func (c *Collection[T]) notify(key string, kind ChangeKind) {
	ch := Change{Collection: c.name, Key: key, Kind: kind}
	for _, l := range c.listeners {
		l(ch)
	}
}
