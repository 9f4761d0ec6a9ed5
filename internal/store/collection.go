package store

// Keyed is anything with a stable identity.
type Keyed interface {
	Key() string
}

// Placement decides where a new item lands in a collection.
type Placement int

const (
	Front Placement = iota
	Back
)

// Collection is an ordered list unique by Key. Every mutation returns a new
// Collection; the receiver is never modified, so snapshots handed to
// subscribers stay stable.
type Collection[T Keyed] struct {
	items []T
}

func NewCollection[T Keyed](items ...T) Collection[T] {
	var c Collection[T]
	for _, it := range items {
		c = c.Upsert(it, Back)
	}
	return c
}

func (c Collection[T]) Len() int { return len(c.items) }

// Index returns the position of key, or -1.
func (c Collection[T]) Index(key string) int {
	for i, it := range c.items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}

func (c Collection[T]) Has(key string) bool { return c.Index(key) >= 0 }

func (c Collection[T]) Get(key string) (T, bool) {
	if i := c.Index(key); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// Upsert replaces an existing item in place, or inserts at the given end.
func (c Collection[T]) Upsert(item T, at Placement) Collection[T] {
	if i := c.Index(item.Key()); i >= 0 {
		next := make([]T, len(c.items))
		copy(next, c.items)
		next[i] = item
		return Collection[T]{items: next}
	}

	next := make([]T, 0, len(c.items)+1)
	if at == Front {
		next = append(next, item)
		next = append(next, c.items...)
	} else {
		next = append(next, c.items...)
		next = append(next, item)
	}
	return Collection[T]{items: next}
}

// Remove drops key if present. Removing a missing key returns c unchanged.
func (c Collection[T]) Remove(key string) Collection[T] {
	i := c.Index(key)
	if i < 0 {
		return c
	}
	next := make([]T, 0, len(c.items)-1)
	next = append(next, c.items[:i]...)
	next = append(next, c.items[i+1:]...)
	return Collection[T]{items: next}
}

// Items returns a copy of the items in order.
func (c Collection[T]) Items() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c Collection[T]) Keys() []string {
	keys := make([]string, len(c.items))
	for i, it := range c.items {
		keys[i] = it.Key()
	}
	return keys
}
