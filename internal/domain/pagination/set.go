package pagination

// Set is an insertion-ordered collection deduplicated by a caller-supplied key.
type Set[T any] struct {
	key   KeyFunc[T]
	seen  map[string]struct{}
	items []T
}

// NewSet returns an empty set using key for identity.
func NewSet[T any](key KeyFunc[T]) *Set[T] {
	return &Set[T]{
		key:  key,
		seen: make(map[string]struct{}),
	}
}

// Add appends the items whose key was not seen yet and returns how many were new.
func (s *Set[T]) Add(items ...T) int {
	added := 0
	for _, item := range items {
		k := s.key(item)
		if _, ok := s.seen[k]; ok {
			continue
		}
		s.seen[k] = struct{}{}
		s.items = append(s.items, item)
		added++
	}
	return added
}

// Len returns the number of unique items.
func (s *Set[T]) Len() int {
	return len(s.items)
}

// Items returns a copy of the unique items in insertion order.
func (s *Set[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Set[T]) clone() *Set[T] {
	c := &Set[T]{
		key:   s.key,
		seen:  make(map[string]struct{}, len(s.seen)),
		items: make([]T, len(s.items)),
	}
	for k := range s.seen {
		c.seen[k] = struct{}{}
	}
	copy(c.items, s.items)
	return c
}
