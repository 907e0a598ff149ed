package set

import (
	"encoding/json"
	"sort"

	"golang.org/x/exp/constraints"
)

// ------------------------------------------
// Generic Set implementation (thread-unsafe)
// ------------------------------------------

// Set represents a generic set of comparable items
type Set[T comparable] struct {
	items map[T]struct{}
}

// New creates a new Set
func New[T comparable](elems ...T) Set[T] {
	s := Set[T]{
		items: make(map[T]struct{}, len(elems)),
	}
	s.Append(elems...)
	return s
}

// Append inserts elements into the set
func (s Set[T]) Append(elems ...T) {
	for _, elem := range elems {
		s.items[elem] = struct{}{}
	}
}

// Remove deletes elements from the set
func (s Set[T]) Remove(elems ...T) {
	for _, elem := range elems {
		delete(s.items, elem)
	}
}

// Contains checks if an element is in the set
func (s Set[T]) Contains(elem T) bool {
	_, ok := s.items[elem]
	return ok
}

// Len returns the number of elements
func (s Set[T]) Len() int {
	return len(s.items)
}

// Values returns all elements in the set as an unsorted slice
func (s Set[T]) Values() []T {
	v := make([]T, 0, len(s.items))
	for elem := range s.items {
		v = append(v, elem)
	}
	return v
}

// Union adds every element of other to s in place.
func (s Set[T]) Union(other Set[T]) {
	for elem := range other.items {
		s.items[elem] = struct{}{}
	}
}

// Subtract removes every element of other from s in place.
func (s Set[T]) Subtract(other Set[T]) {
	for elem := range other.items {
		delete(s.items, elem)
	}
}

// Intersect returns a new set holding the elements present in both sets.
func (s Set[T]) Intersect(other Set[T]) Set[T] {
	small, large := s, other
	if small.Len() > large.Len() {
		small, large = large, small
	}
	out := New[T]()
	for elem := range small.items {
		if large.Contains(elem) {
			out.items[elem] = struct{}{}
		}
	}
	return out
}

// Difference returns a new set holding the elements of s that are not in other.
func (s Set[T]) Difference(other Set[T]) Set[T] {
	out := New[T]()
	for elem := range s.items {
		if !other.Contains(elem) {
			out.items[elem] = struct{}{}
		}
	}
	return out
}

// Clone returns a shallow copy of the set
func (s Set[T]) Clone() Set[T] {
	out := Set[T]{items: make(map[T]struct{}, len(s.items))}
	for elem := range s.items {
		out.items[elem] = struct{}{}
	}
	return out
}

// Ordered is a set of ordered elements that supports sorted Values
type Ordered[T constraints.Ordered] struct {
	Set[T]
}

// NewOrdered creates a new Ordered set
func NewOrdered[T constraints.Ordered](elems ...T) Ordered[T] {
	return Ordered[T]{
		Set: New[T](elems...),
	}
}

// Values returns all elements in the set as a sorted slice
func (s Ordered[T]) Values() []T {
	v := s.Set.Values()
	sort.Slice(v, func(i, j int) bool {
		return v[i] < v[j]
	})
	return v
}

// Clone returns a shallow copy of the set
func (s Ordered[T]) Clone() Ordered[T] {
	return Ordered[T]{Set: s.Set.Clone()}
}

// Difference returns a new ordered set holding the elements of s that are not in other.
func (s Ordered[T]) Difference(other Ordered[T]) Ordered[T] {
	return Ordered[T]{Set: s.Set.Difference(other.Set)}
}

// Intersect returns a new ordered set holding the elements present in both sets.
func (s Ordered[T]) Intersect(other Ordered[T]) Ordered[T] {
	return Ordered[T]{Set: s.Set.Intersect(other.Set)}
}

// MarshalJSON renders the set as a sorted array, JSON has no set type.
func (s Ordered[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON reads a JSON array. Duplicates collapse.
func (s *Ordered[T]) UnmarshalJSON(data []byte) error {
	var v []T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = NewOrdered[T](v...)
	return nil
}
