package data

import "slices"

// Index is a bijection between objects and the dense integer range [0, n).
type Index[T comparable] struct {
	objects []T
	ids     map[T]int
}

// NewIndex creates an empty index
func NewIndex[T comparable]() *Index[T] {
	return &Index[T]{
		objects: make([]T, 0),
		ids:     make(map[T]int),
	}
}

// NewIndexFrom creates an index holding the given objects, in order.
// Duplicates keep their first id.
func NewIndexFrom[T comparable](objects ...T) *Index[T] {
	idx := NewIndex[T]()
	for _, o := range objects {
		idx.Add(o)
	}
	return idx
}

// Add inserts obj if absent and returns its id
func (idx *Index[T]) Add(obj T) int {
	if id, ok := idx.ids[obj]; ok {
		return id
	}
	id := len(idx.objects)
	idx.objects = append(idx.objects, obj)
	idx.ids[obj] = id
	return id
}

// ID returns the id of obj, or -1 if it is not indexed
func (idx *Index[T]) ID(obj T) int {
	if id, ok := idx.ids[obj]; ok {
		return id
	}
	return -1
}

// Object returns the object with the given id
func (idx *Index[T]) Object(id int) (T, bool) {
	if id < 0 || id >= len(idx.objects) {
		var zero T
		return zero, false
	}
	return idx.objects[id], true
}

// Contains reports whether obj is indexed
func (idx *Index[T]) Contains(obj T) bool {
	_, ok := idx.ids[obj]
	return ok
}

// Len returns the number of indexed objects
func (idx *Index[T]) Len() int {
	return len(idx.objects)
}

// Objects returns a copy of the indexed objects, ordered by id
func (idx *Index[T]) Objects() []T {
	return slices.Clone(idx.objects)
}
