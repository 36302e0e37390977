package data

import (
	"cmp"
	"slices"
)

// Pair is an (id, value) entry of a relation row or column
type Pair[V any] struct {
	ID    int
	Value V
}

// Relation is a sparse store of (first, second) -> value.
// Rows and columns are kept in both directions so either side can be queried.
type Relation[V any] struct {
	bySecond map[int]map[int]V // second -> first -> value
	byFirst  map[int]map[int]V // first -> second -> value
	size     int
}

// NewRelation creates an empty relation
func NewRelation[V any]() *Relation[V] {
	return &Relation[V]{
		byFirst:  make(map[int]map[int]V),
		bySecond: make(map[int]map[int]V),
	}
}

// Add stores a new pair. It returns false if the pair already exists.
func (r *Relation[V]) Add(first, second int, value V) bool {
	if r.Contains(first, second) {
		return false
	}
	r.set(first, second, value)
	r.size++
	return true
}

// Update overwrites the value of an existing pair. It returns false if the pair does not exist.
func (r *Relation[V]) Update(first, second int, value V) bool {
	if !r.Contains(first, second) {
		return false
	}
	r.set(first, second, value)
	return true
}

func (r *Relation[V]) set(first, second int, value V) {
	row, ok := r.byFirst[first]
	if !ok {
		row = make(map[int]V)
		r.byFirst[first] = row
	}
	row[second] = value

	col, ok := r.bySecond[second]
	if !ok {
		col = make(map[int]V)
		r.bySecond[second] = col
	}
	col[first] = value
}

// Value returns the value stored for the pair
func (r *Relation[V]) Value(first, second int) (V, bool) {
	v, ok := r.byFirst[first][second]
	return v, ok
}

// Contains reports whether the pair is stored
func (r *Relation[V]) Contains(first, second int) bool {
	_, ok := r.byFirst[first][second]
	return ok
}

// Seconds returns the elements related to first, sorted by id
func (r *Relation[V]) Seconds(first int) []Pair[V] {
	return sortedPairs(r.byFirst[first])
}

// Firsts returns the elements related to second, sorted by id
func (r *Relation[V]) Firsts(second int) []Pair[V] {
	return sortedPairs(r.bySecond[second])
}

// NumSeconds returns how many elements are related to first
func (r *Relation[V]) NumSeconds(first int) int {
	return len(r.byFirst[first])
}

// NumFirsts returns how many elements are related to second
func (r *Relation[V]) NumFirsts(second int) int {
	return len(r.bySecond[second])
}

// Len returns the number of stored pairs
func (r *Relation[V]) Len() int {
	return r.size
}

func sortedPairs[V any](m map[int]V) []Pair[V] {
	if len(m) == 0 {
		return nil
	}
	ret := make([]Pair[V], 0, len(m))
	for id, v := range m {
		ret = append(ret, Pair[V]{ID: id, Value: v})
	}
	slices.SortFunc(ret, func(a, b Pair[V]) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return ret
}
