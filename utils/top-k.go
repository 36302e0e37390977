package utils

import "math"

// ValIdx is a value and its position in the scanned slice
type ValIdx struct {
	Val   float64
	Index int
}

// less orders the heap: smaller values first, and on ties the larger index,
// so the smaller index survives
func (a ValIdx) less(b ValIdx) bool {
	if a.Val != b.Val {
		return a.Val < b.Val
	}
	return a.Index > b.Index
}

// TopKFinder finds the K largest values of a slice with a min-heap of size K.
// The buffers are reused between calls.
type TopKFinder struct {
	minHeap []ValIdx
	indices []int
}

func NewTopKFinder(maxK int) *TopKFinder {
	return &TopKFinder{
		minHeap: make([]ValIdx, 0, maxK),
		indices: make([]int, 0, maxK),
	}
}

// FindTopK returns the indices of the k largest values of nums, NaN values skipped.
// The returned slice is owned by the finder until the next call.
func (f *TopKFinder) FindTopK(nums []float64, k int) []int {
	f.minHeap = f.minHeap[:0]
	f.indices = f.indices[:0]
	if k <= 0 {
		return f.indices
	}

	for i, x := range nums {
		if math.IsNaN(x) {
			continue
		}
		v := ValIdx{x, i}
		if len(f.minHeap) < k {
			f.minHeap = append(f.minHeap, v)
			f.siftUp(len(f.minHeap) - 1)
			continue
		}
		if f.minHeap[0].less(v) {
			f.minHeap[0] = v
			f.siftDown(0, len(f.minHeap)-1)
		}
	}

	for _, v := range f.minHeap {
		f.indices = append(f.indices, v.Index)
	}
	return f.indices
}

func (f *TopKFinder) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !f.minHeap[i].less(f.minHeap[parent]) {
			return
		}
		f.minHeap[i], f.minHeap[parent] = f.minHeap[parent], f.minHeap[i]
		i = parent
	}
}

func (f *TopKFinder) siftDown(root, end int) {
	for {
		child := root*2 + 1
		if child > end {
			return
		}
		if child+1 <= end && f.minHeap[child+1].less(f.minHeap[child]) {
			child++
		}
		if !f.minHeap[child].less(f.minHeap[root]) {
			return
		}
		f.minHeap[root], f.minHeap[child] = f.minHeap[child], f.minHeap[root]
		root = child
	}
}

// SortIndices orders the last result by descending value, lower index first on ties
func (f *TopKFinder) SortIndices(nums []float64) {
	// k is usually small
	for i := 1; i < len(f.indices); i++ {
		for j := i; j > 0; j-- {
			a, b := ValIdx{nums[f.indices[j]], f.indices[j]}, ValIdx{nums[f.indices[j-1]], f.indices[j-1]}
			if !b.less(a) {
				break
			}
			f.indices[j], f.indices[j-1] = f.indices[j-1], f.indices[j]
		}
	}
}
