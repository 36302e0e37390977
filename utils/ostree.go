package utils

import "math/rand/v2"

type osNode struct {
	key   float64
	mult  int
	prio  uint64
	count int     // elements in subtree, multiplicities included
	sum   float64 // sum of elements in subtree
	left  *osNode
	right *osNode
}

func (n *osNode) cnt() int {
	if n == nil {
		return 0
	}
	return n.count
}

func (n *osNode) total() float64 {
	if n == nil {
		return 0
	}
	return n.sum
}

func (n *osNode) update() {
	n.count = n.left.cnt() + n.right.cnt() + n.mult
	n.sum = n.left.total() + n.right.total() + n.key*float64(n.mult)
}

// OrderStatTree is a multiset of float64 kept in a treap augmented with
// subtree counts and sums, so rank and prefix-sum queries are O(log distinct values).
type OrderStatTree struct {
	root *osNode
	rng  *rand.Rand
}

func NewOrderStatTree() *OrderStatTree {
	return &OrderStatTree{rng: rand.New(rand.NewPCG(0x5eed, 0x7ee))}
}

// Len returns the number of elements, multiplicities included
func (t *OrderStatTree) Len() int {
	return t.root.cnt()
}

// Sum returns the sum of every element
func (t *OrderStatTree) Sum() float64 {
	return t.root.total()
}

// Distinct returns the number of distinct keys
func (t *OrderStatTree) Distinct() int {
	var walk func(n *osNode) int
	walk = func(n *osNode) int {
		if n == nil {
			return 0
		}
		return 1 + walk(n.left) + walk(n.right)
	}
	return walk(t.root)
}

func rotateRight(n *osNode) *osNode {
	l := n.left
	n.left = l.right
	l.right = n
	n.update()
	l.update()
	return l
}

func rotateLeft(n *osNode) *osNode {
	r := n.right
	n.right = r.left
	r.left = n
	n.update()
	r.update()
	return r
}

// Insert adds k times the value x
func (t *OrderStatTree) Insert(x float64, k int) {
	if k <= 0 {
		return
	}
	t.root = t.insert(t.root, x, k)
}

func (t *OrderStatTree) insert(n *osNode, x float64, k int) *osNode {
	if n == nil {
		nn := &osNode{key: x, mult: k, prio: t.rng.Uint64()}
		nn.update()
		return nn
	}
	switch {
	case x == n.key:
		n.mult += k
	case x < n.key:
		n.left = t.insert(n.left, x, k)
		if n.left.prio > n.prio {
			return rotateRight(n)
		}
	default:
		n.right = t.insert(n.right, x, k)
		if n.right.prio > n.prio {
			return rotateLeft(n)
		}
	}
	n.update()
	return n
}

// Remove deletes one occurrence of x. It returns false if x is absent.
func (t *OrderStatTree) Remove(x float64) bool {
	var ok bool
	t.root, ok = t.remove(t.root, x)
	return ok
}

func (t *OrderStatTree) remove(n *osNode, x float64) (*osNode, bool) {
	if n == nil {
		return nil, false
	}
	var ok bool
	switch {
	case x < n.key:
		n.left, ok = t.remove(n.left, x)
	case x > n.key:
		n.right, ok = t.remove(n.right, x)
	default:
		ok = true
		if n.mult > 1 {
			n.mult--
		} else {
			return merge(n.left, n.right), true
		}
	}
	n.update()
	return n, ok
}

func merge(a, b *osNode) *osNode {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.prio > b.prio {
		a.right = merge(a.right, b)
		a.update()
		return a
	}
	b.left = merge(a, b.left)
	b.update()
	return b
}

// Less returns how many elements are strictly smaller than x, and their sum
func (t *OrderStatTree) Less(x float64) (int, float64) {
	count, sum := 0, 0.0
	n := t.root
	for n != nil {
		if x <= n.key {
			n = n.left
		} else {
			count += n.left.cnt() + n.mult
			sum += n.left.total() + n.key*float64(n.mult)
			n = n.right
		}
	}
	return count, sum
}

// AbsDeviation returns the sum of |x - e| over every element e
func (t *OrderStatTree) AbsDeviation(x float64) float64 {
	cl, sl := t.Less(x)
	n, s := t.Len(), t.Sum()
	return (x*float64(cl) - sl) + ((s - sl) - x*float64(n-cl))
}

// Min returns the smallest element
func (t *OrderStatTree) Min() (float64, bool) {
	n := t.root
	if n == nil {
		return 0, false
	}
	for n.left != nil {
		n = n.left
	}
	return n.key, true
}

// Max returns the largest element
func (t *OrderStatTree) Max() (float64, bool) {
	n := t.root
	if n == nil {
		return 0, false
	}
	for n.right != nil {
		n = n.right
	}
	return n.key, true
}
