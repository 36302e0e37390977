package propagation

import (
	"math/rand/v2"
	"slices"

	"diffusion-sim/data"
)

// Mechanism decides who receives what a user transmits
type Mechanism interface {
	// Reset is called sequentially once per iteration, before any delivery
	Reset(d *data.Data, iteration int, rng *rand.Rand)

	// Receivers returns the users reached by sender in the current iteration, sorted
	Receivers(sender int, d *data.Data) []int
}

// AllNeighbors sends to every neighbour of the sender in the given orientation.
// With Out, a line u -> v lets v receive what u transmits.
type AllNeighbors struct {
	Orientation data.Orientation
}

func _() Mechanism {
	return &AllNeighbors{}
}

func NewAllNeighbors(o data.Orientation) *AllNeighbors {
	return &AllNeighbors{Orientation: o}
}

func (m *AllNeighbors) Reset(d *data.Data, iteration int, rng *rand.Rand) {
}

func (m *AllNeighbors) Receivers(sender int, d *data.Data) []int {
	return d.Graph.Neighbors(sender, m.Orientation)
}

// contacts remembers when each user last reached each of its neighbours
type contacts struct {
	waitTime int
	last     []map[int]int // user -> neighbour -> iteration
}

func (c *contacts) init(n int) {
	if c.last != nil {
		return
	}
	c.last = make([]map[int]int, n)
	for i := range c.last {
		c.last[i] = make(map[int]int)
	}
}

// pick chooses a random neighbour of u not reached during the last waitTime
// iterations and records the contact; -1 when there is none
func (c *contacts) pick(d *data.Data, u int, o data.Orientation, iteration int, rng *rand.Rand) int {
	neighbors := d.Graph.Neighbors(u, o)
	candidates := make([]int, 0, len(neighbors))
	for _, v := range neighbors {
		if last, ok := c.last[u][v]; !ok || iteration-last > c.waitTime {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return -1
	}
	v := candidates[rng.IntN(len(candidates))]
	c.last[u][v] = iteration
	return v
}

// Push sends to a single random neighbour per iteration, skipping the
// neighbours contacted during the last WaitTime iterations
type Push struct {
	WaitTime    int
	Orientation data.Orientation

	contacts contacts
	current  []int
}

func _() Mechanism {
	return &Push{}
}

func NewPush(waitTime int, o data.Orientation) *Push {
	return &Push{WaitTime: waitTime, Orientation: o}
}

func (m *Push) Reset(d *data.Data, iteration int, rng *rand.Rand) {
	n := d.NumUsers()
	m.contacts.waitTime = m.WaitTime
	m.contacts.init(n)
	if m.current == nil {
		m.current = make([]int, n)
	}
	for u := range n {
		m.current[u] = m.contacts.pick(d, u, m.Orientation, iteration, rng)
	}
}

func (m *Push) Receivers(sender int, d *data.Data) []int {
	if sender < 0 || sender >= len(m.current) || m.current[sender] < 0 {
		return nil
	}
	return []int{m.current[sender]}
}

// Pull lets every user ask a single random neighbour per iteration, skipping
// the neighbours asked during the last WaitTime iterations. Whatever the
// neighbour transmits reaches every user that asked it.
type Pull struct {
	WaitTime    int
	Orientation data.Orientation

	contacts contacts
	askedBy  [][]int
}

func _() Mechanism {
	return &Pull{}
}

func NewPull(waitTime int, o data.Orientation) *Pull {
	return &Pull{WaitTime: waitTime, Orientation: o}
}

func (m *Pull) Reset(d *data.Data, iteration int, rng *rand.Rand) {
	n := d.NumUsers()
	m.contacts.waitTime = m.WaitTime
	m.contacts.init(n)
	m.askedBy = make([][]int, n)
	for u := range n {
		if v := m.contacts.pick(d, u, m.Orientation, iteration, rng); v >= 0 {
			// ascending u keeps every list sorted
			m.askedBy[v] = append(m.askedBy[v], u)
		}
	}
}

func (m *Pull) Receivers(sender int, d *data.Data) []int {
	if sender < 0 || sender >= len(m.askedBy) {
		return nil
	}
	return m.askedBy[sender]
}

// PullPush pairs every user with a single random neighbour per iteration;
// both ends of a pair reach each other
type PullPush struct {
	WaitTime    int
	Orientation data.Orientation

	contacts contacts
	pairs    [][]int
}

func _() Mechanism {
	return &PullPush{}
}

func NewPullPush(waitTime int, o data.Orientation) *PullPush {
	return &PullPush{WaitTime: waitTime, Orientation: o}
}

func (m *PullPush) Reset(d *data.Data, iteration int, rng *rand.Rand) {
	n := d.NumUsers()
	m.contacts.waitTime = m.WaitTime
	m.contacts.init(n)
	m.pairs = make([][]int, n)
	for u := range n {
		if v := m.contacts.pick(d, u, m.Orientation, iteration, rng); v >= 0 {
			m.pairs[u] = append(m.pairs[u], v)
			m.pairs[v] = append(m.pairs[v], u)
		}
	}
	for u, ps := range m.pairs {
		slices.Sort(ps)
		m.pairs[u] = slices.Compact(ps)
	}
}

func (m *PullPush) Receivers(sender int, d *data.Data) []int {
	if sender < 0 || sender >= len(m.pairs) {
		return nil
	}
	return m.pairs[sender]
}
