package model

import (
	"maps"
	"slices"
)

// Delivery is a piece reaching a user together with who sent it during the iteration
type Delivery struct {
	Piece   int   `msgpack:"p"`
	Senders []int `msgpack:"s"`
}

// Iteration holds the outcome of one simulation step. It is built once by
// an IterationBuilder and must not be changed afterwards.
type Iteration struct {
	Number    int   `msgpack:"n"`
	Timestamp int64 `msgpack:"ts"`

	// user -> pieces received for the first time
	Received map[int][]Delivery `msgpack:"r"`
	// user -> pieces the user already held and got again
	Rereceived map[int][]Delivery `msgpack:"rr"`
	// sender -> pieces transmitted
	Propagated map[int][]int `msgpack:"pr"`
}

// ReceivingUsers returns the users with at least one new piece, sorted
func (it *Iteration) ReceivingUsers() []int {
	return slices.Sorted(maps.Keys(it.Received))
}

// RereceivingUsers returns the users that got an already held piece again, sorted
func (it *Iteration) RereceivingUsers() []int {
	return slices.Sorted(maps.Keys(it.Rereceived))
}

// PropagatingUsers returns the users that transmitted something, sorted
func (it *Iteration) PropagatingUsers() []int {
	return slices.Sorted(maps.Keys(it.Propagated))
}

func (it *Iteration) NumReceived() int {
	n := 0
	for _, ds := range it.Received {
		n += len(ds)
	}
	return n
}

func (it *Iteration) NumRereceived() int {
	n := 0
	for _, ds := range it.Rereceived {
		n += len(ds)
	}
	return n
}

func (it *Iteration) NumPropagated() int {
	n := 0
	for _, ps := range it.Propagated {
		n += len(ps)
	}
	return n
}

// IterationBuilder collects the deliveries of one step
type IterationBuilder struct {
	number     int
	timestamp  int64
	received   map[int]map[int][]int // user -> piece -> senders
	rereceived map[int]map[int][]int
	propagated map[int][]int
}

func NewIterationBuilder(number int, timestamp int64) *IterationBuilder {
	return &IterationBuilder{
		number:     number,
		timestamp:  timestamp,
		received:   make(map[int]map[int][]int),
		rereceived: make(map[int]map[int][]int),
		propagated: make(map[int][]int),
	}
}

func addSender(m map[int]map[int][]int, user, piece, sender int) {
	byPiece, ok := m[user]
	if !ok {
		byPiece = make(map[int][]int)
		m[user] = byPiece
	}
	byPiece[piece] = append(byPiece[piece], sender)
}

// AddDelivery records the result of a UserState.Receive call.
// Later deliveries of a piece first received in this step stay in the received group.
func (b *IterationBuilder) AddDelivery(user, piece, sender int, result ReceptionResult) {
	if _, ok := b.received[user][piece]; ok {
		addSender(b.received, user, piece, sender)
		return
	}
	switch result {
	case NewReception:
		addSender(b.received, user, piece, sender)
	case Rereception:
		addSender(b.rereceived, user, piece, sender)
	}
}

// AddPropagated records that sender transmitted piece
func (b *IterationBuilder) AddPropagated(sender, piece int) {
	b.propagated[sender] = append(b.propagated[sender], piece)
}

func freeze(m map[int]map[int][]int) map[int][]Delivery {
	ret := make(map[int][]Delivery, len(m))
	for user, byPiece := range m {
		ds := make([]Delivery, 0, len(byPiece))
		for _, p := range slices.Sorted(maps.Keys(byPiece)) {
			senders := slices.Clone(byPiece[p])
			slices.Sort(senders)
			ds = append(ds, Delivery{Piece: p, Senders: senders})
		}
		ret[user] = ds
	}
	return ret
}

// Build produces the immutable iteration
func (b *IterationBuilder) Build() *Iteration {
	propagated := make(map[int][]int, len(b.propagated))
	for u, ps := range b.propagated {
		propagated[u] = slices.Clone(ps)
	}
	return &Iteration{
		Number:     b.number,
		Timestamp:  b.timestamp,
		Received:   freeze(b.received),
		Rereceived: freeze(b.rereceived),
		Propagated: propagated,
	}
}
