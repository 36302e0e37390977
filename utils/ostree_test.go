package utils

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatTree(t *testing.T) {
	tr := NewOrderStatTree()
	_, ok := tr.Min()
	assert.False(t, ok)

	tr.Insert(0, 3)
	tr.Insert(2.5, 1)
	tr.Insert(1, 2)
	tr.Insert(7, 0)

	assert.Equal(t, 6, tr.Len())
	assert.Equal(t, 3, tr.Distinct())
	assert.Equal(t, 4.5, tr.Sum())

	n, s := tr.Less(1)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0.0, s)
	n, s = tr.Less(2)
	assert.Equal(t, 5, n)
	assert.Equal(t, 2.0, s)

	lo, _ := tr.Min()
	hi, _ := tr.Max()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 2.5, hi)

	assert.True(t, tr.Remove(2.5))
	assert.False(t, tr.Remove(2.5))
	assert.True(t, tr.Remove(0))
	assert.Equal(t, 4, tr.Len())
	assert.Equal(t, 2, tr.Distinct())
}

func TestOrderStatTreeAbsDeviation(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 9))
	tr := NewOrderStatTree()
	var elems []float64
	for range 300 {
		if len(elems) > 0 && rng.IntN(4) == 0 {
			i := rng.IntN(len(elems))
			require.True(t, tr.Remove(elems[i]))
			elems = append(elems[:i], elems[i+1:]...)
		} else {
			x := float64(rng.IntN(20))
			tr.Insert(x, 1)
			elems = append(elems, x)
		}

		x := float64(rng.IntN(25)) - 2
		want := 0.0
		for _, e := range elems {
			want += math.Abs(x - e)
		}
		require.Equal(t, len(elems), tr.Len())
		assert.InDelta(t, want, tr.AbsDeviation(x), 1e-9)
	}
}
