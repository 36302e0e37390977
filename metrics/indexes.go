package metrics

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GiniIndex returns the Gini coefficient of the values, in [0, 1].
// It is NaN for fewer than two values or a zero sum.
func GiniIndex(values []float64) float64 {
	n := len(values)
	if n <= 1 {
		return math.NaN()
	}
	sum := floats.Sum(values)
	if sum == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	acc := 0.0
	for i, x := range sorted {
		acc += float64(2*(i+1)-n-1) * x
	}
	return acc / (float64(n-1) * sum)
}

// sparseGini computes GiniIndex over n values of which only the non zero ones are given
func sparseGini(nonZero []float64, n int) float64 {
	if n <= 1 || len(nonZero) > n {
		return math.NaN()
	}
	sum := floats.Sum(nonZero)
	if sum == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(nonZero)
	slices.Sort(sorted)
	zeros := n - len(sorted)
	acc := 0.0
	for i, x := range sorted {
		acc += float64(2*(zeros+i+1)-n-1) * x
	}
	return acc / (float64(n-1) * sum)
}

// Entropy returns -sum(p log p) of the distribution proportional to values.
// It is NaN for a zero sum.
func Entropy(values []float64) float64 {
	sum := floats.Sum(values)
	if len(values) == 0 || sum == 0 {
		return math.NaN()
	}
	p := slices.Clone(values)
	floats.Scale(1/sum, p)
	return stat.Entropy(p)
}

// SmoothedKL returns KL(p || q) after adding one to every count of both
// distributions and normalizing them
func SmoothedKL(p, q []float64) float64 {
	if len(p) == 0 || len(p) != len(q) {
		return math.NaN()
	}
	ps, qs := slices.Clone(p), slices.Clone(q)
	floats.AddConst(1, ps)
	floats.AddConst(1, qs)
	floats.Scale(1/floats.Sum(ps), ps)
	floats.Scale(1/floats.Sum(qs), qs)
	// rounding can push identical distributions slightly below zero
	return math.Max(0, stat.KullbackLeibler(ps, qs))
}
