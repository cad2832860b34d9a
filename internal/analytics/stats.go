package analytics

import (
	"math"
	"sort"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev is the sample standard deviation (n-1 denominator)
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// quantileExclusive interpolates the p-th quantile of sorted data using the
// exclusive method: rank m = p*(n+1), linear interpolation between
// neighbouring order statistics, clamped to the data range.
func quantileExclusive(sorted []float64, p float64) float64 {
	n := len(sorted)
	m := p * float64(n+1)
	j := int(math.Floor(m))
	g := m - float64(j)

	if j < 1 {
		return sorted[0]
	}
	if j >= n {
		return sorted[n-1]
	}
	return sorted[j-1] + g*(sorted[j]-sorted[j-1])
}

// quartiles returns Q1, median and Q3 of the values. The input is copied
// and sorted; callers keep their ordering.
func quartiles(xs []float64) (q1, median, q3 float64) {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	q1 = quantileExclusive(sorted, 0.25)
	median = quantileExclusive(sorted, 0.50)
	q3 = quantileExclusive(sorted, 0.75)
	return q1, median, q3
}

// ranks assigns 1-based ranks with ties averaged
func ranks(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	out := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		// tied values i..j share the average of their positional ranks
		avg := float64(i+j+2) / 2.0
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

func pearson(x, y []float64) float64 {
	mx, my := mean(x), mean(y)
	var sxy, sxx, syy float64
	for i := range x {
		dx := x[i] - mx
		dy := y[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}

// spearman computes the rank correlation coefficient and a two-sided p-value
// via the Fisher transform with the 1.06 variance correction. Requires
// len(x) == len(y) and at least 4 points; callers enforce their own minimums.
func spearman(x, y []float64) (rho, p float64) {
	rho = pearson(ranks(x), ranks(y))

	// clamp against floating point drift before atanh
	if rho > 1 {
		rho = 1
	} else if rho < -1 {
		rho = -1
	}

	n := float64(len(x))
	if n <= 3 {
		return rho, 1
	}
	if math.Abs(rho) == 1 {
		return rho, 0
	}

	z := math.Sqrt((n-3)/1.06) * math.Atanh(rho)
	p = math.Erfc(math.Abs(z) / math.Sqrt2)
	return rho, p
}
