package forecast

import "math"

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

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// slope returns the least-squares linear trend coefficient of xs against
// 0..n-1.
func slope(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	xm := float64(n-1) / 2
	ym := mean(xs)
	var num, den float64
	for i, y := range xs {
		dx := float64(i) - xm
		num += dx * (y - ym)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// correlation returns the Pearson correlation of two equal-length series,
// or 0 when either side is constant.
func correlation(xs, ys []float64) float64 {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return 0
	}
	xm, ym := mean(xs), mean(ys)
	var num, dx2, dy2 float64
	for i := range xs {
		dx := xs[i] - xm
		dy := ys[i] - ym
		num += dx * dy
		dx2 += dx * dx
		dy2 += dy * dy
	}
	if dx2 == 0 || dy2 == 0 {
		return 0
	}
	return num / math.Sqrt(dx2*dy2)
}

// seasonalPattern averages up to the last three whole seasonal cycles of xs
// into a centered (zero-mean) pattern of the given period.
func seasonalPattern(xs []float64, period int) []float64 {
	pattern := make([]float64, period)
	cycles := len(xs) / period
	if cycles == 0 {
		return pattern
	}
	if cycles > 3 {
		cycles = 3
	}
	start := len(xs) - cycles*period
	for c := 0; c < cycles; c++ {
		for i := 0; i < period; i++ {
			pattern[i] += xs[start+c*period+i]
		}
	}
	for i := range pattern {
		pattern[i] /= float64(cycles)
	}
	m := mean(pattern)
	for i := range pattern {
		pattern[i] -= m
	}
	return pattern
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
