// Package quality compares volumes or projection sets, typically a phantom
// with its reprojection or a reference with a candidate result.
package quality

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics holds the comparison of a candidate against a reference.
type Metrics struct {
	// RMSE is the root mean square error.
	RMSE float64

	// NRMSE is RMSE divided by the dynamic range of the reference.
	NRMSE float64

	// Correlation is the Pearson correlation coefficient.
	Correlation float64

	// MI is the mutual information under a joint Gaussian model, in nats.
	// Identical inputs give +Inf.
	MI float64

	// EntropyDiff is the absolute difference of 256-bin histogram entropies.
	EntropyDiff float64

	// SSIM is the global structural similarity index, with the dynamic range
	// taken from the reference.
	SSIM float64
}

// Compare computes every metric. Both slices must have the same non-zero
// length.
func Compare(reference, candidate []float64) (Metrics, error) {
	n := len(reference)
	if n == 0 || n != len(candidate) {
		return Metrics{}, fmt.Errorf("cannot compare %d values with %d", n, len(candidate))
	}

	var m Metrics
	m.RMSE = floats.Distance(reference, candidate, 2) / math.Sqrt(float64(n))
	if span := floats.Max(reference) - floats.Min(reference); span > 0 {
		m.NRMSE = m.RMSE / span
	}
	m.Correlation = correlation(reference, candidate)
	m.MI = mutualInformation(m.Correlation)
	m.EntropyDiff = math.Abs(Entropy(reference) - Entropy(candidate))
	m.SSIM = ssim(reference, candidate)
	return m, nil
}

func correlation(x, y []float64) float64 {
	if floats.Equal(x, y) {
		return 1
	}
	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// mutualInformation of two jointly Gaussian variables with correlation rho.
func mutualInformation(rho float64) float64 {
	r2 := rho * rho
	if r2 >= 1 {
		return math.Inf(1)
	}
	return -0.5 * math.Log(1-r2)
}

func ssim(x, y []float64) float64 {
	const k1, k2 = 0.01, 0.03
	l := floats.Max(x) - floats.Min(x)
	if l == 0 {
		l = 1
	}
	c1 := (k1 * l) * (k1 * l)
	c2 := (k2 * l) * (k2 * l)

	muX, varX := stat.MeanVariance(x, nil)
	muY, varY := stat.MeanVariance(y, nil)
	covXY := stat.Covariance(x, y, nil)

	num := (2*muX*muY + c1) * (2*covXY + c2)
	den := (muX*muX + muY*muY + c1) * (varX + varY + c2)
	return num / den
}

// Entropy returns the Shannon entropy in bits of a 256-bin histogram of data.
func Entropy(data []float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	lo, hi := floats.Min(data), floats.Max(data)
	if hi <= lo {
		return 0
	}

	const numBins = 256
	hist := make([]float64, numBins)
	width := (hi - lo) / numBins
	for _, v := range data {
		bin := min(int((v-lo)/width), numBins-1)
		hist[bin]++
	}

	var h float64
	for _, count := range hist {
		if count > 0 {
			p := count / float64(n)
			h -= p * math.Log2(p)
		}
	}
	return h
}

// Summary describes the value distribution of one buffer.
type Summary struct {
	Min, Max, Mean, StdDev, Sum float64
	NonZero                     int
}

// Summarize computes a Summary. An empty slice gives the zero Summary.
func Summarize(data []float64) Summary {
	if len(data) == 0 {
		return Summary{}
	}
	var s Summary
	s.Min, s.Max = floats.Min(data), floats.Max(data)
	s.Mean, s.StdDev = stat.MeanStdDev(data, nil)
	s.Sum = floats.Sum(data)
	for _, v := range data {
		if v != 0 {
			s.NonZero++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("min=%.4g max=%.4g mean=%.4g std=%.4g sum=%.6g nonzero=%d",
		s.Min, s.Max, s.Mean, s.StdDev, s.Sum, s.NonZero)
}
