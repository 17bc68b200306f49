package analytics

import (
	"math"
	"sort"

	"github.com/SAP-F-2025/forecast-service/internal/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Describe computes mean, median, lowest mode, sample standard deviation, min and max.
// An empty input yields zero values.
func Describe(values []float64) models.DescriptiveStats {
	if len(values) == 0 {
		return models.DescriptiveStats{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return models.DescriptiveStats{
		Mean:              stat.Mean(sorted, nil),
		Median:            Median(sorted),
		Mode:              Mode(sorted),
		StandardDeviation: SampleStdDev(sorted),
		Minimum:           floats.Min(sorted),
		Maximum:           floats.Max(sorted),
	}
}

// Median averages the middle pair for even counts.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := values
	if !sort.Float64sAreSorted(values) {
		sorted = make([]float64, n)
		copy(sorted, values)
		sort.Float64s(sorted)
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Mode returns the most frequent value, choosing the lowest among ties.
func Mode(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := values
	if !sort.Float64sAreSorted(values) {
		sorted = make([]float64, len(values))
		copy(sorted, values)
		sort.Float64s(sorted)
	}

	best, bestCount := sorted[0], 0
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		// strict comparison keeps the lowest tied value
		if j-i > bestCount {
			best, bestCount = sorted[i], j-i
		}
		i = j
	}
	return best
}

// SampleStdDev is the n-1 standard deviation; 0 for fewer than two values.
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sd := stat.StdDev(values, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}

// PopStdDev is the population standard deviation.
func PopStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return math.Sqrt(stat.PopVariance(values, nil))
}
