package forecasting

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"gonum.org/v1/gonum/optimize"
)

const (
	DefaultDifferencing = 1

	sigma2Floor = 1e-10
	// Coefficients at the tanh boundary mean the optimiser ran off to a unit root.
	maxCoefficient = 0.999
)

var (
	DefaultAROrders = []int{0, 1}
	DefaultMAOrders = []int{0, 1}

	errFitFailed = errors.New("likelihood optimisation failed")
)

type Order struct {
	P, D, Q int
}

func (o Order) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

// ARIMAModel is a fitted ARIMA(p,d,q) without constant, estimated by conditional sum of squares.
type ARIMAModel struct {
	Order         Order
	AR            []float64
	MA            []float64
	Sigma2        float64
	LogLikelihood float64
	AIC           float64
	Observations  int

	// levels[0] is the input series, levels[k] its k-th difference.
	levels    [][]float64
	residuals []float64
}

// FitARIMA fits one order to series.
func FitARIMA(series []float64, order Order) (*ARIMAModel, error) {
	if order.P < 0 || order.D < 0 || order.Q < 0 {
		return nil, fmt.Errorf("invalid order %s", order)
	}

	levels := [][]float64{series}
	w := series
	for i := 0; i < order.D; i++ {
		w = analytics.Diff(w)
		levels = append(levels, w)
	}

	nEff := len(w) - order.P
	if nEff < 2 {
		return nil, fmt.Errorf("%w: %d observations for order %s",
			apperrors.ErrInsufficientHistory, len(series), order)
	}

	k := order.P + order.Q
	x := make([]float64, k)
	if k > 0 {
		problem := optimize.Problem{
			Func: func(u []float64) float64 {
				ar, ma := unpack(u, order.P)
				sse, _ := conditionalSSE(w, ar, ma)
				return sse
			},
		}
		settings := &optimize.Settings{MajorIterations: 1000, FuncEvaluations: 5000}
		result, err := optimize.Minimize(problem, x, settings, &optimize.NelderMead{})
		// iteration limits still leave a usable simplex minimum
		if err != nil && (result == nil || result.Status == optimize.Failure) {
			return nil, fmt.Errorf("%w for order %s: %v", errFitFailed, order, err)
		}
		if result == nil || math.IsNaN(result.F) || math.IsInf(result.F, 0) {
			return nil, fmt.Errorf("%w for order %s: non-finite objective", errFitFailed, order)
		}
		x = result.X
	}

	ar, ma := unpack(x, order.P)
	for _, c := range append(append([]float64{}, ar...), ma...) {
		if math.Abs(c) > maxCoefficient {
			return nil, fmt.Errorf("%w for order %s: coefficient %.4f at boundary", errFitFailed, order, c)
		}
	}

	sse, resid := conditionalSSE(w, ar, ma)
	n := float64(nEff)
	sigma2 := math.Max(sse/n, sigma2Floor)
	ll := -0.5 * n * (math.Log(2*math.Pi*sigma2) + 1)

	return &ARIMAModel{
		Order:         order,
		AR:            ar,
		MA:            ma,
		Sigma2:        sigma2,
		LogLikelihood: ll,
		AIC:           -2*ll + 2*float64(k+1),
		Observations:  nEff,
		levels:        levels,
		residuals:     resid,
	}, nil
}

// ForecastNext returns the one-step-ahead forecast on the scale of the input series.
func (m *ARIMAModel) ForecastNext() float64 {
	w := m.levels[m.Order.D]
	n := len(w)

	var next float64
	for i, phi := range m.AR {
		if idx := n - 1 - i; idx >= 0 {
			next += phi * w[idx]
		}
	}
	for j, theta := range m.MA {
		if idx := n - 1 - j; idx >= m.Order.P {
			next += theta * m.residuals[idx]
		}
	}

	for lvl := m.Order.D - 1; lvl >= 0; lvl-- {
		s := m.levels[lvl]
		next += s[len(s)-1]
	}
	return next
}

// Candidate records the outcome of fitting one order during selection.
type Candidate struct {
	Order Order
	AIC   float64
	Err   error
}

// SelectARIMA fits every (p,d,q) in the grid, discards failures and returns the lowest-AIC model.
func SelectARIMA(series []float64, ps []int, d int, qs []int) (*ARIMAModel, []Candidate, error) {
	var best *ARIMAModel
	candidates := make([]Candidate, 0, len(ps)*len(qs))

	for _, p := range ps {
		for _, q := range qs {
			order := Order{P: p, D: d, Q: q}
			m, err := FitARIMA(series, order)
			if err != nil {
				candidates = append(candidates, Candidate{Order: order, AIC: math.Inf(1), Err: err})
				continue
			}
			candidates = append(candidates, Candidate{Order: order, AIC: m.AIC})
			if best == nil || m.AIC < best.AIC {
				best = m
			}
		}
	}

	if best == nil {
		return nil, candidates, fmt.Errorf("%w: tried %s", apperrors.ErrNoConvergence, describeCandidates(candidates))
	}
	return best, candidates, nil
}

func describeCandidates(candidates []Candidate) string {
	parts := make([]string, len(candidates))
	for i, c := range candidates {
		parts[i] = c.Order.String()
	}
	return strings.Join(parts, ", ")
}

func unpack(u []float64, p int) (ar, ma []float64) {
	ar = make([]float64, p)
	ma = make([]float64, len(u)-p)
	for i := range ar {
		ar[i] = math.Tanh(u[i])
	}
	for j := range ma {
		ma[j] = math.Tanh(u[p+j])
	}
	return ar, ma
}

// conditionalSSE conditions on the first p observations and zero pre-sample residuals.
func conditionalSSE(w, ar, ma []float64) (float64, []float64) {
	p := len(ar)
	resid := make([]float64, len(w))
	var sse float64
	for t := p; t < len(w); t++ {
		var pred float64
		for i := 0; i < p; i++ {
			pred += ar[i] * w[t-1-i]
		}
		for j := range ma {
			if idx := t - 1 - j; idx >= p {
				pred += ma[j] * resid[idx]
			}
		}
		resid[t] = w[t] - pred
		sse += resid[t] * resid[t]
	}
	return sse, resid
}
