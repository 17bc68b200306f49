package forecasting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

const (
	DefaultSequenceWindow = 5
	DefaultSequenceHidden = 16
	DefaultSequenceEpochs = 50
	DefaultLearningRate   = 0.01
	DefaultSeed           = 42

	defaultBatchSize = 16
	gradClipNorm     = 5.0
	adamBeta1        = 0.9
	adamBeta2        = 0.999
	adamEpsilon      = 1e-8
)

var ErrNoTrainingSamples = errors.New("no training windows for sequence model")

type SequenceConfig struct {
	Window       int     `validate:"min=1,max=50"`
	Hidden       int     `validate:"min=1,max=256"`
	Epochs       int     `validate:"min=1,max=1000"`
	LearningRate float64 `validate:"gt=0,lt=1"`
	BatchSize    int
	Seed         int64
}

func DefaultSequenceConfig() SequenceConfig {
	return SequenceConfig{
		Window:       DefaultSequenceWindow,
		Hidden:       DefaultSequenceHidden,
		Epochs:       DefaultSequenceEpochs,
		LearningRate: DefaultLearningRate,
		BatchSize:    defaultBatchSize,
		Seed:         DefaultSeed,
	}
}

// SequenceModel is a single-layer LSTM with a dense head predicting the next value of a window.
type SequenceModel struct {
	cfg SequenceConfig

	// params packs Wx (4H), Wh (4H x H), b (4H), Wy (H), by (1).
	params  []float64
	samples int
	loss    float64
}

type lstmStep struct {
	x               float64
	i, f, g, o      []float64
	c, cPrev, hPrev []float64
	tanhC           []float64
}

// BuildWindows turns each series into (window, next value) samples. Short histories are
// left-padded with zeros so every index after the first becomes a target.
func BuildWindows(series [][]float64, window int) ([][]float64, []float64) {
	var xs [][]float64
	var ys []float64
	for _, s := range series {
		for t := 1; t < len(s); t++ {
			xs = append(xs, LastWindow(s[:t], window))
			ys = append(ys, s[t])
		}
	}
	return xs, ys
}

// LastWindow returns the trailing window of s, zero-padded on the left.
func LastWindow(s []float64, window int) []float64 {
	out := make([]float64, window)
	start := len(s) - window
	for i := 0; i < window; i++ {
		if idx := start + i; idx >= 0 && idx < len(s) {
			out[i] = s[idx]
		}
	}
	return out
}

// TrainSequenceModel fits a fresh model on the pooled windows of all series.
func TrainSequenceModel(ctx context.Context, series [][]float64, cfg SequenceConfig) (*SequenceModel, error) {
	def := DefaultSequenceConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Hidden <= 0 {
		cfg.Hidden = def.Hidden
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = def.Epochs
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}

	xs, ys := BuildWindows(series, cfg.Window)
	if len(xs) == 0 {
		return nil, ErrNoTrainingSamples
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	m := newSequenceModel(cfg, rng)
	m.samples = len(xs)

	grad := make([]float64, len(m.params))
	adamM := make([]float64, len(m.params))
	adamV := make([]float64, len(m.params))
	order := make([]int, len(xs))
	for i := range order {
		order[i] = i
	}

	step := 0
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("sequence model training cancelled at epoch %d: %w", epoch, err)
		}
		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })

		var epochLoss float64
		for start := 0; start < len(order); start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			for i := range grad {
				grad[i] = 0
			}
			batch := float64(end - start)
			for _, idx := range order[start:end] {
				epochLoss += m.backward(xs[idx], ys[idx], grad, batch)
			}
			clipGradients(grad, gradClipNorm)

			step++
			m.adamStep(grad, adamM, adamV, step)
		}
		m.loss = epochLoss / float64(len(xs))
	}

	if math.IsNaN(m.loss) || math.IsInf(m.loss, 0) {
		return nil, fmt.Errorf("sequence model diverged: loss %v", m.loss)
	}
	return m, nil
}

func newSequenceModel(cfg SequenceConfig, rng *rand.Rand) *SequenceModel {
	h := cfg.Hidden
	m := &SequenceModel{cfg: cfg, params: make([]float64, 4*h+4*h*h+4*h+h+1)}
	scale := 1 / math.Sqrt(float64(h))
	for i := range m.params {
		m.params[i] = (rng.Float64()*2 - 1) * scale
	}
	b := m.bias()
	for k := 0; k < 4*h; k++ {
		b[k] = 0
	}
	// forget gate bias starts open
	for k := h; k < 2*h; k++ {
		b[k] = 1
	}
	m.params[len(m.params)-1] = 0
	return m
}

func (m *SequenceModel) Samples() int  { return m.samples }
func (m *SequenceModel) Loss() float64 { return m.loss }
func (m *SequenceModel) Window() int   { return m.cfg.Window }

// Predict returns the next value after window; the input is padded or trimmed to the model window.
func (m *SequenceModel) Predict(window []float64) float64 {
	x := LastWindow(window, m.cfg.Window)
	y, _ := m.forward(x)
	return y
}

func (m *SequenceModel) h() int { return m.cfg.Hidden }

func (m *SequenceModel) wx() []float64 { return m.params[0 : 4*m.h()] }
func (m *SequenceModel) wh() []float64 {
	h := m.h()
	return m.params[4*h : 4*h+4*h*h]
}
func (m *SequenceModel) bias() []float64 {
	h := m.h()
	off := 4*h + 4*h*h
	return m.params[off : off+4*h]
}
func (m *SequenceModel) wy() []float64 {
	h := m.h()
	off := 8*h + 4*h*h
	return m.params[off : off+h]
}

// views slices g with the same layout as params.
func (m *SequenceModel) views(g []float64) (wx, wh, b, wy []float64, by *float64) {
	h := m.h()
	wx = g[0 : 4*h]
	wh = g[4*h : 4*h+4*h*h]
	b = g[4*h+4*h*h : 8*h+4*h*h]
	wy = g[8*h+4*h*h : 9*h+4*h*h]
	by = &g[len(g)-1]
	return
}

func (m *SequenceModel) forward(x []float64) (float64, []lstmStep) {
	hn := m.h()
	wx, wh, b, wy := m.wx(), m.wh(), m.bias(), m.wy()
	by := m.params[len(m.params)-1]

	hPrev := make([]float64, hn)
	cPrev := make([]float64, hn)
	steps := make([]lstmStep, len(x))

	for t, xt := range x {
		st := lstmStep{
			x:     xt,
			i:     make([]float64, hn),
			f:     make([]float64, hn),
			g:     make([]float64, hn),
			o:     make([]float64, hn),
			c:     make([]float64, hn),
			cPrev: cPrev,
			hPrev: hPrev,
			tanhC: make([]float64, hn),
		}
		hNext := make([]float64, hn)
		for gate := 0; gate < 4; gate++ {
			for j := 0; j < hn; j++ {
				k := gate*hn + j
				z := wx[k]*xt + b[k]
				row := wh[k*hn : (k+1)*hn]
				for l := 0; l < hn; l++ {
					z += row[l] * hPrev[l]
				}
				switch gate {
				case 0:
					st.i[j] = sigmoid(z)
				case 1:
					st.f[j] = sigmoid(z)
				case 2:
					st.g[j] = math.Tanh(z)
				case 3:
					st.o[j] = sigmoid(z)
				}
			}
		}
		for j := 0; j < hn; j++ {
			st.c[j] = st.f[j]*cPrev[j] + st.i[j]*st.g[j]
			st.tanhC[j] = math.Tanh(st.c[j])
			hNext[j] = st.o[j] * st.tanhC[j]
		}
		steps[t] = st
		hPrev, cPrev = hNext, st.c
	}

	y := by
	for j := 0; j < hn; j++ {
		y += wy[j] * hPrev[j]
	}
	return y, steps
}

// backward accumulates MSE gradients for one sample into grad and returns the squared error.
func (m *SequenceModel) backward(x []float64, target float64, grad []float64, batch float64) float64 {
	hn := m.h()
	y, steps := m.forward(x)
	diff := y - target
	dy := 2 * diff / batch

	gwx, gwh, gb, gwy, gby := m.views(grad)
	wh, wy := m.wh(), m.wy()

	last := steps[len(steps)-1]
	hLast := make([]float64, hn)
	for j := 0; j < hn; j++ {
		hLast[j] = last.o[j] * last.tanhC[j]
	}

	*gby += dy
	dh := make([]float64, hn)
	for j := 0; j < hn; j++ {
		gwy[j] += dy * hLast[j]
		dh[j] = dy * wy[j]
	}
	dc := make([]float64, hn)
	dz := make([]float64, 4*hn)

	for t := len(steps) - 1; t >= 0; t-- {
		st := steps[t]
		for j := 0; j < hn; j++ {
			do := dh[j] * st.tanhC[j]
			dc[j] += dh[j] * st.o[j] * (1 - st.tanhC[j]*st.tanhC[j])
			di := dc[j] * st.g[j]
			dg := dc[j] * st.i[j]
			df := dc[j] * st.cPrev[j]

			dz[j] = di * st.i[j] * (1 - st.i[j])
			dz[hn+j] = df * st.f[j] * (1 - st.f[j])
			dz[2*hn+j] = dg * (1 - st.g[j]*st.g[j])
			dz[3*hn+j] = do * st.o[j] * (1 - st.o[j])
		}

		dhPrev := make([]float64, hn)
		for k := 0; k < 4*hn; k++ {
			gwx[k] += dz[k] * st.x
			gb[k] += dz[k]
			row := wh[k*hn : (k+1)*hn]
			grow := gwh[k*hn : (k+1)*hn]
			for l := 0; l < hn; l++ {
				grow[l] += dz[k] * st.hPrev[l]
				dhPrev[l] += row[l] * dz[k]
			}
		}
		for j := 0; j < hn; j++ {
			dc[j] *= st.f[j]
		}
		dh = dhPrev
	}

	return diff * diff
}

func (m *SequenceModel) adamStep(grad, mom, vel []float64, step int) {
	lr := m.cfg.LearningRate
	c1 := 1 - math.Pow(adamBeta1, float64(step))
	c2 := 1 - math.Pow(adamBeta2, float64(step))
	for i, g := range grad {
		mom[i] = adamBeta1*mom[i] + (1-adamBeta1)*g
		vel[i] = adamBeta2*vel[i] + (1-adamBeta2)*g*g
		m.params[i] -= lr * (mom[i] / c1) / (math.Sqrt(vel[i]/c2) + adamEpsilon)
	}
}

func clipGradients(grad []float64, maxNorm float64) {
	var sum float64
	for _, g := range grad {
		sum += g * g
	}
	norm := math.Sqrt(sum)
	if norm <= maxNorm || norm == 0 {
		return
	}
	scale := maxNorm / norm
	for i := range grad {
		grad[i] *= scale
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
