package forecasting

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/tidwall/gjson"
)

// DefaultPostTestMax is used when a document does not declare its post-test max score.
const DefaultPostTestMax = 60.0

type regressionTree struct {
	left        []int
	right       []int
	splitIndex  []int
	splitCond   []float64
	defaultLeft []bool
}

// GradientBoostedModel evaluates an XGBoost JSON model dump of regression trees.
type GradientBoostedModel struct {
	baseScore  float64
	numFeature int
	trees      []regressionTree
}

// LoadRegressor reads an XGBoost JSON model from path.
func LoadRegressor(path string) (*GradientBoostedModel, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no model path configured", apperrors.ErrModelArtifactMissing)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrModelArtifactMissing, path)
		}
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	return ParseRegressor(data)
}

// ParseRegressor parses the learner.gradient_booster.model.trees layout.
func ParseRegressor(data []byte) (*GradientBoostedModel, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: model is not valid JSON", apperrors.ErrMalformedInput)
	}
	doc := gjson.ParseBytes(data)

	model := &GradientBoostedModel{baseScore: 0.5}
	if bs := doc.Get("learner.learner_model_param.base_score"); bs.Exists() {
		v, err := parseBaseScore(bs.String())
		if err != nil {
			return nil, fmt.Errorf("%w: base_score %q", apperrors.ErrMalformedInput, bs.String())
		}
		model.baseScore = v
	}
	if nf := doc.Get("learner.learner_model_param.num_feature"); nf.Exists() {
		model.numFeature = int(nf.Int())
	}

	trees := doc.Get("learner.gradient_booster.model.trees")
	if !trees.IsArray() || len(trees.Array()) == 0 {
		return nil, fmt.Errorf("%w: model has no trees", apperrors.ErrMalformedInput)
	}

	for i, t := range trees.Array() {
		tree := regressionTree{
			left:       intArray(t.Get("left_children")),
			right:      intArray(t.Get("right_children")),
			splitIndex: intArray(t.Get("split_indices")),
			splitCond:  floatArray(t.Get("split_conditions")),
		}
		for _, v := range t.Get("default_left").Array() {
			tree.defaultLeft = append(tree.defaultLeft, v.Bool() || v.Int() == 1)
		}
		n := len(tree.left)
		if n == 0 || len(tree.right) != n || len(tree.splitIndex) != n || len(tree.splitCond) != n {
			return nil, fmt.Errorf("%w: tree %d has inconsistent node arrays", apperrors.ErrMalformedInput, i)
		}
		model.trees = append(model.trees, tree)
	}
	return model, nil
}

// parseBaseScore accepts the scalar form ("5E-1") and the vector form XGBoost 3 writes
// ("[5E-1]"); for a vector the first target's intercept is used.
func parseBaseScore(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if inner, ok := strings.CutPrefix(raw, "["); ok {
		inner, ok = strings.CutSuffix(inner, "]")
		if !ok {
			return 0, fmt.Errorf("unterminated vector %q", raw)
		}
		first, _, _ := strings.Cut(inner, ",")
		raw = strings.TrimSpace(first)
	}
	return strconv.ParseFloat(raw, 64)
}

// Predict returns base_score plus the sum of leaf values.
func (m *GradientBoostedModel) Predict(features []float64) (float64, error) {
	if m.numFeature > 0 && len(features) != m.numFeature {
		return 0, fmt.Errorf("model expects %d features, got %d", m.numFeature, len(features))
	}
	sum := m.baseScore
	for ti, t := range m.trees {
		node := 0
		for steps := 0; t.left[node] != -1; steps++ {
			if steps > len(t.left) {
				return 0, fmt.Errorf("tree %d contains a cycle", ti)
			}
			idx := t.splitIndex[node]
			switch {
			case idx < 0 || idx >= len(features):
				if node < len(t.defaultLeft) && !t.defaultLeft[node] {
					node = t.right[node]
				} else {
					node = t.left[node]
				}
			case features[idx] < t.splitCond[node]:
				node = t.left[node]
			default:
				node = t.right[node]
			}
			if node < 0 || node >= len(t.left) {
				return 0, fmt.Errorf("tree %d references node %d out of range", ti, node)
			}
		}
		// leaf values are stored in split_conditions
		sum += t.splitCond[node]
	}
	return sum, nil
}

func (m *GradientBoostedModel) Trees() int { return len(m.trees) }

func intArray(r gjson.Result) []int {
	arr := r.Array()
	out := make([]int, len(arr))
	for i, v := range arr {
		out[i] = int(v.Int())
	}
	return out
}

func floatArray(r gjson.Result) []float64 {
	arr := r.Array()
	out := make([]float64, len(arr))
	for i, v := range arr {
		out[i] = v.Float()
	}
	return out
}

// FeatureRegressorStrategy predicts a normalized post-test score from the feature vector.
type FeatureRegressorStrategy struct {
	model    *GradientBoostedModel
	maxScore float64
}

func NewFeatureRegressorStrategy(model *GradientBoostedModel, postTestMax float64) *FeatureRegressorStrategy {
	if postTestMax <= 0 {
		postTestMax = DefaultPostTestMax
	}
	return &FeatureRegressorStrategy{model: model, maxScore: postTestMax}
}

func (s *FeatureRegressorStrategy) Name() string { return string(models.MethodFeatureRegressor) }

func (s *FeatureRegressorStrategy) Forecast(ctx context.Context, series analytics.StudentSeries) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	features := analytics.ExtractFeatures(series.Normalized)
	normalized, err := s.model.Predict(features)
	if err != nil {
		return Prediction{}, err
	}
	p := newPrediction(series, normalized, s.maxScore, models.MethodFeatureRegressor)
	p.Features = features
	return p, nil
}
