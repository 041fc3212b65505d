package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// MethodModel identifies explanations produced by the logistic model.
const MethodModel = "model"

// ErrInvalidTrainingData is returned when samples cannot train a model.
var ErrInvalidTrainingData = errors.New("invalid training data")

// Model is a logistic-regression classifier over the explanation vector.
// Weights apply to raw feature values; Baseline holds the training means.
type Model struct {
	Features  []string  `json:"features"`
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
	Baseline  []float64 `json:"baseline"`
	Samples   int       `json:"samples"`
	TrainedAt time.Time `json:"trainedAt"`
}

// TrainOptions tunes gradient descent.
type TrainOptions struct {
	Epochs       int
	LearningRate float64
	L2           float64
}

// DefaultTrainOptions returns settings that converge on standardized inputs.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Epochs:       500,
		LearningRate: 0.5,
		L2:           1e-3,
	}
}

// Train fits a model by full-batch gradient descent on standardized
// features, then folds the scaling back into raw-space weights. Both
// classes must be present.
func Train(samples [][]float64, labels []bool, opts TrainOptions) (*Model, error) {
	n := len(samples)
	if n == 0 || n != len(labels) {
		return nil, fmt.Errorf("%w: %d samples, %d labels", ErrInvalidTrainingData, n, len(labels))
	}
	d := len(FeatureNames)

	positives := 0
	for i, x := range samples {
		if len(x) != d {
			return nil, fmt.Errorf("%w: sample %d has %d features, want %d", ErrInvalidTrainingData, i, len(x), d)
		}
		if labels[i] {
			positives++
		}
	}
	if positives == 0 || positives == n {
		return nil, fmt.Errorf("%w: both classes are required", ErrInvalidTrainingData)
	}
	if opts.Epochs <= 0 {
		opts = DefaultTrainOptions()
	}

	mean := make([]float64, d)
	for _, x := range samples {
		for j, v := range x {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	scale := make([]float64, d)
	for _, x := range samples {
		for j, v := range x {
			scale[j] += (v - mean[j]) * (v - mean[j])
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / float64(n))
		if scale[j] == 0 {
			scale[j] = 1
		}
	}

	z := make([][]float64, n)
	for i, x := range samples {
		z[i] = make([]float64, d)
		for j, v := range x {
			z[i][j] = (v - mean[j]) / scale[j]
		}
	}

	w := make([]float64, d)
	b := 0.0
	grad := make([]float64, d)
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		gb := 0.0
		for i, x := range z {
			y := 0.0
			if labels[i] {
				y = 1
			}
			diff := sigmoid(dot(w, x)+b) - y
			for j, v := range x {
				grad[j] += diff * v
			}
			gb += diff
		}
		for j := range w {
			w[j] -= opts.LearningRate * (grad[j]/float64(n) + opts.L2*w[j])
		}
		b -= opts.LearningRate * gb / float64(n)
	}

	m := &Model{
		Features:  append([]string(nil), FeatureNames...),
		Weights:   make([]float64, d),
		Bias:      b,
		Baseline:  mean,
		Samples:   n,
		TrainedAt: time.Now().UTC(),
	}
	for j := range w {
		m.Weights[j] = w[j] / scale[j]
		m.Bias -= w[j] * mean[j] / scale[j]
	}
	return m, nil
}

// LoadModel reads a model file written by Save.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the model as JSON.
func (m *Model) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *Model) validate() error {
	if len(m.Features) != len(FeatureNames) {
		return fmt.Errorf("expected %d features, got %d", len(FeatureNames), len(m.Features))
	}
	for i, name := range FeatureNames {
		if m.Features[i] != name {
			return fmt.Errorf("feature %d is %q, want %q", i, m.Features[i], name)
		}
	}
	if len(m.Weights) != len(FeatureNames) || len(m.Baseline) != len(FeatureNames) {
		return errors.New("weights and baseline must match the feature vector")
	}
	return nil
}

// Predict returns the mule probability for a feature vector.
func (m *Model) Predict(x []float64) float64 {
	return sigmoid(dot(m.Weights, x) + m.Bias)
}

// Attributions returns w_i*(x_i - baseline_i) per feature, the exact
// Shapley values of the linear logit against the baseline.
func (m *Model) Attributions(x []float64) []float64 {
	out := make([]float64, len(m.Weights))
	for i, w := range m.Weights {
		out[i] = w * (x[i] - m.Baseline[i])
	}
	return out
}

// ModelExplainer explains assessments with a trained Model.
type ModelExplainer struct {
	model *Model
	top   int
}

// NewModelExplainer wraps a trained model.
func NewModelExplainer(m *Model, top int) *ModelExplainer {
	if top <= 0 {
		top = 5
	}
	return &ModelExplainer{model: m, top: top}
}

// Method implements Explainer.
func (e *ModelExplainer) Method() string {
	return MethodModel
}

// Explain implements Explainer. Reasons are the descriptions of the
// features with the largest absolute non-zero attribution.
func (e *ModelExplainer) Explain(_ context.Context, a *domain.RiskAssessment) (*domain.Explanation, error) {
	x := Vector(a)
	attr := e.model.Attributions(x)

	contributions := make([]domain.FeatureContribution, len(FeatureNames))
	for i, name := range FeatureNames {
		contributions[i] = domain.FeatureContribution{
			Feature:      name,
			Description:  Describe(name),
			Value:        x[i],
			Contribution: attr[i],
		}
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		return math.Abs(contributions[i].Contribution) > math.Abs(contributions[j].Contribution)
	})

	reasons := make([]string, 0, e.top)
	for _, c := range contributions {
		if len(reasons) == e.top || c.Contribution == 0 {
			break
		}
		reasons = append(reasons, c.Description)
	}
	if len(reasons) == 0 {
		reasons = append(reasons, LowRiskReason)
	}

	return newExplanation(a, MethodModel, reasons, contributions), nil
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
