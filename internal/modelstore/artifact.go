// Package modelstore loads trained risk classifiers from JSON artifacts and
// serves them read-only for the lifetime of the process.
//
// An artifact is a self-describing JSON document exported by the training job.
// Three model families are supported: a logistic regression, a random forest
// (mean of per-tree leaf probabilities) and gradient-boosted trees (sigmoid of
// the summed leaf margins). Features are indexed by position in the 49-key
// layout owned by the feature package.
package modelstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Kind identifies the model family of an artifact.
type Kind string

const (
	KindLogistic         Kind = "logistic"
	KindRandomForest     Kind = "random_forest"
	KindGradientBoosting Kind = "gradient_boosting"
)

var (
	// ErrUnknownKind is returned for artifacts of an unsupported family.
	ErrUnknownKind = errors.New("unknown classifier kind")
	// ErrFeatureCount is returned when the input length does not match the artifact.
	ErrFeatureCount = errors.New("feature count mismatch")
	// ErrMalformed is returned when an artifact fails structural validation.
	ErrMalformed = errors.New("malformed classifier artifact")
)

// Classifier outputs the probability of the positive ("at risk") class.
type Classifier interface {
	PredictProba(x []float64) (float64, error)
}

// Sized is implemented by classifiers that declare the input width they expect.
type Sized interface {
	Width() int
}

// Node is one node of a decision tree. Leaves have Feature < 0.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Tree is a flat, index-linked decision tree rooted at node 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Artifact is the on-disk representation of a trained classifier.
type Artifact struct {
	Name         string    `json:"name"`
	Kind         Kind      `json:"kind"`
	FeatureCount int       `json:"featureCount"`
	Intercept    float64   `json:"intercept,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty"`
	LearningRate float64   `json:"learningRate,omitempty"`
	Trees        []Tree    `json:"trees,omitempty"`
}

// Parse decodes and validates an artifact.
func Parse(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	if a.FeatureCount <= 0 {
		return fmt.Errorf("%w: featureCount must be positive", ErrMalformed)
	}
	switch a.Kind {
	case KindLogistic:
		if len(a.Coefficients) != a.FeatureCount {
			return fmt.Errorf("%w: %d coefficients for %d features", ErrMalformed, len(a.Coefficients), a.FeatureCount)
		}
	case KindRandomForest, KindGradientBoosting:
		if len(a.Trees) == 0 {
			return fmt.Errorf("%w: no trees", ErrMalformed)
		}
		for i, t := range a.Trees {
			if err := t.validate(a.FeatureCount); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}
	return nil
}

func (t Tree) validate(featureCount int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: empty tree", ErrMalformed)
	}
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= featureCount {
			return fmt.Errorf("%w: node %d splits on feature %d", ErrMalformed, i, n.Feature)
		}
		// children must point forward so evaluation always terminates
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("%w: node %d has invalid children", ErrMalformed, i)
		}
	}
	return nil
}

// Width implements Sized.
func (a *Artifact) Width() int { return a.FeatureCount }

// PredictProba implements Classifier.
func (a *Artifact) PredictProba(x []float64) (float64, error) {
	if len(x) != a.FeatureCount {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(x), a.FeatureCount)
	}
	var p float64
	switch a.Kind {
	case KindLogistic:
		z := a.Intercept
		for i, c := range a.Coefficients {
			z += c * x[i]
		}
		p = sigmoid(z)
	case KindRandomForest:
		var sum float64
		for _, t := range a.Trees {
			sum += t.eval(x)
		}
		p = sum / float64(len(a.Trees))
	case KindGradientBoosting:
		lr := a.LearningRate
		if lr == 0 {
			lr = 1
		}
		z := a.Intercept
		for _, t := range a.Trees {
			z += lr * t.eval(x)
		}
		p = sigmoid(z)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%s produced NaN", a.Name)
	}
	return math.Max(0, math.Min(1, p)), nil
}

func (t Tree) eval(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
