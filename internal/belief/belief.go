// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package belief

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/relabs-tech/wallfollower/internal/model"
)

// Belief is a probability distribution over an ordered label set.
type Belief struct {
	labels []model.Label
	probs  []float64
}

// Uniform returns the uniform distribution over labels.
func Uniform(labels []model.Label) Belief {
	b := Belief{labels: append([]model.Label(nil), labels...), probs: make([]float64, len(labels))}
	for i := range b.probs {
		b.probs[i] = 1 / float64(len(labels))
	}
	return b
}

// New builds a belief from explicit probabilities, aligned with labels.
func New(labels []model.Label, probs []float64) (Belief, error) {
	if len(labels) != len(probs) {
		return Belief{}, fmt.Errorf("belief: %d labels but %d probabilities", len(labels), len(probs))
	}
	var total float64
	for i, p := range probs {
		if p < 0 || math.IsNaN(p) {
			return Belief{}, fmt.Errorf("belief: invalid probability %g for %s", p, labels[i])
		}
		total += p
	}
	if total <= 0 {
		return Belief{}, fmt.Errorf("belief: probabilities sum to %g", total)
	}
	b := Belief{labels: append([]model.Label(nil), labels...), probs: make([]float64, len(probs))}
	for i, p := range probs {
		b.probs[i] = p / total
	}
	return b, nil
}

// Prob returns P(label); labels outside the set have probability 0.
func (b Belief) Prob(l model.Label) float64 {
	for i, x := range b.labels {
		if x == l {
			return b.probs[i]
		}
	}
	return 0
}

// Labels returns the label order.
func (b Belief) Labels() []model.Label { return append([]model.Label(nil), b.labels...) }

// Probs returns the probabilities aligned with Labels.
func (b Belief) Probs() []float64 { return append([]float64(nil), b.probs...) }

// Top returns the most probable label. Ties go to the earlier label.
func (b Belief) Top() (model.Label, float64) {
	best := -1
	for i, p := range b.probs {
		if best < 0 || p > b.probs[best] {
			best = i
		}
	}
	if best < 0 {
		return "", 0
	}
	return b.labels[best], b.probs[best]
}

// Map returns the belief keyed by label name.
func (b Belief) Map() map[string]float64 {
	m := make(map[string]float64, len(b.labels))
	for i, l := range b.labels {
		m[string(l)] = b.probs[i]
	}
	return m
}

// MarshalJSON encodes the belief as {"Wall":0.25,...}.
func (b Belief) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Map())
}

func (b Belief) clone() Belief {
	return Belief{labels: b.labels, probs: append([]float64(nil), b.probs...)}
}

func (b Belief) String() string {
	parts := make([]string, len(b.labels))
	for i, l := range b.labels {
		parts[i] = fmt.Sprintf("%s=%.2f", l, b.probs[i])
	}
	return strings.Join(parts, " ")
}
