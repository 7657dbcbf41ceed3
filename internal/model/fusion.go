// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package model

import (
	"errors"
	"fmt"
	"math"
)

// FusionModel holds the likelihood tables of every sensor for every label
// together with the bin edges used during training. It is immutable once
// built; accessors return copies.
type FusionModel struct {
	labels     []Label
	sensors    []Sensor
	likelihood map[Label]map[Sensor]Row
	edges      map[Sensor]BinEdges
	disc       *Discretizer
}

// BuildFusionModel combines the per-sensor CPTs into a single model keyed by
// label. Every sensor must have both a CPT and bin edges. Labels missing from
// a CPT get a uniform row.
func BuildFusionModel(labels []Label, sensors []Sensor, cpts map[Sensor]CPT, edges map[Sensor]BinEdges) (*FusionModel, error) {
	if len(labels) == 0 {
		return nil, errors.New("build fusion model: empty label set")
	}
	if len(sensors) == 0 {
		return nil, errors.New("build fusion model: no sensors")
	}

	lik := make(map[Label]map[Sensor]Row, len(labels))
	for _, l := range labels {
		lik[l] = make(map[Sensor]Row, len(sensors))
	}
	used := make(map[Sensor]BinEdges, len(sensors))

	for _, s := range sensors {
		cpt, ok := cpts[s]
		if !ok {
			return nil, fmt.Errorf("build fusion model: %w: CPT for sensor %s", ErrMissingResource, s)
		}
		e, ok := edges[s]
		if !ok {
			return nil, fmt.Errorf("build fusion model: %w: no bin edges for %s", ErrUnknownSensor, s)
		}
		used[s] = e
		for _, l := range labels {
			row, ok := cpt.Row(l)
			if !ok {
				row = UniformRow()
			}
			lik[l][s] = normalizeRow(row)
		}
	}

	return newFusionModel(labels, sensors, lik, used)
}

// newFusionModel validates rows as loaded, without re-normalizing them.
func newFusionModel(labels []Label, sensors []Sensor, lik map[Label]map[Sensor]Row, edges map[Sensor]BinEdges) (*FusionModel, error) {
	for l, bySensor := range lik {
		for s, row := range bySensor {
			for b, p := range row {
				if math.IsNaN(p) || p < 0 || p > 1 {
					return nil, fmt.Errorf("fusion model: %s/%s/%s probability %g out of range", l, s, Bin(b), p)
				}
			}
		}
	}
	disc, err := NewDiscretizer(edges)
	if err != nil {
		return nil, fmt.Errorf("fusion model: %w", err)
	}
	return &FusionModel{
		labels:     append([]Label(nil), labels...),
		sensors:    append([]Sensor(nil), sensors...),
		likelihood: lik,
		edges:      edges,
		disc:       disc,
	}, nil
}

// Labels returns the ordered label set.
func (m *FusionModel) Labels() []Label { return append([]Label(nil), m.labels...) }

// Sensors returns the sensors the model was trained on.
func (m *FusionModel) Sensors() []Sensor { return append([]Sensor(nil), m.sensors...) }

// Discretizer reapplies the training-time bin edges.
func (m *FusionModel) Discretizer() *Discretizer { return m.disc }

// Edges returns a copy of the bin edges.
func (m *FusionModel) Edges() map[Sensor]BinEdges {
	out := make(map[Sensor]BinEdges, len(m.edges))
	for s, e := range m.edges {
		out[s] = e
	}
	return out
}

// Row returns the likelihood row of a sensor for a label. An unknown label or
// sensor yields the uniform row and false.
func (m *FusionModel) Row(l Label, s Sensor) (Row, bool) {
	bySensor, ok := m.likelihood[l]
	if !ok {
		return UniformRow(), false
	}
	row, ok := bySensor[s]
	if !ok {
		return UniformRow(), false
	}
	return row, true
}

// Likelihood returns P(bin | label) for one sensor. Unknown labels and
// sensors fall back to 1/NumBins.
func (m *FusionModel) Likelihood(l Label, s Sensor, b Bin) float64 {
	row, _ := m.Row(l, s)
	if b < 0 || int(b) >= NumBins {
		b = Far
	}
	return row[b]
}
