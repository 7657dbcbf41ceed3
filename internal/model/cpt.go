// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Sample is one labeled training row.
type Sample struct {
	Label    Label
	Readings Readings
}

// CPT is P(bin | label) for a single sensor.
type CPT struct {
	Sensor Sensor
	Rows   map[Label]Row
}

// Row returns the row for a label and whether the label was trained.
func (c CPT) Row(l Label) (Row, bool) {
	r, ok := c.Rows[l]
	return r, ok
}

// Normalize rescales every row to sum to 1. Rows with no mass become uniform.
func (c CPT) Normalize() {
	for l, r := range c.Rows {
		c.Rows[l] = normalizeRow(r)
	}
}

func normalizeRow(r Row) Row {
	total := floats.Sum(r[:])
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return UniformRow()
	}
	out := r
	floats.Scale(1/total, out[:])
	return out
}

// EstimateCPT counts (label, bin) co-occurrences for one sensor and
// normalizes each label row. A label with no samples gets a uniform row.
func EstimateCPT(sensor Sensor, labels []Label, samples []Sample, edges BinEdges) CPT {
	counts := make(map[Label]*Row, len(labels))
	for _, l := range labels {
		counts[l] = &Row{}
	}
	for _, s := range samples {
		v, ok := s.Readings[sensor]
		if !ok {
			continue
		}
		row, ok := counts[s.Label]
		if !ok {
			continue
		}
		row[edges.Bin(v)]++
	}

	cpt := CPT{Sensor: sensor, Rows: make(map[Label]Row, len(labels))}
	for _, l := range labels {
		cpt.Rows[l] = normalizeRow(*counts[l])
	}
	return cpt
}

// Training is the output of the estimation pipeline.
type Training struct {
	Labels  []Label
	Sensors []Sensor
	Edges   map[Sensor]BinEdges
	CPTs    map[Sensor]CPT
	// Counts is the number of samples per label.
	Counts map[Label]int
}

// Train computes bin edges from the training range of every sensor and
// estimates one CPT per sensor. Every sample label must be in the label set.
func Train(samples []Sample, labels []Label, sensors []Sensor, eps float64) (*Training, error) {
	return TrainWithEdges(samples, labels, sensors, eps, nil)
}

// TrainWithEdges is Train with previously published edges kept for the
// sensors that have them, so existing CPTs and edges stay consistent.
func TrainWithEdges(samples []Sample, labels []Label, sensors []Sensor, eps float64, fixed map[Sensor]BinEdges) (*Training, error) {
	if len(samples) == 0 {
		return nil, errors.New("train: no samples")
	}
	known := make(map[Label]bool, len(labels))
	for _, l := range labels {
		known[l] = true
	}

	t := &Training{
		Labels:  labels,
		Sensors: sensors,
		Edges:   make(map[Sensor]BinEdges, len(sensors)),
		CPTs:    make(map[Sensor]CPT, len(sensors)),
		Counts:  make(map[Label]int, len(labels)),
	}
	for i, s := range samples {
		if !known[s.Label] {
			return nil, fmt.Errorf("train: sample %d: label %q not in label set %v", i, s.Label, labels)
		}
		t.Counts[s.Label]++
	}

	for _, sensor := range sensors {
		if edges, ok := fixed[sensor]; ok {
			if err := edges.Validate(); err != nil {
				return nil, fmt.Errorf("train: sensor %s: %w", sensor, err)
			}
			t.Edges[sensor] = edges
			t.CPTs[sensor] = EstimateCPT(sensor, labels, samples, edges)
			continue
		}
		values := make([]float64, 0, len(samples))
		for _, s := range samples {
			if v, ok := s.Readings[sensor]; ok {
				values = append(values, v)
			}
		}
		edges, err := ComputeEdges(values, eps)
		if err != nil {
			return nil, fmt.Errorf("train: sensor %s: %w", sensor, err)
		}
		t.Edges[sensor] = edges
		t.CPTs[sensor] = EstimateCPT(sensor, labels, samples, edges)
	}
	return t, nil
}
