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

// BinEdges are four strictly increasing boundaries defining the Near, Medium
// and Far intervals of one sensor.
type BinEdges [NumBins + 1]float64

// ComputeEdges derives bin edges from the training values of one sensor:
//
//	[min-eps, min+range/3, min+2*range/3, max+eps]
//
// A constant column has no range, so its interior edges split
// [min-eps, max+eps] into thirds instead.
func ComputeEdges(values []float64, eps float64) (BinEdges, error) {
	if len(values) == 0 {
		return BinEdges{}, errors.New("compute edges: no training values")
	}
	if eps <= 0 {
		return BinEdges{}, fmt.Errorf("compute edges: epsilon must be positive, got %g", eps)
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BinEdges{}, errors.New("compute edges: non-finite training value")
		}
	}
	lo, hi := floats.Min(values), floats.Max(values)

	r := hi - lo
	e := BinEdges{lo - eps, lo + r/3, lo + 2*r/3, hi + eps}
	if r == 0 {
		span := e[3] - e[0]
		e[1] = e[0] + span/3
		e[2] = e[0] + 2*span/3
	}
	return e, e.Validate()
}

// Validate checks that the edges are finite and strictly increasing.
func (e BinEdges) Validate() error {
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bin edge %d is not finite", i)
		}
		if i > 0 && v <= e[i-1] {
			return fmt.Errorf("bin edges not strictly increasing: %v", [4]float64(e))
		}
	}
	return nil
}

// Bin places v into Near, Medium or Far. The lowest edge and the last
// interval are inclusive so every training value is covered. Readings
// outside the trained range clamp to the nearest bin.
func (e BinEdges) Bin(v float64) Bin {
	switch {
	case math.IsNaN(v):
		return Near
	case v < e[1]:
		return Near
	case v < e[2]:
		return Medium
	default:
		return Far
	}
}

// Discretizer maps raw readings to bins using the edges fixed at training time.
type Discretizer struct {
	edges map[Sensor]BinEdges
}

// NewDiscretizer validates and copies the edge set.
func NewDiscretizer(edges map[Sensor]BinEdges) (*Discretizer, error) {
	if len(edges) == 0 {
		return nil, errors.New("discretizer: no bin edges")
	}
	cp := make(map[Sensor]BinEdges, len(edges))
	for s, e := range edges {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("discretizer: sensor %s: %w", s, err)
		}
		cp[s] = e
	}
	return &Discretizer{edges: cp}, nil
}

// Bin discretizes one reading.
func (d *Discretizer) Bin(s Sensor, v float64) (Bin, error) {
	e, ok := d.edges[s]
	if !ok {
		return Near, fmt.Errorf("%w: %s", ErrUnknownSensor, s)
	}
	return e.Bin(v), nil
}

// Edges returns the edges for one sensor.
func (d *Discretizer) Edges(s Sensor) (BinEdges, bool) {
	e, ok := d.edges[s]
	return e, ok
}
