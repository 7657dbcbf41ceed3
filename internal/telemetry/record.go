// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"errors"
	"time"
)

// TickRecord is the JSON schema published once per control tick.
type TickRecord struct {
	RunID string    `json:"run_id,omitempty"`
	Tick  int       `json:"tick"`
	Time  time.Time `json:"time"`

	Readings map[string]float64 `json:"readings"`
	Bins     map[string]string  `json:"bins"`
	Belief   map[string]float64 `json:"belief"`
	Reset    bool               `json:"belief_reset,omitempty"`
	// Stale is set when the tick used last-known readings.
	Stale   bool   `json:"stale,omitempty"`
	ReadErr string `json:"read_error,omitempty"`

	Distance   float64 `json:"distance_cm"`
	Error      float64 `json:"error_cm"`
	Correction float64 `json:"correction"`
	Left       float64 `json:"left_speed"`
	Right      float64 `json:"right_speed"`
	Phase      string  `json:"phase"`
	Travelled  float64 `json:"post_door_cm"`
}

// Recorder consumes tick records.
type Recorder interface {
	Record(TickRecord) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(TickRecord) error

func (f RecorderFunc) Record(r TickRecord) error { return f(r) }

// Multi fans a record out to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(r TickRecord) error {
	var errs []error
	for _, rec := range m {
		if rec == nil {
			continue
		}
		if err := rec.Record(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every record.
var Discard Recorder = RecorderFunc(func(TickRecord) error { return nil })
