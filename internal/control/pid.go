// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

// PID is a textbook proportional-integral-derivative controller.
type PID struct {
	Kp, Ki, Kd float64

	integral  float64
	prevError float64
}

// NewPID returns a controller with zeroed state.
func NewPID(kp, ki, kd float64) *PID {
	return &PID{Kp: kp, Ki: ki, Kd: kd}
}

// Update returns the control output for error e over dt seconds.
func (p *PID) Update(e, dt float64) float64 {
	p.integral += e * dt
	var derivative float64
	if dt > 0 {
		derivative = (e - p.prevError) / dt
	}
	p.prevError = e
	return p.Kp*e + p.Ki*p.integral + p.Kd*derivative
}

// Reset clears the integral and derivative memory.
func (p *PID) Reset() {
	p.integral = 0
	p.prevError = 0
}

// DistanceFromIR converts an IR proximity value into a distance estimate
// in cm using k/value clamped to [dmin, dmax]. Non-positive readings mean
// nothing is in range.
func DistanceFromIR(value, k, dmin, dmax float64) float64 {
	if value <= 0 {
		return dmax
	}
	return clamp(k/value, dmin, dmax)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
