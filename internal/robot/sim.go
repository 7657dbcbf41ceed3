// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package robot

import (
	"context"
	"math"
	"sync"
	"time"
)

// SimConfig describes a straight corridor with the wall on the robot's
// right and one door gap in it.
type SimConfig struct {
	Step       time.Duration // simulated time per ReadIR
	StartX     float64       // cm along the corridor
	StartWall  float64       // cm from the wall
	DoorStart  float64       // cm, where the gap begins
	DoorEnd    float64       // cm, where the wall resumes
	WheelBase  float64       // cm
	IRK        float64       // IR value times distance
	Background float64       // IR value with nothing in range
}

// DefaultSimConfig is a 2 m corridor with a 60 cm door half way.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Step:       100 * time.Millisecond,
		StartWall:  8,
		DoorStart:  100,
		DoorEnd:    160,
		WheelBase:  23.5,
		IRK:        200,
		Background: 2,
	}
}

// wall signal gain per sensor, IR1 (front left) to IR7 (right side)
var simGain = [7]float64{0.02, 0.02, 0.05, 0.1, 0.3, 0.6, 1}

// Sim is a deterministic differential-drive robot in a corridor.
type Sim struct {
	mu  sync.Mutex
	cfg SimConfig

	x, wall, heading float64
	left, right      float64
	elapsed          time.Duration
}

// NewSim places the robot at the corridor start, parallel to the wall.
func NewSim(cfg SimConfig) *Sim {
	def := DefaultSimConfig()
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.WheelBase <= 0 {
		cfg.WheelBase = def.WheelBase
	}
	if cfg.IRK <= 0 {
		cfg.IRK = def.IRK
	}
	if cfg.StartWall <= 0 {
		cfg.StartWall = def.StartWall
	}
	if cfg.DoorEnd <= cfg.DoorStart {
		cfg.DoorStart, cfg.DoorEnd = def.DoorStart, def.DoorEnd
	}
	return &Sim{cfg: cfg, x: cfg.StartX, wall: cfg.StartWall}
}

// ReadIR advances the simulation by one step and returns the IR vector.
func (s *Sim) ReadIR(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.advance(s.cfg.Step.Seconds())
	s.elapsed += s.cfg.Step

	signal := 0.0
	if !s.inDoor() && s.wall > 0 {
		// the side sensor looks square at the wall; heading skews it
		d := s.wall / math.Max(math.Cos(s.heading), 0.2)
		signal = s.cfg.IRK / d
	}
	out := make([]float64, len(simGain))
	for i, g := range simGain {
		out[i] = s.cfg.Background + g*signal
	}
	return out, nil
}

// SetWheelSpeeds sets the wheel speeds used by the next step.
func (s *Sim) SetWheelSpeeds(_ context.Context, left, right float64) error {
	s.mu.Lock()
	s.left, s.right = left, right
	s.mu.Unlock()
	return nil
}

func (s *Sim) Close() error { return nil }

// advance integrates unicycle kinematics. Positive heading turns away
// from the right wall.
func (s *Sim) advance(dt float64) {
	v := (s.left + s.right) / 2
	w := (s.right - s.left) / s.cfg.WheelBase
	s.heading += w * dt
	s.x += v * math.Cos(s.heading) * dt
	s.wall += v * math.Sin(s.heading) * dt
	if s.wall < 0 {
		s.wall = 0
	}
}

func (s *Sim) inDoor() bool {
	return s.x >= s.cfg.DoorStart && s.x < s.cfg.DoorEnd
}

// SimState is a snapshot of the simulated pose.
type SimState struct {
	X, Wall, Heading float64
	Left, Right      float64
	InDoor           bool
	Elapsed          time.Duration
}

// State returns the current pose.
func (s *Sim) State() SimState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SimState{
		X:       s.x,
		Wall:    s.wall,
		Heading: s.heading,
		Left:    s.left,
		Right:   s.right,
		InDoor:  s.inDoor(),
		Elapsed: s.elapsed,
	}
}
