// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

import (
	"fmt"
	"strings"
	"time"

	"github.com/relabs-tech/wallfollower/internal/model"
)

// WallSide selects which side of the robot the followed wall is on.
type WallSide int

const (
	WallRight WallSide = iota
	WallLeft
)

// ParseWallSide accepts "right" or "left".
func ParseWallSide(s string) (WallSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "right":
		return WallRight, nil
	case "left":
		return WallLeft, nil
	}
	return WallRight, fmt.Errorf("invalid wall side %q (want right or left)", s)
}

func (w WallSide) String() string {
	if w == WallLeft {
		return "left"
	}
	return "right"
}

// Config holds the tunables of the wall follower and its loop.
type Config struct {
	Sensors       []model.Sensor
	ControlSensor model.Sensor
	WallSide      WallSide

	SamplePeriod time.Duration
	ReadTimeout  time.Duration

	TargetDistance   float64
	PostDoorDistance float64
	Kp, Ki, Kd       float64

	BaseSpeed float64
	MinSpeed  float64
	MaxSpeed  float64

	IRDistanceK float64
	DistanceMin float64
	DistanceMax float64

	DoorPassedLabel     model.Label
	DoorPassedThreshold float64
}

// DefaultConfig returns the tuning used on the reference robot.
func DefaultConfig() Config {
	return Config{
		Sensors:             model.AllSensors(),
		ControlSensor:       "IR7",
		WallSide:            WallRight,
		SamplePeriod:        100 * time.Millisecond,
		ReadTimeout:         50 * time.Millisecond,
		TargetDistance:      6,
		PostDoorDistance:    10,
		Kp:                  0.8,
		Ki:                  0.02,
		Kd:                  0.1,
		BaseSpeed:           25,
		MinSpeed:            0,
		MaxSpeed:            50,
		IRDistanceK:         200,
		DistanceMin:         1,
		DistanceMax:         30,
		DoorPassedLabel:     model.DoorPassed,
		DoorPassedThreshold: 0.8,
	}
}

// Validate checks the settings are usable.
func (c Config) Validate() error {
	if c.SamplePeriod <= 0 {
		return fmt.Errorf("sample period must be positive")
	}
	if c.ReadTimeout <= 0 || c.ReadTimeout > c.SamplePeriod {
		return fmt.Errorf("read timeout must be in (0, %v]", c.SamplePeriod)
	}
	if c.MinSpeed > c.MaxSpeed {
		return fmt.Errorf("min speed %.2f above max speed %.2f", c.MinSpeed, c.MaxSpeed)
	}
	if c.DistanceMin <= 0 || c.DistanceMin >= c.DistanceMax {
		return fmt.Errorf("distance range [%.2f, %.2f] is invalid", c.DistanceMin, c.DistanceMax)
	}
	if c.IRDistanceK <= 0 {
		return fmt.Errorf("IR distance constant must be positive")
	}
	if c.DoorPassedThreshold <= 0 || c.DoorPassedThreshold >= 1 {
		return fmt.Errorf("door threshold must be in (0, 1)")
	}
	if c.PostDoorDistance < 0 {
		return fmt.Errorf("post-door distance must not be negative")
	}
	if _, err := model.ParseSensor(string(c.ControlSensor)); err != nil {
		return fmt.Errorf("control sensor: %w", err)
	}
	found := false
	for _, s := range c.Sensors {
		if s == c.ControlSensor {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("control sensor %s is not one of the read sensors", c.ControlSensor)
	}
	return nil
}

// Command is the outcome of one follower step.
type Command struct {
	Left, Right float64
	Distance    float64
	Error       float64
	Correction  float64
	Phase       Phase
	Travelled   float64
}

// Done reports whether the follower has stopped for good.
func (c Command) Done() bool { return c.Phase == Stopped }

// Follower turns one IR value and the door-passed belief into wheel speeds.
type Follower struct {
	cfg  Config
	pid  *PID
	stop *DoorStop
}

// NewFollower creates a follower in the Following phase.
func NewFollower(cfg Config) *Follower {
	return &Follower{
		cfg:  cfg,
		pid:  NewPID(cfg.Kp, cfg.Ki, cfg.Kd),
		stop: NewDoorStop(cfg.DoorPassedThreshold, cfg.PostDoorDistance),
	}
}

// Step runs one control tick. Positive error means the robot is closer to
// the wall than the target, so it steers away from it.
func (f *Follower) Step(ir, doorPassedProb, dt float64) Command {
	d := DistanceFromIR(ir, f.cfg.IRDistanceK, f.cfg.DistanceMin, f.cfg.DistanceMax)
	e := f.cfg.TargetDistance - d
	c := f.pid.Update(e, dt)

	phase := f.stop.Observe(doorPassedProb, d, dt)
	cmd := Command{
		Distance:   d,
		Error:      e,
		Correction: c,
		Phase:      phase,
		Travelled:  f.stop.Travelled(),
	}
	if phase == Stopped {
		return cmd
	}

	away, toward := f.cfg.BaseSpeed+c, f.cfg.BaseSpeed-c
	if f.cfg.WallSide == WallRight {
		// away from a right wall means turning left: right wheel faster
		cmd.Left, cmd.Right = toward, away
	} else {
		cmd.Left, cmd.Right = away, toward
	}
	cmd.Left = clamp(cmd.Left, f.cfg.MinSpeed, f.cfg.MaxSpeed)
	cmd.Right = clamp(cmd.Right, f.cfg.MinSpeed, f.cfg.MaxSpeed)
	return cmd
}

// Phase returns the door-stop phase.
func (f *Follower) Phase() Phase { return f.stop.Phase() }
