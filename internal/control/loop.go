// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/wallfollower/internal/belief"
	"github.com/relabs-tech/wallfollower/internal/model"
	"github.com/relabs-tech/wallfollower/internal/telemetry"
)

// Sensors is the IR side of the robot.
type Sensors interface {
	ReadIR(ctx context.Context) ([]float64, error)
}

// Wheels is the drive side of the robot.
type Wheels interface {
	SetWheelSpeeds(ctx context.Context, left, right float64) error
}

// ErrStopped is returned by Tick once the follower has stopped.
var ErrStopped = errors.New("follower stopped")

// Summary describes a finished run.
type Summary struct {
	Ticks     int
	StaleRead int
	Resets    int
	DoorTick  int // tick at which the door latch fired, 0 if never
	Phase     Phase
	Travelled float64
}

type readResult struct {
	vec []float64
	err error
}

// Loop owns one wall-following session: the robot handles, the belief
// filter, the follower and the last good readings.
type Loop struct {
	cfg      Config
	sensors  Sensors
	wheels   Wheels
	filter   *belief.Filter
	follower *Follower
	rec      telemetry.Recorder
	runID    string

	last    model.Readings
	pending chan readResult
	tick    int
	summary Summary
	now     func() time.Time
}

// NewLoop wires a session together. A nil recorder discards telemetry.
func NewLoop(cfg Config, s Sensors, w Wheels, f *belief.Filter, rec telemetry.Recorder) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s == nil || w == nil || f == nil {
		return nil, fmt.Errorf("loop needs sensors, wheels and a filter")
	}
	if rec == nil {
		rec = telemetry.Discard
	}
	last := make(model.Readings, len(cfg.Sensors))
	for _, sn := range cfg.Sensors {
		last[sn] = 0
	}
	return &Loop{
		cfg:      cfg,
		sensors:  s,
		wheels:   w,
		filter:   f,
		follower: NewFollower(cfg),
		rec:      rec,
		last:     last,
		now:      time.Now,
	}, nil
}

// SetRunID tags every published record.
func (l *Loop) SetRunID(id string) { l.runID = id }

// Tick reads the sensors, updates the belief and drives the wheels once.
func (l *Loop) Tick(ctx context.Context) (telemetry.TickRecord, error) {
	if l.follower.Phase() == Stopped {
		return telemetry.TickRecord{}, ErrStopped
	}
	l.tick++

	readings, readErr := l.read(ctx)
	step := l.filter.Observe(readings)

	dt := l.cfg.SamplePeriod.Seconds()
	cmd := l.follower.Step(readings[l.cfg.ControlSensor], step.Posterior.Prob(l.cfg.DoorPassedLabel), dt)

	if cmd.Phase != Following && l.summary.DoorTick == 0 {
		l.summary.DoorTick = l.tick
		Logf("control: door passed at tick %d (P=%.3f)", l.tick, step.Posterior.Prob(l.cfg.DoorPassedLabel))
	}
	if err := l.wheels.SetWheelSpeeds(ctx, cmd.Left, cmd.Right); err != nil {
		Logf("control: set wheel speeds: %v", err)
	}

	rec := l.record(readings, step, cmd)
	if readErr != nil {
		rec.Stale = true
		rec.ReadErr = readErr.Error()
		l.summary.StaleRead++
	}
	l.summary.Ticks = l.tick
	l.summary.Phase = cmd.Phase
	l.summary.Travelled = cmd.Travelled

	if err := l.rec.Record(rec); err != nil {
		Logf("control: record tick %d: %v", l.tick, err)
	}
	if cmd.Done() {
		Logf("control: stopped after %.2f cm past the door", cmd.Travelled)
	}
	return rec, nil
}

// read waits at most ReadTimeout for a sensor vector. On failure the
// last-known readings are reused. A read that outlives the timeout is
// collected on a later tick instead of being issued twice.
func (l *Loop) read(ctx context.Context) (model.Readings, error) {
	if l.pending == nil {
		ch := make(chan readResult, 1)
		go func() {
			vec, err := l.sensors.ReadIR(ctx)
			ch <- readResult{vec: vec, err: err}
		}()
		l.pending = ch
	}

	timer := time.NewTimer(l.cfg.ReadTimeout)
	defer timer.Stop()

	var res readResult
	select {
	case res = <-l.pending:
		l.pending = nil
	case <-timer.C:
		return l.lastKnown(), fmt.Errorf("sensor read timed out after %v", l.cfg.ReadTimeout)
	case <-ctx.Done():
		return l.lastKnown(), ctx.Err()
	}
	if res.err != nil {
		return l.lastKnown(), res.err
	}
	if len(res.vec) == 0 {
		return l.lastKnown(), fmt.Errorf("empty sensor vector")
	}

	r := model.ReadingsFromVector(res.vec, l.cfg.Sensors)
	var err error
	for _, s := range l.cfg.Sensors {
		if _, ok := r[s]; !ok {
			r[s] = l.last[s]
			err = fmt.Errorf("sensor vector has %d values, missing %s", len(res.vec), s)
		}
	}
	l.last = r
	return l.lastKnown(), err
}

func (l *Loop) lastKnown() model.Readings {
	r := make(model.Readings, len(l.last))
	for s, v := range l.last {
		r[s] = v
	}
	return r
}

func (l *Loop) record(r model.Readings, step belief.Step, cmd Command) telemetry.TickRecord {
	rec := telemetry.TickRecord{
		RunID:      l.runID,
		Tick:       l.tick,
		Time:       l.now(),
		Readings:   make(map[string]float64, len(r)),
		Bins:       make(map[string]string, len(step.Bins)),
		Belief:     step.Posterior.Map(),
		Reset:      step.Reset,
		Distance:   cmd.Distance,
		Error:      cmd.Error,
		Correction: cmd.Correction,
		Left:       cmd.Left,
		Right:      cmd.Right,
		Phase:      cmd.Phase.String(),
		Travelled:  cmd.Travelled,
	}
	for s, v := range r {
		rec.Readings[string(s)] = v
	}
	for s, b := range step.Bins {
		rec.Bins[string(s)] = b.String()
	}
	return rec
}

// Run ticks every SamplePeriod until the follower stops or ctx is done.
// The wheels are always commanded to zero on the way out.
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	ticker := time.NewTicker(l.cfg.SamplePeriod)
	defer ticker.Stop()
	defer l.halt()

	Logf("control: following %s wall with %s, target %.1f cm, period %v",
		l.cfg.WallSide, l.cfg.ControlSensor, l.cfg.TargetDistance, l.cfg.SamplePeriod)

	for {
		select {
		case <-ctx.Done():
			return l.Summary(), ctx.Err()
		case <-ticker.C:
			if _, err := l.Tick(ctx); err != nil {
				return l.Summary(), err
			}
			if l.follower.Phase() == Stopped {
				return l.Summary(), nil
			}
		}
	}
}

func (l *Loop) halt() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.wheels.SetWheelSpeeds(ctx, 0, 0); err != nil {
		Logf("control: stop wheels: %v", err)
	}
}

// Summary returns counters for the session so far.
func (l *Loop) Summary() Summary {
	s := l.summary
	_, s.Resets = l.filter.Steps()
	return s
}

// Belief returns the filter's current belief.
func (l *Loop) Belief() belief.Belief { return l.filter.Belief() }
