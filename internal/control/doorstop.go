// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

import "fmt"

// Phase is the state of the wall follower.
type Phase int

const (
	Following Phase = iota
	StoppingAfterDoor
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Following:
		return "FOLLOWING"
	case StoppingAfterDoor:
		return "STOPPING_AFTER_DOOR"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// DoorStop latches the first time the door-passed belief exceeds the
// threshold, then counts down a travel distance before stopping. The
// transitions are one-way.
type DoorStop struct {
	threshold float64
	target    float64

	phase     Phase
	travelled float64
	triggers  int
}

// NewDoorStop creates the latch in the Following phase.
func NewDoorStop(threshold, target float64) *DoorStop {
	return &DoorStop{threshold: threshold, target: target}
}

// Observe advances the state machine by one tick.
func (d *DoorStop) Observe(doorPassedProb, distance, dt float64) Phase {
	if d.phase == Following && doorPassedProb > d.threshold {
		d.phase = StoppingAfterDoor
		d.travelled = 0
		d.triggers++
	}
	if d.phase == StoppingAfterDoor {
		d.travelled += distance * dt
		if d.travelled >= d.target {
			d.phase = Stopped
		}
	}
	return d.phase
}

// Phase returns the current phase.
func (d *DoorStop) Phase() Phase { return d.phase }

// Travelled returns the distance accumulated since the door was passed.
func (d *DoorStop) Travelled() float64 { return d.travelled }

// Triggers counts latch transitions; it is never more than one.
func (d *DoorStop) Triggers() int { return d.triggers }
