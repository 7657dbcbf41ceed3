// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMissingResource is returned when a model file or a per-sensor CPT is missing.
	ErrMissingResource = errors.New("missing resource")
	// ErrUnknownSensor is returned for a sensor without bin edges.
	ErrUnknownSensor = errors.New("unknown sensor")
)

// Label is one discrete state of the robot relative to the wall.
type Label string

const (
	Wall       Label = "Wall"
	DoorStart  Label = "Door_Start"
	Door       Label = "Door"
	DoorPassed Label = "Door_Passed"
)

// FourStateLabels is the label set used by the belief engine on the robot.
var FourStateLabels = []Label{Wall, DoorStart, Door, DoorPassed}

// ThreeStateLabels is the label set produced by the three-key data collector.
var ThreeStateLabels = []Label{Wall, Door, DoorPassed}

// ParseLabel accepts only the known labels.
func ParseLabel(s string) (Label, error) {
	switch l := Label(strings.TrimSpace(s)); l {
	case Wall, DoorStart, Door, DoorPassed:
		return l, nil
	default:
		return "", fmt.Errorf("unknown label %q", s)
	}
}

// ParseLabels parses a comma separated, ordered label set.
func ParseLabels(s string) ([]Label, error) {
	var out []Label
	seen := map[Label]bool{}
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		l, err := ParseLabel(part)
		if err != nil {
			return nil, err
		}
		if seen[l] {
			return nil, fmt.Errorf("duplicate label %q", l)
		}
		seen[l] = true
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, errors.New("empty label set")
	}
	return out, nil
}

// Sensor names one physical IR proximity sensor, IR1 through IR7.
type Sensor string

// MaxSensors is the number of IR proximity sensors on the bumper.
const MaxSensors = 7

// ParseSensor accepts "IR1".."IR7".
func ParseSensor(s string) (Sensor, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "IR") {
		return "", fmt.Errorf("%w: %q", ErrUnknownSensor, s)
	}
	n, err := strconv.Atoi(s[2:])
	if err != nil || n < 1 || n > MaxSensors {
		return "", fmt.Errorf("%w: %q", ErrUnknownSensor, s)
	}
	return Sensor(s), nil
}

// ParseSensors parses a comma separated sensor list.
func ParseSensors(s string) ([]Sensor, error) {
	var out []Sensor
	seen := map[Sensor]bool{}
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		sn, err := ParseSensor(part)
		if err != nil {
			return nil, err
		}
		if seen[sn] {
			return nil, fmt.Errorf("duplicate sensor %q", sn)
		}
		seen[sn] = true
		out = append(out, sn)
	}
	if len(out) == 0 {
		return nil, errors.New("empty sensor list")
	}
	return out, nil
}

// AllSensors returns IR1..IR7.
func AllSensors() []Sensor {
	out := make([]Sensor, MaxSensors)
	for i := range out {
		out[i] = Sensor(fmt.Sprintf("IR%d", i+1))
	}
	return out
}

// Index returns the zero-based position of the sensor in the robot's IR vector.
func (s Sensor) Index() int {
	n, err := strconv.Atoi(strings.TrimPrefix(string(s), "IR"))
	if err != nil {
		return -1
	}
	return n - 1
}

// Bin is the discretized category of an IR reading.
type Bin int

const (
	Near Bin = iota
	Medium
	Far
)

// NumBins is the number of ordinal bins per sensor.
const NumBins = 3

// BinNames is positionally aligned with the Bin enumeration.
var BinNames = [NumBins]string{"Near", "Medium", "Far"}

func (b Bin) String() string {
	if b < 0 || int(b) >= NumBins {
		return fmt.Sprintf("Bin(%d)", int(b))
	}
	return BinNames[b]
}

// Readings maps a sensor to its raw proximity value for one tick.
type Readings map[Sensor]float64

// ReadingsFromVector maps the robot's raw IR vector onto the named sensors.
// Sensors past the end of the vector are left out.
func ReadingsFromVector(vec []float64, sensors []Sensor) Readings {
	r := make(Readings, len(sensors))
	for _, s := range sensors {
		i := s.Index()
		if i < 0 || i >= len(vec) {
			continue
		}
		r[s] = vec[i]
	}
	return r
}

// Row is a probability per bin, aligned with the Bin enumeration.
type Row [NumBins]float64

// UniformRow is the fallback distribution for labels without evidence.
func UniformRow() Row {
	return Row{1.0 / NumBins, 1.0 / NumBins, 1.0 / NumBins}
}
