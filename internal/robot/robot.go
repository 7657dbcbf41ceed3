// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package robot holds the drivers the wall follower can run against.
package robot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Robot reads the IR vector and drives the two wheels.
// Wheel speeds are in cm/s.
type Robot interface {
	ReadIR(ctx context.Context) ([]float64, error)
	SetWheelSpeeds(ctx context.Context, left, right float64) error
	Close() error
}

// ErrNoReading is returned before the first IR vector is available.
var ErrNoReading = errors.New("no IR reading yet")

// Driver names accepted by Open.
const (
	DriverSim    = "sim"
	DriverSerial = "serial"
	DriverMQTT   = "mqtt"
)

// Options selects and configures a driver.
type Options struct {
	Driver string

	SerialPort string
	BaudRate   int

	// MQTT must be connected when Driver is "mqtt".
	MQTT        mqtt.Client
	IRTopic     string
	WheelsTopic string

	Sim SimConfig
}

// Open returns the robot named by opts.Driver.
func Open(opts Options) (Robot, error) {
	switch strings.ToLower(opts.Driver) {
	case DriverSim, "":
		return NewSim(opts.Sim), nil
	case DriverSerial:
		return OpenCreate(opts.SerialPort, opts.BaudRate)
	case DriverMQTT:
		if opts.MQTT == nil {
			return nil, fmt.Errorf("mqtt driver needs a connected client")
		}
		return NewBridge(opts.MQTT, opts.IRTopic, opts.WheelsTopic)
	default:
		return nil, fmt.Errorf("unknown robot driver %q", opts.Driver)
	}
}
