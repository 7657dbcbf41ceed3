// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package robot

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"
)

// Open Interface opcodes and sensor packets of the iRobot Create 2.
const (
	opStart       = 128
	opSafe        = 131
	opDriveDirect = 145
	opQueryList   = 149
	opStop        = 173

	maxWheelMMs = 500
)

// IR1..IR6 are the light bump sensors left to right, IR7 is the right
// side wall signal.
var irPackets = []byte{46, 47, 48, 49, 50, 51, 27}

// Create drives an iRobot Create over its serial Open Interface.
//
// Sensor queries and wheel commands take separate locks: a Drive Direct
// is never queued behind a slow sensor reply.
type Create struct {
	rmu  sync.Mutex // one query/reply exchange at a time
	wmu  sync.Mutex // one command on the wire at a time
	port io.ReadWriteCloser
	buf  []byte
	// desync is set when a reply was cut short; its tail may still arrive.
	desync bool
}

// OpenCreate opens the serial port and puts the robot in Safe mode.
func OpenCreate(portName string, baud int) (*Create, error) {
	opts := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 0,
		ParityMode:      serial.PARITY_NONE,
		// reads give up after 100 ms of silence
		InterCharacterTimeout: 100,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", portName, err)
	}
	log.Printf("robot: serial port opened on %s at %d baud", portName, baud)
	c, err := NewCreate(port)
	if err != nil {
		port.Close()
		return nil, err
	}
	return c, nil
}

// NewCreate starts the Open Interface on an already open port.
func NewCreate(port io.ReadWriteCloser) (*Create, error) {
	c := &Create{port: port, buf: make([]byte, 2*len(irPackets))}
	if _, err := port.Write([]byte{opStart, opSafe}); err != nil {
		return nil, fmt.Errorf("start open interface: %w", err)
	}
	return c, nil
}

// ReadIR queries the seven IR packets in one round trip.
func (c *Create) ReadIR(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if c.desync {
		c.drain()
		c.desync = false
	}
	req := append([]byte{opQueryList, byte(len(irPackets))}, irPackets...)
	if err := c.write(req); err != nil {
		return nil, fmt.Errorf("query sensors: %w", err)
	}
	if _, err := io.ReadFull(c.port, c.buf); err != nil {
		c.desync = true
		return nil, fmt.Errorf("read sensors: %w", err)
	}
	out := make([]float64, len(irPackets))
	for i := range out {
		out[i] = float64(binary.BigEndian.Uint16(c.buf[2*i:]))
	}
	return out, nil
}

// SetWheelSpeeds sends Drive Direct. Speeds are converted from cm/s to
// mm/s and clamped to the ±500 mm/s the interface accepts.
func (c *Create) SetWheelSpeeds(ctx context.Context, left, right float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(driveDirect(left, right))
}

func (c *Create) write(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.port.Write(b)
	return err
}

// drain discards what is left of an interrupted reply so the next frame
// starts aligned. The port's inter-character timeout ends it once the
// line goes quiet.
func (c *Create) drain() {
	scratch := make([]byte, 64)
	dropped := 0
	for i := 0; i < 32; i++ {
		n, err := c.port.Read(scratch)
		dropped += n
		if n == 0 || err != nil {
			break
		}
	}
	if dropped > 0 {
		log.Printf("robot: dropped %d stale bytes from the serial port", dropped)
	}
}

func driveDirect(left, right float64) []byte {
	cmd := make([]byte, 5)
	cmd[0] = opDriveDirect
	binary.BigEndian.PutUint16(cmd[1:], uint16(toMMs(right)))
	binary.BigEndian.PutUint16(cmd[3:], uint16(toMMs(left)))
	return cmd
}

func toMMs(cms float64) int16 {
	v := math.Round(cms * 10)
	if v > maxWheelMMs {
		v = maxWheelMMs
	}
	if v < -maxWheelMMs {
		v = -maxWheelMMs
	}
	return int16(v)
}

// Close stops the wheels, ends the Open Interface and closes the port.
func (c *Create) Close() error {
	if err := c.write(driveDirect(0, 0)); err != nil {
		log.Printf("robot: stop wheels on close: %v", err)
	}
	if err := c.write([]byte{opStop}); err != nil {
		log.Printf("robot: stop open interface: %v", err)
	}
	return c.port.Close()
}
