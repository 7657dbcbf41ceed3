// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package robot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IRMessage is the payload expected on the IR topic.
type IRMessage struct {
	Sensors []float64 `json:"sensors"`
}

// WheelsMessage is the payload published on the wheels topic.
type WheelsMessage struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

const publishTimeout = 2 * time.Second

// Bridge drives a robot that lives on the other side of an MQTT broker.
type Bridge struct {
	client      mqtt.Client
	irTopic     string
	wheelsTopic string

	mu     sync.Mutex
	latest []float64
	fresh  chan struct{}
}

// NewBridge subscribes to irTopic on a connected client.
func NewBridge(client mqtt.Client, irTopic, wheelsTopic string) (*Bridge, error) {
	b := &Bridge{
		client:      client,
		irTopic:     irTopic,
		wheelsTopic: wheelsTopic,
		fresh:       make(chan struct{}, 1),
	}
	token := client.Subscribe(irTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := b.handleIR(msg.Payload()); err != nil {
			log.Printf("robot: %s: %v", irTopic, err)
		}
	})
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("subscribe %s: %w", irTopic, token.Error())
	}
	log.Printf("robot: bridge reading %s, driving %s", irTopic, wheelsTopic)
	return b, nil
}

func (b *Bridge) handleIR(payload []byte) error {
	var m IRMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("decode IR message: %w", err)
	}
	if len(m.Sensors) == 0 {
		return fmt.Errorf("IR message without sensors")
	}
	b.mu.Lock()
	b.latest = m.Sensors
	b.mu.Unlock()
	select {
	case b.fresh <- struct{}{}:
	default:
	}
	return nil
}

// ReadIR waits for an IR vector newer than the last one returned.
func (b *Bridge) ReadIR(ctx context.Context) ([]float64, error) {
	select {
	case <-b.fresh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil {
		return nil, ErrNoReading
	}
	return append([]float64(nil), b.latest...), nil
}

// SetWheelSpeeds publishes the command and waits for the broker to take it.
func (b *Bridge) SetWheelSpeeds(ctx context.Context, left, right float64) error {
	payload, err := json.Marshal(WheelsMessage{Left: left, Right: right})
	if err != nil {
		return err
	}
	token := b.client.Publish(b.wheelsTopic, 0, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish %s: timed out", b.wheelsTopic)
	}
	return token.Error()
}

// Close unsubscribes from the IR topic. The client stays connected.
func (b *Bridge) Close() error {
	token := b.client.Unsubscribe(b.irTopic)
	token.WaitTimeout(publishTimeout)
	return token.Error()
}
