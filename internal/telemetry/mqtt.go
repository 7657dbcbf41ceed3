// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttTimeout = 2 * time.Second

// Connect builds a client for broker and connects it.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", broker, token.Error())
	}
	log.Printf("connected to MQTT broker at %s as %s", broker, clientID)
	return client, nil
}

// Publisher publishes tick records as JSON on one topic.
type Publisher struct {
	client mqtt.Client
	topic  string
}

// NewPublisher returns a recorder publishing on topic.
func NewPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// Record publishes r. The latest record is retained so late subscribers
// see the current state.
func (p *Publisher) Record(r TickRecord) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode tick %d: %w", r.Tick, err)
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("publish %s: timed out", p.topic)
	}
	return token.Error()
}

// Subscribe decodes every record published on topic and hands it to fn.
// Malformed payloads are logged and dropped.
func Subscribe(client mqtt.Client, topic string, fn func(TickRecord)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		r, err := Decode(msg.Payload())
		if err != nil {
			log.Printf("telemetry: %s: %v", msg.Topic(), err)
			return
		}
		fn(r)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Decode parses one published record.
func Decode(payload []byte) (TickRecord, error) {
	var r TickRecord
	if err := json.Unmarshal(payload, &r); err != nil {
		return TickRecord{}, fmt.Errorf("decode tick record: %w", err)
	}
	return r, nil
}
