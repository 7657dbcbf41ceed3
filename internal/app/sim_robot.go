// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/wallfollower/internal/config"
	"github.com/relabs-tech/wallfollower/internal/robot"
	"github.com/relabs-tech/wallfollower/internal/telemetry"
)

// RunSimRobot puts the corridor simulator on the broker: it publishes IR
// vectors on TOPIC_IR and applies commands from TOPIC_WHEELS, so the
// follower can run with ROBOT_DRIVER=mqtt without hardware.
func RunSimRobot() error {
	cfg := config.Get()

	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDFollower+"-sim")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	simCfg := robot.DefaultSimConfig()
	simCfg.IRK = cfg.IRDistanceK
	simCfg.Step = cfg.SamplePeriod
	sim := robot.NewSim(simCfg)

	token := client.Subscribe(cfg.TopicWheels, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var w robot.WheelsMessage
		if err := json.Unmarshal(msg.Payload(), &w); err != nil {
			log.Printf("sim: wheels unmarshal error: %v", err)
			return
		}
		sim.SetWheelSpeeds(context.Background(), w.Left, w.Right)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("sim: driving from %s, publishing %s", cfg.TopicWheels, cfg.TopicIR)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.SamplePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("sim: shutting down")
			return nil
		case <-ticker.C:
		}

		vec, err := sim.ReadIR(ctx)
		if err != nil {
			continue
		}
		payload, err := json.Marshal(robot.IRMessage{Sensors: vec})
		if err != nil {
			log.Printf("sim: json marshal error: %v", err)
			continue
		}
		if token := client.Publish(cfg.TopicIR, 0, false, payload); token.Wait() && token.Error() != nil {
			log.Printf("sim: MQTT publish error: %v", token.Error())
		}

		st := sim.State()
		if st.Elapsed%(5*time.Second) == 0 {
			log.Printf("sim: x=%.1fcm wall=%.1fcm heading=%.2frad door=%v", st.X, st.Wall, st.Heading, st.InDoor)
		}
	}
}
