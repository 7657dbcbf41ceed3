// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/wallfollower/internal/belief"
	"github.com/relabs-tech/wallfollower/internal/config"
	"github.com/relabs-tech/wallfollower/internal/control"
	"github.com/relabs-tech/wallfollower/internal/model"
	"github.com/relabs-tech/wallfollower/internal/robot"
	"github.com/relabs-tech/wallfollower/internal/runlog"
	"github.com/relabs-tech/wallfollower/internal/telemetry"
)

// ControlConfig maps the file configuration onto the controller settings.
func ControlConfig(cfg *config.Config) (control.Config, error) {
	side, err := control.ParseWallSide(cfg.WallSide)
	if err != nil {
		return control.Config{}, err
	}
	return control.Config{
		Sensors:             cfg.Sensors,
		ControlSensor:       cfg.ControlSensor,
		WallSide:            side,
		SamplePeriod:        cfg.SamplePeriod,
		ReadTimeout:         cfg.SensorReadTimeout,
		TargetDistance:      cfg.TargetDistance,
		PostDoorDistance:    cfg.PostDoorDistance,
		Kp:                  cfg.KP,
		Ki:                  cfg.KI,
		Kd:                  cfg.KD,
		BaseSpeed:           cfg.BaseSpeed,
		MinSpeed:            cfg.MinSpeed,
		MaxSpeed:            cfg.MaxSpeed,
		IRDistanceK:         cfg.IRDistanceK,
		DistanceMin:         cfg.DistanceMin,
		DistanceMax:         cfg.DistanceMax,
		DoorPassedLabel:     cfg.DoorPassedLabel,
		DoorPassedThreshold: cfg.DoorPassedThreshold,
	}, nil
}

// NewFilter loads the fusion model from cfg.ModelDir and builds a filter
// with the configured floor.
func NewFilter(cfg *config.Config) (*belief.Filter, *model.FusionModel, error) {
	m, err := model.LoadModel(cfg.ModelDir, cfg.Labels, cfg.Sensors)
	if err != nil {
		return nil, nil, fmt.Errorf("load model from %s: %w", cfg.ModelDir, err)
	}
	var opts []belief.Option
	if cfg.BeliefFloor > 0 {
		opts = append(opts, belief.WithFloor(cfg.BeliefFloor))
	}
	return belief.NewFilter(m, opts...), m, nil
}

// RunFollower drives the configured robot along the wall until the door
// has been passed, or until SIGINT/SIGTERM.
func RunFollower() error {
	cfg := config.Get()

	ctrl, err := ControlConfig(cfg)
	if err != nil {
		return err
	}
	filter, m, err := NewFilter(cfg)
	if err != nil {
		return err
	}
	log.Printf("follower: model with labels %v over sensors %v", m.Labels(), m.Sensors())

	// Telemetry is best effort unless the robot itself lives on MQTT.
	var client mqtt.Client
	client, err = telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDFollower)
	if err != nil {
		if cfg.RobotDriver == robot.DriverMQTT {
			return err
		}
		log.Printf("follower: telemetry disabled: %v", err)
		client = nil
	}
	if client != nil {
		defer client.Disconnect(250)
	}

	sim := robot.DefaultSimConfig()
	sim.IRK = cfg.IRDistanceK
	sim.Step = cfg.SamplePeriod

	rb, err := robot.Open(robot.Options{
		Driver:      cfg.RobotDriver,
		SerialPort:  cfg.RobotSerialPort,
		BaudRate:    cfg.RobotBaudRate,
		MQTT:        client,
		IRTopic:     cfg.TopicIR,
		WheelsTopic: cfg.TopicWheels,
		Sim:         sim,
	})
	if err != nil {
		return fmt.Errorf("open robot: %w", err)
	}
	defer rb.Close()
	log.Printf("follower: robot driver %s", cfg.RobotDriver)

	recorders := telemetry.Multi{telemetry.Printer{W: os.Stdout, Every: 10}}
	if client != nil {
		recorders = append(recorders, telemetry.NewPublisher(client, cfg.TopicTelemetry))
	}

	var (
		db    *runlog.DB
		runID string
	)
	if cfg.RunLogDB != "" {
		db, err = runlog.Open(cfg.RunLogDB)
		if err != nil {
			return fmt.Errorf("open run log: %w", err)
		}
		defer db.Close()
		runID, err = db.StartRun(cfg.RobotDriver, cfg.ModelDir)
		if err != nil {
			return fmt.Errorf("start run: %w", err)
		}
		recorders = append(recorders, db)
		log.Printf("follower: logging run %s to %s", runID, cfg.RunLogDB)
	}

	loop, err := control.NewLoop(ctrl, rb, rb, filter, recorders)
	if err != nil {
		return err
	}
	loop.SetRunID(runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, runErr := loop.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		log.Println("follower: interrupted")
	}
	log.Printf("follower: %d ticks, %d stale reads, %d belief resets, phase %s, final belief %s",
		sum.Ticks, sum.StaleRead, sum.Resets, sum.Phase, loop.Belief())

	if db != nil {
		if err := db.FinishRun(runID, sum.Ticks, sum.DoorTick, sum.Phase.String(), runErr); err != nil {
			log.Printf("follower: finish run: %v", err)
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
