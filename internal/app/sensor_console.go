// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/relabs-tech/wallfollower/internal/belief"
	"github.com/relabs-tech/wallfollower/internal/config"
	"github.com/relabs-tech/wallfollower/internal/control"
	"github.com/relabs-tech/wallfollower/internal/model"
	"github.com/relabs-tech/wallfollower/internal/robot"
)

// RunSensorConsole prints the IR readings, their bins and the belief every
// sample period without driving the wheels. Useful for checking a trained
// model while pushing the robot along a wall by hand.
func RunSensorConsole() error {
	cfg := config.Get()

	filter, m, err := NewFilter(cfg)
	if err != nil {
		return err
	}
	log.Printf("console: model with labels %v over sensors %v", m.Labels(), m.Sensors())
	if cfg.RobotDriver == robot.DriverMQTT {
		return fmt.Errorf("sensor console needs a directly attached robot, not %q", cfg.RobotDriver)
	}
	simCfg := robot.DefaultSimConfig()
	simCfg.IRK = cfg.IRDistanceK
	simCfg.Step = cfg.SamplePeriod
	rb, err := robot.Open(robot.Options{
		Driver:     cfg.RobotDriver,
		SerialPort: cfg.RobotSerialPort,
		BaudRate:   cfg.RobotBaudRate,
		Sim:        simCfg,
	})
	if err != nil {
		return fmt.Errorf("open robot: %w", err)
	}
	defer rb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.SamplePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		rctx, cancel := context.WithTimeout(ctx, cfg.SensorReadTimeout)
		vec, err := rb.ReadIR(rctx)
		cancel()
		if err != nil {
			fmt.Printf("read error: %v\n", err)
			continue
		}
		r := model.ReadingsFromVector(vec, cfg.Sensors)
		printSensorLine(os.Stdout, cfg, r, filter.Observe(r))
	}
}

func printSensorLine(w io.Writer, cfg *config.Config, r model.Readings, step belief.Step) {
	var b strings.Builder
	for _, s := range cfg.Sensors {
		v, ok := r[s]
		if !ok {
			fmt.Fprintf(&b, "%s=   -   ", s)
			continue
		}
		bin := "?"
		if bn, ok := step.Bins[s]; ok {
			bin = bn.String()[:1]
		}
		fmt.Fprintf(&b, "%s=%6.1f%s ", s, v, bin)
	}
	d := control.DistanceFromIR(r[cfg.ControlSensor], cfg.IRDistanceK, cfg.DistanceMin, cfg.DistanceMax)
	fmt.Fprintf(&b, "d=%5.2fcm  %s", d, step.Posterior)
	if step.Reset {
		b.WriteString("  RESET")
	}
	fmt.Fprintln(w, b.String())
}
