package app

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/wallfollower/internal/config"
	"github.com/relabs-tech/wallfollower/internal/telemetry"
)

// RunConsoleMQTT prints every published tick until Ctrl+C.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	var lastPhase string
	err = telemetry.Subscribe(client, cfg.TopicTelemetry, func(r telemetry.TickRecord) {
		if r.Phase != lastPhase && lastPhase != "" {
			fmt.Printf("[PHASE] %s -> %s at tick %d\n", lastPhase, r.Phase, r.Tick)
		}
		lastPhase = r.Phase
		fmt.Println(telemetry.Line(r))
	})
	if err != nil {
		return err
	}
	log.Printf("console: subscribed to %s", cfg.TopicTelemetry)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
