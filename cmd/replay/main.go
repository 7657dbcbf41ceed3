package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/wallfollower/internal/app"
	"github.com/relabs-tech/wallfollower/internal/config"
)

func main() {
	configPath := flag.String("config", "wallfollower_config.txt", "path to the KEY=VALUE config file")
	input := flag.String("input", "", "CSV of recorded IR readings")
	output := flag.String("output", "belief_trajectory.csv", "where to write the belief per row")
	flag.Parse()

	if *input == "" {
		log.Fatal("-input is required")
	}
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if _, err := app.RunBeliefReplay(*input, *output); err != nil {
		log.Fatalf("fatal: %v", err)
	}
	log.Printf("belief trajectory written to %s", *output)
}
