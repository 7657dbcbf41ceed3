// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/wallfollower/internal/app"
	"github.com/relabs-tech/wallfollower/internal/config"
)

func main() {
	configPath := flag.String("config", "wallfollower_config.txt", "path to the KEY=VALUE config file")
	flag.Parse()

	log.Println("starting wall follower sensor console (wheels idle)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunSensorConsole(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
