package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/wallfollower/internal/app"
	"github.com/relabs-tech/wallfollower/internal/config"
)

func main() {
	configPath := flag.String("config", "wallfollower_config.txt", "path to the KEY=VALUE config file")
	input := flag.String("input", "", "labeled training CSV")
	overwrite := flag.Bool("overwrite-edges", false, "recompute and rewrite ir_bin_edges.json")
	fromCPTs := flag.Bool("from-cpts", false, "rebuild the fusion model from the CPT files in MODEL_DIR")
	flag.Parse()

	if *input == "" && !*fromCPTs {
		log.Fatal("-input is required")
	}
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *fromCPTs {
		m, err := app.RunBuildModel()
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		log.Printf("fusion model rebuilt for labels %v over sensors %v", m.Labels(), m.Sensors())
		return
	}

	res, err := app.RunTrain(*input, *overwrite)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	log.Printf("trained on %d samples, %d CPT files", res.Samples, len(res.CPTFiles))
}
