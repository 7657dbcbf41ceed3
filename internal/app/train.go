// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/relabs-tech/wallfollower/internal/belief"
	"github.com/relabs-tech/wallfollower/internal/config"
	"github.com/relabs-tech/wallfollower/internal/dataset"
	"github.com/relabs-tech/wallfollower/internal/model"
)

// TrainResult lists what a training run wrote.
type TrainResult struct {
	Samples     int
	Counts      map[model.Label]int
	CPTFiles    []string
	Discretized string
	EdgesReused bool
}

// RunTrain estimates the CPTs from a labeled CSV and writes them, the
// fusion model and the bin edges to cfg.ModelDir. Existing bin edges are
// reused unless overwriteEdges is set.
func RunTrain(input string, overwriteEdges bool) (*TrainResult, error) {
	return train(config.Get(), input, overwriteEdges)
}

func train(cfg *config.Config, input string, overwriteEdges bool) (*TrainResult, error) {
	tbl, err := dataset.ReadTableFile(input)
	if err != nil {
		return nil, err
	}
	samples, err := tbl.Samples(cfg.LabelColumn, cfg.Sensors)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", input, err)
	}
	log.Printf("train: %d labeled samples from %s", len(samples), input)

	res := &TrainResult{Samples: len(samples)}

	var fixed map[model.Sensor]model.BinEdges
	if !overwriteEdges {
		fixed, err = model.LoadBinEdges(filepath.Join(cfg.ModelDir, model.BinEdgesFile))
		switch {
		case err == nil:
			res.EdgesReused = true
			log.Printf("train: reusing bin edges from %s", cfg.ModelDir)
		case errors.Is(err, model.ErrMissingResource):
			fixed = nil
		default:
			return nil, err
		}
	}

	tr, err := model.TrainWithEdges(samples, cfg.Labels, cfg.Sensors, cfg.BinEpsilon, fixed)
	if err != nil {
		return nil, err
	}
	res.Counts = tr.Counts
	for _, l := range cfg.Labels {
		log.Printf("train: %-12s %d samples", l, tr.Counts[l])
	}

	if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	for _, s := range cfg.Sensors {
		path := filepath.Join(cfg.ModelDir, model.CPTFileName(s, cfg.LabelColumn))
		if err := model.WriteCPT(path, tr.CPTs[s], cfg.LabelColumn, cfg.Labels); err != nil {
			return nil, fmt.Errorf("write CPT for %s: %w", s, err)
		}
		res.CPTFiles = append(res.CPTFiles, path)
	}
	m, err := modelFromCPTs(cfg, tr.Edges)
	if err != nil {
		return nil, err
	}
	// a sensor missing from the reused edges file forces a rewrite
	writeEdges := overwriteEdges
	for _, s := range cfg.Sensors {
		if _, ok := fixed[s]; !ok && res.EdgesReused {
			writeEdges = true
		}
	}
	if err := model.SaveModel(cfg.ModelDir, m, writeEdges); err != nil {
		return nil, err
	}
	log.Printf("train: wrote %d CPTs and %s to %s", len(res.CPTFiles), model.FusionModelFile, cfg.ModelDir)

	res.Discretized = dataset.DiscretizedPath(input)
	f, err := os.Create(res.Discretized)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := dataset.WriteDiscretized(f, tbl, m.Discretizer(), cfg.Sensors); err != nil {
		return nil, fmt.Errorf("write %s: %w", res.Discretized, err)
	}
	log.Printf("train: discretized copy at %s", res.Discretized)
	return res, f.Close()
}

// RunBuildModel rebuilds the fusion model from the CPT files and bin edges
// already in cfg.ModelDir, e.g. after a CPT was edited by hand.
func RunBuildModel() (*model.FusionModel, error) {
	return buildModel(config.Get())
}

func buildModel(cfg *config.Config) (*model.FusionModel, error) {
	edges, err := model.LoadBinEdges(filepath.Join(cfg.ModelDir, model.BinEdgesFile))
	if err != nil {
		return nil, err
	}
	m, err := modelFromCPTs(cfg, edges)
	if err != nil {
		return nil, err
	}
	if err := model.SaveModel(cfg.ModelDir, m, false); err != nil {
		return nil, err
	}
	log.Printf("train: rebuilt %s from %d CPT files in %s", model.FusionModelFile, len(cfg.Sensors), cfg.ModelDir)
	return m, nil
}

// modelFromCPTs reads every configured sensor's CPT file back and builds
// the fusion model from them. A missing file fails with ErrMissingResource.
func modelFromCPTs(cfg *config.Config, edges map[model.Sensor]model.BinEdges) (*model.FusionModel, error) {
	cpts, err := model.ReadCPTs(cfg.ModelDir, cfg.Sensors, cfg.LabelColumn)
	if err != nil {
		return nil, fmt.Errorf("read CPTs: %w", err)
	}
	return model.BuildFusionModel(cfg.Labels, cfg.Sensors, cpts, edges)
}

// RunBeliefReplay feeds the readings of a CSV through a fresh filter and
// writes the belief after every row to output.
func RunBeliefReplay(input, output string) ([]belief.Belief, error) {
	return replay(config.Get(), input, output)
}

func replay(cfg *config.Config, input, output string) ([]belief.Belief, error) {
	filter, m, err := NewFilter(cfg)
	if err != nil {
		return nil, err
	}
	tbl, err := dataset.ReadTableFile(input)
	if err != nil {
		return nil, err
	}
	rows, err := tbl.Readings(m.Sensors())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", input, err)
	}

	beliefs := make([]belief.Belief, 0, len(rows))
	for i, r := range rows {
		step := filter.Observe(r)
		if step.Reset {
			log.Printf("replay: row %d had zero likelihood, belief reset to prior", i+1)
		}
		beliefs = append(beliefs, step.Posterior)
	}
	if len(beliefs) > 0 {
		top, p := beliefs[len(beliefs)-1].Top()
		log.Printf("replay: %d rows, final belief %s (top %s %.3f)", len(beliefs), beliefs[len(beliefs)-1], top, p)
	}

	f, err := os.Create(output)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := dataset.WriteBeliefs(f, m.Labels(), beliefs); err != nil {
		return nil, fmt.Errorf("write %s: %w", output, err)
	}
	return beliefs, f.Close()
}
