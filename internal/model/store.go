// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package model

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// File names inside a model directory.
const (
	BinEdgesFile    = "ir_bin_edges.json"
	FusionModelFile = "sensor_fusion_model.json"
)

// CPTFileName is the per-sensor CPT file, e.g. CPT_IR7_vs_Location.csv.
func CPTFileName(s Sensor, labelColumn string) string {
	return fmt.Sprintf("CPT_%s_vs_%s.csv", s, labelColumn)
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingResource, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadBinEdges reads sensor → [e0,e1,e2,e3].
func LoadBinEdges(path string) (map[Sensor]BinEdges, error) {
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string][]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(map[Sensor]BinEdges, len(raw))
	for name, vals := range raw {
		s, err := ParseSensor(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if len(vals) != NumBins+1 {
			return nil, fmt.Errorf("%s: sensor %s has %d edges, want %d", path, s, len(vals), NumBins+1)
		}
		var e BinEdges
		copy(e[:], vals)
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%s: sensor %s: %w", path, s, err)
		}
		out[s] = e
	}
	return out, nil
}

// SaveBinEdges writes the edges file.
func SaveBinEdges(path string, edges map[Sensor]BinEdges) error {
	raw := make(map[string][]float64, len(edges))
	for s, e := range edges {
		raw[string(s)] = append([]float64(nil), e[:]...)
	}
	return writeJSON(path, raw)
}

// SaveModel writes the fusion model and, unless one already exists and
// overwriteEdges is false, the bin edges file.
func SaveModel(dir string, m *FusionModel, overwriteEdges bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	raw := make(map[string]map[string][]float64, len(m.labels))
	for _, l := range m.labels {
		bySensor := make(map[string][]float64, len(m.sensors))
		for _, s := range m.sensors {
			row, _ := m.Row(l, s)
			bySensor[string(s)] = append([]float64(nil), row[:]...)
		}
		raw[string(l)] = bySensor
	}
	if err := writeJSON(filepath.Join(dir, FusionModelFile), raw); err != nil {
		return err
	}

	edgesPath := filepath.Join(dir, BinEdgesFile)
	if !overwriteEdges {
		if _, err := os.Stat(edgesPath); err == nil {
			return nil
		}
	}
	return SaveBinEdges(edgesPath, m.edges)
}

// LoadModel reads the fusion model and bin edges from dir. Labels of the
// given set that the file does not contain get uniform rows; a nil set uses
// the labels found in the file.
//
// Every sensor in sensors must have trained rows and bin edges, otherwise
// ErrMissingResource is returned. A nil sensor set uses the sensors found
// in the file.
func LoadModel(dir string, labels []Label, sensors []Sensor) (*FusionModel, error) {
	edges, err := LoadBinEdges(filepath.Join(dir, BinEdgesFile))
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	path := filepath.Join(dir, FusionModelFile)
	b, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	var raw map[string]map[string][]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("load model: parse %s: %w", path, err)
	}

	trained := make(map[Label]map[Sensor]Row, len(raw))
	sensorSet := map[Sensor]bool{}
	for ln, bySensor := range raw {
		l, err := ParseLabel(ln)
		if err != nil {
			return nil, fmt.Errorf("load model: %s: %w", path, err)
		}
		rows := make(map[Sensor]Row, len(bySensor))
		for sn, probs := range bySensor {
			s, err := ParseSensor(sn)
			if err != nil {
				return nil, fmt.Errorf("load model: %s: %w", path, err)
			}
			if len(probs) != NumBins {
				return nil, fmt.Errorf("load model: %s/%s has %d probabilities, want %d", l, s, len(probs), NumBins)
			}
			var row Row
			copy(row[:], probs)
			rows[s] = row
			sensorSet[s] = true
		}
		trained[l] = rows
	}
	if len(sensorSet) == 0 {
		return nil, fmt.Errorf("load model: %s contains no sensors", path)
	}

	if labels == nil {
		for _, l := range FourStateLabels {
			if _, ok := trained[l]; ok {
				labels = append(labels, l)
			}
		}
	}
	if sensors == nil {
		for s := range sensorSet {
			if _, ok := edges[s]; !ok {
				return nil, fmt.Errorf("load model: %w: no bin edges for %s", ErrUnknownSensor, s)
			}
			sensors = append(sensors, s)
		}
		sort.Slice(sensors, func(i, j int) bool { return sensors[i].Index() < sensors[j].Index() })
	} else {
		for _, s := range sensors {
			if !sensorSet[s] {
				return nil, fmt.Errorf("load model: %w: no CPT rows for %s in %s", ErrMissingResource, s, path)
			}
			if _, ok := edges[s]; !ok {
				return nil, fmt.Errorf("load model: %w: no bin edges for %s", ErrMissingResource, s)
			}
		}
		sensors = append([]Sensor(nil), sensors...)
	}

	lik := make(map[Label]map[Sensor]Row, len(labels))
	for _, l := range labels {
		rows := make(map[Sensor]Row, len(sensors))
		for _, s := range sensors {
			row, ok := trained[l][s]
			if !ok {
				row = UniformRow()
			}
			rows[s] = row
		}
		lik[l] = rows
	}

	used := make(map[Sensor]BinEdges, len(sensors))
	for _, s := range sensors {
		used[s] = edges[s]
	}
	return newFusionModel(labels, sensors, lik, used)
}

// WriteCPT writes one CPT as a table: rows are labels, columns are bins.
func WriteCPT(path string, cpt CPT, labelColumn string, labels []Label) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{labelColumn}, BinNames[:]...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, l := range labels {
		row, ok := cpt.Row(l)
		if !ok {
			continue
		}
		rec := []string{string(l)}
		for _, p := range row {
			rec = append(rec, strconv.FormatFloat(p, 'g', -1, 64))
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// ReadCPT reads a CPT table and re-normalizes its rows.
func ReadCPT(path string, sensor Sensor) (CPT, error) {
	b, err := readFile(path)
	if err != nil {
		return CPT{}, err
	}
	records, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	if err != nil {
		return CPT{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return CPT{}, fmt.Errorf("parse %s: empty file", path)
	}

	col := map[string]int{}
	for i, h := range records[0] {
		col[strings.TrimSpace(h)] = i
	}
	var binCol [NumBins]int
	for b, name := range BinNames {
		i, ok := col[name]
		if !ok {
			return CPT{}, fmt.Errorf("parse %s: missing column %q", path, name)
		}
		binCol[b] = i
	}

	cpt := CPT{Sensor: sensor, Rows: map[Label]Row{}}
	for n, rec := range records[1:] {
		l, err := ParseLabel(rec[0])
		if err != nil {
			return CPT{}, fmt.Errorf("parse %s row %d: %w", path, n+2, err)
		}
		var row Row
		for b, i := range binCol {
			if i >= len(rec) {
				return CPT{}, fmt.Errorf("parse %s row %d: short row", path, n+2)
			}
			v := strings.TrimSpace(rec[i])
			if v == "" {
				continue
			}
			p, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return CPT{}, fmt.Errorf("parse %s row %d: %w", path, n+2, err)
			}
			row[b] = p
		}
		cpt.Rows[l] = row
	}
	cpt.Normalize()
	return cpt, nil
}

// ReadCPTs reads the CPT file of every sensor in dir.
func ReadCPTs(dir string, sensors []Sensor, labelColumn string) (map[Sensor]CPT, error) {
	out := make(map[Sensor]CPT, len(sensors))
	for _, s := range sensors {
		cpt, err := ReadCPT(filepath.Join(dir, CPTFileName(s, labelColumn)), s)
		if err != nil {
			return nil, err
		}
		out[s] = cpt
	}
	return out, nil
}
