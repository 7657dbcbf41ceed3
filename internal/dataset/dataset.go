// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package dataset reads and writes the CSV files around training and replay.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/relabs-tech/wallfollower/internal/belief"
	"github.com/relabs-tech/wallfollower/internal/model"
)

// Table is a CSV file held in memory.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable reads a CSV with a header row.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV")
	}
	t := &Table{Header: records[0], Rows: records[1:]}
	for i := range t.Header {
		t.Header[i] = strings.TrimSpace(t.Header[i])
	}
	return t, nil
}

// ReadTableFile opens path and reads it with ReadTable.
func ReadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Column returns the index of name, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

func (t *Table) cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// sensorColumns maps each sensor to its column. Sensors without a column
// are left out.
func (t *Table) sensorColumns(sensors []model.Sensor) map[model.Sensor]int {
	cols := make(map[model.Sensor]int, len(sensors))
	for _, s := range sensors {
		if i := t.Column(string(s)); i >= 0 {
			cols[s] = i
		}
	}
	return cols
}

// readings parses one row. Blank cells are missing readings.
func (t *Table) readings(row []string, cols map[model.Sensor]int, line int) (model.Readings, error) {
	r := make(model.Readings, len(cols))
	for s, c := range cols {
		v := t.cell(row, c)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s %q: %w", line, s, v, err)
		}
		r[s] = f
	}
	return r, nil
}

// Samples turns the table into labeled samples. Rows with a blank label
// are skipped; a label outside the known set is an error.
func (t *Table) Samples(labelColumn string, sensors []model.Sensor) ([]model.Sample, error) {
	lc := t.Column(labelColumn)
	if lc < 0 {
		return nil, fmt.Errorf("label column %q not found", labelColumn)
	}
	cols := t.sensorColumns(sensors)
	if len(cols) == 0 {
		return nil, fmt.Errorf("no sensor columns found")
	}

	samples := make([]model.Sample, 0, len(t.Rows))
	for i, row := range t.Rows {
		line := i + 2
		raw := t.cell(row, lc)
		if raw == "" {
			continue
		}
		label, err := model.ParseLabel(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		r, err := t.readings(row, cols, line)
		if err != nil {
			return nil, err
		}
		samples = append(samples, model.Sample{Label: label, Readings: r})
	}
	return samples, nil
}

// Readings returns the sensor readings of every row, in file order.
func (t *Table) Readings(sensors []model.Sensor) ([]model.Readings, error) {
	cols := t.sensorColumns(sensors)
	if len(cols) == 0 {
		return nil, fmt.Errorf("no sensor columns found")
	}
	out := make([]model.Readings, 0, len(t.Rows))
	for i, row := range t.Rows {
		r, err := t.readings(row, cols, i+2)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// DiscretizedPath is where the discretized copy of a training file goes.
func DiscretizedPath(input string) string {
	if strings.HasSuffix(strings.ToLower(input), ".csv") {
		input = input[:len(input)-4]
	}
	return input + "_discretized.csv"
}

// WriteDiscretized copies the table to w with a <sensor>_bin column added
// for each sensor that has edges. Blank readings get a blank bin.
func WriteDiscretized(w io.Writer, t *Table, disc *model.Discretizer, sensors []model.Sensor) error {
	type binCol struct {
		sensor model.Sensor
		col    int
	}
	var bins []binCol
	header := append([]string(nil), t.Header...)
	for _, s := range sensors {
		c := t.Column(string(s))
		if c < 0 {
			continue
		}
		if _, ok := disc.Edges(s); !ok {
			continue
		}
		bins = append(bins, binCol{s, c})
		header = append(header, string(s)+"_bin")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, row := range t.Rows {
		out := make([]string, len(t.Header), len(header))
		copy(out, row)
		for _, b := range bins {
			v := t.cell(row, b.col)
			if v == "" {
				out = append(out, "")
				continue
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("line %d: %s %q: %w", i+2, b.sensor, v, err)
			}
			bin, err := disc.Bin(b.sensor, f)
			if err != nil {
				return err
			}
			out = append(out, bin.String())
		}
		if err := cw.Write(out); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBeliefs writes one row per belief: Sample, then one column per label.
func WriteBeliefs(w io.Writer, labels []model.Label, beliefs []belief.Belief) error {
	cw := csv.NewWriter(w)
	header := []string{"Sample"}
	for _, l := range labels {
		header = append(header, string(l))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, b := range beliefs {
		row := []string{strconv.Itoa(i + 1)}
		for _, l := range labels {
			row = append(row, strconv.FormatFloat(b.Prob(l), 'f', 6, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
