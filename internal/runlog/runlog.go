// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package runlog keeps a SQLite history of follower runs and their ticks.
package runlog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/wallfollower/internal/telemetry"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	driver      TEXT NOT NULL,
	model_dir   TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	ticks       INTEGER NOT NULL DEFAULT 0,
	door_tick   INTEGER NOT NULL DEFAULT 0,
	final_phase TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS ticks (
	run_id     TEXT NOT NULL,
	tick       INTEGER NOT NULL,
	at         TIMESTAMP NOT NULL,
	phase      TEXT NOT NULL,
	distance   DOUBLE,
	left_speed DOUBLE,
	right_speed DOUBLE,
	stale      BOOLEAN NOT NULL DEFAULT 0,
	reset      BOOLEAN NOT NULL DEFAULT 0,
	readings   TEXT NOT NULL,
	belief     TEXT NOT NULL,
	PRIMARY KEY (run_id, tick),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// ErrUnknownRun is returned for run ids that were never started.
var ErrUnknownRun = errors.New("unknown run")

type DB struct {
	*sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; SQLite serialises anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db}, nil
}

// Run is one row of the runs table.
type Run struct {
	ID         string     `json:"run_id"`
	Driver     string     `json:"driver"`
	ModelDir   string     `json:"model_dir"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Ticks      int        `json:"ticks"`
	DoorTick   int        `json:"door_tick"`
	FinalPhase string     `json:"final_phase"`
	Error      string     `json:"error,omitempty"`
}

// StartRun inserts a new run and returns its id.
func (db *DB) StartRun(driver, modelDir string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec("INSERT INTO runs (run_id, driver, model_dir, started_at) VALUES (?, ?, ?, ?)",
		id, driver, modelDir, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun stores the outcome of a run.
func (db *DB) FinishRun(id string, ticks, doorTick int, phase string, runErr error) error {
	var msg string
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := db.Exec(`UPDATE runs SET finished_at = ?, ticks = ?, door_tick = ?, final_phase = ?, error = ?
		WHERE run_id = ?`, time.Now().UTC(), ticks, doorTick, phase, msg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, id)
	}
	return nil
}

// Record stores one tick. It satisfies telemetry.Recorder.
func (db *DB) Record(r telemetry.TickRecord) error {
	if r.RunID == "" {
		return fmt.Errorf("tick %d has no run id", r.Tick)
	}
	readings, err := json.Marshal(r.Readings)
	if err != nil {
		return err
	}
	bel, err := json.Marshal(r.Belief)
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT INTO ticks
		(run_id, tick, at, phase, distance, left_speed, right_speed, stale, reset, readings, belief)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Tick, r.Time.UTC(), r.Phase, r.Distance, r.Left, r.Right, r.Stale, r.Reset,
		string(readings), string(bel))
	return err
}

// Runs lists the most recent runs first.
func (db *DB) Runs(limit int) ([]Run, error) {
	rows, err := db.Query(`SELECT run_id, driver, model_dir, started_at, finished_at, ticks, door_tick, final_phase, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Driver, &r.ModelDir, &r.StartedAt, &finished,
			&r.Ticks, &r.DoorTick, &r.FinalPhase, &r.Error); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Ticks returns the stored ticks of one run in order.
func (db *DB) Ticks(runID string) ([]telemetry.TickRecord, error) {
	rows, err := db.Query(`SELECT tick, at, phase, distance, left_speed, right_speed, stale, reset, readings, belief
		FROM ticks WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.TickRecord
	for rows.Next() {
		r := telemetry.TickRecord{RunID: runID}
		var readings, bel string
		if err := rows.Scan(&r.Tick, &r.Time, &r.Phase, &r.Distance, &r.Left, &r.Right,
			&r.Stale, &r.Reset, &readings, &bel); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(readings), &r.Readings); err != nil {
			return nil, fmt.Errorf("tick %d readings: %w", r.Tick, err)
		}
		if err := json.Unmarshal([]byte(bel), &r.Belief); err != nil {
			return nil, fmt.Errorf("tick %d belief: %w", r.Tick, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
