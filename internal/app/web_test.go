package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/wallfollower/internal/belief"
	"github.com/relabs-tech/wallfollower/internal/config"
	"github.com/relabs-tech/wallfollower/internal/model"
	"github.com/relabs-tech/wallfollower/internal/runlog"
	"github.com/relabs-tech/wallfollower/internal/telemetry"
)

func tick(n int, phase string, doorPassed float64) telemetry.TickRecord {
	return telemetry.TickRecord{
		Tick:     n,
		Phase:    phase,
		Distance: 6.5,
		Left:     24,
		Right:    26,
		Belief: map[string]float64{
			"Wall":        1 - doorPassed,
			"Door_Passed": doorPassed,
		},
	}
}

func TestBeliefAPI(t *testing.T) {
	hub := newTickHub()
	srv := httptest.NewServer(newWebMux(hub, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/belief")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	hub.update(tick(3, "FOLLOWING", 0.75))

	resp, err = http.Get(srv.URL + "/api/belief")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got beliefSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 3, got.Tick)
	assert.Equal(t, "Door_Passed", got.Top)
	assert.Equal(t, 0.75, got.TopProb)
	assert.Equal(t, 26.0, got.Right)
}

func TestBeliefWebsocket(t *testing.T) {
	hub := newTickHub()
	hub.update(tick(1, "FOLLOWING", 0.1))
	srv := httptest.NewServer(newWebMux(hub, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/belief"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first beliefSummary
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 1, first.Tick)
	assert.Equal(t, "Wall", first.Top)

	hub.update(tick(2, "STOPPING_AFTER_DOOR", 0.9))
	var second beliefSummary
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, 2, second.Tick)
	assert.Equal(t, "STOPPING_AFTER_DOOR", second.Phase)
}

func TestDashboardPage(t *testing.T) {
	srv := httptest.NewServer(newWebMux(newTickHub(), nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/ws/belief")

	// without a run log there is no runs API
	resp, err = http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunsAPI(t *testing.T) {
	db, err := runlog.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer db.Close()

	id, err := db.StartRun("sim", "CPTs")
	require.NoError(t, err)
	for i := 1; i <= 2; i++ {
		rec := tick(i, "FOLLOWING", 0.2)
		rec.RunID = id
		rec.Time = time.Date(2026, 5, 4, 10, 0, i, 0, time.UTC)
		rec.Readings = map[string]float64{"IR7": 120}
		require.NoError(t, db.Record(rec))
	}
	require.NoError(t, db.FinishRun(id, 2, 0, "FOLLOWING", nil))

	srv := httptest.NewServer(newWebMux(newTickHub(), db))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs?limit=5")
	require.NoError(t, err)
	var runs []runlog.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	resp.Body.Close()
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, 2, runs[0].Ticks)

	resp, err = http.Get(srv.URL + "/api/runs/" + id + "/ticks")
	require.NoError(t, err)
	var ticks []telemetry.TickRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ticks))
	resp.Body.Close()
	require.Len(t, ticks, 2)
	assert.Equal(t, 120.0, ticks[1].Readings["IR7"])

	resp, err = http.Get(srv.URL + "/api/runs/nope/ticks")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/runs?limit=-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusLines(t *testing.T) {
	assert.Equal(t, []string{"Wall follower", "Waiting..."}, statusLines(telemetry.TickRecord{}, false))

	lines := statusLines(tick(42, "STOPPED", 0.9), true)
	require.Len(t, lines, 4)
	assert.Equal(t, "Door_Passed 0.90", lines[0])
	assert.Equal(t, "STOPPED", lines[1])
	assert.Contains(t, lines[2], "#42")

	img := renderLines(lines)
	lit := 0
	for _, b := range img.Pix {
		if b != 0 {
			lit++
		}
	}
	assert.Greater(t, lit, 0)
}

func TestPrintSensorLine(t *testing.T) {
	cfg := config.Default()
	cfg.Sensors = []model.Sensor{"IR6", "IR7"}
	b := belief.Uniform(model.ThreeStateLabels)
	step := belief.Step{
		Bins:      map[model.Sensor]model.Bin{"IR7": model.Far},
		Posterior: b,
	}
	var buf bytes.Buffer
	printSensorLine(&buf, cfg, model.Readings{"IR7": 40}, step)
	line := buf.String()
	assert.Contains(t, line, "IR6=   -")
	assert.Contains(t, line, "IR7=  40.0F")
	assert.Contains(t, line, "d= 5.00cm")
	assert.Contains(t, line, "Wall=0.33")
}
