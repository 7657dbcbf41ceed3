package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/wallfollower/internal/config"
	"github.com/relabs-tech/wallfollower/internal/control"
	"github.com/relabs-tech/wallfollower/internal/model"
	"github.com/relabs-tech/wallfollower/internal/robot"
)

func TestMain(m *testing.M) {
	control.SetLogger(nil)
	os.Exit(m.Run())
}

// corridorCSV mimics logs from the simulated corridor: a strong side
// signal along the wall, a weak one inside the door gap.
func corridorCSV(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Time,IR6,IR7,Location\n")
	row := 0
	add := func(label string, ir6, ir7 float64) {
		row++
		fmt.Fprintf(&b, "%d,%.1f,%.1f,%s\n", row, ir6, ir7, label)
	}
	for i := 0; i < 20; i++ {
		add("Wall", 14+float64(i%5), 24+float64(i%12))
		add("Door", 6+float64(i%3), 8+float64(i%7))
		add("Door_Passed", 2+0.1*float64(i%4), 1+float64(i%4))
	}
	path := filepath.Join(dir, "corridor.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.ModelDir = filepath.Join(dir, "CPTs")
	cfg.Labels = model.ThreeStateLabels
	cfg.Sensors = []model.Sensor{"IR6", "IR7"}
	return cfg
}

func TestTrainWritesModel(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	input := corridorCSV(t, dir)

	res, err := train(cfg, input, false)
	require.NoError(t, err)
	assert.Equal(t, 60, res.Samples)
	assert.Equal(t, 20, res.Counts[model.Door])
	assert.False(t, res.EdgesReused)
	assert.Len(t, res.CPTFiles, 2)
	for _, f := range res.CPTFiles {
		assert.FileExists(t, f)
	}
	assert.FileExists(t, filepath.Join(cfg.ModelDir, model.BinEdgesFile))
	assert.FileExists(t, filepath.Join(cfg.ModelDir, model.FusionModelFile))
	assert.Equal(t, filepath.Join(dir, "corridor_discretized.csv"), res.Discretized)

	disc, err := os.ReadFile(res.Discretized)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(disc), "Time,IR6,IR7,Location,IR6_bin,IR7_bin\n"))

	m, err := model.LoadModel(cfg.ModelDir, cfg.Labels, cfg.Sensors)
	require.NoError(t, err)
	assert.Equal(t, cfg.Labels, m.Labels())

	// a second run keeps the published edges
	before, err := model.LoadBinEdges(filepath.Join(cfg.ModelDir, model.BinEdgesFile))
	require.NoError(t, err)
	res, err = train(cfg, input, false)
	require.NoError(t, err)
	assert.True(t, res.EdgesReused)
	after, err := model.LoadBinEdges(filepath.Join(cfg.ModelDir, model.BinEdgesFile))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBuildModelFromEditedCPT(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	_, err := train(cfg, corridorCSV(t, dir), false)
	require.NoError(t, err)

	path := filepath.Join(cfg.ModelDir, model.CPTFileName("IR7", cfg.LabelColumn))
	require.NoError(t, os.WriteFile(path, []byte("Location,Near,Medium,Far\nWall,2,1,1\n"), 0o644))

	m, err := buildModel(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, m.Likelihood(model.Wall, "IR7", model.Near), 1e-9)
	assert.InDelta(t, 1.0/3, m.Likelihood(model.Door, "IR7", model.Near), 1e-9, "label dropped from the CPT is uniform")

	loaded, err := model.LoadModel(cfg.ModelDir, cfg.Labels, cfg.Sensors)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, loaded.Likelihood(model.Wall, "IR7", model.Near), 1e-9)

	require.NoError(t, os.Remove(filepath.Join(cfg.ModelDir, model.CPTFileName("IR6", cfg.LabelColumn))))
	_, err = buildModel(cfg)
	assert.ErrorIs(t, err, model.ErrMissingResource)
}

func TestTrainMissingLabelColumn(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.LabelColumn = "Label"
	_, err := train(cfg, corridorCSV(t, dir), false)
	assert.Error(t, err)
}

func TestReplayWritesBeliefs(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	_, err := train(cfg, corridorCSV(t, dir), false)
	require.NoError(t, err)

	readings := filepath.Join(dir, "run.csv")
	require.NoError(t, os.WriteFile(readings, []byte("Sample,IR6,IR7\n1,15,30\n2,2,1\n3,2,2\n"), 0o644))
	out := filepath.Join(dir, "beliefs.csv")

	beliefs, err := replay(cfg, readings, out)
	require.NoError(t, err)
	require.Len(t, beliefs, 3)

	top, _ := beliefs[0].Top()
	assert.Equal(t, model.Wall, top)
	top, p := beliefs[2].Top()
	assert.Equal(t, model.DoorPassed, top)
	assert.Greater(t, p, 0.5)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Equal(t, "Sample,Wall,Door,Door_Passed", lines[0])
	assert.Len(t, lines, 4)
}

func TestReplayWithoutModel(t *testing.T) {
	dir := t.TempDir()
	_, err := replay(testConfig(dir), filepath.Join(dir, "run.csv"), filepath.Join(dir, "out.csv"))
	assert.ErrorIs(t, err, model.ErrMissingResource)
}

func TestNewFilterRejectsModelMissingSensor(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Sensors = []model.Sensor{"IR7"}
	cfg.ControlSensor = "IR7"
	_, err := train(cfg, corridorCSV(t, dir), false)
	require.NoError(t, err)

	cfg.Sensors = []model.Sensor{"IR6", "IR7"}
	_, _, err = NewFilter(cfg)
	assert.ErrorIs(t, err, model.ErrMissingResource)
}

func TestControlConfig(t *testing.T) {
	cfg := config.Default()
	cfg.WallSide = "left"
	cfg.KP = 2
	ctrl, err := ControlConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, control.WallLeft, ctrl.WallSide)
	assert.Equal(t, 2.0, ctrl.Kp)
	assert.Equal(t, cfg.SensorReadTimeout, ctrl.ReadTimeout)
	require.NoError(t, ctrl.Validate())

	cfg.WallSide = "both"
	_, err = ControlConfig(cfg)
	assert.Error(t, err)
}

func TestFollowerStopsPastDoorInSimulator(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	_, err := train(cfg, corridorCSV(t, dir), false)
	require.NoError(t, err)

	filter, _, err := NewFilter(cfg)
	require.NoError(t, err)
	ctrl, err := ControlConfig(cfg)
	require.NoError(t, err)

	simCfg := robot.DefaultSimConfig()
	simCfg.IRK = cfg.IRDistanceK
	sim := robot.NewSim(simCfg)

	loop, err := control.NewLoop(ctrl, sim, sim, filter, nil)
	require.NoError(t, err)

	ctx := context.Background()
	stopped := false
	for i := 0; i < 3000; i++ {
		if _, err := loop.Tick(ctx); errors.Is(err, control.ErrStopped) {
			stopped = true
			break
		}
	}
	require.True(t, stopped, "follower never stopped, sim state %+v", sim.State())

	sum := loop.Summary()
	assert.Equal(t, control.Stopped, sum.Phase)
	assert.Greater(t, sum.DoorTick, 0)
	assert.GreaterOrEqual(t, sum.Travelled, cfg.PostDoorDistance)
	assert.Greater(t, sim.State().X, 0.0)
}
