package control

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	SetLogger(nil)
	os.Exit(m.Run())
}

func TestPIDTerms(t *testing.T) {
	p := NewPID(1, 0.5, 0.25)
	assert.Equal(t, 0.0, p.Update(0, 0.1))

	// e=2: P=2, I=0.5*0.2=0.1, D=0.25*(2/0.1)=5
	assert.InDelta(t, 7.1, p.Update(2, 0.1), 1e-9)
	// e=2 again: I grows, D vanishes
	assert.InDelta(t, 2.2, p.Update(2, 0.1), 1e-9)

	p.Reset()
	assert.Equal(t, 0.0, p.Update(0, 0.1))
}

func TestPIDZeroDt(t *testing.T) {
	p := NewPID(1, 1, 1)
	assert.InDelta(t, 3.0, p.Update(3, 0), 1e-12)
}

func TestDistanceFromIR(t *testing.T) {
	assert.InDelta(t, 5.0, DistanceFromIR(40, 200, 1, 30), 1e-12)
	assert.Equal(t, 30.0, DistanceFromIR(0, 200, 1, 30))
	assert.Equal(t, 30.0, DistanceFromIR(-5, 200, 1, 30))
	assert.Equal(t, 30.0, DistanceFromIR(2, 200, 1, 30))
	assert.Equal(t, 1.0, DistanceFromIR(1000, 200, 1, 30))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.IRDistanceK = 180 // IR 30 reads exactly the 6 cm target
	return cfg
}

func TestFollowerOnTarget(t *testing.T) {
	f := NewFollower(testConfig())
	cmd := f.Step(30, 0, 0.1)
	assert.Equal(t, 6.0, cmd.Distance)
	assert.Equal(t, 0.0, cmd.Error)
	assert.InDelta(t, 0, cmd.Correction, 1e-12)
	assert.Equal(t, 25.0, cmd.Left)
	assert.Equal(t, 25.0, cmd.Right)
	assert.Equal(t, Following, cmd.Phase)
	assert.False(t, cmd.Done())
}

func TestFollowerSteersAwayFromRightWall(t *testing.T) {
	f := NewFollower(testConfig())
	cmd := f.Step(90, 0, 0.1) // 2 cm, too close
	assert.Greater(t, cmd.Error, 0.0)
	assert.Greater(t, cmd.Correction, 0.0)
	assert.Greater(t, cmd.Right, cmd.Left)
}

func TestFollowerSteersTowardRightWall(t *testing.T) {
	f := NewFollower(testConfig())
	cmd := f.Step(10, 0, 0.1) // 18 cm, too far
	assert.Less(t, cmd.Error, 0.0)
	assert.Greater(t, cmd.Left, cmd.Right)
}

func TestFollowerLeftWallMirrors(t *testing.T) {
	cfg := testConfig()
	cfg.WallSide = WallLeft
	f := NewFollower(cfg)
	cmd := f.Step(90, 0, 0.1)
	assert.Greater(t, cmd.Left, cmd.Right)
}

func TestFollowerClampsSpeeds(t *testing.T) {
	cfg := testConfig()
	cfg.Kp = 100
	f := NewFollower(cfg)
	cmd := f.Step(180, 0, 0.1)
	assert.Equal(t, cfg.MinSpeed, cmd.Left)
	assert.Equal(t, cfg.MaxSpeed, cmd.Right)
}

func TestDoorStopLatchesOnce(t *testing.T) {
	d := NewDoorStop(0.8, 10)
	probs := []float64{0.5, 0.85, 0.1, 0.9, 0.95, 0.2, 0.99, 0.3, 0.9, 0.9, 0.9, 0.9}
	var phases []Phase
	for _, p := range probs {
		phases = append(phases, d.Observe(p, 10, 0.1))
	}

	assert.Equal(t, Following, phases[0])
	for i := 1; i < 10; i++ {
		assert.Equal(t, StoppingAfterDoor, phases[i], "tick %d", i)
	}
	// the trigger tick counts, so ten 1 cm steps end on index 10
	assert.Equal(t, Stopped, phases[10])
	assert.Equal(t, Stopped, phases[11])
	assert.Equal(t, 1, d.Triggers())
	assert.Equal(t, 10.0, d.Travelled())
}

func TestDoorStopThresholdIsStrict(t *testing.T) {
	d := NewDoorStop(0.8, 10)
	assert.Equal(t, Following, d.Observe(0.8, 5, 0.1))
	assert.Equal(t, 0, d.Triggers())
}

func TestFollowerStopsWheels(t *testing.T) {
	cfg := testConfig()
	cfg.PostDoorDistance = 0
	f := NewFollower(cfg)
	cmd := f.Step(30, 0.95, 0.1)
	assert.True(t, cmd.Done())
	assert.Equal(t, 0.0, cmd.Left)
	assert.Equal(t, 0.0, cmd.Right)

	// probability falling back does not restart following
	cmd = f.Step(30, 0, 0.1)
	assert.True(t, cmd.Done())
}

func TestParseWallSide(t *testing.T) {
	s, err := ParseWallSide(" Left ")
	require.NoError(t, err)
	assert.Equal(t, WallLeft, s)
	assert.Equal(t, "left", s.String())

	_, err = ParseWallSide("up")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ControlSensor = "IR9"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ReadTimeout = 2 * cfg.SamplePeriod
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DoorPassedThreshold = 1
	assert.Error(t, cfg.Validate())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "STOPPING_AFTER_DOOR", StoppingAfterDoor.String())
	assert.Equal(t, "Phase(9)", Phase(9).String())
}
