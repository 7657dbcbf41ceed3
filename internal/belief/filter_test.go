package belief

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/wallfollower/internal/model"
)

// IR7 edges: Near < 100 <= Medium < 200 <= Far.
var ir7Edges = map[model.Sensor]model.BinEdges{"IR7": {0, 100, 200, 300}}

func buildModel(t *testing.T, rows map[model.Label]model.Row) *model.FusionModel {
	t.Helper()
	m, err := model.BuildFusionModel(model.FourStateLabels, []model.Sensor{"IR7"},
		map[model.Sensor]model.CPT{"IR7": {Sensor: "IR7", Rows: rows}}, ir7Edges)
	require.NoError(t, err)
	return m
}

func doorFavoringModel(t *testing.T) *model.FusionModel {
	other := model.Row{0.48335, 0.48335, 0.0333}
	return buildModel(t, map[model.Label]model.Row{
		model.Wall:       other,
		model.DoorStart:  other,
		model.Door:       {0.05, 0.05, 0.9},
		model.DoorPassed: other,
	})
}

func assertDistribution(t *testing.T, b Belief) {
	t.Helper()
	var total float64
	for _, p := range b.Probs() {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestFilterStartsUniform(t *testing.T) {
	f := NewFilter(doorFavoringModel(t))
	for _, l := range model.FourStateLabels {
		assert.InDelta(t, 0.25, f.Belief().Prob(l), 1e-12)
	}
}

func TestSingleFarReadingFavorsDoor(t *testing.T) {
	f := NewFilter(doorFavoringModel(t))
	post := f.Update(model.Readings{"IR7": 250})

	want := 0.9 * 0.25 / (0.9*0.25 + 3*0.0333*0.25)
	assert.InDelta(t, want, post.Prob(model.Door), 1e-9)
	assert.Greater(t, post.Prob(model.Door), 0.5)
	top, _ := post.Top()
	assert.Equal(t, model.Door, top)
	assertDistribution(t, post)
}

func TestRepeatedEvidenceAccumulates(t *testing.T) {
	f := NewFilter(doorFavoringModel(t))
	first := f.Update(model.Readings{"IR7": 250}).Prob(model.Door)
	second := f.Update(model.Readings{"IR7": 250}).Prob(model.Door)
	assert.Greater(t, second, first)
	assert.Equal(t, second, f.Belief().Prob(model.Door), "posterior becomes the next prior")
}

func TestAllZeroLikelihoodResetsToStaticPrior(t *testing.T) {
	m := buildModel(t, map[model.Label]model.Row{
		model.Wall:       {0.9, 0.1, 0},
		model.DoorStart:  {0.3, 0.7, 0},
		model.Door:       {0.1, 0.9, 0},
		model.DoorPassed: {0.5, 0.5, 0},
	})
	f := NewFilter(m)

	skewed := f.Update(model.Readings{"IR7": 10})
	require.Greater(t, skewed.Prob(model.Wall), 0.25)

	step := f.Observe(model.Readings{"IR7": 290})
	assert.True(t, step.Reset)
	for _, l := range model.FourStateLabels {
		assert.Equal(t, 0.0, step.Likelihood[l])
		assert.InDelta(t, 0.25, step.Posterior.Prob(l), 1e-12)
	}
	_, resets := f.Steps()
	assert.Equal(t, 1, resets)
}

func TestResetUsesConfiguredPrior(t *testing.T) {
	m := buildModel(t, map[model.Label]model.Row{
		model.Wall: {1, 0, 0}, model.DoorStart: {1, 0, 0}, model.Door: {1, 0, 0}, model.DoorPassed: {1, 0, 0},
	})
	prior, err := New(model.FourStateLabels, []float64{0.7, 0.1, 0.1, 0.1})
	require.NoError(t, err)
	f := NewFilter(m, WithPrior(prior))

	post := f.Update(model.Readings{"IR7": 250})
	assert.InDelta(t, 0.7, post.Prob(model.Wall), 1e-12)
}

func TestUpdateKeepsDistributionInvariant(t *testing.T) {
	f := NewFilter(doorFavoringModel(t))
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		post := f.Update(model.Readings{"IR7": rng.Float64()*500 - 50})
		assertDistribution(t, post)
	}
}

func TestMissingAndUnknownSensors(t *testing.T) {
	f := NewFilter(doorFavoringModel(t))

	step := f.Observe(model.Readings{"IR3": 250})
	assert.Empty(t, step.Bins, "sensor outside the model is ignored")
	for _, l := range model.FourStateLabels {
		assert.InDelta(t, 0.25, step.Posterior.Prob(l), 1e-12)
	}

	step = f.Observe(model.Readings{})
	assert.False(t, step.Reset)
	assertDistribution(t, step.Posterior)
}

func TestOutOfRangeReadingClamps(t *testing.T) {
	f := NewFilter(doorFavoringModel(t))
	step := f.Observe(model.Readings{"IR7": 4000})
	assert.Equal(t, model.Far, step.Bins["IR7"])
	assert.Greater(t, step.Posterior.Prob(model.Door), 0.5)
}

func TestFloorKeepsLabelsAlive(t *testing.T) {
	f := NewFilter(doorFavoringModel(t), WithFloor(0.01))
	var post Belief
	for i := 0; i < 50; i++ {
		post = f.Update(model.Readings{"IR7": 250})
	}
	for _, l := range model.FourStateLabels {
		assert.GreaterOrEqual(t, post.Prob(l), 0.01-1e-12)
	}
	assertDistribution(t, post)

	// Evidence for the other labels can recover them.
	for i := 0; i < 20; i++ {
		post = f.Update(model.Readings{"IR7": 10})
	}
	assert.Less(t, post.Prob(model.Door), 0.5)
}

func TestWithoutFloorLabelsDecay(t *testing.T) {
	f := NewFilter(doorFavoringModel(t))
	var post Belief
	for i := 0; i < 50; i++ {
		post = f.Update(model.Readings{"IR7": 250})
	}
	assert.Less(t, post.Prob(model.Wall), 1e-20)
}

func TestFilterReset(t *testing.T) {
	f := NewFilter(doorFavoringModel(t))
	f.Update(model.Readings{"IR7": 250})
	f.Reset()
	assert.InDelta(t, 0.25, f.Belief().Prob(model.Door), 1e-12)
}

func TestInvalidFloorIgnored(t *testing.T) {
	f := NewFilter(doorFavoringModel(t), WithFloor(0.5))
	for i := 0; i < 30; i++ {
		f.Update(model.Readings{"IR7": 250})
	}
	assert.Less(t, f.Belief().Prob(model.Wall), 0.5)
}
