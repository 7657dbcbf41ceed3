package dataset

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/wallfollower/internal/belief"
	"github.com/relabs-tech/wallfollower/internal/model"
)

const training = `Time,IR6,IR7,Location
0.1,10,150,Wall
0.2,12,,Door
0.3,,250,Door_Passed
0.4,11,200,
`

func TestSamples(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader(training))
	require.NoError(t, err)

	samples, err := tbl.Samples("Location", []model.Sensor{"IR6", "IR7", "IR1"})
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.Equal(t, model.Wall, samples[0].Label)
	assert.Equal(t, model.Readings{"IR6": 10, "IR7": 150}, samples[0].Readings)
	assert.Equal(t, model.Readings{"IR6": 12}, samples[1].Readings)
	assert.Equal(t, model.Readings{"IR7": 250}, samples[2].Readings)
}

func TestSamplesErrors(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader("IR7,Location\n1,Hall\n"))
	require.NoError(t, err)
	_, err = tbl.Samples("Location", model.AllSensors())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = tbl.Samples("Label", model.AllSensors())
	assert.Error(t, err)

	tbl, err = ReadTable(strings.NewReader("IR7,Location\nfar,Wall\n"))
	require.NoError(t, err)
	_, err = tbl.Samples("Location", model.AllSensors())
	assert.Error(t, err)

	_, err = ReadTable(strings.NewReader(""))
	assert.Error(t, err)
}

func TestWriteDiscretized(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader(training))
	require.NoError(t, err)
	disc, err := model.NewDiscretizer(map[model.Sensor]model.BinEdges{"IR7": {100, 200, 300, 400}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteDiscretized(&buf, tbl, disc, []model.Sensor{"IR6", "IR7"}))

	want := `Time,IR6,IR7,Location,IR7_bin
0.1,10,150,Wall,Near
0.2,12,,Door,
0.3,,250,Door_Passed,Medium
0.4,11,200,,Medium
`
	assert.Equal(t, want, buf.String())
}

func TestReadings(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader("Sample,IR1,IR7\n1,5,100\n2,6,\n"))
	require.NoError(t, err)
	rs, err := tbl.Readings(model.AllSensors())
	require.NoError(t, err)
	assert.Equal(t, []model.Readings{{"IR1": 5, "IR7": 100}, {"IR1": 6}}, rs)

	_, err = tbl.Readings([]model.Sensor{"IR3"})
	assert.Error(t, err)
}

func TestWriteBeliefs(t *testing.T) {
	labels := []model.Label{model.Wall, model.Door}
	b, err := belief.New(labels, []float64{0.25, 0.75})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteBeliefs(&buf, labels, []belief.Belief{belief.Uniform(labels), b}))
	assert.Equal(t, "Sample,Wall,Door\n1,0.500000,0.500000\n2,0.250000,0.750000\n", buf.String())
}

func TestDiscretizedPath(t *testing.T) {
	assert.Equal(t, "data/run_discretized.csv", DiscretizedPath("data/run.csv"))
	assert.Equal(t, "data/run_discretized.csv", DiscretizedPath("data/run"))
}
