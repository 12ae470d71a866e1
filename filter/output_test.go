package filter

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ghodss/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/fragments/integrate"
)

func sampleTable() Table {
	return Table{
		Material:                  "steel",
		NumberOfResolvedFragments: 2,
		NumberOfFragments:         2,
		TotalVolume:               10,
		Layout: integrate.Layout{
			VolumeWeighted: []integrate.Field{{Name: "velocity", NComps: 3}},
			Sums:           []integrate.Field{{Name: "count", NComps: 1}},
		},
		Fragments: []integrate.Fragment{
			{
				ID: 0, Volume: 8, CenterOfMass: [3]float64{1, 2, 3},
				VolumeWeighted: []float64{1, 0, 0}, Sums: []float64{8},
				OBB: &integrate.OBB{
					Axes:        [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
					HalfLengths: [3]float64{1, 1, 1},
				},
			},
			{ID: 1, Volume: 2, Split: true, VolumeWeighted: []float64{0, 1, 0}, Sums: []float64{2}},
		},
	}
}

func TestStatistics(t *testing.T) {
	data, err := Statistics([]Table{sampleTable()})
	require.NoError(t, err)
	var records []materialRecord
	require.NoError(t, yaml.Unmarshal(data, &records))
	require.Len(t, records, 1)
	mr := records[0]
	assert.Equal(t, "steel", mr.Material)
	assert.Equal(t, 2, mr.NumberOfResolvedFragments)
	assert.InDelta(t, 10, mr.TotalVolume, 1e-12)
	require.Len(t, mr.Fragments, 2)
	assert.Equal(t, []float64{1, 0, 0}, mr.Fragments[0].VolumeWeighted["velocity"])
	assert.Equal(t, []float64{2}, mr.Fragments[1].Sums["count"])
	assert.NotNil(t, mr.Fragments[0].OBB)
	assert.Nil(t, mr.Fragments[1].OBB)
	assert.True(t, mr.Fragments[1].Split)
}

func TestWriteGeometry(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeometry(&buf, sampleTable()))
	text := buf.String()
	assert.True(t, strings.HasPrefix(text, "# vtk DataFile Version 2.0\n"))
	assert.Contains(t, text, "POINTS 10 double\n")
	assert.Contains(t, text, "VERTICES 2 4\n")
	assert.Contains(t, text, "POLYGONS 6 30\n")
	assert.Contains(t, text, "CELL_DATA 8\n")
	{ // Without boxes there are no polygons
		tbl := sampleTable()
		tbl.Fragments[0].OBB = nil
		buf.Reset()
		require.NoError(t, WriteGeometry(&buf, tbl))
		assert.NotContains(t, buf.String(), "POLYGONS")
		assert.Contains(t, buf.String(), "CELL_DATA 2\n")
	}
}

func TestWriteOutputs(t *testing.T) {
	var (
		dir = t.TempDir()
		f   = quiet(NewMaterialInterfaceFilter())
		out = &Output{Tables: []Table{sampleTable()}}
	)
	f.WriteStatisticsOutput, f.WriteGeometryOutput = true, true
	f.OutputBaseName = filepath.Join(dir, "run")
	f.writeOutputs(out, f.Logger)
	assert.Zero(t, out.Diagnostics.OutputErrors)
	for _, name := range []string{"run_statistics.yaml", "run_steel.vtk"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	{ // Failures are counted, not returned
		f.OutputBaseName = filepath.Join(dir, "missing", "run")
		f.writeOutputs(out, f.Logger)
		assert.Equal(t, 2, out.Diagnostics.OutputErrors)
	}
	assert.Equal(t, "a_b_c", safeName("a/b c"))
}
