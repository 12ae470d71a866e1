package filter

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/mitchellh/go-homedir"

	"github.com/notargets/fragments/integrate"
)

type fragmentRecord struct {
	ID             int                  `json:"id"`
	Volume         float64              `json:"volume"`
	Mass           float64              `json:"mass"`
	CenterOfMass   [3]float64           `json:"centerOfMass"`
	AABBCenter     [3]float64           `json:"aabbCenter"`
	Split          bool                 `json:"split,omitempty"`
	VolumeWeighted map[string][]float64 `json:"volumeWeightedAverages,omitempty"`
	MassWeighted   map[string][]float64 `json:"massWeightedAverages,omitempty"`
	Sums           map[string][]float64 `json:"sums,omitempty"`
	OBB            *obbRecord           `json:"obb,omitempty"`
}

type obbRecord struct {
	Center      [3]float64    `json:"center"`
	Axes        [3][3]float64 `json:"axes"`
	HalfLengths [3]float64    `json:"halfLengths"`
}

type materialRecord struct {
	Material                  string           `json:"material"`
	NumberOfResolvedFragments int              `json:"numberOfResolvedFragments"`
	TotalVolume               float64          `json:"totalVolume"`
	Fragments                 []fragmentRecord `json:"fragments"`
}

func byName(fields []integrate.Field, values []float64) (m map[string][]float64) {
	if len(fields) == 0 {
		return
	}
	m = make(map[string][]float64, len(fields))
	var off int
	for _, fld := range fields {
		if off+fld.NComps > len(values) {
			break
		}
		m[fld.Name] = values[off : off+fld.NComps]
		off += fld.NComps
	}
	return
}

// Statistics renders the tables as YAML, one document listing every
// material
func Statistics(tables []Table) (data []byte, err error) {
	records := make([]materialRecord, 0, len(tables))
	for _, t := range tables {
		mr := materialRecord{
			Material:                  t.Material,
			NumberOfResolvedFragments: t.NumberOfResolvedFragments,
			TotalVolume:               t.TotalVolume,
			Fragments:                 make([]fragmentRecord, 0, len(t.Fragments)),
		}
		for _, fr := range t.Fragments {
			rec := fragmentRecord{
				ID:             fr.ID,
				Volume:         fr.Volume,
				Mass:           fr.Mass,
				CenterOfMass:   fr.CenterOfMass,
				AABBCenter:     fr.AABBCenter,
				Split:          fr.Split,
				VolumeWeighted: byName(t.Layout.VolumeWeighted, fr.VolumeWeighted),
				MassWeighted:   byName(t.Layout.MassWeighted, fr.MassWeighted),
				Sums:           byName(t.Layout.Sums, fr.Sums),
			}
			if fr.OBB != nil {
				rec.OBB = &obbRecord{Center: fr.OBB.Center, Axes: fr.OBB.Axes, HalfLengths: fr.OBB.HalfLengths}
			}
			mr.Fragments = append(mr.Fragments, rec)
		}
		records = append(records, mr)
	}
	return yaml.Marshal(records)
}

// WriteGeometry writes one material as legacy VTK polydata: a vertex at
// each fragment's center of mass and, when boxes were computed, the six
// faces of each box. Cell data carries the fragment id.
func WriteGeometry(w io.Writer, t Table) (err error) {
	var (
		bw      = bufio.NewWriter(w)
		nFrag   = len(t.Fragments)
		nBoxes  int
		nPoints = nFrag
	)
	for _, fr := range t.Fragments {
		if fr.OBB != nil {
			nBoxes++
		}
	}
	nPoints += 8 * nBoxes
	fmt.Fprintf(bw, "# vtk DataFile Version 2.0\n")
	fmt.Fprintf(bw, "fragments of %s\n", t.Material)
	fmt.Fprintf(bw, "ASCII\n")
	fmt.Fprintf(bw, "DATASET POLYDATA\n")
	fmt.Fprintf(bw, "POINTS %d double\n", nPoints)
	for _, fr := range t.Fragments {
		x := fr.CenterOfMass
		fmt.Fprintf(bw, "%16.9e %16.9e %16.9e\n", x[0], x[1], x[2])
	}
	for _, fr := range t.Fragments {
		if fr.OBB == nil {
			continue
		}
		for _, x := range fr.OBB.Corners() {
			fmt.Fprintf(bw, "%16.9e %16.9e %16.9e\n", x[0], x[1], x[2])
		}
	}
	fmt.Fprintf(bw, "VERTICES %d %d\n", nFrag, 2*nFrag)
	for i := 0; i < nFrag; i++ {
		fmt.Fprintf(bw, "1 %d\n", i)
	}
	if nBoxes > 0 {
		fmt.Fprintf(bw, "POLYGONS %d %d\n", 6*nBoxes, 30*nBoxes)
		for b := 0; b < nBoxes; b++ {
			base := nFrag + 8*b
			for _, face := range boxFaces {
				fmt.Fprintf(bw, "4 %d %d %d %d\n", base+face[0], base+face[1], base+face[2], base+face[3])
			}
		}
	}
	fmt.Fprintf(bw, "CELL_DATA %d\n", nFrag+6*nBoxes)
	fmt.Fprintf(bw, "SCALARS fragment_id int\n")
	fmt.Fprintf(bw, "LOOKUP_TABLE default\n")
	for _, fr := range t.Fragments {
		fmt.Fprintf(bw, "%d\n", fr.ID)
	}
	for _, fr := range t.Fragments {
		if fr.OBB == nil {
			continue
		}
		for i := 0; i < 6; i++ {
			fmt.Fprintf(bw, "%d\n", fr.ID)
		}
	}
	return bw.Flush()
}

// Faces of a box in OBB.Corners order, bit a of a corner index set on the
// positive side of axis a
var boxFaces = [6][4]int{
	{0, 2, 6, 4}, {1, 5, 7, 3}, // -a0, +a0
	{0, 4, 5, 1}, {2, 3, 7, 6}, // -a1, +a1
	{0, 1, 3, 2}, {4, 6, 7, 5}, // -a2, +a2
}

func safeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, name)
}

// writeOutputs writes the optional files on rank 0. Failures are logged
// and counted, the in-memory result stands.
func (f *MaterialInterfaceFilter) writeOutputs(out *Output, logger *log.Logger) {
	if !f.WriteStatisticsOutput && !f.WriteGeometryOutput {
		return
	}
	base, err := homedir.Expand(f.OutputBaseName)
	if err != nil {
		logger.Printf("output base name %q: %v", f.OutputBaseName, err)
		out.Diagnostics.OutputErrors++
		return
	}
	if f.WriteStatisticsOutput {
		var data []byte
		path := base + "_statistics.yaml"
		if data, err = Statistics(out.Tables); err == nil {
			err = os.WriteFile(path, data, 0644)
		}
		if err != nil {
			logger.Printf("writing %s: %v", path, err)
			out.Diagnostics.OutputErrors++
		} else {
			logger.Printf("wrote %s", path)
		}
	}
	if f.WriteGeometryOutput {
		for _, t := range out.Tables {
			path := fmt.Sprintf("%s_%s.vtk", base, safeName(t.Material))
			if err = writeGeometryFile(path, t); err != nil {
				logger.Printf("writing %s: %v", path, err)
				out.Diagnostics.OutputErrors++
				continue
			}
			logger.Printf("wrote %s", path)
		}
	}
}

func writeGeometryFile(path string, t Table) (err error) {
	var file *os.File
	if file, err = os.Create(path); err != nil {
		return
	}
	if err = WriteGeometry(file, t); err != nil {
		file.Close()
		return
	}
	return file.Close()
}
