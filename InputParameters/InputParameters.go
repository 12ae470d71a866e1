package InputParameters

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/fragments/amr"
	"github.com/notargets/fragments/filter"
	"github.com/notargets/fragments/floodfill"
	"github.com/notargets/fragments/types"
)

type ShapeParameters struct {
	Type   string     `json:"Type"` // sphere or box
	Center [3]float64 `json:"Center"`
	Radius float64    `json:"Radius"`
	Min    [3]float64 `json:"Min"`
	Max    [3]float64 `json:"Max"`
}

type MaterialParameters struct {
	Name    string            `json:"Name"`
	Density float64           `json:"Density"` // Zero for no mass array
	Shapes  []ShapeParameters `json:"Shapes"`
}

// FieldParameters describes an extra cell array. Kind is one of constant
// (Value everywhere), position (the cell center) or distance (from Origin).
type FieldParameters struct {
	Name   string     `json:"Name"`
	Kind   string     `json:"Kind"`
	Value  float64    `json:"Value"`
	Origin [3]float64 `json:"Origin"`
}

type VolumeParameters struct {
	Origin     [3]float64        `json:"Origin"`
	Spacing    [3]float64        `json:"Spacing"`
	BlockDims  [3]int            `json:"BlockDims"`
	Blocks     [3]int            `json:"Blocks"`
	GhostLevel int               `json:"GhostLevel"`
	Samples    int               `json:"Samples"`
	Refine     []ShapeParameters `json:"Refine"` // Boxes only
}

type ClipParameters struct {
	Type   string     `json:"Type"` // plane or sphere
	Origin [3]float64 `json:"Origin"`
	Normal [3]float64 `json:"Normal"`
	Radius float64    `json:"Radius"`
}

type OutputParameters struct {
	Statistics bool   `json:"Statistics"`
	Geometry   bool   `json:"Geometry"`
	BaseName   string `json:"BaseName"`
}

// FragmentParameters is a run of the fragment filter over a synthetic
// volume, as read from the YAML input file
type FragmentParameters struct {
	Title                     string               `json:"Title"`
	Ranks                     int                  `json:"Ranks"`
	MaterialFractionThreshold float64              `json:"MaterialFractionThreshold"`
	InvertVolumeFraction      bool                 `json:"InvertVolumeFraction"`
	ComputeOBB                bool                 `json:"ComputeOBB"`
	UpperLoadingBound         int                  `json:"UpperLoadingBound"`
	GhostLayerDepth           int                  `json:"GhostLayerDepth"`
	Clip                      *ClipParameters      `json:"Clip"`
	Output                    OutputParameters     `json:"Output"`
	Volume                    VolumeParameters     `json:"Volume"`
	Materials                 []MaterialParameters `json:"Materials"`
	Fields                    []FieldParameters    `json:"Fields"`
	VolumeWeightedAverages    []string             `json:"VolumeWeightedAverages"`
	MassWeightedAverages      []string             `json:"MassWeightedAverages"`
	Sums                      []string             `json:"Sums"`
}

// NewFragmentParameters returns the defaults a parsed file overrides
func NewFragmentParameters() *FragmentParameters {
	return &FragmentParameters{
		Ranks:                     1,
		MaterialFractionThreshold: 0.5,
		UpperLoadingBound:         1000000,
		GhostLayerDepth:           1,
		Output:                    OutputParameters{BaseName: "fragments"},
		Volume: VolumeParameters{
			Spacing:    [3]float64{1, 1, 1},
			BlockDims:  [3]int{8, 8, 8},
			Blocks:     [3]int{1, 1, 1},
			GhostLevel: 1,
			Samples:    4,
		},
	}
}

func (ip *FragmentParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func (ip *FragmentParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d]\t\t\t\t= Ranks\n", ip.Ranks)
	fmt.Printf("%8.5f\t\t= MaterialFractionThreshold\n", ip.MaterialFractionThreshold)
	fmt.Printf("[%v]\t\t\t= InvertVolumeFraction\n", ip.InvertVolumeFraction)
	fmt.Printf("[%v]\t\t\t= ComputeOBB\n", ip.ComputeOBB)
	fmt.Printf("%v x %v blocks\t= Volume\n", ip.Volume.Blocks, ip.Volume.BlockDims)
	names := make([]string, len(ip.Materials))
	for i, m := range ip.Materials {
		names[i] = m.Name
	}
	sort.Strings(names)
	fmt.Printf("[%s]\t\t= Materials\n", strings.Join(names, ", "))
	if ip.Clip != nil {
		fmt.Printf("Clip = %+v\n", *ip.Clip)
	}
}

func (sp ShapeParameters) shape() (amr.Shape, error) {
	switch strings.ToLower(sp.Type) {
	case "sphere":
		if sp.Radius <= 0 {
			return nil, fmt.Errorf("sphere radius %v must be positive", sp.Radius)
		}
		return amr.Sphere{Center: sp.Center, Radius: sp.Radius}, nil
	case "box":
		return amr.Box{Min: sp.Min, Max: sp.Max}, nil
	}
	return nil, fmt.Errorf("unknown shape type %q", sp.Type)
}

func (fp FieldParameters) field() (sf amr.SyntheticField, err error) {
	sf.Name = fp.Name
	switch strings.ToLower(fp.Kind) {
	case "constant":
		v := fp.Value
		sf.NComps, sf.Eval = 1, func([3]float64) []float64 { return []float64{v} }
	case "position":
		sf.NComps, sf.Eval = 3, func(x [3]float64) []float64 { return []float64{x[0], x[1], x[2]} }
	case "distance":
		o := fp.Origin
		sf.NComps, sf.Eval = 1, func(x [3]float64) []float64 {
			return []float64{math.Sqrt(sq(x[0]-o[0]) + sq(x[1]-o[1]) + sq(x[2]-o[2]))}
		}
	default:
		err = fmt.Errorf("field %q has unknown kind %q", fp.Name, fp.Kind)
	}
	return
}

func sq(x float64) float64 { return x * x }

// Synthetic builds the volume description the ranks sample their blocks from
func (ip *FragmentParameters) Synthetic() (s *amr.Synthetic, err error) {
	v := ip.Volume
	s = &amr.Synthetic{
		Geometry:   amr.Geometry{Origin: v.Origin, Spacing: v.Spacing},
		Dims:       types.Index3(v.BlockDims),
		Blocks:     types.Index3(v.Blocks),
		GhostLevel: v.GhostLevel,
		Samples:    v.Samples,
	}
	for _, r := range v.Refine {
		var sh amr.Shape
		if sh, err = r.shape(); err != nil {
			return nil, fmt.Errorf("refine: %w", err)
		}
		bx, ok := sh.(amr.Box)
		if !ok {
			return nil, fmt.Errorf("refine regions must be boxes, have %q", r.Type)
		}
		s.Refine = append(s.Refine, bx)
	}
	for _, m := range ip.Materials {
		sm := amr.SyntheticMaterial{Name: m.Name, Density: m.Density}
		for _, sp := range m.Shapes {
			var sh amr.Shape
			if sh, err = sp.shape(); err != nil {
				return nil, fmt.Errorf("material %q: %w", m.Name, err)
			}
			sm.Shapes = append(sm.Shapes, sh)
		}
		s.Materials = append(s.Materials, sm)
	}
	for _, fp := range ip.Fields {
		var sf amr.SyntheticField
		if sf, err = fp.field(); err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, sf)
	}
	return
}

// Configure applies the run settings to a filter. Mass arrays are selected
// when every material has a density.
func (ip *FragmentParameters) Configure(f *filter.MaterialInterfaceFilter) (err error) {
	f.MaterialFractionThreshold = ip.MaterialFractionThreshold
	f.InvertVolumeFraction = ip.InvertVolumeFraction
	f.ComputeOBB = ip.ComputeOBB
	f.UpperLoadingBound = ip.UpperLoadingBound
	f.GhostLayerDepth = ip.GhostLayerDepth
	f.BlockGhostLevel = ip.Volume.GhostLevel
	f.WriteStatisticsOutput = ip.Output.Statistics
	f.WriteGeometryOutput = ip.Output.Geometry
	if ip.Output.BaseName != "" {
		f.OutputBaseName = ip.Output.BaseName
	}
	var withMass int
	for _, m := range ip.Materials {
		f.MaterialArrays.Select(m.Name)
		if m.Density > 0 {
			withMass++
		}
	}
	switch withMass {
	case 0:
	case len(ip.Materials):
		for _, m := range ip.Materials {
			f.MassArrays.Select(amr.SyntheticMaterial{Name: m.Name}.MassName())
		}
	default:
		return fmt.Errorf("%d of %d materials have a density, need all or none", withMass, len(ip.Materials))
	}
	for _, name := range ip.VolumeWeightedAverages {
		f.VolumeWeightedAverageArrays.Select(name)
	}
	for _, name := range ip.MassWeightedAverages {
		f.MassWeightedAverageArrays.Select(name)
	}
	for _, name := range ip.Sums {
		f.SummationArrays.Select(name)
	}
	if ip.Clip != nil {
		switch strings.ToLower(ip.Clip.Type) {
		case "plane":
			f.ClipFunction = floodfill.Plane{Origin: ip.Clip.Origin, Normal: ip.Clip.Normal}
		case "sphere":
			f.ClipFunction = floodfill.Sphere{Center: ip.Clip.Origin, Radius: ip.Clip.Radius}
		default:
			return fmt.Errorf("unknown clip type %q", ip.Clip.Type)
		}
	}
	return
}
