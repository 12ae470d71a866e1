package floodfill

import (
	"fmt"
	"math"
)

// Clip masks the cells a fragment may contain, by cell center
type Clip interface {
	Accept(x [3]float64) bool
	Validate() error
}

// Plane accepts the half space the normal points into, the plane included
type Plane struct {
	Origin [3]float64
	Normal [3]float64
}

func (p Plane) Accept(x [3]float64) bool {
	var d float64
	for n := 0; n < 3; n++ {
		d += (x[n] - p.Origin[n]) * p.Normal[n]
	}
	return d >= 0
}

func (p Plane) Validate() error {
	norm := math.Sqrt(p.Normal[0]*p.Normal[0] + p.Normal[1]*p.Normal[1] + p.Normal[2]*p.Normal[2])
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return fmt.Errorf("clip plane normal %v is not a direction", p.Normal)
	}
	return nil
}

// Sphere accepts its closed interior
type Sphere struct {
	Center [3]float64
	Radius float64
}

func (s Sphere) Accept(x [3]float64) bool {
	var r2 float64
	for n := 0; n < 3; n++ {
		d := x[n] - s.Center[n]
		r2 += d * d
	}
	return r2 <= s.Radius*s.Radius
}

func (s Sphere) Validate() error {
	if !(s.Radius > 0) || math.IsInf(s.Radius, 0) {
		return fmt.Errorf("clip sphere radius %v must be positive", s.Radius)
	}
	return nil
}
