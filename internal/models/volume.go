package models

import (
	"fmt"

	"tomoproj/pkg/geometry"
)

// Volume is a host-side voxel grid matching a geometry's volume description.
type Volume struct {
	// Data holds the voxels laid out x fastest: (k*NY + j)*NX + i
	Data []float64

	// Grid describes the dimensions, voxel pitch and offset
	Grid geometry.VolumeGrid
}

// NewVolume allocates a zeroed volume for the grid of g.
func NewVolume(g *geometry.Geometry) *Volume {
	grid := g.Volume()
	return &Volume{Data: make([]float64, grid.Len()), Grid: grid}
}

// At returns voxel (i, j, k).
func (v *Volume) At(i, j, k int) float64 {
	return v.Data[v.Grid.Index(i, j, k)]
}

// Set stores voxel (i, j, k).
func (v *Volume) Set(i, j, k int, val float64) {
	v.Data[v.Grid.Index(i, j, k)] = val
}

// Dims returns (nx, ny, nz).
func (v *Volume) Dims() (nx, ny, nz int) {
	return v.Grid.NX, v.Grid.NY, v.Grid.NZ
}

// Check reports whether the volume matches the volume description of g.
func (v *Volume) Check(g *geometry.Geometry) error {
	want := g.Volume()
	if v.Grid.NX != want.NX || v.Grid.NY != want.NY || v.Grid.NZ != want.NZ {
		return fmt.Errorf("volume is %dx%dx%d, geometry declares %dx%dx%d",
			v.Grid.NX, v.Grid.NY, v.Grid.NZ, want.NX, want.NY, want.NZ)
	}
	if len(v.Data) != want.Len() {
		return fmt.Errorf("volume holds %d values, want %d", len(v.Data), want.Len())
	}
	return nil
}

// ProjectionSet is a host-side stack of detector views.
type ProjectionSet struct {
	// Data holds the pixels laid out (view*Rows + row)*Cols + col
	Data []float64

	Views, Rows, Cols int
}

// NewProjectionSet allocates a zeroed projection set for g.
func NewProjectionSet(g *geometry.Geometry) *ProjectionSet {
	s := g.ProjectionShape()
	return &ProjectionSet{Data: make([]float64, s[0]*s[1]*s[2]), Views: s[0], Rows: s[1], Cols: s[2]}
}

// At returns pixel (row, col) of a view.
func (p *ProjectionSet) At(view, row, col int) float64 {
	return p.Data[(view*p.Rows+row)*p.Cols+col]
}

// View returns the pixels of one view without copying.
func (p *ProjectionSet) View(view int) []float64 {
	n := p.Rows * p.Cols
	return p.Data[view*n : (view+1)*n]
}

// Check reports whether the projection set matches the projection shape of g.
func (p *ProjectionSet) Check(g *geometry.Geometry) error {
	s := g.ProjectionShape()
	if p.Views != s[0] || p.Rows != s[1] || p.Cols != s[2] {
		return fmt.Errorf("projection set is %dx%dx%d, geometry declares %dx%dx%d",
			p.Views, p.Rows, p.Cols, s[0], s[1], s[2])
	}
	if len(p.Data) != s[0]*s[1]*s[2] {
		return fmt.Errorf("projection set holds %d values, want %d", len(p.Data), s[0]*s[1]*s[2])
	}
	return nil
}
