// Package geometry describes one tomographic acquisition: the voxel grid being
// imaged, the detector pixel grid, and the source/detector pose of every view.
//
// A Params value is a plain, mutable description. New validates it and returns
// an immutable *Geometry with the per-view frames precomputed; a geometry change
// always means building a new descriptor, so kernels never observe a descriptor
// mid-mutation.
package geometry

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"tomoproj/pkg/errs"
)

// Kind is the acquisition layout.
type Kind int

const (
	// Parallel beams share one direction per view.
	Parallel Kind = iota
	// Fan beams diverge within each detector row; rows are stacked along z.
	Fan
	// Cone beams diverge from a single source point in both detector directions.
	Cone
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Parallel:
		return "parallel"
	case Fan:
		return "fan"
	case Cone:
		return "cone"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Divergent reports whether rays originate from a source point.
func (k Kind) Divergent() bool {
	return k == Fan || k == Cone
}

// ParseKind converts "parallel", "fan" or "cone" (any case) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parallel":
		return Parallel, nil
	case "fan":
		return Fan, nil
	case "cone":
		return Cone, nil
	}
	return 0, errs.Configuration("ParseKind", "unknown geometry kind %q", s)
}

// DetectorShape selects a flat panel or a cylindrical arc centred on the source.
type DetectorShape int

const (
	Flat DetectorShape = iota
	Curved
)

// String returns the lower-case name of the shape.
func (s DetectorShape) String() string {
	switch s {
	case Flat:
		return "flat"
	case Curved:
		return "curved"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// ParseDetectorShape converts "flat" or "curved" to a DetectorShape. The empty
// string means Flat.
func ParseDetectorShape(s string) (DetectorShape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return Flat, nil
	case "curved":
		return Curved, nil
	}
	return 0, errs.Configuration("ParseDetectorShape", "unknown detector shape %q", s)
}

// VolumeGrid is the voxel grid being imaged.
//
// Voxel (i, j, k) is centred at Offset + ((i-(NX-1)/2)*Pitch.X, ...), so the
// grid is centred on Offset. Data is laid out x fastest: (k*NY + j)*NX + i.
type VolumeGrid struct {
	NX, NY, NZ int
	Pitch      r3.Vec // voxel size along x, y, z
	Offset     r3.Vec // position of the grid centre
}

// Len returns the number of voxels.
func (v VolumeGrid) Len() int {
	return v.NX * v.NY * v.NZ
}

// Index returns the linear index of voxel (i, j, k).
func (v VolumeGrid) Index(i, j, k int) int {
	return (k*v.NY+j)*v.NX + i
}

// Coords is the inverse of Index.
func (v VolumeGrid) Coords(idx int) (i, j, k int) {
	i = idx % v.NX
	j = (idx / v.NX) % v.NY
	k = idx / (v.NX * v.NY)
	return i, j, k
}

// Origin returns the centre of voxel (0, 0, 0).
func (v VolumeGrid) Origin() r3.Vec {
	return r3.Vec{
		X: v.Offset.X - 0.5*float64(v.NX-1)*v.Pitch.X,
		Y: v.Offset.Y - 0.5*float64(v.NY-1)*v.Pitch.Y,
		Z: v.Offset.Z - 0.5*float64(v.NZ-1)*v.Pitch.Z,
	}
}

// Center returns the world position of the centre of voxel (i, j, k).
func (v VolumeGrid) Center(i, j, k int) r3.Vec {
	o := v.Origin()
	return r3.Vec{
		X: o.X + float64(i)*v.Pitch.X,
		Y: o.Y + float64(j)*v.Pitch.Y,
		Z: o.Z + float64(k)*v.Pitch.Z,
	}
}

// ToIndex converts a world position to continuous voxel index coordinates.
// Integer values land on voxel centres.
func (v VolumeGrid) ToIndex(p r3.Vec) r3.Vec {
	o := v.Origin()
	return r3.Vec{
		X: (p.X - o.X) / v.Pitch.X,
		Y: (p.Y - o.Y) / v.Pitch.Y,
		Z: (p.Z - o.Z) / v.Pitch.Z,
	}
}

// FromIndex converts continuous voxel index coordinates to a world position.
func (v VolumeGrid) FromIndex(q r3.Vec) r3.Vec {
	o := v.Origin()
	return r3.Vec{
		X: o.X + q.X*v.Pitch.X,
		Y: o.Y + q.Y*v.Pitch.Y,
		Z: o.Z + q.Z*v.Pitch.Z,
	}
}

// Bounds returns the axis-aligned bounding box of the grid. It extends half a
// pitch beyond the outermost voxel centres.
func (v VolumeGrid) Bounds() (lo, hi r3.Vec) {
	half := r3.Vec{X: 0.5 * float64(v.NX) * v.Pitch.X, Y: 0.5 * float64(v.NY) * v.Pitch.Y, Z: 0.5 * float64(v.NZ) * v.Pitch.Z}
	return r3.Sub(v.Offset, half), r3.Add(v.Offset, half)
}

// MinPitch returns the smallest voxel pitch.
func (v VolumeGrid) MinPitch() float64 {
	return math.Min(v.Pitch.X, math.Min(v.Pitch.Y, v.Pitch.Z))
}

// VoxelDiagonal returns the length of one voxel's space diagonal.
func (v VolumeGrid) VoxelDiagonal() float64 {
	return r3.Norm(v.Pitch)
}

// Detector is the detector pixel grid.
//
// The principal point (where the central ray hits) sits at continuous pixel
// index ((Rows-1)/2 + RowOffset, (Cols-1)/2 + ColOffset).
type Detector struct {
	Rows, Cols  int
	PixelHeight float64 // pitch along rows (z)
	PixelWidth  float64 // pitch along columns; arc length for curved detectors
	RowOffset   float64 // principal point shift, in pixels
	ColOffset   float64
	Shape       DetectorShape
}

// Len returns the number of pixels per view.
func (d Detector) Len() int {
	return d.Rows * d.Cols
}

func (d Detector) centerRow() float64 { return 0.5*float64(d.Rows-1) + d.RowOffset }
func (d Detector) centerCol() float64 { return 0.5*float64(d.Cols-1) + d.ColOffset }

// Pose is the placement of one view. Angle rotates the source and detector
// about the z axis; the remaining fields are non-circular trajectory offsets
// and are zero for a plain circular scan.
type Pose struct {
	Angle         float64 // radians
	SourceShift   float64 // added to the source-to-iso distance
	DetectorShift float64 // added to the iso-to-detector distance
	Lateral       float64 // detector shift along its column axis
	Axial         float64 // translation of source and detector along z
}

// Params is the mutable description of an acquisition.
type Params struct {
	Kind          Kind
	Volume        VolumeGrid
	Detector      Detector
	SourceToIso   float64 // fan/cone only
	IsoToDetector float64 // fan/cone only; optional for parallel
	NumViews      int     // declared view count
	Views         []Pose  // one pose per view
	StepSize      float64 // sampling step override along rays; 0 selects the default
}

// DefaultStepFraction is the default ray sampling step as a fraction of the
// smallest voxel pitch.
const DefaultStepFraction = 0.5

// Validate checks the description for internal consistency. All failures wrap
// errs.ErrConfiguration.
func (p *Params) Validate() error {
	const op = "geometry.Validate"

	v := p.Volume
	if v.NX <= 0 || v.NY <= 0 || v.NZ <= 0 {
		return errs.Configuration(op, "volume dimensions must be positive, got %dx%dx%d", v.NX, v.NY, v.NZ)
	}
	if !positive(v.Pitch.X) || !positive(v.Pitch.Y) || !positive(v.Pitch.Z) {
		return errs.Configuration(op, "voxel pitch must be positive, got %v", v.Pitch)
	}
	if !finite(v.Offset.X) || !finite(v.Offset.Y) || !finite(v.Offset.Z) {
		return errs.Configuration(op, "volume offset must be finite, got %v", v.Offset)
	}

	d := p.Detector
	if d.Rows <= 0 || d.Cols <= 0 {
		return errs.Configuration(op, "detector dimensions must be positive, got %dx%d", d.Rows, d.Cols)
	}
	if !positive(d.PixelHeight) || !positive(d.PixelWidth) {
		return errs.Configuration(op, "detector pitch must be positive, got %gx%g", d.PixelHeight, d.PixelWidth)
	}
	if !finite(d.RowOffset) || !finite(d.ColOffset) {
		return errs.Configuration(op, "detector offsets must be finite")
	}
	if d.Shape != Flat && d.Shape != Curved {
		return errs.Configuration(op, "unknown detector shape %d", int(d.Shape))
	}

	switch p.Kind {
	case Parallel:
		if d.Shape == Curved {
			return errs.Configuration(op, "curved detectors require a divergent geometry")
		}
	case Fan, Cone:
		if !positive(p.SourceToIso) {
			return errs.Configuration(op, "source-to-iso distance must be positive, got %g", p.SourceToIso)
		}
		if !positive(p.IsoToDetector) {
			return errs.Configuration(op, "iso-to-detector distance must be positive, got %g", p.IsoToDetector)
		}
	default:
		return errs.Configuration(op, "unknown geometry kind %d", int(p.Kind))
	}

	if p.NumViews <= 0 {
		return errs.Configuration(op, "view count must be positive, got %d", p.NumViews)
	}
	if len(p.Views) != p.NumViews {
		return errs.Configuration(op, "%d poses supplied for %d declared views", len(p.Views), p.NumViews)
	}
	for i, pose := range p.Views {
		if !finite(pose.Angle) || !finite(pose.SourceShift) || !finite(pose.DetectorShift) ||
			!finite(pose.Lateral) || !finite(pose.Axial) {
			return errs.Configuration(op, "pose %d has non-finite values", i)
		}
	}

	if p.StepSize < 0 || !finite(p.StepSize) {
		return errs.Configuration(op, "step size must be non-negative, got %g", p.StepSize)
	}
	if p.StepSize > v.VoxelDiagonal() {
		return errs.Configuration(op, "step size %g exceeds the voxel diagonal %g", p.StepSize, v.VoxelDiagonal())
	}

	if p.Kind.Divergent() {
		lo, hi := v.Bounds()
		for i, pose := range p.Views {
			f := newFrame(p, pose)
			if f.SDD <= 0 {
				return errs.Configuration(op, "view %d: source-to-detector distance %g is not positive", i, f.SDD)
			}
			if p.SourceToIso+pose.SourceShift <= 0 {
				return errs.Configuration(op, "view %d: source-to-iso distance is not positive", i)
			}
			// Every voxel must lie strictly in front of the source.
			for _, c := range corners(lo, hi) {
				if r3.Dot(r3.Sub(c, f.Source), f.Dir) <= 1e-9*f.SDD {
					return errs.Configuration(op, "view %d: source lies inside or behind the volume", i)
				}
			}
		}
	}
	return nil
}

// Geometry is a validated, immutable acquisition descriptor. It is safe for
// concurrent use by any number of kernels.
type Geometry struct {
	p      Params
	frames []Frame
	step   float64
	rc, cc float64
}

// New validates p and returns the immutable descriptor. The pose slice is
// copied, so later changes to p do not affect the result.
func New(p Params) (*Geometry, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.Views = append([]Pose(nil), p.Views...)

	g := &Geometry{
		p:      p,
		frames: make([]Frame, len(p.Views)),
		step:   p.StepSize,
		rc:     p.Detector.centerRow(),
		cc:     p.Detector.centerCol(),
	}
	if g.step == 0 {
		g.step = DefaultStepFraction * p.Volume.MinPitch()
	}
	for i, pose := range p.Views {
		g.frames[i] = newFrame(&p, pose)
	}
	return g, nil
}

// Kind returns the acquisition layout.
func (g *Geometry) Kind() Kind { return g.p.Kind }

// Volume returns the voxel grid.
func (g *Geometry) Volume() VolumeGrid { return g.p.Volume }

// Detector returns the detector grid.
func (g *Geometry) Detector() Detector { return g.p.Detector }

// NumViews returns the number of views.
func (g *Geometry) NumViews() int { return g.p.NumViews }

// SourceToIso returns the nominal source-to-iso distance.
func (g *Geometry) SourceToIso() float64 { return g.p.SourceToIso }

// IsoToDetector returns the nominal iso-to-detector distance.
func (g *Geometry) IsoToDetector() float64 { return g.p.IsoToDetector }

// Pose returns the pose of view i.
func (g *Geometry) Pose(i int) Pose { return g.p.Views[i] }

// Frame returns the precomputed frame of view i.
func (g *Geometry) Frame(i int) Frame { return g.frames[i] }

// StepSize returns the ray sampling step: the override if one was given,
// otherwise DefaultStepFraction times the smallest voxel pitch.
func (g *Geometry) StepSize() float64 { return g.step }

// Params returns a copy of the description this geometry was built from.
func (g *Geometry) Params() Params {
	p := g.p
	p.Views = append([]Pose(nil), g.p.Views...)
	return p
}

// VolumeShape returns the device shape of a volume: (nz, ny, nx).
func (g *Geometry) VolumeShape() [3]int {
	return [3]int{g.p.Volume.NZ, g.p.Volume.NY, g.p.Volume.NX}
}

// ProjectionShape returns the device shape of a projection set: (views, rows, cols).
func (g *Geometry) ProjectionShape() [3]int {
	return [3]int{g.p.NumViews, g.p.Detector.Rows, g.p.Detector.Cols}
}

// RayIndex returns the linear projection-set index of (view, row, col).
func (g *Geometry) RayIndex(view, row, col int) int {
	return (view*g.p.Detector.Rows+row)*g.p.Detector.Cols + col
}

// WithStepSize returns a copy of g sampling with a different step. The
// receiver is left unchanged.
func (g *Geometry) WithStepSize(step float64) (*Geometry, error) {
	p := g.Params()
	p.StepSize = step
	return New(p)
}

func positive(x float64) bool { return x > 0 && !math.IsInf(x, 1) }

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

// corners returns the eight vertices of the box [lo, hi].
func corners(lo, hi r3.Vec) [8]r3.Vec {
	var c [8]r3.Vec
	for n := 0; n < 8; n++ {
		c[n] = r3.Vec{X: lo.X, Y: lo.Y, Z: lo.Z}
		if n&1 != 0 {
			c[n].X = hi.X
		}
		if n&2 != 0 {
			c[n].Y = hi.Y
		}
		if n&4 != 0 {
			c[n].Z = hi.Z
		}
	}
	return c
}
