package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Frame is the world placement of one view.
//
// Dir is the central beam direction, U the detector column axis and V the
// detector row axis (always +z). Center is the principal point on the
// detector. Source and SDD are only meaningful for divergent geometries.
type Frame struct {
	Source r3.Vec
	Center r3.Vec
	Dir    r3.Vec
	U, V   r3.Vec
	SDD    float64 // source-to-detector distance for this view
}

func newFrame(p *Params, pose Pose) Frame {
	c, s := cosSin(pose.Angle)
	f := Frame{
		Dir: r3.Vec{X: c, Y: s},
		U:   r3.Vec{X: -s, Y: c},
		V:   r3.Vec{Z: 1},
	}
	axial := r3.Scale(pose.Axial, f.V)

	if !p.Kind.Divergent() {
		f.Center = r3.Add(r3.Add(r3.Scale(p.IsoToDetector+pose.DetectorShift, f.Dir), r3.Scale(pose.Lateral, f.U)), axial)
		return f
	}

	r := p.SourceToIso + pose.SourceShift
	f.SDD = r + p.IsoToDetector + pose.DetectorShift
	f.Source = r3.Add(r3.Scale(-r, f.Dir), axial)
	f.Center = r3.Add(r3.Add(f.Source, r3.Scale(f.SDD, f.Dir)), r3.Scale(pose.Lateral, f.U))
	return f
}

// cosSin snaps values within rounding noise of 0 or ±1 so that axis-aligned
// views produce exactly axis-aligned rays.
func cosSin(a float64) (c, s float64) {
	s, c = math.Sincos(a)
	return snap(c), snap(s)
}

func snap(x float64) float64 {
	const eps = 1e-12
	switch {
	case math.Abs(x) < eps:
		return 0
	case math.Abs(x-1) < eps:
		return 1
	case math.Abs(x+1) < eps:
		return -1
	}
	return x
}

// Ray is a half-line (or full line for parallel beams) through one detector
// pixel centre. Points are Origin + t*Dir for t >= TMin; Dir has unit length.
type Ray struct {
	Origin r3.Vec
	Dir    r3.Vec
	TMin   float64
}

// At returns the point at parameter t.
func (r Ray) At(t float64) r3.Vec {
	return r3.Add(r.Origin, r3.Scale(t, r.Dir))
}

// detectorCoords returns the in-plane offsets of a pixel centre from the
// principal point: uc along columns, vc along rows.
func (g *Geometry) detectorCoords(row, col int) (uc, vc float64) {
	d := g.p.Detector
	uc = (float64(col) - g.cc) * d.PixelWidth
	vc = (float64(row) - g.rc) * d.PixelHeight
	return uc, vc
}

// PixelPosition returns the world position of the centre of detector pixel
// (row, col) in the given view.
func (g *Geometry) PixelPosition(view, row, col int) r3.Vec {
	f := &g.frames[view]
	uc, vc := g.detectorCoords(row, col)
	if g.p.Detector.Shape == Curved {
		gamma := (uc + g.p.Views[view].Lateral) / f.SDD
		sg, cg := math.Sincos(gamma)
		radial := r3.Add(r3.Scale(cg, f.Dir), r3.Scale(sg, f.U))
		return r3.Add(r3.Add(f.Source, r3.Scale(f.SDD, radial)), r3.Scale(vc, f.V))
	}
	return r3.Add(r3.Add(f.Center, r3.Scale(uc, f.U)), r3.Scale(vc, f.V))
}

// Ray returns the ray that ends at detector pixel (row, col) of the given view.
//
// Parallel rays run along the view direction through the pixel centre. Fan
// rays start at the source lifted to the pixel's row height, so every row is
// its own planar fan. Cone rays all start at the single source point.
func (g *Geometry) Ray(view, row, col int) Ray {
	f := &g.frames[view]
	pix := g.PixelPosition(view, row, col)

	switch g.p.Kind {
	case Parallel:
		return Ray{Origin: pix, Dir: f.Dir, TMin: math.Inf(-1)}
	case Fan:
		_, vc := g.detectorCoords(row, col)
		origin := r3.Add(f.Source, r3.Scale(vc, f.V))
		return Ray{Origin: origin, Dir: r3.Unit(r3.Sub(pix, origin))}
	default:
		return Ray{Origin: f.Source, Dir: r3.Unit(r3.Sub(pix, f.Source))}
	}
}

// ProjectPoint maps a world point to continuous detector pixel coordinates in
// the given view: the pixel (row, col) whose ray passes through p. Integer
// results are pixel centres. ok is false when p is not in front of the source.
func (g *Geometry) ProjectPoint(view int, p r3.Vec) (row, col float64, ok bool) {
	f := &g.frames[view]
	d := g.p.Detector

	var uc, vc float64
	if !g.p.Kind.Divergent() {
		q := r3.Sub(p, f.Center)
		uc = r3.Dot(q, f.U)
		vc = r3.Dot(q, f.V)
	} else {
		q := r3.Sub(p, f.Source)
		depth := r3.Dot(q, f.Dir)
		if depth <= 0 {
			return 0, 0, false
		}
		lat := r3.Dot(q, f.U)
		h := r3.Dot(q, f.V)
		lateral := g.p.Views[view].Lateral

		if d.Shape == Curved {
			uc = math.Atan2(lat, depth)*f.SDD - lateral
			vc = h
			if g.p.Kind == Cone {
				vc = h * f.SDD / math.Hypot(depth, lat)
			}
		} else {
			uc = lat*f.SDD/depth - lateral
			vc = h
			if g.p.Kind == Cone {
				vc = h * f.SDD / depth
			}
		}
	}
	return vc/d.PixelHeight + g.rc, uc/d.PixelWidth + g.cc, true
}

// Footprint returns the inclusive pixel window [r0, r1] x [c0, c1] that
// contains every pixel whose ray can intersect the box [lo, hi] in the given
// view. The window may be larger than necessary but never smaller. ok is false
// when no pixel can be hit.
func (g *Geometry) Footprint(view int, lo, hi r3.Vec) (r0, r1, c0, c1 int, ok bool) {
	d := g.p.Detector
	minR, maxR := math.Inf(1), math.Inf(-1)
	minC, maxC := math.Inf(1), math.Inf(-1)

	for _, c := range corners(lo, hi) {
		row, col, front := g.ProjectPoint(view, c)
		if !front {
			return 0, d.Rows - 1, 0, d.Cols - 1, true
		}
		minR, maxR = math.Min(minR, row), math.Max(maxR, row)
		minC, maxC = math.Min(minC, col), math.Max(maxC, col)
	}

	// On a curved cone detector the row coordinate scales with the inverse
	// horizontal distance, whose extreme may lie on a box edge rather than a
	// vertex. Bound it from the nearest and farthest horizontal distances.
	if g.p.Kind == Cone && d.Shape == Curved {
		f := &g.frames[view]
		dx := math.Max(math.Max(lo.X-f.Source.X, f.Source.X-hi.X), 0)
		dy := math.Max(math.Max(lo.Y-f.Source.Y, f.Source.Y-hi.Y), 0)
		rhoMin := math.Hypot(dx, dy)
		rhoMax := 0.0
		for _, c := range corners(lo, hi) {
			rhoMax = math.Max(rhoMax, math.Hypot(c.X-f.Source.X, c.Y-f.Source.Y))
		}
		if rhoMin <= 0 {
			return 0, d.Rows - 1, 0, d.Cols - 1, true
		}
		hLo, hHi := lo.Z-f.Source.Z, hi.Z-f.Source.Z
		vHi := hHi * f.SDD / rhoMax
		if hHi >= 0 {
			vHi = hHi * f.SDD / rhoMin
		}
		vLo := hLo * f.SDD / rhoMax
		if hLo <= 0 {
			vLo = hLo * f.SDD / rhoMin
		}
		minR, maxR = vLo/d.PixelHeight+g.rc, vHi/d.PixelHeight+g.rc
	}

	r0, r1 = c0Clamp(minR, d.Rows), c1Clamp(maxR, d.Rows)
	c0, c1 = c0Clamp(minC, d.Cols), c1Clamp(maxC, d.Cols)
	return r0, r1, c0, c1, r0 <= r1 && c0 <= c1
}

// c0Clamp and c1Clamp round a continuous coordinate range outward to whole
// pixels, clipped to [0, n-1].
func c0Clamp(x float64, n int) int {
	i := math.Floor(x)
	if i < 0 {
		return 0
	}
	if i > float64(n) {
		return n
	}
	return int(i)
}

func c1Clamp(x float64, n int) int {
	i := math.Ceil(x)
	if i > float64(n-1) {
		return n - 1
	}
	if i < -1 {
		return -1
	}
	return int(i)
}
