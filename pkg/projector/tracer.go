package projector

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"tomoproj/pkg/geometry"
	"tomoproj/pkg/interpolation"
)

// tracer builds sampling plans for the rays of one geometry. Work is done in
// voxel index coordinates; the ray parameter t stays in world length units.
type tracer struct {
	g       *geometry.Geometry
	grid    geometry.VolumeGrid
	sampler interpolation.Sampler
	step    float64
	lo, hi  r3.Vec // volume box in index coordinates
}

func newTracer(g *geometry.Geometry, kind interpolation.Kind) *tracer {
	v := g.Volume()
	return &tracer{
		g:       g,
		grid:    v,
		sampler: interpolation.New(kind, v.NX, v.NY, v.NZ),
		step:    g.StepSize(),
		lo:      r3.Vec{X: -0.5, Y: -0.5, Z: -0.5},
		hi:      r3.Vec{X: float64(v.NX) - 0.5, Y: float64(v.NY) - 0.5, Z: float64(v.NZ) - 0.5},
	}
}

// plan is the sampling of one ray: n midpoint samples of spacing h starting
// half a spacing after t0.
type plan struct {
	o, d  r3.Vec // ray origin and direction in index coordinates
	t0, h float64
	n     int
}

// at returns the index coordinates of sample k.
func (p *plan) at(k int) (x, y, z float64) {
	t := p.t0 + (float64(k)+0.5)*p.h
	return p.o.X + t*p.d.X, p.o.Y + t*p.d.Y, p.o.Z + t*p.d.Z
}

// plan clips the ray of detector pixel (row, col) against the volume box.
// ok is false when the ray misses the box.
func (t *tracer) plan(view, row, col int) (p plan, ok bool) {
	ray := t.g.Ray(view, row, col)
	pitch := t.grid.Pitch
	p.o = t.grid.ToIndex(ray.Origin)
	p.d = r3.Vec{X: ray.Dir.X / pitch.X, Y: ray.Dir.Y / pitch.Y, Z: ray.Dir.Z / pitch.Z}

	t0, t1 := slab(p.o, p.d, t.lo, t.hi, ray.TMin)
	if !(t1 > t0) {
		return p, false
	}
	length := t1 - t0
	p.n = max(1, int(math.Ceil(length/t.step)))
	p.t0 = t0
	p.h = length / float64(p.n)
	return p, true
}

// integrate returns the line integral of vol along one ray, or 0 on a miss.
func (t *tracer) integrate(vol []float64, view, row, col int) float64 {
	p, ok := t.plan(view, row, col)
	if !ok {
		return 0
	}
	var w interpolation.Weights
	var sum float64
	for k := 0; k < p.n; k++ {
		x, y, z := p.at(k)
		t.sampler.Weights(x, y, z, &w)
		for m := 0; m < w.N; m++ {
			sum += w.W[m] * vol[w.Index[m]]
		}
	}
	return sum * p.h
}

// slab intersects the line o + t*d, t >= tmin, with the closed box [lo, hi].
// The result is empty when t1 < t0.
func slab(o, d, lo, hi r3.Vec, tmin float64) (t0, t1 float64) {
	t0, t1 = tmin, math.Inf(1)
	axes := [3][4]float64{
		{o.X, d.X, lo.X, hi.X},
		{o.Y, d.Y, lo.Y, hi.Y},
		{o.Z, d.Z, lo.Z, hi.Z},
	}
	for _, a := range axes {
		oa, da, la, ha := a[0], a[1], a[2], a[3]
		if da == 0 {
			if oa < la || oa > ha {
				return 0, math.Inf(-1)
			}
			continue
		}
		ta, tb := (la-oa)/da, (ha-oa)/da
		if ta > tb {
			ta, tb = tb, ta
		}
		t0 = math.Max(t0, ta)
		t1 = math.Min(t1, tb)
	}
	return t0, t1
}
