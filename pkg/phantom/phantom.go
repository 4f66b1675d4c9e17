// Package phantom builds analytic test volumes: ellipsoids, spheres, single
// voxels and the 3-D Shepp-Logan head. Ellipsoids also report exact line
// integrals, which serve as a reference for forward projections.
package phantom

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"tomoproj/pkg/geometry"
)

// Ellipsoid is a solid of constant added attenuation.
type Ellipsoid struct {
	Center r3.Vec
	Axes   r3.Vec  // semi-axis lengths along the local x, y, z axes
	Phi    float64 // rotation about z, radians
	Theta  float64 // tilt about the rotated y axis, radians
	Value  float64

	rot [9]float64 // world to local, row major
}

// NewEllipsoid returns an ellipsoid with its rotation precomputed.
func NewEllipsoid(center, axes r3.Vec, phi, theta, value float64) Ellipsoid {
	e := Ellipsoid{Center: center, Axes: axes, Phi: phi, Theta: theta, Value: value}
	e.rot = worldToLocal(phi, theta)
	return e
}

// Sphere returns a sphere of the given radius.
func Sphere(center r3.Vec, radius, value float64) Ellipsoid {
	return NewEllipsoid(center, r3.Vec{X: radius, Y: radius, Z: radius}, 0, 0, value)
}

// worldToLocal returns (Rz(phi) Ry(theta))^T.
func worldToLocal(phi, theta float64) [9]float64 {
	sp, cp := math.Sincos(phi)
	st, ct := math.Sincos(theta)
	rz := mat.NewDense(3, 3, []float64{
		cp, -sp, 0,
		sp, cp, 0,
		0, 0, 1,
	})
	ry := mat.NewDense(3, 3, []float64{
		ct, 0, st,
		0, 1, 0,
		-st, 0, ct,
	})
	var r mat.Dense
	r.Mul(rz, ry)

	var out [9]float64
	copy(out[:], mat.DenseCopyOf(r.T()).RawMatrix().Data)
	return out
}

// local maps p into the frame where the ellipsoid is the unit sphere.
func (e *Ellipsoid) local(p r3.Vec) r3.Vec {
	q := r3.Sub(p, e.Center)
	return e.scale(q)
}

func (e *Ellipsoid) scale(q r3.Vec) r3.Vec {
	m := &e.rot
	return r3.Vec{
		X: (m[0]*q.X + m[1]*q.Y + m[2]*q.Z) / e.Axes.X,
		Y: (m[3]*q.X + m[4]*q.Y + m[5]*q.Z) / e.Axes.Y,
		Z: (m[6]*q.X + m[7]*q.Y + m[8]*q.Z) / e.Axes.Z,
	}
}

// Contains reports whether p lies inside or on the ellipsoid.
func (e *Ellipsoid) Contains(p r3.Vec) bool {
	q := e.local(p)
	return r3.Norm2(q) <= 1
}

// Chord returns the length of the intersection of the ellipsoid with the
// line origin + t*dir, t >= tmin. dir must have unit length.
func (e *Ellipsoid) Chord(origin, dir r3.Vec, tmin float64) float64 {
	o := e.local(origin)
	d := e.scale(dir)

	a := r3.Norm2(d)
	b := 2 * r3.Dot(o, d)
	c := r3.Norm2(o) - 1
	disc := b*b - 4*a*c
	if a == 0 || disc <= 0 {
		return 0
	}
	sq := math.Sqrt(disc)
	t0 := (-b - sq) / (2 * a)
	t1 := (-b + sq) / (2 * a)
	t0 = math.Max(t0, tmin)
	if t1 <= t0 {
		return 0
	}
	return t1 - t0
}

// Phantom is a sum of ellipsoids.
type Phantom []Ellipsoid

// Value returns the attenuation at p.
func (ph Phantom) Value(p r3.Vec) float64 {
	var v float64
	for i := range ph {
		if ph[i].Contains(p) {
			v += ph[i].Value
		}
	}
	return v
}

// LineIntegral returns the exact integral of the phantom along a ray.
func (ph Phantom) LineIntegral(ray geometry.Ray) float64 {
	var s float64
	for i := range ph {
		s += ph[i].Value * ph[i].Chord(ray.Origin, ray.Dir, ray.TMin)
	}
	return s
}

// Render samples the phantom on grid. With samples > 1 each voxel averages a
// samples^3 lattice of points; otherwise the voxel centre is used.
func (ph Phantom) Render(grid geometry.VolumeGrid, samples int) []float64 {
	samples = max(samples, 1)
	out := make([]float64, grid.Len())
	inv := 1 / float64(samples*samples*samples)

	offsets := make([]float64, samples)
	for s := range offsets {
		offsets[s] = (float64(s)+0.5)/float64(samples) - 0.5
	}

	for k := 0; k < grid.NZ; k++ {
		for j := 0; j < grid.NY; j++ {
			for i := 0; i < grid.NX; i++ {
				var v float64
				for _, dz := range offsets {
					for _, dy := range offsets {
						for _, dx := range offsets {
							p := grid.FromIndex(r3.Vec{X: float64(i) + dx, Y: float64(j) + dy, Z: float64(k) + dz})
							v += ph.Value(p)
						}
					}
				}
				out[grid.Index(i, j, k)] = v * inv
			}
		}
	}
	return out
}

// Point returns a volume that is zero except for voxel (i, j, k).
func Point(grid geometry.VolumeGrid, i, j, k int, value float64) []float64 {
	out := make([]float64, grid.Len())
	out[grid.Index(i, j, k)] = value
	return out
}

// Uniform returns a volume filled with value.
func Uniform(grid geometry.VolumeGrid, value float64) []float64 {
	out := make([]float64, grid.Len())
	for i := range out {
		out[i] = value
	}
	return out
}
