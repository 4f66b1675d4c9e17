// Package interpolation evaluates a voxel volume at continuous positions.
//
// Positions are given in index coordinates: (i, j, k) is the centre of voxel
// (i, j, k) and the volume box spans [-0.5, n-0.5] on each axis. Coordinates
// between the outermost voxel centre and the box face are clamped to that
// centre, so a uniform volume samples to its constant value everywhere inside
// the box.
//
// A sample is expressed as a short list of (voxel, weight) pairs. Forward
// projection gathers through the pairs and back projection scatters through
// the same pairs, which keeps the two operators exact transposes.
package interpolation

import (
	"fmt"
	"math"
	"strings"

	"tomoproj/pkg/errs"
)

// Kind selects the sampling kernel.
type Kind int

const (
	// Trilinear blends the eight surrounding voxels.
	Trilinear Kind = iota
	// Nearest takes the voxel containing the position.
	Nearest
)

func (k Kind) String() string {
	switch k {
	case Trilinear:
		return "trilinear"
	case Nearest:
		return "nearest"
	default:
		return fmt.Sprintf("interpolation(%d)", int(k))
	}
}

// ParseKind converts "trilinear" or "nearest" to a Kind. The empty string
// selects Trilinear.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trilinear", "linear":
		return Trilinear, nil
	case "nearest":
		return Nearest, nil
	}
	return 0, errs.Configuration("interpolation.ParseKind", "unknown interpolation %q", s)
}

// Weights holds the voxel contributions of one sample. Only the first N
// entries are meaningful. An index may appear more than once on a
// single-voxel axis; consumers sum every matching entry.
type Weights struct {
	N     int
	Index [8]int
	W     [8]float64
}

// Sampler evaluates a volume of fixed dimensions.
type Sampler struct {
	kind       Kind
	nx, ny, nz int
}

// New returns a sampler for an nx*ny*nz volume laid out x fastest.
func New(kind Kind, nx, ny, nz int) Sampler {
	return Sampler{kind: kind, nx: nx, ny: ny, nz: nz}
}

// Kind returns the sampling kernel.
func (s Sampler) Kind() Kind { return s.kind }

// Weights fills w with the contributions for position (x, y, z).
func (s Sampler) Weights(x, y, z float64, w *Weights) {
	if s.kind == Nearest {
		i := nearest(x, s.nx)
		j := nearest(y, s.ny)
		k := nearest(z, s.nz)
		w.N = 1
		w.Index[0] = (k*s.ny+j)*s.nx + i
		w.W[0] = 1
		return
	}

	i0, i1, fx := linear(x, s.nx)
	j0, j1, fy := linear(y, s.ny)
	k0, k1, fz := linear(z, s.nz)

	is := [2]int{i0, i1}
	js := [2]int{j0 * s.nx, j1 * s.nx}
	ks := [2]int{k0 * s.ny * s.nx, k1 * s.ny * s.nx}
	wx := [2]float64{1 - fx, fx}
	wy := [2]float64{1 - fy, fy}
	wz := [2]float64{1 - fz, fz}

	n := 0
	for c := 0; c < 2; c++ {
		for b := 0; b < 2; b++ {
			wzy := wz[c] * wy[b]
			for a := 0; a < 2; a++ {
				w.Index[n] = ks[c] + js[b] + is[a]
				w.W[n] = wzy * wx[a]
				n++
			}
		}
	}
	w.N = n
}

// Sample returns the interpolated value of data at (x, y, z).
func (s Sampler) Sample(data []float64, x, y, z float64) float64 {
	var w Weights
	s.Weights(x, y, z, &w)
	var v float64
	for n := 0; n < w.N; n++ {
		v += w.W[n] * data[w.Index[n]]
	}
	return v
}

// Support returns the closed box of index coordinates, per axis in x, y, z
// order, outside which voxel (i, j, k) receives zero weight. Boxes of edge
// voxels extend to the volume face.
func (s Sampler) Support(i, j, k int) (lo, hi [3]float64) {
	idx := [3]int{i, j, k}
	dims := [3]int{s.nx, s.ny, s.nz}
	reach := 1.0
	if s.kind == Nearest {
		reach = 0.5
	}
	for a := 0; a < 3; a++ {
		c := float64(idx[a])
		lo[a] = c - reach
		hi[a] = c + reach
		if idx[a] == 0 {
			lo[a] = -0.5
		}
		if idx[a] == dims[a]-1 {
			hi[a] = float64(dims[a]) - 0.5
		}
	}
	return lo, hi
}

// linear returns the lower and upper neighbours of coordinate a on an axis of
// n voxels and the weight of the upper one.
func linear(a float64, n int) (i0, i1 int, f float64) {
	if n == 1 {
		return 0, 0, 0
	}
	a = math.Max(0, math.Min(a, float64(n-1)))
	i0 = min(int(a), n-2)
	return i0, i0 + 1, a - float64(i0)
}

func nearest(a float64, n int) int {
	i := int(math.Floor(a + 0.5))
	return max(0, min(i, n-1))
}
