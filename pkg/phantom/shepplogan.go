package phantom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"tomoproj/pkg/geometry"
)

// sheppLogan lists the 3-D Shepp-Logan ellipsoids with high-contrast values,
// in coordinates normalised to [-1, 1]: semi-axes, centre, phi in degrees and
// value.
var sheppLogan = [][8]float64{
	{0.6900, 0.920, 0.810, 0, 0, 0, 0, 1.0},
	{0.6624, 0.874, 0.780, 0, -0.0184, 0, 0, -0.8},
	{0.1100, 0.310, 0.220, 0.22, 0, 0, -18, -0.2},
	{0.1600, 0.410, 0.280, -0.22, 0, 0, 18, -0.2},
	{0.2100, 0.250, 0.410, 0, 0.35, -0.15, 0, 0.1},
	{0.0460, 0.046, 0.050, 0, 0.1, 0.25, 0, 0.1},
	{0.0460, 0.046, 0.050, 0, -0.1, 0.25, 0, 0.1},
	{0.0460, 0.023, 0.050, -0.08, -0.605, 0, 0, 0.1},
	{0.0230, 0.023, 0.020, 0, -0.605, 0, 0, 0.1},
	{0.0230, 0.046, 0.020, 0.06, -0.605, 0, 0, 0.1},
}

// SheppLogan returns the 3-D Shepp-Logan head scaled to fill the box of grid.
func SheppLogan(grid geometry.VolumeGrid) Phantom {
	lo, hi := grid.Bounds()
	half := r3.Scale(0.5, r3.Sub(hi, lo))
	c := grid.Offset

	ph := make(Phantom, len(sheppLogan))
	for n, e := range sheppLogan {
		axes := r3.Vec{X: e[0] * half.X, Y: e[1] * half.Y, Z: e[2] * half.Z}
		center := r3.Vec{X: c.X + e[3]*half.X, Y: c.Y + e[4]*half.Y, Z: c.Z + e[5]*half.Z}
		ph[n] = NewEllipsoid(center, axes, e[6]*math.Pi/180, 0, e[7])
	}
	return ph
}
