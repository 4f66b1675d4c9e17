package geometry

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// CircularAngles returns n equally spaced angles in radians covering arcDeg
// degrees starting at startDeg. The end of the arc is excluded, so a 360
// degree scan never repeats its first view. n <= 0 gives no angles.
func CircularAngles(n int, startDeg, arcDeg float64) []float64 {
	if n <= 0 {
		return []float64{}
	}
	angles := make([]float64, n)
	for i := range angles {
		angles[i] = (startDeg + float64(i)*arcDeg/float64(n)) * math.Pi / 180
	}
	return angles
}

// Poses wraps plain angles as circular-trajectory poses.
func Poses(angles []float64) []Pose {
	poses := make([]Pose, len(angles))
	for i, a := range angles {
		poses[i] = Pose{Angle: a}
	}
	return poses
}

// HelicalPoses returns poses whose axial position advances by pitch per full
// turn, measured from the first angle.
func HelicalPoses(angles []float64, pitch float64) []Pose {
	poses := Poses(angles)
	if len(angles) == 0 {
		return poses
	}
	for i := range poses {
		poses[i].Axial = pitch * (angles[i] - angles[0]) / (2 * math.Pi)
	}
	return poses
}

// FieldOfViewRadius returns the radius of the cylinder about the rotation
// axis that every view of the nominal circular trajectory sees in full.
func (g *Geometry) FieldOfViewRadius() float64 {
	d := g.p.Detector
	left := math.Abs((0 - g.cc) * d.PixelWidth)
	right := math.Abs((float64(d.Cols-1) - g.cc) * d.PixelWidth)
	half := math.Min(left, right) + 0.5*d.PixelWidth

	if !g.p.Kind.Divergent() {
		return half
	}
	sdd := g.p.SourceToIso + g.p.IsoToDetector
	if d.Shape == Curved {
		return g.p.SourceToIso * math.Sin(math.Min(half/sdd, math.Pi/2))
	}
	return g.p.SourceToIso * math.Sin(math.Atan(half/sdd))
}

// FieldOfViewMask returns a volume-sized mask that is 1 for voxels whose
// centre lies inside the field of view cylinder and 0 elsewhere.
func (g *Geometry) FieldOfViewMask() []float64 {
	v := g.p.Volume
	r := g.FieldOfViewRadius()
	mask := make([]float64, v.Len())
	for k := 0; k < v.NZ; k++ {
		for j := 0; j < v.NY; j++ {
			for i := 0; i < v.NX; i++ {
				c := v.Center(i, j, k)
				if math.Hypot(c.X, c.Y) <= r {
					mask[v.Index(i, j, k)] = 1
				}
			}
		}
	}
	return mask
}

// LogValue summarises the geometry for structured logging.
func (g *Geometry) LogValue() slog.Value {
	v := g.p.Volume
	d := g.p.Detector
	attrs := []slog.Attr{
		slog.String("kind", g.p.Kind.String()),
		slog.Any("volume", []int{v.NX, v.NY, v.NZ}),
		slog.Any("pitch", []float64{v.Pitch.X, v.Pitch.Y, v.Pitch.Z}),
		slog.Any("detector", []int{d.Rows, d.Cols}),
		slog.Any("pixel", []float64{d.PixelHeight, d.PixelWidth}),
		slog.Int("views", g.p.NumViews),
		slog.Float64("step", g.step),
	}
	if g.p.Kind.Divergent() {
		attrs = append(attrs,
			slog.String("detectorShape", d.Shape.String()),
			slog.Float64("sod", g.p.SourceToIso),
			slog.Float64("odd", g.p.IsoToDetector),
		)
	}
	if g.nonCircular() {
		attrs = append(attrs, slog.Bool("nonCircular", true))
	}
	return slog.GroupValue(attrs...)
}

func (g *Geometry) nonCircular() bool {
	for _, p := range g.p.Views {
		if p.SourceShift != 0 || p.DetectorShift != 0 || p.Lateral != 0 || p.Axial != 0 {
			return true
		}
	}
	return false
}

// BoundingBox returns the volume bounds; a shorthand for Volume().Bounds().
func (g *Geometry) BoundingBox() (lo, hi r3.Vec) {
	return g.p.Volume.Bounds()
}
