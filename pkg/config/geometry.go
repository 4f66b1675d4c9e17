package config

import (
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"tomoproj/pkg/errs"
	"tomoproj/pkg/geometry"
)

// GeometryFile is the YAML form of an acquisition. Angles may be listed
// explicitly (degrees or radians) or generated from count, start and arc.
type GeometryFile struct {
	Kind          string  `yaml:"kind"`
	DetectorShape string  `yaml:"detectorShape,omitempty"`
	SourceToIso   float64 `yaml:"sourceToIso,omitempty"`
	IsoToDetector float64 `yaml:"isoToDetector,omitempty"`
	StepSize      float64 `yaml:"stepSize,omitempty"`

	Volume struct {
		Shape  [3]int     `yaml:"shape"` // nx, ny, nz
		Pitch  [3]float64 `yaml:"pitch"`
		Offset [3]float64 `yaml:"offset"`
	} `yaml:"volume"`

	Detector struct {
		Rows        int     `yaml:"rows"`
		Cols        int     `yaml:"cols"`
		PixelHeight float64 `yaml:"pixelHeight"`
		PixelWidth  float64 `yaml:"pixelWidth"`
		RowOffset   float64 `yaml:"rowOffset,omitempty"`
		ColOffset   float64 `yaml:"colOffset,omitempty"`
	} `yaml:"detector"`

	Views struct {
		Count        int          `yaml:"count"`
		StartDeg     float64      `yaml:"startDeg,omitempty"`
		ArcDeg       float64      `yaml:"arcDeg,omitempty"`
		Angles       []float64    `yaml:"angles,omitempty"`    // degrees
		AnglesRad    []float64    `yaml:"anglesRad,omitempty"` // radians; written by SaveGeometry
		HelicalPitch float64      `yaml:"helicalPitch,omitempty"`
		Offsets      []PoseOffset `yaml:"offsets,omitempty"`
	} `yaml:"views"`
}

// PoseOffset holds the non-circular offsets of one view.
type PoseOffset struct {
	SourceShift   float64 `yaml:"sourceShift,omitempty"`
	DetectorShift float64 `yaml:"detectorShift,omitempty"`
	Lateral       float64 `yaml:"lateral,omitempty"`
	Axial         float64 `yaml:"axial,omitempty"`
}

// DefaultGeometryFile describes a 64^3 circular cone-beam scan.
func DefaultGeometryFile() *GeometryFile {
	f := &GeometryFile{
		Kind:          "cone",
		DetectorShape: "flat",
		SourceToIso:   500,
		IsoToDetector: 500,
	}
	f.Volume.Shape = [3]int{64, 64, 64}
	f.Volume.Pitch = [3]float64{1, 1, 1}
	f.Detector.Rows = 96
	f.Detector.Cols = 128
	f.Detector.PixelHeight = 1.5
	f.Detector.PixelWidth = 1.5
	f.Views.Count = 90
	f.Views.ArcDeg = 360
	return f
}

// Params converts the file into geometry parameters. The result still needs
// geometry.New to be validated.
func (f *GeometryFile) Params() (geometry.Params, error) {
	const op = "config.GeometryFile"
	var p geometry.Params

	kind, err := geometry.ParseKind(f.Kind)
	if err != nil {
		return p, err
	}
	shape, err := geometry.ParseDetectorShape(f.DetectorShape)
	if err != nil {
		return p, err
	}

	if f.Views.Count < 0 {
		return p, errs.Configuration(op, "view count must not be negative, got %d", f.Views.Count)
	}

	var angles []float64
	switch {
	case len(f.Views.AnglesRad) > 0:
		angles = append(angles, f.Views.AnglesRad...)
	case len(f.Views.Angles) > 0:
		for _, a := range f.Views.Angles {
			angles = append(angles, a*math.Pi/180)
		}
	default:
		arc := f.Views.ArcDeg
		if arc == 0 {
			arc = 360
		}
		angles = geometry.CircularAngles(f.Views.Count, f.Views.StartDeg, arc)
	}
	if f.Views.Count != 0 && f.Views.Count != len(angles) {
		return p, errs.Configuration(op, "%d angles listed for %d declared views", len(angles), f.Views.Count)
	}

	poses := geometry.Poses(angles)
	if f.Views.HelicalPitch != 0 {
		poses = geometry.HelicalPoses(angles, f.Views.HelicalPitch)
	}
	if len(f.Views.Offsets) > 0 {
		if len(f.Views.Offsets) != len(poses) {
			return p, errs.Configuration(op, "%d offsets listed for %d views", len(f.Views.Offsets), len(poses))
		}
		for i, o := range f.Views.Offsets {
			poses[i].SourceShift = o.SourceShift
			poses[i].DetectorShift = o.DetectorShift
			poses[i].Lateral = o.Lateral
			poses[i].Axial += o.Axial
		}
	}

	v := f.Volume
	d := f.Detector
	p = geometry.Params{
		Kind: kind,
		Volume: geometry.VolumeGrid{
			NX: v.Shape[0], NY: v.Shape[1], NZ: v.Shape[2],
			Pitch:  r3.Vec{X: v.Pitch[0], Y: v.Pitch[1], Z: v.Pitch[2]},
			Offset: r3.Vec{X: v.Offset[0], Y: v.Offset[1], Z: v.Offset[2]},
		},
		Detector: geometry.Detector{
			Rows: d.Rows, Cols: d.Cols,
			PixelHeight: d.PixelHeight, PixelWidth: d.PixelWidth,
			RowOffset: d.RowOffset, ColOffset: d.ColOffset,
			Shape: shape,
		},
		SourceToIso:   f.SourceToIso,
		IsoToDetector: f.IsoToDetector,
		NumViews:      len(poses),
		Views:         poses,
		StepSize:      f.StepSize,
	}
	return p, nil
}

// Geometry converts and validates the file.
func (f *GeometryFile) Geometry() (*geometry.Geometry, error) {
	p, err := f.Params()
	if err != nil {
		return nil, err
	}
	return geometry.New(p)
}

// FileFromGeometry captures g in file form with explicit angles in radians
// and per-view offsets, so that loading it back reproduces g exactly.
func FileFromGeometry(g *geometry.Geometry) *GeometryFile {
	p := g.Params()
	f := &GeometryFile{
		Kind:          p.Kind.String(),
		SourceToIso:   p.SourceToIso,
		IsoToDetector: p.IsoToDetector,
		StepSize:      p.StepSize,
	}
	if p.Kind.Divergent() {
		f.DetectorShape = p.Detector.Shape.String()
	}
	v := p.Volume
	f.Volume.Shape = [3]int{v.NX, v.NY, v.NZ}
	f.Volume.Pitch = [3]float64{v.Pitch.X, v.Pitch.Y, v.Pitch.Z}
	f.Volume.Offset = [3]float64{v.Offset.X, v.Offset.Y, v.Offset.Z}

	d := p.Detector
	f.Detector.Rows, f.Detector.Cols = d.Rows, d.Cols
	f.Detector.PixelHeight, f.Detector.PixelWidth = d.PixelHeight, d.PixelWidth
	f.Detector.RowOffset, f.Detector.ColOffset = d.RowOffset, d.ColOffset

	f.Views.Count = p.NumViews
	nonCircular := false
	for _, pose := range p.Views {
		f.Views.AnglesRad = append(f.Views.AnglesRad, pose.Angle)
		o := PoseOffset{pose.SourceShift, pose.DetectorShift, pose.Lateral, pose.Axial}
		f.Views.Offsets = append(f.Views.Offsets, o)
		if o != (PoseOffset{}) {
			nonCircular = true
		}
	}
	if !nonCircular {
		f.Views.Offsets = nil
	}
	return f
}

// ReadGeometry parses a YAML geometry document.
func ReadGeometry(data []byte) (*geometry.Geometry, error) {
	var f GeometryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("error parsing geometry: %w", err)
	}
	return f.Geometry()
}

// LoadGeometry reads and validates a YAML geometry file.
func LoadGeometry(path string) (*geometry.Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading geometry file: %w", err)
	}
	g, err := ReadGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("geometry file %s: %w", path, err)
	}
	return g, nil
}

// SaveGeometry writes g to a YAML geometry file.
func SaveGeometry(g *geometry.Geometry, path string) error {
	return writeYAML(FileFromGeometry(g), path)
}
