// Package projector implements the forward projector (volume to line
// integrals) and its exact adjoint, the back projector, on device buffers.
//
// Both operators walk the same rays through the same sample positions with
// the same interpolation weights. Forward projection is ray-driven: one work
// unit per detector pixel. Back projection is voxel-driven by default: one
// work unit per voxel gathering from every ray that samples it, so no two
// units write the same voxel. A ray-driven back projection that scatters with
// atomic adds is available for comparison.
package projector

import (
	"context"
	"fmt"
	"strings"

	"tomoproj/pkg/device"
	"tomoproj/pkg/dispatch"
	"tomoproj/pkg/errs"
	"tomoproj/pkg/geometry"
	"tomoproj/pkg/interpolation"
	"tomoproj/pkg/logging"
)

// Traversal selects how back projection iterates.
type Traversal int

const (
	// Auto picks VoxelDriven.
	Auto Traversal = iota
	// VoxelDriven gathers per voxel; writes never conflict.
	VoxelDriven
	// RayDriven scatters per ray with atomic adds.
	RayDriven
)

func (t Traversal) String() string {
	switch t {
	case Auto:
		return "auto"
	case VoxelDriven:
		return "voxel"
	case RayDriven:
		return "ray"
	default:
		return fmt.Sprintf("traversal(%d)", int(t))
	}
}

// ParseTraversal converts "auto", "voxel" or "ray" to a Traversal.
func ParseTraversal(s string) (Traversal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "voxel", "voxel-driven":
		return VoxelDriven, nil
	case "ray", "ray-driven":
		return RayDriven, nil
	}
	return 0, errs.Configuration("projector.ParseTraversal", "unknown traversal %q", s)
}

// Config selects the numerical scheme.
type Config struct {
	Interpolation  interpolation.Kind
	BackProjection Traversal
}

// BackOptions parameterises a back projection.
type BackOptions struct {
	Voxels geometry.VoxelRange // voxels to update; zero value means all
	Views  geometry.ViewRange  // views to gather from; zero value means all

	// Overwrite zeroes the voxel range before accumulating. By default the
	// result is added to the existing contents.
	Overwrite bool
}

// Projector runs projections on buffers owned by one device.Manager.
type Projector struct {
	mgr    *device.Manager
	disp   *dispatch.Dispatcher
	cfg    Config
	stream *dispatch.Stream
}

// New creates a projector. A nil dispatcher selects dispatch.New().
func New(mgr *device.Manager, disp *dispatch.Dispatcher, cfg Config) *Projector {
	if disp == nil {
		disp = dispatch.New()
	}
	return &Projector{
		mgr:    mgr,
		disp:   disp,
		cfg:    cfg,
		stream: dispatch.NewStream(),
	}
}

// Manager returns the memory manager the projector works on.
func (p *Projector) Manager() *device.Manager { return p.mgr }

// Config returns the numerical scheme.
func (p *Projector) Config() Config { return p.cfg }

// backTraversal resolves Auto.
func (p *Projector) backTraversal() Traversal {
	if p.cfg.BackProjection == RayDriven {
		return RayDriven
	}
	return VoxelDriven
}

// Forward allocates a projection buffer and fills the requested views. Views
// outside the range are zero.
func (p *Projector) Forward(ctx context.Context, vol device.Buffer, g *geometry.Geometry, views geometry.ViewRange) (device.Buffer, error) {
	if g == nil {
		return device.Buffer{}, errs.Configuration("projector.Forward", "nil geometry")
	}
	proj, err := p.mgr.Allocate(device.Shape(g.ProjectionShape()))
	if err != nil {
		return device.Buffer{}, err
	}
	if err := p.ForwardInto(ctx, vol, proj, g, views); err != nil {
		p.mgr.Release(proj)
		return device.Buffer{}, err
	}
	return proj, nil
}

// ForwardInto overwrites the requested views of proj with the forward
// projection of vol. Other views are untouched.
func (p *Projector) ForwardInto(ctx context.Context, vol, proj device.Buffer, g *geometry.Geometry, views geometry.ViewRange) error {
	const op = "projector.Forward"
	if g == nil {
		return errs.Configuration(op, "nil geometry")
	}
	if err := checkShapes(op, g, vol, proj); err != nil {
		return err
	}
	start, end, err := views.Resolve(g.NumViews())
	if err != nil {
		return err
	}
	src, err := p.mgr.Data(vol)
	if err != nil {
		return err
	}
	dst, err := p.mgr.Data(proj)
	if err != nil {
		return err
	}

	t := newTracer(g, p.cfg.Interpolation)
	d := g.Detector()
	perView := d.Rows * d.Cols
	base := start * perView

	logging.Logger().Debug("forward projection",
		"views", []int{start, end}, "interpolation", p.cfg.Interpolation.String(), "step", g.StepSize())

	return p.disp.Launch(ctx, "forward", (end-start)*perView, func(unit int) {
		r := base + unit
		view := r / perView
		row := (r % perView) / d.Cols
		col := r % d.Cols
		dst[r] = t.integrate(src, view, row, col)
	})
}

// Back allocates a zeroed volume buffer and back projects proj into it.
func (p *Projector) Back(ctx context.Context, proj device.Buffer, g *geometry.Geometry, opts BackOptions) (device.Buffer, error) {
	if g == nil {
		return device.Buffer{}, errs.Configuration("projector.Back", "nil geometry")
	}
	vol, err := p.mgr.Allocate(device.Shape(g.VolumeShape()))
	if err != nil {
		return device.Buffer{}, err
	}
	if err := p.BackInto(ctx, proj, vol, g, opts); err != nil {
		p.mgr.Release(vol)
		return device.Buffer{}, err
	}
	return vol, nil
}

// BackInto back projects proj into the voxel range of vol, adding to its
// contents unless opts.Overwrite is set.
func (p *Projector) BackInto(ctx context.Context, proj, vol device.Buffer, g *geometry.Geometry, opts BackOptions) error {
	const op = "projector.Back"
	if g == nil {
		return errs.Configuration(op, "nil geometry")
	}
	if err := checkShapes(op, g, vol, proj); err != nil {
		return err
	}
	start, end, err := opts.Views.Resolve(g.NumViews())
	if err != nil {
		return err
	}
	voxels, err := opts.Voxels.Resolve(g.Volume())
	if err != nil {
		return err
	}
	src, err := p.mgr.Data(proj)
	if err != nil {
		return err
	}
	dst, err := p.mgr.Data(vol)
	if err != nil {
		return err
	}

	t := newTracer(g, p.cfg.Interpolation)
	traversal := p.backTraversal()
	logging.Logger().Debug("back projection",
		"traversal", traversal.String(), "views", []int{start, end}, "voxels", voxels.Len(), "overwrite", opts.Overwrite)

	if traversal == RayDriven {
		return p.backRays(ctx, t, src, dst, start, end, voxels, opts.Overwrite)
	}
	return p.backVoxels(ctx, t, src, dst, start, end, voxels, opts.Overwrite)
}

// ForwardAsync enqueues ForwardInto on the projector's stream.
func (p *Projector) ForwardAsync(ctx context.Context, vol, proj device.Buffer, g *geometry.Geometry, views geometry.ViewRange) *dispatch.Completion {
	return p.stream.Submit(func() error {
		return p.ForwardInto(ctx, vol, proj, g, views)
	})
}

// BackAsync enqueues BackInto on the projector's stream.
func (p *Projector) BackAsync(ctx context.Context, proj, vol device.Buffer, g *geometry.Geometry, opts BackOptions) *dispatch.Completion {
	return p.stream.Submit(func() error {
		return p.BackInto(ctx, proj, vol, g, opts)
	})
}

// Synchronize waits for every asynchronous call issued so far.
func (p *Projector) Synchronize() error {
	return p.stream.Synchronize()
}

func checkShapes(op string, g *geometry.Geometry, vol, proj device.Buffer) error {
	if !vol.IsZero() && vol.ID() == proj.ID() {
		return errs.Configuration(op, "volume and projections share buffer %d", vol.ID())
	}
	if want := device.Shape(g.VolumeShape()); vol.Shape() != want {
		return errs.GeometryMismatch(op, "volume buffer is %s, geometry declares %s", vol.Shape(), want)
	}
	if want := device.Shape(g.ProjectionShape()); proj.Shape() != want {
		return errs.GeometryMismatch(op, "projection buffer is %s, geometry declares %s", proj.Shape(), want)
	}
	return nil
}
