package projector

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"tomoproj/pkg/device"
	"tomoproj/pkg/errs"
	"tomoproj/pkg/geometry"
)

// ForwardHost projects a host volume and returns a host projection set. Device
// buffers are allocated and released within the call.
func (p *Projector) ForwardHost(ctx context.Context, g *geometry.Geometry, volume []float64, views geometry.ViewRange) ([]float64, error) {
	if g == nil {
		return nil, errs.Configuration("projector.ForwardHost", "nil geometry")
	}
	vol, err := p.upload(volume, device.Shape(g.VolumeShape()))
	if err != nil {
		return nil, err
	}
	defer p.mgr.Release(vol)

	proj, err := p.Forward(ctx, vol, g, views)
	if err != nil {
		return nil, err
	}
	defer p.mgr.Release(proj)

	out := make([]float64, proj.Len())
	if err := p.mgr.Download(proj, out); err != nil {
		return nil, err
	}
	return out, nil
}

// BackHost back projects a host projection set into a fresh host volume.
// opts.Overwrite has no effect since the volume starts at zero.
func (p *Projector) BackHost(ctx context.Context, g *geometry.Geometry, projections []float64, opts BackOptions) ([]float64, error) {
	if g == nil {
		return nil, errs.Configuration("projector.BackHost", "nil geometry")
	}
	proj, err := p.upload(projections, device.Shape(g.ProjectionShape()))
	if err != nil {
		return nil, err
	}
	defer p.mgr.Release(proj)

	vol, err := p.Back(ctx, proj, g, opts)
	if err != nil {
		return nil, err
	}
	defer p.mgr.Release(vol)

	out := make([]float64, vol.Len())
	if err := p.mgr.Download(vol, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Projector) upload(host []float64, shape device.Shape) (device.Buffer, error) {
	buf, err := p.mgr.Allocate(shape)
	if err != nil {
		return device.Buffer{}, err
	}
	if err := p.mgr.Upload(host, buf); err != nil {
		p.mgr.Release(buf)
		return device.Buffer{}, err
	}
	return buf, nil
}

// AdjointResult compares <Fx, y> with <x, F*y>.
type AdjointResult struct {
	Forward float64 // <Fx, y>
	Back    float64 // <x, F*y>
	Gap     float64 // |Forward - Back| / (|Forward| + eps)
}

// AdjointCheck evaluates the adjoint identity for a host volume x and a host
// projection set y over every view and voxel.
func (p *Projector) AdjointCheck(ctx context.Context, g *geometry.Geometry, x, y []float64) (AdjointResult, error) {
	fx, err := p.ForwardHost(ctx, g, x, geometry.AllViews)
	if err != nil {
		return AdjointResult{}, err
	}
	bty, err := p.BackHost(ctx, g, y, BackOptions{})
	if err != nil {
		return AdjointResult{}, err
	}

	res := AdjointResult{
		Forward: floats.Dot(fx, y),
		Back:    floats.Dot(x, bty),
	}
	res.Gap = math.Abs(res.Forward-res.Back) / (math.Abs(res.Forward) + 1e-30)
	return res, nil
}
