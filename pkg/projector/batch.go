package projector

import (
	"context"
	"errors"

	"tomoproj/pkg/device"
	"tomoproj/pkg/dispatch"
	"tomoproj/pkg/errs"
	"tomoproj/pkg/geometry"
)

// ForwardBatch projects several volumes through one geometry. The launches
// are queued on the projector's stream in order; the returned projection
// buffers line up with vols. On any failure every buffer allocated by the
// call is released.
func (p *Projector) ForwardBatch(ctx context.Context, vols []device.Buffer, g *geometry.Geometry, views geometry.ViewRange) ([]device.Buffer, error) {
	if g == nil {
		return nil, errs.Configuration("projector.ForwardBatch", "nil geometry")
	}
	return p.batch(vols, device.Shape(g.ProjectionShape()), func(in, out device.Buffer) *dispatch.Completion {
		return p.ForwardAsync(ctx, in, out, g, views)
	})
}

// BackBatch back projects several projection sets into fresh volumes, one
// per entry of projs.
func (p *Projector) BackBatch(ctx context.Context, projs []device.Buffer, g *geometry.Geometry, opts BackOptions) ([]device.Buffer, error) {
	if g == nil {
		return nil, errs.Configuration("projector.BackBatch", "nil geometry")
	}
	return p.batch(projs, device.Shape(g.VolumeShape()), func(in, out device.Buffer) *dispatch.Completion {
		return p.BackAsync(ctx, in, out, g, opts)
	})
}

func (p *Projector) batch(inputs []device.Buffer, shape device.Shape, submit func(in, out device.Buffer) *dispatch.Completion) ([]device.Buffer, error) {
	outs := make([]device.Buffer, 0, len(inputs))
	release := func() {
		for _, b := range outs {
			p.mgr.Release(b)
		}
	}
	for range inputs {
		b, err := p.mgr.Allocate(shape)
		if err != nil {
			release()
			return nil, err
		}
		outs = append(outs, b)
	}

	done := make([]*dispatch.Completion, len(inputs))
	for i, in := range inputs {
		done[i] = submit(in, outs[i])
	}
	var errList []error
	for _, c := range done {
		if err := c.Wait(); err != nil {
			errList = append(errList, err)
		}
	}
	if err := errors.Join(errList...); err != nil {
		release()
		return nil, err
	}
	return outs, nil
}
