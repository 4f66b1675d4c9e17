package projector

import (
	"context"
	"math"
	"sync/atomic"
	"unsafe"

	"gonum.org/v1/gonum/spatial/r3"

	"tomoproj/pkg/geometry"
	"tomoproj/pkg/interpolation"
)

// backVoxels is the voxel-driven adjoint. Each unit owns one voxel and
// replays, for every ray whose footprint covers the voxel's support box, the
// samples that can weight it.
func (p *Projector) backVoxels(ctx context.Context, t *tracer, proj, vol []float64, start, end int, voxels geometry.VoxelRange, overwrite bool) error {
	return p.disp.Launch(ctx, "back/voxel", voxels.Len(), func(unit int) {
		i, j, k := voxels.At(unit)
		idx := t.grid.Index(i, j, k)
		sum := t.gather(proj, i, j, k, idx, start, end)
		if overwrite {
			vol[idx] = sum
		} else {
			vol[idx] += sum
		}
	})
}

// gather returns the back projection of views [start, end) into voxel idx.
func (t *tracer) gather(proj []float64, i, j, k, idx, start, end int) float64 {
	slo, shi := t.sampler.Support(i, j, k)
	lo := r3.Vec{X: slo[0], Y: slo[1], Z: slo[2]}
	hi := r3.Vec{X: shi[0], Y: shi[1], Z: shi[2]}
	wlo, whi := t.grid.FromIndex(lo), t.grid.FromIndex(hi)

	var w interpolation.Weights
	var sum float64
	for view := start; view < end; view++ {
		r0, r1, c0, c1, ok := t.g.Footprint(view, wlo, whi)
		if !ok {
			continue
		}
		for row := r0; row <= r1; row++ {
			for col := c0; col <= c1; col++ {
				y := proj[t.g.RayIndex(view, row, col)]
				if y == 0 {
					continue
				}
				p, ok := t.plan(view, row, col)
				if !ok {
					continue
				}
				k0, k1, ok := p.samplesIn(lo, hi)
				if !ok {
					continue
				}
				var s float64
				for n := k0; n <= k1; n++ {
					x, yy, z := p.at(n)
					t.sampler.Weights(x, yy, z, &w)
					for m := 0; m < w.N; m++ {
						if w.Index[m] == idx {
							s += w.W[m]
						}
					}
				}
				sum += s * y * p.h
			}
		}
	}
	return sum
}

// samplesIn returns a range of sample indices that includes every sample of
// p lying in the box [lo, hi]. The range is padded by one sample on each side
// to absorb rounding; callers weigh each sample anyway.
func (p *plan) samplesIn(lo, hi r3.Vec) (k0, k1 int, ok bool) {
	ta, tb := slab(p.o, p.d, lo, hi, math.Inf(-1))
	if tb < ta-p.h {
		return 0, 0, false
	}
	k0 = int(math.Floor((ta-p.t0)/p.h-0.5)) - 1
	k1 = int(math.Ceil((tb-p.t0)/p.h-0.5)) + 1
	k0 = max(k0, 0)
	k1 = min(k1, p.n-1)
	return k0, k1, k0 <= k1
}

// backRays is the ray-driven adjoint. Each unit owns one ray and scatters its
// measurement into the voxels it samples with atomic adds.
func (p *Projector) backRays(ctx context.Context, t *tracer, proj, vol []float64, start, end int, voxels geometry.VoxelRange, overwrite bool) error {
	if overwrite {
		err := p.disp.Launch(ctx, "back/clear", voxels.Len(), func(unit int) {
			i, j, k := voxels.At(unit)
			vol[t.grid.Index(i, j, k)] = 0
		})
		if err != nil {
			return err
		}
	}

	whole := voxels.Len() == t.grid.Len()
	d := t.g.Detector()
	perView := d.Rows * d.Cols
	base := start * perView

	return p.disp.Launch(ctx, "back/ray", (end-start)*perView, func(unit int) {
		r := base + unit
		y := proj[r]
		if y == 0 {
			return
		}
		view := r / perView
		pl, ok := t.plan(view, (r%perView)/d.Cols, r%d.Cols)
		if !ok {
			return
		}
		scale := y * pl.h
		var w interpolation.Weights
		for n := 0; n < pl.n; n++ {
			x, yy, z := pl.at(n)
			t.sampler.Weights(x, yy, z, &w)
			for m := 0; m < w.N; m++ {
				if w.W[m] == 0 {
					continue
				}
				idx := w.Index[m]
				if !whole {
					i, j, k := t.grid.Coords(idx)
					if !voxels.Contains(i, j, k) {
						continue
					}
				}
				atomicAdd(&vol[idx], w.W[m]*scale)
			}
		}
	})
}

// atomicAdd adds v to *addr with a compare-and-swap loop.
func atomicAdd(addr *float64, v float64) {
	bits := (*uint64)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint64(bits)
		next := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(bits, old, next) {
			return
		}
	}
}
