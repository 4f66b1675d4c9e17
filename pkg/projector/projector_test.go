package projector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"tomoproj/pkg/device"
	"tomoproj/pkg/dispatch"
	"tomoproj/pkg/errs"
	"tomoproj/pkg/geometry"
	"tomoproj/pkg/interpolation"
)

// testGeometry builds a small acquisition with an off-centre volume, an
// offset detector and one non-circular offset per view.
func testGeometry(t testing.TB, kind geometry.Kind, shape geometry.DetectorShape) *geometry.Geometry {
	t.Helper()
	poses := geometry.Poses(geometry.CircularAngles(5, 10, 360))
	poses[1].Lateral = 0.6
	poses[2].Axial = -0.4
	poses[3].SourceShift = 2
	poses[4].DetectorShift = -3

	g, err := geometry.New(geometry.Params{
		Kind: kind,
		Volume: geometry.VolumeGrid{
			NX: 6, NY: 5, NZ: 4,
			Pitch:  r3.Vec{X: 1, Y: 1.2, Z: 0.8},
			Offset: r3.Vec{X: 0.3, Y: -0.2, Z: 0.1},
		},
		Detector: geometry.Detector{
			Rows: 7, Cols: 11,
			PixelHeight: 1.1, PixelWidth: 1.3,
			RowOffset: 0.25, ColOffset: -0.4,
			Shape: shape,
		},
		SourceToIso:   20,
		IsoToDetector: 12,
		NumViews:      5,
		Views:         poses,
	})
	if err != nil {
		t.Fatalf("geometry.New: %v", err)
	}
	return g
}

type geometryCase struct {
	name  string
	kind  geometry.Kind
	shape geometry.DetectorShape
}

var geometryCases = []geometryCase{
	{"parallel", geometry.Parallel, geometry.Flat},
	{"fan/flat", geometry.Fan, geometry.Flat},
	{"fan/curved", geometry.Fan, geometry.Curved},
	{"cone/flat", geometry.Cone, geometry.Flat},
	{"cone/curved", geometry.Cone, geometry.Curved},
}

func newProjector(workers int, cfg Config) *Projector {
	mgr := device.NewManager(device.WithCapacity(1 << 28))
	return New(mgr, dispatch.New(dispatch.WithWorkers(workers), dispatch.WithGroupSize(16)), cfg)
}

func randomData(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()
	}
	return out
}

// TestAdjoint checks <Fx, y> = <x, F*y> for every geometry, sampler and
// back projection traversal.
func TestAdjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, gc := range geometryCases {
		g := testGeometry(t, gc.kind, gc.shape)
		x := randomData(rng, g.Volume().Len())
		y := randomData(rng, g.NumViews()*g.Detector().Len())

		for _, interp := range []interpolation.Kind{interpolation.Trilinear, interpolation.Nearest} {
			for _, trav := range []Traversal{VoxelDriven, RayDriven} {
				name := fmt.Sprintf("%s/%s/%s", gc.name, interp, trav)
				t.Run(name, func(t *testing.T) {
					p := newProjector(4, Config{Interpolation: interp, BackProjection: trav})
					res, err := p.AdjointCheck(context.Background(), g, x, y)
					if err != nil {
						t.Fatalf("AdjointCheck: %v", err)
					}
					if res.Forward == 0 {
						t.Fatal("forward projection is empty")
					}
					if res.Gap > 1e-9 {
						t.Errorf("<Fx,y>=%.15g <x,F*y>=%.15g gap %.3g", res.Forward, res.Back, res.Gap)
					}
				})
			}
		}
	}
}

// TestTraversalsAgree compares voxel-driven and ray-driven back projection
// voxel by voxel.
func TestTraversalsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()
	for _, gc := range geometryCases {
		t.Run(gc.name, func(t *testing.T) {
			g := testGeometry(t, gc.kind, gc.shape)
			y := randomData(rng, g.NumViews()*g.Detector().Len())

			voxel, err := newProjector(3, Config{BackProjection: VoxelDriven}).BackHost(ctx, g, y, BackOptions{})
			if err != nil {
				t.Fatal(err)
			}
			ray, err := newProjector(3, Config{BackProjection: RayDriven}).BackHost(ctx, g, y, BackOptions{})
			if err != nil {
				t.Fatal(err)
			}

			scale := 0.0
			for _, v := range voxel {
				scale = math.Max(scale, math.Abs(v))
			}
			for i := range voxel {
				if math.Abs(voxel[i]-ray[i]) > 1e-9*scale {
					t.Fatalf("voxel %d: voxel-driven %v, ray-driven %v", i, voxel[i], ray[i])
				}
			}
		})
	}
}

// TestMissingRaysAreZero uses a detector wider and taller than the volume's
// shadow; pixels whose ray misses the box must read exactly zero.
func TestMissingRaysAreZero(t *testing.T) {
	g, err := geometry.New(geometry.Params{
		Kind:     geometry.Parallel,
		Volume:   geometry.VolumeGrid{NX: 4, NY: 4, NZ: 4, Pitch: r3.Vec{X: 1, Y: 1, Z: 1}},
		Detector: geometry.Detector{Rows: 8, Cols: 10, PixelHeight: 1, PixelWidth: 1},
		NumViews: 1,
		Views:    geometry.Poses([]float64{0}),
	})
	if err != nil {
		t.Fatal(err)
	}
	vol := make([]float64, g.Volume().Len())
	for i := range vol {
		vol[i] = 1 + float64(i%5)
	}

	out, err := newProjector(2, Config{}).ForwardHost(context.Background(), g, vol, geometry.AllViews)
	if err != nil {
		t.Fatal(err)
	}

	for row := 0; row < 8; row++ {
		for col := 0; col < 10; col++ {
			// Pixel centres sit at half-integers; the box spans [-2, 2].
			y := float64(col) - 4.5
			z := float64(row) - 3.5
			v := out[g.RayIndex(0, row, col)]
			hit := math.Abs(y) < 2 && math.Abs(z) < 2
			if !hit && v != 0 {
				t.Errorf("pixel (%d,%d) misses the volume but reads %v", row, col, v)
			}
			if hit && v <= 0 {
				t.Errorf("pixel (%d,%d) crosses the volume but reads %v", row, col, v)
			}
		}
	}
}

// TestUniformVolumePathLength checks that a unit volume integrates to the
// geometric path length of each parallel ray, including oblique views.
func TestUniformVolumePathLength(t *testing.T) {
	poses := geometry.Poses([]float64{0, math.Pi / 2, math.Pi / 6, 1.1})
	g, err := geometry.New(geometry.Params{
		Kind:          geometry.Parallel,
		Volume:        geometry.VolumeGrid{NX: 6, NY: 4, NZ: 3, Pitch: r3.Vec{X: 1.5, Y: 2, Z: 1}},
		Detector:      geometry.Detector{Rows: 5, Cols: 12, PixelHeight: 0.9, PixelWidth: 0.85},
		IsoToDetector: 10,
		NumViews:      len(poses),
		Views:         poses,
	})
	if err != nil {
		t.Fatal(err)
	}
	ones := make([]float64, g.Volume().Len())
	for i := range ones {
		ones[i] = 1
	}

	for _, interp := range []interpolation.Kind{interpolation.Trilinear, interpolation.Nearest} {
		out, err := newProjector(4, Config{Interpolation: interp}).ForwardHost(context.Background(), g, ones, geometry.AllViews)
		if err != nil {
			t.Fatal(err)
		}
		lo, hi := g.Volume().Bounds()
		for view := 0; view < g.NumViews(); view++ {
			for row := 0; row < 5; row++ {
				for col := 0; col < 12; col++ {
					ray := g.Ray(view, row, col)
					t0, t1 := slab(ray.Origin, ray.Dir, lo, hi, math.Inf(-1))
					want := math.Max(0, t1-t0)
					got := out[g.RayIndex(view, row, col)]
					if math.Abs(got-want) > 1e-9 {
						t.Fatalf("%s view %d pixel (%d,%d): got %v, want %v", interp, view, row, col, got, want)
					}
				}
			}
		}
	}

	// Axis-aligned closed form: view 0 crosses the 9-wide x extent.
	out, _ := newProjector(1, Config{}).ForwardHost(context.Background(), g, ones, geometry.AllViews)
	if v := out[g.RayIndex(0, 2, 6)]; math.Abs(v-9) > 1e-12 {
		t.Errorf("axis-aligned ray: got %v, want 9", v)
	}
}

// TestCentreVoxelScenario projects a 64^3 volume holding one unit voxel with
// two parallel views and expects a single detector bin equal to the pitch.
func TestCentreVoxelScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 64^3 scenario in short mode")
	}
	const n = 64
	const pitch = 0.5
	g, err := geometry.New(geometry.Params{
		Kind:          geometry.Parallel,
		Volume:        geometry.VolumeGrid{NX: n, NY: n, NZ: n, Pitch: r3.Vec{X: pitch, Y: pitch, Z: pitch}},
		Detector:      geometry.Detector{Rows: n, Cols: n, PixelHeight: pitch, PixelWidth: pitch},
		IsoToDetector: 40,
		NumViews:      2,
		Views:         geometry.Poses([]float64{0, math.Pi / 2}),
	})
	if err != nil {
		t.Fatal(err)
	}

	vol := make([]float64, g.Volume().Len())
	c := n / 2
	vol[g.Volume().Index(c, c, c)] = 1

	out, err := newProjector(0, Config{}).ForwardHost(context.Background(), g, vol, geometry.AllViews)
	if err != nil {
		t.Fatal(err)
	}

	for view := 0; view < 2; view++ {
		wantRow, wantCol, _ := g.ProjectPoint(view, g.Volume().Center(c, c, c))
		nonzero := 0
		for row := 0; row < n; row++ {
			for col := 0; col < n; col++ {
				v := out[g.RayIndex(view, row, col)]
				if math.Abs(v) < 1e-9 {
					continue
				}
				nonzero++
				if float64(row) != wantRow || float64(col) != wantCol {
					t.Errorf("view %d: unexpected signal %v at (%d,%d), want bin (%v,%v)", view, v, row, col, wantRow, wantCol)
				}
				if math.Abs(v-pitch) > 1e-9 {
					t.Errorf("view %d: bin value %v, want %v", view, v, pitch)
				}
			}
		}
		if nonzero != 1 {
			t.Errorf("view %d: %d non-zero bins, want 1", view, nonzero)
		}
	}
}

// TestForwardDeterministic runs the forward projector twice on one worker and
// expects bit-identical output.
func TestForwardDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := testGeometry(t, geometry.Cone, geometry.Flat)
	x := randomData(rng, g.Volume().Len())
	p := newProjector(1, Config{})

	a, err := p.ForwardHost(context.Background(), g, x, geometry.AllViews)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := p.ForwardHost(context.Background(), g, x, geometry.AllViews)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("ray %d: %v != %v", i, a[i], b[i])
		}
	}

	// Parallel dispatch of the forward projector is also exact: each ray is
	// computed by a single unit.
	c, _ := newProjector(8, Config{}).ForwardHost(context.Background(), g, x, geometry.AllViews)
	for i := range a {
		if a[i] != c[i] {
			t.Fatalf("ray %d differs under parallel dispatch: %v != %v", i, a[i], c[i])
		}
	}
}

// TestBackOverwriteAndAccumulate checks that overwrite is idempotent and that
// accumulate adds one more pass.
func TestBackOverwriteAndAccumulate(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ctx := context.Background()
	g := testGeometry(t, geometry.Fan, geometry.Curved)

	for _, trav := range []Traversal{VoxelDriven, RayDriven} {
		t.Run(trav.String(), func(t *testing.T) {
			p := newProjector(1, Config{BackProjection: trav})
			mgr := p.Manager()

			proj, _ := mgr.Allocate(device.Shape(g.ProjectionShape()))
			mgr.Upload(randomData(rng, proj.Len()), proj)
			vol, _ := mgr.Allocate(device.Shape(g.VolumeShape()))
			mgr.Upload(randomData(rng, vol.Len()), vol)

			read := func() []float64 {
				out := make([]float64, vol.Len())
				mgr.Download(vol, out)
				return out
			}

			if err := p.BackInto(ctx, proj, vol, g, BackOptions{Overwrite: true}); err != nil {
				t.Fatal(err)
			}
			first := read()
			if err := p.BackInto(ctx, proj, vol, g, BackOptions{Overwrite: true}); err != nil {
				t.Fatal(err)
			}
			second := read()
			for i := range first {
				if first[i] != second[i] {
					t.Fatalf("overwrite not idempotent at voxel %d: %v vs %v", i, first[i], second[i])
				}
			}

			if err := p.BackInto(ctx, proj, vol, g, BackOptions{}); err != nil {
				t.Fatal(err)
			}
			doubled := read()
			for i := range first {
				if math.Abs(doubled[i]-2*first[i]) > 1e-12*math.Max(1, math.Abs(first[i])) {
					t.Fatalf("accumulate at voxel %d: got %v, want %v", i, doubled[i], 2*first[i])
				}
			}
		})
	}
}

// TestViewAndVoxelRanges checks that forward projection only overwrites the
// requested views and back projection only touches the requested voxels.
func TestViewAndVoxelRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	ctx := context.Background()
	g := testGeometry(t, geometry.Cone, geometry.Curved)
	p := newProjector(2, Config{})
	mgr := p.Manager()

	x := randomData(rng, g.Volume().Len())
	full, err := p.ForwardHost(ctx, g, x, geometry.AllViews)
	if err != nil {
		t.Fatal(err)
	}

	vol, _ := p.upload(x, device.Shape(g.VolumeShape()))
	proj, _ := mgr.Allocate(device.Shape(g.ProjectionShape()))
	sentinel := make([]float64, proj.Len())
	for i := range sentinel {
		sentinel[i] = -7
	}
	mgr.Upload(sentinel, proj)

	if err := p.ForwardInto(ctx, vol, proj, g, geometry.ViewRange{Start: 1, End: 3}); err != nil {
		t.Fatal(err)
	}
	got := make([]float64, proj.Len())
	mgr.Download(proj, got)
	perView := g.Detector().Len()
	for i, v := range got {
		view := i / perView
		if view >= 1 && view < 3 {
			if v != full[i] {
				t.Fatalf("view %d ray %d: got %v, want %v", view, i, v, full[i])
			}
		} else if v != -7 {
			t.Fatalf("view %d outside range was overwritten", view)
		}
	}

	y := randomData(rng, proj.Len())
	whole, err := p.BackHost(ctx, g, y, BackOptions{})
	if err != nil {
		t.Fatal(err)
	}
	box := geometry.VoxelRange{Min: [3]int{1, 0, 2}, Max: [3]int{4, 3, 4}}
	part, err := p.BackHost(ctx, g, y, BackOptions{Voxels: box})
	if err != nil {
		t.Fatal(err)
	}
	v := g.Volume()
	for idx := range part {
		i, j, k := v.Coords(idx)
		if box.Contains(i, j, k) {
			if math.Abs(part[idx]-whole[idx]) > 1e-12*math.Max(1, math.Abs(whole[idx])) {
				t.Fatalf("voxel (%d,%d,%d): %v, want %v", i, j, k, part[idx], whole[idx])
			}
		} else if part[idx] != 0 {
			t.Fatalf("voxel (%d,%d,%d) outside range was written", i, j, k)
		}
	}

	// Back projections over disjoint view subsets sum to the full one.
	a, _ := p.BackHost(ctx, g, y, BackOptions{Views: geometry.ViewRange{Start: 0, End: 2}})
	b, _ := p.BackHost(ctx, g, y, BackOptions{Views: geometry.ViewRange{Start: 2, End: 5}})
	for i := range whole {
		if math.Abs(a[i]+b[i]-whole[i]) > 1e-9*math.Max(1, math.Abs(whole[i])) {
			t.Fatalf("voxel %d: subsets sum to %v, want %v", i, a[i]+b[i], whole[i])
		}
	}
}

func TestGeometryMismatch(t *testing.T) {
	ctx := context.Background()
	g := testGeometry(t, geometry.Parallel, geometry.Flat)
	p := newProjector(1, Config{})
	mgr := p.Manager()

	wrongVol, _ := mgr.Allocate(device.Shape{4, 5, 7})
	if _, err := p.Forward(ctx, wrongVol, g, geometry.AllViews); !errors.Is(err, errs.ErrGeometryMismatch) {
		t.Errorf("Forward with wrong volume: got %v", err)
	}

	wrongProj, _ := mgr.Allocate(device.Shape{4, 7, 11})
	if _, err := p.Back(ctx, wrongProj, g, BackOptions{}); !errors.Is(err, errs.ErrGeometryMismatch) {
		t.Errorf("Back with wrong projections: got %v", err)
	}

	if _, err := p.ForwardHost(ctx, g, make([]float64, 3), geometry.AllViews); !errors.Is(err, errs.ErrSizeMismatch) {
		t.Errorf("ForwardHost with short host volume: got %v", err)
	}

	if _, err := p.BackHost(ctx, g, make([]float64, g.NumViews()*g.Detector().Len()), BackOptions{
		Views: geometry.ViewRange{Start: 2, End: 9},
	}); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("out of range views: got %v", err)
	}

	if s := mgr.Stats(); s.Live != 2 {
		t.Errorf("failed calls leaked buffers: %d live, want 2", s.Live)
	}
}

// TestAliasedBuffersRejected passes one handle as both volume and
// projections on a geometry where the two shapes coincide.
func TestAliasedBuffersRejected(t *testing.T) {
	ctx := context.Background()
	g, err := geometry.New(geometry.Params{
		Kind:     geometry.Parallel,
		Volume:   geometry.VolumeGrid{NX: 4, NY: 3, NZ: 2, Pitch: r3.Vec{X: 1, Y: 1, Z: 1}},
		Detector: geometry.Detector{Rows: 3, Cols: 4, PixelHeight: 1, PixelWidth: 1},
		NumViews: 2,
		Views:    geometry.Poses([]float64{0, 1}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if device.Shape(g.VolumeShape()) != device.Shape(g.ProjectionShape()) {
		t.Fatalf("shapes differ: %v vs %v", g.VolumeShape(), g.ProjectionShape())
	}

	p := newProjector(1, Config{})
	buf, err := p.Manager().Allocate(device.Shape(g.VolumeShape()))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Manager().Release(buf)

	if err := p.ForwardInto(ctx, buf, buf, g, geometry.AllViews); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("ForwardInto on one buffer: got %v, want Configuration", err)
	}
	if err := p.BackInto(ctx, buf, buf, g, BackOptions{}); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("BackInto on one buffer: got %v, want Configuration", err)
	}
}

func TestOutOfMemorySurfaces(t *testing.T) {
	g := testGeometry(t, geometry.Cone, geometry.Flat)
	mgr := device.NewManager(device.WithCapacity(int64(g.Volume().Len()) * 8))
	p := New(mgr, nil, Config{})

	_, err := p.ForwardHost(context.Background(), g, make([]float64, g.Volume().Len()), geometry.AllViews)
	if !errors.Is(err, errs.ErrOutOfMemory) {
		t.Fatalf("got %v, want OutOfMemory", err)
	}
	if s := mgr.Stats(); s.Live != 0 {
		t.Errorf("%d buffers leaked", s.Live)
	}
}

func TestCancelledContext(t *testing.T) {
	g := testGeometry(t, geometry.Fan, geometry.Flat)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newProjector(2, Config{}).ForwardHost(ctx, g, make([]float64, g.Volume().Len()), geometry.AllViews)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestAsyncMatchesSync(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	ctx := context.Background()
	g := testGeometry(t, geometry.Cone, geometry.Flat)
	p := newProjector(2, Config{})
	mgr := p.Manager()

	x := randomData(rng, g.Volume().Len())
	wantProj, _ := p.ForwardHost(ctx, g, x, geometry.AllViews)
	wantVol, _ := p.BackHost(ctx, g, wantProj, BackOptions{})

	vol, _ := p.upload(x, device.Shape(g.VolumeShape()))
	proj, _ := mgr.Allocate(device.Shape(g.ProjectionShape()))
	back, _ := mgr.Allocate(device.Shape(g.VolumeShape()))

	fwd := p.ForwardAsync(ctx, vol, proj, g, geometry.AllViews)
	bp := p.BackAsync(ctx, proj, back, g, BackOptions{Overwrite: true})
	if err := p.Synchronize(); err != nil {
		t.Fatal(err)
	}
	if fwd.Err() != nil || bp.Err() != nil {
		t.Fatalf("async errors: %v, %v", fwd.Err(), bp.Err())
	}

	got := make([]float64, back.Len())
	mgr.Download(back, got)
	for i := range got {
		if math.Abs(got[i]-wantVol[i]) > 1e-9*math.Max(1, math.Abs(wantVol[i])) {
			t.Fatalf("voxel %d: async %v, sync %v", i, got[i], wantVol[i])
		}
	}
}

// TestBatchMatchesSingle projects three volumes in one batch and checks each
// result against its own forward and back projection.
func TestBatchMatchesSingle(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	ctx := context.Background()
	g := testGeometry(t, geometry.Fan, geometry.Curved)
	p := newProjector(3, Config{})
	mgr := p.Manager()

	hosts := make([][]float64, 3)
	vols := make([]device.Buffer, 3)
	for i := range hosts {
		hosts[i] = randomData(rng, g.Volume().Len())
		vols[i], _ = p.upload(hosts[i], device.Shape(g.VolumeShape()))
	}

	projs, err := p.ForwardBatch(ctx, vols, g, geometry.AllViews)
	if err != nil {
		t.Fatalf("ForwardBatch failed: %v", err)
	}
	if len(projs) != len(vols) {
		t.Fatalf("got %d projection sets, want %d", len(projs), len(vols))
	}
	backs, err := p.BackBatch(ctx, projs, g, BackOptions{})
	if err != nil {
		t.Fatalf("BackBatch failed: %v", err)
	}

	for i := range hosts {
		wantProj, _ := p.ForwardHost(ctx, g, hosts[i], geometry.AllViews)
		gotProj := make([]float64, projs[i].Len())
		mgr.Download(projs[i], gotProj)
		for r := range gotProj {
			if gotProj[r] != wantProj[r] {
				t.Fatalf("volume %d ray %d: batch %v, single %v", i, r, gotProj[r], wantProj[r])
			}
		}

		wantVol, _ := p.BackHost(ctx, g, wantProj, BackOptions{})
		gotVol := make([]float64, backs[i].Len())
		mgr.Download(backs[i], gotVol)
		for v := range gotVol {
			if math.Abs(gotVol[v]-wantVol[v]) > 1e-9*math.Max(1, math.Abs(wantVol[v])) {
				t.Fatalf("volume %d voxel %d: batch %v, single %v", i, v, gotVol[v], wantVol[v])
			}
		}
	}
}

// TestBatchFailureReleases checks that a batch with one mismatched input
// fails and leaves no buffers behind.
func TestBatchFailureReleases(t *testing.T) {
	ctx := context.Background()
	g := testGeometry(t, geometry.Parallel, geometry.Flat)
	p := newProjector(1, Config{})
	mgr := p.Manager()

	good, _ := mgr.Allocate(device.Shape(g.VolumeShape()))
	bad, _ := mgr.Allocate(device.Shape{1, 2, 3})
	if _, err := p.ForwardBatch(ctx, []device.Buffer{good, bad}, g, geometry.AllViews); !errors.Is(err, errs.ErrGeometryMismatch) {
		t.Errorf("got %v, want GeometryMismatch", err)
	}
	if s := mgr.Stats(); s.Live != 2 {
		t.Errorf("failed batch left %d live buffers, want 2", s.Live)
	}
}

func TestParseTraversal(t *testing.T) {
	for in, want := range map[string]Traversal{"": Auto, "auto": Auto, "Voxel": VoxelDriven, "ray": RayDriven} {
		got, err := ParseTraversal(in)
		if err != nil || got != want {
			t.Errorf("ParseTraversal(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseTraversal("diagonal"); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("got %v", err)
	}
}
