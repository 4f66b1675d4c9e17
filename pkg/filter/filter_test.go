package filter

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"tomoproj/pkg/dispatch"
	"tomoproj/pkg/errs"
	"tomoproj/pkg/geometry"
)

// TestImpulseReproducesKernel verifies that filtering a unit impulse with the
// unwindowed ramp yields tau times the spatial kernel.
func TestImpulseReproducesKernel(t *testing.T) {
	const cols, tau = 21, 0.7
	r, err := NewRamp(cols, tau, RamLak)
	if err != nil {
		t.Fatal(err)
	}
	row := make([]float64, cols)
	c := 10
	row[c] = 1
	r.Row(row)

	for i, got := range row {
		want := tau * Kernel(i-c, tau)
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("row[%d] = %v, want %v", i, got, want)
		}
	}
	if want := 1 / (4 * tau); math.Abs(row[c]-want) > 1e-12 {
		t.Errorf("centre = %v, want %v", row[c], want)
	}
}

func TestKernel(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0.25},
		{1, -1 / (math.Pi * math.Pi)},
		{-1, -1 / (math.Pi * math.Pi)},
		{2, 0},
		{3, -1 / (9 * math.Pi * math.Pi)},
	}
	for _, tt := range tests {
		if got := Kernel(tt.n, 1); math.Abs(got-tt.want) > 1e-15 {
			t.Errorf("Kernel(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

// TestWindowOrdering checks that every window lowers the ramp at high
// frequencies and leaves DC untouched.
func TestWindowOrdering(t *testing.T) {
	resp := map[Window][]float64{}
	for _, w := range []Window{RamLak, SheppLogan, Cosine, Hann} {
		r, err := NewRamp(32, 1, w)
		if err != nil {
			t.Fatal(err)
		}
		resp[w] = r.Response()
	}

	base := resp[RamLak]
	n := len(base)
	if base[n-1] <= base[n/2] || base[n/2] <= base[1] {
		t.Errorf("ram-lak response is not increasing: %v %v %v", base[1], base[n/2], base[n-1])
	}
	for k := range base {
		if resp[SheppLogan][k] > base[k]+1e-12 ||
			resp[Cosine][k] > resp[SheppLogan][k]+1e-12 ||
			resp[Hann][k] > resp[Cosine][k]+1e-12 {
			t.Fatalf("window ordering broken at frequency %d", k)
		}
	}
	if resp[Hann][0] != base[0] {
		t.Errorf("Hann changed DC: %v vs %v", resp[Hann][0], base[0])
	}
	if math.Abs(resp[Hann][n-1]) > 1e-12 {
		t.Errorf("Hann at Nyquist = %v, want 0", resp[Hann][n-1])
	}
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in   string
		want Window
	}{
		{"", RamLak},
		{"Ram-Lak", RamLak},
		{"shepp-logan", SheppLogan},
		{"cosine", Cosine},
		{"hanning", Hann},
	}
	for _, tt := range tests {
		got, err := ParseWindow(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseWindow(%q) = %v, %v", tt.in, got, err)
		}
		if err == nil && tt.in != "" {
			if back, _ := ParseWindow(got.String()); back != got {
				t.Errorf("String round trip of %v gave %v", got, back)
			}
		}
	}
	if _, err := ParseWindow("butterworth"); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("got %v, want Configuration", err)
	}
}

// TestApplyMatchesRow filters a projection set through the dispatcher and
// compares against filtering each row directly.
func TestApplyMatchesRow(t *testing.T) {
	const cols = 9
	r, err := NewRamp(cols, 1.5, SheppLogan)
	if err != nil {
		t.Fatal(err)
	}
	proj := make([]float64, 6*cols)
	for i := range proj {
		proj[i] = math.Sin(float64(i))
	}
	want := append([]float64(nil), proj...)
	for u := 0; u < 6; u++ {
		r.Row(want[u*cols : (u+1)*cols])
	}

	d := dispatch.New(dispatch.WithWorkers(3), dispatch.WithGroupSize(1))
	if err := r.Apply(context.Background(), d, proj); err != nil {
		t.Fatal(err)
	}
	for i := range proj {
		if proj[i] != want[i] {
			t.Fatalf("value %d: %v, want %v", i, proj[i], want[i])
		}
	}

	if err := r.Apply(context.Background(), d, proj[:cols+1]); !errors.Is(err, errs.ErrGeometryMismatch) {
		t.Errorf("got %v, want GeometryMismatch", err)
	}
}

func TestNewRampErrors(t *testing.T) {
	if _, err := NewRamp(0, 1, RamLak); err == nil {
		t.Error("expected error for empty rows")
	}
	if _, err := NewRamp(4, 0, RamLak); err == nil {
		t.Error("expected error for zero pixel width")
	}
}

func TestCosineWeights(t *testing.T) {
	params := geometry.Params{
		Kind:          geometry.Cone,
		Volume:        geometry.VolumeGrid{NX: 4, NY: 4, NZ: 4, Pitch: r3.Vec{X: 1, Y: 1, Z: 1}},
		Detector:      geometry.Detector{Rows: 3, Cols: 3, PixelHeight: 3, PixelWidth: 4},
		SourceToIso:   6,
		IsoToDetector: 6,
		NumViews:      2,
		Views:         geometry.Poses([]float64{0, 1}),
	}
	g, err := geometry.New(params)
	if err != nil {
		t.Fatal(err)
	}
	w := CosineWeights(g)

	// Central ray is 1; the corner pixel sits at (4, 3) from the principal
	// point, 12 from the source: cos = 12/13.
	if c := w[g.RayIndex(1, 1, 1)]; math.Abs(c-1) > 1e-12 {
		t.Errorf("central weight %v, want 1", c)
	}
	if c := w[g.RayIndex(0, 0, 0)]; math.Abs(c-12.0/13) > 1e-12 {
		t.Errorf("corner weight %v, want 12/13", c)
	}

	params.Kind = geometry.Parallel
	g, err = geometry.New(params)
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range CosineWeights(g) {
		if math.Abs(c-1) > 1e-12 {
			t.Fatalf("parallel weight %d = %v, want 1", i, c)
		}
	}
}
