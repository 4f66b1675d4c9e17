// Package filter applies the ramp filter of filtered back projection to
// detector rows. Rows are convolved in the frequency domain with the
// band-limited discrete ramp kernel, optionally apodised by a window.
package filter

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/spatial/r3"

	"tomoproj/pkg/dispatch"
	"tomoproj/pkg/errs"
	"tomoproj/pkg/geometry"
)

// Window selects the apodisation applied to the ramp.
type Window int

const (
	RamLak Window = iota
	SheppLogan
	Cosine
	Hann
)

func (w Window) String() string {
	switch w {
	case RamLak:
		return "ram-lak"
	case SheppLogan:
		return "shepp-logan"
	case Cosine:
		return "cosine"
	case Hann:
		return "hann"
	}
	return fmt.Sprintf("Window(%d)", int(w))
}

// ParseWindow accepts the String forms; "" and "ramp" mean RamLak.
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(s) {
	case "", "ramp", "ram-lak", "ramlak":
		return RamLak, nil
	case "shepp-logan", "shepplogan":
		return SheppLogan, nil
	case "cosine":
		return Cosine, nil
	case "hann", "hanning":
		return Hann, nil
	}
	return 0, errs.Configuration("filter.ParseWindow", "unknown window %q", s)
}

// gain returns the window value at w, a fraction of the Nyquist frequency.
func (w Window) gain(f float64) float64 {
	switch w {
	case SheppLogan:
		if f == 0 {
			return 1
		}
		x := math.Pi * f / 2
		return math.Sin(x) / x
	case Cosine:
		return math.Cos(math.Pi * f / 2)
	case Hann:
		return 0.5 * (1 + math.Cos(math.Pi*f))
	}
	return 1
}

// Kernel returns the spatial ramp kernel h[n] for |n| < half, for pixel
// width tau: 1/(4tau^2) at 0, zero at even n and -1/(n pi tau)^2 at odd n.
func Kernel(n int, tau float64) float64 {
	switch {
	case n == 0:
		return 1 / (4 * tau * tau)
	case n%2 == 0:
		return 0
	}
	x := float64(n) * math.Pi * tau
	return -1 / (x * x)
}

// Ramp filters detector rows of a fixed length.
type Ramp struct {
	cols   int
	tau    float64
	window Window
	size   int       // padded length, a power of two >= 2*cols
	resp   []float64 // real frequency response, size/2+1 values

	scratch sync.Pool
}

type scratch struct {
	fft    *fourier.FFT
	row    []float64
	coeffs []complex128
}

// NewRamp prepares a filter for rows of cols pixels of width tau.
func NewRamp(cols int, tau float64, window Window) (*Ramp, error) {
	const op = "filter.NewRamp"
	if cols <= 0 {
		return nil, errs.Configuration(op, "row length must be positive, got %d", cols)
	}
	if !(tau > 0) || math.IsInf(tau, 1) {
		return nil, errs.Configuration(op, "pixel width must be positive, got %v", tau)
	}

	size := 1
	for size < 2*cols {
		size <<= 1
	}
	r := &Ramp{cols: cols, tau: tau, window: window, size: size}

	h := make([]float64, size)
	for n := 0; n < cols; n++ {
		h[n] = Kernel(n, tau)
		if n > 0 {
			h[size-n] = h[n]
		}
	}
	fft := fourier.NewFFT(size)
	coeffs := fft.Coefficients(nil, h)
	r.resp = make([]float64, len(coeffs))
	half := float64(size / 2)
	for k, c := range coeffs {
		// h is even, so its transform is real.
		r.resp[k] = real(c) * window.gain(float64(k)/half)
	}

	r.scratch.New = func() any {
		return &scratch{
			fft:    fourier.NewFFT(size),
			row:    make([]float64, size),
			coeffs: make([]complex128, size/2+1),
		}
	}
	return r, nil
}

// Window returns the apodisation in use.
func (r *Ramp) Window() Window { return r.window }

// Response returns the frequency response from DC to Nyquist.
func (r *Ramp) Response() []float64 {
	return append([]float64(nil), r.resp...)
}

// Row filters one row in place. len(row) must equal the configured length.
func (r *Ramp) Row(row []float64) {
	s := r.scratch.Get().(*scratch)
	defer r.scratch.Put(s)

	copy(s.row, row)
	clear(s.row[len(row):])
	s.fft.Coefficients(s.coeffs, s.row)
	for k := range s.coeffs {
		s.coeffs[k] *= complex(r.resp[k], 0)
	}
	s.fft.Sequence(s.row, s.coeffs)

	// Sequence is unnormalised; tau turns the sum into a convolution integral.
	scale := r.tau / float64(r.size)
	for i := range row {
		row[i] = s.row[i] * scale
	}
}

// Apply filters every row of a (views, rows, cols) projection set in place,
// one dispatch unit per row.
func (r *Ramp) Apply(ctx context.Context, d *dispatch.Dispatcher, proj []float64) error {
	if len(proj)%r.cols != 0 {
		return errs.GeometryMismatch("filter.Apply", "%d values do not split into rows of %d", len(proj), r.cols)
	}
	if d == nil {
		d = dispatch.New()
	}
	return d.Launch(ctx, "ramp", len(proj)/r.cols, func(unit int) {
		r.Row(proj[unit*r.cols : (unit+1)*r.cols])
	})
}

// CosineWeights returns, per ray, the cosine of the angle between the ray
// and the central beam of its view. Divergent projections are multiplied by
// these weights before ramp filtering; parallel weights are all 1.
func CosineWeights(g *geometry.Geometry) []float64 {
	s := g.ProjectionShape()
	w := make([]float64, s[0]*s[1]*s[2])
	for view := 0; view < s[0]; view++ {
		dir := g.Frame(view).Dir
		for row := 0; row < s[1]; row++ {
			for col := 0; col < s[2]; col++ {
				w[g.RayIndex(view, row, col)] = r3.Dot(g.Ray(view, row, col).Dir, dir)
			}
		}
	}
	return w
}
