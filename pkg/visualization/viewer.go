// Package visualization renders volume slices and detector views as 16-bit
// grayscale previews and writes them as JPEG or TIFF files.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"tomoproj/internal/models"
	"tomoproj/pkg/geometry"
)

// Window maps data values to gray levels: Lo renders black and Hi white.
type Window struct {
	Lo, Hi float64
}

// AutoWindow returns the min..max window of data.
func AutoWindow(data []float64) Window {
	w := Window{Lo: math.Inf(1), Hi: math.Inf(-1)}
	for _, v := range data {
		w.Lo = math.Min(w.Lo, v)
		w.Hi = math.Max(w.Hi, v)
	}
	if len(data) == 0 {
		return Window{0, 1}
	}
	return w
}

func (w Window) gray(v float64) color.Gray16 {
	span := w.Hi - w.Lo
	if span <= 0 {
		if v > w.Lo {
			return color.Gray16{Y: 65535}
		}
		return color.Gray16{}
	}
	f := (v - w.Lo) / span
	return color.Gray16{Y: uint16(math.Round(math.Max(0, math.Min(1, f)) * 65535))}
}

// Viewer extracts previews from a volume and, optionally, its projections.
type Viewer struct {
	vol  *models.Volume
	proj *models.ProjectionSet

	// Window applied to extracted images; AutoWindow of the source by default
	volWindow  Window
	projWindow Window
}

// NewViewer creates a viewer. proj may be nil.
func NewViewer(vol *models.Volume, proj *models.ProjectionSet) *Viewer {
	v := &Viewer{vol: vol, proj: proj}
	if vol != nil {
		v.volWindow = AutoWindow(vol.Data)
	}
	if proj != nil {
		v.projWindow = AutoWindow(proj.Data)
	}
	return v
}

// SetVolumeWindow overrides the gray-level window for volume slices.
func (v *Viewer) SetVolumeWindow(w Window) { v.volWindow = w }

// ExtractSlice extracts a 2D slice from the volume perpendicular to the given
// axis ("x", "y" or "z").
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	if v.vol == nil {
		return nil, fmt.Errorf("viewer has no volume")
	}
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	nx, ny, nz := v.vol.Dims()

	var img *image.Gray16
	switch strings.ToLower(axis) {
	case "x":
		// YZ plane, z down the image
		if position >= nx {
			return nil, fmt.Errorf("position %d exceeds nx %d", position, nx)
		}
		img = image.NewGray16(image.Rect(0, 0, ny, nz))
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				img.SetGray16(j, nz-1-k, v.volWindow.gray(v.vol.At(position, j, k)))
			}
		}

	case "y":
		// XZ plane
		if position >= ny {
			return nil, fmt.Errorf("position %d exceeds ny %d", position, ny)
		}
		img = image.NewGray16(image.Rect(0, 0, nx, nz))
		for k := 0; k < nz; k++ {
			for i := 0; i < nx; i++ {
				img.SetGray16(i, nz-1-k, v.volWindow.gray(v.vol.At(i, position, k)))
			}
		}

	case "z":
		// XY plane
		if position >= nz {
			return nil, fmt.Errorf("position %d exceeds nz %d", position, nz)
		}
		img = image.NewGray16(image.Rect(0, 0, nx, ny))
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				img.SetGray16(i, j, v.volWindow.gray(v.vol.At(i, j, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractView renders one detector view with row 0 at the bottom, matching
// the +z row axis.
func (v *Viewer) ExtractView(view int) (*image.Gray16, error) {
	if v.proj == nil {
		return nil, fmt.Errorf("viewer has no projections")
	}
	if view < 0 || view >= v.proj.Views {
		return nil, fmt.Errorf("view %d outside [0, %d)", view, v.proj.Views)
	}
	rows, cols := v.proj.Rows, v.proj.Cols
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			img.SetGray16(c, rows-1-r, v.projWindow.gray(v.proj.At(view, r, c)))
		}
	}
	return img, nil
}

// ExtractRegion copies a voxel sub-box out of the volume, x fastest.
func (v *Viewer) ExtractRegion(r geometry.VoxelRange) ([]float64, error) {
	if v.vol == nil {
		return nil, fmt.Errorf("viewer has no volume")
	}
	r, err := r.Resolve(v.vol.Grid)
	if err != nil {
		return nil, err
	}
	region := make([]float64, r.Len())
	for n := range region {
		i, j, k := r.At(n)
		region[n] = v.vol.At(i, j, k)
	}
	return region, nil
}

// Save writes img to filename. The format follows the extension: .tif/.tiff
// keeps all 16 bits losslessly, anything else is written as JPEG.
func Save(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filename, err)
	}
	return file.Close()
}

// SaveSliceSequence extracts and saves every slice along the given axis.
// ext selects the format ("jpg" or "tif").
func (v *Viewer) SaveSliceSequence(axis, outputDir, ext string) error {
	if v.vol == nil {
		return fmt.Errorf("viewer has no volume")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	nx, ny, nz := v.vol.Dims()
	var maxPos int
	switch strings.ToLower(axis) {
	case "x":
		maxPos = nx
	case "y":
		maxPos = ny
	case "z":
		maxPos = nz
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.%s", axis, pos, ext))
		if err := Save(img, filename); err != nil {
			return err
		}
	}
	return nil
}

// SaveViewSequence saves every detector view.
func (v *Viewer) SaveViewSequence(outputDir, ext string) error {
	if v.proj == nil {
		return fmt.Errorf("viewer has no projections")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	for view := 0; view < v.proj.Views; view++ {
		img, err := v.ExtractView(view)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("view_%04d.%s", view, ext))
		if err := Save(img, filename); err != nil {
			return err
		}
	}
	return nil
}
