package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"tomoproj/internal/models"
	"tomoproj/pkg/config"
	"tomoproj/pkg/filter"
	"tomoproj/pkg/geometry"
	"tomoproj/pkg/logging"
	"tomoproj/pkg/phantom"
	"tomoproj/pkg/projector"
	"tomoproj/pkg/quality"
	"tomoproj/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "tomoproj.yaml", "Engine configuration file (defaults are used if it does not exist)")
	geometryPath := flag.String("geometry", "", "Acquisition geometry file (default: 64^3 circular cone beam)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration and geometry files and exit")
	previewDir := flag.String("preview", "", "Directory for slice and view previews (overrides the config)")
	format := flag.String("format", "jpg", "Preview image format: jpg or tif")
	samples := flag.Int("samples", 2, "Phantom supersampling per voxel axis")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		geomOut := *geometryPath
		if geomOut == "" {
			geomOut = filepath.Join(filepath.Dir(*configPath), "geometry.yaml")
		}
		g, err := config.DefaultGeometryFile().Geometry()
		if err != nil {
			log.Fatalf("Default geometry is invalid: %v", err)
		}
		if err := config.SaveGeometry(g, geomOut); err != nil {
			log.Fatalf("Failed to write geometry: %v", err)
		}
		fmt.Printf("Wrote %s and %s\n", *configPath, geomOut)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *previewDir != "" {
		cfg.Output.PreviewDir = *previewDir
	}

	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logging.SetLogger(logger)

	var g *geometry.Geometry
	if *geometryPath == "" {
		g, err = config.DefaultGeometryFile().Geometry()
	} else {
		g, err = config.LoadGeometry(*geometryPath)
	}
	if err != nil {
		log.Fatalf("Failed to load geometry: %v", err)
	}
	logger.Info("geometry loaded", "geometry", g)

	proj, err := cfg.Projector()
	if err != nil {
		log.Fatalf("Failed to create projector: %v", err)
	}
	mgr := proj.Manager()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("================================")
	fmt.Println("TOMOPROJ FORWARD / BACK PROJECTION")
	fmt.Println("================================")
	fmt.Printf("Device: %s\n", mgr.Info())

	// Phantom restricted to the field of view
	ph := phantom.SheppLogan(g.Volume())
	vol := models.NewVolume(g)
	vol.Data = ph.Render(g.Volume(), *samples)
	floats.Mul(vol.Data, g.FieldOfViewMask())

	startTime := time.Now()
	sino := models.NewProjectionSet(g)
	sino.Data, err = proj.ForwardHost(ctx, g, vol.Data, geometry.AllViews)
	if err != nil {
		log.Fatalf("Forward projection failed: %v", err)
	}
	forwardTime := time.Since(startTime)

	startTime = time.Now()
	back := models.NewVolume(g)
	back.Data, err = proj.BackHost(ctx, g, sino.Data, projector.BackOptions{})
	if err != nil {
		log.Fatalf("Back projection failed: %v", err)
	}
	backTime := time.Since(startTime)

	adj, err := proj.AdjointCheck(ctx, g, vol.Data, sino.Data)
	if err != nil {
		log.Fatalf("Adjoint check failed: %v", err)
	}

	// Exact line integrals of the unmasked phantom for reference
	exact := make([]float64, len(sino.Data))
	for view := 0; view < sino.Views; view++ {
		for row := 0; row < sino.Rows; row++ {
			for col := 0; col < sino.Cols; col++ {
				exact[g.RayIndex(view, row, col)] = ph.LineIntegral(g.Ray(view, row, col))
			}
		}
	}
	metrics, err := quality.Compare(exact, sino.Data)
	if err != nil {
		log.Fatalf("Comparison failed: %v", err)
	}

	fmt.Printf("\nForward projection: %d rays in %.2f seconds\n", len(sino.Data), forwardTime.Seconds())
	fmt.Printf("Back projection: %d voxels in %.2f seconds\n", len(back.Data), backTime.Seconds())

	fmt.Println("\nSummaries:")
	fmt.Printf("- Phantom:     %s\n", quality.Summarize(vol.Data))
	fmt.Printf("- Projections: %s\n", quality.Summarize(sino.Data))
	fmt.Printf("- Back proj.:  %s\n", quality.Summarize(back.Data))

	fmt.Println("\nAdjoint check:")
	fmt.Printf("- <Ax, y>:  %.9g\n", adj.Forward)
	fmt.Printf("- <x, A*y>: %.9g\n", adj.Back)
	fmt.Printf("- Relative gap: %.3g\n", adj.Gap)

	fmt.Println("\nProjections vs exact line integrals:")
	fmt.Printf("- RMSE: %.6f (normalised %.6f)\n", metrics.RMSE, metrics.NRMSE)
	fmt.Printf("- Correlation: %.6f\n", metrics.Correlation)
	fmt.Printf("- SSIM: %.4f\n", metrics.SSIM)

	// Filtered back projection, scaled to the phantom by least squares
	var fbp *models.Volume
	if !strings.EqualFold(cfg.Output.FilterWindow, "none") {
		fbp, err = filteredBackProjection(ctx, cfg, proj, g, sino)
		if err != nil {
			log.Fatalf("Filtered back projection failed: %v", err)
		}
		if den := floats.Dot(fbp.Data, fbp.Data); den > 0 {
			floats.Scale(floats.Dot(fbp.Data, vol.Data)/den, fbp.Data)
		}
		recon, err := quality.Compare(vol.Data, fbp.Data)
		if err != nil {
			log.Fatalf("Comparison failed: %v", err)
		}
		fmt.Printf("\nFiltered back projection (%s window) vs phantom:\n", cfg.Output.FilterWindow)
		fmt.Printf("- RMSE: %.6f (normalised %.6f)\n", recon.RMSE, recon.NRMSE)
		fmt.Printf("- Correlation: %.6f\n", recon.Correlation)
		fmt.Printf("- Mutual Information (MI): %.3f\n", recon.MI)
		fmt.Printf("- Entropy Difference: %.3f\n", recon.EntropyDiff)
		fmt.Printf("- SSIM: %.4f\n", recon.SSIM)
	}

	stats := mgr.Stats()
	fmt.Printf("\nDevice memory: peak %d bytes, %d bytes pooled, %d live buffers\n", stats.Peak, stats.Pooled, stats.Live)

	if cfg.Output.PreviewDir == "" {
		return
	}
	fmt.Printf("\nSaving previews to: %s\n", cfg.Output.PreviewDir)
	phantomViewer := visualization.NewViewer(vol, sino)
	backViewer := visualization.NewViewer(back, nil)
	if err := phantomViewer.SaveSliceSequence("z", filepath.Join(cfg.Output.PreviewDir, "phantom"), *format); err != nil {
		log.Printf("Warning: Failed to save phantom slices: %v", err)
	}
	if err := phantomViewer.SaveViewSequence(filepath.Join(cfg.Output.PreviewDir, "views"), *format); err != nil {
		log.Printf("Warning: Failed to save views: %v", err)
	}
	if err := backViewer.SaveSliceSequence("z", filepath.Join(cfg.Output.PreviewDir, "back"), *format); err != nil {
		log.Printf("Warning: Failed to save back projection slices: %v", err)
	}
	if fbp != nil {
		fbpViewer := visualization.NewViewer(fbp, nil)
		fbpViewer.SetVolumeWindow(visualization.AutoWindow(vol.Data))
		if err := fbpViewer.SaveSliceSequence("z", filepath.Join(cfg.Output.PreviewDir, "fbp"), *format); err != nil {
			log.Printf("Warning: Failed to save filtered back projection slices: %v", err)
		}
	}
	if cfg.Output.Verbose {
		fmt.Println("Preview export completed!")
	}
}

// filteredBackProjection cosine-weights and ramp-filters a copy of sino and
// back projects it.
func filteredBackProjection(ctx context.Context, cfg *config.Config, proj *projector.Projector, g *geometry.Geometry, sino *models.ProjectionSet) (*models.Volume, error) {
	window, err := filter.ParseWindow(cfg.Output.FilterWindow)
	if err != nil {
		return nil, err
	}
	d := g.Detector()
	ramp, err := filter.NewRamp(d.Cols, d.PixelWidth, window)
	if err != nil {
		return nil, err
	}

	filtered := append([]float64(nil), sino.Data...)
	floats.Mul(filtered, filter.CosineWeights(g))
	if err := ramp.Apply(ctx, cfg.Dispatcher(), filtered); err != nil {
		return nil, err
	}

	vol := models.NewVolume(g)
	vol.Data, err = proj.BackHost(ctx, g, filtered, projector.BackOptions{})
	if err != nil {
		return nil, err
	}
	return vol, nil
}
