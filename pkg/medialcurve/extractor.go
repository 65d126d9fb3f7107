// Package medialcurve chains the volume filters that turn a 3D distance map
// into a medial curve (skeleton) volume.
package medialcurve

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"medialcurve/internal/models"
	"medialcurve/pkg/filters"
	"medialcurve/pkg/visualization"
	"medialcurve/pkg/volumeio"
)

// Metrics summarizes one run
type Metrics struct {
	// Voxels is the size of the grid
	Voxels int

	// ObjectVoxels counts voxels with a positive distance
	ObjectVoxels int

	// SkeletonVoxels counts voxels in the written skeleton
	SkeletonVoxels int

	// Components is the number of 26-connected skeleton components
	Components int

	// PrunedVoxels counts voxels dropped by component pruning
	PrunedVoxels int

	// FluxMin, FluxMean and FluxMax describe the flux over the object
	FluxMin, FluxMean, FluxMax float64

	// MeanSkeletonDistance is the average distance value on the skeleton
	MeanSkeletonDistance float64
}

// Params holds the settings of one extraction
type Params struct {
	// InputFile is the distance map to read
	InputFile string

	// OutputFile receives the skeleton volume
	OutputFile string

	// Sigma is the recursive Gaussian smoothing radius
	Sigma float64

	// Threshold is the flux below which curve end points are kept
	Threshold float64

	// InsideNegative negates the loaded map so the object becomes positive
	InsideNegative bool

	// MinComponentSize drops smaller skeleton components when greater than 1
	MinComponentSize int

	// NumWorkers bounds the goroutines used by the filters
	NumWorkers int

	// Write controls the element type and compression of the output
	Write volumeio.WriteOptions

	// SaveIntermediaryResults writes smoothed, gradient magnitude and flux volumes
	SaveIntermediaryResults bool
	IntermediaryDir         string

	// PreviewFile receives a PNG projection of the skeleton when set
	PreviewFile string

	// SlicesDir receives PNG slices of the skeleton along z when set
	SlicesDir string

	// Logger receives progress messages; nil means the standard logger
	Logger *log.Logger
}

// Extractor runs the medial curve pipeline:
// 1. Load the distance map
// 2. Smooth it with a recursive Gaussian along x, y and z
// 3. Compute the gradient of the smoothed map
// 4. Compute the average outward flux of the gradient over the unsmoothed map
// 5. Thin the object to its medial curve
// 6. Write the skeleton
type Extractor struct {
	params *Params
	logger *log.Logger

	distance *models.Volume
	flux     *models.Volume
	skeleton *models.Volume

	metrics Metrics
}

// NewExtractor creates a new extractor with the provided parameters.
func NewExtractor(params *Params) *Extractor {
	logger := params.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{
		params: params,
		logger: logger,
	}
}

// Process loads the input, evaluates the pipeline and writes the skeleton.
// Load failures are returned as an *IOError with Op "load". Any failure while
// evaluating or writing is returned as an *IOError with Op "write".
func (e *Extractor) Process() error {
	e.logger.Println("Step 1: Loading distance map...")
	distance, err := volumeio.Load(e.params.InputFile)
	if err != nil {
		return &IOError{Op: OpLoad, Path: e.params.InputFile, Err: err}
	}
	e.logger.Printf("Loaded %dx%dx%d volume, spacing %v", distance.Width, distance.Height, distance.Depth, distance.Spacing)

	if e.params.InsideNegative {
		distance = negate(distance)
	}
	e.distance = distance

	if err := e.write(e.evaluate); err != nil {
		return &IOError{Op: OpWrite, Path: e.params.OutputFile, Err: err}
	}

	e.saveVisualizations()
	return nil
}

// write forces evaluation of the pipeline and stores its result.
func (e *Extractor) write(evaluate func() (*models.Volume, error)) error {
	skeleton, err := evaluate()
	if err != nil {
		return err
	}

	e.logger.Println("Step 6: Writing skeleton...")
	if err := volumeio.Save(skeleton, e.params.OutputFile, e.params.Write); err != nil {
		return err
	}
	e.logger.Printf("Skeleton saved to: %s", e.params.OutputFile)
	return nil
}

// evaluate runs stages 2 to 5 on the loaded distance map.
func (e *Extractor) evaluate() (*models.Volume, error) {
	workers := e.params.NumWorkers

	e.logger.Printf("Step 2: Smoothing with recursive Gaussian (sigma %g)...", e.params.Sigma)
	smoothed, err := filters.SmoothXYZ(e.distance, e.params.Sigma, workers)
	if err != nil {
		return nil, fmt.Errorf("failed to smooth distance map: %w", err)
	}
	e.saveIntermediaryResult("01_smoothed", smoothed)

	e.logger.Println("Step 3: Computing gradient...")
	gradient, err := filters.Gradient(smoothed, workers)
	if err != nil {
		return nil, fmt.Errorf("failed to compute gradient: %w", err)
	}
	if e.params.SaveIntermediaryResults {
		e.saveIntermediaryResult("02_gradient_magnitude", gradient.Magnitude())
	}

	// the flux integrates against the unsmoothed map; smoothing only stabilizes the gradient
	e.logger.Println("Step 4: Computing average outward flux...")
	flux, err := filters.AverageOutwardFlux(e.distance, gradient, workers)
	if err != nil {
		return nil, fmt.Errorf("failed to compute average outward flux: %w", err)
	}
	e.flux = flux
	e.saveIntermediaryResult("03_flux", flux)

	e.logger.Printf("Step 5: Extracting medial curve (threshold %g)...", e.params.Threshold)
	skeleton, err := filters.MedialCurve(e.distance, flux, e.params.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to extract medial curve: %w", err)
	}

	pruned := 0
	if e.params.MinComponentSize > 1 {
		skeleton, pruned = filters.PruneComponents(skeleton, e.params.MinComponentSize)
		e.logger.Printf("Pruned %d voxels in components smaller than %d", pruned, e.params.MinComponentSize)
	}

	e.skeleton = skeleton
	e.calculateMetrics(pruned)
	e.logger.Printf("Skeleton has %d voxels in %d components", e.metrics.SkeletonVoxels, e.metrics.Components)
	return skeleton, nil
}

func negate(v *models.Volume) *models.Volume {
	out := v.Clone()
	floats.Scale(-1, out.Data)
	return out
}

func (e *Extractor) calculateMetrics(pruned int) {
	m := Metrics{
		Voxels:       e.distance.Len(),
		PrunedVoxels: pruned,
		Components:   len(filters.Components(e.skeleton)),
	}

	var objectFlux, skeletonDist []float64
	for i, d := range e.distance.Data {
		if d > 0 {
			m.ObjectVoxels++
			objectFlux = append(objectFlux, e.flux.Data[i])
		}
		if e.skeleton.Data[i] != 0 {
			m.SkeletonVoxels++
			skeletonDist = append(skeletonDist, d)
		}
	}

	if len(objectFlux) > 0 {
		m.FluxMin = floats.Min(objectFlux)
		m.FluxMax = floats.Max(objectFlux)
		m.FluxMean = stat.Mean(objectFlux, nil)
	}
	if len(skeletonDist) > 0 {
		m.MeanSkeletonDistance = stat.Mean(skeletonDist, nil)
	}

	e.metrics = m
}

// saveIntermediaryResult writes one stage output to the intermediary directory.
// Failures are logged and do not stop the pipeline.
func (e *Extractor) saveIntermediaryResult(stage string, vol *models.Volume) {
	if !e.params.SaveIntermediaryResults {
		return
	}
	if err := os.MkdirAll(e.params.IntermediaryDir, 0755); err != nil {
		e.logger.Printf("Warning: Failed to create intermediary directory: %v", err)
		return
	}
	path := filepath.Join(e.params.IntermediaryDir, stage+".mha")
	if err := volumeio.Save(vol, path, volumeio.WriteOptions{}); err != nil {
		e.logger.Printf("Warning: Failed to save %s: %v", stage, err)
	}
}

// saveVisualizations renders the optional preview image and slice sequence.
func (e *Extractor) saveVisualizations() {
	if e.params.PreviewFile != "" {
		viewer := visualization.NewViewer(e.distance)
		if err := viewer.SaveProjection("z", e.params.PreviewFile, e.skeleton); err != nil {
			e.logger.Printf("Warning: Failed to save preview: %v", err)
		} else {
			e.logger.Printf("Preview saved to: %s", e.params.PreviewFile)
		}
	}

	if e.params.SlicesDir != "" {
		viewer := visualization.NewViewer(e.skeleton)
		if err := viewer.SaveSliceSequence("z", e.params.SlicesDir); err != nil {
			e.logger.Printf("Warning: Failed to save skeleton slices: %v", err)
		}
	}
}

// GetMetrics returns the metrics of the last run.
func (e *Extractor) GetMetrics() Metrics {
	return e.metrics
}

// Skeleton returns the skeleton computed by the last run, or nil.
func (e *Extractor) Skeleton() *models.Volume {
	return e.skeleton
}
