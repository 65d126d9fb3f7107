package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"medialcurve/pkg/config"
	"medialcurve/pkg/medialcurve"
	"medialcurve/pkg/volumeio"
)

const (
	exitOK = iota
	exitUsage
	exitIO
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	program := filepath.Base(args[0])

	opts, err := config.ParseArgs(args[1:])
	if err != nil {
		fmt.Fprintln(stderr, err)
		config.Usage(stderr, program)
		return exitUsage
	}

	cfg, err := opts.Resolve()
	if err != nil {
		fmt.Fprintln(stdout, "Configuration error:")
		fmt.Fprintln(stdout, err)
		return exitIO
	}

	pixelType, err := volumeio.ParseElementType(cfg.Output.PixelType)
	if err != nil {
		fmt.Fprintln(stdout, "Configuration error:")
		fmt.Fprintln(stdout, err)
		return exitIO
	}

	logOut := io.Discard
	if cfg.Output.Verbose {
		logOut = stdout
	}
	logger := log.New(logOut, "", log.LstdFlags)

	params := &medialcurve.Params{
		InputFile:               opts.InputFile,
		OutputFile:              opts.OutputFile,
		Sigma:                   cfg.Filter.Sigma,
		Threshold:               cfg.Filter.Threshold,
		InsideNegative:          cfg.Filter.InsideNegative,
		MinComponentSize:        cfg.Filter.MinComponentSize,
		NumWorkers:              cfg.Processing.NumWorkers,
		Write:                   volumeio.WriteOptions{ElementType: pixelType, Compress: cfg.Output.Compress},
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
		PreviewFile:             cfg.Output.PreviewFile,
		SlicesDir:               cfg.Output.SlicesDir,
		Logger:                  logger,
	}

	extractor := medialcurve.NewExtractor(params)

	startTime := time.Now()
	if err := extractor.Process(); err != nil {
		var ioErr *medialcurve.IOError
		if errors.As(err, &ioErr) {
			fmt.Fprintf(stdout, "Error caught during %s!\n", ioErr.Op)
		}
		fmt.Fprintln(stdout, err)
		return exitIO
	}

	metrics := extractor.GetMetrics()
	logger.Printf("Completed in %.2f seconds", time.Since(startTime).Seconds())
	logger.Printf("Object voxels: %d of %d", metrics.ObjectVoxels, metrics.Voxels)
	logger.Printf("Skeleton voxels: %d (%d components, %d pruned)", metrics.SkeletonVoxels, metrics.Components, metrics.PrunedVoxels)
	logger.Printf("Flux over object: min %.4f, mean %.4f, max %.4f", metrics.FluxMin, metrics.FluxMean, metrics.FluxMax)
	logger.Printf("Mean distance on skeleton: %.4f", metrics.MeanSkeletonDistance)

	return exitOK
}
