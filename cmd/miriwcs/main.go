package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"miriwcs/pkg/asdf"
	"miriwcs/pkg/channel"
	"miriwcs/pkg/config"
	"miriwcs/pkg/reference"
	"miriwcs/pkg/visualization"
)

func main() {
	configPath := flag.String("config", "miriwcs.yaml", "YAML configuration file (defaults are used if it does not exist)")
	initConfig := flag.Bool("init", false, "Write the default configuration to -config and exit")
	refPath := flag.String("reference", "", "Calibration FITS product (overrides reference.path)")
	outputPath := flag.String("output", "", "Model file to write (overrides output.modelPath)")
	showPath := flag.String("show", "", "PNG file for the slice mask figure (overrides output.figurePath)")
	regions := flag.Int("regions", 0, "Number of colours in the mask figure (overrides output.regions)")
	fitter := flag.String("fitter", "", "Surface fitter: linear or levmar (overrides fitting.fitter)")
	inspect := flag.String("inspect", "", "Read a model file, print its transforms and exit")
	verbose := flag.Bool("verbose", false, "Log every fitted slice")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			logger.Fatal().Err(err).Msg("Failed to write default config")
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *inspect != "" {
		if err := inspectModel(*inspect); err != nil {
			logger.Fatal().Err(err).Str("path", *inspect).Msg("Failed to read model file")
		}
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}
	if *refPath != "" {
		cfg.Reference.Path = *refPath
	}
	if *outputPath != "" {
		cfg.Output.ModelPath = *outputPath
	}
	if *showPath != "" {
		cfg.Output.FigurePath = *showPath
	}
	if *regions > 0 {
		cfg.Output.Regions = *regions
	}
	if *fitter != "" {
		cfg.Fitting.Fitter = *fitter
	}
	if *verbose || cfg.Output.Verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	opts, err := cfg.FitOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid fitting options")
	}

	fmt.Println("================================")
	fmt.Println("MIRI CHANNEL 3/4 SLICE TRANSFORMS")
	fmt.Println("================================")

	builder := channel.NewBuilder(&channel.Params{
		ReferencePath: cfg.Reference.Path,
		Extensions:    cfg.Reference.Extensions,
		Channels:      cfg.Channels,
		Options:       opts,
		Logger:        &logger,
	})

	startTime := time.Now()
	if err := builder.Process(); err != nil {
		logger.Fatal().Err(err).Msg("Model build failed")
	}
	elapsed := time.Since(startTime)

	slices := builder.Slices()
	fmt.Printf("\nBuilt %d slice transforms in %.2f seconds\n\n", len(slices), elapsed.Seconds())
	fmt.Printf("%6s %8s %-22s %12s %12s %10s\n", "slice", "channel", "bounds", "lambda rms", "alpha rms", "beta")
	for _, id := range sortedIDs(slices) {
		sm := slices[id]
		fmt.Printf("%6d %8d %-22s %12.3e %12.3e %10.4f\n",
			id, sm.Region.Channel, sm.Region.Bounds, sm.WavelengthStats.RMS, sm.AngleStats.RMS, sm.Beta.Amplitude)
	}

	summary := builder.Summary()
	fmt.Printf("\nFit quality over %d slices:\n", summary.Slices)
	fmt.Printf("- Wavelength RMS: mean %.3e, max %.3e\n", summary.WavelengthMeanRMS, summary.WavelengthMaxRMS)
	fmt.Printf("- Angle RMS:      mean %.3e, max %.3e\n", summary.AngleMeanRMS, summary.AngleMaxRMS)

	if cfg.Output.ModelPath != "" {
		tree, err := asdf.FromSlices(cfg.Reference.Path, slices)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to serialize models")
		}
		if err := asdf.WriteModel(cfg.Output.ModelPath, tree); err != nil {
			logger.Fatal().Err(err).Msg("Failed to write model file")
		}
		fmt.Printf("\nModels saved to: %s\n", cfg.Output.ModelPath)
	}

	if cfg.Output.FigurePath != "" {
		mask := reference.CombinedMask(builder.Reference(), cfg.Channels)
		viewer := visualization.NewViewer(mask)
		viewer.Colormap = cfg.Output.Colormap
		if err := viewer.Show(cfg.Output.Regions, cfg.Output.FigurePath); err != nil {
			logger.Error().Err(err).Msg("Failed to draw slice mask")
		} else {
			fmt.Printf("Slice mask figure saved to: %s\n", cfg.Output.FigurePath)
		}
	}
}

// inspectModel prints every transform of a model file evaluated at the centre
// of its slice.
func inspectModel(path string) error {
	tree, err := asdf.ReadModel(path)
	if err != nil {
		return err
	}
	transforms, err := tree.Transforms()
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d transforms built from %s\n\n", path, len(transforms), tree.Reference)
	for _, region := range tree.Regions {
		model := transforms[region.ID]
		fmt.Printf("%6d %s\n", region.ID, model)
		if len(region.Bounds) != 4 {
			continue
		}
		row := float64(region.Bounds[0]+region.Bounds[1]) / 2
		col := float64(region.Bounds[2]+region.Bounds[3]) / 2
		out, err := model.Evaluate(row, col)
		if err != nil {
			return err
		}
		fmt.Printf("       at (%.1f, %.1f): %.5f\n", row, col, out)
	}
	return nil
}

func sortedIDs(slices map[int]*channel.SliceModels) []int {
	ids := make([]int, 0, len(slices))
	for id := range slices {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
