package channel

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"miriwcs/internal/models"
	"miriwcs/pkg/reference"
	"miriwcs/pkg/transform"
)

// Params holds the inputs of a model build.
type Params struct {
	// ReferencePath is the calibration product to build from
	ReferencePath string

	// Extensions locates the planes inside the product
	Extensions reference.Extensions

	// Channels lists the channels to build, each with its column range,
	// header keys and identifier offset
	Channels []models.Channel

	// Options control the surface fits
	Options Options

	// Logger receives progress; nil discards it
	Logger *zerolog.Logger
}

// Summary reports fit quality over a whole build
type Summary struct {
	Slices int

	// mean and worst RMS residual over all slices
	WavelengthMeanRMS float64
	WavelengthMaxRMS  float64
	AngleMeanRMS      float64
	AngleMaxRMS       float64
}

// Builder turns a calibration product into one transform per slice.
//
// The build consists of:
// 1. Loading the product once
// 2. Enumerating and fitting the slices of every configured channel
// 3. Composing each slice's surfaces and offset into one transform
// 4. Aggregating all channels into one identifier -> transform mapping
type Builder struct {
	params *Params

	ref    *reference.Reference
	slices map[int]*SliceModels
	models map[int]*transform.Compound
}

// NewBuilder creates a builder for a copy of the given parameters. Channels
// default to models.DefaultChannels when none are set; params is not modified.
func NewBuilder(params *Params) *Builder {
	p := *params
	p.Channels = append([]models.Channel(nil), params.Channels...)
	if len(p.Channels) == 0 {
		p.Channels = models.DefaultChannels()
	}
	if p.Logger == nil {
		nop := zerolog.Nop()
		p.Logger = &nop
	}
	return &Builder{params: &p}
}

// Process runs the build. Any slice that cannot be fitted aborts it.
func (b *Builder) Process() error {
	log := b.params.Logger

	log.Info().Str("path", b.params.ReferencePath).Msg("Step 1: loading reference product")
	ref, err := reference.Load(b.params.ReferencePath, b.params.Extensions)
	if err != nil {
		return errors.Wrap(err, "load reference")
	}
	log.Debug().Int("rows", ref.Mask.Rows).Int("cols", ref.Mask.Cols).Msg("reference planes loaded")

	return b.ProcessReference(ref)
}

// ProcessReference runs the build on an already loaded product.
func (b *Builder) ProcessReference(ref *reference.Reference) error {
	log := b.params.Logger
	b.ref = ref

	log.Info().Int("channels", len(b.params.Channels)).Msg("Step 2: fitting slice surfaces")
	slices, err := BuildAll(ref, b.params.Channels, b.params.Options)
	if err != nil {
		return err
	}
	for _, id := range sortedKeys(slices) {
		sm := slices[id]
		log.Debug().
			Int("slice", id).
			Int("channel", sm.Region.Channel).
			Stringer("bounds", sm.Region.Bounds).
			Float64("lambda_rms", sm.WavelengthStats.RMS).
			Float64("alpha_rms", sm.AngleStats.RMS).
			Msg("slice fitted")
	}

	log.Info().Int("slices", len(slices)).Msg("Step 3: composing slice transforms")
	composed, err := Compose(slices)
	if err != nil {
		return err
	}

	b.slices = slices
	b.models = composed
	return nil
}

// Models returns the aggregated identifier -> transform mapping.
func (b *Builder) Models() map[int]*transform.Compound {
	return b.models
}

// Slices returns the fitted surfaces behind each transform.
func (b *Builder) Slices() map[int]*SliceModels {
	return b.slices
}

// Reference returns the product the models were built from.
func (b *Builder) Reference() *reference.Reference {
	return b.ref
}

// Summary reports fit quality over all slices.
func (b *Builder) Summary() Summary {
	return Summarize(b.slices)
}

// BuildAll fits every slice of every channel into one mapping keyed by global
// identifier. Identifiers must be unique across channels.
func BuildAll(ref *reference.Reference, channels []models.Channel, opts Options) (map[int]*SliceModels, error) {
	all := make(map[int]*SliceModels)
	for _, ch := range channels {
		slices, err := BuildChannel(ref, ch, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "build %s", ch)
		}
		for id, sm := range slices {
			if prev, ok := all[id]; ok {
				return nil, errors.Wrapf(ErrCollision, "identifier %d used by channel %d slice %d and channel %d slice %d",
					id, prev.Region.Channel, prev.Region.RawID, sm.Region.Channel, sm.Region.RawID)
			}
			all[id] = sm
		}
	}
	return all, nil
}

// Compose turns fitted slices into their compound transforms.
func Compose(slices map[int]*SliceModels) (map[int]*transform.Compound, error) {
	out := make(map[int]*transform.Compound, len(slices))
	for id, sm := range slices {
		model, err := sm.Transform()
		if err != nil {
			return nil, errors.Wrapf(err, "compose slice %d", id)
		}
		out[id] = model
	}
	return out, nil
}

// BuildModels loads the product at path once and returns the transforms of
// every slice of the given channels.
func BuildModels(path string, ext reference.Extensions, channels []models.Channel, opts Options) (map[int]*transform.Compound, error) {
	b := NewBuilder(&Params{
		ReferencePath: path,
		Extensions:    ext,
		Channels:      channels,
		Options:       opts,
	})
	if err := b.Process(); err != nil {
		return nil, err
	}
	return b.Models(), nil
}

// Summarize computes mean and worst residuals over a set of slices.
func Summarize(slices map[int]*SliceModels) Summary {
	s := Summary{Slices: len(slices)}
	if len(slices) == 0 {
		return s
	}

	lam := make([]float64, 0, len(slices))
	alpha := make([]float64, 0, len(slices))
	for _, sm := range slices {
		lam = append(lam, sm.WavelengthStats.RMS)
		alpha = append(alpha, sm.AngleStats.RMS)
		s.WavelengthMaxRMS = max(s.WavelengthMaxRMS, sm.WavelengthStats.RMS)
		s.AngleMaxRMS = max(s.AngleMaxRMS, sm.AngleStats.RMS)
	}
	s.WavelengthMeanRMS = stat.Mean(lam, nil)
	s.AngleMeanRMS = stat.Mean(alpha, nil)
	return s
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
