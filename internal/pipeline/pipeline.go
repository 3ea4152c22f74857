package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/iq-power/internal/decibel"
	"github.com/roman-kulish/iq-power/internal/iq"
	"github.com/roman-kulish/iq-power/internal/power"
)

const (
	UnitLinear  Unit = "linear"
	UnitDecibel Unit = "dB"
)

// Unit is the scale of the values in a Series.
type Unit string

// Series is the final output of a run: one value per averaging window, either
// linear power or decibels.
type Series struct {
	Source      string     // Capture path, empty when processing in-memory samples
	Mode        power.Mode // Power interpretation used
	WindowSize  int        // Values per window
	Unit        Unit       // Scale of Values
	Precision   uint32     // Decimal digits used by the decibel stage, 0 when skipped
	SampleCount int        // Samples in the capture
	PowerCount  int        // Power values left after extraction and filtering
	Values      []float64  // Per-window values, NaN where the window had zero power
}

// WithLogger sets the logger for the pipeline
func WithLogger(logger *slog.Logger) func(*Pipeline) {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithDecibels enables the decibel stage using the given converter
func WithDecibels(c *decibel.Converter) func(*Pipeline) {
	return func(p *Pipeline) {
		p.converter = c
	}
}

// Pipeline runs the load, extract, average and optional decibel stages in order.
// Every stage consumes the complete output of the previous one.
type Pipeline struct {
	extractor  power.Extractor
	windowSize int
	converter  *decibel.Converter
	logger     *slog.Logger
}

// New creates a Pipeline. The window size is validated here so that a bad
// configuration is rejected before any input is read.
func New(extractor power.Extractor, windowSize int, options ...func(*Pipeline)) (*Pipeline, error) {
	if extractor == nil {
		return nil, NewStageError(StageConfig, errNoExtractor)
	}
	if windowSize <= 0 {
		return nil, NewStageError(StageConfig, power.ErrInvalidWindowSize)
	}

	p := Pipeline{
		extractor:  extractor,
		windowSize: windowSize,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&p)
	}

	return &p, nil
}

// Run loads the capture at path and processes it.
func (p *Pipeline) Run(ctx context.Context, path string) (*Series, error) {
	if stat, err := os.Stat(path); err == nil {
		p.logger.Info("loading capture",
			slog.String("path", path),
			slog.String("size", humanize.Bytes(uint64(stat.Size()))))
	}

	samples, err := iq.Load(path)
	if err != nil {
		return nil, NewStageError(StageLoad, err)
	}

	series, err := p.Process(ctx, samples)
	if err != nil {
		return nil, err
	}
	series.Source = path
	return series, nil
}

// Process runs every stage after loading on samples.
func (p *Pipeline) Process(ctx context.Context, samples iq.Samples) (*Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStageError(StageExtract, err)
	}

	powers := p.extractor.Extract(samples)
	p.logger.Info("extracted power",
		slog.String("mode", string(p.extractor.Mode())),
		slog.String("samples", humanize.Comma(int64(len(samples)))),
		slog.String("retained", humanize.Comma(int64(len(powers)))))

	if err := ctx.Err(); err != nil {
		return nil, NewStageError(StageAverage, err)
	}

	averaged, err := power.Average(powers, p.windowSize)
	if err != nil {
		return nil, NewStageError(StageAverage, err)
	}
	p.logger.Info("averaged windows",
		slog.Int("windowSize", p.windowSize),
		slog.Int("windows", len(averaged)),
		slog.Int("discarded", len(powers)-len(averaged)*p.windowSize))

	series := Series{
		Mode:        p.extractor.Mode(),
		WindowSize:  p.windowSize,
		Unit:        UnitLinear,
		SampleCount: len(samples),
		PowerCount:  len(powers),
		Values:      averaged,
	}

	if p.converter == nil {
		return &series, nil
	}

	if err = ctx.Err(); err != nil {
		return nil, NewStageError(StageDecibel, err)
	}

	db, err := p.converter.Convert(averaged)
	if err != nil {
		return nil, NewStageError(StageDecibel, err)
	}
	p.logger.Debug("converted to decibels", slog.Uint64("precision", uint64(p.converter.Precision())))

	series.Unit = UnitDecibel
	series.Precision = p.converter.Precision()
	series.Values = db
	return &series, nil
}
