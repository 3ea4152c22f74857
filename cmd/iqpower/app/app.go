package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/iq-power/internal/decibel"
	"github.com/roman-kulish/iq-power/internal/export"
	"github.com/roman-kulish/iq-power/internal/pipeline"
	"github.com/roman-kulish/iq-power/internal/power"
)

// Run converts the configured capture into a power series and writes it to
// config.OutputPath(). Nothing is written when any stage fails.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if err := config.Validate(); err != nil {
		return pipeline.NewStageError(pipeline.StageConfig, err)
	}

	p, err := createPipeline(config, logger)
	if err != nil {
		return err
	}

	exporter, err := createExporter(config)
	if err != nil {
		return pipeline.NewStageError(pipeline.StageConfig, err)
	}

	series, err := p.Run(ctx, config.Input)
	if err != nil {
		return err
	}

	logger.Info("writing output",
		slog.Group("output",
			slog.String("destination", config.OutputPath()),
			slog.String("format", string(exporter.Format())),
			slog.String("unit", string(series.Unit)),
			slog.Int("windows", len(series.Values)),
		))

	if err = exporter.Export(ctx, series, config.OutputPath()); err != nil {
		return pipeline.NewStageError(pipeline.StageExport, err)
	}
	return nil
}

func createPipeline(config *Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	extractor, err := power.NewExtractor(config.Mode)
	if err != nil {
		return nil, pipeline.NewStageError(pipeline.StageConfig, err)
	}

	options := []func(*pipeline.Pipeline){pipeline.WithLogger(logger)}
	if config.UseDecibels() {
		converter, err := decibel.New(config.Precision)
		if err != nil {
			return nil, pipeline.NewStageError(pipeline.StageConfig, err)
		}
		options = append(options, pipeline.WithDecibels(converter))
	}

	return pipeline.New(extractor, config.WindowSize, options...)
}

func createExporter(config *Config) (export.Exporter, error) {
	switch config.Format {
	case export.FormatCSV:
		return &export.CSV{}, nil
	case export.FormatSQLite:
		return &export.SQLite{MaxBatchSize: config.MaxBatchSize}, nil
	case export.FormatPNG:
		return &export.Image{Theme: config.Theme}, nil
	default:
		return nil, fmt.Errorf("unsupported output format '%s'", config.Format)
	}
}
