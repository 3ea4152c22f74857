package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roman-kulish/iq-power/internal/pipeline"
)

const (
	FormatCSV    Format = "csv"
	FormatSQLite Format = "sqlite"
	FormatPNG    Format = "png"
)

// Format names an output file format; it doubles as the file extension.
type Format string

var validFormats = map[Format]struct{}{
	FormatCSV:    {},
	FormatSQLite: {},
	FormatPNG:    {},
}

// ParseFormat resolves a format name (case-insensitive).
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validFormats[f]; !ok {
		return "", fmt.Errorf("unknown output format '%s'", s)
	}
	return f, nil
}

// Exporter writes a finished series to a single output file.
type Exporter interface {
	Export(ctx context.Context, series *pipeline.Series, path string) error
	Format() Format
}

// writeAtomic calls write with a temporary path in the directory of path and
// renames the result into place only when write succeeds. On failure nothing is
// left behind at path.
func writeAtomic(path string, write func(tmpPath string) error) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err = write(tmpPath); err != nil {
		return err
	}

	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting output permissions: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("moving output into place: %w", err)
	}
	return nil
}

// writeFileAtomic is writeAtomic for exporters that stream into an *os.File.
func writeFileAtomic(path string, write func(f *os.File) error) error {
	return writeAtomic(path, func(tmpPath string) (err error) {
		f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("opening temporary file: %w", err)
		}
		defer closeWithError(f, &err)

		if err = write(f); err != nil {
			return err
		}
		return f.Sync()
	})
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
