package export

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"strconv"

	"github.com/roman-kulish/iq-power/internal/pipeline"
)

// nanText is how a NaN value is spelled in CSV output.
const nanText = "nan"

// CSV writes the series as a single comma-separated row of decimal values in
// scientific notation with 18 fractional digits, e.g. 1.397940009000000039e+01.
type CSV struct{}

func (c *CSV) Format() Format { return FormatCSV }

// Export writes the row to path, replacing any existing file.
func (c *CSV) Export(ctx context.Context, series *pipeline.Series, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return writeFileAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(FormatRow(series.Values)); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	})
}

// FormatRow formats values the way CSV writes them.
func FormatRow(values []float64) []string {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = FormatValue(v)
	}
	return row
}

// FormatValue formats a single value the way CSV writes it.
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return nanText
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'e', 18, 64)
}
