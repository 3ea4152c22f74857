package export

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/iq-power/internal/pipeline"
)

const (
	dpi            = 72.0
	fontSize       = 12.0
	tickMarkLength = 5
	pixelsPerLabel = 120

	minPlotWidth = 600
	plotHeight   = 240

	// Default border sizes in pixels
	defaultTopBorder    = 20
	defaultLeftBorder   = 90
	defaultBottomBorder = 56
	defaultRightBorder  = 20
)

// BorderConfig defines the sizes of white space around the plot
type BorderConfig struct {
	Top    int // Top padding
	Left   int // Space for the value scale
	Bottom int // Space for the offset scale and information bar
	Right  int // Right padding
}

// Image renders the series as a PNG bar chart, one column per window, coloured
// by value. Windows without a value (NaN) are drawn across the full plot height
// in a neutral colour.
type Image struct {
	Theme   ColorTheme
	Borders BorderConfig
}

func (im *Image) Format() Format { return FormatPNG }

// Export renders the series and writes it to path as a PNG.
func (im *Image) Export(ctx context.Context, series *pipeline.Series, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := im.Render(series)
	if err != nil {
		return fmt.Errorf("rendering series: %w", err)
	}

	return writeFileAtomic(path, func(f *os.File) error {
		return png.Encode(f, img)
	})
}

// plotLayout is the geometry of a rendered chart.
type plotLayout struct {
	borders     BorderConfig
	columnWidth int
	area        image.Rectangle
}

func (im *Image) layout(n int) plotLayout {
	b := im.Borders
	if b.Top == 0 {
		b.Top = defaultTopBorder
	}
	if b.Left == 0 {
		b.Left = defaultLeftBorder
	}
	if b.Bottom == 0 {
		b.Bottom = defaultBottomBorder
	}
	if b.Right == 0 {
		b.Right = defaultRightBorder
	}

	columnWidth := 1
	if n > 0 && n < minPlotWidth {
		columnWidth = minPlotWidth / n
	}
	width := max(n*columnWidth, minPlotWidth)

	return plotLayout{
		borders:     b,
		columnWidth: columnWidth,
		area:        image.Rect(b.Left, b.Top, b.Left+width, b.Top+plotHeight),
	}
}

// Render draws the chart with its annotations.
func (im *Image) Render(series *pipeline.Series) (*image.RGBA, error) {
	l := im.layout(len(series.Values))

	img := image.NewRGBA(image.Rect(0, 0, l.area.Max.X+l.borders.Right, l.area.Max.Y+l.borders.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	bounds, ok := seriesBounds(series)

	ann, err := newAnnotator(l)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, series, bounds, ok); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	if !ok {
		// nothing finite to scale against, NaN windows are still marked
		bounds = valueBounds{Min: 0, Max: 1}
	}
	renderColumns(img, l, series.Values, bounds, newColorMapper(im.Theme, bounds))

	return img, nil
}

func renderColumns(img *image.RGBA, l plotLayout, values []float64, bounds valueBounds, cm *colorMapper) {
	span := bounds.Max - bounds.Min
	for i, v := range values {
		x0 := l.area.Min.X + i*l.columnWidth

		top := l.area.Min.Y
		if !math.IsNaN(v) {
			ratio := clamp01((v - bounds.Min) / span)
			top = min(l.area.Max.Y-int(math.Round(ratio*float64(l.area.Dy()))), l.area.Max.Y-1)
		}

		col := image.Rect(x0, top, x0+l.columnWidth, l.area.Max.Y)
		draw.Draw(img, col, image.NewUniform(cm.Color(v)), image.Point{}, draw.Src)
	}
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	layout   plotLayout
}

func newAnnotator(l plotLayout) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(fontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		layout:  l,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    fontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, series *pipeline.Series, bounds valueBounds, ok bool) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	drawFrame(img, a.layout.area)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing offset scale", func() error { return a.drawOffsetScale(img, series) }},
		{"drawing value scale", func() error { return a.drawValueScale(img, series, bounds, ok) }},
		{"drawing info bar", func() error { return a.drawInfoBar(img, series, bounds, ok) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}
	return nil
}

func drawFrame(img *image.RGBA, area image.Rectangle) {
	for x := area.Min.X - 1; x <= area.Max.X; x++ {
		img.Set(x, area.Min.Y-1, color.Black)
		img.Set(x, area.Max.Y, color.Black)
	}
	for y := area.Min.Y - 1; y <= area.Max.Y; y++ {
		img.Set(area.Min.X-1, y, color.Black)
		img.Set(area.Max.X, y, color.Black)
	}
}

func (a *annotator) fontHeight() (height, descent int) {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round(), metrics.Descent.Round()
}

// drawOffsetScale labels the X axis with the index of the first value in each
// window, in the extractor's output index space.
func (a *annotator) drawOffsetScale(img *image.RGBA, series *pipeline.Series) error {
	n := len(series.Values)
	if n == 0 {
		return nil
	}

	area := a.layout.area
	height, _ := a.fontHeight()
	textY := area.Max.Y + tickMarkLength + height

	step := max(1, int(math.Ceil(float64(pixelsPerLabel)/float64(a.layout.columnWidth))))
	for w := 0; w < n; w += step {
		x := area.Min.X + w*a.layout.columnWidth

		for y := area.Max.Y; y < area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := humanize.SIWithDigits(float64(w*series.WindowSize), 1, "")
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return fmt.Errorf("drawing offset label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawValueScale(img *image.RGBA, series *pipeline.Series, bounds valueBounds, ok bool) error {
	if !ok {
		return nil
	}

	area := a.layout.area
	height, descent := a.fontHeight()

	const ticks = 4
	for i := 0; i <= ticks; i++ {
		v := bounds.Min + (bounds.Max-bounds.Min)*float64(i)/ticks
		y := area.Max.Y - int(math.Round(float64(area.Dy())*float64(i)/ticks))

		for x := area.Min.X - tickMarkLength - 1; x < area.Min.X-1; x++ {
			img.Set(x, y, color.Black)
		}

		label := formatValue(v, series.Unit)
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(area.Min.X-tickMarkLength-4-width, y+height/2-descent)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing value label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, series *pipeline.Series, bounds valueBounds, ok bool) error {
	info := fmt.Sprintf("Mode: %s; Window: %s; Windows: %s",
		series.Mode, humanize.Comma(int64(series.WindowSize)), humanize.Comma(int64(len(series.Values))))
	if ok {
		info += fmt.Sprintf("; Mean: %s", formatValue(bounds.Mean, series.Unit))
	} else {
		info += "; no data"
	}

	_, descent := a.fontHeight()
	textY := img.Bounds().Max.Y - descent - 4

	if _, err := a.context.DrawString(info, freetype.Pt(a.layout.area.Min.X, textY)); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

func formatValue(v float64, unit pipeline.Unit) string {
	if unit == pipeline.UnitDecibel {
		return fmt.Sprintf("%.1f dB", v)
	}
	return humanize.SIWithDigits(v, 2, "")
}
