package export

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	EnhancedTheme  ColorTheme = "enhanced"
	ClassicTheme   ColorTheme = "classic"
	GrayscaleTheme ColorTheme = "grayscale"
	JungleTheme    ColorTheme = "jungle"
	ThermalTheme   ColorTheme = "thermal"
	MarineTheme    ColorTheme = "marine"

	defaultColorMapSize = 256
)

// ColorTheme names a gradient used to colour values.
type ColorTheme string

var validThemes = map[ColorTheme]struct{}{
	EnhancedTheme:  {},
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
}

// ParseTheme resolves a theme name (case-insensitive); empty selects EnhancedTheme.
func ParseTheme(s string) (ColorTheme, error) {
	if strings.TrimSpace(s) == "" {
		return EnhancedTheme, nil
	}
	t := ColorTheme(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validThemes[t]; !ok {
		return "", fmt.Errorf("unknown colour theme '%s'", s)
	}
	return t, nil
}

var noDataColor = color.RGBA{R: 0xc8, G: 0xc8, B: 0xc8, A: 0xff}

// colorMapper maps values within bounds onto a precomputed gradient.
type colorMapper struct {
	colorMap      []color.Color
	boundsMin     float64
	valuePerIndex float64
}

func newColorMapper(theme ColorTheme, bounds valueBounds) *colorMapper {
	gradient := getColorTheme(theme)

	cm := &colorMapper{
		colorMap:      make([]color.Color, defaultColorMapSize),
		boundsMin:     bounds.Min,
		valuePerIndex: (bounds.Max - bounds.Min) / float64(defaultColorMapSize-1),
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = gradient(float64(i) / float64(defaultColorMapSize-1))
	}
	return cm
}

// Color returns the colour for v; NaN maps to noDataColor.
func (cm *colorMapper) Color(v float64) color.Color {
	if math.IsNaN(v) {
		return noDataColor
	}
	if cm.valuePerIndex <= 0 {
		return cm.colorMap[len(cm.colorMap)/2]
	}

	index := int((v - cm.boundsMin) / cm.valuePerIndex)
	switch {
	case index < 0:
		return cm.colorMap[0]
	case index >= len(cm.colorMap):
		return cm.colorMap[len(cm.colorMap)-1]
	}
	return cm.colorMap[index]
}

func hsv(h, s, v float64) color.Color {
	return colorful.Hsv(math.Mod(h+360, 360), clamp01(s), clamp01(v)).Clamped()
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// getColorTheme returns a gradient over normalized values in [0,1].
func getColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme:
		return func(p float64) color.Color {
			return hsv(240-(p*240), 0.9+(p*0.1), math.Pow(p, 0.7))
		}

	case GrayscaleTheme:
		return func(p float64) color.Color {
			v := uint8(math.Pow(p, 0.7) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case JungleTheme:
		return func(p float64) color.Color {
			return hsv(120-(p*60), 1.0, 0.3+(math.Pow(p, 0.6)*0.7))
		}

	case ThermalTheme:
		return func(p float64) color.Color {
			switch {
			case p < 0.33:
				return color.RGBA{R: uint8((p * 3) * 255), A: 255}
			case p < 0.66:
				return color.RGBA{R: 255, G: uint8(((p - 0.33) * 3) * 255), A: 255}
			default:
				return color.RGBA{R: 255, G: 255, B: uint8(clamp01((p-0.66)*3) * 255), A: 255}
			}
		}

	case MarineTheme:
		return func(p float64) color.Color {
			return hsv(240-(p*60), 1.0-(p*0.8), 0.3+(math.Pow(p, 0.6)*0.7))
		}

	default:
		return func(p float64) color.Color {
			p = clamp01(p)
			enhanced := math.Pow(p, 0.7)

			switch {
			case p < 0.25:
				return hsv(240, 1.0, enhanced*4)
			case p < 0.5:
				return hsv(240-((p-0.25)*240), 1.0, enhanced*1.5)
			case p < 0.75:
				return hsv(180-((p-0.5)*4*120), 1.0, enhanced*1.5)
			default:
				return hsv(60-((p-0.75)*4*60), 1.0, 1.0)
			}
		}
	}
}
