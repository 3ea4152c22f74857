package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/iq-power/internal/decibel"
	"github.com/roman-kulish/iq-power/internal/export"
	"github.com/roman-kulish/iq-power/internal/power"
)

const defaultName = "db_power"

// ConfigError is a custom error type for configuration errors
type ConfigError struct {
	msg string
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{msg}
}

func (e *ConfigError) Error() string {
	return e.msg
}

// Config represents the application configuration. It can be populated from a
// YAML file, from the command line, or both; flags given on the command line
// take precedence over the file.
type Config struct {
	Input        string            `yaml:"path"`
	WindowSize   int               `yaml:"windowSize"`
	Name         string            `yaml:"name"`
	Mode         power.Mode        `yaml:"mode"`
	Decibel      *bool             `yaml:"decibel"` // nil selects the mode default
	Precision    uint32            `yaml:"precision"`
	Format       export.Format     `yaml:"format"`
	Theme        export.ColorTheme `yaml:"theme"`
	MaxBatchSize int               `yaml:"maxBatchSize"`
	LogLevel     string            `yaml:"logLevel"`
}

func NewConfig() *Config {
	return &Config{
		WindowSize: power.DefaultWindowSize,
		Name:       defaultName,
		Mode:       power.MagnitudeMode,
		Precision:  decibel.DefaultPrecision,
		Format:     export.FormatCSV,
		Theme:      export.EnhancedTheme,
		LogLevel:   "info",
	}
}

// LoadConfigFile reads a YAML configuration on top of the defaults. Unknown
// keys are rejected.
func LoadConfigFile(path string) (c *Config, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening configuration file: %w", err)
	}
	defer closeWithError(f, &err)

	c = NewConfig()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding configuration file '%s': %w", path, err)
	}
	return c, nil
}

// NewConfigFromArgs parses command line arguments (without the program name)
// and validates the result. Usage and parse errors are written to output.
func NewConfigFromArgs(args []string, output io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("iqpower", flag.ContinueOnError)
	fs.SetOutput(output)

	f := NewConfig()

	var configPath, mode, format, theme string
	var precision uint
	var useDecibels bool
	fs.StringVar(&configPath, "c", "", "Path to an optional YAML configuration file")
	fs.StringVar(&f.Input, "p", "", "Path to the fc32 IQ capture (required)")
	fs.StringVar(&f.Input, "path", "", "Alias for -p")
	fs.IntVar(&f.WindowSize, "w", f.WindowSize, "Number of power values averaged per window")
	fs.IntVar(&f.WindowSize, "window_size", f.WindowSize, "Alias for -w")
	fs.StringVar(&f.Name, "n", f.Name, "Output base name, the format is appended as extension")
	fs.StringVar(&f.Name, "name", f.Name, "Alias for -n")
	fs.StringVar(&mode, "m", string(f.Mode), "Power mode. [magnitude, real]")
	fs.BoolVar(&useDecibels, "db", false, "Convert averaged power to decibels. Unset: on for magnitude, off for real")
	fs.UintVar(&precision, "precision", uint(f.Precision), "Significant decimal digits of the decibel conversion")
	fs.StringVar(&format, "f", string(f.Format), "Output format. [csv, sqlite, png]")
	fs.StringVar(&theme, "theme", string(f.Theme), "PNG colour theme. [enhanced, classic, grayscale, jungle, thermal, marine]")
	fs.StringVar(&f.LogLevel, "log-level", f.LogLevel, "Log level. [debug, info, warn, error]")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, NewConfigError(fmt.Sprintf("unexpected arguments: %s", strings.Join(fs.Args(), " ")))
	}

	c := NewConfig()
	if configPath != "" {
		var err error
		if c, err = LoadConfigFile(configPath); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "p", "path":
			c.Input = f.Input
		case "w", "window_size":
			c.WindowSize = f.WindowSize
		case "n", "name":
			c.Name = f.Name
		case "m":
			c.Mode = power.Mode(mode)
		case "db":
			c.Decibel = &useDecibels
		case "precision":
			c.Precision = uint32(min(precision, uint(^uint32(0))))
		case "f":
			c.Format = export.Format(format)
		case "theme":
			c.Theme = export.ColorTheme(theme)
		case "log-level":
			c.LogLevel = f.LogLevel
		}
	})

	if err := c.Validate(); err != nil {
		fs.Usage()
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration and normalizes enumerated values to their
// canonical names.
func (c *Config) Validate() error {
	if c.Input == "" {
		return NewConfigError("input path is required")
	}
	if c.WindowSize <= 0 {
		return NewConfigError(fmt.Sprintf("window size must be positive, got %d", c.WindowSize))
	}
	if c.Name == "" {
		return NewConfigError("output name is required")
	}
	if c.MaxBatchSize < 0 {
		return NewConfigError(fmt.Sprintf("max batch size must not be negative, got %d", c.MaxBatchSize))
	}

	mode, err := power.ParseMode(string(c.Mode))
	if err != nil {
		return NewConfigError(err.Error())
	}
	format, err := export.ParseFormat(string(c.Format))
	if err != nil {
		return NewConfigError(err.Error())
	}
	theme, err := export.ParseTheme(string(c.Theme))
	if err != nil {
		return NewConfigError(err.Error())
	}
	if c.UseDecibels() && c.Precision == 0 {
		return NewConfigError("decibel precision must be positive")
	}
	if _, err = c.Level(); err != nil {
		return NewConfigError(err.Error())
	}

	c.Mode, c.Format, c.Theme = mode, format, theme
	return nil
}

// UseDecibels reports whether the decibel stage runs. Without an explicit
// choice, magnitude mode converts and real mode stays linear.
func (c *Config) UseDecibels() bool {
	if c.Decibel != nil {
		return *c.Decibel
	}
	m, _ := power.ParseMode(string(c.Mode))
	return m == power.MagnitudeMode
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("invalid log level '%s'", c.LogLevel)
	}
	return level, nil
}

// OutputPath is the destination file: the base name with the format as extension.
func (c *Config) OutputPath() string {
	return fmt.Sprintf("%s.%s", c.Name, c.Format)
}

func closeWithError(cl io.Closer, err *error) {
	if cerr := cl.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
