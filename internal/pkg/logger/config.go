package logger

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"

	OutputConsole = "console"
	OutputFile    = "file"
	OutputBoth    = "both"
)

// Config is the log section of the service configuration
type Config struct {
	// Name is attached to every entry as "app"
	Name             string     `mapstructure:"name"`
	Level            string     `mapstructure:"level"`
	Format           string     `mapstructure:"format"`
	Output           string     `mapstructure:"output"`
	File             FileConfig `mapstructure:"file"`
	EnableCaller     bool       `mapstructure:"enablecaller"`
	EnableStacktrace bool       `mapstructure:"enablestacktrace"`
}

// FileConfig is lumberjack rotation, sizes in MB and ages in days
type FileConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig logs JSON to stdout. The file settings only apply once
// output is switched to file or both.
func DefaultConfig() *Config {
	return &Config{
		Name:             "metax",
		Level:            "info",
		Format:           FormatJSON,
		Output:           OutputConsole,
		EnableCaller:     true,
		EnableStacktrace: true,
		File: FileConfig{
			Filename:   "logs/metax.log",
			MaxSize:    50,
			MaxAge:     14,
			MaxBackups: 7,
			Compress:   true,
		},
	}
}

// ForCommand derives the config of a one-shot maintenance command: entries
// are tagged with name and go to a file of their own next to the service
// log, kept small since such commands log little.
func (c Config) ForCommand(name string) *Config {
	c.Name = name
	if c.File.Filename != "" {
		c.File.Filename = filepath.Join(filepath.Dir(c.File.Filename), name+".log")
	}
	c.File.MaxSize = 10
	c.File.MaxBackups = 3
	return &c
}

func (c *Config) writesConsole() bool {
	return c.Output == OutputConsole || c.Output == OutputBoth
}

func (c *Config) writesFile() bool {
	return c.Output == OutputFile || c.Output == OutputBoth
}

func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("logger: unknown level %q", c.Level)
	}

	switch c.Format {
	case FormatJSON, FormatConsole:
	default:
		return fmt.Errorf("logger: format must be %s or %s, got %q", FormatJSON, FormatConsole, c.Format)
	}

	switch c.Output {
	case OutputConsole, OutputFile, OutputBoth:
	default:
		return fmt.Errorf("logger: output must be %s, %s or %s, got %q", OutputConsole, OutputFile, OutputBoth, c.Output)
	}

	if !c.writesFile() {
		return nil
	}
	switch {
	case c.File.Filename == "":
		return fmt.Errorf("logger: file.filename is required for output %q", c.Output)
	case c.File.MaxSize <= 0:
		return fmt.Errorf("logger: file.maxsize must be positive, got %d", c.File.MaxSize)
	case c.File.MaxAge <= 0:
		return fmt.Errorf("logger: file.maxage must be positive, got %d", c.File.MaxAge)
	case c.File.MaxBackups < 0:
		return fmt.Errorf("logger: file.maxbackups must not be negative, got %d", c.File.MaxBackups)
	}
	return nil
}
