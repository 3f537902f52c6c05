package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmLog "github.com/charmbracelet/log"
)

const (
	envLogLevel  = "SENTIMENT_LOG_LEVEL"
	envLogFormat = "SENTIMENT_LOG_FORMAT"
)

// LoggingConfig controls process log output.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" yaml:"format,omitempty"`
	Level     string `json:"level,omitempty" yaml:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty" yaml:"add_source,omitempty"`
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Format: "text",
		Level:  "info",
	}
}

func (c *LoggingConfig) Merge(source *LoggingConfig) {
	if source.Format != "" {
		c.Format = source.Format
	}
	if source.Level != "" {
		c.Level = source.Level
	}
	if source.AddSource {
		c.AddSource = true
	}
}

// NewLogger builds the process logger on stderr. SENTIMENT_LOG_LEVEL and
// SENTIMENT_LOG_FORMAT override the configured values.
func NewLogger(cfg LoggingConfig) (*slog.Logger, error) {
	return NewLoggerWithWriter(cfg, os.Stderr)
}

// NewLoggerWithWriter builds a logger writing to w. The "text" format renders
// through charmbracelet/log; "json" uses slog's JSON handler.
func NewLoggerWithWriter(cfg LoggingConfig, w io.Writer) (*slog.Logger, error) {
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if value := strings.TrimSpace(os.Getenv(envLogFormat)); value != "" {
		format = strings.ToLower(value)
	}
	if format == "" {
		format = "text"
	}

	levelText := cfg.Level
	if value := strings.TrimSpace(os.Getenv(envLogLevel)); value != "" {
		levelText = value
	}
	level, err := ParseLevel(levelText)
	if err != nil {
		return nil, err
	}

	switch format {
	case "text":
		handler := charmLog.NewWithOptions(w, charmLog.Options{
			Level:           charmLevel(level),
			ReportTimestamp: true,
			ReportCaller:    cfg.AddSource,
			Formatter:       charmLog.TextFormatter,
		})
		return slog.New(handler), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: cfg.AddSource,
		})), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}

// ParseLevel maps a level name to its slog level. Empty means info.
func ParseLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", input)
	}
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}
