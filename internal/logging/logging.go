package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sreq-inc/solo/internal/errdef"
)

const (
	OutputStderr = "stderr"
	OutputFile   = "file"
	OutputBoth   = "both"
	OutputNone   = "none"
)

// Config controls the process logger. Stdout is left alone so command output
// can be piped.
type Config struct {
	Level      string `toml:"level"       json:"level,omitempty"`  // debug, info, warn, error
	Format     string `toml:"format"      json:"format,omitempty"` // json, console
	Output     string `toml:"output"      json:"output,omitempty"` // stderr, file, both, none
	FilePath   string `toml:"file"        json:"file,omitempty"`
	MaxSize    int    `toml:"max_size"    json:"max_size,omitempty"` // MB
	MaxBackups int    `toml:"max_backups" json:"max_backups,omitempty"`
	MaxAge     int    `toml:"max_age"     json:"max_age,omitempty"` // days
}

func DefaultConfig() Config {
	return Config{
		Level:      "warn",
		Format:     "console",
		Output:     OutputStderr,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

func ParseLevel(raw string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, errdef.New(errdef.CodeConfig, "unknown log level %q", raw)
	}
}

// New builds a logger for cfg. stderr may be nil to mean os.Stderr.
func New(cfg Config, stderr io.Writer) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	output := strings.ToLower(strings.TrimSpace(cfg.Output))
	var cores []zapcore.Core
	switch output {
	case "", OutputStderr, OutputBoth:
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(stderr), level))
	case OutputFile, OutputNone:
	default:
		return nil, errdef.New(errdef.CodeConfig, "unknown log output %q", cfg.Output)
	}
	if output == OutputFile || output == OutputBoth {
		if strings.TrimSpace(cfg.FilePath) == "" {
			return nil, errdef.New(errdef.CodeConfig, "log output %q needs a file path", output)
		}
		writer := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
