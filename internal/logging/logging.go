// Package logging builds the process logger: human-readable lines on stderr
// teed with the same lines appended to a log file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timeLayout = "2006-01-02T15:04:05.000000"

type Config struct {
	Level string `yaml:"level" koanf:"level"`
	// File is appended to. Empty disables the file log.
	File string `yaml:"file" koanf:"file"`
	// JSON switches the file log to JSON lines.
	JSON bool `yaml:"json" koanf:"json"`
}

func DefaultConfig() Config {
	return Config{Level: "info", File: DefaultPath()}
}

// DefaultPath is ~/.local/share/yt-fs/yt-fs.log.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "yt-fs", "yt-fs.log")
}

func ParseLevel(s string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return lvl, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// New returns the logger and a function that flushes and closes the file.
func New(cfg Config) (*zap.Logger, func(), error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), lvl),
	}

	closeFile := func() {}
	if cfg.File != "" {
		f, err := openFile(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		var fileEnc zapcore.Encoder
		if cfg.JSON {
			fileEnc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		} else {
			fileEnc = zapcore.NewConsoleEncoder(enc)
		}
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(f), lvl))
		closeFile = func() { _ = f.Close() }
	}

	log := zap.New(zapcore.NewTee(cores...))
	return log, func() {
		_ = log.Sync()
		closeFile()
	}, nil
}

// openFile opens path for appending and writes the startup marker.
func openFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	fmt.Fprintf(f, "=== yt-fs started at %s ===\n", time.Now().Format("2006-01-02 15:04:05.000000"))
	return f, nil
}

// Script logs a line that came from page script, at the level the script
// asked for. Unknown levels are logged at info.
func Script(log *zap.Logger, level, msg string) {
	switch strings.ToLower(level) {
	case "error":
		log.Error(msg)
	case "warn", "warning":
		log.Warn(msg)
	case "debug":
		log.Debug(msg)
	default:
		log.Info(msg)
	}
}
