package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

// Config controls where and how log lines are written.
type Config struct {
	Level      string         `mapstructure:"level"       yaml:"level"`
	File       string         `mapstructure:"file"        yaml:"file"`
	JSON       bool           `mapstructure:"json"        yaml:"json"`
	NoTerminal bool           `mapstructure:"no_terminal" yaml:"no_terminal"`
	Rotation   RotationConfig `mapstructure:"rotation"    yaml:"rotation"`
}

// RotationConfig configures the rotated log file.
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"    yaml:"max_size"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"     yaml:"max_age"`
	Compress   bool `mapstructure:"compress"    yaml:"compress"`
}

type logEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

var (
	currentLevel LogLevel
	levelOnce    sync.Once

	mu       sync.RWMutex
	jsonMode bool
	logger   = log.New(os.Stderr, "", log.LstdFlags)
	rotator  *lumberjack.Logger
)

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		// Check DEBUG environment variable first
		if debug := os.Getenv("DEBUG"); debug != "" {
			switch strings.ToLower(debug) {
			case "1", "true", "yes", "on":
				currentLevel = LevelDebug
				return
			}
		}

		currentLevel = ParseLevel(os.Getenv("LOG_LEVEL"))
	})
}

// ParseLevel converts a level name to a LogLevel. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Configure applies cfg. An empty Level keeps the environment-derived level.
func Configure(cfg Config) error {
	initLevel()

	mu.Lock()
	defer mu.Unlock()

	if cfg.Level != "" {
		currentLevel = ParseLevel(cfg.Level)
	}
	jsonMode = cfg.JSON

	var writers []io.Writer
	if !cfg.NoTerminal {
		writers = append(writers, os.Stderr)
	}

	if rotator != nil {
		if err := rotator.Close(); err != nil {
			return fmt.Errorf("failed to close previous log file: %w", err)
		}
		rotator = nil
	}

	if cfg.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.Rotation.MaxSize,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAge,
			Compress:   cfg.Rotation.Compress,
		}
		writers = append(writers, rotator)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	flags := log.LstdFlags
	if jsonMode {
		flags = 0
	}
	logger = log.New(io.MultiWriter(writers...), "", flags)

	return nil
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func output(level LogLevel, label, format string, args ...interface{}) {
	if GetLevel() > level {
		return
	}

	mu.RLock()
	defer mu.RUnlock()

	msg := fmt.Sprintf(format, args...)
	if jsonMode {
		line, _ := json.Marshal(logEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     strings.ToLower(label),
			Message:   msg,
		})
		logger.Print(string(line))
		return
	}
	logger.Printf("[%s] %s", label, msg)
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	output(LevelDebug, "DEBUG", format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	output(LevelInfo, "INFO", format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	output(LevelWarn, "WARN", format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	output(LevelError, "ERROR", format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	output(LevelError, "FATAL", format, args...)
	os.Exit(1)
}

// Printf writes a message regardless of level
func Printf(format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Printf(format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
