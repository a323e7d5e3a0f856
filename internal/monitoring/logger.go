package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mea-sync/internal/timeutil"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Level is a logging threshold.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARNING", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return fmt.Sprintf("Level(%d)", int32(l))
	}
	return levelNames[l]
}

var threshold atomic.Int32

func init() {
	threshold.Store(int32(LevelInfo))
}

// SetLevel drops messages below l.
func SetLevel(l Level) { threshold.Store(int32(l)) }

// CurrentLevel returns the active threshold.
func CurrentLevel() Level { return Level(threshold.Load()) }

// ParseLevel accepts the level names used in config files, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func logAt(l Level, format string, v ...interface{}) {
	if l < CurrentLevel() {
		return
	}
	Logf("["+l.String()+"] "+format, v...)
}

// Debugf logs at debug level.
func Debugf(format string, v ...interface{}) { logAt(LevelDebug, format, v...) }

// Infof logs at info level.
func Infof(format string, v ...interface{}) { logAt(LevelInfo, format, v...) }

// Warnf logs at warning level.
func Warnf(format string, v ...interface{}) { logAt(LevelWarn, format, v...) }

// Errorf logs at error level.
func Errorf(format string, v ...interface{}) { logAt(LevelError, format, v...) }

// LogFileName returns the run log file name for a start time.
func LogFileName(start time.Time) string {
	return "sync_log_" + timeutil.Stamp(start) + ".log"
}

// Setup routes Logf to stderr and to a new log file in dir, and applies the
// level. The returned closer flushes the file; the caller owns it.
func Setup(dir string, level string, start time.Time) (io.Closer, string, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create log dir: %w", err)
	}
	path := filepath.Join(dir, LogFileName(start))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open log file: %w", err)
	}

	logger := log.New(io.MultiWriter(os.Stderr, f), "", log.LstdFlags)
	SetLogger(logger.Printf)
	SetLevel(l)
	return f, path, nil
}
