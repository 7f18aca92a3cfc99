package debuglog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff // disables all logging
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "OFF":
		return LevelOff
	default:
		return LevelInfo
	}
}

var (
	mu      sync.Mutex
	current Level = LevelOff
	logger  *log.Logger
	logFile *os.File
)

// Setup configures logging with the given level and file path.
// An empty path defaults to ~/.skim/skim.log.
func Setup(level Level, path string) error {
	mu.Lock()
	defer mu.Unlock()

	current = level

	if logFile != nil {
		logFile.Close()
		logFile = nil
		logger = nil
	}

	if level == LevelOff {
		return nil
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".skim", "skim.log")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", path, err)
	}

	logFile = f
	logger = log.New(f, "skim ", log.LstdFlags|log.Lmicroseconds)
	return nil
}

// Close closes the log file if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	logger = nil
	return err
}

func logf(level Level, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if level < current || logger == nil {
		return
	}
	logger.Printf("[%s] %s", level.String(), fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

// FeedLogger prefixes every message with a feed identity, so per-feed
// refresh activity can be grepped out of a shared log file.
type FeedLogger struct {
	feedID string
}

// Feed returns a logger scoped to one feed.
func Feed(feedID string) *FeedLogger {
	short := feedID
	if len(short) > 12 {
		short = short[:12]
	}
	return &FeedLogger{feedID: short}
}

func (fl *FeedLogger) Debugf(format string, args ...any) {
	logf(LevelDebug, "feed=%s %s", fl.feedID, fmt.Sprintf(format, args...))
}

func (fl *FeedLogger) Infof(format string, args ...any) {
	logf(LevelInfo, "feed=%s %s", fl.feedID, fmt.Sprintf(format, args...))
}

func (fl *FeedLogger) Warnf(format string, args ...any) {
	logf(LevelWarn, "feed=%s %s", fl.feedID, fmt.Sprintf(format, args...))
}

func (fl *FeedLogger) Errorf(format string, args ...any) {
	logf(LevelError, "feed=%s %s", fl.feedID, fmt.Sprintf(format, args...))
}
