package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Environment variables to configure the log destination and verbosity.
const (
	envLogPath  = "PSE_OFFLINE_LOG"
	envLogLevel = "PSE_OFFLINE_LOG_LEVEL"
)

// Stderr is the path value that routes logs to the process stderr.
const Stderr = "-"

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

var (
	mu            sync.Mutex
	std           *log.Logger
	logFile       *os.File
	minLevel      = levelInfo
	isInitialized bool
)

// InitFromEnv initializes the logger using PSE_OFFLINE_LOG, falling back to
// fallbackPath. An empty fallback places "<name>.log" next to the executable.
func InitFromEnv(fallbackPath, name string) error {
	SetLevel(os.Getenv(envLogLevel))
	path := os.Getenv(envLogPath)
	if path == "" {
		path = fallbackPath
	}
	if path == "" {
		if exePath, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exePath), name+".log")
		} else {
			path = "./" + name + ".log"
		}
	}
	return Init(path)
}

// Init initializes the logger to write to the provided file path, or to stderr
// when path is Stderr. It creates parent directories if needed and opens the
// file in append mode.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if isInitialized {
		return nil
	}
	if path == Stderr {
		std = newStd(os.Stderr)
		isInitialized = true
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	std = newStd(f)
	isInitialized = true
	return nil
}

// SetOutput redirects logs to w. Used by tests and embedders.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std = newStd(w)
	isInitialized = true
}

// SetLevel sets the minimum level: debug, info, warn or error. Unknown values keep info.
func SetLevel(name string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		minLevel = levelDebug
	case "warn":
		minLevel = levelWarn
	case "error":
		minLevel = levelError
	default:
		minLevel = levelInfo
	}
}

// Close closes the underlying log file, if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		std = nil
		isInitialized = false
		return err
	}
	return nil
}

// Debugf logs verbose diagnostics.
func Debugf(format string, args ...any) { write(levelDebug, "DEBUG", format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) { write(levelInfo, "INFO", format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { write(levelWarn, "WARN", format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { write(levelError, "ERROR", format, args...) }

func write(lvl level, tag string, format string, args ...any) {
	mu.Lock()
	if lvl < minLevel {
		mu.Unlock()
		return
	}
	if std == nil {
		// Nothing configured yet; stderr keeps early messages visible.
		std = newStd(os.Stderr)
	}
	l := std
	mu.Unlock()
	l.Printf("[%s] %s", tag, fmt.Sprintf(format, args...))
}

func newStd(w io.Writer) *log.Logger {
	return log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds)
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
