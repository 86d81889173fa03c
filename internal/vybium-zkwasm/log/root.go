package log

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	gethlog "github.com/ethereum/go-ethereum/log"
)

// Modules
const (
	SliceModule   = "slice"
	CircuitModule = "circuit"
	ImageModule   = "image"
	BackendModule = "backend"
	CLIModule     = "cli"
)

var root atomic.Value

func init() {
	root.Store(NewLogger(gethlog.DiscardHandler()))
}

// InitLogger installs a terminal logger on stderr at the given level.
func InitLogger(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	SetDefault(NewTerminalLogger(os.Stderr, lvl))
	return nil
}

// SetDefault sets the default global logger
func SetDefault(l Logger) {
	root.Store(l)
	if lg, ok := l.(*logger); ok {
		slog.SetDefault(lg.inner)
	}
}

// Root returns the root logger
func Root() Logger {
	return root.Load().(Logger)
}

var (
	modulesMu sync.RWMutex
	// modules not listed are enabled
	moduleEnabled = map[string]bool{}
)

// EnableModule enables trace and debug output for a module.
func EnableModule(module string) {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	moduleEnabled[module] = true
}

// DisableModule silences trace and debug output for a module.
func DisableModule(module string) {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	moduleEnabled[module] = false
}

func isModuleEnabled(module string) bool {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	enabled, ok := moduleEnabled[module]
	return !ok || enabled
}

// Trace and Debug are gated per module; the other levels always pass.

func Trace(module string, msg string, ctx ...any) {
	if !isModuleEnabled(module) {
		return
	}
	Root().Write(LevelTrace, module, msg, ctx...)
}

func Debug(module string, msg string, ctx ...any) {
	if !isModuleEnabled(module) {
		return
	}
	Root().Write(slog.LevelDebug, module, msg, ctx...)
}

func Info(module string, msg string, ctx ...any) {
	Root().Write(slog.LevelInfo, module, msg, ctx...)
}

func Warn(module string, msg string, ctx ...any) {
	Root().Write(slog.LevelWarn, module, msg, ctx...)
}

func Error(module string, msg string, ctx ...any) {
	Root().Write(slog.LevelError, module, msg, ctx...)
}
