// Package logging provides config-driven, categorized logging for the core.
// Each subsystem (store, scanner, provider, artifact, dependency,
// orchestrate, rpc) gets its own logger; logging is a silent no-op until
// Initialize is called (with the minimum level to emit), so library
// consumers never pay for logging they didn't ask for.
package logging

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryStore       Category = "store"
	CategoryScanner     Category = "scanner"
	CategoryProvider    Category = "provider"
	CategoryArtifact    Category = "artifact"
	CategoryDependency  Category = "dependency"
	CategoryOrchestrate Category = "orchestrate"
	CategoryRPC         Category = "rpc"
)

// Level is a logging verbosity threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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
		return "unknown"
	}
}

type state struct {
	mu         sync.RWMutex
	enabled    bool
	level      Level
	categories map[Category]bool // nil/empty means all enabled
	out        *log.Logger
}

var global = &state{out: log.New(os.Stderr, "", log.LstdFlags)}

// Initialize turns on logging at the given level. categories, if non-empty,
// restricts output to the listed categories; an empty set enables all of
// them. Calling Initialize is optional — with no call, every Logger is a
// silent no-op, so library consumers get a "no config = production mode"
// default.
func Initialize(level Level, categories ...Category) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.enabled = true
	global.level = level
	if len(categories) > 0 {
		global.categories = make(map[Category]bool, len(categories))
		for _, c := range categories {
			global.categories[c] = true
		}
	} else {
		global.categories = nil
	}
}

// Disable silences all logging. Intended for tests.
func Disable() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.enabled = false
}

func (s *state) categoryEnabled(c Category) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.enabled {
		return false
	}
	if len(s.categories) == 0 {
		return true
	}
	return s.categories[c]
}

func (s *state) levelEnabled(l Level) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled && l >= s.level
}

// Logger writes leveled, categorized log lines.
type Logger struct {
	category Category
}

// Get returns the logger for category. Always safe to call; returns a
// no-op logger until Initialize has been called.
func Get(category Category) *Logger {
	return &Logger{category: category}
}

func (l *Logger) log(level Level, format string, args ...any) {
	if !global.categoryEnabled(l.category) || !global.levelEnabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	global.out.Printf("[%s] [%s] %s", level, l.category, msg)
}

func (l *Logger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)   { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)   { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any)  { l.log(LevelError, format, args...) }

// Store, Scanner, Provider, Artifact, Dependency, Orchestrate, RPC are
// convenience package-level loggers for `logging.Store.Warn(...)`-style
// call sites.
var (
	Store       = Get(CategoryStore)
	Scanner     = Get(CategoryScanner)
	Provider    = Get(CategoryProvider)
	Artifact    = Get(CategoryArtifact)
	Dependency  = Get(CategoryDependency)
	Orchestrate = Get(CategoryOrchestrate)
	RPC         = Get(CategoryRPC)
)
