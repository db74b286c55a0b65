// Package plugin defines the parse-and-accumulate strategy interface
// (the only coupling between the engine and format-specific logic) and
// a fixed, compiled-in registry of built-ins keyed by name.
//
// The original implementation dynamically injects plugin code at
// runtime; per the port's design notes this is replaced with a
// registry of built-in plugins constructed by name, mirroring how the
// teacher's provider registry turns a stored provider_id into a
// concrete Provider via a constructor switch.
package plugin

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/anthropics/tailstatd/internal/zone"
)

// Level is a suggested log level for unparsable-line emissions.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelNone  Level = "none"
)

// Fields is whatever a plugin's ProcessLine extracted from a line; its
// shape is private to each plugin implementation.
type Fields any

// Options carries the `-o`/`--regex`-family constructor arguments: a
// comma-and-equals option string plus an optional regex override.
type Options struct {
	// Values holds parsed `-o key=value,key2=value2` pairs and bare
	// boolean flags (present with value "true").
	Values map[string]string
	// Regex overrides the plugin's default pattern when non-empty.
	Regex string
}

// Bool reports a boolean option, defaulting to false when absent.
func (o Options) Bool(key string) bool {
	v, ok := o.Values[key]
	return ok && (v == "" || v == "true" || v == "1")
}

// String reports a string option, or def when absent.
func (o Options) String(key, def string) string {
	if v, ok := o.Values[key]; ok {
		return v
	}
	return def
}

// Plugin is the interface every format-specific extractor implements.
// All methods run inside the engine's single event-loop handler for
// the event that triggered them (spec.md S5) and must not block.
type Plugin interface {
	// ParseErrorDefault suggests the log level for unparsable lines.
	ParseErrorDefault() Level

	// InitZone seeds counters/scratch the plugin relies on being
	// defined. Called once per zone after load or fresh creation, and
	// must be idempotent (the engine calls it unconditionally).
	InitZone(zoneName string, pub zone.Counters, priv zone.Scratch, current zone.Counters)

	// ProcessLine applies the plugin's pattern and semantic validation
	// to one line. ok is false when the line is unparsable.
	ProcessLine(line string) (fields Fields, ok bool)

	// ProcessData increments counters in pub and current for one
	// parsed line; it may read/write priv.
	ProcessData(fields Fields, pub zone.Counters, priv zone.Scratch, current zone.Counters)

	// ProcessWindow runs before the new empty windows[0] is inserted,
	// so it sees the just-completed window still at index 0 (spec.md
	// S9 open question: ordering is load-bearing).
	ProcessWindow(pub zone.Counters, priv zone.Scratch, windows []zone.Counters)

	// ProcessTimer handles a named timer firing; the return value
	// decides whether the timer re-arms.
	ProcessTimer(name string, pub zone.Counters, priv zone.Scratch, windows []zone.Counters) bool

	// StatsZone produces sorted reply lines for the `stats` command.
	// completed excludes the in-progress window (windows[1:] in the
	// engine's terms).
	StatsZone(zoneName string, pub zone.Counters, priv zone.Scratch, completed []zone.Counters) []string

	// DumpZone produces reply lines for the `dump` command, same
	// windows convention as StatsZone.
	DumpZone(zoneName string, pub zone.Counters, priv zone.Scratch, completed []zone.Counters) []string
}

// Factory constructs a Plugin from constructor options.
type Factory func(opts Options) (Plugin, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a named plugin factory to the built-in registry.
// Called from each built-in plugin package's init().
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New constructs the named plugin with the given options.
func New(name string, opts Options) (Plugin, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plugin: unknown plugin %q", name)
	}
	return f(opts)
}

// Known returns the names of every registered plugin, for usage text
// and configuration-error messages.
func Known() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// SortedLines renders counters as "key: value" lines sorted by key, the
// common shape both built-in plugins' StatsZone/DumpZone produce
// (spec.md S6: "lines must be sorted").
func SortedLines(c zone.Counters) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+formatNumber(c[k]))
	}
	return lines
}

// formatNumber renders a counter value the way the reference
// implementation's JSON numbers print: integral values without a
// decimal point, fractional values with their full float64
// representation (spec.md S9: "tests compare as strings").
func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
