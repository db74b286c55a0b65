// Package engine implements the single-writer event loop that binds
// watchers, the scheduler, and the query server to zone state (spec.md
// S4.8/S5). Engine.Run is the only goroutine that ever touches a
// zone.State's fields directly; everything else communicates through
// channels.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/anthropics/tailstatd/internal/expand"
	"github.com/anthropics/tailstatd/internal/persist"
	"github.com/anthropics/tailstatd/internal/plugin"
	"github.com/anthropics/tailstatd/internal/sched"
	"github.com/anthropics/tailstatd/internal/server"
	"github.com/anthropics/tailstatd/internal/watch"
	"github.com/anthropics/tailstatd/internal/zone"
	"github.com/rs/zerolog"
)

// Config carries everything the engine needs to start that isn't
// already owned by one of its collaborators.
type Config struct {
	Zones        []expand.ZoneConfig
	ChangeDir    string
	Multiple     bool
	WindowsNum   int
	DatabasePath string
	Basename     bool

	// ParseErrorLevel overrides the plugin's ParseErrorDefault for
	// unparsable-line logging (spec.md S6 `--parse-error`, S7: "logged
	// at the configured parse-error level ... or suppressed entirely if
	// that level is none"). Nil means no override was configured.
	ParseErrorLevel *zerolog.Level
}

// Engine owns the zone store, the watcher set, and the command/event
// dispatch loop.
type Engine struct {
	cfg    Config
	plugin plugin.Plugin
	store  *zone.Store
	sched  *sched.Scheduler
	srv    *server.Server
	log    zerolog.Logger

	watchEvents chan watch.Event
	watchers    map[string]*watch.Watcher // keyed by canonical path
	byID        map[string]*watch.Watcher // keyed by watcher ID

	parseErrorsSeen map[string]int // watcher path -> count since last window slide
}

// parseErrorLogCap bounds how many "unparsable line" records one
// watcher emits per window, per SPEC_FULL.md's rate-limited
// parse-error logging supplement: a malformed upstream format must not
// flood the log.
const parseErrorLogCap = 20

// New constructs an Engine. It does not yet start any goroutines.
func New(cfg Config, p plugin.Plugin, sc *sched.Scheduler, srv *server.Server, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:             cfg,
		plugin:          p,
		store:           zone.NewStore(),
		sched:           sc,
		srv:             srv,
		log:             log,
		watchEvents:     make(chan watch.Event, 256),
		watchers:        make(map[string]*watch.Watcher),
		byID:            make(map[string]*watch.Watcher),
		parseErrorsSeen: make(map[string]int),
	}
}

// Bootstrap loads any persisted snapshot, marks every configured zone
// active, and runs the first wildcard expansion. It must run before
// Run.
func (e *Engine) Bootstrap() error {
	snapshot, err := persist.Load(e.cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("engine: bootstrap: %w", err)
	}
	if snapshot != nil {
		e.store.Load(snapshot)
	}

	for _, z := range e.cfg.Zones {
		st := e.store.MarkActive(z.Zone)
		e.plugin.InitZone(z.Zone, st.Public, st.Private, st.Windows[0])
	}

	return e.expand()
}

// Run drains watcher events, scheduler fires, and server commands
// until ctx is cancelled, at which point it persists a final snapshot
// and tears down every watcher and the listener.
func (e *Engine) Run(ctx context.Context) {
	defer e.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.watchEvents:
			e.handleWatchEvent(ev)
		case f := <-e.sched.Fires():
			e.handleFire(ctx, f)
		case cmd := <-e.srv.Commands():
			e.handleCommand(cmd)
		}
	}
}

func (e *Engine) shutdown() {
	for _, w := range e.watchers {
		w.Stop()
	}
	e.srv.Close()
	if err := e.dump(); err != nil {
		e.log.Error().Err(err).Msg("final persist failed")
	}
}

func (e *Engine) dump() error {
	return persist.Dump(e.cfg.DatabasePath, e.store.Snapshot())
}

// handleWatchEvent routes one line to every zone subscribed to the
// originating watcher, in subscription order (spec.md S4.8), or
// handles a rotation/error notice.
func (e *Engine) handleWatchEvent(ev watch.Event) {
	w, ok := e.byID[ev.WatcherID]
	if !ok {
		return
	}

	switch ev.Kind {
	case watch.EventRotated:
		e.log.Info().Str("path", w.Path).Uint64("rotations", w.Rotations()).Msg("rolled over")
	case watch.EventError:
		e.log.Error().Err(ev.Err).Str("path", w.Path).Msg("watch error")
	case watch.EventLine:
		e.dispatchLine(w, ev.Line)
	}
}

func (e *Engine) dispatchLine(w *watch.Watcher, line string) {
	fields, ok := e.plugin.ProcessLine(line)
	if !ok {
		e.logParseError(w)
		return
	}

	for _, zoneName := range w.Zones() {
		st, ok := e.store.Get(zoneName)
		if !ok {
			continue
		}
		e.plugin.ProcessData(fields, st.Public, st.Private, st.Windows[0])
	}
}

// logParseError emits one "unparsable line" record per watcher up to
// parseErrorLogCap per window, then a single "suppressed" summary;
// further unparsable lines from the same watcher stay silent until the
// next window slide resets the count. The level is the operator's
// configured --parse-error override when present, else the plugin's
// own ParseErrorDefault (spec.md S7); either way, "none" suppresses the
// record entirely.
func (e *Engine) logParseError(w *watch.Watcher) {
	lvl := e.parseErrorLevel()
	if lvl == zerolog.Disabled {
		return
	}

	e.parseErrorsSeen[w.Path]++
	n := e.parseErrorsSeen[w.Path]
	switch {
	case n <= parseErrorLogCap:
		e.log.WithLevel(lvl).Str("path", w.Path).Msg("unparsable line")
	case n == parseErrorLogCap+1:
		e.log.WithLevel(lvl).Str("path", w.Path).Msg("suppressing further parse errors this window")
	}
}

func (e *Engine) parseErrorLevel() zerolog.Level {
	if e.cfg.ParseErrorLevel != nil {
		return *e.cfg.ParseErrorLevel
	}
	return zerologLevel(e.plugin.ParseErrorDefault())
}

// handleFire dispatches one scheduler event: expand, window slide,
// save, or a named timer.
func (e *Engine) handleFire(ctx context.Context, f sched.Fire) {
	switch f.Kind {
	case sched.FireExpand:
		if err := e.expand(); err != nil {
			e.log.Error().Err(err).Msg("wildcard expansion failed")
		}
	case sched.FireWindow:
		e.slideAllWindows()
	case sched.FireSave:
		if err := e.dump(); err != nil {
			e.log.Error().Err(err).Msg("periodic persist failed")
		}
	case sched.FireTimer:
		e.handleTimer(ctx, f.Timer)
	}
}

// slideAllWindows calls process_window for every zone while the
// just-completed window is still at index 0, then prepends the new
// current window — spec.md S9's open question, resolved by calling the
// plugin before zone.Store.SlideWindow performs its prepend (the ring
// helper itself always prepends first, so the engine must not use it
// for the "process, then slide" half of this operation).
func (e *Engine) slideAllWindows() {
	for _, name := range append(e.store.Active(), e.store.Inactive()...) {
		st, ok := e.store.Get(name)
		if !ok {
			continue
		}
		e.plugin.ProcessWindow(st.Public, st.Private, st.Windows)
		if err := e.store.SlideWindow(name, e.cfg.WindowsNum); err != nil {
			e.log.Error().Err(err).Str("zone", name).Msg("window slide failed")
		}
	}
	for path := range e.parseErrorsSeen {
		delete(e.parseErrorsSeen, path)
	}
}

func (e *Engine) handleTimer(ctx context.Context, spec sched.TimerSpec) {
	st, ok := e.store.Get(spec.Zone)
	if !ok {
		return
	}
	rearm := e.plugin.ProcessTimer(spec.Name, st.Public, st.Private, st.Windows)
	if rearm {
		e.sched.Rearm(ctx, spec)
	}
}

// expand re-evaluates every zone's wildcards and reconciles the
// watcher set against the result (spec.md S4.4).
func (e *Engine) expand() error {
	matches, err := expand.Resolve(e.cfg.Zones, e.cfg.ChangeDir)
	if err != nil {
		return err
	}

	existing := make(map[string][]string, len(e.watchers))
	for path, w := range e.watchers {
		existing[path] = w.Zones()
	}

	plan := expand.Reconcile(matches, e.cfg.Multiple, existing)

	for _, m := range plan.New {
		w, err := watch.New(m.Path, e.watchEvents)
		if err != nil {
			e.log.Error().Err(err).Str("path", m.Path).Msg("failed to watch new file")
			continue
		}
		w.Subscribe(m.Zone)
		e.watchers[m.Path] = w
		e.byID[w.ID] = w
		go w.Run()
	}
	for _, m := range plan.ExtraSubscriptions {
		if w, ok := e.watchers[m.Path]; ok {
			w.Subscribe(m.Zone)
		}
	}
	for _, path := range plan.Remove {
		if w, ok := e.watchers[path]; ok {
			w.Stop()
			delete(e.watchers, path)
			delete(e.byID, w.ID)
		}
	}

	return nil
}

func zerologLevel(l plugin.Level) zerolog.Level {
	switch l {
	case plugin.LevelDebug:
		return zerolog.DebugLevel
	case plugin.LevelWarn:
		return zerolog.WarnLevel
	case plugin.LevelError:
		return zerolog.ErrorLevel
	case plugin.LevelNone:
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// handleCommand answers one client command (spec.md S4.6).
func (e *Engine) handleCommand(cmd server.Command) {
	switch cmd.Verb {
	case server.VerbZones:
		cmd.Reply <- server.Reply{Lines: e.replyZones()}
	case server.VerbGlobs:
		cmd.Reply <- server.Reply{Lines: e.replyGlobs(cmd.Arg)}
	case server.VerbFiles:
		cmd.Reply <- server.Reply{Lines: e.replyFiles(cmd.Arg)}
	case server.VerbDump:
		cmd.Reply <- server.Reply{Lines: e.replyDump(cmd.Arg)}
	case server.VerbStats:
		cmd.Reply <- server.Reply{Lines: e.replyStats(cmd.Arg)}
	case server.VerbWipe:
		cmd.Reply <- server.Reply{Lines: e.replyWipe(cmd.Arg)}
	case server.VerbQuit:
		cmd.Reply <- server.Reply{Close: true}
	default:
		cmd.Reply <- server.Reply{Lines: []string{"error"}}
	}
}

func (e *Engine) replyZones() []string {
	var lines []string
	for _, z := range e.store.Active() {
		lines = append(lines, "a:"+z)
	}
	for _, z := range e.store.Inactive() {
		lines = append(lines, "i:"+z)
	}
	return lines
}

func (e *Engine) replyGlobs(zoneName string) []string {
	for _, z := range e.cfg.Zones {
		if z.Zone == zoneName {
			wildcards := append([]string(nil), z.Wildcards...)
			sort.Strings(wildcards)
			return wildcards
		}
	}
	return []string{"no such active zone"}
}

func (e *Engine) replyFiles(zoneName string) []string {
	found := false
	for _, z := range e.cfg.Zones {
		if z.Zone == zoneName {
			found = true
			break
		}
	}
	if !found {
		return []string{"no such active zone"}
	}

	type row struct{ path, line string }
	var rows []row
	for path, w := range e.watchers {
		for _, z := range w.Zones() {
			if z != zoneName {
				continue
			}
			display := path
			if e.cfg.Basename {
				display = basename(path)
			}
			rows = append(rows, row{path: path, line: fmt.Sprintf("%d:%d:%s", w.Offset(), w.Size(), display)})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].path < rows[j].path })

	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = r.line
	}
	return lines
}

func (e *Engine) replyDump(zoneName string) []string {
	st, ok := e.store.Get(zoneName)
	if !ok {
		return []string{"no such zone"}
	}
	return e.plugin.DumpZone(zoneName, st.Public, st.Private, st.Windows[1:])
}

func (e *Engine) replyStats(zoneName string) []string {
	st, ok := e.store.Get(zoneName)
	if !ok {
		return []string{"no such zone"}
	}
	return e.plugin.StatsZone(zoneName, st.Public, st.Private, st.Windows[1:])
}

func (e *Engine) replyWipe(target string) []string {
	if target == "*" {
		removed := e.store.WipeAllInactive()
		if len(removed) == 0 {
			return []string{"no such inactive zone"}
		}
		if err := e.dump(); err != nil {
			e.log.Error().Err(err).Msg("persist after wipe failed")
		}
		return []string{"ok"}
	}

	removed, existed := e.store.Wipe(target)
	switch {
	case !existed:
		return []string{"no such inactive zone"}
	case !removed:
		return []string{"zone is active"}
	}
	if err := e.dump(); err != nil {
		e.log.Error().Err(err).Msg("persist after wipe failed")
	}
	return []string{"ok"}
}

func basename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
