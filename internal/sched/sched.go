// Package sched drives the engine's three periodic heartbeats
// (expand, window slide, persist) plus an arbitrary number of
// wall-clock-aligned named timers (spec.md S4.5). All timer and ticker
// channels fan into one Fire channel the engine's single event loop
// drains, so the scheduler itself never touches zone state.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Unit is a named timer's wall-clock truncation unit (spec.md S3).
type Unit string

const (
	UnitSecond Unit = "second"
	UnitMinute Unit = "minute"
	UnitHour   Unit = "hour"
	UnitDay    Unit = "day"
	UnitWeek   Unit = "week"
)

// TimerSpec is one configured named timer: (zone, name, period, unit).
type TimerSpec struct {
	Zone   string
	Name   string
	Period time.Duration
	Unit   Unit
}

// FireKind distinguishes which heartbeat or named timer fired.
type FireKind int

const (
	FireExpand FireKind = iota
	FireWindow
	FireSave
	FireTimer
)

// Fire is one scheduled event delivered to the engine.
type Fire struct {
	Kind  FireKind
	Timer TimerSpec
}

var (
	dailySchedule, _  = cron.ParseStandard("0 0 * * *")
	weeklySchedule, _ = cron.ParseStandard("0 0 * * 0")
)

// Scheduler owns the expand/window/save tickers and every armed named
// timer, and fans their fires into a single channel.
type Scheduler struct {
	ExpandPeriod time.Duration
	WindowPeriod time.Duration
	SavePeriod   time.Duration
	Timers       []TimerSpec

	fires chan Fire

	mu      sync.Mutex
	pending map[string]*time.Timer // keyed by zone+":"+name
}

// New constructs a Scheduler. Heartbeat periods of zero fall back to
// the spec.md S6 defaults (60s expand, window-size for window slides,
// 10s save).
func New(expand, window, save time.Duration, timers []TimerSpec) *Scheduler {
	if expand <= 0 {
		expand = 60 * time.Second
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	if save <= 0 {
		save = 10 * time.Second
	}
	return &Scheduler{
		ExpandPeriod: expand,
		WindowPeriod: window,
		SavePeriod:   save,
		Timers:       timers,
		fires:        make(chan Fire, 16),
		pending:      make(map[string]*time.Timer),
	}
}

// Fires returns the channel the engine drains.
func (s *Scheduler) Fires() <-chan Fire {
	return s.fires
}

// Run starts the three heartbeat tickers and arms every named timer,
// blocking until ctx is cancelled, at which point all timers are
// stopped (spec.md S4.5: SIGINT/SIGTERM "cancel all timers").
func (s *Scheduler) Run(ctx context.Context) {
	expandT := time.NewTicker(s.ExpandPeriod)
	windowT := time.NewTicker(s.WindowPeriod)
	saveT := time.NewTicker(s.SavePeriod)
	defer expandT.Stop()
	defer windowT.Stop()
	defer saveT.Stop()

	for _, spec := range s.Timers {
		s.arm(ctx, spec)
	}

	for {
		select {
		case <-ctx.Done():
			s.cancelAll()
			return
		case <-expandT.C:
			s.send(Fire{Kind: FireExpand})
		case <-windowT.C:
			s.send(Fire{Kind: FireWindow})
		case <-saveT.C:
			s.send(Fire{Kind: FireSave})
		}
	}
}

// TriggerExpand injects an immediate expand fire outside the regular
// heartbeat cadence (spec.md S4.5's SIGHUP behavior: re-expand now
// without disturbing the scheduler's own timing).
func (s *Scheduler) TriggerExpand() {
	s.send(Fire{Kind: FireExpand})
}

// Rearm re-arms a named timer after its handler has run and requested
// re-arming (spec.md S4.5: "re-arms only if the plugin returned
// truthy"). The engine calls this from inside its event loop after
// dispatching plugin.ProcessTimer.
func (s *Scheduler) Rearm(ctx context.Context, spec TimerSpec) {
	s.arm(ctx, spec)
}

func (s *Scheduler) arm(ctx context.Context, spec TimerSpec) {
	next := NextFire(time.Now(), spec.Period, spec.Unit)
	delay := time.Until(next)
	if delay < 0 {
		delay = 0
	}

	key := spec.Zone + ":" + spec.Name
	t := time.AfterFunc(delay, func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.send(Fire{Kind: FireTimer, Timer: spec})
	})

	s.mu.Lock()
	s.pending[key] = t
	s.mu.Unlock()
}

func (s *Scheduler) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.pending {
		t.Stop()
	}
	s.pending = make(map[string]*time.Timer)
}

func (s *Scheduler) send(f Fire) {
	select {
	case s.fires <- f:
	default:
		// A slow engine drains fires as fast as it can process events;
		// dropping a heartbeat tick here would silently corrupt the
		// window/persist cadence, so block instead. This can only
		// delay the scheduler goroutine, never the event loop.
		s.fires <- f
	}
}

// NextFire computes period's next fire time from now, truncated down
// to unit's wall-clock boundary, per spec.md S3: "now + period, then
// truncated downward to the unit boundary."
func NextFire(now time.Time, period time.Duration, unit Unit) time.Time {
	candidate := now.Add(period)
	switch unit {
	case UnitSecond:
		return candidate.Truncate(time.Second)
	case UnitMinute:
		return candidate.Truncate(time.Minute)
	case UnitHour:
		loc := candidate.Location()
		return time.Date(candidate.Year(), candidate.Month(), candidate.Day(), candidate.Hour(), 0, 0, 0, loc)
	case UnitDay:
		// No local day is longer than 25h, even across a DST shift, so
		// the earliest midnight after (candidate - 25h) is at or before
		// candidate; step forward to the latest midnight that does not
		// pass candidate, which is candidate's own local midnight.
		b := dailySchedule.Next(candidate.Add(-25 * time.Hour))
		for n := dailySchedule.Next(b); !n.After(candidate); n = dailySchedule.Next(n) {
			b = n
		}
		return b
	case UnitWeek:
		b := weeklySchedule.Next(candidate.Add(-8 * 24 * time.Hour))
		for n := weeklySchedule.Next(b); !n.After(candidate); n = weeklySchedule.Next(n) {
			b = n
		}
		return b
	default:
		return candidate
	}
}
