package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextFireDailyAlignsToMidnight(t *testing.T) {
	now := time.Date(2026, 7, 29, 15, 30, 0, 0, time.Local)
	next := NextFire(now, 24*time.Hour, UnitDay)

	require.Equal(t, 0, next.Hour())
	require.Equal(t, 0, next.Minute())
	require.Equal(t, 0, next.Second())
	require.True(t, next.After(now) || next.Equal(now))
}

func TestNextFireSecondTruncatesDown(t *testing.T) {
	now := time.Date(2026, 7, 29, 15, 30, 0, 500_000_000, time.UTC)
	next := NextFire(now, time.Second, UnitSecond)
	require.Equal(t, 0, next.Nanosecond())
}

func TestNextFireHourTruncatesDown(t *testing.T) {
	now := time.Date(2026, 7, 29, 15, 30, 45, 0, time.Local)
	next := NextFire(now, time.Hour, UnitHour)
	require.Equal(t, 16, next.Hour())
	require.Equal(t, 0, next.Minute())
	require.Equal(t, 0, next.Second())
}

func TestSchedulerFiresHeartbeats(t *testing.T) {
	s := New(20*time.Millisecond, 25*time.Millisecond, 30*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	seen := map[FireKind]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case f := <-s.Fires():
			seen[f.Kind] = true
		case <-deadline:
			t.Fatalf("timed out, saw kinds: %v", seen)
		}
	}
}

func TestTriggerExpandInjectsImmediateFire(t *testing.T) {
	s := New(time.Hour, time.Hour, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.TriggerExpand()
	select {
	case f := <-s.Fires():
		require.Equal(t, FireExpand, f.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("triggered expand never fired")
	}
}

func TestSchedulerArmsNamedTimer(t *testing.T) {
	spec := TimerSpec{Zone: "a", Name: "quick", Period: 10 * time.Millisecond, Unit: UnitSecond}
	s := New(time.Hour, time.Hour, time.Hour, []TimerSpec{spec})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case f := <-s.Fires():
		require.Equal(t, FireTimer, f.Kind)
		require.Equal(t, "quick", f.Timer.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("named timer never fired")
	}
}
