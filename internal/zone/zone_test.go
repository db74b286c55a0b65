package zone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlideWindowRingBound(t *testing.T) {
	s := NewStore()
	s.MarkActive("a")

	for i := 0; i < 100; i++ {
		require.NoError(t, s.SlideWindow("a", 5))
		st, ok := s.Get("a")
		require.True(t, ok)
		require.GreaterOrEqual(t, len(st.Windows), 1)
		require.LessOrEqual(t, len(st.Windows), 5)
	}
}

func TestWipeOnlyRemovesInactive(t *testing.T) {
	s := NewStore()
	s.MarkActive("active-zone")
	s.Ensure("inactive-zone")

	removed, existed := s.Wipe("active-zone")
	require.True(t, existed)
	require.False(t, removed)

	removed, existed = s.Wipe("inactive-zone")
	require.True(t, existed)
	require.True(t, removed)

	_, ok := s.Get("inactive-zone")
	require.False(t, ok)
}

func TestActiveInactiveOrder(t *testing.T) {
	s := NewStore()
	s.MarkActive("b")
	s.MarkActive("a")
	s.Ensure("zzz-inactive")

	require.Equal(t, []string{"b", "a"}, s.Active())
	require.Equal(t, []string{"zzz-inactive"}, s.Inactive())
}

func TestLoadMarksSnapshotZonesInactive(t *testing.T) {
	s := NewStore()
	snap := map[string]*State{
		"old": {Public: Counters{"http_request": 42}},
	}
	s.Load(snap)

	st, ok := s.Get("old")
	require.True(t, ok)
	require.False(t, st.Active)
	require.Equal(t, float64(42), st.Public.Get("http_request"))
	require.Len(t, st.Windows, 1)
}

func TestLoadOrdersInactiveZonesDeterministically(t *testing.T) {
	snap := map[string]*State{
		"zebra": {Public: Counters{}},
		"alpha": {Public: Counters{}},
		"mike":  {Public: Counters{}},
	}

	for i := 0; i < 5; i++ {
		s := NewStore()
		s.Load(snap)
		require.Equal(t, []string{"alpha", "mike", "zebra"}, s.Inactive())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := NewStore()
	st := s.MarkActive("a")
	st.Public.Set("http_request", 200)
	st.Private["scratch"] = "value"
	require.NoError(t, s.SlideWindow("a", 3))
	st.Windows[1].Set("http_request", 200)

	snap := s.Snapshot()

	s2 := NewStore()
	s2.Load(snap)
	st2, ok := s2.Get("a")
	require.True(t, ok)
	require.Equal(t, st.Public, st2.Public)
	require.Equal(t, st.Private, st2.Private)
	require.Equal(t, st.Windows, st2.Windows)
}

func TestWipeAllInactive(t *testing.T) {
	s := NewStore()
	s.MarkActive("active")
	s.Ensure("inactive-1")
	s.Ensure("inactive-2")

	removed := s.WipeAllInactive()
	require.ElementsMatch(t, []string{"inactive-1", "inactive-2"}, removed)
	require.Equal(t, []string{"active"}, s.Active())
	require.Empty(t, s.Inactive())
}
