package expand

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestResolveCanonicalizesAndSkipsDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.log"))
	writeFile(t, filepath.Join(dir, "b.log"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.log"), 0755))

	matches, err := Resolve([]ZoneConfig{{Zone: "z", Wildcards: []string{filepath.Join(dir, "*.log")}}}, "")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		require.True(t, filepath.IsAbs(m.Path))
	}
}

func TestReconcileDefaultModeFirstZoneWins(t *testing.T) {
	matches := []Match{
		{Zone: "first", Path: "/var/log/shared.log"},
		{Zone: "second", Path: "/var/log/shared.log"},
	}
	existing := map[string][]string{}
	plan := Reconcile(matches, false, existing)

	require.Len(t, plan.New, 1)
	require.Equal(t, "first", plan.New[0].Zone)
	require.Empty(t, plan.ExtraSubscriptions)
}

func TestReconcileMultipleModeEveryZoneSubscribesOnce(t *testing.T) {
	matches := []Match{
		{Zone: "first", Path: "/var/log/shared.log"},
		{Zone: "second", Path: "/var/log/shared.log"},
		{Zone: "first", Path: "/var/log/shared.log"}, // duplicate match, same pass
	}
	existing := map[string][]string{}
	plan := Reconcile(matches, true, existing)

	require.Len(t, plan.New, 1)
	require.Equal(t, "first", plan.New[0].Zone)
	require.Len(t, plan.ExtraSubscriptions, 1)
	require.Equal(t, "second", plan.ExtraSubscriptions[0].Zone)
}

func TestReconcileRemovesUnmatchedWatchers(t *testing.T) {
	existing := map[string][]string{
		"/var/log/gone.log": {"z"},
	}
	plan := Reconcile(nil, false, existing)
	require.Equal(t, []string{"/var/log/gone.log"}, plan.Remove)
}

func TestReconcileNoDuplicateWatcherPerPath(t *testing.T) {
	matches := []Match{
		{Zone: "a", Path: "/log/x"},
		{Zone: "b", Path: "/log/x"},
		{Zone: "c", Path: "/log/x"},
	}
	existing := map[string][]string{}
	plan := Reconcile(matches, true, existing)

	// Exactly one "New" watcher is created for the path regardless of
	// how many zones match it.
	require.Len(t, plan.New, 1)
	require.Len(t, plan.ExtraSubscriptions, 2)
}
