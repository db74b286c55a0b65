package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anthropics/tailstatd/internal/zone"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() map[string]*zone.State {
	return map[string]*zone.State{
		"a": {
			Public:  zone.Counters{"http_request": 200},
			Private: zone.Scratch{"note": "scratch"},
			Windows: []zone.Counters{{"http_request": 0}, {"http_request": 200}},
		},
	}
}

func TestDumpLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, Dump(path, sampleSnapshot()))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, sampleSnapshot()["a"].Public, loaded["a"].Public)
	require.Equal(t, sampleSnapshot()["a"].Private, loaded["a"].Private)
	require.Equal(t, sampleSnapshot()["a"].Windows, loaded["a"].Windows)
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	loaded, err := Load(filepath.Join(dir, "does-not-exist.json"))
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestDumpIsAtomicPreviousFileSurvivesCorruptWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, Dump(path, sampleSnapshot()))

	// Simulate a failed write by pre-creating the temp file as a
	// directory, so os.WriteFile to it fails; the real database file
	// must remain readable afterward.
	require.NoError(t, os.Mkdir(path+"~", 0755))
	err := Dump(path, sampleSnapshot())
	require.Error(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded["a"])
}

func TestLoadDecodeFailureIsFatalCandidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}
