package logging

import (
	"bytes"
	"os"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewEmitsLevelTimestampPidMessage(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "")
	log.Info().Msg("hello")

	out := buf.String()
	require.Contains(t, out, "INFO")
	require.Contains(t, out, "hello")
	require.Contains(t, out, strconv.Itoa(os.Getpid()))
}

func TestNewIncludesIdentityWhenSet(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "watcher1")
	log.Info().Msg("hi")
	require.Contains(t, buf.String(), "watcher1")
}

func TestParseLevelMapsNoneToDisabled(t *testing.T) {
	lvl, err := ParseLevel("none")
	require.NoError(t, err)
	require.Equal(t, zerolog.Disabled, lvl)
}

func TestParseLevelAcceptsStandardNames(t *testing.T) {
	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	require.Equal(t, zerolog.WarnLevel, lvl)
}

func TestParseLevelRejectsUnknownName(t *testing.T) {
	_, err := ParseLevel("not-a-level")
	require.Error(t, err)
}
