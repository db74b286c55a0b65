package config

import (
	"testing"
	"time"

	"github.com/anthropics/tailstatd/internal/sched"
	"github.com/stretchr/testify/require"
)

func TestParseMinimalArgs(t *testing.T) {
	cfg, err := Parse([]string{"apache", "a:/var/log/access.log"})
	require.NoError(t, err)
	require.Equal(t, "apache", cfg.PluginName)
	require.Equal(t, []string{"a"}, zoneNames(cfg))
	require.Equal(t, 60*time.Second, cfg.ExpandPeriod)
	require.Equal(t, "127.0.0.1:3638", cfg.ListenAddr)
}

func TestParseAggregateZoneAppliesToBareWildcards(t *testing.T) {
	cfg, err := Parse([]string{"-a", "web", "apache", "/var/log/access.log", "/var/log/access.log.1"})
	require.NoError(t, err)
	require.Len(t, cfg.Zones, 1)
	require.Equal(t, "web", cfg.Zones[0].Zone)
	require.Equal(t, []string{"/var/log/access.log", "/var/log/access.log.1"}, cfg.Zones[0].Wildcards)
}

func TestParseParseErrorFlag(t *testing.T) {
	cfg, err := Parse([]string{"-parse-error", "none", "apache", "a:/var/log/access.log"})
	require.NoError(t, err)
	require.Equal(t, "none", cfg.ParseError)
}

func TestParseRejectsInvalidZoneName(t *testing.T) {
	_, err := Parse([]string{"apache", "bad zone:/var/log/*.log"})
	require.Error(t, err)
}

func TestParseRejectsOverrideFrom(t *testing.T) {
	_, err := Parse([]string{"--override-from", "/tmp/x.lua", "apache", "a:/var/log/access.log"})
	require.Error(t, err)
}

func TestParseRejectsInvalidIdentity(t *testing.T) {
	_, err := Parse([]string{"-i", "bad identity", "apache", "a:/var/log/access.log"})
	require.Error(t, err)
}

func TestParsePluginOptionsHandlesBareFlagsAndPairs(t *testing.T) {
	opts, err := ParsePluginOptions("clf,threshold=5")
	require.NoError(t, err)
	require.True(t, opts.Bool("clf"))
	require.Equal(t, "5", opts.String("threshold", "0"))
}

func TestParseTimerFlag(t *testing.T) {
	cfg, err := Parse([]string{"--timer", "a:daily:1d", "apache", "a:/var/log/access.log"})
	require.NoError(t, err)
	require.Len(t, cfg.Timers, 1)
	require.Equal(t, sched.TimerSpec{Zone: "a", Name: "daily", Period: 24 * time.Hour, Unit: sched.UnitDay}, cfg.Timers[0])
}

func TestParseTimerRejectsUnconfiguredZone(t *testing.T) {
	_, err := Parse([]string{"--timer", "ghost:daily:1d", "apache", "a:/var/log/access.log"})
	require.Error(t, err)
}

func zoneNames(cfg *Config) []string {
	out := make([]string, len(cfg.Zones))
	for i, z := range cfg.Zones {
		out[i] = z.Zone
	}
	return out
}
