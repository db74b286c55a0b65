package clamd

import (
	"testing"

	"github.com/anthropics/tailstatd/internal/plugin"
	"github.com/anthropics/tailstatd/internal/zone"
	"github.com/stretchr/testify/require"
)

func TestTypeModeBreaksDownBySignature(t *testing.T) {
	p, err := New(plugin.Options{Values: map[string]string{"type": "true"}})
	require.NoError(t, err)

	pub := make(zone.Counters)
	current := make(zone.Counters)
	p.InitZone("a", pub, nil, current)

	lines := []string{
		"/tmp/a: OK",
		"/tmp/b: Eicar-Test-Signature FOUND",
		"/tmp/c: Eicar-Test-Signature FOUND",
	}
	for _, line := range lines {
		f, ok := p.ProcessLine(line)
		require.True(t, ok)
		p.ProcessData(f, pub, nil, current)
	}

	require.Equal(t, float64(1), pub.Get("clean"))
	require.Equal(t, float64(2), pub.Get("malware"))
	require.Equal(t, float64(2), pub.Get("malware:Eicar-Test-Signature"))
}

func TestWithoutTypeModeNoBreakdown(t *testing.T) {
	p, err := New(plugin.Options{})
	require.NoError(t, err)

	pub := make(zone.Counters)
	current := make(zone.Counters)
	f, ok := p.ProcessLine("/tmp/b: Eicar-Test-Signature FOUND")
	require.True(t, ok)
	p.ProcessData(f, pub, nil, current)

	require.Equal(t, float64(1), pub.Get("malware"))
	require.Equal(t, float64(0), pub.Get("malware:Eicar-Test-Signature"))
}
