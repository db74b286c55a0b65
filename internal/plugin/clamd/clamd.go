// Package clamd implements the built-in ClamAV clamd log plugin in
// "type" mode: it tallies clean vs. malware verdicts and, for malware,
// a per-signature-name breakdown (spec.md S4).
package clamd

import (
	"regexp"

	"github.com/anthropics/tailstatd/internal/plugin"
	"github.com/anthropics/tailstatd/internal/zone"
)

func init() {
	plugin.Register("clamd", New)
}

// defaultPattern matches clamd scan-result lines of the form:
// /path/to/file: OK
// /path/to/file: Eicar-Test-Signature FOUND
var defaultPattern = regexp.MustCompile(`^(\S.*): (OK|(.+) FOUND)$`)

// Plugin implements plugin.Plugin for clamd scan logs.
type Plugin struct {
	re       *regexp.Regexp
	typeMode bool
}

type fields struct {
	clean     bool
	signature string
}

// New constructs a clamd plugin. The `type` option enables
// per-signature breakdown counters; without it only clean/malware
// totals are kept.
func New(opts plugin.Options) (plugin.Plugin, error) {
	p := &Plugin{re: defaultPattern, typeMode: opts.Bool("type")}
	if opts.Regex != "" {
		re, err := regexp.Compile(opts.Regex)
		if err != nil {
			return nil, err
		}
		p.re = re
	}
	return p, nil
}

// ParseErrorDefault implements plugin.Plugin.
func (p *Plugin) ParseErrorDefault() plugin.Level { return plugin.LevelDebug }

// InitZone implements plugin.Plugin.
func (p *Plugin) InitZone(_ string, pub zone.Counters, _ zone.Scratch, current zone.Counters) {
	for _, c := range []zone.Counters{pub, current} {
		c.Set("clean", c.Get("clean"))
		c.Set("malware", c.Get("malware"))
	}
}

// ProcessLine implements plugin.Plugin.
func (p *Plugin) ProcessLine(line string) (plugin.Fields, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	if m[2] == "OK" {
		return fields{clean: true}, true
	}
	return fields{clean: false, signature: m[3]}, true
}

// ProcessData implements plugin.Plugin.
func (p *Plugin) ProcessData(f plugin.Fields, pub zone.Counters, _ zone.Scratch, current zone.Counters) {
	fl, ok := f.(fields)
	if !ok {
		return
	}
	for _, c := range []zone.Counters{pub, current} {
		if fl.clean {
			c.Inc("clean", 1)
			continue
		}
		c.Inc("malware", 1)
		if p.typeMode && fl.signature != "" {
			c.Inc("malware:"+fl.signature, 1)
		}
	}
}

// ProcessWindow implements plugin.Plugin.
func (p *Plugin) ProcessWindow(_ zone.Counters, _ zone.Scratch, _ []zone.Counters) {}

// ProcessTimer implements plugin.Plugin; clamd defines no named timers
// by default.
func (p *Plugin) ProcessTimer(_ string, _ zone.Counters, _ zone.Scratch, _ []zone.Counters) bool {
	return false
}

// StatsZone implements plugin.Plugin.
func (p *Plugin) StatsZone(_ string, pub zone.Counters, _ zone.Scratch, _ []zone.Counters) []string {
	return plugin.SortedLines(pub)
}

// DumpZone implements plugin.Plugin.
func (p *Plugin) DumpZone(zoneName string, pub zone.Counters, priv zone.Scratch, completed []zone.Counters) []string {
	return p.StatsZone(zoneName, pub, priv, completed)
}
