// Package apache implements the built-in Apache/NCSA Common Log Format
// (CLF) plugin, counting requests, status-code classes, methods, and
// protocol versions per window.
package apache

import (
	"regexp"
	"strconv"

	"github.com/anthropics/tailstatd/internal/plugin"
	"github.com/anthropics/tailstatd/internal/zone"
)

func init() {
	plugin.Register("apache", New)
}

// defaultCLF matches the common log format:
// host ident authuser [date] "method path proto" status bytes
var defaultCLF = regexp.MustCompile(
	`^(\S+) (\S+) (\S+) \[([^\]]+)\] "(\S+) (\S+) ([^"]+)" (\d{3}) (\S+)`)

// Plugin implements plugin.Plugin for access-log style input.
type Plugin struct {
	re *regexp.Regexp
}

// fields is what ProcessLine extracts from one matched line.
type fields struct {
	method, version string
	status          int
}

// New constructs an apache plugin. The `clf` option selects the
// built-in pattern explicitly (the only mode this port ships); a
// `regex` override replaces the pattern entirely.
func New(opts plugin.Options) (plugin.Plugin, error) {
	p := &Plugin{re: defaultCLF}
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
func (p *Plugin) ParseErrorDefault() plugin.Level { return plugin.LevelInfo }

// InitZone implements plugin.Plugin: zero the counters queries depend
// on being totally defined even before any line has been seen.
func (p *Plugin) InitZone(_ string, pub zone.Counters, _ zone.Scratch, current zone.Counters) {
	for _, c := range []zone.Counters{pub, current} {
		c.Set("http_request", c.Get("http_request"))
		c.Set("malformed_request", c.Get("malformed_request"))
	}
}

// ProcessLine implements plugin.Plugin.
func (p *Plugin) ProcessLine(line string) (plugin.Fields, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	status, err := strconv.Atoi(m[8])
	if err != nil {
		return nil, false
	}
	return fields{method: m[5], version: m[7], status: status}, true
}

// ProcessData implements plugin.Plugin.
func (p *Plugin) ProcessData(f plugin.Fields, pub zone.Counters, _ zone.Scratch, current zone.Counters) {
	fl, ok := f.(fields)
	if !ok {
		for _, c := range []zone.Counters{pub, current} {
			c.Inc("malformed_request", 1)
		}
		return
	}
	for _, c := range []zone.Counters{pub, current} {
		c.Inc("http_request", 1)
		c.Inc("http_method_"+methodKey(fl.method), 1)
		c.Inc("http_version_"+versionKey(fl.version), 1)
		c.Inc(statusClassKey(fl.status), 1)
	}
}

// ProcessWindow implements plugin.Plugin: no rollover bookkeeping
// beyond what the ring itself retains for this plugin.
func (p *Plugin) ProcessWindow(_ zone.Counters, _ zone.Scratch, _ []zone.Counters) {}

// ProcessTimer implements plugin.Plugin; apache defines no named
// timers by default, so any fire is simply acknowledged and not
// re-armed.
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

func methodKey(method string) string {
	switch method {
	case "GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "PATCH":
		return lower(method)
	default:
		return "other"
	}
}

func versionKey(version string) string {
	switch version {
	case "HTTP/1.0":
		return "1_0"
	case "HTTP/1.1":
		return "1_1"
	case "HTTP/2.0", "HTTP/2":
		return "2_0"
	default:
		return "other"
	}
}

func statusClassKey(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "http_status_2xx"
	case status >= 300 && status < 400:
		return "http_status_3xx"
	case status >= 400 && status < 500:
		return "http_status_4xx"
	case status >= 500 && status < 600:
		return "http_status_5xx"
	default:
		return "http_status_other"
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
