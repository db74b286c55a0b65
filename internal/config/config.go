// Package config parses and validates the command-line surface
// (spec.md S6): plugin name, [zone:]wildcard positionals, and the
// daemon's options. Parsing follows the teacher's cmd/goclode/main.go
// use of the standard flag package; validation of the zone-name and
// identity grammars uses regexp, as spec.md S6 requires.
package config

import (
	"flag"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/tailstatd/internal/expand"
	"github.com/anthropics/tailstatd/internal/plugin"
	"github.com/anthropics/tailstatd/internal/sched"
)

var (
	zoneNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	identityRE = regexp.MustCompile(`^\w+$`)
)

// ZoneWildcard is one `[zone:]wildcard` positional argument after
// resolving the implicit aggregate zone.
type ZoneWildcard struct {
	Zone     string
	Wildcard string
}

// Config is the fully parsed and validated command-line surface.
type Config struct {
	PluginName    string
	PluginOptions plugin.Options
	Zones         []expand.ZoneConfig

	AggregateZone string
	DatabasePath  string
	Basename      bool
	ChangeDir     string
	Debug         bool
	Foreground    bool
	LogFacility   string
	LogLevel      string
	LogFile       string
	ExpandPeriod  time.Duration
	Identity      string
	ListenAddr    string
	Multiple      bool
	WindowsNum    int
	OverrideFrom  []string
	PIDFile       string
	ParseError    string
	RegexOverride string
	StorePeriod   time.Duration
	Timers        []sched.TimerSpec
	User          string
	WindowSize    time.Duration
	Version       bool
}

// Parse parses args (excluding the program name) into a Config and
// validates it. Configuration errors are returned as plain errors;
// main is responsible for printing a usage-style message and exiting
// non-zero (spec.md S7).
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("tailstatd", flag.ContinueOnError)

	cfg := &Config{}
	var (
		optionsStr string
		timersStr  multiFlag
		overrideFr multiFlag
	)

	fs.StringVar(&cfg.AggregateZone, "a", "", "aggregate zone name")
	fs.StringVar(&cfg.DatabasePath, "b", "tailstatd.db", "database path")
	fs.BoolVar(&cfg.Basename, "basename", false, "report base names instead of full paths")
	fs.StringVar(&cfg.ChangeDir, "c", "", "change directory before expanding wildcards")
	fs.BoolVar(&cfg.Debug, "d", false, "debug shortcut (sets log level to debug)")
	fs.BoolVar(&cfg.Foreground, "f", false, "run in the foreground")
	fs.StringVar(&cfg.LogFacility, "log-facility", "", "log facility")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&cfg.LogFile, "log-file", "", "log file path (empty: stderr)")
	expandSecs := fs.Int("e", 60, "expand period in seconds")
	fs.StringVar(&cfg.Identity, "i", "", "identity string")
	fs.StringVar(&cfg.ListenAddr, "l", "127.0.0.1:3638", "listen address")
	fs.BoolVar(&cfg.Multiple, "multiple", false, "allow multiple zones to subscribe to the same file")
	fs.IntVar(&cfg.WindowsNum, "n", 60, "number of windows to retain")
	fs.StringVar(&optionsStr, "o", "", "plugin options (comma- and =-separated)")
	fs.Var(&overrideFr, "override-from", "override plugin source from file (repeatable, unsupported)")
	fs.StringVar(&cfg.PIDFile, "p", "", "pid file path")
	fs.StringVar(&cfg.ParseError, "parse-error", "", "parse-error log level override")
	fs.StringVar(&cfg.RegexOverride, "r", "", "regex override")
	fs.StringVar(&cfg.RegexOverride, "regex-from", "", "regex override (same as -r)")
	storeSecs := fs.Int("s", 10, "store period in seconds")
	fs.Var(&timersStr, "timer", "named timer zone:name:Nunit (repeatable)")
	fs.StringVar(&cfg.User, "u", "", "user to run as")
	fs.BoolVar(&cfg.Version, "v", false, "print version and exit")
	windowSecs := fs.Int("w", 10, "window size in seconds")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.OverrideFrom = overrideFr
	cfg.ExpandPeriod = time.Duration(*expandSecs) * time.Second
	cfg.StorePeriod = time.Duration(*storeSecs) * time.Second
	cfg.WindowSize = time.Duration(*windowSecs) * time.Second
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	if cfg.Version {
		return cfg, nil
	}

	rest := fs.Args()
	if len(rest) < 2 {
		return nil, fmt.Errorf("config: expected a plugin name and at least one [zone:]wildcard")
	}
	cfg.PluginName = rest[0]

	opts, err := ParsePluginOptions(optionsStr)
	if err != nil {
		return nil, err
	}
	opts.Regex = cfg.RegexOverride
	cfg.PluginOptions = opts

	zws, err := parseZoneWildcards(rest[1:], cfg.AggregateZone)
	if err != nil {
		return nil, err
	}
	cfg.Zones = groupByZone(zws)

	for _, z := range cfg.Zones {
		if !zoneNameRE.MatchString(z.Zone) {
			return nil, fmt.Errorf("config: invalid zone name %q (must match [A-Za-z0-9_-]+)", z.Zone)
		}
	}
	if cfg.Identity != "" && !identityRE.MatchString(cfg.Identity) {
		return nil, fmt.Errorf("config: invalid identity %q (must be word characters only)", cfg.Identity)
	}
	if len(cfg.OverrideFrom) > 0 {
		return nil, fmt.Errorf("config: --override-from is not supported by this build (fixed, compiled-in plugin registry only)")
	}

	cfg.Timers, err = parseTimers(timersStr, cfg.Zones)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseZoneWildcards splits each `[zone:]wildcard` positional,
// defaulting to aggregateZone (or "-a" value; if neither is given, the
// wildcard itself must carry an explicit zone).
func parseZoneWildcards(args []string, aggregateZone string) ([]ZoneWildcard, error) {
	var out []ZoneWildcard
	for _, arg := range args {
		zone, wc, ok := strings.Cut(arg, ":")
		if !ok || looksLikeBareWildcard(arg) {
			zone, wc = aggregateZone, arg
		}
		if zone == "" {
			return nil, fmt.Errorf("config: %q has no zone and no aggregate zone (-a) was given", arg)
		}
		out = append(out, ZoneWildcard{Zone: zone, Wildcard: wc})
	}
	return out, nil
}

// looksLikeBareWildcard reports whether arg's portion before the first
// ':' cannot be a zone name, meaning the whole argument is a wildcard
// for the aggregate zone (handles absolute paths like "/var/log/*").
func looksLikeBareWildcard(arg string) bool {
	zone, _, ok := strings.Cut(arg, ":")
	return !ok || !zoneNameRE.MatchString(zone)
}

func groupByZone(zws []ZoneWildcard) []expand.ZoneConfig {
	order := make([]string, 0)
	byZone := make(map[string][]string)
	for _, zw := range zws {
		if _, ok := byZone[zw.Zone]; !ok {
			order = append(order, zw.Zone)
		}
		byZone[zw.Zone] = append(byZone[zw.Zone], zw.Wildcard)
	}
	out := make([]expand.ZoneConfig, 0, len(order))
	for _, z := range order {
		out = append(out, expand.ZoneConfig{Zone: z, Wildcards: byZone[z]})
	}
	return out
}

// ParsePluginOptions parses a comma- and =-separated option string
// ("clf" or "type=true,threshold=5") into plugin.Options. A bare key
// with no '=' is treated as a boolean flag.
func ParsePluginOptions(s string) (plugin.Options, error) {
	opts := plugin.Options{Values: make(map[string]string)}
	if s == "" {
		return opts, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			opts.Values[key] = "true"
			continue
		}
		opts.Values[key] = value
	}
	return opts, nil
}

// parseTimers parses repeated `--timer=zone:name:Nunit` flags into
// sched.TimerSpec values, validating that the zone is configured.
func parseTimers(specs []string, zones []expand.ZoneConfig) ([]sched.TimerSpec, error) {
	configured := make(map[string]bool, len(zones))
	for _, z := range zones {
		configured[z.Zone] = true
	}

	var out []sched.TimerSpec
	for _, raw := range specs {
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: malformed --timer=%q (want zone:name:Nunit)", raw)
		}
		zoneName, name, periodStr := parts[0], parts[1], parts[2]
		if !configured[zoneName] {
			return nil, fmt.Errorf("config: --timer=%q refers to unconfigured zone %q", raw, zoneName)
		}
		period, unit, err := parseDurationUnit(periodStr)
		if err != nil {
			return nil, fmt.Errorf("config: --timer=%q: %w", raw, err)
		}
		out = append(out, sched.TimerSpec{Zone: zoneName, Name: name, Period: period, Unit: unit})
	}
	return out, nil
}

// parseDurationUnit parses "N[wdhms]" (e.g. "1d", "30m") into a
// duration and its truncation unit.
func parseDurationUnit(s string) (time.Duration, sched.Unit, error) {
	if s == "" {
		return 0, "", fmt.Errorf("empty period")
	}
	suffix := s[len(s)-1]
	numPart := s[:len(s)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return 0, "", fmt.Errorf("invalid period %q", s)
	}

	switch suffix {
	case 's':
		return time.Duration(n) * time.Second, sched.UnitSecond, nil
	case 'm':
		return time.Duration(n) * time.Minute, sched.UnitMinute, nil
	case 'h':
		return time.Duration(n) * time.Hour, sched.UnitHour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, sched.UnitDay, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, sched.UnitWeek, nil
	default:
		return 0, "", fmt.Errorf("unknown unit suffix %q", string(suffix))
	}
}

// multiFlag implements flag.Value for repeatable string flags.
type multiFlag []string

func (m *multiFlag) String() string {
	if m == nil {
		return ""
	}
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
