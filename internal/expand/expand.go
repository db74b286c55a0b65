// Package expand implements the wildcard expander (spec.md S4.4): it
// resolves each zone's glob wildcards to canonical file paths and
// computes which watchers the engine must create, extend, or drop.
package expand

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ZoneConfig is one zone's configured wildcards, in the order given on
// the command line.
type ZoneConfig struct {
	Zone      string
	Wildcards []string
}

// Match is one (zone, canonical path) pair produced by resolving every
// zone's wildcards, in configuration order.
type Match struct {
	Zone string
	Path string
}

// Resolve expands every zone's wildcards to existing regular files,
// canonicalizes each to a real absolute path, and returns the ordered
// list of (zone, path) matches (spec.md S4.4 steps 1-3). If changeDir
// is non-empty, wildcards are evaluated relative to it.
func Resolve(zones []ZoneConfig, changeDir string) ([]Match, error) {
	if changeDir != "" {
		prev, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("expand: getwd: %w", err)
		}
		if err := os.Chdir(changeDir); err != nil {
			return nil, fmt.Errorf("expand: chdir %q: %w", changeDir, err)
		}
		defer os.Chdir(prev)
	}

	var matches []Match
	for _, z := range zones {
		var paths []string
		for _, wc := range z.Wildcards {
			found, err := filepath.Glob(wc)
			if err != nil {
				return nil, fmt.Errorf("expand: glob %q: %w", wc, err)
			}
			paths = append(paths, found...)
		}
		sort.Strings(paths)
		for _, p := range paths {
			canon, ok := canonicalize(p)
			if !ok {
				continue
			}
			matches = append(matches, Match{Zone: z.Zone, Path: canon})
		}
	}
	return matches, nil
}

// canonicalize resolves p to an absolute, symlink-free path, skipping
// anything that isn't a regular file (directories, devices, etc. never
// become watchers).
func canonicalize(p string) (string, bool) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(real)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return real, true
}

// Plan is the set of watcher lifecycle actions the engine must take
// to reconcile its watcher map with the current expansion (spec.md
// S4.4 steps 4-6).
type Plan struct {
	// New is one entry per canonical path that needs a brand-new
	// watcher, carrying the single zone that claims it first.
	New []Match
	// ExtraSubscriptions is one entry per (zone, path) where path
	// already has a watcher and, under `multiple`, this zone must be
	// appended to its subscriber list.
	ExtraSubscriptions []Match
	// Remove lists canonical paths that no longer match any zone's
	// wildcards and whose watcher must be torn down.
	Remove []string
}

// Reconcile computes a Plan from the current match set and the
// engine's existing watcher subscriptions (path -> subscribed zones,
// in subscription order). Default mode claims each path for the first
// zone that matches it in configuration order (spec.md S4.4 step 4);
// under multiple, every matching zone not already subscribed is added
// (spec.md S3 "Subscription rule").
func Reconcile(matches []Match, multiple bool, existing map[string][]string) Plan {
	var plan Plan
	claimed := make(map[string]bool, len(existing))
	for path, zones := range existing {
		claimed[path] = len(zones) > 0
	}

	seenNew := make(map[string]bool)
	stillMatching := make(map[string]bool)

	for _, m := range matches {
		stillMatching[m.Path] = true

		if zones, watched := existing[m.Path]; watched {
			if !multiple {
				continue // default mode: file already claimed
			}
			if containsZone(zones, m.Zone) {
				continue
			}
			plan.ExtraSubscriptions = append(plan.ExtraSubscriptions, m)
			existing[m.Path] = append(zones, m.Zone)
			continue
		}

		if !claimed[m.Path] {
			plan.New = append(plan.New, m)
			claimed[m.Path] = true
			seenNew[m.Path] = true
			existing[m.Path] = []string{m.Zone}
			continue
		}
		if multiple && !seenNew[m.Path] {
			// Another zone matched the same new path in this same
			// expansion pass before a watcher existed for it: treat
			// subsequent matches as extra subscriptions on the
			// about-to-be-created watcher.
			zones := existing[m.Path]
			if !containsZone(zones, m.Zone) {
				plan.ExtraSubscriptions = append(plan.ExtraSubscriptions, m)
				existing[m.Path] = append(zones, m.Zone)
			}
		}
	}

	for path := range existing {
		if !stillMatching[path] {
			plan.Remove = append(plan.Remove, path)
		}
	}
	sort.Strings(plan.Remove)

	return plan
}

func containsZone(zones []string, zone string) bool {
	for _, z := range zones {
		if z == zone {
			return true
		}
	}
	return false
}
