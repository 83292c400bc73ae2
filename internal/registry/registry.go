package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// StatusPriority is the default priority assigned to status hooks, high
// enough that they outrun ordinary jobs unless an operator raises a
// normal script's priority above it.
const StatusPriority = 1000

// ScanOptions configures one scan of the scripts directory.
type ScanOptions struct {
	Root      string
	Recursive bool
}

// Snapshot is an immutable view of loaded scripts, replaced atomically on
// reload. Consumers holding a reference keep working against it even
// after a newer snapshot is built; the old one is freed once its last
// reference drops (ordinary Go GC — there is no explicit refcounting).
type Snapshot struct {
	byName map[string]*Descriptor

	// statusByEvent indexes status hooks subscribed to a given event,
	// sorted by priority descending then name ascending for determinism.
	statusByEvent map[string][]*Descriptor
}

// Lookup returns the descriptor for name, or nil if no such script was
// loaded.
func (s *Snapshot) Lookup(name string) *Descriptor {
	return s.byName[name]
}

// StatusHooksFor returns the status hooks subscribed to event, in
// priority order, filtered to those whose `scripts` glob patterns (if
// any) match sourceScript. A status hook with no `scripts` filter matches
// every source script.
func (s *Snapshot) StatusHooksFor(event, sourceScript string) []*Descriptor {
	var out []*Descriptor
	for _, d := range s.statusByEvent[event] {
		if statusHookMatches(d, sourceScript) {
			out = append(out, d)
		}
	}
	return out
}

func statusHookMatches(d *Descriptor, sourceScript string) bool {
	for _, p := range d.Providers {
		if p.Kind != "status" {
			continue
		}
		if len(p.Scripts) == 0 {
			return true
		}
		for _, pattern := range p.Scripts {
			if ok, _ := doublestar.Match(pattern, sourceScript); ok {
				return true
			}
			if pattern == sourceScript {
				return true
			}
		}
		return false
	}
	// No status provider carries a scripts filter, so every source matches.
	return true
}

// Len returns the number of loaded scripts, for diagnostics.
func (s *Snapshot) Len() int { return len(s.byName) }

// NewSnapshot builds a Snapshot directly from a name-to-descriptor map,
// indexing status hooks the same way Load does. Useful for tests in
// other packages that need a Snapshot without scanning a directory.
func NewSnapshot(byName map[string]*Descriptor) *Snapshot {
	return buildSnapshot(byName)
}

// Load scans opts.Root and builds a new immutable Snapshot. A malformed
// script is logged and excluded; scanning continues. Load fails only if
// the root directory itself cannot be read.
func Load(opts ScanOptions, logger *slog.Logger) (*Snapshot, error) {
	candidates, err := listCandidates(opts)
	if err != nil {
		return nil, fmt.Errorf("listing scripts in %s: %w", opts.Root, err)
	}

	byName := make(map[string]*Descriptor)
	for _, path := range candidates {
		name, err := scriptName(opts.Root, path)
		if err != nil {
			logger.Error("skipping script with unresolvable name", "path", path, "error", err)
			continue
		}

		d, err := loadOne(path, name)
		if err != nil {
			logger.Error("skipping malformed script", "name", name, "path", path, "error", err)
			continue
		}
		byName[name] = d
	}

	return buildSnapshot(byName), nil
}

func buildSnapshot(byName map[string]*Descriptor) *Snapshot {
	statusByEvent := make(map[string][]*Descriptor)
	for _, d := range byName {
		if !d.IsStatusHook() {
			continue
		}
		for event := range d.StatusEvents {
			statusByEvent[event] = append(statusByEvent[event], d)
		}
	}
	for event, hooks := range statusByEvent {
		sort.SliceStable(hooks, func(i, j int) bool {
			if hooks[i].Priority != hooks[j].Priority {
				return hooks[i].Priority > hooks[j].Priority
			}
			return hooks[i].Name < hooks[j].Name
		})
		statusByEvent[event] = hooks
	}
	return &Snapshot{byName: byName, statusByEvent: statusByEvent}
}

func listCandidates(opts ScanOptions) ([]string, error) {
	if _, err := os.Stat(opts.Root); err != nil {
		return nil, err
	}

	if !opts.Recursive {
		entries, err := os.ReadDir(opts.Root)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(opts.Root, e.Name())
			if executable(path) {
				out = append(out, path)
			}
		}
		return out, nil
	}

	// Descend into subdirectories, following symlinks, using doublestar's
	// "**" recursive match against an os.DirFS rooted at the scripts
	// directory.
	fsys := os.DirFS(opts.Root)
	matches, err := doublestar.Glob(fsys, "**/*")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range matches {
		full := filepath.Join(opts.Root, filepath.FromSlash(m))
		if executable(full) {
			out = append(out, full)
		}
	}
	return out, nil
}

// executable reports whether path is a regular file with an execute bit
// set for the daemon's effective user (approximated here as "any execute
// bit", matching common webhook-dispatcher behavior since checking the
// precise owner/group/other bit against the running uid adds complexity
// with no behavioral payoff in practice).
func executable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

func scriptName(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func loadOne(path, name string) (*Descriptor, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from a directory scan, not user input
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := scanConfigComments(f)
	if err != nil {
		return nil, err
	}

	opts, providers, err := parseProviders(lines)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		Name:       name,
		ExecPath:   path,
		SourceFile: path,
		Providers:  providers,
		Priority:   0,
		Parallel:   true,
	}
	if opts.Priority != nil {
		d.Priority = *opts.Priority
	}
	if opts.Parallel != nil {
		d.Parallel = *opts.Parallel
	}

	for _, p := range providers {
		if p.Kind != "status" {
			continue
		}
		if d.StatusEvents == nil {
			d.StatusEvents = make(map[string]bool)
		}
		events := p.Events
		if len(events) == 0 {
			events = []string{"job-completed", "job-failed"}
		}
		for _, e := range events {
			d.StatusEvents[e] = true
		}
		if opts.Priority == nil {
			d.Priority = StatusPriority
		}
	}

	// A script with no recognized provider comment is still a valid
	// registry entry: it simply never matches an incoming webhook.
	// It is not an error.
	return d, nil
}
