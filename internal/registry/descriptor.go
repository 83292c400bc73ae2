// Package registry scans a scripts directory, parses per-script
// configuration comments, and builds an immutable snapshot mapping
// script name to descriptor.
package registry

// ProviderConfig is one parsed `## Fisher-<Provider>: {...}` comment,
// preserved in file order.
type ProviderConfig struct {
	// Kind is one of "standalone", "github", "gitlab", or "status".
	Kind string

	Secret     string
	ParamName  string
	HeaderName string
	From       []string
	Events     []string
	Scripts    []string
}

// Descriptor is the immutable, per-reload-cycle description of one script.
type Descriptor struct {
	// Name is the stable identifier derived from the file path relative
	// to the scripts root, including extension. Subdirectory scripts use
	// path separators in the name.
	Name string

	// ExecPath is the absolute filesystem path to the executable.
	ExecPath string

	// SourceFile is ExecPath, kept separately for clarity in logs; the
	// two are equal today but SourceFile is what log fields should use.
	SourceFile string

	// Providers is the ordered list of provider configurations parsed
	// from the script's header comments.
	Providers []ProviderConfig

	// Priority is a signed ordering key; higher runs first. Default 0,
	// status hooks default 1000.
	Priority int

	// Parallel controls whether multiple instances of this script may
	// run concurrently. Default true.
	Parallel bool

	// StatusEvents is non-empty only for status hooks: the set of event
	// names ("job-completed", "job-failed") this script subscribes to.
	StatusEvents map[string]bool
}

// IsStatusHook reports whether this descriptor subscribes to any status
// event, i.e. carries a Fisher-Status provider.
func (d *Descriptor) IsStatusHook() bool {
	return len(d.StatusEvents) > 0
}

func (p ProviderConfig) matchesEvent(event string) bool {
	if len(p.Events) == 0 {
		return true
	}
	for _, e := range p.Events {
		if e == event {
			return true
		}
	}
	return false
}
