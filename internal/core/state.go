package core

import "github.com/google/uuid"

// Host describes the running host application.
type Host struct {
	Build int // 0 accepts every listing
}

// Accepts reports whether the listing can be installed on the host.
func (h Host) Accepts(l *Listing) bool {
	return !h.RequiresUpdate(l)
}

// RequiresUpdate reports whether the listing's declared build range
// excludes this host.
func (h Host) RequiresUpdate(l *Listing) bool {
	if h.Build <= 0 {
		return false
	}
	if floor := l.MinVersion(); floor > 0 && floor > h.Build {
		return true
	}
	if ceiling := l.MaxVersion(); ceiling > 0 && ceiling < h.Build {
		return true
	}
	return false
}

// Installed answers questions about locally installed bundles.
type Installed interface {
	// InstalledIdentity returns the identifier of the installed bundle
	// with the given UUID.
	InstalledIdentity(id uuid.UUID) (Identifier, bool)

	// HasLegacyBundle reports whether a bundle with this file name is
	// installed without identity metadata.
	HasLegacyBundle(fileName string) bool
}

// NoneInstalled is an Installed with nothing installed.
type NoneInstalled struct{}

func (NoneInstalled) InstalledIdentity(uuid.UUID) (Identifier, bool) { return Identifier{}, false }
func (NoneInstalled) HasLegacyBundle(string) bool                    { return false }

// State is a listing's relationship to the installed bundles.
type State int

const (
	NotInstalled State = iota
	UpToDate
	OutOfDate
	// OutOfDateLegacy means a bundle with the same file name is installed
	// but carries no identifier, so it cannot be compared.
	OutOfDateLegacy
	InstalledIsNewer
	RequiresHostUpdate
)

func (s State) String() string {
	switch s {
	case NotInstalled:
		return "not-installed"
	case UpToDate:
		return "up-to-date"
	case OutOfDate:
		return "out-of-date"
	case OutOfDateLegacy:
		return "out-of-date-legacy"
	case InstalledIsNewer:
		return "installed-is-newer"
	case RequiresHostUpdate:
		return "requires-host-update"
	default:
		return "unknown"
	}
}

// IsUpdate reports whether the state offers an update to something
// already installed.
func (s State) IsUpdate() bool {
	return s == OutOfDate || s == OutOfDateLegacy
}

// Classify determines the state of a listing. A host range that excludes
// the running host wins over any installed state.
func Classify(l *Listing, installed Installed, host Host) State {
	if host.RequiresUpdate(l) {
		return RequiresHostUpdate
	}
	if installed == nil {
		installed = NoneInstalled{}
	}

	id := l.ID()
	current, ok := installed.InstalledIdentity(id.UUID)
	if !ok {
		if installed.HasLegacyBundle(l.FileName()) {
			return OutOfDateLegacy
		}
		return NotInstalled
	}

	switch {
	case current.IsOlderThan(id):
		return OutOfDate
	case current.IsNewerThan(id):
		return InstalledIsNewer
	default:
		return UpToDate
	}
}

// isUpdateTo reports whether l is a newer revision of an installed bundle.
func isUpdateTo(l *Listing, installed Installed) bool {
	if installed == nil {
		return false
	}
	current, ok := installed.InstalledIdentity(l.ID().UUID)
	return ok && current.IsOlderThan(l.ID())
}
