package core

import "github.com/google/uuid"

// ResolveClosure marks every listing required, directly or transitively,
// by a marked listing. A required listing is marked only when it is not
// installed or the installed copy is older. Requirements that cannot be
// resolved are reported once per distinct token and otherwise ignored.
func ResolveClosure(c *Catalog, installed Installed) []Warning {
	if installed == nil {
		installed = c.installed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return closeOver(c.listings, c.flags, installed)
}

// Closure computes the closure of the catalog's current flags without
// changing them.
func Closure(c *Catalog, installed Installed) ([]bool, []Warning) {
	if installed == nil {
		installed = c.installed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	flags := append([]bool(nil), c.flags...)
	warnings := closeOver(c.listings, flags, installed)
	return flags, warnings
}

// RestartRequired reports whether installing the closure of the current
// flags would need a host restart: some listing in it updates or replaces
// an installed bundle, or is a core component.
func RestartRequired(c *Catalog, installed Installed) bool {
	if installed == nil {
		installed = c.installed
	}
	flags, _ := Closure(c, installed)
	for i, l := range c.Listings() {
		if !flags[i] {
			continue
		}
		if l.Core() {
			return true
		}
		if _, ok := installed.InstalledIdentity(l.ID().UUID); ok {
			return true
		}
		for _, tok := range l.Replaces() {
			if id, ok := FindIdentifier(tok); ok {
				if _, ok := installed.InstalledIdentity(id.UUID); ok {
					return true
				}
			}
		}
	}
	return false
}

func closeOver(listings []*Listing, flags []bool, installed Installed) []Warning {
	index := make(map[uuid.UUID]int, len(listings))
	for i, l := range listings {
		index[l.ID().UUID] = i
	}

	var warnings []Warning
	reported := make(map[string]bool)
	report := func(kind WarningKind, l *Listing, token string) {
		if reported[token] {
			return
		}
		reported[token] = true
		warnings = append(warnings, Warning{Kind: kind, Listing: l.Name(), Token: token})
	}

	for changed := true; changed; {
		changed = false
		for i, l := range listings {
			if !flags[i] {
				continue
			}
			for _, tok := range l.Requires() {
				id, ok := FindIdentifier(tok)
				if !ok {
					report(WarnBadRequirement, l, tok)
					continue
				}
				j, ok := index[id.UUID]
				if !ok {
					report(WarnMissingRequired, l, tok)
					continue
				}
				if flags[j] {
					continue
				}
				target := listings[j]
				if current, ok := installed.InstalledIdentity(target.ID().UUID); ok && !current.IsOlderThan(target.ID()) {
					continue
				}
				flags[j] = true
				changed = true
			}
		}
	}
	return warnings
}
