// Package update decides when to look for catalog updates and what to do
// about the ones it finds.
package update

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Frequency is how often catalogs are checked for updates.
type Frequency int

const (
	Never Frequency = iota
	Monthly
	Weekly
	Daily
	// Always checks at every opportunity, but no more than once per
	// AlwaysPeriod.
	Always
)

// AlwaysPeriod is the shortest interval between two checks.
const AlwaysPeriod = 30 * time.Minute

var frequencyNames = map[Frequency]string{
	Never:   "never",
	Monthly: "monthly",
	Weekly:  "weekly",
	Daily:   "daily",
	Always:  "always",
}

func (f Frequency) String() string {
	if s, ok := frequencyNames[f]; ok {
		return s
	}
	return fmt.Sprintf("frequency(%d)", int(f))
}

// Period returns the interval between checks, or 0 for Never.
func (f Frequency) Period() time.Duration {
	switch f {
	case Monthly:
		return 30 * 24 * time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	case Daily:
		return 24 * time.Hour
	case Always:
		return AlwaysPeriod
	default:
		return 0
	}
}

// ParseFrequency parses a frequency name, ignoring case.
func ParseFrequency(s string) (Frequency, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range frequencyNames {
		if name == s {
			return f, nil
		}
	}
	return Never, fmt.Errorf("unknown update frequency %q", s)
}

// UntilNextCheck returns the time left before the next check is due. A
// negative result means the check is overdue. For Never the result is the
// largest representable duration.
func UntilNextCheck(f Frequency, last, now time.Time) time.Duration {
	if f == Never {
		return time.Duration(math.MaxInt64)
	}
	if last.IsZero() {
		return -f.Period()
	}
	return f.Period() - now.Sub(last)
}

// Action is what a check does with the updates it finds.
type Action int

const (
	// Notify reports the updates.
	Notify Action = iota
	// OpenBrowser opens the catalog view.
	OpenBrowser
	// InstallNow installs the updates immediately.
	InstallNow
)

var actionNames = map[Action]string{
	Notify:      "notify",
	OpenBrowser: "open-browser",
	InstallNow:  "install",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction parses an action name, ignoring case.
func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return Notify, fmt.Errorf("unknown update action %q", s)
}
