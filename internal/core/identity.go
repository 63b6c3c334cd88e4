package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IdentifierPrefix starts every identity token.
const IdentifierPrefix = "CATALOGUEID"

var identifierPattern = regexp.MustCompile(`CATALOGUEID\{([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}):(\d+(?:-\d+){5,6})\}`)

// Identifier names one published revision of a bundle. The UUID is stable
// across revisions; the date increases with every revision.
type Identifier struct {
	UUID uuid.UUID
	Date time.Time
}

// NewIdentifier creates an identifier for a newly published bundle.
func NewIdentifier(now time.Time) Identifier {
	return Identifier{UUID: uuid.New(), Date: truncate(now)}
}

// Touch returns an identifier for a new revision of the same bundle.
func (id Identifier) Touch(now time.Time) Identifier {
	return Identifier{UUID: id.UUID, Date: truncate(now)}
}

func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// ParseIdentifier parses a complete identity token.
func ParseIdentifier(token string) (Identifier, error) {
	token = strings.TrimSpace(token)
	m := identifierPattern.FindStringSubmatch(token)
	if m == nil || m[0] != token {
		return Identifier{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, token)
	}
	return identifierFromMatch(m)
}

// FindIdentifier extracts the first identity token embedded in text.
func FindIdentifier(text string) (Identifier, bool) {
	m := identifierPattern.FindStringSubmatch(text)
	if m == nil {
		return Identifier{}, false
	}
	id, err := identifierFromMatch(m)
	if err != nil {
		return Identifier{}, false
	}
	return id, true
}

func identifierFromMatch(m []string) (Identifier, error) {
	u, err := uuid.Parse(m[1])
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}

	fields := strings.Split(m[2], "-")
	nums := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Identifier{}, fmt.Errorf("%w: date field %q", ErrInvalidIdentifier, f)
		}
		nums[i] = n
	}
	if nums[1] < 1 || nums[1] > 12 || nums[2] < 1 || nums[2] > 31 || nums[3] > 23 || nums[4] > 59 || nums[5] > 60 {
		return Identifier{}, fmt.Errorf("%w: date %q out of range", ErrInvalidIdentifier, m[2])
	}

	date := time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, time.UTC)
	return Identifier{UUID: u, Date: date}, nil
}

// IsZero reports whether id is the zero identifier.
func (id Identifier) IsZero() bool {
	return id.UUID == uuid.Nil
}

// String formats the identifier as an identity token.
func (id Identifier) String() string {
	d := id.Date.UTC()
	return fmt.Sprintf("%s{%s:%d-%d-%d-%d-%d-%d-0}", IdentifierPrefix, id.UUID,
		d.Year(), int(d.Month()), d.Day(), d.Hour(), d.Minute(), d.Second())
}

// SameBundle reports whether both identifiers name the same bundle.
func (id Identifier) SameBundle(other Identifier) bool {
	return id.UUID == other.UUID
}

// Compare orders two revisions of the same bundle by date. Identifiers
// of different bundles compare as 0; check SameBundle first.
func (id Identifier) Compare(other Identifier) int {
	if !id.SameBundle(other) {
		return 0
	}
	return id.Date.Compare(other.Date)
}

// IsNewerThan reports whether id is a later revision of the same bundle.
func (id Identifier) IsNewerThan(other Identifier) bool {
	return id.SameBundle(other) && id.Date.After(other.Date)
}

// IsOlderThan reports whether id is an earlier revision of the same bundle.
func (id Identifier) IsOlderThan(other Identifier) bool {
	return id.SameBundle(other) && id.Date.Before(other.Date)
}
