package core

import "time"

// SeenStore persists the date of the newest listing the user has seen.
type SeenStore interface {
	NewestSeen() time.Time
	RecordSeen(t time.Time) error
}

// IsNew reports whether a listing was published after newest.
func IsNew(l *Listing, newest time.Time) bool {
	return l.ID().Date.After(newest)
}

// NewestDate returns the latest identifier date among the visible listings.
func NewestDate(c *Catalog) time.Time {
	var newest time.Time
	listings := c.Listings()
	for _, l := range listings[:c.Size()] {
		if d := l.ID().Date; d.After(newest) {
			newest = d
		}
	}
	return newest
}
