package core

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Listing keys understood by the catalog format.
const (
	KeyID          = "id"
	KeyURL         = "url"
	KeyName        = "name"
	KeyVersion     = "version"
	KeySize        = "size"
	KeyInstallSize = "install-size"
	KeyDescription = "description"
	KeyDigest      = "digest"
	KeyMD5         = "md5"
	KeyHomepage    = "homepage"
	KeyDate        = "date"
	KeyCredit      = "credit"
	KeyTags        = "tags"
	KeyMinVersion  = "minver"
	KeyMaxVersion  = "maxver"
	KeyRequires    = "requires"
	KeyReplaces    = "replaces"
	KeyHidden      = "hidden"
	KeyCore        = "core"
	KeyGame        = "game"
	KeyComment     = "comment"
)

// DateLayout is the format of the date key.
const DateLayout = "2006-01-02"

var requiredKeys = []string{KeyID, KeyURL, KeyName}

// HiddenMode is the value of a listing's hidden key.
type HiddenMode int

const (
	HiddenNo HiddenMode = iota
	HiddenYes
	// HiddenDepends listings are shown only as updates to an installed bundle.
	HiddenDepends
)

func (h HiddenMode) String() string {
	switch h {
	case HiddenYes:
		return "yes"
	case HiddenDepends:
		return "depends"
	default:
		return "no"
	}
}

// Listing is one catalog entry describing an installable bundle.
type Listing struct {
	props  map[string]string
	id     Identifier
	locale string
}

// NewListing creates a listing from a property map. The map is copied.
func NewListing(props map[string]string) (*Listing, error) {
	l := &Listing{props: make(map[string]string, len(props))}
	for k, v := range props {
		l.props[k] = v
	}
	for _, k := range requiredKeys {
		if strings.TrimSpace(l.props[k]) == "" {
			return nil, &MissingKeyError{Key: k}
		}
	}
	id, err := ParseIdentifier(l.props[KeyID])
	if err != nil {
		return nil, err
	}
	l.id = id
	return l, nil
}

// NewLocalListing creates a listing for an unpublished bundle file on disk.
// Extra properties are copied over the generated ones.
func NewLocalListing(file string, id Identifier, extra map[string]string) (*Listing, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(abs)
	props := map[string]string{
		KeyID:   id.String(),
		KeyURL:  (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(),
		KeyName: strings.TrimSuffix(base, filepath.Ext(base)),
		KeySize: strconv.FormatInt(info.Size(), 10),
		KeyDate: id.Date.Format(DateLayout),
	}
	for k, v := range extra {
		props[k] = v
	}
	return NewListing(props)
}

// Lookup resolves key in props for locale, trying key_ll_CC, then key_ll,
// then key.
func Lookup(props map[string]string, key, locale string) (string, bool) {
	if locale != "" {
		if v, ok := props[key+"_"+locale]; ok {
			return v, true
		}
		if i := strings.IndexByte(locale, '_'); i > 0 {
			if v, ok := props[key+"_"+locale[:i]]; ok {
				return v, true
			}
		}
	}
	v, ok := props[key]
	return v, ok
}

// Get returns the value of key, honouring the listing's locale.
func (l *Listing) Get(key string) string {
	v, _ := Lookup(l.props, key, l.locale)
	return v
}

// Has reports whether key is set, in any locale variant that applies.
func (l *Listing) Has(key string) bool {
	_, ok := Lookup(l.props, key, l.locale)
	return ok
}

// Set changes a property. Setting the id reparses the identifier.
func (l *Listing) Set(key, value string) error {
	if key == KeyID {
		id, err := ParseIdentifier(value)
		if err != nil {
			return err
		}
		l.id = id
	}
	l.props[key] = value
	return nil
}

// Keys returns all property keys in lexical order.
func (l *Listing) Keys() []string {
	keys := make([]string, 0, len(l.props))
	for k := range l.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Properties returns a copy of the raw property map.
func (l *Listing) Properties() map[string]string {
	out := make(map[string]string, len(l.props))
	for k, v := range l.props {
		out[k] = v
	}
	return out
}

// Locale returns the locale used for lookups.
func (l *Listing) Locale() string { return l.locale }

// ID returns the listing's identifier.
func (l *Listing) ID() Identifier { return l.id }

// URL returns the raw download URL, possibly relative to the catalog.
func (l *Listing) URL() string { return l.Get(KeyURL) }

// Name returns the display name.
func (l *Listing) Name() string { return l.Get(KeyName) }

// Version returns the human-readable version text.
func (l *Listing) Version() string { return l.Get(KeyVersion) }

// Description returns the description text.
func (l *Listing) Description() string { return l.Get(KeyDescription) }

// Homepage returns the homepage URL, if any.
func (l *Listing) Homepage() string { return l.Get(KeyHomepage) }

// Credit returns the author credit line.
func (l *Listing) Credit() string { return l.Get(KeyCredit) }

// Game returns the game code the bundle targets, if any.
func (l *Listing) Game() string { return l.Get(KeyGame) }

// Comment returns the maintainer comment.
func (l *Listing) Comment() string { return l.Get(KeyComment) }

// Size returns the download size in bytes, or -1 if unknown.
func (l *Listing) Size() int64 { return l.int64Value(KeySize) }

// InstallSize returns the installed size in bytes, or -1 if unknown.
func (l *Listing) InstallSize() int64 { return l.int64Value(KeyInstallSize) }

func (l *Listing) int64Value(key string) int64 {
	v := strings.TrimSpace(l.Get(key))
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// MinVersion returns the minimum host build, or 0 if unbounded.
func (l *Listing) MinVersion() int { return l.buildValue(KeyMinVersion) }

// MaxVersion returns the maximum host build, or 0 if unbounded.
func (l *Listing) MaxVersion() int { return l.buildValue(KeyMaxVersion) }

func (l *Listing) buildValue(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(l.Get(key)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Date returns the publication date. It falls back to the identifier date.
func (l *Listing) Date() time.Time {
	if v := strings.TrimSpace(l.Get(KeyDate)); v != "" {
		if t, err := time.Parse(DateLayout, v); err == nil {
			return t
		}
	}
	return l.id.Date
}

// Tags returns the comma separated tags.
func (l *Listing) Tags() []string { return splitList(l.Get(KeyTags)) }

// Requires returns the raw tokens of the requires key.
func (l *Listing) Requires() []string { return splitList(l.Get(KeyRequires)) }

// Replaces returns the raw tokens of the replaces key.
func (l *Listing) Replaces() []string { return splitList(l.Get(KeyReplaces)) }

// Digest returns the expected content digest. The legacy md5 key is used
// when digest is absent.
func (l *Listing) Digest() string {
	if v := strings.TrimSpace(l.Get(KeyDigest)); v != "" {
		return v
	}
	return strings.TrimSpace(l.Get(KeyMD5))
}

// Hidden returns the hidden mode.
func (l *Listing) Hidden() HiddenMode {
	switch strings.ToLower(strings.TrimSpace(l.props[KeyHidden])) {
	case "yes", "true":
		return HiddenYes
	case "depends":
		return HiddenDepends
	default:
		return HiddenNo
	}
}

// Core reports whether the listing is a core component of the host.
func (l *Listing) Core() bool {
	switch strings.ToLower(strings.TrimSpace(l.props[KeyCore])) {
	case "yes", "true":
		return true
	}
	return false
}

// FileName returns the last path segment of the download URL.
func (l *Listing) FileName() string {
	raw := l.URL()
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		raw = u.Path
	}
	return path.Base(raw)
}

func (l *Listing) String() string {
	return fmt.Sprintf("%s [%s]", l.Name(), l.id)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
