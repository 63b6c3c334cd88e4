package core

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WrapColumn is the line width long values are wrapped at.
const WrapColumn = 80

const continuationIndent = "    "

// keyOrder is the order keys are written in; other keys follow sorted.
var keyOrder = []string{
	KeyHidden, KeyCore, KeyURL, KeyName, KeyCredit, KeyHomepage, KeyDescription,
	KeyGame, KeyTags, KeySize, KeyInstallSize, KeyDate, KeyVersion,
	KeyMaxVersion, KeyMinVersion, KeyReplaces, KeyRequires, KeyDigest,
	KeyID, KeyComment,
}

var orderedKeys = func() map[string]bool {
	m := make(map[string]bool, len(keyOrder))
	for _, k := range keyOrder {
		m[k] = true
	}
	return m
}()

// WriteTo writes the catalog in the format read by Parse.
func (c *Catalog) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)

	comments := c.Comments()
	for _, line := range comments {
		bw.WriteString(line)
		bw.WriteByte('\n')
	}

	for i, l := range c.Listings() {
		if i > 0 || len(comments) > 0 {
			bw.WriteByte('\n')
		}
		writeListing(bw, l)
	}

	if err := bw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// Write writes c to w.
func Write(w io.Writer, c *Catalog) error {
	_, err := c.WriteTo(w)
	return err
}

func writeListing(w *bufio.Writer, l *Listing) {
	props := l.props
	for _, k := range keyOrder {
		if v, ok := props[k]; ok {
			writeProperty(w, k, v)
		}
	}
	for _, k := range l.Keys() {
		if !orderedKeys[k] {
			writeProperty(w, k, props[k])
		}
	}
}

func writeProperty(w *bufio.Writer, key, value string) {
	prefix := escapeKey(key) + " = "
	w.WriteString(prefix)
	for i, seg := range wrapValue(escapeValue(value), WrapColumn-len(prefix), WrapColumn-len(continuationIndent)) {
		if i > 0 {
			w.WriteString("\\\n")
			w.WriteString(continuationIndent)
		}
		w.WriteString(seg)
	}
	w.WriteByte('\n')
}

// wrapValue splits an escaped value into segments that may be joined with
// line continuations. Splits only happen directly after a space that is
// followed by a non-space, so the reader's removal of leading whitespace
// on continuation lines cannot change the value.
func wrapValue(s string, first, rest int) []string {
	var segs []string
	width := first
	for len(s) > width {
		cut := -1
		for i := 1; i < len(s); i++ {
			if s[i-1] == ' ' && s[i] != ' ' {
				if i <= width || cut < 0 {
					cut = i
				}
				if i > width {
					break
				}
			}
		}
		if cut <= 0 {
			break
		}
		segs = append(segs, s[:cut])
		s = s[cut:]
		width = rest
	}
	return append(segs, s)
}

func escapeKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		switch r {
		case ' ', '=', ':', '#', '!':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			writeEscapedRune(&b, r)
		}
	}
	return b.String()
}

func escapeValue(v string) string {
	var b strings.Builder
	for i, r := range v {
		if i == 0 && r == ' ' {
			b.WriteString(`\ `)
			continue
		}
		writeEscapedRune(&b, r)
	}
	return b.String()
}

func writeEscapedRune(b *strings.Builder, r rune) {
	switch r {
	case '\\':
		b.WriteString(`\\`)
	case '\t':
		b.WriteString(`\t`)
	case '\n':
		b.WriteString(`\n`)
	case '\r':
		b.WriteString(`\r`)
	case '\f':
		b.WriteString(`\f`)
	default:
		if r < 0x20 || r == 0x7f {
			fmt.Fprintf(b, `\u%04x`, r)
			return
		}
		b.WriteRune(r)
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
