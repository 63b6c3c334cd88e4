package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const maxLineLength = 1 << 20

// Parse reads a catalog from r. Leading lines starting with '#' or '!'
// are kept as comments; a "#lock" comment stops parsing with ErrLocked.
// The rest of the text is split into blank-line separated blocks, each
// of which becomes one listing.
func Parse(r io.Reader, opts ...Option) (*Catalog, error) {
	c := NewCatalog(opts...)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	var (
		comments   []string
		block      []string
		blockStart int
		lineNo     int
		inHeader   = true
	)

	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		defer func() { block = block[:0] }()
		return c.addBlock(block, blockStart)
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		trimmed := strings.TrimSpace(line)

		if inHeader {
			if trimmed == "" {
				continue
			}
			if trimmed[0] == '#' || trimmed[0] == '!' {
				if strings.EqualFold(trimmed, "#lock") {
					return nil, ErrLocked
				}
				comments = append(comments, line)
				continue
			}
			inHeader = false
		}

		if trimmed == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if len(block) == 0 {
			blockStart = lineNo
		}
		block = append(block, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	c.comments = comments
	return c, nil
}

func (c *Catalog) addBlock(lines []string, start int) error {
	props, err := parseProperties(lines)
	if err != nil {
		return &ParseError{Line: start, Err: err}
	}
	if len(props) == 0 {
		return nil
	}

	l, err := NewListing(props)
	if err != nil {
		var mk *MissingKeyError
		if errors.As(err, &mk) {
			mk.Line = start
			return mk
		}
		return &ParseError{Line: start, Err: err}
	}
	if _, err := c.Add(l); err != nil {
		return &ParseError{Line: start, Err: err}
	}
	return nil
}

// parseProperties parses property lines: "key = value", "key: value" or
// "key value", with backslash continuations and escapes.
func parseProperties(lines []string) (map[string]string, error) {
	props := make(map[string]string)

	var logical strings.Builder
	continuing := false
	for i, raw := range lines {
		line := raw
		if continuing {
			line = strings.TrimLeft(line, " \t\f")
		} else {
			trimmed := strings.TrimLeft(line, " \t\f")
			if trimmed == "" || trimmed[0] == '#' || trimmed[0] == '!' {
				continue
			}
			line = trimmed
		}

		if endsWithContinuation(line) && i < len(lines)-1 {
			logical.WriteString(line[:len(line)-1])
			continuing = true
			continue
		}
		if endsWithContinuation(line) {
			line = line[:len(line)-1]
		}
		logical.WriteString(line)
		continuing = false

		key, value, err := splitProperty(logical.String())
		logical.Reset()
		if err != nil {
			return nil, err
		}
		props[key] = value
	}
	if logical.Len() > 0 {
		key, value, err := splitProperty(logical.String())
		if err != nil {
			return nil, err
		}
		props[key] = value
	}
	return props, nil
}

func endsWithContinuation(line string) bool {
	n := 0
	for i := len(line) - 1; i >= 0 && line[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

func splitProperty(line string) (key, value string, err error) {
	i := 0
	for i < len(line) {
		ch := line[i]
		if ch == '\\' {
			i += 2
			continue
		}
		if ch == '=' || ch == ':' || ch == ' ' || ch == '\t' || ch == '\f' {
			break
		}
		i++
	}
	if i > len(line) {
		i = len(line)
	}
	rawKey := line[:i]

	rest := strings.TrimLeft(line[i:], " \t\f")
	if rest != "" && (rest[0] == '=' || rest[0] == ':') {
		rest = strings.TrimLeft(rest[1:], " \t\f")
	}

	if key, err = unescape(rawKey); err != nil {
		return "", "", err
	}
	if value, err = unescape(rest); err != nil {
		return "", "", fmt.Errorf("key %q: %w", key, err)
	}
	return key, value, nil
}

// lowSurrogate decodes a \uXXXX escape at s[j:] holding a low surrogate.
func lowSurrogate(s string, j int) (rune, bool) {
	if j+6 > len(s) || s[j] != '\\' || s[j+1] != 'u' {
		return 0, false
	}
	n, err := strconv.ParseUint(s[j+2:j+6], 16, 32)
	if err != nil || n < 0xDC00 || n > 0xDFFF {
		return 0, false
	}
	return rune(n), true
}

func unescape(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' {
			b.WriteByte(ch)
			continue
		}
		i++
		if i >= len(s) {
			break
		}
		switch s[i] {
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+4 >= len(s) {
				return "", fmt.Errorf("malformed \\u escape in %q", s)
			}
			n, err := strconv.ParseUint(s[i+1:i+5], 16, 32)
			if err != nil {
				return "", fmt.Errorf("malformed \\u escape in %q", s)
			}
			r := rune(n)
			i += 4
			if utf16.IsSurrogate(r) {
				r = utf8.RuneError
				if lo, ok := lowSurrogate(s, i+1); ok {
					if pair := utf16.DecodeRune(rune(n), lo); pair != utf8.RuneError {
						r = pair
						i += 6
					}
				}
			} else if !utf8.ValidRune(r) {
				r = utf8.RuneError
			}
			b.WriteRune(r)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}
