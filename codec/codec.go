// Package codec provides the transport compression schemes bundles may be
// published with. A codec is chosen purely by file extension, so new codecs
// can be added to clients without coordinating with catalog servers as long
// as their extensions stay distinct.
//
// Codecs register themselves when their package is imported:
//
//	import (
//		"github.com/git-pkgs/catalog/codec"
//		_ "github.com/git-pkgs/catalog/codec/all"
//	)
//
//	c, ok := codec.ForFile("deck-tools.seext.pgz")
package codec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrCompressUnsupported is returned by codecs that can only decompress.
var ErrCompressUnsupported = errors.New("codec: compression not supported")

// Codec compresses and decompresses one transport format.
type Codec interface {
	// Name is a short identifier such as "gzip".
	Name() string

	// Extension is the file suffix, including the dot, e.g. ".pgz".
	Extension() string

	NewReader(r io.Reader) (io.ReadCloser, error)
	NewWriter(w io.Writer) (io.WriteCloser, error)
}

var (
	byExt  = make(map[string]Codec)
	byName = make(map[string]Codec)
	mu     sync.RWMutex
)

// Register adds a codec. A codec registered later replaces one with the
// same name or extension.
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	byExt[strings.ToLower(c.Extension())] = c
	byName[c.Name()] = c
}

// ForFile returns the codec whose extension ends the file name.
func ForFile(name string) (Codec, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return nil, false
	}
	mu.RLock()
	defer mu.RUnlock()
	c, ok := byExt[ext]
	return c, ok
}

// ForName returns the codec registered under name.
func ForName(name string) (Codec, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := byName[name]
	return c, ok
}

// Registered returns the names of all registered codecs.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Strip removes a codec extension from a file name, if present.
func Strip(name string) string {
	if c, ok := ForFile(name); ok {
		return name[:len(name)-len(c.Extension())]
	}
	return name
}

// Decompress writes the decompressed form of src into dstDir and returns
// the path of the result. If src has no codec extension it is returned
// unchanged.
func Decompress(src, dstDir string) (string, error) {
	c, ok := ForFile(src)
	if !ok {
		return src, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer func() { _ = in.Close() }()

	r, err := c.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("%s: opening %s: %w", c.Name(), filepath.Base(src), err)
	}
	defer func() { _ = r.Close() }()

	dst := filepath.Join(dstDir, Strip(filepath.Base(src)))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("%s: decompressing %s: %w", c.Name(), filepath.Base(src), err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// Compress writes src to dst through c.
func Compress(src, dst string, c Codec) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	w, err := c.NewWriter(out)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := w.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

// Funcs is a Codec built from functions.
type Funcs struct {
	CodecName string
	Ext       string
	Reader    func(io.Reader) (io.ReadCloser, error)
	Writer    func(io.Writer) (io.WriteCloser, error) // nil if decompress only
}

func (f *Funcs) Name() string      { return f.CodecName }
func (f *Funcs) Extension() string { return f.Ext }

func (f *Funcs) NewReader(r io.Reader) (io.ReadCloser, error) {
	return f.Reader(r)
}

func (f *Funcs) NewWriter(w io.Writer) (io.WriteCloser, error) {
	if f.Writer == nil {
		return nil, fmt.Errorf("%s: %w", f.CodecName, ErrCompressUnsupported)
	}
	return f.Writer(w)
}
