// Package gzip registers the gzip transport codec (".pgz").
package gzip

import (
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/git-pkgs/catalog/codec"
)

const (
	Name      = "gzip"
	Extension = ".pgz"
)

func init() {
	codec.Register(New())
}

// New returns the gzip codec.
func New() codec.Codec {
	return &codec.Funcs{
		CodecName: Name,
		Ext:       Extension,
		Reader: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
		Writer: func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriterLevel(w, gzip.BestCompression)
		},
	}
}
