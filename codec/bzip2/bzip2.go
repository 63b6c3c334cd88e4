// Package bzip2 registers the bzip2 transport codec (".pbz2"). Bundles can
// be decompressed but not compressed with it.
package bzip2

import (
	"compress/bzip2"
	"io"

	"github.com/git-pkgs/catalog/codec"
)

const (
	Name      = "bzip2"
	Extension = ".pbz2"
)

func init() {
	codec.Register(New())
}

// New returns the bzip2 codec.
func New() codec.Codec {
	return &codec.Funcs{
		CodecName: Name,
		Ext:       Extension,
		Reader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(bzip2.NewReader(r)), nil
		},
	}
}
