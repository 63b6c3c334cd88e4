// Package lzma registers the raw LZMA transport codec (".plzma").
package lzma

import (
	"io"

	"github.com/ulikunitz/xz/lzma"

	"github.com/git-pkgs/catalog/codec"
)

const (
	Name      = "lzma"
	Extension = ".plzma"
)

func init() {
	codec.Register(New())
}

// New returns the lzma codec.
func New() codec.Codec {
	return &codec.Funcs{
		CodecName: Name,
		Ext:       Extension,
		Reader: func(r io.Reader) (io.ReadCloser, error) {
			lr, err := lzma.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(lr), nil
		},
		Writer: func(w io.Writer) (io.WriteCloser, error) {
			return lzma.NewWriter(w)
		},
	}
}
