// Package xz registers the xz transport codec (".pxz").
package xz

import (
	"io"

	"github.com/ulikunitz/xz"

	"github.com/git-pkgs/catalog/codec"
)

const (
	Name      = "xz"
	Extension = ".pxz"
)

func init() {
	codec.Register(New())
}

// New returns the xz codec.
func New() codec.Codec {
	return &codec.Funcs{
		CodecName: Name,
		Ext:       Extension,
		Reader: func(r io.Reader) (io.ReadCloser, error) {
			xr, err := xz.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(xr), nil
		},
		Writer: func(w io.Writer) (io.WriteCloser, error) {
			return xz.NewWriter(w)
		},
	}
}
