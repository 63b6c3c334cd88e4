// Package zstd registers the Zstandard transport codec (".pzst").
package zstd

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/git-pkgs/catalog/codec"
)

const (
	Name      = "zstd"
	Extension = ".pzst"
)

func init() {
	codec.Register(New())
}

// New returns the zstd codec.
func New() codec.Codec {
	return &codec.Funcs{
		CodecName: Name,
		Ext:       Extension,
		Reader: func(r io.Reader) (io.ReadCloser, error) {
			d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		},
		Writer: func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		},
	}
}
