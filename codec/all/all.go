// Package all imports all supported transport codecs.
//
// Import this package for its side effects to register every codec:
//
//	import (
//		"github.com/git-pkgs/catalog/codec"
//		_ "github.com/git-pkgs/catalog/codec/all"
//	)
//
//	// Now all codecs are available
//	names := codec.Registered()
//	// ["bzip2", "gzip", "lzma", "xz", "zstd"]
package all

import (
	_ "github.com/git-pkgs/catalog/codec/bzip2"
	_ "github.com/git-pkgs/catalog/codec/gzip"
	_ "github.com/git-pkgs/catalog/codec/lzma"
	_ "github.com/git-pkgs/catalog/codec/xz"
	_ "github.com/git-pkgs/catalog/codec/zstd"
)
