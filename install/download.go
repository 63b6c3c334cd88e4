package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/git-pkgs/catalog/checksum"
	"github.com/git-pkgs/catalog/fetch"
	"github.com/git-pkgs/catalog/internal/core"
)

const chunkSize = 32 << 10

// download streams the bundle into dir, hashing as it goes. Cancellation
// is checked before every chunk; a cancelled or failed download leaves no
// file behind.
func (o *Orchestrator) download(ctx context.Context, c *core.Catalog, info *fetch.ArtifactInfo, dir string, declared int64) (string, checksum.Digest, error) {
	artifact, err := o.fetcher.Fetch(ctx, info.URL)
	if err != nil {
		if cancelled(ctx, c) {
			return "", checksum.Unavailable(), ErrCancelled
		}
		return "", checksum.Unavailable(), fmt.Errorf("downloading %s: %w", info.URL, err)
	}
	defer func() { _ = artifact.Body.Close() }()

	total := artifact.Size
	if total < 0 {
		total = declared
	}

	path := filepath.Join(dir, info.Filename)
	f, err := os.Create(path)
	if err != nil {
		return "", checksum.Unavailable(), err
	}
	discard := func(err error) (string, checksum.Digest, error) {
		_ = f.Close()
		_ = os.Remove(path)
		return "", checksum.Unavailable(), err
	}

	v := checksum.ForExpected(info.Integrity)
	buf := make([]byte, chunkSize)
	var done int64
	for {
		if cancelled(ctx, c) {
			return discard(ErrCancelled)
		}
		n, rerr := artifact.Body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return discard(err)
			}
			_ = v.Update(buf[:n])
			done += int64(n)
			o.progress.Bytes(done, total)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if cancelled(ctx, c) {
				return discard(ErrCancelled)
			}
			return discard(fmt.Errorf("downloading %s: %w", info.URL, rerr))
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", checksum.Unavailable(), err
	}
	return path, v.Sum(), nil
}
