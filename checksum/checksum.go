// Package checksum computes content digests of downloaded bundles.
//
// Digests are a corruption hint, not a security boundary: a Verifier whose
// hash cannot be computed degrades to producing an unavailable Digest, and
// an unavailable Digest matches anything.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ErrFinalized is returned by Update after Sum has been called.
var ErrFinalized = errors.New("checksum already finalized")

// Algorithm names a hash function.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = Algorithm(digest.SHA256)
	SHA384 Algorithm = Algorithm(digest.SHA384)
	SHA512 Algorithm = Algorithm(digest.SHA512)
)

// DefaultAlgorithm is used for bare digests whose length names no algorithm.
const DefaultAlgorithm = MD5

func newHash(alg Algorithm) (hash.Hash, error) {
	switch alg {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	}
	a := digest.Algorithm(alg)
	if !a.Available() {
		return nil, fmt.Errorf("checksum: algorithm %q unavailable", alg)
	}
	return a.Hash(), nil
}

// AlgorithmFor picks the algorithm for an expected digest string. Digests
// of the form "alg:hex" name their algorithm; bare hex is recognised by
// length.
func AlgorithmFor(expected string) (Algorithm, bool) {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return DefaultAlgorithm, false
	}
	if i := strings.IndexByte(expected, ':'); i >= 0 {
		alg := Algorithm(strings.ToLower(expected[:i]))
		if alg == MD5 || alg == SHA1 {
			return alg, true
		}
		d, err := digest.Parse(strings.ToLower(expected))
		if err != nil {
			return alg, false
		}
		return Algorithm(d.Algorithm()), true
	}
	switch len(expected) {
	case 32:
		return MD5, true
	case 40:
		return SHA1, true
	case 64:
		return SHA256, true
	case 96:
		return SHA384, true
	case 128:
		return SHA512, true
	}
	return DefaultAlgorithm, false
}

// Digest is the result of hashing: either a complete sum or unavailable.
type Digest struct {
	alg Algorithm
	sum []byte
}

// Complete returns an available digest.
func Complete(alg Algorithm, sum []byte) Digest {
	return Digest{alg: alg, sum: append([]byte(nil), sum...)}
}

// Unavailable returns a digest that could not be computed.
func Unavailable() Digest {
	return Digest{}
}

// Available reports whether the digest holds a sum.
func (d Digest) Available() bool { return d.sum != nil }

// Algorithm returns the algorithm the sum was computed with.
func (d Digest) Algorithm() Algorithm { return d.alg }

// Hex returns the lowercase hex encoding of the sum, or "".
func (d Digest) Hex() string {
	if !d.Available() {
		return ""
	}
	return hex.EncodeToString(d.sum)
}

func (d Digest) String() string {
	if !d.Available() {
		return "unavailable"
	}
	return string(d.alg) + ":" + d.Hex()
}

// Matches compares the digest with an expected value, ignoring case. It is
// true when either side is missing, or when expected names a different
// algorithm and so cannot be compared.
func (d Digest) Matches(expected string) bool {
	expected = strings.TrimSpace(expected)
	if !d.Available() || expected == "" {
		return true
	}
	if i := strings.IndexByte(expected, ':'); i >= 0 {
		if !strings.EqualFold(expected[:i], string(d.alg)) {
			return true
		}
		expected = expected[i+1:]
	}
	return strings.EqualFold(expected, d.Hex())
}

type state int

const (
	fresh state = iota
	accumulating
	finalized
)

// Verifier computes a digest incrementally.
type Verifier struct {
	alg      Algorithm
	h        hash.Hash
	state    state
	digest   Digest
	degraded bool
}

// New returns a verifier for alg.
func New(alg Algorithm) *Verifier {
	return newVerifier(alg, newHash)
}

// ForExpected returns a verifier using the algorithm of an expected digest.
func ForExpected(expected string) *Verifier {
	alg, _ := AlgorithmFor(expected)
	return New(alg)
}

func newVerifier(alg Algorithm, hashFn func(Algorithm) (hash.Hash, error)) *Verifier {
	v := &Verifier{alg: alg}
	h, err := safeNew(alg, hashFn)
	if err != nil {
		v.degraded = true
		return v
	}
	v.h = h
	return v
}

func safeNew(alg Algorithm, hashFn func(Algorithm) (hash.Hash, error)) (h hash.Hash, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("checksum: %v", r)
		}
	}()
	return hashFn(alg)
}

// Algorithm returns the verifier's algorithm.
func (v *Verifier) Algorithm() Algorithm { return v.alg }

// Degraded reports whether the hash failed and the verifier stopped hashing.
func (v *Verifier) Degraded() bool { return v.degraded }

// Reset discards accumulated input so the verifier can be reused. A
// degraded verifier stays degraded.
func (v *Verifier) Reset() {
	v.state = fresh
	v.digest = Digest{}
	if v.degraded {
		return
	}
	v.guard(func() { v.h.Reset() })
}

// Update adds p to the digest.
func (v *Verifier) Update(p []byte) error {
	if v.state == finalized {
		return ErrFinalized
	}
	v.state = accumulating
	if v.degraded {
		return nil
	}
	v.guard(func() { _, _ = v.h.Write(p) })
	return nil
}

// Write implements io.Writer.
func (v *Verifier) Write(p []byte) (int, error) {
	if err := v.Update(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Sum finalizes the verifier and returns the digest. Later calls return the
// same digest.
func (v *Verifier) Sum() Digest {
	if v.state == finalized {
		return v.digest
	}
	v.state = finalized
	if v.degraded {
		v.digest = Unavailable()
		return v.digest
	}
	var sum []byte
	v.guard(func() { sum = v.h.Sum(nil) })
	if v.degraded || sum == nil {
		v.digest = Unavailable()
		return v.digest
	}
	v.digest = Complete(v.alg, sum)
	return v.digest
}

func (v *Verifier) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			v.degraded = true
		}
	}()
	fn()
}

// File hashes the file at path.
func File(path string, alg Algorithm) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Unavailable(), err
	}
	defer func() { _ = f.Close() }()

	v := New(alg)
	if _, err := io.Copy(v, f); err != nil {
		return Unavailable(), err
	}
	return v.Sum(), nil
}
