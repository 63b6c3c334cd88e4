package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
	"testing"
)

func TestChunkingDeterminism(t *testing.T) {
	data := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog. ", 50))

	whole := New(SHA256)
	if err := whole.Update(data); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	want := whole.Sum()

	for _, chunk := range []int{1, 3, 7, 64, 1000} {
		v := New(SHA256)
		for i := 0; i < len(data); i += chunk {
			end := i + chunk
			if end > len(data) {
				end = len(data)
			}
			if err := v.Update(data[i:end]); err != nil {
				t.Fatalf("Update failed: %v", err)
			}
		}
		if got := v.Sum(); got.Hex() != want.Hex() {
			t.Errorf("chunk %d: digest = %s, want %s", chunk, got, want)
		}
	}

	sum := sha256.Sum256(data)
	if want.Hex() != hex.EncodeToString(sum[:]) {
		t.Errorf("digest = %s, want sha256 of input", want)
	}
}

func TestMatchesIgnoresCase(t *testing.T) {
	sum := md5.Sum([]byte("bundle"))
	d := Complete(MD5, sum[:])
	lower := hex.EncodeToString(sum[:])

	tests := []struct {
		expected string
		want     bool
	}{
		{lower, true},
		{strings.ToUpper(lower), true},
		{"md5:" + strings.ToUpper(lower), true},
		{"MD5:" + lower, true},
		{"00000000000000000000000000000000", false},
		{"", true},
		{"sha256:" + strings.Repeat("a", 64), true},
	}
	for _, tt := range tests {
		if got := d.Matches(tt.expected); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.expected, got, tt.want)
		}
	}
}

func TestUnavailableMatchesEverything(t *testing.T) {
	d := Unavailable()
	for _, expected := range []string{"", "abc", strings.Repeat("f", 32)} {
		if !d.Matches(expected) {
			t.Errorf("Unavailable().Matches(%q) = false", expected)
		}
	}
	if d.String() != "unavailable" {
		t.Errorf("String() = %q", d.String())
	}
}

func TestUpdateAfterSum(t *testing.T) {
	v := New(MD5)
	_ = v.Update([]byte("abc"))
	first := v.Sum()

	if err := v.Update([]byte("more")); !errors.Is(err, ErrFinalized) {
		t.Errorf("Update after Sum = %v, want ErrFinalized", err)
	}
	if second := v.Sum(); second.Hex() != first.Hex() {
		t.Errorf("second Sum = %s, want %s", second, first)
	}

	v.Reset()
	if err := v.Update([]byte("abc")); err != nil {
		t.Fatalf("Update after Reset: %v", err)
	}
	if again := v.Sum(); again.Hex() != first.Hex() {
		t.Errorf("Sum after Reset = %s, want %s", again, first)
	}
}

type panicHash struct{ hash.Hash }

func (panicHash) Write([]byte) (int, error) { panic("hash failure") }

func TestDegradedVerifier(t *testing.T) {
	t.Run("unavailable algorithm", func(t *testing.T) {
		v := newVerifier("whirlpool", func(Algorithm) (hash.Hash, error) {
			return nil, errors.New("no such hash")
		})
		if !v.Degraded() {
			t.Fatal("expected degraded verifier")
		}
		if err := v.Update([]byte("data")); err != nil {
			t.Fatalf("Update on degraded verifier: %v", err)
		}
		d := v.Sum()
		if d.Available() {
			t.Error("degraded verifier produced a digest")
		}
		if !d.Matches("deadbeef") {
			t.Error("degraded digest should match anything")
		}
	})

	t.Run("hash panics mid-stream", func(t *testing.T) {
		v := newVerifier(MD5, func(Algorithm) (hash.Hash, error) {
			return panicHash{md5.New()}, nil
		})
		if err := v.Update([]byte("data")); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if !v.Degraded() {
			t.Fatal("expected verifier to degrade after panic")
		}
		if v.Sum().Available() {
			t.Error("expected unavailable digest")
		}
	})
}

func TestAlgorithmFor(t *testing.T) {
	tests := []struct {
		expected string
		want     Algorithm
		ok       bool
	}{
		{strings.Repeat("a", 32), MD5, true},
		{strings.Repeat("a", 40), SHA1, true},
		{strings.Repeat("a", 64), SHA256, true},
		{strings.Repeat("a", 128), SHA512, true},
		{"sha256:" + strings.Repeat("a", 64), SHA256, true},
		{"SHA512:" + strings.Repeat("b", 128), SHA512, true},
		{"md5:" + strings.Repeat("c", 32), MD5, true},
		{"", DefaultAlgorithm, false},
		{"xyz", DefaultAlgorithm, false},
	}
	for _, tt := range tests {
		got, ok := AlgorithmFor(tt.expected)
		if got != tt.want || ok != tt.ok {
			t.Errorf("AlgorithmFor(%q) = %q, %v; want %q, %v", tt.expected, got, ok, tt.want, tt.ok)
		}
	}
}

func TestWrongDigestRejected(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		alg      Algorithm
	}{
		{"sha256", strings.Repeat("ab", 32), SHA256},
		{"sha384", "sha384:" + strings.Repeat("ab", 48), SHA384},
		{"sha512 bare", strings.Repeat("ab", 64), SHA512},
		{"sha512 prefixed", "sha512:" + strings.Repeat("ab", 64), SHA512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ForExpected(tt.expected)
			if v.Degraded() || v.Algorithm() != tt.alg {
				t.Fatalf("ForExpected = %s degraded=%v, want %s", v.Algorithm(), v.Degraded(), tt.alg)
			}
			if err := v.Update([]byte("corrupted bundle")); err != nil {
				t.Fatal(err)
			}
			d := v.Sum()
			if !d.Available() {
				t.Fatal("digest unavailable")
			}
			if d.Matches(tt.expected) {
				t.Errorf("corrupted bytes matched %s", tt.expected)
			}
		})
	}
}
