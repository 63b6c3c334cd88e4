package fetch

import (
	"errors"
	"net/url"
	"testing"

	"github.com/git-pkgs/catalog/internal/core"
)

const testID = "CATALOGUEID{0b7c1e2a-4d3f-4a51-9b8e-2f6d5c4b3a21:2021-3-14-9-26-53-0}"

func TestResolve(t *testing.T) {
	base, _ := url.Parse("https://plugins.example.org/se3/catalog.txt")
	cat := core.NewCatalog(core.WithBaseURL(base))
	r := NewResolver(cat)

	tests := []struct {
		name     string
		url      string
		digest   string
		wantURL  string
		wantFile string
	}{
		{"relative", "bundles/deck-tools.seext.pgz", "", "https://plugins.example.org/se3/bundles/deck-tools.seext.pgz", "deck-tools.seext.pgz"},
		{"root relative", "/mirror/x.seplugin", "", "https://plugins.example.org/mirror/x.seplugin", "x.seplugin"},
		{"absolute", "https://cdn.example.net/a/b.seext", "abc123", "https://cdn.example.net/a/b.seext", "b.seext"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props := map[string]string{"id": testID, "url": tt.url, "name": "Deck Tools"}
			if tt.digest != "" {
				props["digest"] = tt.digest
			}
			l, err := core.NewListing(props)
			if err != nil {
				t.Fatal(err)
			}
			info, err := r.Resolve(l)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if info.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", info.URL, tt.wantURL)
			}
			if info.Filename != tt.wantFile {
				t.Errorf("Filename = %q, want %q", info.Filename, tt.wantFile)
			}
			if info.Integrity != tt.digest {
				t.Errorf("Integrity = %q, want %q", info.Integrity, tt.digest)
			}
		})
	}
}

func TestResolveWithoutBase(t *testing.T) {
	r := NewResolver(core.NewCatalog())
	l, err := core.NewListing(map[string]string{"id": testID, "url": "x.seext", "name": "X"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(l); err == nil {
		t.Error("expected error resolving a relative url without a base")
	}
}

func TestResolveDirectoryURL(t *testing.T) {
	base, _ := url.Parse("https://plugins.example.org/se3/catalog.txt")
	r := NewResolver(core.NewCatalog(core.WithBaseURL(base)))
	l, err := core.NewListing(map[string]string{"id": testID, "url": "https://plugins.example.org/", "name": "X"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(l); !errors.Is(err, ErrNoDownloadURL) {
		t.Errorf("Resolve = %v, want ErrNoDownloadURL", err)
	}
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/se3/bundles/deck.seext", "deck.seext"},
		{"/se3/bundles/..", ""},
		{"/se3/bundles/.", ""},
		{"/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := filenameFromURL(&url.URL{Path: tt.path}); got != tt.want {
			t.Errorf("filenameFromURL(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCatalogURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://plugins.example.org/se3/catalog.txt", "https://plugins.example.org/se3/catalog.txt", false},
		{"https://plugins.example.org/se3/beta.TXT", "https://plugins.example.org/se3/beta.TXT", false},
		{"https://plugins.example.org/se3", "https://plugins.example.org/se3/catalog.txt", false},
		{"https://plugins.example.org/se3/", "https://plugins.example.org/se3/catalog.txt", false},
		{"  file:///srv/catalog/  ", "file:///srv/catalog/catalog.txt", false},
		{"plugins.example.org/se3", "", true},
	}
	for _, tt := range tests {
		got, err := CatalogURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("CatalogURL(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("CatalogURL(%q) failed: %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("CatalogURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
