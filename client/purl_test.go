package client

import (
	"strings"
	"testing"

	"github.com/git-pkgs/catalog/internal/core"
)

const testToken = "CATALOGUEID{00000000-0000-4000-8000-000000000001:2021-1-1-0-0-0-0}"

func TestNewPURL(t *testing.T) {
	l, err := core.NewListing(map[string]string{
		core.KeyID:      testToken,
		core.KeyURL:     "bundles/tools.seext",
		core.KeyName:    "Deck Tools",
		core.KeyVersion: "2.1",
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPURL(l, "https://plugins.example.org/bundles/tools.seext")
	if err != nil {
		t.Fatalf("NewPURL failed: %v", err)
	}
	if p.Type != "generic" || PURLType != "generic" {
		t.Errorf("Type = %q, PURLType = %q", p.Type, PURLType)
	}
	s := p.String()
	if !strings.HasPrefix(s, "pkg:generic/deck-tools@2.1?") {
		t.Errorf("String = %q", s)
	}

	back, err := ParsePURL(s)
	if err != nil {
		t.Fatalf("ParsePURL(%q) failed: %v", s, err)
	}
	if id, ok := back.CatalogID(); !ok || id != l.ID().UUID {
		t.Errorf("CatalogID = %v, %v", id, ok)
	}
}
