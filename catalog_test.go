package catalog_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/git-pkgs/catalog"
	_ "github.com/git-pkgs/catalog/codec/all"
	"github.com/git-pkgs/catalog/fetch"
	"github.com/git-pkgs/catalog/internal/plugindir"
	"github.com/git-pkgs/catalog/loader"
)

const (
	tokenTools = "CATALOGUEID{00000000-0000-4000-8000-000000000001:2021-1-1-0-0-0-0}"
	tokenLib   = "CATALOGUEID{00000000-0000-4000-8000-000000000002:2021-1-1-0-0-0-0}"
)

func zstdBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte(s))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestEndToEnd(t *testing.T) {
	manifest := strings.Join([]string{
		"# test catalog",
		"id = " + tokenTools,
		"url = bundles/tools.seext.pzst",
		"name = Deck Tools",
		"requires = " + tokenLib,
		"",
		"hidden = yes",
		"id = " + tokenLib,
		"url = bundles/lib.seext",
		"name = Table Library",
		"",
	}, "\n")
	files := map[string][]byte{
		"/se3/catalog.txt":              []byte(manifest),
		"/se3/bundles/tools.seext.pzst": zstdBytes(t, "# "+tokenTools+"\ntools"),
		"/se3/bundles/lib.seext":        []byte("# " + tokenLib + "\nlib"),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	ctx := context.Background()
	dir, err := plugindir.Open(ctx, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f := fetch.NewFetcher(fetch.WithMaxRetries(0))

	ld := catalog.NewLoader(loader.WithFetcher(f), loader.WithInstalled(dir))
	res, err := ld.Load(ctx, srv.URL+"/se3/", catalog.LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c := res.Catalog
	if c.Size() != 1 || c.TrueSize() != 2 {
		t.Fatalf("Size=%d TrueSize=%d", c.Size(), c.TrueSize())
	}
	tools := c.Get(0)
	if got := catalog.Classify(tools, dir, catalog.Host{}); got != catalog.NotInstalled {
		t.Errorf("Classify = %s", got)
	}

	c.SetFlag(0, true)
	if w := catalog.ResolveClosure(c, dir); len(w) != 0 {
		t.Errorf("warnings = %v", w)
	}
	if c.FlaggedCount() != 2 {
		t.Fatalf("closure flagged %d listings", c.FlaggedCount())
	}

	o := catalog.NewOrchestrator(dir)
	batch, err := o.Install(ctx, c)
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if len(batch.Installed()) != 2 {
		t.Fatalf("installed %d listings: %+v", len(batch.Installed()), batch.Results)
	}
	if got := catalog.Classify(tools, dir, catalog.Host{}); got != catalog.UpToDate {
		t.Errorf("Classify after install = %s", got)
	}

	entries := dir.Entries()
	if len(entries) != 2 || entries[0].File != "lib.seext" || entries[1].File != "tools.seext" {
		t.Errorf("plugin dir entries = %+v", entries)
	}
}

func TestFacadeErrors(t *testing.T) {
	_, err := catalog.Parse(strings.NewReader("#lock\n"))
	if !errors.Is(err, catalog.ErrLocked) {
		t.Errorf("Parse = %v, want ErrLocked", err)
	}
	if _, err := catalog.ParseIdentifier("nope"); !errors.Is(err, catalog.ErrInvalidIdentifier) {
		t.Errorf("ParseIdentifier = %v", err)
	}
}

func TestBuildURLsAndPURL(t *testing.T) {
	src := "id = " + tokenTools + "\nurl = bundles/tools.seext\nname = Deck Tools\nversion = 2.1\nhomepage = https://example.org/tools\n"
	base, err := fetch.CatalogURL("https://plugins.example.org/se3/")
	if err != nil {
		t.Fatal(err)
	}
	c, err := catalog.Parse(strings.NewReader(src), catalog.WithBaseURL(base))
	if err != nil {
		t.Fatal(err)
	}
	urls := catalog.BuildURLs(c, c.Get(0))
	if urls["download"] != "https://plugins.example.org/se3/bundles/tools.seext" {
		t.Errorf("download = %q", urls["download"])
	}
	if urls["homepage"] != "https://example.org/tools" {
		t.Errorf("homepage = %q", urls["homepage"])
	}
	p := urls["purl"]
	if !strings.HasPrefix(p, "pkg:generic/deck-tools@2.1?") {
		t.Errorf("purl = %q", p)
	}
	if _, err := catalog.ParsePURL(p); err != nil {
		t.Errorf("ParsePURL(%q) failed: %v", p, err)
	}
	l, err := catalog.FindListing(c, p)
	if err != nil || l != c.Get(0) {
		t.Errorf("FindListing = %v, %v", l, err)
	}
}
