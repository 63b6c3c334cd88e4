package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/git-pkgs/catalog/cache"
	"github.com/git-pkgs/catalog/fetch"
	"github.com/git-pkgs/catalog/internal/core"
)

const catalogBody = `# test catalog
id = CATALOGUEID{00000000-0000-4000-8000-000000000001:2021-1-1-0-0-0-0}
url = one.seext
name = One

id = CATALOGUEID{00000000-0000-4000-8000-000000000002:2021-1-1-0-0-0-0}
url = two.seext
name = Two
`

// countingServer serves body at /catalog.txt and counts requests.
func countingServer(t *testing.T, body *atomic.Value) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/catalog.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newLoader(t *testing.T, primary string) (*Loader, *cache.Cache) {
	t.Helper()
	c := cache.New(filepath.Join(t.TempDir(), "catalog-cache.txt"))
	l := New(
		WithFetcher(fetch.NewFetcher(fetch.WithMaxRetries(0))),
		WithCache(primary, c),
	)
	return l, c
}

func setAge(t *testing.T, path string, age time.Duration) {
	t.Helper()
	ts := time.Now().Add(-age)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFromNetworkWritesCache(t *testing.T) {
	var body atomic.Value
	body.Store(catalogBody)
	srv, hits := countingServer(t, &body)
	l, c := newLoader(t, srv.URL)

	res, err := l.Load(context.Background(), srv.URL, LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.Source != SourceNetwork || res.Catalog.Size() != 2 {
		t.Errorf("Source=%s Size=%d", res.Source, res.Catalog.Size())
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
	data, err := os.ReadFile(c.Path())
	if err != nil {
		t.Fatalf("cache not written: %v", err)
	}
	if string(data) != catalogBody {
		t.Errorf("cache content = %q", data)
	}
	if got := res.Catalog.BaseURL().String(); got != srv.URL+"/catalog.txt" {
		t.Errorf("BaseURL = %s", got)
	}
}

func TestLoadUsesFreshCache(t *testing.T) {
	var body atomic.Value
	body.Store(catalogBody)
	srv, hits := countingServer(t, &body)
	l, c := newLoader(t, srv.URL)

	cached := strings.Replace(catalogBody, "name = One", "name = One (cached)", 1)
	if err := c.Put(context.Background(), []byte(cached)); err != nil {
		t.Fatal(err)
	}
	setAge(t, c.Path(), time.Hour)

	res, err := l.Load(context.Background(), srv.URL, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceCache || hits.Load() != 0 {
		t.Errorf("Source=%s hits=%d, want cache without network", res.Source, hits.Load())
	}
	if res.Catalog.Get(0).Name() != "One (cached)" {
		t.Errorf("Name = %q", res.Catalog.Get(0).Name())
	}
}

func TestLoadStaleCacheRefreshes(t *testing.T) {
	var body atomic.Value
	body.Store(catalogBody)
	srv, hits := countingServer(t, &body)
	l, c := newLoader(t, srv.URL)

	if err := c.Put(context.Background(), []byte("# old\n")); err != nil {
		t.Fatal(err)
	}
	setAge(t, c.Path(), 3*time.Hour)

	res, err := l.Load(context.Background(), srv.URL, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceNetwork || hits.Load() != 1 {
		t.Errorf("Source=%s hits=%d", res.Source, hits.Load())
	}
	data, _ := os.ReadFile(c.Path())
	if string(data) != catalogBody {
		t.Error("stale cache was not rewritten")
	}
	age, err := c.Age()
	if err != nil || age > time.Minute {
		t.Errorf("cache age after refresh = %v, %v", age, err)
	}
}

func TestLoadCorruptCacheFallsThrough(t *testing.T) {
	var body atomic.Value
	body.Store(catalogBody)
	srv, hits := countingServer(t, &body)
	l, c := newLoader(t, srv.URL)

	if err := c.Put(context.Background(), []byte("id = nope\nurl = a\nname = A\n")); err != nil {
		t.Fatal(err)
	}
	res, err := l.Load(context.Background(), srv.URL, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceNetwork || hits.Load() != 1 {
		t.Errorf("Source=%s hits=%d", res.Source, hits.Load())
	}
}

func TestLoadLockedKeepsCache(t *testing.T) {
	var body atomic.Value
	body.Store("#lock\n")
	srv, _ := countingServer(t, &body)
	l, c := newLoader(t, srv.URL)

	if err := c.Put(context.Background(), []byte(catalogBody)); err != nil {
		t.Fatal(err)
	}
	setAge(t, c.Path(), 5*time.Hour)

	_, err := l.Load(context.Background(), srv.URL, LoadOptions{})
	if !errors.Is(err, core.ErrLocked) {
		t.Fatalf("Load = %v, want ErrLocked", err)
	}
	data, _ := os.ReadFile(c.Path())
	if string(data) != catalogBody {
		t.Error("locked catalog overwrote the cache")
	}
}

func TestLoadNoCache(t *testing.T) {
	var body atomic.Value
	body.Store(catalogBody)
	srv, hits := countingServer(t, &body)
	l, c := newLoader(t, srv.URL)

	if err := c.Put(context.Background(), []byte("# previous\n")); err != nil {
		t.Fatal(err)
	}
	res, err := l.Load(context.Background(), srv.URL, LoadOptions{NoCache: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceNetwork || hits.Load() != 1 {
		t.Errorf("Source=%s hits=%d", res.Source, hits.Load())
	}
	data, _ := os.ReadFile(c.Path())
	if string(data) != "# previous\n" {
		t.Error("NoCache load rewrote the snapshot")
	}
}

func TestLoadSecondaryNotCached(t *testing.T) {
	var body atomic.Value
	body.Store(catalogBody)
	primary, _ := countingServer(t, &body)
	secondary, hits := countingServer(t, &body)
	l, c := newLoader(t, primary.URL)

	for range 2 {
		if _, err := l.Load(context.Background(), secondary.URL, LoadOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if hits.Load() != 2 {
		t.Errorf("secondary hits = %d, want 2", hits.Load())
	}
	if _, err := os.Stat(c.Path()); !os.IsNotExist(err) {
		t.Error("secondary catalog was cached")
	}
}

func TestLoadAll(t *testing.T) {
	var body atomic.Value
	body.Store(catalogBody)
	good, _ := countingServer(t, &body)
	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	l := New(WithFetcher(fetch.NewFetcher(fetch.WithMaxRetries(0))), WithConcurrency(2))
	urls := []string{good.URL, missing.URL, good.URL + "/catalog.txt", "relative/path"}
	results := l.LoadAll(context.Background(), urls, LoadOptions{})

	if len(results) != len(urls) {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Err != nil || results[0].Catalog.Size() != 2 {
		t.Errorf("result 0 = %+v", results[0])
	}
	if !errors.Is(results[1].Err, fetch.ErrNotFound) {
		t.Errorf("result 1 err = %v, want ErrNotFound", results[1].Err)
	}
	if results[2].Err != nil {
		t.Errorf("result 2 err = %v", results[2].Err)
	}
	if results[3].Err == nil {
		t.Error("relative URL loaded")
	}
}

func TestLoadDependsHiddenWithoutInstalls(t *testing.T) {
	var body atomic.Value
	body.Store(catalogBody + "\nhidden = depends\nid = CATALOGUEID{00000000-0000-4000-8000-000000000003:2021-1-1-0-0-0-0}\nurl = three.seext\nname = Three\n")
	srv, _ := countingServer(t, &body)
	l := New(WithFetcher(fetch.NewFetcher(fetch.WithMaxRetries(0))))

	res, err := l.Load(context.Background(), srv.URL, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Catalog.Size() != 2 || res.Catalog.TrueSize() != 3 {
		t.Errorf("Size=%d TrueSize=%d", res.Catalog.Size(), res.Catalog.TrueSize())
	}
}
