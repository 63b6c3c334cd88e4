package update

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/git-pkgs/catalog/install"
	"github.com/git-pkgs/catalog/internal/core"
	"github.com/git-pkgs/catalog/loader"
)

func token(n int, date string) string {
	return fmt.Sprintf("CATALOGUEID{00000000-0000-4000-8000-%012d:%s-0-0-0-0}", n, date)
}

func mustID(t *testing.T, tok string) core.Identifier {
	t.Helper()
	id, err := core.ParseIdentifier(tok)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

const checkCatalog = `id = CATALOGUEID{00000000-0000-4000-8000-000000000001:2021-5-1-0-0-0-0}
url = one.seext
name = One
requires = CATALOGUEID{00000000-0000-4000-8000-000000000005:2021-1-1-0-0-0-0}

id = CATALOGUEID{00000000-0000-4000-8000-000000000002:2021-6-1-0-0-0-0}
url = two.seext
name = Two

id = CATALOGUEID{00000000-0000-4000-8000-000000000003:2021-1-1-0-0-0-0}
url = three.seext
name = Three

hidden = yes
id = CATALOGUEID{00000000-0000-4000-8000-000000000005:2021-1-1-0-0-0-0}
url = lib.seext
name = Library
`

// stubLoader returns prepared results and records the URLs it was asked for.
type stubLoader struct {
	catalogs map[string]string
	errs     map[string]error
	asked    []string
}

func (s *stubLoader) LoadAll(_ context.Context, urls []string, opts loader.LoadOptions) []loader.Result {
	s.asked = append(s.asked, urls...)
	var out []loader.Result
	for _, u := range urls {
		if err, ok := s.errs[u]; ok {
			out = append(out, loader.Result{URL: u, Err: err})
			continue
		}
		c, err := core.Parse(strings.NewReader(s.catalogs[u]), core.WithInstalled(opts.Installed))
		out = append(out, loader.Result{URL: u, Catalog: c, Source: loader.SourceNetwork, Err: err})
	}
	return out
}

type installedMap map[uuid.UUID]core.Identifier

func (m installedMap) InstalledIdentity(id uuid.UUID) (core.Identifier, bool) {
	v, ok := m[id]
	return v, ok
}
func (m installedMap) HasLegacyBundle(string) bool { return false }
func (m installedMap) Snapshot(context.Context) (core.Installed, error) {
	return m, nil
}

type memSeen struct{ newest time.Time }

func (m *memSeen) NewestSeen() time.Time { return m.newest }
func (m *memSeen) RecordSeen(t time.Time) error {
	m.newest = t
	return nil
}

type recordingNotifier struct {
	updates int
	opened  []string
}

func (n *recordingNotifier) UpdatesAvailable(context.Context, *Report) error {
	n.updates++
	return nil
}

func (n *recordingNotifier) OpenCatalog(_ context.Context, url string, _ *Report) error {
	n.opened = append(n.opened, url)
	return nil
}

type recordingInstaller struct {
	flagged []string
}

func (r *recordingInstaller) Install(_ context.Context, c *core.Catalog) (*install.BatchResult, error) {
	for _, l := range c.Flagged() {
		r.flagged = append(r.flagged, l.Name())
	}
	c.ClearFlags()
	return &install.BatchResult{}, nil
}

func names(fs []Finding) []string {
	var out []string
	for _, f := range fs {
		out = append(out, f.Listing.Name())
	}
	return out
}

func setup(t *testing.T) (installedMap, *memSeen) {
	t.Helper()
	installed := installedMap{}
	old := mustID(t, token(1, "2020-1-1"))
	installed[old.UUID] = old
	seen := &memSeen{newest: time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)}
	return installed, seen
}

func TestCheckerNotify(t *testing.T) {
	installed, seen := setup(t)
	ld := &stubLoader{catalogs: map[string]string{"https://a.example/catalog.txt": checkCatalog}}
	n := &recordingNotifier{}
	c := NewChecker(ld,
		WithCatalogs([]string{"https://a.example/catalog.txt", "https://b.example/catalog.txt"}, false),
		WithInstalledSource(installed),
		WithSeenStore(seen),
		WithNotifier(n),
	)

	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if diff := cmp.Diff([]string{"https://a.example/catalog.txt"}, ld.asked); diff != "" {
		t.Errorf("only the primary catalog should be loaded (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"One"}, names(report.Updates)); diff != "" {
		t.Errorf("updates mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Two"}, names(report.New)); diff != "" {
		t.Errorf("new listings mismatch (-want +got):\n%s", diff)
	}
	if want := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC); !seen.newest.Equal(want) {
		t.Errorf("newest seen = %v, want %v", seen.newest, want)
	}
	if n.updates != 1 {
		t.Errorf("notifier called %d times", n.updates)
	}

	// Nothing is new the second time round.
	report, err = c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.New) != 0 {
		t.Errorf("New = %v on second run", names(report.New))
	}
}

func TestCheckerInstallNow(t *testing.T) {
	installed, _ := setup(t)
	ld := &stubLoader{catalogs: map[string]string{"https://a.example/catalog.txt": checkCatalog}}
	inst := &recordingInstaller{}
	c := NewChecker(ld,
		WithCatalogs([]string{"https://a.example/catalog.txt"}, false),
		WithInstalledSource(installed),
		WithAction(InstallNow),
		WithInstaller(inst),
	)
	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"One", "Library"}, inst.flagged); diff != "" {
		t.Errorf("flagged at install time mismatch (-want +got):\n%s", diff)
	}
	if len(report.Installs) != 1 {
		t.Errorf("Installs = %d", len(report.Installs))
	}
}

func TestCheckerOpenBrowser(t *testing.T) {
	installed, _ := setup(t)
	ld := &stubLoader{catalogs: map[string]string{"https://a.example/catalog.txt": checkCatalog}}
	n := &recordingNotifier{}
	c := NewChecker(ld,
		WithCatalogs([]string{"https://a.example/catalog.txt"}, false),
		WithInstalledSource(installed),
		WithAction(OpenBrowser),
		WithNotifier(n),
	)
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"https://a.example/catalog.txt"}, n.opened); diff != "" {
		t.Errorf("opened mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckerAllCatalogs(t *testing.T) {
	ld := &stubLoader{
		catalogs: map[string]string{"https://a.example/catalog.txt": checkCatalog},
		errs:     map[string]error{"https://b.example/catalog.txt": fmt.Errorf("b: %w", core.ErrLocked)},
	}
	c := NewChecker(ld, WithCatalogs([]string{"https://a.example/catalog.txt", "https://b.example/catalog.txt"}, true))
	report, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("one failing catalog failed the check: %v", err)
	}
	if len(ld.asked) != 2 {
		t.Errorf("asked = %v", ld.asked)
	}
	if !report.Locked() || len(report.Errors) != 1 {
		t.Errorf("Locked=%v Errors=%v", report.Locked(), report.Errors)
	}
	if report.HasFindings() {
		t.Error("nothing installed and no seen store, expected no findings")
	}
}

func TestCheckerFailures(t *testing.T) {
	if _, err := NewChecker(&stubLoader{}).Run(context.Background()); !errors.Is(err, ErrNoCatalogs) {
		t.Errorf("Run without catalogs = %v", err)
	}

	down := errors.New("connection refused")
	ld := &stubLoader{errs: map[string]error{"https://a.example/catalog.txt": down}}
	c := NewChecker(ld, WithCatalogs([]string{"https://a.example/catalog.txt"}, false))
	if _, err := c.Run(context.Background()); !errors.Is(err, down) {
		t.Errorf("Run = %v, want the load error", err)
	}
}
