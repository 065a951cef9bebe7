package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robso86/jsonschema-mapper/internal/importer"
	"github.com/robso86/jsonschema-mapper/internal/source"
	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
	"github.com/robso86/jsonschema-mapper/pkg/metrics"
)

type docReader struct {
	mu    sync.Mutex
	docs  map[string]string
	reads map[string]int
	gate  chan struct{}
}

func newDocReader(docs map[string]string) *docReader {
	return &docReader{docs: docs, reads: map[string]int{}}
}

func (r *docReader) ReadResource(ctx context.Context, uri string) ([]byte, error) {
	r.mu.Lock()
	r.reads[uri]++
	gate := r.gate
	raw, ok := r.docs[uri]
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, importerrors.ErrResourceNotFound
	}
	return []byte(raw), nil
}

func (r *docReader) count(uri string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[uri]
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFetchSchemaEmptyURI(t *testing.T) {
	m := New(newDocReader(nil))
	imp, err := m.FetchSchema(context.Background(), "")
	if imp != nil || !errors.Is(err, importerrors.ErrEmptyURI) {
		t.Fatalf("FetchSchema(\"\") = %v, %v", imp, err)
	}
	if _, err := m.GetImporter(""); !errors.Is(err, importerrors.ErrEmptyURI) {
		t.Fatalf("GetImporter(\"\") err = %v", err)
	}
}

func TestFetchSchemaConcurrentRequestsShareOneRead(t *testing.T) {
	const uri = "http://x/a.json"
	r := newDocReader(map[string]string{uri: `{"properties":{"a":{"type":"string"}}}`})
	r.gate = make(chan struct{})
	m := New(r)
	ctx := testContext(t)

	const callers = 8
	results := make([]*importer.Importer, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.FetchSchema(ctx, uri)
		}(i)
	}
	for r.count(uri) == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(r.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different importer", i)
		}
	}
	if n := r.count(uri); n != 1 {
		t.Fatalf("resource read %d times", n)
	}
	if !results[0].IsLoaded() {
		t.Fatal("importer not loaded")
	}
	if st := m.Stats(); st.Reads != 1 || st.Cached != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestFetchSchemaCachesFailure(t *testing.T) {
	r := newDocReader(map[string]string{})
	m := New(r)
	ctx := testContext(t)

	_, err := m.FetchSchema(ctx, "http://x/missing.json")
	if !errors.Is(err, importerrors.ErrResourceNotFound) {
		t.Fatalf("err = %v", err)
	}
	if importerrors.KindOf(err) != importerrors.KindLoad {
		t.Fatalf("kind = %v", importerrors.KindOf(err))
	}
	_, err = m.FetchSchema(ctx, "http://x/missing.json#/definitions/a")
	if !errors.Is(err, importerrors.ErrResourceNotFound) {
		t.Fatalf("second err = %v", err)
	}
	if n := r.count("http://x/missing.json"); n != 1 {
		t.Fatalf("read %d times", n)
	}
	if st := m.Stats(); st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestFetchSchemaMalformedDocument(t *testing.T) {
	m := New(newDocReader(map[string]string{"http://x/a.json": `{"properties":`}))
	_, err := m.FetchSchema(testContext(t), "http://x/a.json")
	if err == nil || importerrors.KindOf(err) != importerrors.KindLoad {
		t.Fatalf("err = %v", err)
	}
}

func TestCrossDocumentReference(t *testing.T) {
	r := newDocReader(map[string]string{
		"http://x/a.json": `{"id":"http://x/a.json","properties":{
			"owner":{"$ref":"http://x/b.json#/definitions/person","title":"Owner"}}}`,
		"http://x/b.json": `{"id":"http://x/b.json","definitions":{
			"person":{"type":"object","properties":{"name":{"$ref":"http://x/c.json#/definitions/name"}}}}}`,
		"http://x/c.json": `{"definitions":{"name":{"type":"string","maxLength":40}}}`,
	})
	m := New(r)
	imp, err := m.FetchSchema(testContext(t), "http://x/a.json")
	if err != nil {
		t.Fatal(err)
	}
	owner := imp.Model().Properties["owner"].(map[string]any)
	if owner["title"] != "Owner" || owner["type"] != "object" {
		t.Fatalf("owner = %#v", owner)
	}
	name := owner["properties"].(map[string]any)["name"].(map[string]any)
	if name["type"] != "string" {
		t.Fatalf("name = %#v", name)
	}
	if m.Len() != 3 {
		t.Fatalf("cached %d documents", m.Len())
	}
	for _, uri := range []string{"http://x/a.json", "http://x/b.json", "http://x/c.json"} {
		if r.count(uri) != 1 {
			t.Fatalf("%s read %d times", uri, r.count(uri))
		}
	}
}

func TestReferenceCycleCompletes(t *testing.T) {
	r := newDocReader(map[string]string{
		"http://x/a.json": `{"definitions":{"x":{"type":"string"}},"properties":{"b":{"$ref":"http://x/b.json#/definitions/y"}}}`,
		"http://x/b.json": `{"definitions":{"y":{"type":"integer"}},"properties":{"a":{"$ref":"http://x/a.json#/definitions/x"}}}`,
	})
	m := New(r)
	imp, err := m.FetchSchema(testContext(t), "http://x/a.json")
	if err != nil {
		t.Fatal(err)
	}
	if imp.Model().Properties["b"].(map[string]any)["type"] != "integer" {
		t.Fatalf("b = %#v", imp.Model().Properties["b"])
	}
	b, err := m.FetchSchema(testContext(t), "http://x/b.json")
	if err != nil {
		t.Fatal(err)
	}
	// b was imported on behalf of a, so its reference back to a is cut.
	if len(b.Model().Properties["a"].(map[string]any)) != 0 {
		t.Fatalf("a = %#v", b.Model().Properties["a"])
	}
}

// Two callers importing documents that reference each other must not
// leave each import waiting on the other.
func TestConcurrentReferenceCycleCompletes(t *testing.T) {
	r := newDocReader(map[string]string{
		"http://x/a.json": `{"definitions":{"x":{"type":"string"}},"properties":{"b":{"$ref":"http://x/b.json#/definitions/y"}}}`,
		"http://x/b.json": `{"definitions":{"y":{"type":"integer"}},"properties":{"a":{"$ref":"http://x/a.json#/definitions/x"}}}`,
	})
	r.gate = make(chan struct{})
	m := New(r)

	type result struct {
		imp *importer.Importer
		err error
	}
	fetch := func(uri string) <-chan result {
		ch := make(chan result, 1)
		go func() {
			imp, err := m.FetchSchema(context.Background(), uri)
			ch <- result{imp, err}
		}()
		return ch
	}
	aCh, bCh := fetch("http://x/a.json"), fetch("http://x/b.json")
	time.Sleep(10 * time.Millisecond)
	close(r.gate)

	var got [2]result
	for i, ch := range []<-chan result{aCh, bCh} {
		select {
		case got[i] = <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("imports referencing each other never completed")
		}
		if got[i].err != nil {
			t.Fatal(got[i].err)
		}
	}

	aRef := got[0].imp.Model().Properties["b"].(map[string]any)
	bRef := got[1].imp.Model().Properties["a"].(map[string]any)
	cut := 0
	for _, ref := range []map[string]any{aRef, bRef} {
		if len(ref) == 0 {
			cut++
		}
	}
	if cut != 1 {
		t.Fatalf("expected exactly one reference cut, got a.b = %#v, b.a = %#v", aRef, bRef)
	}
}

func TestFetchSchemaDirectCycle(t *testing.T) {
	m := New(newDocReader(nil))
	ctx := withImportChain(context.Background(), "http://x/a.json")
	_, err := m.FetchSchema(ctx, "http://x/a.json#/definitions/y")
	if !errors.Is(err, importerrors.ErrReferenceCycle) {
		t.Fatalf("err = %v", err)
	}
}

func TestFetchSchemaWaiterGivesUp(t *testing.T) {
	const uri = "http://x/slow.json"
	r := newDocReader(map[string]string{uri: `{"type":"object"}`})
	r.gate = make(chan struct{})
	m := New(r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.FetchSchema(ctx, uri)
	if !errors.Is(err, importerrors.ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}

	close(r.gate)
	imp, err := m.FetchSchema(testContext(t), uri)
	if err != nil {
		t.Fatalf("import did not survive the cancelled caller: %v", err)
	}
	if !imp.IsLoaded() || r.count(uri) != 1 {
		t.Fatalf("loaded=%v reads=%d", imp.IsLoaded(), r.count(uri))
	}
}

func TestGetImporterOverwrites(t *testing.T) {
	const uri = "http://x/a.json"
	m := New(newDocReader(map[string]string{uri: `{"properties":{"old":{"type":"string"}}}`}))
	ctx := testContext(t)
	first, err := m.FetchSchema(ctx, uri)
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := m.GetImporter(uri)
	if err != nil {
		t.Fatal(err)
	}
	if fresh == first || fresh.ReadyState() != importer.Uninitialized {
		t.Fatal("GetImporter reused the cached importer")
	}
	if err := fresh.Load(ctx, []byte(`{"properties":{"new":{"type":"string"}}}`)); err != nil {
		t.Fatal(err)
	}
	got, err := m.FetchSchema(ctx, uri)
	if err != nil {
		t.Fatal(err)
	}
	if got != fresh || got.Model().Properties["new"] == nil {
		t.Fatalf("cache still holds the old import")
	}
}

func TestImport(t *testing.T) {
	m := New(newDocReader(map[string]string{
		"http://x/b.json": `{"definitions":{"n":{"type":"number"}}}`,
	}))
	imp, err := m.Import(testContext(t), "http://x/a.json", []byte(`{"properties":{"v":{"$ref":"http://x/b.json#/definitions/n"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if imp.Model().Properties["v"].(map[string]any)["type"] != "number" {
		t.Fatalf("v = %#v", imp.Model().Properties["v"])
	}
}

func TestEvict(t *testing.T) {
	const uri = "http://x/a.json"
	r := newDocReader(map[string]string{uri: `{}`})
	m := New(r)
	ctx := testContext(t)
	if _, err := m.FetchSchema(ctx, uri); err != nil {
		t.Fatal(err)
	}
	if !m.Evict(uri + "#frag") {
		t.Fatal("Evict reported nothing removed")
	}
	if m.Evict(uri) {
		t.Fatal("second Evict removed something")
	}
	if _, err := m.FetchSchema(ctx, uri); err != nil {
		t.Fatal(err)
	}
	if r.count(uri) != 2 {
		t.Fatalf("reads = %d", r.count(uri))
	}
}

func TestListenerAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	mt := metrics.NewWithRegisterer(reg)

	var mu sync.Mutex
	completed := map[string]int{}
	listener := ListenerFunc(func(uri string, imp *importer.Importer) {
		mu.Lock()
		completed[uri]++
		mu.Unlock()
	})
	r := newDocReader(map[string]string{
		"http://x/a.json": `{"properties":{"p":{"$ref":"http://x/b.json#/definitions/q"},"r":{"$ref":"#/nope"}}}`,
		"http://x/b.json": `{"definitions":{"q":{"type":"string"}}}`,
	})
	m := New(r, WithListener(listener), WithMetrics(mt))
	ctx := testContext(t)
	if _, err := m.FetchSchema(ctx, "http://x/a.json"); err != nil {
		t.Fatal(err)
	}
	m.FetchSchema(ctx, "http://x/missing.json")

	// The listener runs after Done closes; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(completed)
		mu.Unlock()
		if n == 3 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, uri := range []string{"http://x/a.json", "http://x/b.json", "http://x/missing.json"} {
		if completed[uri] != 1 {
			t.Fatalf("completed = %#v", completed)
		}
	}
	if v := testutil.ToFloat64(mt.RefResolutionsTotal.WithLabelValues("resolved")); v != 1 {
		t.Fatalf("resolved = %v", v)
	}
	if v := testutil.ToFloat64(mt.RefResolutionsTotal.WithLabelValues("unresolved")); v != 1 {
		t.Fatalf("unresolved = %v", v)
	}
	if v := testutil.ToFloat64(mt.ResourceReadsTotal.WithLabelValues("not_found")); v != 1 {
		t.Fatalf("not_found reads = %v", v)
	}
	if v := testutil.ToFloat64(mt.CachedImporters); v != 3 {
		t.Fatalf("cached gauge = %v", v)
	}
}

func TestPreflightRejectsDocument(t *testing.T) {
	check := func(doc any) error {
		if doc.(map[string]any)["type"] == "bogus" {
			return errors.New("bad type")
		}
		return nil
	}
	m := New(newDocReader(map[string]string{
		"http://x/ok.json":  `{"type":"object"}`,
		"http://x/bad.json": `{"type":"bogus"}`,
	}), WithPreflight(check))
	ctx := testContext(t)
	if _, err := m.FetchSchema(ctx, "http://x/ok.json"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.FetchSchema(ctx, "http://x/bad.json"); err == nil {
		t.Fatal("preflight not applied")
	}
}

func TestReadTimeout(t *testing.T) {
	r := newDocReader(map[string]string{"http://x/a.json": `{}`})
	r.gate = make(chan struct{})
	defer close(r.gate)
	m := New(r, WithReadTimeout(10*time.Millisecond))
	_, err := m.FetchSchema(testContext(t), "http://x/a.json")
	if !errors.Is(err, importerrors.ErrTimeout) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewPanicsWithoutReader(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New(nil)
}

var _ source.Reader = (*docReader)(nil)
