// Package manager caches imports by document URI and deduplicates
// concurrent requests for the same document.
//
// A Manager is the Fetcher of every importer it creates, so a canonical
// $ref inside a fetched document is itself fetched, cached and shared.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robso86/jsonschema-mapper/internal/importer"
	"github.com/robso86/jsonschema-mapper/internal/scope"
	"github.com/robso86/jsonschema-mapper/internal/source"
	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
	"github.com/robso86/jsonschema-mapper/pkg/metrics"
	"github.com/robso86/jsonschema-mapper/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

// Listener is told about every import the manager runs once it completes,
// successfully or not. It is called on the importer's goroutine and must
// not block.
type Listener interface {
	ImportCompleted(uri string, imp *importer.Importer)
}

type ListenerFunc func(uri string, imp *importer.Importer)

func (f ListenerFunc) ImportCompleted(uri string, imp *importer.Importer) { f(uri, imp) }

type Stats struct {
	Cached int   `json:"cached" yaml:"cached"`
	Hits   int64 `json:"hits" yaml:"hits"`
	Misses int64 `json:"misses" yaml:"misses"`
	Reads  int64 `json:"reads" yaml:"reads"`
	// Shared counts FetchSchema calls that joined a read already in flight.
	Shared int64 `json:"shared" yaml:"shared"`
}

type Manager struct {
	reader         source.Reader
	cache          Cache
	group          singleflight.Group
	waits          waitGraph
	listeners      []Listener
	metrics        *metrics.Metrics
	preflight      func(doc any) error
	resolveTimeout time.Duration
	readTimeout    time.Duration
	logger         *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	reads  atomic.Int64
	shared atomic.Int64
}

type Option func(*Manager)

// WithCache replaces the default MemoryCache with no expiry.
func WithCache(c Cache) Option {
	return func(m *Manager) { m.cache = c }
}

func WithListener(l Listener) Option {
	return func(m *Manager) {
		if l != nil {
			m.listeners = append(m.listeners, l)
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithPreflight is passed to every importer the manager creates.
func WithPreflight(check func(doc any) error) Option {
	return func(m *Manager) { m.preflight = check }
}

func WithResolveTimeout(d time.Duration) Option {
	return func(m *Manager) { m.resolveTimeout = d }
}

// WithReadTimeout bounds a single resource read.
func WithReadTimeout(d time.Duration) Option {
	return func(m *Manager) { m.readTimeout = d }
}

// New returns a Manager reading documents through reader. It panics if
// reader is nil.
func New(reader source.Reader, opts ...Option) *Manager {
	if reader == nil {
		panic("manager: nil reader")
	}
	m := &Manager{
		reader: reader,
		logger: slog.Default().With("component", "import-manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = NewMemoryCache(0)
	}
	return m
}

// FetchSchema returns the completed importer for the document at uri.
//
// A cached importer is returned once it completes, or its error if it
// failed. Otherwise the document is read once no matter how many callers
// ask for it concurrently; every caller gets the same importer. The import
// itself does not stop when ctx is cancelled, only the wait does.
func (m *Manager) FetchSchema(ctx context.Context, uri string) (*importer.Importer, error) {
	if uri == "" {
		return nil, importerrors.ErrEmptyURI
	}
	key, err := scope.Base(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", importerrors.ErrInvalidInput, err)
	}
	chain := importChain(ctx)
	if containsURI(chain, key) {
		return nil, fmt.Errorf("%w: %s -> %s", importerrors.ErrReferenceCycle, strings.Join(chain, " -> "), key)
	}
	if len(chain) > 0 {
		from := chain[len(chain)-1]
		if loop, ok := m.waits.add(from, key); !ok {
			return nil, fmt.Errorf("%w: %s", importerrors.ErrReferenceCycle, strings.Join(loop, " -> "))
		}
		defer m.waits.done(from, key)
	}

	if imp, ok := m.cache.Load(key); ok {
		m.hits.Add(1)
		if m.metrics != nil {
			m.metrics.CacheHitsTotal.Inc()
		}
		return m.await(ctx, key, imp)
	}
	m.misses.Add(1)
	if m.metrics != nil {
		m.metrics.CacheMissesTotal.Inc()
	}

	ch := m.group.DoChan(key, func() (any, error) {
		return m.load(ctx, key)
	})
	select {
	case res := <-ch:
		if res.Shared {
			m.shared.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return m.await(ctx, key, res.Val.(*importer.Importer))
	case <-ctx.Done():
		return nil, waitError(key, ctx.Err())
	}
}

func (m *Manager) load(ctx context.Context, uri string) (*importer.Importer, error) {
	if imp, ok := m.cache.Load(uri); ok {
		return imp, nil
	}
	raw, readErr := m.read(ctx, uri)

	imp := m.newImporter(uri)
	if actual, loaded := m.cache.LoadOrStore(uri, imp); loaded {
		m.logger.Debug("import appeared during read, discarding", "uri", uri)
		return actual, nil
	}
	m.updateGauge()

	if readErr != nil {
		imp.Fail(importerrors.Load("read", readErr))
		return imp, nil
	}
	m.logger.Debug("import started", "uri", uri, "import_id", imp.ID(), "bytes", len(raw))
	lctx := withImportChain(context.WithoutCancel(ctx), uri)
	if err := imp.Load(lctx, raw); err != nil {
		return nil, err
	}
	return imp, nil
}

func (m *Manager) read(ctx context.Context, uri string) ([]byte, error) {
	m.reads.Add(1)
	raw, err := resilience.WithTimeout(context.WithoutCancel(ctx), m.readTimeout, "read "+uri, func(ctx context.Context) ([]byte, error) {
		return m.reader.ReadResource(ctx, uri)
	})
	if m.metrics != nil {
		result := "ok"
		switch {
		case errors.Is(err, importerrors.ErrResourceNotFound):
			result = "not_found"
		case err != nil:
			result = "error"
		}
		m.metrics.ResourceReadsTotal.WithLabelValues(result).Inc()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", importerrors.ErrTimeout, err)
	}
	if err != nil {
		m.logger.Warn("resource read failed", "uri", uri, "error", err)
		return nil, err
	}
	return raw, nil
}

func (m *Manager) await(ctx context.Context, uri string, imp *importer.Importer) (*importer.Importer, error) {
	if _, err := imp.Wait(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, waitError(uri, err)
		}
		return nil, err
	}
	return imp, nil
}

func waitError(uri string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: waiting for %s: %w", importerrors.ErrTimeout, uri, err)
	}
	return fmt.Errorf("waiting for %s: %w", uri, err)
}

// GetImporter creates a fresh importer for uri and stores it in the cache,
// replacing any existing entry. The caller loads it.
func (m *Manager) GetImporter(uri string) (*importer.Importer, error) {
	if uri == "" {
		return nil, importerrors.ErrEmptyURI
	}
	key, err := scope.Base(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", importerrors.ErrInvalidInput, err)
	}
	imp := m.newImporter(key)
	m.cache.Store(key, imp)
	m.updateGauge()
	return imp, nil
}

// Import loads raw as the document at uri through a fresh importer from
// GetImporter and waits for it to complete.
func (m *Manager) Import(ctx context.Context, uri string, raw []byte) (*importer.Importer, error) {
	imp, err := m.GetImporter(uri)
	if err != nil {
		return nil, err
	}
	lctx := withImportChain(context.WithoutCancel(ctx), imp.URI())
	if err := imp.Load(lctx, raw); err != nil {
		return nil, err
	}
	return m.await(ctx, imp.URI(), imp)
}

// Evict drops the cached import of uri. Callers already waiting on it
// still receive it.
func (m *Manager) Evict(uri string) bool {
	key, err := scope.Base(uri)
	if err != nil {
		return false
	}
	m.group.Forget(key)
	ok := m.cache.Delete(key)
	m.updateGauge()
	if ok {
		m.logger.Info("import evicted", "uri", key)
	}
	return ok
}

func (m *Manager) Len() int {
	return m.cache.Len()
}

func (m *Manager) Stats() Stats {
	return Stats{
		Cached: m.cache.Len(),
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
		Reads:  m.reads.Load(),
		Shared: m.shared.Load(),
	}
}

func (m *Manager) newImporter(uri string) *importer.Importer {
	opts := []importer.Option{
		importer.WithURI(uri),
		importer.WithFetcher(m),
		importer.WithResolveTimeout(m.resolveTimeout),
		importer.WithObserver(m.observer(uri)),
	}
	if m.preflight != nil {
		opts = append(opts, importer.WithPreflight(m.preflight))
	}
	return importer.New(opts...)
}

func (m *Manager) observer(uri string) func(importer.Event) {
	return func(ev importer.Event) {
		switch ev.Kind {
		case importer.EventRefResolved, importer.EventRefUnresolved:
			if m.metrics != nil {
				result := "resolved"
				if ev.Kind == importer.EventRefUnresolved {
					result = "unresolved"
				}
				m.metrics.RefResolutionsTotal.WithLabelValues(result).Inc()
			}
		case importer.EventComplete:
			if m.metrics != nil {
				status := "success"
				if ev.Err != nil {
					status = "failed"
				}
				m.metrics.ImportsTotal.WithLabelValues(status).Inc()
				m.metrics.ImportDuration.Observe(ev.Importer.Duration().Seconds())
			}
			for _, l := range m.listeners {
				l.ImportCompleted(uri, ev.Importer)
			}
		}
	}
}

func (m *Manager) updateGauge() {
	if m.metrics != nil {
		m.metrics.CachedImporters.Set(float64(m.cache.Len()))
	}
}
