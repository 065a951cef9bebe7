// Package importer turns a JSON Schema document into a normalized model.
//
// An Importer indexes every scoped schema (by id, or by its property or
// definition key) under an absolute scope URI, resolves $ref pointers
// against that index or against external documents through a Fetcher, and
// copies a fixed keyword allow-list into the output tree.
//
// Loading is asynchronous. Load returns immediately; completion is observed
// through Done, Wait or the events delivered to observers.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
	"github.com/robso86/jsonschema-mapper/pkg/tracing"
)

// Fetcher resolves a canonical external reference to a loaded Importer.
// The import manager implements it.
type Fetcher interface {
	FetchSchema(ctx context.Context, uri string) (*Importer, error)
}

// Importer owns one input schema, one model, one error slot and one
// lifecycle state.
type Importer struct {
	id             string
	uri            string
	fetcher        Fetcher
	observers      []func(Event)
	preflight      func(doc any) error
	resolveTimeout time.Duration
	logger         *slog.Logger

	mu        sync.Mutex
	state     ReadyState
	err       error
	schema    Node
	rootScope string
	model     *Model
	done      chan struct{}
	started   time.Time
	finished  time.Time
}

type Option func(*Importer)

// WithURI records the location the document was loaded from. Canonical
// references back to this location resolve locally.
func WithURI(uri string) Option {
	return func(imp *Importer) { imp.uri = uri }
}

func WithFetcher(f Fetcher) Option {
	return func(imp *Importer) { imp.fetcher = f }
}

// WithObserver registers fn for every event. May be given more than once.
func WithObserver(fn func(Event)) Option {
	return func(imp *Importer) {
		if fn != nil {
			imp.observers = append(imp.observers, fn)
		}
	}
}

// WithPreflight runs check on the decoded document before indexing. A
// returned error fails the import.
func WithPreflight(check func(doc any) error) Option {
	return func(imp *Importer) { imp.preflight = check }
}

// WithResolveTimeout bounds how long a canonical reference waits for its
// document.
func WithResolveTimeout(d time.Duration) Option {
	return func(imp *Importer) { imp.resolveTimeout = d }
}

func New(opts ...Option) *Importer {
	imp := &Importer{
		id:    uuid.NewString(),
		model: newModel(),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(imp)
	}
	imp.logger = slog.Default().With("component", "importer", "import_id", imp.id, "uri", imp.uri)
	return imp
}

func (imp *Importer) ID() string  { return imp.id }
func (imp *Importer) URI() string { return imp.uri }

func (imp *Importer) ReadyState() ReadyState {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.state
}

// Err returns the recorded failure, if any.
func (imp *Importer) Err() error {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.err
}

// Model returns the model. It is only complete once Done is closed and Err
// is nil, and must not be modified by callers.
func (imp *Importer) Model() *Model {
	return imp.model
}

// Schema returns the decoded input document.
func (imp *Importer) Schema() Node {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.schema
}

// IsLoaded reports whether the import completed without error.
func (imp *Importer) IsLoaded() bool {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.state == Complete && imp.err == nil
}

// Done is closed when the importer reaches Complete.
func (imp *Importer) Done() <-chan struct{} {
	return imp.done
}

// Wait blocks until the import completes or ctx ends.
func (imp *Importer) Wait(ctx context.Context) (*Model, error) {
	select {
	case <-imp.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := imp.Err(); err != nil {
		return nil, err
	}
	return imp.model, nil
}

// Duration is the time from load to completion, or zero while running.
func (imp *Importer) Duration() time.Duration {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	if imp.finished.IsZero() {
		return 0
	}
	return imp.finished.Sub(imp.started)
}

// Load parses raw as JSON and starts the import. Parse failures are not
// returned: they complete the import as failed. The returned error only
// reports misuse, such as loading an importer twice.
func (imp *Importer) Load(ctx context.Context, raw []byte) error {
	if err := imp.begin(); err != nil {
		return err
	}
	doc, err := decode(raw)
	if err != nil {
		imp.finish(importerrors.Load("parse", err))
		return nil
	}
	imp.start(ctx, doc)
	return nil
}

// LoadSchema starts the import of an already decoded document.
func (imp *Importer) LoadSchema(ctx context.Context, doc any) error {
	if err := imp.begin(); err != nil {
		return err
	}
	imp.start(ctx, doc)
	return nil
}

// Fail records a document-level failure and completes the importer. It is
// a no-op once the importer is complete.
func (imp *Importer) Fail(err error) {
	imp.mu.Lock()
	if imp.started.IsZero() {
		imp.started = time.Now()
	}
	imp.mu.Unlock()
	imp.finish(err)
}

func (imp *Importer) begin() error {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	if imp.state != Uninitialized || !imp.started.IsZero() {
		return fmt.Errorf("%w: importer %s already loaded", importerrors.ErrInvalidInput, imp.id)
	}
	imp.started = time.Now()
	return nil
}

func (imp *Importer) start(ctx context.Context, doc any) {
	node, ok := doc.(map[string]any)
	if !ok {
		imp.finish(importerrors.Load("load", fmt.Errorf("%w: schema root must be an object, found %s",
			importerrors.ErrImportProblem, jsonType(doc))))
		return
	}
	if imp.preflight != nil {
		if err := imp.preflight(doc); err != nil {
			imp.finish(importerrors.Load("preflight", err))
			return
		}
	}
	imp.mu.Lock()
	imp.schema = node
	imp.mu.Unlock()
	imp.setReadyState(Initialized)
	go imp.run(ctx)
}

func (imp *Importer) run(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "import", imp.id)
	span.SetAttr("uri", imp.uri)
	defer func() {
		span.End()
		span.Log()
	}()

	imp.setReadyState(Running)

	ictx, ispan := tracing.StartChildSpan(ctx, "index")
	// The retrieval uri is the base scope of a document without a root id.
	err := imp.index(ictx, imp.schema, imp.uri, "", "")
	ispan.SetAttr("ids", imp.idCount())
	ispan.SetError(err)
	ispan.End()
	if err != nil {
		err = &importerrors.ImportError{Kind: importerrors.KindLoad, Op: "index", Err: err}
		imp.emit(Event{Kind: EventIndexingFailed, State: Running, Err: err})
		imp.finish(err)
		return
	}
	imp.emit(Event{Kind: EventIndexingComplete, State: Running})

	bctx, bspan := tracing.StartChildSpan(ctx, "build")
	err = imp.build(bctx)
	bspan.SetError(err)
	bspan.End()
	imp.finish(err)
}

func (imp *Importer) finish(err error) {
	imp.mu.Lock()
	if imp.state == Complete {
		imp.mu.Unlock()
		return
	}
	if err != nil && imp.err == nil {
		imp.err = err
	}
	imp.mu.Unlock()
	imp.setReadyState(Complete)
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid character after top-level value")
	}
	return doc, nil
}
