// Package source supplies raw schema documents to the import manager.
//
// A Reader returns the bytes stored at a URI. FileReader, HTTPReader and
// PostgresReader each serve one kind of location; CachedReader puts a
// Redis read-through cache in front of any of them and Mux routes a URI to
// a reader by its scheme.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
)

// Reader returns the contents of the document at uri. A missing document
// is reported with errors.ErrResourceNotFound.
type Reader interface {
	ReadResource(ctx context.Context, uri string) ([]byte, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(ctx context.Context, uri string) ([]byte, error)

func (f ReaderFunc) ReadResource(ctx context.Context, uri string) ([]byte, error) {
	return f(ctx, uri)
}

// Mux dispatches to a Reader registered for the URI's scheme. A URI without
// a scheme is treated as "file".
type Mux struct {
	readers  map[string]Reader
	fallback Reader
	logger   *slog.Logger
}

func NewMux() *Mux {
	return &Mux{
		readers: make(map[string]Reader),
		logger:  slog.Default().With("component", "source-mux"),
	}
}

// Handle registers r for each scheme, replacing earlier registrations.
func (m *Mux) Handle(r Reader, schemes ...string) {
	for _, s := range schemes {
		m.readers[strings.ToLower(s)] = r
	}
}

// Fallback sets the reader used for schemes with no registration.
func (m *Mux) Fallback(r Reader) {
	m.fallback = r
}

func (m *Mux) ReadResource(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", importerrors.ErrInvalidInput, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "file"
	}
	r, ok := m.readers[scheme]
	if !ok {
		r = m.fallback
	}
	if r == nil {
		return nil, fmt.Errorf("%w: no reader for scheme %q", importerrors.ErrInvalidInput, scheme)
	}
	m.logger.Debug("reading resource", "uri", uri, "scheme", scheme)
	return r.ReadResource(ctx, uri)
}
