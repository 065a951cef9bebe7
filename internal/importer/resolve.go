package importer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robso86/jsonschema-mapper/internal/scope"
	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
)

// Resolve returns the model fragment ref points to.
//
// An absolute ref is canonical: its document is obtained from the Fetcher
// and the fragment is looked up in that document's model. A relative ref
// without a host is internal and looked up in this importer's model. A
// relative ref with a host is not supported. Failures are logged and
// reported as ok == false; they never fail the import.
func (imp *Importer) Resolve(ctx context.Context, ref string) (Node, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return imp.unresolved(ref, err)
	}

	switch {
	case u.IsAbs():
		base, _ := scope.SplitFragment(ref)
		if imp.isSelf(base) {
			node, err := imp.FindRef(u.Fragment)
			return imp.resolved(ref, node, err)
		}
		return imp.resolveCanonical(ctx, ref, base, u.Fragment)
	case u.Host != "":
		return imp.unresolved(ref, errors.New("relative reference with host is not supported"))
	default:
		node, err := imp.FindRef(u.Fragment)
		return imp.resolved(ref, node, err)
	}
}

func (imp *Importer) resolveCanonical(ctx context.Context, ref, base, fragment string) (Node, bool) {
	if imp.fetcher == nil {
		return imp.unresolved(ref, importerrors.ErrNoFetcher)
	}
	if imp.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, imp.resolveTimeout)
		defer cancel()
	}
	doc, err := imp.fetcher.FetchSchema(ctx, base)
	if err != nil {
		return imp.unresolved(ref, fmt.Errorf("fetching %s: %w", base, err))
	}
	if doc == nil {
		return imp.unresolved(ref, fmt.Errorf("fetching %s: no importer returned", base))
	}
	node, err := doc.FindRef(fragment)
	return imp.resolved(ref, node, err)
}

// isSelf reports whether base names the document this importer holds.
func (imp *Importer) isSelf(base string) bool {
	if base == "" {
		return false
	}
	imp.mu.Lock()
	root := imp.rootScope
	imp.mu.Unlock()
	for _, own := range []string{imp.uri, root} {
		if own == "" {
			continue
		}
		ownBase, _ := scope.SplitFragment(own)
		if ownBase == base {
			return true
		}
	}
	return false
}

// FindRef looks a fragment up in the model.
//
// The lookup key is the last segment of the fragment, or the one before it
// when the fragment ends in a slash. An empty fragment or "." is the
// document root and yields the top-level properties. Otherwise the key is
// looked up in the ID index and the stored path is walked through the
// model. Only the last segment is used, so two scopes with the same leaf
// name share one index entry; the shallowest one, then the lexically
// smallest path, wins. A key missing from the index falls back to walking
// a pointer fragment ("/definitions/foo") through the model, which is how
// documents without any scope are looked up.
func (imp *Importer) FindRef(fragment string) (Node, error) {
	segments := strings.Split(fragment, "/")
	key := segments[len(segments)-1]
	if key == "" && len(segments) > 1 {
		key = segments[len(segments)-2]
	}
	if fragment == "" || key == "." {
		return imp.model.Properties, nil
	}
	if key == "" {
		return nil, importerrors.ImportProblem("find ref", "cannot find search id in fragment %q", fragment)
	}

	entry, ok := imp.lookupID(key)
	if !ok {
		if !strings.HasPrefix(fragment, "/") {
			return nil, fmt.Errorf("%w: no id %q indexed", importerrors.ErrUnresolvedRef, key)
		}
		ptr := strings.TrimSuffix(strings.TrimPrefix(fragment, "/"), "/")
		node, err := imp.walk(ptr)
		if err != nil {
			return nil, fmt.Errorf("no id %q indexed: %w", key, err)
		}
		return node, nil
	}
	if entry.Path == "" {
		return imp.model.Properties, nil
	}
	return imp.walk(entry.Path)
}

// walk follows a model path from the model root.
func (imp *Importer) walk(p string) (Node, error) {
	var cur any = imp.model.root()
	for _, seg := range splitPath(p) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not an object at %q", importerrors.ErrUnresolvedRef, p, seg)
		}
		next, ok := m[seg]
		if !ok {
			return nil, fmt.Errorf("%w: %q missing segment %q", importerrors.ErrUnresolvedRef, p, seg)
		}
		cur = next
	}
	node, ok := cur.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an object", importerrors.ErrUnresolvedRef, p)
	}
	return node, nil
}

func (imp *Importer) resolved(ref string, node Node, err error) (Node, bool) {
	if err != nil {
		return imp.unresolved(ref, err)
	}
	imp.emit(Event{Kind: EventRefResolved, State: imp.ReadyState(), Ref: ref})
	return node, true
}

func (imp *Importer) unresolved(ref string, err error) (Node, bool) {
	err = importerrors.Reference(ref, err)
	imp.logger.Warn("failed to resolve reference", "ref", ref, "error", err)
	imp.emit(Event{Kind: EventRefUnresolved, State: imp.ReadyState(), Ref: ref, Err: err})
	return nil, false
}
