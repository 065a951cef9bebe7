// Package scope computes JSON Schema resolution scopes: the absolute URI a
// schema's relative ids and $refs are resolved against.
package scope

import (
	"net/url"
	"strings"
)

// Resolve computes the scope of a child from its parent's scope and the
// child's identifier.
//
// An absolute candidate is returned verbatim. A relative candidate is
// resolved against parent per RFC 3986, or returned as-is when there is no
// parent, in which case it becomes a root scope. Parse errors are returned
// unchanged.
func Resolve(parent, candidate string) (string, error) {
	cu, err := url.Parse(candidate)
	if err != nil {
		return "", err
	}
	if cu.IsAbs() {
		return candidate, nil
	}
	if parent == "" {
		return candidate, nil
	}
	pu, err := url.Parse(parent)
	if err != nil {
		return "", err
	}
	return pu.ResolveReference(cu).String(), nil
}

// IsAbsolute reports whether ref parses as an absolute URI.
func IsAbsolute(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && u.IsAbs()
}

// SplitFragment splits ref into the document part and the fragment.
// The fragment is returned without the leading '#'.
func SplitFragment(ref string) (base, fragment string) {
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

// Base returns uri without its fragment, normalised the way url.URL prints
// it, so it can be used as a cache key.
func Base(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}
