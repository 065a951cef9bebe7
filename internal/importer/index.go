package importer

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/robso86/jsonschema-mapper/internal/scope"
	"golang.org/x/sync/errgroup"
)

// indexSections are the keys whose members become child scopes.
var indexSections = [...]string{"properties", "definitions"}

// index records the scope of node and walks its properties and definitions.
// Every child runs in its own goroutine and index returns only after all of
// them have returned.
//
// A node's scope comes from its id, resolved against parentScope, or failing
// that from key resolved against parentScope. A node with neither
// contributes no entry but is still walked; its children inherit
// parentScope. The document root is the node with an empty parentPath; any
// other node is keyed, even by the empty string.
func (imp *Importer) index(ctx context.Context, node any, parentScope, key, parentPath string) error {
	n, ok := node.(map[string]any)
	if !ok || len(n) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		own      string
		entryKey = key
		hasScope bool
		isRoot   = parentPath == ""
	)
	if id, ok := n["id"].(string); ok && id != "" {
		s, err := scope.Resolve(parentScope, id)
		if err != nil {
			return fmt.Errorf("resolving scope of id %q: %w", id, err)
		}
		own, entryKey, hasScope = s, id, true
	} else if !isRoot && parentScope != "" {
		// Keys are plain names, not URIs: escape them and anchor them as a
		// relative path so names like "a:b" cannot read as a scheme.
		s, err := scope.Resolve(parentScope, "./"+url.PathEscape(key))
		if err != nil {
			return fmt.Errorf("resolving scope of %q: %w", key, err)
		}
		own, hasScope = s, true
	}

	nodePath := ""
	if !isRoot {
		nodePath = joinPath(parentPath, key)
	}
	childScope := parentScope
	if hasScope {
		imp.recordID(entryKey, IDEntry{Absolute: own, Path: nodePath})
		if isRoot {
			imp.mu.Lock()
			imp.rootScope = own
			imp.mu.Unlock()
		}
		childScope = own
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, section := range indexSections {
		children, ok := n[section].(map[string]any)
		if !ok {
			continue
		}
		sectionPath := joinPath(nodePath, section)
		for childKey, child := range children {
			childKey, child := childKey, child
			g.Go(func() error {
				return imp.index(gctx, child, childScope, childKey, sectionPath)
			})
		}
	}
	return g.Wait()
}

// recordID stores entry under key. When the key is taken the shallower
// entry is kept, and between entries of equal depth the one with the
// lexically smaller path, so the winner does not depend on the order in
// which siblings were indexed.
func (imp *Importer) recordID(key string, entry IDEntry) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	prev, exists := imp.model.IDs[key]
	if !exists {
		imp.model.IDs[key] = entry
		return
	}
	kept, dropped := prev, entry
	if precedes(entry.Path, prev.Path) {
		kept, dropped = entry, prev
		imp.model.IDs[key] = entry
	}
	imp.logger.Debug("duplicate id ignored", "key", key, "kept", kept.Path, "ignored", dropped.Path)
}

// precedes orders model paths by depth, then lexically.
func precedes(a, b string) bool {
	if da, db := pathDepth(a), pathDepth(b); da != db {
		return da < db
	}
	return a < b
}

func pathDepth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}

var (
	segmentEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
	segmentUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

// joinPath appends key to a model path. Keys are escaped the way JSON
// Pointer escapes reference tokens, so a key holding '/' or ".." stays one
// segment.
func joinPath(parent, key string) string {
	seg := segmentEscaper.Replace(key)
	if parent == "" {
		return seg
	}
	return parent + "/" + seg
}

// splitPath is the inverse of joinPath.
func splitPath(p string) []string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = segmentUnescaper.Replace(s)
	}
	return segs
}

func (imp *Importer) idCount() int {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return len(imp.model.IDs)
}

func (imp *Importer) lookupID(key string) (IDEntry, bool) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	e, ok := imp.model.IDs[key]
	return e, ok
}
