package importer

import (
	"context"

	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
)

// build fills the model once indexing has finished: every definition, then
// the document's own $ref, then every property. Definitions go first so
// that references into them find them built, and local properties override
// what the document-level $ref merged.
func (imp *Importer) build(ctx context.Context) error {
	schema := imp.schema

	if raw, ok := schema["definitions"]; ok {
		defs, ok := raw.(map[string]any)
		if !ok {
			return importerrors.ImportProblem("build", "definitions: expected object, found %s", jsonType(raw))
		}
		for _, name := range sortedKeys(defs) {
			if err := imp.buildDefinition(ctx, name, defs[name], imp.model.Definitions); err != nil {
				return err
			}
		}
	}

	if ref, ok := schema["$ref"].(string); ok && ref != "" {
		if frag, ok := imp.Resolve(ctx, ref); ok {
			mergeTopLevel(imp.model.Properties, frag)
		}
	}

	if raw, ok := schema["properties"]; ok {
		props, ok := raw.(map[string]any)
		if !ok {
			return importerrors.ImportProblem("build", "properties: expected object, found %s", jsonType(raw))
		}
		for _, name := range sortedKeys(props) {
			if err := imp.buildProperty(ctx, name, props[name], imp.model.Properties); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildDefinition places a flat entry for name in parent, which is
// model.Definitions.
func (imp *Importer) buildDefinition(ctx context.Context, name string, src any, parent Node) error {
	return imp.buildNode(ctx, "build definition", name, src, parent)
}

// buildProperty places name in parent, a properties map of the model.
func (imp *Importer) buildProperty(ctx context.Context, name string, src any, parent Node) error {
	return imp.buildNode(ctx, "build property", name, src, parent)
}

func (imp *Importer) buildNode(ctx context.Context, op, name string, src any, parent Node) error {
	source, ok := src.(map[string]any)
	if !ok {
		return importerrors.ImportProblem(op, "source element %q: expected object, found %s", name, jsonType(src))
	}
	if parent == nil {
		return importerrors.ImportProblem(op, "parent element of %q: expected object, found null", name)
	}

	target := Node{}
	parent[name] = target

	if ref, ok := source["$ref"].(string); ok && ref != "" {
		if frag, ok := imp.Resolve(ctx, ref); ok {
			for k, v := range cloneNode(frag) {
				target[k] = v
			}
		}
	}

	for _, kw := range Keywords {
		if v, ok := source[kw]; ok {
			target[kw] = cloneValue(v)
		}
	}

	raw, ok := source["properties"]
	if !ok {
		return nil
	}
	props, ok := raw.(map[string]any)
	if !ok {
		return importerrors.ImportProblem(op, "%q properties: expected object, found %s", name, jsonType(raw))
	}
	children, ok := target["properties"].(map[string]any)
	if !ok {
		children = Node{}
		target["properties"] = children
	}
	for _, child := range sortedKeys(props) {
		if err := imp.buildProperty(ctx, child, props[child], children); err != nil {
			return err
		}
	}
	return nil
}

// mergeTopLevel merges the target of a document-level $ref into the
// top-level properties. A target carrying its own properties contributes
// those; any other target is merged as is.
func mergeTopLevel(props Node, frag Node) {
	src := frag
	if inner, ok := frag["properties"].(map[string]any); ok {
		src = inner
	}
	for k, v := range cloneNode(src) {
		props[k] = v
	}
}
