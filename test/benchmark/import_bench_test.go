// Package benchmark contains Go benchmarks for the import pipeline, the
// import manager and scope resolution, measuring throughput and allocation
// behaviour.
package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/robso86/jsonschema-mapper/internal/importer"
)

// wideDocument builds a schema with n definitions, each referenced by one
// top-level property.
func wideDocument(n int) []byte {
	return wideDocumentAt("http://bench.test/wide.json", n)
}

func wideDocumentAt(id string, n int) []byte {
	defs := make(map[string]any, n)
	props := make(map[string]any, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("def%d", i)
		defs[name] = map[string]any{
			"type":      "object",
			"maxLength": i,
			"properties": map[string]any{
				"label": map[string]any{"type": "string"},
				"count": map[string]any{"type": "integer", "minimum": 0},
			},
		}
		props[fmt.Sprintf("field%d", i)] = map[string]any{"$ref": "#/definitions/" + name}
	}
	raw, _ := json.Marshal(map[string]any{
		"id":          id,
		"definitions": defs,
		"properties":  props,
	})
	return raw
}

// deepDocument builds a schema whose properties nest depth levels deep, each
// level carrying its own relative id.
func deepDocument(depth int) []byte {
	node := map[string]any{"type": "string"}
	for i := depth; i > 0; i-- {
		node = map[string]any{
			"id":         fmt.Sprintf("level%d/", i),
			"type":       "object",
			"properties": map[string]any{fmt.Sprintf("p%d", i): node},
		}
	}
	node["id"] = "http://bench.test/deep/"
	raw, _ := json.Marshal(node)
	return raw
}

func runImport(b *testing.B, raw []byte) {
	b.Helper()
	ctx := context.Background()
	b.SetBytes(int64(len(raw)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		imp := importer.New(importer.WithURI("http://bench.test/doc.json"))
		if err := imp.Load(ctx, raw); err != nil {
			b.Fatal(err)
		}
		if _, err := imp.Wait(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkImportSmall measures a full import of a document with a handful
// of definitions and local references.
func BenchmarkImportSmall(b *testing.B) {
	runImport(b, wideDocument(5))
}

// BenchmarkImportWide measures indexing and reference resolution over 500
// definitions.
func BenchmarkImportWide(b *testing.B) {
	runImport(b, wideDocument(500))
}

// BenchmarkImportDeep measures scope propagation through 50 nested levels.
func BenchmarkImportDeep(b *testing.B) {
	runImport(b, deepDocument(50))
}

// BenchmarkFindRef measures fragment lookup on a completed import.
func BenchmarkFindRef(b *testing.B) {
	ctx := context.Background()
	imp := importer.New(importer.WithURI("http://bench.test/wide.json"))
	if err := imp.Load(ctx, wideDocument(500)); err != nil {
		b.Fatal(err)
	}
	if _, err := imp.Wait(ctx); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := imp.FindRef(fmt.Sprintf("/definitions/def%d", i%500)); err != nil {
			b.Fatal(err)
		}
	}
}
