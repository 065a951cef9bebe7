package benchmark

import (
	"testing"

	"github.com/robso86/jsonschema-mapper/internal/scope"
)

// BenchmarkScopeResolve measures resolution of a relative id against an
// absolute parent scope.
func BenchmarkScopeResolve(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := scope.Resolve("http://bench.test/schemas/root.json", "nested/child.json#/definitions/x"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSplitFragment measures splitting a reference into document and
// fragment parts.
func BenchmarkSplitFragment(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		base, frag := scope.SplitFragment("http://bench.test/schemas/root.json#/definitions/address")
		_, _ = base, frag
	}
}
