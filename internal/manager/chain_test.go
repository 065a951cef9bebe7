package manager

import (
	"context"
	"testing"
)

func TestImportChain(t *testing.T) {
	base := withImportChain(context.Background(), "a")
	left := withImportChain(base, "b")
	right := withImportChain(base, "c")

	if got := importChain(left); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("left = %v", got)
	}
	if got := importChain(right); len(got) != 2 || got[1] != "c" {
		t.Fatalf("right = %v", got)
	}
	if !containsURI(importChain(left), "a") || containsURI(importChain(left), "c") {
		t.Fatal("containsURI")
	}
	if importChain(context.Background()) != nil {
		t.Fatal("empty context has a chain")
	}
}
