package manager

import "context"

type chainKey struct{}

// importChain lists the documents whose imports led to ctx, outermost
// first. A fetch of a URI already in the chain would wait on itself.
func importChain(ctx context.Context) []string {
	chain, _ := ctx.Value(chainKey{}).([]string)
	return chain
}

func withImportChain(ctx context.Context, uri string) context.Context {
	prev := importChain(ctx)
	next := make([]string, len(prev), len(prev)+1)
	copy(next, prev)
	return context.WithValue(ctx, chainKey{}, append(next, uri))
}

func containsURI(chain []string, uri string) bool {
	for _, u := range chain {
		if u == uri {
			return true
		}
	}
	return false
}
