package manager

import "sync"

// waitGraph records which in-flight imports are blocked on which other
// documents. Imports triggered concurrently by separate callers carry
// separate chains, so a loop between them only shows up here.
type waitGraph struct {
	mu    sync.Mutex
	edges map[string]map[string]int
}

// add records that from waits on to. It refuses, returning the loop it
// would close, when to already waits on from directly or transitively.
func (g *waitGraph) add(from, to string) ([]string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if loop := g.path(to, from, map[string]bool{}); loop != nil {
		return append([]string{from}, loop...), false
	}
	if g.edges == nil {
		g.edges = make(map[string]map[string]int)
	}
	if g.edges[from] == nil {
		g.edges[from] = make(map[string]int)
	}
	g.edges[from][to]++
	return nil, true
}

func (g *waitGraph) done(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	targets := g.edges[from]
	if targets[to]--; targets[to] <= 0 {
		delete(targets, to)
	}
	if len(targets) == 0 {
		delete(g.edges, from)
	}
}

// path returns the documents from cur to target along recorded waits, or
// nil if target is unreachable.
func (g *waitGraph) path(cur, target string, seen map[string]bool) []string {
	if cur == target {
		return []string{cur}
	}
	if seen[cur] {
		return nil
	}
	seen[cur] = true
	for next := range g.edges[cur] {
		if rest := g.path(next, target, seen); rest != nil {
			return append([]string{cur}, rest...)
		}
	}
	return nil
}
