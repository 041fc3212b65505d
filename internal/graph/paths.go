package graph

import (
	"context"
)

// ctxCheckInterval is how many DFS expansions run between deadline checks.
const ctxCheckInterval = 1024

// SimplePaths enumerates every simple path of at most cutoff edges that starts
// at one endpoint and ends at a different endpoint, calling visit for each one
// with at least minNodes nodes. Enumeration stops when ctx is done; complete
// reports whether every path was visited.
func (g *Graph) SimplePaths(ctx context.Context, endpoints []string, cutoff, minNodes int, visit func(path []string)) (complete bool) {
	if cutoff < 1 || len(endpoints) < 2 {
		return true
	}

	isEndpoint := make([]bool, len(g.nodes))
	sources := make([]int, 0, len(endpoints))
	for _, id := range endpoints {
		if i, ok := g.index[id]; ok && !isEndpoint[i] {
			isEndpoint[i] = true
			sources = append(sources, i)
		}
	}

	w := &pathWalker{
		g:          g,
		ctx:        ctx,
		cutoff:     cutoff,
		minNodes:   minNodes,
		isEndpoint: isEndpoint,
		onPath:     make([]bool, len(g.nodes)),
		visit:      visit,
	}
	for _, s := range sources {
		if ctx.Err() != nil {
			return false
		}
		if !w.walk(s, s) {
			return false
		}
	}
	return true
}

type pathWalker struct {
	g          *Graph
	ctx        context.Context
	cutoff     int
	minNodes   int
	isEndpoint []bool
	onPath     []bool
	path       []int
	steps      int
	visit      func(path []string)
}

// walk extends the current path with v. It returns false once the context is done.
func (w *pathWalker) walk(source, v int) bool {
	w.steps++
	if w.steps%ctxCheckInterval == 0 && w.ctx.Err() != nil {
		return false
	}

	w.path = append(w.path, v)
	w.onPath[v] = true
	defer func() {
		w.onPath[v] = false
		w.path = w.path[:len(w.path)-1]
	}()

	if v != source && w.isEndpoint[v] && len(w.path) >= w.minNodes {
		w.visit(w.g.names(w.path))
	}

	if len(w.path) > w.cutoff {
		return true
	}
	for _, next := range w.g.succ[v] {
		if w.onPath[next] {
			continue
		}
		if !w.walk(source, next) {
			return false
		}
	}
	return true
}
