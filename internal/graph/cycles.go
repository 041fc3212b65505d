package graph

import (
	"context"
)

// SimpleCycles enumerates elementary cycles with Johnson's algorithm.
// Self-loops are ignored. Each cycle is reported once, starting at its
// lowest-ordered node. Enumeration stops after budget cycles (when budget > 0)
// or when ctx is done; complete reports whether every cycle was visited.
func (g *Graph) SimpleCycles(ctx context.Context, budget int, visit func(cycle []string)) (complete bool) {
	n := len(g.nodes)
	j := &johnson{
		g:       g,
		ctx:     ctx,
		budget:  budget,
		visit:   visit,
		blocked: make([]bool, n),
		blockBy: make([]map[int]struct{}, n),
		inComp:  make([]bool, n),
	}

	for s := 0; s < n; s++ {
		if ctx.Err() != nil {
			return false
		}
		comp := g.componentOf(s)
		if len(comp) < 2 {
			continue
		}
		for i := range j.inComp {
			j.inComp[i] = false
		}
		for _, v := range comp {
			j.inComp[v] = true
			j.blocked[v] = false
			j.blockBy[v] = nil
		}
		j.start = s
		j.circuit(s)
		if j.stopped {
			return false
		}
	}
	return true
}

type johnson struct {
	g       *Graph
	ctx     context.Context
	budget  int
	visit   func(cycle []string)
	found   int
	steps   int
	stopped bool

	start   int
	stack   []int
	blocked []bool
	blockBy []map[int]struct{}
	inComp  []bool
}

func (j *johnson) circuit(v int) bool {
	j.steps++
	if j.steps%ctxCheckInterval == 0 && j.ctx.Err() != nil {
		j.stopped = true
	}
	if j.stopped {
		return false
	}

	closed := false
	j.stack = append(j.stack, v)
	j.blocked[v] = true

	for _, w := range j.g.succ[v] {
		if j.stopped {
			break
		}
		if w == v || !j.inComp[w] {
			continue
		}
		if w == j.start {
			j.visit(j.g.names(j.stack))
			closed = true
			j.found++
			if j.budget > 0 && j.found >= j.budget {
				j.stopped = true
			}
		} else if !j.blocked[w] {
			if j.circuit(w) {
				closed = true
			}
		}
	}

	if closed {
		j.unblock(v)
	} else {
		for _, w := range j.g.succ[v] {
			if w == v || !j.inComp[w] {
				continue
			}
			if j.blockBy[w] == nil {
				j.blockBy[w] = make(map[int]struct{})
			}
			j.blockBy[w][v] = struct{}{}
		}
	}

	j.stack = j.stack[:len(j.stack)-1]
	return closed
}

func (j *johnson) unblock(u int) {
	j.blocked[u] = false
	for w := range j.blockBy[u] {
		delete(j.blockBy[u], w)
		if j.blocked[w] {
			j.unblock(w)
		}
	}
}

// componentOf returns the strongly connected component containing s in the
// subgraph induced by nodes with index >= s.
func (g *Graph) componentOf(s int) []int {
	n := len(g.nodes)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	var result []int
	counter := 0

	var strongConnect func(v int)
	strongConnect = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.succ[v] {
			if w < s {
				continue
			}
			if index[w] < 0 {
				strongConnect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			for _, w := range comp {
				if w == s {
					result = comp
				}
			}
		}
	}

	strongConnect(s)
	return result
}
