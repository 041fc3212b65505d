package graph

import (
	"math"
)

// DegreeCentrality returns (in+out)/(n-1) per node. A single-node graph
// scores 1.
func (g *Graph) DegreeCentrality() map[string]float64 {
	n := len(g.nodes)
	out := make(map[string]float64, n)
	if n == 0 {
		return out
	}
	if n == 1 {
		out[g.nodes[0]] = 1
		return out
	}
	scale := 1.0 / float64(n-1)
	for i, id := range g.nodes {
		out[id] = float64(len(g.succ[i])+len(g.pred[i])) * scale
	}
	return out
}

// Betweenness computes directed shortest-path betweenness with Brandes'
// algorithm, normalized by (n-1)(n-2). When pivots is non-empty only those
// sources are accumulated and the result is scaled by n/len(pivots).
func (g *Graph) Betweenness(pivots []string) map[string]float64 {
	n := len(g.nodes)
	bc := make([]float64, n)

	sources := make([]int, 0, n)
	if len(pivots) == 0 {
		for i := range g.nodes {
			sources = append(sources, i)
		}
	} else {
		for _, id := range pivots {
			if i, ok := g.index[id]; ok {
				sources = append(sources, i)
			}
		}
	}

	sigma := make([]float64, n)
	dist := make([]int, n)
	delta := make([]float64, n)
	preds := make([][]int, n)
	stack := make([]int, 0, n)
	queue := make([]int, 0, n)

	for _, s := range sources {
		for i := 0; i < n; i++ {
			sigma[i] = 0
			dist[i] = -1
			delta[i] = 0
			preds[i] = preds[i][:0]
		}
		stack = stack[:0]
		queue = append(queue[:0], s)
		sigma[s] = 1
		dist[s] = 0

		for head := 0; head < len(queue); head++ {
			v := queue[head]
			stack = append(stack, v)
			for _, w := range g.succ[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		for k := len(stack) - 1; k >= 0; k-- {
			w := stack[k]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				bc[w] += delta[w]
			}
		}
	}

	scale := 0.0
	if n > 2 {
		scale = 1.0 / float64((n-1)*(n-2))
		if len(pivots) > 0 && len(sources) > 0 {
			scale *= float64(n) / float64(len(sources))
		}
	}

	out := make(map[string]float64, n)
	for i, id := range g.nodes {
		out[id] = bc[i] * scale
	}
	return out
}

// PageRank runs weighted power iteration with uniform teleport and
// redistribution of dangling mass. converged is false when the tolerance
// n*1e-6 is not reached within maxIter rounds.
func (g *Graph) PageRank(damping float64, maxIter int) (ranks map[string]float64, converged bool) {
	n := len(g.nodes)
	ranks = make(map[string]float64, n)
	if n == 0 {
		return ranks, true
	}

	outWeight := make([]float64, n)
	for key, e := range g.edges {
		outWeight[key[0]] += e.Weight
	}

	var dangling []int
	for i := range g.nodes {
		if outWeight[i] == 0 {
			dangling = append(dangling, i)
		}
	}

	uniform := 1.0 / float64(n)
	tol := 1e-6 * float64(n)
	x := make([]float64, n)
	for i := range x {
		x[i] = uniform
	}
	last := make([]float64, n)

	for iter := 0; iter < maxIter; iter++ {
		copy(last, x)
		danglingSum := 0.0
		for _, i := range dangling {
			danglingSum += last[i]
		}
		base := damping*danglingSum*uniform + (1-damping)*uniform
		for i := range x {
			x[i] = base
		}
		for i := range g.nodes {
			if outWeight[i] == 0 {
				continue
			}
			for _, j := range g.succ[i] {
				w := g.edges[[2]int{i, j}].Weight / outWeight[i]
				x[j] += damping * last[i] * w
			}
		}

		err := 0.0
		for i := range x {
			err += math.Abs(x[i] - last[i])
		}
		if err < tol {
			for i, id := range g.nodes {
				ranks[id] = x[i]
			}
			return ranks, true
		}
	}

	for _, id := range g.nodes {
		ranks[id] = 0
	}
	return ranks, false
}
