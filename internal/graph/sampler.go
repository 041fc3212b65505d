package graph

import (
	"math/rand/v2"
	"sort"
)

// Sampler picks at most k nodes to bound pairwise searches.
type Sampler interface {
	Sample(nodes []string, k int) []string
}

// SeededSampler draws a reproducible sample: the same seed and input always
// yield the same subset.
type SeededSampler struct {
	Seed uint64
}

// NewSeededSampler returns a sampler for the given seed.
func NewSeededSampler(seed int64) *SeededSampler {
	return &SeededSampler{Seed: uint64(seed)}
}

// Sample returns every node when len(nodes) <= k, otherwise k distinct nodes.
// The result is sorted.
func (s *SeededSampler) Sample(nodes []string, k int) []string {
	out := make([]string, len(nodes))
	copy(out, nodes)
	if k < 0 {
		k = 0
	}
	if len(out) > k {
		r := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))
		r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		out = out[:k]
	}
	sort.Strings(out)
	return out
}
