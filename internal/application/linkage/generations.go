package linkage

import (
	"strings"
	"sync"
)

// Generations counts cache invalidations per namespace. A result is stored
// only if no invalidation of its namespace overlapped the reads it was
// computed from. Services that share a cache must share one Generations.
type Generations struct {
	mu     sync.Mutex
	counts map[string]uint64
}

// NewGenerations creates an empty tracker
func NewGenerations() *Generations {
	return &Generations{counts: make(map[string]uint64)}
}

// generation is a snapshot of one namespace counter
type generation struct {
	service string
	value   uint64
}

func (g *Generations) snapshot(service string) generation {
	g.mu.Lock()
	defer g.mu.Unlock()
	return generation{service: service, value: g.counts[service]}
}

func (g *Generations) current(gen generation) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[gen.service] == gen.value
}

// bump advances the namespace of every key or prefix
func (g *Generations) bump(keysOrPrefixes ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range keysOrPrefixes {
		service, _, _ := strings.Cut(k, ":")
		g.counts[service]++
	}
}
