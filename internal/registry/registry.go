// Package registry holds the gateway's in-memory, mutex-guarded compute
// node directory and the round-robin dispatch counter.
package registry

import (
	"sync"

	"glyph/internal/glypherr"
)

// Node is one registered compute node.
type Node struct {
	Pubkey string `json:"node_pubkey"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

// Registry is the node directory plus round-robin counter. Zero value is
// not usable; construct with New.
type Registry struct {
	mu      sync.Mutex
	byOrder []Node
	byKey   map[string]int // pubkey -> index into byOrder
	counter uint64
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{byKey: make(map[string]int)}
}

// Register upserts a node by pubkey.
func (r *Registry) Register(pubkey, name, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.byKey[pubkey]; ok {
		r.byOrder[idx].Name = name
		r.byOrder[idx].URL = url
		return
	}
	r.byKey[pubkey] = len(r.byOrder)
	r.byOrder = append(r.byOrder, Node{Pubkey: pubkey, Name: name, URL: url})
}

// List returns a snapshot of every registered node.
func (r *Registry) List() []Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Node, len(r.byOrder))
	copy(out, r.byOrder)
	return out
}

// Len reports the current registry size.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOrder)
}

// Next selects the next node by round-robin counter modulo the registry
// size taken at call time, then advances the counter. Fails NoNodes if the
// registry is empty.
func (r *Registry) Next() (Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.byOrder)
	if n == 0 {
		return Node{}, glypherr.ErrNoNodes
	}
	idx := r.counter % uint64(n)
	r.counter++
	return r.byOrder[idx], nil
}
