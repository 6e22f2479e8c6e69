package asset

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry is a thread-safe registry of known assets.
type Registry struct {
	byID     map[AssetID]*Asset
	bySymbol map[string][]*Asset // upper-cased symbol -> assets across chains
	mu       sync.RWMutex
}

// NewRegistry creates a new empty asset registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[AssetID]*Asset),
		bySymbol: make(map[string][]*Asset),
	}
}

// Register adds an asset. Registering the same ID twice is an error.
func (r *Registry) Register(a *Asset) error {
	if a == nil {
		return ErrNilAsset
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("asset: %s already registered", id)
	}

	key := strings.ToUpper(a.Symbol())
	r.byID[id] = a
	r.bySymbol[key] = append(r.bySymbol[key], a)
	return nil
}

// Get retrieves an asset by its ID.
func (r *Registry) Get(id AssetID) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	return a, ok
}

// Lookup finds the asset with symbol on chainID. Symbols match case-insensitively.
func (r *Registry) Lookup(symbol string, chainID uint64) (*Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.bySymbol[strings.ToUpper(symbol)] {
		if a.ChainID() == chainID {
			return a, nil
		}
	}
	return nil, fmt.Errorf("asset: %s not registered on chain %d", symbol, chainID)
}

// Symbols returns the registered symbols, sorted.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.bySymbol))
	for s := range r.bySymbol {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
