package distribution

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// WarehouseStore upserts a warehouse by its unique name.
type WarehouseStore interface {
	UpsertWarehouse(ctx context.Context, name string) (Warehouse, error)
}

// EnsureCentralWarehouse provisions the central warehouse. Safe to call on
// every start and from concurrent processes.
func EnsureCentralWarehouse(ctx context.Context, store WarehouseStore) (Warehouse, error) {
	w, err := store.UpsertWarehouse(ctx, CentralWarehouseName)
	if err != nil {
		return Warehouse{}, fmt.Errorf("ensure central warehouse: %w", err)
	}
	return w, nil
}

// WarehouseResolver hands out the central warehouse, creating it on first use
// when startup provisioning has not run.
type WarehouseResolver struct {
	store WarehouseStore
	name  string
	group singleflight.Group

	mu     sync.RWMutex
	cached *Warehouse
}

// NewWarehouseResolver builds a resolver for the central warehouse.
func NewWarehouseResolver(store WarehouseStore) *WarehouseResolver {
	return NewNamedWarehouseResolver(store, CentralWarehouseName)
}

// NewNamedWarehouseResolver builds a resolver for a deployment that renames
// the central warehouse. An empty name falls back to CentralWarehouseName.
func NewNamedWarehouseResolver(store WarehouseStore, name string) *WarehouseResolver {
	if name == "" {
		name = CentralWarehouseName
	}
	return &WarehouseResolver{store: store, name: name}
}

// Prime stores a warehouse provisioned elsewhere.
func (r *WarehouseResolver) Prime(w Warehouse) {
	if w.ID <= 0 {
		return
	}
	r.mu.Lock()
	r.cached = &w
	r.mu.Unlock()
}

// Resolve returns the central warehouse. Concurrent first callers share one upsert.
func (r *WarehouseResolver) Resolve(ctx context.Context) (Warehouse, error) {
	if w, ok := r.cachedWarehouse(); ok {
		return w, nil
	}

	v, err, _ := r.group.Do(r.name, func() (any, error) {
		if w, ok := r.cachedWarehouse(); ok {
			return w, nil
		}
		w, err := r.store.UpsertWarehouse(ctx, r.name)
		if err != nil {
			return nil, err
		}
		if w.ID <= 0 {
			return nil, errors.New("warehouse upsert returned no id")
		}
		r.Prime(w)
		return w, nil
	})
	if err != nil {
		return Warehouse{}, fmt.Errorf("resolve central warehouse: %w", err)
	}
	return v.(Warehouse), nil
}

func (r *WarehouseResolver) cachedWarehouse() (Warehouse, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cached == nil {
		return Warehouse{}, false
	}
	return *r.cached, true
}
