package distribution

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arikurniawan9/toko-sakinah/internal/inventory"
	"github.com/arikurniawan9/toko-sakinah/internal/notifications"
	"github.com/arikurniawan9/toko-sakinah/internal/platform/db"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
	"github.com/arikurniawan9/toko-sakinah/internal/testing/fakes"
)

// memoryRepo serialises units of work with a mutex, standing in for row locks,
// and restores a snapshot when the callback fails.
type memoryRepo struct {
	mu          sync.Mutex
	stock       *fakes.Stock
	stores      map[int64]Store
	products    map[int64]Product
	productHome map[int64]int64
	batches     map[int64]Batch
	nextBatchID int64
	nextLineID  int64
	nextProduct int64

	whMu        sync.Mutex
	warehouses  map[string]Warehouse
	upserts     atomic.Int32
	upsertDelay time.Duration

	failInsertBatch error

	// commitConflicts fails that many commits with a serialization error.
	commitConflicts int
	attempts        int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		stock:       fakes.NewStock(),
		stores:      make(map[int64]Store),
		products:    make(map[int64]Product),
		productHome: make(map[int64]int64),
		batches:     make(map[int64]Batch),
		warehouses:  make(map[string]Warehouse),
		nextProduct: 1000,
	}
}

func (r *memoryRepo) addStore(id int64, code string) {
	r.stores[id] = Store{ID: id, Code: code, Name: "Toko " + code}
}

// addWarehouseProduct registers a product owned by homeStore and held by the warehouse.
func (r *memoryRepo) addWarehouseProduct(warehouseID, homeStore, id int64, name string, purchasePrice int64, qty int) {
	r.products[id] = Product{ID: id, Code: fmt.Sprintf("P%03d", id), Name: name, PurchasePrice: purchasePrice}
	r.productHome[id] = homeStore
	r.stock.Put(inventory.StoreLocation(homeStore), id, name, 0)
	r.stock.Put(inventory.WarehouseLocation(warehouseID), id, name, qty)
}

func (r *memoryRepo) warehouseQty(warehouseID, productID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stock.Quantity(inventory.WarehouseLocation(warehouseID), productID)
}

func (r *memoryRepo) storeQty(storeID, productID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stock.Quantity(inventory.StoreLocation(storeID), productID)
}

// storeProductByCode finds the store's copy of a product.
func (r *memoryRepo) storeProductByCode(storeID int64, code string) (int64, bool) {
	for id, p := range r.products {
		if r.productHome[id] == storeID && p.Code == code {
			return id, true
		}
	}
	return 0, false
}

func (r *memoryRepo) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *memoryRepo) UpsertWarehouse(_ context.Context, name string) (Warehouse, error) {
	r.upserts.Add(1)
	if r.upsertDelay > 0 {
		time.Sleep(r.upsertDelay)
	}
	r.whMu.Lock()
	defer r.whMu.Unlock()
	if w, ok := r.warehouses[name]; ok {
		return w, nil
	}
	w := Warehouse{ID: int64(len(r.warehouses) + 1), Name: name}
	r.warehouses[name] = w
	return w, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.Retry(ctx, db.DefaultMaxAttempts, func(ctx context.Context) error {
		return r.attempt(ctx, fn)
	})
}

func (r *memoryRepo) attempt(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++

	restoreStock := r.stock.Snapshot()
	batches := make(map[int64]Batch, len(r.batches))
	for k, v := range r.batches {
		batches[k] = cloneBatch(v)
	}
	products := make(map[int64]Product, len(r.products))
	homes := make(map[int64]int64, len(r.productHome))
	for k, v := range r.products {
		products[k] = v
		homes[k] = r.productHome[k]
	}
	nextBatch, nextLine, nextProduct := r.nextBatchID, r.nextLineID, r.nextProduct

	err := fn(ctx, &memoryTx{Stock: r.stock, repo: r})
	if err == nil && r.commitConflicts > 0 {
		r.commitConflicts--
		err = db.Classify(ctx, &pgconn.PgError{Code: "40P01"})
	}
	if err != nil {
		restoreStock()
		r.batches = batches
		r.products, r.productHome = products, homes
		r.nextBatchID, r.nextLineID, r.nextProduct = nextBatch, nextLine, nextProduct
		return err
	}
	return nil
}

func cloneBatch(b Batch) Batch {
	b.Items = append([]Line(nil), b.Items...)
	return b
}

func (r *memoryRepo) GetStore(_ context.Context, id int64) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store(id)
}

func (r *memoryRepo) store(id int64) (Store, error) {
	store, ok := r.stores[id]
	if !ok {
		return Store{}, fmt.Errorf("%w: toko %d", shared.ErrNotFound, id)
	}
	return store, nil
}

func (r *memoryRepo) GetBatch(_ context.Context, batchID int64) (*Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("%w: distribusi %d", shared.ErrNotFound, batchID)
	}
	b = cloneBatch(b)
	return &b, nil
}

func (r *memoryRepo) GetBatchByIdempotencyKey(_ context.Context, key string) (*Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.IdempotencyKey != "" && b.IdempotencyKey == key {
			b = cloneBatch(b)
			return &b, nil
		}
	}
	return nil, fmt.Errorf("%w: distribusi dengan kunci %s", shared.ErrNotFound, key)
}

func (r *memoryRepo) allLines() []Line {
	var out []Line
	for _, b := range r.batches {
		out = append(out, b.Items...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) FindLine(_ context.Context, lineID int64) (Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.allLines() {
		if l.ID == lineID {
			return l, nil
		}
	}
	return Line{}, fmt.Errorf("%w: distribusi %d", shared.ErrNotFound, lineID)
}

func (r *memoryRepo) LinesByKey(_ context.Context, key GroupKey) ([]Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Line
	for _, l := range r.allLines() {
		if l.DistributedAt.Equal(key.DistributedAt) && l.StoreID == key.StoreID &&
			l.WarehouseID == key.WarehouseID && l.DistributedBy == key.DistributedBy {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]Batch, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Batch
	for _, b := range r.batches {
		if filter.StoreID > 0 && b.Store.ID != filter.StoreID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	start := (filter.Page - 1) * filter.PerPage
	if start > len(out) {
		start = len(out)
	}
	end := start + filter.PerPage
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

type memoryTx struct {
	*fakes.Stock
	repo *memoryRepo
}

func (t *memoryTx) GetStore(_ context.Context, id int64) (Store, error) {
	return t.repo.store(id)
}

func (t *memoryTx) GetWarehouseProducts(_ context.Context, warehouseID int64, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product, len(ids))
	for _, id := range ids {
		p, ok := t.repo.products[id]
		if ok && t.Has(inventory.WarehouseLocation(warehouseID), id) {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memoryTx) InsertBatch(_ context.Context, batch *Batch) error {
	if t.repo.failInsertBatch != nil {
		return t.repo.failInsertBatch
	}
	t.repo.nextBatchID++
	batch.ID = t.repo.nextBatchID
	for i := range batch.Items {
		t.repo.nextLineID++
		batch.Items[i].ID = t.repo.nextLineID
		batch.Items[i].BatchID = batch.ID
	}
	t.repo.batches[batch.ID] = cloneBatch(*batch)
	return nil
}

func (t *memoryTx) LockBatch(_ context.Context, batchID int64) (*Batch, error) {
	b, ok := t.repo.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("%w: distribusi %d", shared.ErrNotFound, batchID)
	}
	b = cloneBatch(b)
	return &b, nil
}

func (t *memoryTx) UpdateBatchStatus(_ context.Context, batch *Batch) error {
	t.repo.batches[batch.ID] = cloneBatch(*batch)
	return nil
}

func (t *memoryTx) EnsureStoreProduct(_ context.Context, storeID, productID int64) (int64, error) {
	source, ok := t.repo.products[productID]
	if !ok {
		return 0, fmt.Errorf("%w: produk %d", shared.ErrNotFound, productID)
	}
	if t.repo.productHome[productID] == storeID {
		return productID, nil
	}
	if id, ok := t.repo.storeProductByCode(storeID, source.Code); ok {
		return id, nil
	}
	t.repo.nextProduct++
	id := t.repo.nextProduct
	copied := source
	copied.ID = id
	t.repo.products[id] = copied
	t.repo.productHome[id] = storeID
	t.Put(inventory.StoreLocation(storeID), id, source.Name, 0)
	return id, nil
}

// recordingNotifier collects pending-distribution notices.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []notifications.DistributionPending
	err     error
}

func (n *recordingNotifier) DistributionPending(_ context.Context, notice notifications.DistributionPending) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notices = append(n.notices, notice)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

type countingMetrics struct {
	mu        sync.Mutex
	created   int
	conflicts map[string]int
}

func (m *countingMetrics) DistributionCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *countingMetrics) StockConflict(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts == nil {
		m.conflicts = make(map[string]int)
	}
	m.conflicts[path]++
}
