package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arikurniawan9/toko-sakinah/internal/inventory"
	"github.com/arikurniawan9/toko-sakinah/internal/platform/db"
	"github.com/arikurniawan9/toko-sakinah/internal/pricing"
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
	members     map[int64]Member
	memberHome  map[int64]int64
	sales       map[int64]Sale
	nextSaleID  int64
	nextRecvID  int64

	failInsertReceivable error

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
		members:     make(map[int64]Member),
		memberHome:  make(map[int64]int64),
		sales:       make(map[int64]Sale),
	}
}

func (r *memoryRepo) addStore(id int64, code string) {
	r.stores[id] = Store{ID: id, Code: code, Name: "Toko " + code}
}

func (r *memoryRepo) addProduct(storeID, id int64, name string, stock int, tiers ...pricing.PriceTier) {
	r.products[id] = Product{ID: id, Name: name, Tiers: tiers}
	r.productHome[id] = storeID
	r.stock.Put(inventory.StoreLocation(storeID), id, name, stock)
}

func (r *memoryRepo) addMember(storeID int64, m Member) {
	r.members[m.ID] = m
	r.memberHome[m.ID] = storeID
}

func (r *memoryRepo) stockOf(storeID, productID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stock.Quantity(inventory.StoreLocation(storeID), productID)
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
	sales := make(map[int64]Sale, len(r.sales))
	for k, v := range r.sales {
		sales[k] = v
	}
	nextSale, nextRecv := r.nextSaleID, r.nextRecvID

	err := fn(ctx, &memoryTx{Stock: r.stock, repo: r})
	if err == nil && r.commitConflicts > 0 {
		r.commitConflicts--
		err = db.Classify(ctx, &pgconn.PgError{Code: "40001"})
	}
	if err != nil {
		restoreStock()
		r.sales = sales
		r.nextSaleID, r.nextRecvID = nextSale, nextRecv
		return err
	}
	return nil
}

func (r *memoryRepo) GetSaleByIdempotencyKey(_ context.Context, key string) (*Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sale := range r.sales {
		if sale.IdempotencyKey != "" && sale.IdempotencyKey == key {
			return &sale, nil
		}
	}
	return nil, fmt.Errorf("%w: penjualan dengan kunci %s", shared.ErrNotFound, key)
}

func (r *memoryRepo) GetSale(_ context.Context, id int64) (*Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.sales[id]
	if !ok {
		return nil, fmt.Errorf("%w: penjualan %d", shared.ErrNotFound, id)
	}
	return &sale, nil
}

type memoryTx struct {
	*fakes.Stock
	repo *memoryRepo
}

func (t *memoryTx) GetStore(_ context.Context, id int64) (Store, error) {
	store, ok := t.repo.stores[id]
	if !ok {
		return Store{}, fmt.Errorf("%w: toko %d", shared.ErrNotFound, id)
	}
	return store, nil
}

func (t *memoryTx) GetProducts(_ context.Context, storeID int64, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product)
	for _, id := range ids {
		if p, ok := t.repo.products[id]; ok && t.repo.productHome[id] == storeID {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memoryTx) GetMember(_ context.Context, storeID, id int64) (Member, error) {
	m, ok := t.repo.members[id]
	if !ok || t.repo.memberHome[id] != storeID {
		return Member{}, fmt.Errorf("%w: member %d", shared.ErrNotFound, id)
	}
	return m, nil
}

func (t *memoryTx) InsertSale(_ context.Context, sale *Sale) error {
	for _, existing := range t.repo.sales {
		if existing.InvoiceNumber == sale.InvoiceNumber {
			return errors.New("duplicate invoice number")
		}
	}
	t.repo.nextSaleID++
	sale.ID = t.repo.nextSaleID
	for i := range sale.Items {
		sale.Items[i].ID = int64(i + 1)
		sale.Items[i].SaleID = sale.ID
	}
	t.repo.sales[sale.ID] = *sale
	return nil
}

func (t *memoryTx) InsertReceivable(_ context.Context, saleID int64, receivable *ReceivableSummary) error {
	if t.repo.failInsertReceivable != nil {
		return t.repo.failInsertReceivable
	}
	t.repo.nextRecvID++
	receivable.ID = t.repo.nextRecvID
	sale := t.repo.sales[saleID]
	copied := *receivable
	sale.Receivable = &copied
	t.repo.sales[saleID] = sale
	return nil
}

func (t *memoryTx) LockSales(_ context.Context, ids []int64) ([]Sale, error) {
	var out []Sale
	for _, id := range ids {
		if sale, ok := t.repo.sales[id]; ok {
			out = append(out, sale)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) DeleteSales(_ context.Context, ids []int64) error {
	for _, id := range ids {
		delete(t.repo.sales, id)
	}
	return nil
}
