package distribution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arikurniawan9/toko-sakinah/internal/inventory"
	"github.com/arikurniawan9/toko-sakinah/internal/platform/db"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// Repository persists distributions in PostgreSQL.
type Repository struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

// NewRepository constructs Repository. A zero txTimeout uses db.DefaultTxTimeout.
func NewRepository(pool *pgxpool.Pool, txTimeout time.Duration) *Repository {
	return &Repository{pool: pool, txTimeout: txTimeout}
}

type txRepo struct {
	*inventory.PGStockTx
	tx pgx.Tx
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepo)(nil)
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx executes fn inside a repeatable-read transaction bounded by txTimeout.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.TxOptions{Timeout: r.txTimeout}, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{PGStockTx: inventory.NewStockTx(tx), tx: tx})
	})
}

// UpsertWarehouse returns the warehouse with the given name, creating it once.
func (r *Repository) UpsertWarehouse(ctx context.Context, name string) (Warehouse, error) {
	var w Warehouse
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name`, name).Scan(&w.ID, &w.Name)
	return w, err
}

// GetStore loads a store.
func (r *Repository) GetStore(ctx context.Context, id int64) (Store, error) {
	return getStore(ctx, r.pool, id)
}

func (t *txRepo) GetStore(ctx context.Context, id int64) (Store, error) {
	return getStore(ctx, t.tx, id)
}

func getStore(ctx context.Context, q querier, id int64) (Store, error) {
	var store Store
	err := q.QueryRow(ctx, `SELECT id, code, name FROM stores WHERE id = $1`, id).Scan(&store.ID, &store.Code, &store.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Store{}, fmt.Errorf("%w: toko %d", shared.ErrNotFound, id)
	}
	return store, err
}

const batchColumns = `b.id, b.invoice_number, b.warehouse_id, w.name, b.store_id, st.code, st.name,
	b.distributed_at, b.distributed_by, b.status, b.total_quantity, b.total_amount, COALESCE(b.notes, ''),
	b.decided_by, b.decided_at`

const batchFrom = `FROM warehouse_distribution_batches b
JOIN warehouses w ON w.id = b.warehouse_id
JOIN stores st ON st.id = b.store_id`

const lineColumns = `d.id, COALESCE(d.batch_id, 0), d.warehouse_id, d.store_id, d.product_id, p.name,
	d.quantity, d.unit_price, d.total_amount, d.status, d.invoice_number, d.distributed_at, d.distributed_by`

const lineFrom = `FROM warehouse_distributions d JOIN products p ON p.id = d.product_id`

func scanBatch(row pgx.Row) (*Batch, error) {
	var (
		b         Batch
		status    string
		decidedBy pgtype.Int8
		decidedAt pgtype.Timestamptz
	)
	err := row.Scan(&b.ID, &b.InvoiceNumber, &b.WarehouseID, &b.WarehouseName, &b.Store.ID, &b.Store.Code, &b.Store.Name,
		&b.DistributedAt, &b.DistributedBy, &status, &b.TotalQuantity, &b.TotalAmount, &b.Notes,
		&decidedBy, &decidedAt)
	if err != nil {
		return nil, err
	}
	b.Status = Status(status)
	if decidedBy.Valid {
		b.DecidedBy = &decidedBy.Int64
	}
	if decidedAt.Valid {
		b.DecidedAt = &decidedAt.Time
	}
	return &b, nil
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	defer rows.Close()
	var out []Line
	for rows.Next() {
		var (
			l      Line
			status string
		)
		if err := rows.Scan(&l.ID, &l.BatchID, &l.WarehouseID, &l.StoreID, &l.ProductID, &l.ProductName,
			&l.Quantity, &l.UnitPrice, &l.TotalAmount, &status, &l.InvoiceNumber, &l.DistributedAt, &l.DistributedBy); err != nil {
			return nil, err
		}
		l.Status = Status(status)
		out = append(out, l)
	}
	return out, rows.Err()
}

func loadLines(ctx context.Context, q querier, batchIDs []int64) (map[int64][]Line, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` `+lineFrom+` WHERE d.batch_id = ANY($1) ORDER BY d.batch_id, d.id`, batchIDs)
	if err != nil {
		return nil, err
	}
	lines, err := scanLines(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]Line, len(batchIDs))
	for _, l := range lines {
		out[l.BatchID] = append(out[l.BatchID], l)
	}
	return out, nil
}

// GetBatch loads a batch with its lines.
func (r *Repository) GetBatch(ctx context.Context, batchID int64) (*Batch, error) {
	return getBatch(ctx, r.pool, batchID, "")
}

// GetBatchByIdempotencyKey loads the batch committed under key.
func (r *Repository) GetBatchByIdempotencyKey(ctx context.Context, key string) (*Batch, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM warehouse_distribution_batches WHERE idempotency_key = $1`, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: distribusi dengan kunci %s", shared.ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return r.GetBatch(ctx, id)
}

func getBatch(ctx context.Context, q querier, batchID int64, lock string) (*Batch, error) {
	batch, err := scanBatch(q.QueryRow(ctx, `SELECT `+batchColumns+` `+batchFrom+` WHERE b.id = $1`+lock, batchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: distribusi %d", shared.ErrNotFound, batchID)
	}
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, q, []int64{batchID})
	if err != nil {
		return nil, err
	}
	batch.Items = lines[batchID]
	return batch, nil
}

// FindLine loads one distribution line.
func (r *Repository) FindLine(ctx context.Context, lineID int64) (Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lineColumns+` `+lineFrom+` WHERE d.id = $1`, lineID)
	if err != nil {
		return Line{}, err
	}
	lines, err := scanLines(rows)
	if err != nil {
		return Line{}, err
	}
	if len(lines) == 0 {
		return Line{}, fmt.Errorf("%w: distribusi %d", shared.ErrNotFound, lineID)
	}
	return lines[0], nil
}

// LinesByKey returns every line sharing the grouping tuple.
func (r *Repository) LinesByKey(ctx context.Context, key GroupKey) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lineColumns+` `+lineFrom+`
WHERE d.distributed_at = $1 AND d.store_id = $2 AND d.warehouse_id = $3 AND d.distributed_by = $4
ORDER BY d.id`, key.DistributedAt, key.StoreID, key.WarehouseID, key.DistributedBy)
	if err != nil {
		return nil, err
	}
	return scanLines(rows)
}

// List returns batches matching filter, newest first, with the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Batch, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.StoreID > 0 {
		add("b.store_id = $%d", filter.StoreID)
	}
	if filter.Status != "" {
		add("b.status = $%d", string(filter.Status))
	}
	if filter.StartDate != nil {
		add("b.distributed_at >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("b.distributed_at < $%d", filter.EndDate.AddDate(0, 0, 1))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(b.invoice_number ILIKE $%d OR st.name ILIKE $%d OR EXISTS (
	SELECT 1 FROM warehouse_distributions d JOIN products p ON p.id = d.product_id
	WHERE d.batch_id = b.id AND p.name ILIKE $%d))`, n, n, n))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) `+batchFrom+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf("SELECT %s %s%s ORDER BY b.distributed_at DESC, b.id DESC LIMIT $%d OFFSET $%d", batchColumns, batchFrom, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	var (
		out []Batch
		ids []int64
	)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, *b)
		ids = append(ids, b.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return out, total, nil
	}
	lines, err := loadLines(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Items = lines[out[i].ID]
	}
	return out, total, nil
}

func (t *txRepo) GetWarehouseProducts(ctx context.Context, warehouseID int64, ids []int64) (map[int64]Product, error) {
	rows, err := t.tx.Query(ctx, `SELECT p.id, p.code, p.name, p.purchase_price
FROM warehouse_products wp
JOIN products p ON p.id = wp.product_id
WHERE wp.warehouse_id = $1 AND wp.product_id = ANY($2)`, warehouseID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.PurchasePrice); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (t *txRepo) InsertBatch(ctx context.Context, batch *Batch) error {
	var notes, key pgtype.Text
	if batch.Notes != "" {
		notes = pgtype.Text{String: batch.Notes, Valid: true}
	}
	if batch.IdempotencyKey != "" {
		key = pgtype.Text{String: batch.IdempotencyKey, Valid: true}
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO warehouse_distribution_batches (invoice_number, warehouse_id, store_id,
	distributed_at, distributed_by, status, total_quantity, total_amount, notes, idempotency_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
RETURNING id`,
		batch.InvoiceNumber, batch.WarehouseID, batch.Store.ID, batch.DistributedAt, batch.DistributedBy,
		string(batch.Status), batch.TotalQuantity, batch.TotalAmount, notes, key).Scan(&batch.ID)
	if err != nil {
		return err
	}

	queued := &pgx.Batch{}
	for _, line := range batch.Items {
		queued.Queue(`INSERT INTO warehouse_distributions (batch_id, warehouse_id, store_id, product_id, quantity,
	unit_price, total_amount, status, invoice_number, distributed_at, distributed_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
			batch.ID, line.WarehouseID, line.StoreID, line.ProductID, line.Quantity,
			line.UnitPrice, line.TotalAmount, string(line.Status), line.InvoiceNumber, line.DistributedAt, line.DistributedBy)
	}
	results := t.tx.SendBatch(ctx, queued)
	defer results.Close()
	for i := range batch.Items {
		if err := results.QueryRow().Scan(&batch.Items[i].ID); err != nil {
			return fmt.Errorf("insert distribution line %d: %w", i, err)
		}
		batch.Items[i].BatchID = batch.ID
	}
	return nil
}

func (t *txRepo) LockBatch(ctx context.Context, batchID int64) (*Batch, error) {
	return getBatch(ctx, t.tx, batchID, " FOR UPDATE OF b")
}

func (t *txRepo) UpdateBatchStatus(ctx context.Context, batch *Batch) error {
	var decidedBy pgtype.Int8
	if batch.DecidedBy != nil {
		decidedBy = pgtype.Int8{Int64: *batch.DecidedBy, Valid: true}
	}
	var decidedAt pgtype.Timestamptz
	if batch.DecidedAt != nil {
		decidedAt = pgtype.Timestamptz{Time: *batch.DecidedAt, Valid: true}
	}
	if _, err := t.tx.Exec(ctx, `UPDATE warehouse_distribution_batches SET status = $2, decided_by = $3, decided_at = $4 WHERE id = $1`,
		batch.ID, string(batch.Status), decidedBy, decidedAt); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `UPDATE warehouse_distributions SET status = $2 WHERE batch_id = $1`, batch.ID, string(batch.Status))
	return err
}

// EnsureStoreProduct returns the store's own product matching the warehouse
// product by code, copying the product and its tiers into the store on first
// delivery.
func (t *txRepo) EnsureStoreProduct(ctx context.Context, storeID, productID int64) (int64, error) {
	var (
		sourceStore int64
		code        string
	)
	err := t.tx.QueryRow(ctx, `SELECT store_id, code FROM products WHERE id = $1`, productID).Scan(&sourceStore, &code)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: produk %d", shared.ErrNotFound, productID)
	}
	if err != nil {
		return 0, err
	}
	if sourceStore == storeID {
		return productID, nil
	}

	var id int64
	err = t.tx.QueryRow(ctx, `INSERT INTO products (store_id, code, name, purchase_price, stock, created_at, updated_at)
SELECT $1, code, name, purchase_price, 0, NOW(), NOW() FROM products WHERE id = $2
ON CONFLICT (store_id, code) DO UPDATE SET updated_at = products.updated_at
RETURNING id`, storeID, productID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("copy product %s: %w", code, err)
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO product_price_tiers (product_id, min_qty, price)
SELECT $1, min_qty, price FROM product_price_tiers WHERE product_id = $2
ON CONFLICT (product_id, min_qty) DO NOTHING`, id, productID)
	return id, err
}
