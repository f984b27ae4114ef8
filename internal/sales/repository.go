package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arikurniawan9/toko-sakinah/internal/inventory"
	"github.com/arikurniawan9/toko-sakinah/internal/platform/db"
	"github.com/arikurniawan9/toko-sakinah/internal/pricing"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// Repository persists sales in PostgreSQL.
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

var _ TxRepository = (*txRepo)(nil)

// WithTx executes fn inside a repeatable-read transaction bounded by txTimeout.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.TxOptions{Timeout: r.txTimeout}, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{PGStockTx: inventory.NewStockTx(tx), tx: tx})
	})
}

const saleColumns = `s.id, s.invoice_number, s.store_id, s.cashier_id, s.attendant_id, s.member_id,
	s.subtotal, s.item_discount, s.member_discount, s.additional_discount, s.discount, s.tax, s.total,
	s.payment, s.change, s.payment_method, COALESCE(s.reference_number, ''), s.status,
	COALESCE(s.idempotency_key, ''), s.created_at, s.updated_at,
	r.id, r.member_id, r.amount_due, r.amount_paid, r.status`

const saleFrom = `FROM sales s LEFT JOIN receivables r ON r.sale_id = s.id`

// GetSale loads a sale with its details and receivable.
func (r *Repository) GetSale(ctx context.Context, id int64) (*Sale, error) {
	return r.getSale(ctx, `s.id = $1`, id, fmt.Sprintf("penjualan %d", id))
}

// GetSaleByIdempotencyKey loads the sale committed under key.
func (r *Repository) GetSaleByIdempotencyKey(ctx context.Context, key string) (*Sale, error) {
	return r.getSale(ctx, `s.idempotency_key = $1`, key, fmt.Sprintf("penjualan dengan kunci %s", key))
}

func (r *Repository) getSale(ctx context.Context, where string, arg any, label string) (*Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` `+saleFrom+` WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", shared.ErrNotFound, label)
		}
		return nil, err
	}
	details, err := loadDetails(ctx, r.pool, []int64{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = details[sale.ID]
	return sale, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadDetails(ctx context.Context, q querier, saleIDs []int64) (map[int64][]SaleDetail, error) {
	rows, err := q.Query(ctx, `SELECT id, sale_id, product_id, product_name, quantity, price, discount, subtotal
FROM sale_details WHERE sale_id = ANY($1) ORDER BY sale_id, id`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]SaleDetail, len(saleIDs))
	for rows.Next() {
		var d SaleDetail
		if err := rows.Scan(&d.ID, &d.SaleID, &d.ProductID, &d.ProductName, &d.Quantity, &d.Price, &d.Discount, &d.Subtotal); err != nil {
			return nil, err
		}
		out[d.SaleID] = append(out[d.SaleID], d)
	}
	return out, rows.Err()
}

func scanSale(row pgx.Row) (*Sale, error) {
	var (
		sale       Sale
		method     string
		status     string
		recvID     *int64
		recvMember *int64
		recvDue    *int64
		recvPaid   *int64
		recvStatus *string
	)
	err := row.Scan(&sale.ID, &sale.InvoiceNumber, &sale.StoreID, &sale.CashierID, &sale.AttendantID, &sale.MemberID,
		&sale.Subtotal, &sale.ItemDiscount, &sale.MemberDiscount, &sale.AdditionalDiscount, &sale.Discount, &sale.Tax, &sale.Total,
		&sale.Payment, &sale.Change, &method, &sale.ReferenceNumber, &status,
		&sale.IdempotencyKey, &sale.CreatedAt, &sale.UpdatedAt,
		&recvID, &recvMember, &recvDue, &recvPaid, &recvStatus)
	if err != nil {
		return nil, err
	}
	sale.PaymentMethod = PaymentMethod(method)
	sale.Status = shared.PaymentStatus(status)
	if recvID != nil {
		sale.Receivable = &ReceivableSummary{
			ID:         *recvID,
			MemberID:   deref(recvMember),
			AmountDue:  deref(recvDue),
			AmountPaid: deref(recvPaid),
			Status:     shared.PaymentStatus(derefString(recvStatus)),
		}
		sale.Receivable.Remaining = sale.Receivable.AmountDue - sale.Receivable.AmountPaid
	}
	return &sale, nil
}

func (t *txRepo) GetStore(ctx context.Context, id int64) (Store, error) {
	var store Store
	err := t.tx.QueryRow(ctx, `SELECT id, code, name FROM stores WHERE id = $1`, id).Scan(&store.ID, &store.Code, &store.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Store{}, fmt.Errorf("%w: toko %d", shared.ErrNotFound, id)
	}
	return store, err
}

func (t *txRepo) GetProducts(ctx context.Context, storeID int64, ids []int64) (map[int64]Product, error) {
	rows, err := t.tx.Query(ctx, `SELECT p.id, p.name, t.min_qty, t.price
FROM products p
LEFT JOIN product_price_tiers t ON t.product_id = p.id
WHERE p.store_id = $1 AND p.id = ANY($2)
ORDER BY p.id, t.min_qty`, storeID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]Product, len(ids))
	for rows.Next() {
		var (
			id     int64
			name   string
			minQty *int
			price  *int64
		)
		if err := rows.Scan(&id, &name, &minQty, &price); err != nil {
			return nil, err
		}
		product := out[id]
		product.ID = id
		product.Name = name
		if minQty != nil && price != nil {
			product.Tiers = append(product.Tiers, pricing.PriceTier{MinQty: *minQty, Price: *price})
		}
		out[id] = product
	}
	return out, rows.Err()
}

func (t *txRepo) GetMember(ctx context.Context, storeID, id int64) (Member, error) {
	var m Member
	err := t.tx.QueryRow(ctx, `SELECT id, name, discount_percent::FLOAT8, is_default_customer
FROM members WHERE id = $1 AND store_id = $2`, id, storeID).Scan(&m.ID, &m.Name, &m.DiscountPercent, &m.IsDefaultCustomer)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, fmt.Errorf("%w: member %d", shared.ErrNotFound, id)
	}
	return m, err
}

func (t *txRepo) InsertSale(ctx context.Context, sale *Sale) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO sales (invoice_number, store_id, cashier_id, attendant_id, member_id,
	subtotal, item_discount, member_discount, additional_discount, discount, tax, total, payment, change,
	payment_method, reference_number, status, idempotency_key, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULLIF($16, ''), $17, NULLIF($18, ''), $19, $19)
RETURNING id`,
		sale.InvoiceNumber, sale.StoreID, sale.CashierID, sale.AttendantID, sale.MemberID,
		sale.Subtotal, sale.ItemDiscount, sale.MemberDiscount, sale.AdditionalDiscount, sale.Discount, sale.Tax, sale.Total,
		sale.Payment, sale.Change, string(sale.PaymentMethod), sale.ReferenceNumber, string(sale.Status), sale.IdempotencyKey,
		sale.CreatedAt).Scan(&sale.ID)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range sale.Items {
		batch.Queue(`INSERT INTO sale_details (sale_id, product_id, product_name, quantity, price, discount, subtotal)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			sale.ID, item.ProductID, item.ProductName, item.Quantity, item.Price, item.Discount, item.Subtotal)
	}
	results := t.tx.SendBatch(ctx, batch)
	defer results.Close()
	for i := range sale.Items {
		if err := results.QueryRow().Scan(&sale.Items[i].ID); err != nil {
			return fmt.Errorf("insert sale detail %d: %w", i, err)
		}
		sale.Items[i].SaleID = sale.ID
	}
	return nil
}

func (t *txRepo) InsertReceivable(ctx context.Context, saleID int64, receivable *ReceivableSummary) error {
	return t.tx.QueryRow(ctx, `INSERT INTO receivables (sale_id, store_id, member_id, amount_due, amount_paid, status, created_at, updated_at)
SELECT id, store_id, $2, $3, $4, $5, NOW(), NOW() FROM sales WHERE id = $1
RETURNING id`, saleID, receivable.MemberID, receivable.AmountDue, receivable.AmountPaid, string(receivable.Status)).Scan(&receivable.ID)
}

func (t *txRepo) LockSales(ctx context.Context, ids []int64) ([]Sale, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+saleColumns+` `+saleFrom+` WHERE s.id = ANY($1) ORDER BY s.id FOR UPDATE OF s`, ids)
	if err != nil {
		return nil, err
	}
	var sales []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sales = append(sales, *sale)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, nil
	}
	details, err := loadDetails(ctx, t.tx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = details[sales[i].ID]
	}
	return sales, nil
}

func (t *txRepo) DeleteSales(ctx context.Context, ids []int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM sale_details WHERE sale_id = ANY($1)`, ids); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM sales WHERE id = ANY($1)`, ids)
	return err
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
