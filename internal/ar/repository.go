package ar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arikurniawan9/toko-sakinah/internal/platform/db"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// Repository provides PostgreSQL backed persistence for receivables.
type Repository struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, txTimeout time.Duration) *Repository {
	return &Repository{pool: pool, txTimeout: txTimeout}
}

type txRepo struct {
	tx pgx.Tx
}

var _ TxRepository = (*txRepo)(nil)

// WithTx runs fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, db.TxOptions{Timeout: r.txTimeout}, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const receivableSelect = `SELECT r.id, r.sale_id, s.invoice_number, r.store_id, r.member_id, m.name,
	r.amount_due, r.amount_paid, r.status, r.created_at, r.updated_at
FROM receivables r
JOIN sales s ON s.id = r.sale_id
JOIN members m ON m.id = r.member_id`

func scanReceivable(row pgx.Row) (Receivable, error) {
	var (
		rec    Receivable
		status string
	)
	err := row.Scan(&rec.ID, &rec.SaleID, &rec.InvoiceNumber, &rec.StoreID, &rec.MemberID, &rec.MemberName,
		&rec.AmountDue, &rec.AmountPaid, &status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Receivable{}, err
	}
	rec.Status = shared.PaymentStatus(status)
	rec.Remaining = rec.AmountDue - rec.AmountPaid
	return rec, nil
}

// Get loads a receivable with its payments.
func (r *Repository) Get(ctx context.Context, id int64) (*Receivable, error) {
	rec, err := scanReceivable(r.pool.QueryRow(ctx, receivableSelect+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: piutang %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, receivable_id, amount, payment_method, reference_number, received_by, paid_at
FROM receivable_payments WHERE receivable_id = $1 ORDER BY paid_at, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p          Payment
			reference  pgtype.Text
			receivedBy pgtype.Int8
		)
		if err := rows.Scan(&p.ID, &p.ReceivableID, &p.Amount, &p.PaymentMethod, &reference, &receivedBy, &p.PaidAt); err != nil {
			return nil, err
		}
		p.ReferenceNumber = reference.String
		p.ReceivedBy = receivedBy.Int64
		rec.Payments = append(rec.Payments, p)
	}
	return &rec, rows.Err()
}

// List returns a filtered page ordered by newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Receivable, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.StoreID > 0 {
		add("r.store_id = $%d", filter.StoreID)
	}
	if filter.MemberID > 0 {
		add("r.member_id = $%d", filter.MemberID)
	}
	if filter.Status != "" {
		add("r.status = $%d", string(filter.Status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(s.invoice_number ILIKE $%d OR m.name ILIKE $%d)", n, n))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countSQL := `SELECT COUNT(*) FROM receivables r JOIN sales s ON s.id = r.sale_id JOIN members m ON m.id = r.member_id` + clause
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf("%s%s ORDER BY r.created_at DESC, r.id DESC LIMIT $%d OFFSET $%d", receivableSelect, clause, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Receivable
	for rows.Next() {
		rec, err := scanReceivable(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// ListOutstanding returns unsettled receivables of a store, all stores when storeID is 0.
func (r *Repository) ListOutstanding(ctx context.Context, storeID int64) ([]Receivable, error) {
	rows, err := r.pool.Query(ctx, receivableSelect+` WHERE r.status <> 'PAID' AND ($1::BIGINT = 0 OR r.store_id = $1)`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receivable
	for rows.Next() {
		rec, err := scanReceivable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *txRepo) LockReceivable(ctx context.Context, id int64) (Receivable, error) {
	rec, err := scanReceivable(t.tx.QueryRow(ctx, receivableSelect+` WHERE r.id = $1 FOR UPDATE OF r`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Receivable{}, fmt.Errorf("%w: piutang %d", shared.ErrNotFound, id)
	}
	return rec, err
}

func (t *txRepo) UpdateBalance(ctx context.Context, id int64, amountPaid int64, status shared.PaymentStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE receivables SET amount_paid = $2, status = $3, updated_at = NOW() WHERE id = $1`, id, amountPaid, string(status))
	return err
}

// FindPaymentByIdempotencyKey returns the payment committed under key.
func (r *Repository) FindPaymentByIdempotencyKey(ctx context.Context, key string) (Payment, error) {
	var p Payment
	err := r.pool.QueryRow(ctx, `SELECT id, receivable_id, amount, payment_method, paid_at
FROM receivable_payments WHERE idempotency_key = $1`, key).Scan(&p.ID, &p.ReceivableID, &p.Amount, &p.PaymentMethod, &p.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, fmt.Errorf("%w: pembayaran dengan kunci %s", shared.ErrNotFound, key)
	}
	return p, err
}

func (t *txRepo) InsertPayment(ctx context.Context, payment *Payment) error {
	var reference, key pgtype.Text
	if payment.ReferenceNumber != "" {
		reference = pgtype.Text{String: payment.ReferenceNumber, Valid: true}
	}
	if payment.IdempotencyKey != "" {
		key = pgtype.Text{String: payment.IdempotencyKey, Valid: true}
	}
	var receivedBy pgtype.Int8
	if payment.ReceivedBy > 0 {
		receivedBy = pgtype.Int8{Int64: payment.ReceivedBy, Valid: true}
	}
	return t.tx.QueryRow(ctx, `INSERT INTO receivable_payments (receivable_id, amount, payment_method, reference_number,
	received_by, paid_at, idempotency_key)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		payment.ReceivableID, payment.Amount, payment.PaymentMethod, reference, receivedBy, payment.PaidAt, key).Scan(&payment.ID)
}

func (t *txRepo) UpdateSaleStatus(ctx context.Context, saleID int64, status shared.PaymentStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales SET status = $2, updated_at = NOW() WHERE id = $1`, saleID, string(status))
	return err
}
