package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads stock movement history.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PGStockTx implements StockTx on an open pgx transaction.
type PGStockTx struct {
	tx pgx.Tx
}

// NewStockTx wraps tx. Callers own the transaction lifecycle.
func NewStockTx(tx pgx.Tx) *PGStockTx {
	return &PGStockTx{tx: tx}
}

var _ StockTx = (*PGStockTx)(nil)

const lockStoreStockSQL = `SELECT id, name, stock
FROM products
WHERE store_id = $1 AND id = ANY($2)
ORDER BY id
FOR UPDATE`

const lockWarehouseStockSQL = `SELECT wp.product_id, p.name, wp.quantity
FROM warehouse_products wp
JOIN products p ON p.id = wp.product_id
WHERE wp.warehouse_id = $1 AND wp.product_id = ANY($2)
ORDER BY wp.product_id
FOR UPDATE OF wp`

// LockStock selects stock rows FOR UPDATE in ascending product id.
func (s *PGStockTx) LockStock(ctx context.Context, loc Location, productIDs []int64) (map[int64]StockRow, error) {
	query, err := lockQuery(loc)
	if err != nil {
		return nil, err
	}
	rows, err := s.tx.Query(ctx, query, loc.ID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64]StockRow, len(productIDs))
	for rows.Next() {
		var row StockRow
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.Quantity); err != nil {
			return nil, err
		}
		result[row.ProductID] = row
	}
	return result, rows.Err()
}

// AdjustStock adds delta to the locked row.
func (s *PGStockTx) AdjustStock(ctx context.Context, loc Location, productID int64, delta int) error {
	var query string
	switch loc.Kind {
	case LocationStore:
		query = `UPDATE products SET stock = stock + $3, updated_at = NOW() WHERE store_id = $1 AND id = $2`
	case LocationWarehouse:
		query = `UPDATE warehouse_products SET quantity = quantity + $3, updated_at = NOW() WHERE warehouse_id = $1 AND product_id = $2`
	default:
		return fmt.Errorf("inventory: unknown location kind %q", loc.Kind)
	}
	tag, err := s.tx.Exec(ctx, query, loc.ID, productID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return &MissingStockError{Location: loc, ProductIDs: []int64{productID}}
	}
	return nil
}

// InsertMovements copies the movements into stock_movements.
func (s *PGStockTx) InsertMovements(ctx context.Context, movements []Movement) error {
	if len(movements) == 0 {
		return nil
	}
	columns := []string{"location_kind", "location_id", "product_id", "qty_change", "balance_after", "ref_module", "ref_id", "actor_id", "posted_at"}
	_, err := s.tx.CopyFrom(ctx, pgx.Identifier{"stock_movements"}, columns,
		pgx.CopyFromSlice(len(movements), func(i int) ([]any, error) {
			m := movements[i]
			var actor any
			if m.ActorID != 0 {
				actor = m.ActorID
			}
			return []any{string(m.Location.Kind), m.Location.ID, m.ProductID, m.QtyChange, m.BalanceAfter, m.RefModule, m.RefID, actor, m.PostedAt}, nil
		}))
	return err
}

func lockQuery(loc Location) (string, error) {
	switch loc.Kind {
	case LocationStore:
		return lockStoreStockSQL, nil
	case LocationWarehouse:
		return lockWarehouseStockSQL, nil
	default:
		return "", fmt.Errorf("inventory: unknown location kind %q", loc.Kind)
	}
}

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	Location  Location
	ProductID int64
	From      time.Time
	To        time.Time
	Limit     int
}

// ListMovements returns the stock card of a location, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var from, to any
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}
	var product any
	if filter.ProductID != 0 {
		product = filter.ProductID
	}
	rows, err := r.pool.Query(ctx, `SELECT location_kind, location_id, product_id, qty_change, balance_after, ref_module, ref_id, COALESCE(actor_id, 0), posted_at
FROM stock_movements
WHERE location_kind = $1 AND location_id = $2
  AND ($3::BIGINT IS NULL OR product_id = $3)
  AND ($4::TIMESTAMPTZ IS NULL OR posted_at >= $4)
  AND ($5::TIMESTAMPTZ IS NULL OR posted_at < $5)
ORDER BY posted_at DESC, id DESC
LIMIT $6`, string(filter.Location.Kind), filter.Location.ID, product, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		var kind string
		if err := rows.Scan(&kind, &m.Location.ID, &m.ProductID, &m.QtyChange, &m.BalanceAfter, &m.RefModule, &m.RefID, &m.ActorID, &m.PostedAt); err != nil {
			return nil, err
		}
		m.Location.Kind = LocationKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}
