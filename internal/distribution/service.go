package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/arikurniawan9/toko-sakinah/internal/inventory"
	"github.com/arikurniawan9/toko-sakinah/internal/notifications"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

const idempotencyModule = "distribution"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WarehouseStore
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStore(ctx context.Context, id int64) (Store, error)
	GetBatch(ctx context.Context, batchID int64) (*Batch, error)
	GetBatchByIdempotencyKey(ctx context.Context, key string) (*Batch, error)
	FindLine(ctx context.Context, lineID int64) (Line, error)
	LinesByKey(ctx context.Context, key GroupKey) ([]Line, error)
	List(ctx context.Context, filter ListFilter) ([]Batch, int, error)
}

// TxRepository exposes the statements of one distribution unit of work.
type TxRepository interface {
	inventory.StockTx
	GetStore(ctx context.Context, id int64) (Store, error)
	GetWarehouseProducts(ctx context.Context, warehouseID int64, ids []int64) (map[int64]Product, error)
	InsertBatch(ctx context.Context, batch *Batch) error
	LockBatch(ctx context.Context, batchID int64) (*Batch, error)
	UpdateBatchStatus(ctx context.Context, batch *Batch) error
	EnsureStoreProduct(ctx context.Context, storeID, productID int64) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier raises the acceptance request at the target store.
type Notifier interface {
	DistributionPending(ctx context.Context, notice notifications.DistributionPending) error
}

// MetricsPort receives distribution counters.
type MetricsPort interface {
	DistributionCreated()
	StockConflict(path string)
}

// Service orchestrates warehouse distributions.
type Service struct {
	repo        RepositoryPort
	warehouses  *WarehouseResolver
	ledger      *inventory.Ledger
	audit       AuditPort
	notifier    Notifier
	idempotency shared.Idempotency
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service. audit, notifier, idem and metrics may be nil.
func NewService(repo RepositoryPort, warehouses *WarehouseResolver, audit AuditPort, notifier Notifier, idem shared.Idempotency, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if warehouses == nil {
		warehouses = NewWarehouseResolver(repo)
	}
	return &Service{
		repo:        repo,
		warehouses:  warehouses,
		ledger:      inventory.NewLedger(),
		audit:       audit,
		notifier:    notifier,
		idempotency: idem,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// ============================================================================
// CREATE
// ============================================================================

// CreateDistribution takes the requested quantities out of the central
// warehouse and records them as one batch addressed to the store.
func (s *Service) CreateDistribution(ctx context.Context, input CreateInput) (*Batch, error) {
	items, err := validateCreate(input)
	if err != nil {
		return nil, err
	}
	distributedAt, err := distributionTime(input.DistributionDate, s.now())
	if err != nil {
		return nil, shared.Invalid("distributionDate", "format tanggal tidak valid")
	}
	if input.Status == "" {
		input.Status = StatusPendingAcceptance
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" && s.idempotency != nil {
		existing, err := s.replay(ctx, key)
		if err != nil || existing != nil {
			return existing, err
		}
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return nil, err
		}
		input.IdempotencyKey = key
	} else {
		input.IdempotencyKey = ""
	}

	batch, err := s.createDistribution(ctx, input, items, distributedAt)
	if err != nil {
		if input.IdempotencyKey != "" {
			_ = s.idempotency.Delete(context.WithoutCancel(ctx), input.IdempotencyKey)
		}
		if errors.Is(err, inventory.ErrInsufficientStock) && s.metrics != nil {
			s.metrics.StockConflict("distribution")
		}
		return nil, err
	}
	s.afterCreate(ctx, input.IdempotencyKey, batch)
	return batch, nil
}

func (s *Service) replay(ctx context.Context, key string) (*Batch, error) {
	ref, err := s.idempotency.Lookup(ctx, key, idempotencyModule)
	if errors.Is(err, shared.ErrIdempotencyKeyUnknown) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if ref == "" {
		batch, err := s.repo.GetBatchByIdempotencyKey(ctx, key)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrIdempotencyConflict
		}
		if err != nil {
			return nil, fmt.Errorf("find batch by idempotency key: %w", err)
		}
		s.completeKey(ctx, key, batch)
		return batch, nil
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("idempotency ref %q: %w", ref, err)
	}
	return s.repo.GetBatch(ctx, id)
}

func (s *Service) completeKey(ctx context.Context, key string, batch *Batch) {
	if err := s.idempotency.Complete(ctx, key, strconv.FormatInt(batch.ID, 10)); err != nil {
		s.logger.Warn("complete idempotency key", slog.String("invoice", batch.InvoiceNumber), slog.Any("error", err))
	}
}

func (s *Service) createDistribution(ctx context.Context, input CreateInput, items []ItemInput, distributedAt time.Time) (*Batch, error) {
	warehouse, err := s.warehouses.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	status := input.Status

	var batch *Batch
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		store, err := tx.GetStore(ctx, input.StoreID)
		if err != nil {
			return fmt.Errorf("get store: %w", err)
		}

		ids := make([]int64, len(items))
		for i, item := range items {
			ids[i] = item.ProductID
		}
		products, err := tx.GetWarehouseProducts(ctx, warehouse.ID, ids)
		if err != nil {
			return fmt.Errorf("load warehouse products: %w", err)
		}
		var absent []int64
		for _, id := range ids {
			if _, ok := products[id]; !ok {
				absent = append(absent, id)
			}
		}
		if len(absent) > 0 {
			return &ProductNotInWarehouseError{ProductIDs: absent}
		}

		batch = &Batch{
			WarehouseID:    warehouse.ID,
			WarehouseName:  warehouse.Name,
			Store:          store,
			DistributedAt:  distributedAt,
			DistributedBy:  input.DistributedBy,
			Status:         status,
			Notes:          strings.TrimSpace(input.Notes),
			IdempotencyKey: input.IdempotencyKey,
		}
		batch.InvoiceNumber = InvoiceNumber(distributedAt, store)

		lines := make([]inventory.Line, 0, len(items))
		for _, item := range items {
			product := products[item.ProductID]
			unitPrice := product.PurchasePrice
			if item.PurchasePrice != nil {
				unitPrice = *item.PurchasePrice
			}
			line := Line{
				WarehouseID:   warehouse.ID,
				StoreID:       store.ID,
				ProductID:     product.ID,
				ProductName:   product.Name,
				Quantity:      item.Quantity,
				UnitPrice:     unitPrice,
				TotalAmount:   int64(item.Quantity) * unitPrice,
				Status:        status,
				InvoiceNumber: batch.InvoiceNumber,
				DistributedAt: distributedAt,
				DistributedBy: input.DistributedBy,
			}
			batch.Items = append(batch.Items, line)
			batch.TotalQuantity += line.Quantity
			batch.TotalAmount += line.TotalAmount
			lines = append(lines, inventory.Line{ProductID: product.ID, Quantity: item.Quantity})
		}

		ref := inventory.Ref{Module: "distribution", ID: batch.InvoiceNumber, ActorID: input.DistributedBy}
		if _, err := s.ledger.Decrement(ctx, tx, inventory.WarehouseLocation(warehouse.ID), lines, ref); err != nil {
			var missing *inventory.MissingStockError
			if errors.As(err, &missing) {
				return &ProductNotInWarehouseError{ProductIDs: missing.ProductIDs}
			}
			return err
		}
		if err := tx.InsertBatch(ctx, batch); err != nil {
			return fmt.Errorf("insert distribution batch: %w", err)
		}
		if status == StatusAccepted {
			return s.receiveIntoStore(ctx, tx, batch, input.DistributedBy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *Service) afterCreate(ctx context.Context, key string, batch *Batch) {
	if key != "" {
		s.completeKey(ctx, key, batch)
	}
	if s.metrics != nil {
		s.metrics.DistributionCreated()
	}

	items := make([]map[string]any, 0, len(batch.Items))
	for _, line := range batch.Items {
		items = append(items, map[string]any{
			"product_id":   line.ProductID,
			"product_name": line.ProductName,
			"quantity":     line.Quantity,
			"total_amount": line.TotalAmount,
		})
	}
	s.recordAudit(ctx, batch.DistributedBy, batch.Store.ID, "warehouse.distribution.create", batch.ID, map[string]any{
		"invoice_number": batch.InvoiceNumber,
		"warehouse_id":   batch.WarehouseID,
		"status":         batch.Status,
		"total_amount":   batch.TotalAmount,
		"items":          items,
	})

	if batch.Status != StatusPendingAcceptance || s.notifier == nil {
		return
	}
	notice := notifications.DistributionPending{
		BatchID:       batch.ID,
		InvoiceNumber: batch.InvoiceNumber,
		StoreID:       batch.Store.ID,
		StoreName:     batch.Store.Name,
		WarehouseName: batch.WarehouseName,
		TotalAmount:   batch.TotalAmount,
	}
	for _, line := range batch.Items {
		notice.Items = append(notice.Items, notifications.DistributionItem{ProductName: line.ProductName, Quantity: line.Quantity})
	}
	if err := s.notifier.DistributionPending(context.WithoutCancel(ctx), notice); err != nil {
		s.logger.Warn("notify distribution", slog.String("invoice", batch.InvoiceNumber), slog.Int64("store_id", batch.Store.ID), slog.Any("error", err))
	}
}

// validateCreate merges repeated products. Repeats must agree on the price override.
func validateCreate(input CreateInput) ([]ItemInput, error) {
	if input.StoreID <= 0 {
		return nil, shared.Invalid("storeId", "toko tujuan wajib diisi")
	}
	if input.DistributedBy <= 0 {
		return nil, shared.Invalid("distributedBy", "petugas gudang wajib diisi")
	}
	if input.Status != "" && input.Status != StatusPendingAcceptance && input.Status != StatusAccepted {
		return nil, shared.Invalid("status", "status awal %q tidak diizinkan", input.Status)
	}
	if len(input.Items) == 0 {
		return nil, shared.Invalid("items", "daftar produk kosong")
	}

	index := make(map[int64]int, len(input.Items))
	items := make([]ItemInput, 0, len(input.Items))
	for i, item := range input.Items {
		if item.ProductID <= 0 {
			return nil, shared.Invalid(fmt.Sprintf("items[%d].productId", i), "produk wajib diisi")
		}
		if item.Quantity <= 0 {
			return nil, shared.Invalid(fmt.Sprintf("items[%d].quantity", i), "jumlah harus lebih dari 0")
		}
		if item.PurchasePrice != nil && *item.PurchasePrice < 0 {
			return nil, shared.Invalid(fmt.Sprintf("items[%d].purchasePrice", i), "harga tidak boleh negatif")
		}
		pos, seen := index[item.ProductID]
		if !seen {
			index[item.ProductID] = len(items)
			items = append(items, item)
			continue
		}
		prev := items[pos]
		if !samePrice(prev.PurchasePrice, item.PurchasePrice) {
			return nil, shared.Invalid(fmt.Sprintf("items[%d].purchasePrice", i), "harga produk %d berbeda antar baris", item.ProductID)
		}
		prev.Quantity += item.Quantity
		items[pos] = prev
	}
	return items, nil
}

func samePrice(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ============================================================================
// DECIDE
// ============================================================================

// UpdateStatus records the store's answer. Accepting puts the quantities on
// the store shelf, rejecting returns them to the warehouse.
func (s *Service) UpdateStatus(ctx context.Context, input StatusInput) (*Batch, error) {
	if input.BatchID <= 0 {
		return nil, shared.Invalid("batchId", "id distribusi tidak valid")
	}
	if !input.Status.IsDecision() {
		return nil, shared.Invalid("status", "status harus ACCEPTED atau REJECTED")
	}

	var batch *Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockBatch(ctx, input.BatchID)
		if err != nil {
			return fmt.Errorf("lock distribution batch: %w", err)
		}
		if !locked.Status.CanDecide() {
			return fmt.Errorf("%w: %s sudah %s", ErrInvalidStatusTransition, locked.InvoiceNumber, locked.Status)
		}

		switch input.Status {
		case StatusAccepted:
			if err := s.receiveIntoStore(ctx, tx, locked, input.ActorID); err != nil {
				return err
			}
		case StatusRejected:
			ref := inventory.Ref{Module: "distribution.reject", ID: locked.InvoiceNumber, ActorID: input.ActorID}
			if _, err := s.ledger.Increment(ctx, tx, inventory.WarehouseLocation(locked.WarehouseID), stockLines(locked.Items), ref); err != nil {
				return err
			}
		}

		decidedAt := s.now()
		actor := input.ActorID
		locked.Status = input.Status
		locked.DecidedAt = &decidedAt
		if actor > 0 {
			locked.DecidedBy = &actor
		}
		for i := range locked.Items {
			locked.Items[i].Status = input.Status
		}
		if err := tx.UpdateBatchStatus(ctx, locked); err != nil {
			return fmt.Errorf("update distribution status: %w", err)
		}
		batch = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := "warehouse.distribution.accept"
	if batch.Status == StatusRejected {
		action = "warehouse.distribution.reject"
	}
	s.recordAudit(ctx, input.ActorID, batch.Store.ID, action, batch.ID, map[string]any{
		"invoice_number": batch.InvoiceNumber,
		"total_quantity": batch.TotalQuantity,
	})
	return batch, nil
}

// receiveIntoStore adds the batch quantities to the store's own product rows.
func (s *Service) receiveIntoStore(ctx context.Context, tx TxRepository, batch *Batch, actorID int64) error {
	lines := make([]inventory.Line, 0, len(batch.Items))
	for _, item := range batch.Items {
		storeProductID, err := tx.EnsureStoreProduct(ctx, batch.Store.ID, item.ProductID)
		if err != nil {
			return fmt.Errorf("ensure store product %d: %w", item.ProductID, err)
		}
		lines = append(lines, inventory.Line{ProductID: storeProductID, Quantity: item.Quantity})
	}
	ref := inventory.Ref{Module: "distribution.accept", ID: batch.InvoiceNumber, ActorID: actorID}
	_, err := s.ledger.Increment(ctx, tx, inventory.StoreLocation(batch.Store.ID), lines, ref)
	return err
}

func stockLines(items []Line) []inventory.Line {
	out := make([]inventory.Line, 0, len(items))
	for _, item := range items {
		out = append(out, inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

// ============================================================================
// READ
// ============================================================================

// GetBatch rebuilds the batch that contains the given line. Every line of a
// batch yields the same items and invoice number.
func (s *Service) GetBatch(ctx context.Context, lineID int64) (*Batch, error) {
	if lineID <= 0 {
		return nil, shared.Invalid("id", "id tidak valid")
	}
	line, err := s.repo.FindLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	key := GroupKey{DistributedAt: line.DistributedAt, StoreID: line.StoreID, WarehouseID: line.WarehouseID, DistributedBy: line.DistributedBy}
	lines, err := s.repo.LinesByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	store, err := s.repo.GetStore(ctx, line.StoreID)
	if err != nil {
		return nil, err
	}

	// A batch row disambiguates two batches that share the grouping tuple.
	members := lines[:0]
	for _, l := range lines {
		if line.BatchID == 0 || l.BatchID == line.BatchID {
			members = append(members, l)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return assembleBatch(line.BatchID, store, key, members), nil
}

func assembleBatch(batchID int64, store Store, key GroupKey, lines []Line) *Batch {
	batch := &Batch{
		ID:            batchID,
		InvoiceNumber: InvoiceNumber(key.DistributedAt, store),
		WarehouseID:   key.WarehouseID,
		Store:         store,
		DistributedAt: key.DistributedAt,
		DistributedBy: key.DistributedBy,
	}
	for _, l := range lines {
		l.InvoiceNumber = batch.InvoiceNumber
		batch.Items = append(batch.Items, l)
		batch.TotalQuantity += l.Quantity
		batch.TotalAmount += l.TotalAmount
		if batch.Status == "" {
			batch.Status = l.Status
		}
	}
	return batch
}

// List returns batches matching the filter with the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Batch, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, shared.Invalid("status", "status %q tidak dikenal", filter.Status)
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, 0, shared.Invalid("endDate", "tanggal akhir sebelum tanggal awal")
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID, storeID int64, action string, batchID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		StoreID:  storeID,
		Action:   action,
		Entity:   "warehouse_distribution",
		EntityID: strconv.FormatInt(batchID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("record distribution audit", slog.String("action", action), slog.Int64("batch_id", batchID), slog.Any("error", err))
	}
}
