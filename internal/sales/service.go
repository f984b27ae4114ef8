package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arikurniawan9/toko-sakinah/internal/inventory"
	"github.com/arikurniawan9/toko-sakinah/internal/pricing"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

const idempotencyModule = "sales"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (*Sale, error)
	GetSaleByIdempotencyKey(ctx context.Context, key string) (*Sale, error)
}

// TxRepository exposes the statements of one sale unit of work.
type TxRepository interface {
	inventory.StockTx
	GetStore(ctx context.Context, id int64) (Store, error)
	GetProducts(ctx context.Context, storeID int64, ids []int64) (map[int64]Product, error)
	GetMember(ctx context.Context, storeID, id int64) (Member, error)
	InsertSale(ctx context.Context, sale *Sale) error
	InsertReceivable(ctx context.Context, saleID int64, receivable *ReceivableSummary) error
	LockSales(ctx context.Context, ids []int64) ([]Sale, error)
	DeleteSales(ctx context.Context, ids []int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives sale counters.
type MetricsPort interface {
	SaleRecorded(status string)
	StockConflict(path string)
}

// Service records point-of-sale transactions.
type Service struct {
	repo        RepositoryPort
	ledger      *inventory.Ledger
	audit       AuditPort
	idempotency shared.Idempotency
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service. audit, idem and metrics may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idem shared.Idempotency, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		ledger:      inventory.NewLedger(),
		audit:       audit,
		idempotency: idem,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// ============================================================================
// RECORD SALE
// ============================================================================

// RecordSale prices the cart from persisted tiers, settles the payment, takes
// the stock and stores the sale with its details and receivable in one unit of
// work.
func (s *Service) RecordSale(ctx context.Context, input RecordSaleInput) (*Sale, error) {
	items, err := validateInput(input)
	if err != nil {
		return nil, err
	}
	input.Items = items

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

	sale, err := s.recordSale(ctx, input)
	if err != nil {
		if input.IdempotencyKey != "" {
			_ = s.idempotency.Delete(context.WithoutCancel(ctx), input.IdempotencyKey)
		}
		if errors.Is(err, inventory.ErrInsufficientStock) && s.metrics != nil {
			s.metrics.StockConflict("sale")
		}
		return nil, err
	}

	if input.IdempotencyKey != "" {
		s.completeKey(ctx, input.IdempotencyKey, sale)
	}
	if s.metrics != nil {
		s.metrics.SaleRecorded(string(sale.Status))
	}
	s.recordAudit(ctx, sale.CashierID, sale.StoreID, "sale.create", sale.ID, map[string]any{
		"invoice_number": sale.InvoiceNumber,
		"total":          sale.Total,
		"payment":        sale.Payment,
		"status":         sale.Status,
	})
	return sale, nil
}

func (s *Service) replay(ctx context.Context, key string) (*Sale, error) {
	ref, err := s.idempotency.Lookup(ctx, key, idempotencyModule)
	if errors.Is(err, shared.ErrIdempotencyKeyUnknown) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if ref == "" {
		// The key is claimed but unresolved: either the first request is still
		// running or it committed and could not record its ref.
		sale, err := s.repo.GetSaleByIdempotencyKey(ctx, key)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrIdempotencyConflict
		}
		if err != nil {
			return nil, fmt.Errorf("find sale by idempotency key: %w", err)
		}
		s.completeKey(ctx, key, sale)
		return sale, nil
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("idempotency ref %q: %w", ref, err)
	}
	return s.repo.GetSale(ctx, id)
}

func (s *Service) completeKey(ctx context.Context, key string, sale *Sale) {
	if err := s.idempotency.Complete(ctx, key, strconv.FormatInt(sale.ID, 10)); err != nil {
		s.logger.Warn("complete idempotency key", slog.String("invoice", sale.InvoiceNumber), slog.Any("error", err))
	}
}

func (s *Service) recordSale(ctx context.Context, input RecordSaleInput) (*Sale, error) {
	var sale *Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		store, err := tx.GetStore(ctx, input.StoreID)
		if err != nil {
			return fmt.Errorf("get store: %w", err)
		}

		ids := make([]int64, len(input.Items))
		for i, item := range input.Items {
			ids[i] = item.ProductID
		}
		products, err := tx.GetProducts(ctx, store.ID, ids)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		cart := make([]pricing.CartLine, 0, len(input.Items))
		for i, item := range input.Items {
			product, ok := products[item.ProductID]
			if !ok {
				return shared.Invalid(fmt.Sprintf("items[%d].productId", i), "produk %d tidak ditemukan di toko", item.ProductID)
			}
			cart = append(cart, pricing.CartLine{ProductID: product.ID, Quantity: item.Quantity, Tiers: product.Tiers})
		}

		var member *Member
		if input.MemberID != nil {
			m, err := tx.GetMember(ctx, store.ID, *input.MemberID)
			if errors.Is(err, shared.ErrNotFound) {
				return shared.Invalid("memberId", "member %d tidak ditemukan", *input.MemberID)
			}
			if err != nil {
				return fmt.Errorf("get member: %w", err)
			}
			member = &m
		}

		calc := pricing.ComputeTotals(cart, pricingMember(member), pricing.Options{
			AdditionalDiscount: input.AdditionalDiscount,
			TaxPercent:         input.TaxPercent,
		})
		status, change, err := settle(input, calc.GrandTotal, member)
		if err != nil {
			return err
		}

		now := s.now()
		sale = &Sale{
			InvoiceNumber:      invoiceNumber(store, now),
			StoreID:            store.ID,
			CashierID:          input.CashierID,
			AttendantID:        input.AttendantID,
			Subtotal:           calc.Subtotal,
			ItemDiscount:       calc.ItemDiscount,
			MemberDiscount:     calc.MemberDiscount,
			AdditionalDiscount: calc.AdditionalDiscount,
			Discount:           calc.TotalDiscount,
			Tax:                calc.Tax,
			Total:              calc.GrandTotal,
			Payment:            input.Payment,
			Change:             change,
			PaymentMethod:      input.PaymentMethod,
			ReferenceNumber:    strings.TrimSpace(input.ReferenceNumber),
			Status:             status,
			IdempotencyKey:     input.IdempotencyKey,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if member != nil && !member.IsDefaultCustomer {
			id := member.ID
			sale.MemberID = &id
		}

		lines := make([]inventory.Line, 0, len(calc.Lines))
		for _, line := range calc.Lines {
			lines = append(lines, inventory.Line{ProductID: line.ProductID, Quantity: line.Quantity})
			sale.Items = append(sale.Items, SaleDetail{
				ProductID:   line.ProductID,
				ProductName: products[line.ProductID].Name,
				Quantity:    line.Quantity,
				Price:       line.UnitPrice,
				Discount:    line.ItemDiscount,
				Subtotal:    line.Subtotal,
			})
		}
		ref := inventory.Ref{Module: "sales", ID: sale.InvoiceNumber, ActorID: input.CashierID}
		if _, err := s.ledger.Decrement(ctx, tx, inventory.StoreLocation(store.ID), lines, ref); err != nil {
			return err
		}

		if err := tx.InsertSale(ctx, sale); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		if status != shared.PaymentStatusPaid {
			receivable := &ReceivableSummary{
				MemberID:   *sale.MemberID,
				AmountDue:  sale.Total,
				AmountPaid: sale.Payment,
				Remaining:  sale.Total - sale.Payment,
				Status:     status,
			}
			if err := tx.InsertReceivable(ctx, sale.ID, receivable); err != nil {
				return fmt.Errorf("insert receivable: %w", err)
			}
			sale.Receivable = receivable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// settle decides the submitted status through the shared transition table and
// the change owed to the customer.
func settle(input RecordSaleInput, grandTotal int64, member *Member) (shared.PaymentStatus, int64, error) {
	paid := input.Payment
	debt := input.IsDebtRequest() || paid < grandTotal
	if input.Status == shared.PaymentStatusPaid && paid < grandTotal {
		return "", 0, shared.Invalid("payment", "pembayaran %d kurang dari total %d", paid, grandTotal)
	}
	if debt {
		if member == nil || member.IsDefaultCustomer {
			return "", 0, shared.Invalid("memberId", "transaksi hutang wajib memilih member")
		}
		if paid > grandTotal {
			return "", 0, shared.Invalid("payment", "pembayaran %d melebihi total %d", paid, grandTotal)
		}
	}
	if input.PaymentMethod != PaymentCash && paid > grandTotal {
		return "", 0, shared.Invalid("payment", "pembayaran non-tunai tidak boleh melebihi total %d", grandTotal)
	}

	status, err := shared.Transition(shared.PaymentStatusDraft, shared.SubmitEvent(grandTotal, paid))
	if err != nil {
		return "", 0, err
	}
	var change int64
	if status == shared.PaymentStatusPaid && paid > grandTotal {
		change = paid - grandTotal
	}
	return status, change, nil
}

func pricingMember(m *Member) *pricing.Member {
	if m == nil {
		return nil
	}
	return &pricing.Member{ID: m.ID, DiscountPercent: m.DiscountPercent, IsDefaultCustomer: m.IsDefaultCustomer}
}

// validateInput checks what can be checked without the store and merges
// duplicate product lines so tiers apply to the combined quantity.
func validateInput(input RecordSaleInput) ([]ItemInput, error) {
	if input.StoreID <= 0 {
		return nil, shared.Invalid("storeId", "toko wajib diisi")
	}
	if input.CashierID <= 0 {
		return nil, shared.Invalid("cashierId", "kasir wajib diisi")
	}
	if input.AttendantID <= 0 {
		return nil, shared.Invalid("attendantId", "pelayan wajib dipilih")
	}
	if len(input.Items) == 0 {
		return nil, shared.Invalid("items", "keranjang kosong")
	}
	if !input.PaymentMethod.Valid() {
		return nil, shared.Invalid("paymentMethod", "metode pembayaran %q tidak dikenal", input.PaymentMethod)
	}
	if input.PaymentMethod != PaymentCash && strings.TrimSpace(input.ReferenceNumber) == "" {
		return nil, shared.Invalid("referenceNumber", "nomor referensi wajib untuk pembayaran %s", input.PaymentMethod)
	}
	if input.Status != shared.PaymentStatusDraft && !input.Status.Valid() {
		return nil, shared.Invalid("status", "status %q tidak dikenal", input.Status)
	}
	if input.Payment < 0 {
		return nil, shared.Invalid("payment", "pembayaran tidak boleh negatif")
	}
	if input.AdditionalDiscount < 0 {
		return nil, shared.Invalid("additionalDiscount", "diskon tambahan tidak boleh negatif")
	}

	merged := make(map[int64]int, len(input.Items))
	order := make([]int64, 0, len(input.Items))
	for i, item := range input.Items {
		if item.ProductID <= 0 {
			return nil, shared.Invalid(fmt.Sprintf("items[%d].productId", i), "produk wajib diisi")
		}
		if item.Quantity <= 0 {
			return nil, shared.Invalid(fmt.Sprintf("items[%d].quantity", i), "jumlah harus lebih dari 0")
		}
		if _, ok := merged[item.ProductID]; !ok {
			order = append(order, item.ProductID)
		}
		merged[item.ProductID] += item.Quantity
	}
	items := make([]ItemInput, 0, len(order))
	for _, id := range order {
		items = append(items, ItemInput{ProductID: id, Quantity: merged[id]})
	}
	return items, nil
}

// invoiceNumber formats INV-<YYYYMMDD>-<STORECODE>-<random>.
func invoiceNumber(store Store, at time.Time) string {
	code := strings.ToUpper(strings.TrimSpace(store.Code))
	if code == "" {
		code = strconv.FormatInt(store.ID, 10)
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s-%s", at.Format("20060102"), code, suffix)
}

// ============================================================================
// READ / DELETE
// ============================================================================

// GetSale returns a sale with its lines.
func (s *Service) GetSale(ctx context.Context, id int64) (*Sale, error) {
	if id <= 0 {
		return nil, shared.Invalid("id", "id tidak valid")
	}
	return s.repo.GetSale(ctx, id)
}

// DeleteSales removes settled sales and puts their quantities back on the
// store shelf. Sales that opened a receivable are refused as a whole.
func (s *Service) DeleteSales(ctx context.Context, ids []int64, actorID int64) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, shared.Invalid("ids", "id penjualan wajib diisi")
	}

	var deleted []Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sales, err := tx.LockSales(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock sales: %w", err)
		}
		if len(sales) != len(ids) {
			return fmt.Errorf("%w: %d dari %d penjualan tidak ditemukan", shared.ErrNotFound, len(ids)-len(sales), len(ids))
		}
		for _, sale := range sales {
			if sale.Receivable != nil || sale.Status != shared.PaymentStatusPaid {
				return fmt.Errorf("%w: %s", ErrSaleHasReceivable, sale.InvoiceNumber)
			}
		}
		for _, sale := range sales {
			lines := make([]inventory.Line, 0, len(sale.Items))
			for _, item := range sale.Items {
				lines = append(lines, inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity})
			}
			if len(lines) == 0 {
				continue
			}
			ref := inventory.Ref{Module: "sales.delete", ID: sale.InvoiceNumber, ActorID: actorID}
			if _, err := s.ledger.Increment(ctx, tx, inventory.StoreLocation(sale.StoreID), lines, ref); err != nil {
				return err
			}
		}
		if err := tx.DeleteSales(ctx, ids); err != nil {
			return fmt.Errorf("delete sales: %w", err)
		}
		deleted = sales
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, sale := range deleted {
		s.recordAudit(ctx, actorID, sale.StoreID, "sale.delete", sale.ID, map[string]any{"invoice_number": sale.InvoiceNumber})
	}
	return len(deleted), nil
}

func (s *Service) recordAudit(ctx context.Context, actorID, storeID int64, action string, saleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		StoreID:  storeID,
		Action:   action,
		Entity:   "sale",
		EntityID: strconv.FormatInt(saleID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("record sale audit", slog.String("action", action), slog.Int64("sale_id", saleID), slog.Any("error", err))
	}
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
