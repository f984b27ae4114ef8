package ar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/arikurniawan9/toko-sakinah/internal/platform/cache"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

const (
	idempotencyModule = "ar.payment"
	// DefaultTermDays is the credit term used to age receivables.
	DefaultTermDays = 30
	// DefaultLockTTL bounds the submit-once guard.
	DefaultLockTTL = 10 * time.Second
)

// RepositoryPort defines data access methods for receivables.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Receivable, error)
	List(ctx context.Context, filter ListFilter) ([]Receivable, int, error)
	ListOutstanding(ctx context.Context, storeID int64) ([]Receivable, error)
	FindPaymentByIdempotencyKey(ctx context.Context, key string) (Payment, error)
}

// TxRepository exposes the statements of one payment unit of work.
type TxRepository interface {
	LockReceivable(ctx context.Context, id int64) (Receivable, error)
	UpdateBalance(ctx context.Context, id int64, amountPaid int64, status shared.PaymentStatus) error
	InsertPayment(ctx context.Context, payment *Payment) error
	UpdateSaleStatus(ctx context.Context, saleID int64, status shared.PaymentStatus) error
}

// Locker guards a key against concurrent submitters.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives payment counters.
type MetricsPort interface {
	ReceivablePayment(status string)
}

// Config tunes Service.
type Config struct {
	LockTTL time.Duration
}

// Service handles receivable business logic.
type Service struct {
	repo        RepositoryPort
	locker      Locker
	audit       AuditPort
	idempotency shared.Idempotency
	metrics     MetricsPort
	logger      *slog.Logger
	lockTTL     time.Duration
	now         func() time.Time
}

// NewService builds Service instance. locker, audit, idem and metrics may be nil.
func NewService(repo RepositoryPort, locker Locker, audit AuditPort, idem shared.Idempotency, metrics MetricsPort, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	return &Service{
		repo:        repo,
		locker:      locker,
		audit:       audit,
		idempotency: idem,
		metrics:     metrics,
		logger:      logger,
		lockTTL:     cfg.LockTTL,
		now:         time.Now,
	}
}

// ApplyPayment adds input.Amount to the receivable. Amounts above the
// outstanding balance fail with *OverpaymentError; the new status comes from
// shared.Transition and is mirrored onto the sale.
func (s *Service) ApplyPayment(ctx context.Context, input PaymentInput) (*Receivable, error) {
	if err := validatePayment(input); err != nil {
		return nil, err
	}

	if s.locker != nil {
		release, err := s.locker.Obtain(ctx, shared.ReceivablePaymentLockKey(input.ReceivableID), s.lockTTL)
		switch {
		case errors.Is(err, cache.ErrLockHeld):
			return nil, ErrPaymentInFlight
		case err != nil:
			// The receivable row lock still serialises the balance update.
			s.logger.Warn("payment lock unavailable", slog.Int64("receivable_id", input.ReceivableID), slog.Any("error", err))
		default:
			defer release()
		}
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" && s.idempotency != nil {
		existing, err := s.replay(ctx, key, input.ReceivableID)
		if err != nil || existing != nil {
			return existing, err
		}
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return nil, err
		}
	} else {
		key = ""
	}

	var (
		updated Receivable
		payment Payment
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockReceivable(ctx, input.ReceivableID)
		if err != nil {
			return err
		}
		remaining := current.Outstanding()
		if input.Amount > remaining {
			return &OverpaymentError{Max: remaining}
		}
		paid := current.AmountPaid + input.Amount
		next, err := shared.Transition(current.Status, shared.PaymentEventFor(current.AmountDue, paid))
		if err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, current.ID, paid, next); err != nil {
			return fmt.Errorf("update receivable: %w", err)
		}
		payment = Payment{
			ReceivableID:    current.ID,
			Amount:          input.Amount,
			PaymentMethod:   input.PaymentMethod,
			ReferenceNumber: strings.TrimSpace(input.ReferenceNumber),
			ReceivedBy:      input.ActorID,
			PaidAt:          s.now(),
			IdempotencyKey:  key,
		}
		if err := tx.InsertPayment(ctx, &payment); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		if err := tx.UpdateSaleStatus(ctx, current.SaleID, next); err != nil {
			return fmt.Errorf("sync sale status: %w", err)
		}
		updated = current
		updated.AmountPaid = paid
		updated.Remaining = current.AmountDue - paid
		updated.Status = next
		updated.UpdatedAt = payment.PaidAt
		return nil
	})
	if err != nil {
		if key != "" {
			_ = s.idempotency.Delete(context.WithoutCancel(ctx), key)
		}
		if s.metrics != nil && errors.Is(err, ErrOverpayment) {
			s.metrics.ReceivablePayment("rejected")
		}
		return nil, err
	}

	if key != "" {
		s.completeKey(ctx, key, payment)
	}
	if s.metrics != nil {
		s.metrics.ReceivablePayment(string(updated.Status))
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			StoreID:  updated.StoreID,
			Action:   "receivable.payment",
			Entity:   "receivable",
			EntityID: strconv.FormatInt(updated.ID, 10),
			Meta: map[string]any{
				"amount":      input.Amount,
				"amount_paid": updated.AmountPaid,
				"status":      updated.Status,
				"payment_id":  payment.ID,
			},
			At: payment.PaidAt,
		})
		if err != nil {
			s.logger.Warn("record receivable audit", slog.Int64("receivable_id", updated.ID), slog.Any("error", err))
		}
	}
	updated.Payments = append(updated.Payments, payment)
	return &updated, nil
}

func (s *Service) replay(ctx context.Context, key string, receivableID int64) (*Receivable, error) {
	ref, err := s.idempotency.Lookup(ctx, key, idempotencyModule)
	if errors.Is(err, shared.ErrIdempotencyKeyUnknown) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if ref != "" {
		return s.repo.Get(ctx, receivableID)
	}
	payment, err := s.repo.FindPaymentByIdempotencyKey(ctx, key)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrIdempotencyConflict
	}
	if err != nil {
		return nil, fmt.Errorf("find payment by idempotency key: %w", err)
	}
	s.completeKey(ctx, key, payment)
	return s.repo.Get(ctx, payment.ReceivableID)
}

func (s *Service) completeKey(ctx context.Context, key string, payment Payment) {
	if err := s.idempotency.Complete(ctx, key, strconv.FormatInt(payment.ID, 10)); err != nil {
		s.logger.Warn("complete idempotency key", slog.Int64("receivable_id", payment.ReceivableID), slog.Any("error", err))
	}
}

func validatePayment(input PaymentInput) error {
	if input.ReceivableID <= 0 {
		return shared.Invalid("id", "piutang tidak valid")
	}
	if input.Amount <= 0 {
		return shared.Invalid("amountPaid", "jumlah pembayaran harus lebih dari 0")
	}
	switch input.PaymentMethod {
	case "CASH":
	case "TRANSFER", "QRIS":
		if strings.TrimSpace(input.ReferenceNumber) == "" {
			return shared.Invalid("referenceNumber", "nomor referensi wajib untuk pembayaran %s", input.PaymentMethod)
		}
	default:
		return shared.Invalid("paymentMethod", "metode pembayaran %q tidak dikenal", input.PaymentMethod)
	}
	return nil
}

// Get returns a receivable with its payment history.
func (s *Service) Get(ctx context.Context, id int64) (*Receivable, error) {
	if id <= 0 {
		return nil, shared.Invalid("id", "id tidak valid")
	}
	return s.repo.Get(ctx, id)
}

// List returns a page of receivables and the total match count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Receivable, int, error) {
	if filter.Status != shared.PaymentStatusDraft && !filter.Status.Valid() {
		return nil, 0, shared.Invalid("status", "status %q tidak dikenal", filter.Status)
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	return s.repo.List(ctx, filter)
}

// Aging groups outstanding balances by days past the credit term.
func (s *Service) Aging(ctx context.Context, storeID int64, asOf time.Time) (AgingBucket, error) {
	receivables, err := s.repo.ListOutstanding(ctx, storeID)
	if err != nil {
		return AgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	var bucket AgingBucket
	for _, r := range receivables {
		if r.Status == shared.PaymentStatusPaid {
			continue
		}
		due := r.CreatedAt.AddDate(0, 0, DefaultTermDays)
		days := int(asOf.Sub(due).Hours() / 24)
		amount := r.Outstanding()
		switch {
		case days <= 0:
			bucket.Current += amount
		case days <= 30:
			bucket.Bucket30 += amount
		case days <= 60:
			bucket.Bucket60 += amount
		case days <= 90:
			bucket.Bucket90 += amount
		default:
			bucket.Bucket120 += amount
		}
	}
	return bucket, nil
}
