package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// RepositoryPort persists notifications.
type RepositoryPort interface {
	Insert(ctx context.Context, n *Notification) error
	ListForStore(ctx context.Context, storeID int64, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id int64) error
}

// Service creates notifications and publishes them to subscribers.
type Service struct {
	repo      RepositoryPort
	publisher redis.UniversalClient
	logger    *slog.Logger
	printer   *message.Printer
	now       func() time.Time
}

// NewService builds Service. publisher may be nil to skip fan-out.
func NewService(repo RepositoryPort, publisher redis.UniversalClient, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		printer:   message.NewPrinter(language.Indonesian),
		now:       time.Now,
	}
}

// Create stores n and publishes it on the store channel. A failed publish is
// logged; the stored row stays the source of truth.
func (s *Service) Create(ctx context.Context, n Notification) (*Notification, error) {
	if n.StoreID <= 0 {
		return nil, shared.Invalid("storeId", "toko tujuan wajib diisi")
	}
	if strings.TrimSpace(n.Title) == "" {
		return nil, shared.Invalid("title", "judul wajib diisi")
	}
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	if err := s.repo.Insert(ctx, &n); err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	if err := s.publish(ctx, n); err != nil {
		s.logger.Warn("publish notification", slog.Int64("store_id", n.StoreID), slog.Int64("notification_id", n.ID), slog.Any("error", err))
	}
	return &n, nil
}

func (s *Service) publish(ctx context.Context, n Notification) error {
	if s.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, shared.NotificationChannel(n.StoreID), payload).Err()
}

// DistributionPending raises the acceptance request for a distribution batch.
func (s *Service) DistributionPending(ctx context.Context, d DistributionPending) error {
	if d.StoreID <= 0 {
		return errors.New("notifications: distribution without store")
	}
	_, err := s.Create(ctx, Notification{
		Type:     TypeWarehouseDistribution,
		Title:    "Distribusi Baru Menunggu Penerimaan",
		Message:  s.distributionMessage(d),
		StoreID:  d.StoreID,
		Severity: SeverityInfo,
		Data: map[string]any{
			"batch_id":       d.BatchID,
			"invoice_number": d.InvoiceNumber,
			"items":          d.Items,
			"total_amount":   d.TotalAmount,
		},
	})
	return err
}

func (s *Service) distributionMessage(d DistributionPending) string {
	source := d.WarehouseName
	if source == "" {
		source = "gudang pusat"
	}
	var lines []string
	for _, item := range d.Items {
		lines = append(lines, s.printer.Sprintf("%s (%d unit)", item.ProductName, item.Quantity))
	}
	return s.printer.Sprintf("%s mengirim %d unit ke %s dengan faktur %s senilai Rp%d: %s",
		source, d.TotalQuantity(), d.StoreName, d.InvoiceNumber, d.TotalAmount, strings.Join(lines, ", "))
}

// ListForStore returns the newest notifications of a store.
func (s *Service) ListForStore(ctx context.Context, storeID int64, unreadOnly bool, limit int) ([]Notification, error) {
	if storeID <= 0 {
		return nil, shared.Invalid("storeId", "toko wajib diisi")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListForStore(ctx, storeID, unreadOnly, limit)
}

// MarkRead flags a notification as read.
func (s *Service) MarkRead(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Invalid("id", "id tidak valid")
	}
	return s.repo.MarkRead(ctx, id)
}
