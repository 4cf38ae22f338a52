package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/notify"
	"github.com/shelfwatch/shelfwatch/internal/repository"
)

// DeliveryStats summarizes one delivery sweep.
type DeliveryStats struct {
	Scanned   int
	Delivered int
	Failed    int
}

// DeliveryService drains unsent notifications to the email sink.
// Notifications that fail to deliver stay unsent and are retried on the
// next sweep.
type DeliveryService struct {
	notifications repository.NotificationRepository
	products      repository.ProductRepository
	sender        notify.EmailSender
	batchSize     int
	logger        *slog.Logger
	now           func() time.Time
}

// NewDeliveryService creates a delivery service.
func NewDeliveryService(notifications repository.NotificationRepository, products repository.ProductRepository, sender notify.EmailSender, batchSize int, logger *slog.Logger) *DeliveryService {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &DeliveryService{
		notifications: notifications,
		products:      products,
		sender:        sender,
		batchSize:     batchSize,
		logger:        logging.Component(logger, "delivery"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// DeliverPending sends every unsent notification in the current batch.
// A notification is marked sent only after the sink accepts it.
func (s *DeliveryService) DeliverPending(ctx context.Context) (*DeliveryStats, error) {
	pending, err := s.notifications.GetUnsent(ctx, s.batchSize)
	if err != nil {
		return nil, err
	}

	stats := &DeliveryStats{Scanned: len(pending)}
	productNames := map[string]struct {
		name string
		url  string
	}{}

	for _, n := range pending {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		info, ok := productNames[n.ProductID]
		if !ok {
			product, err := s.products.GetByID(ctx, n.ProductID)
			if err != nil {
				s.logger.Warn("delivery: failed to load product", "product_id", n.ProductID, "error", err)
			} else if product != nil {
				info.name = product.Name
				info.url = product.URL
			}
			productNames[n.ProductID] = info
		}

		payload := &notify.EmailPayload{
			UserID:      n.UserID,
			Type:        string(n.Type),
			Message:     n.Message,
			ProductID:   n.ProductID,
			ProductName: info.name,
			ProductURL:  info.url,
			VariantID:   n.VariantID,
			OldPrice:    n.OldPrice,
			NewPrice:    n.NewPrice,
			OldStatus:   n.OldStatus,
			NewStatus:   n.NewStatus,
			CreatedAt:   n.CreatedAt,
		}

		if err := s.sender.Send(ctx, payload); err != nil {
			stats.Failed++
			s.logger.Warn("delivery: send failed, will retry next sweep",
				"notification_id", n.ID, "user_id", n.UserID, "error", err)
			continue
		}

		if err := s.notifications.MarkSent(ctx, n.ID, s.now()); err != nil {
			stats.Failed++
			s.logger.Error("delivery: failed to mark sent", "notification_id", n.ID, "error", err)
			continue
		}
		stats.Delivered++
	}

	if stats.Scanned > 0 {
		s.logger.Info("delivery sweep finished",
			"scanned", stats.Scanned, "delivered", stats.Delivered, "failed", stats.Failed)
	}
	return stats, nil
}
