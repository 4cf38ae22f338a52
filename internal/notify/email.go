// Package notify delivers notifications to the external email sink.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
)

// EmailPayload is the body posted to the email sink for one
// notification.
type EmailPayload struct {
	UserID      string              `json:"user_id"`
	Type        string              `json:"type"`
	Message     string              `json:"message"`
	ProductID   string              `json:"product_id"`
	ProductName string              `json:"product_name,omitempty"`
	ProductURL  string              `json:"product_url,omitempty"`
	VariantID   *string             `json:"variant_id,omitempty"`
	OldPrice    *decimal.Decimal    `json:"old_price,omitempty"`
	NewPrice    *decimal.Decimal    `json:"new_price,omitempty"`
	OldStatus   *models.StockStatus `json:"old_status,omitempty"`
	NewStatus   *models.StockStatus `json:"new_status,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// EmailSender posts notification payloads somewhere a human will see
// them.
type EmailSender interface {
	Send(ctx context.Context, payload *EmailPayload) error
}

// EmailService delivers notification emails through an HTTP sink.
type EmailService struct {
	sinkURL string
	logger  *slog.Logger
	client  *http.Client
	backoff func(attempt int) time.Duration
}

// NewEmailService creates a new email delivery service.
func NewEmailService(sinkURL string, logger *slog.Logger) *EmailService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailService{
		sinkURL: sinkURL,
		logger:  logging.Component(logger, "email"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
}

// Send posts the payload to the sink, retrying up to 3 times with
// quadratic backoff. The last error is returned when every attempt
// fails.
func (s *EmailService) Send(ctx context.Context, payload *EmailPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("email: failed to marshal payload", "error", err)
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sinkURL, bytes.NewReader(body))
		if err != nil {
			s.logger.Error("email: failed to create request", "error", err)
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			s.logger.Warn("email: delivery failed", "attempt", attempt+1, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			s.logger.Debug("email: delivered", "user_id", payload.UserID, "type", payload.Type)
			return nil
		}

		lastErr = &SinkError{StatusCode: resp.StatusCode}
		s.logger.Warn("email: non-success status", "status", resp.StatusCode, "attempt", attempt+1)
	}

	s.logger.Error("email: delivery failed after retries", "user_id", payload.UserID, "error", lastErr)
	return lastErr
}

// SinkError represents a non-2xx response from the email sink.
type SinkError struct {
	StatusCode int
}

func (e *SinkError) Error() string {
	return "email sink responded with status: " + http.StatusText(e.StatusCode)
}
