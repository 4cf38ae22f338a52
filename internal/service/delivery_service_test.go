package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/notify"
)

type recordingSender struct {
	payloads []*notify.EmailPayload
	failFor  map[string]error // keyed by notification message
}

func (r *recordingSender) Send(_ context.Context, payload *notify.EmailPayload) error {
	if err, ok := r.failFor[payload.Message]; ok {
		return err
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

func seedNotification(t *testing.T, repo *fakeNotificationRepo, id, message string) {
	t.Helper()
	err := repo.Create(context.Background(), &models.Notification{
		ID:        id,
		UserID:    "user-1",
		ProductID: "prod-1",
		Type:      models.NotificationPrice,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDeliverPendingMarksSentOnSuccess(t *testing.T) {
	repos := newFakeRepos()
	seedProduct(t, repos)
	notifications := repos.Notifications.(*fakeNotificationRepo)
	seedNotification(t, notifications, "n-1", "price dropped")
	seedNotification(t, notifications, "n-2", "back in stock")

	sender := &recordingSender{}
	svc := NewDeliveryService(notifications, repos.Products, sender, 50, discardLogger())

	stats, err := svc.DeliverPending(context.Background())
	if err != nil {
		t.Fatalf("DeliverPending() error = %v", err)
	}
	if stats.Scanned != 2 || stats.Delivered != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}

	for _, n := range notifications.notifications {
		if !n.Sent || n.SentAt == nil {
			t.Errorf("notification %s not marked sent", n.ID)
		}
	}
	if len(sender.payloads) != 2 {
		t.Fatalf("payloads = %d", len(sender.payloads))
	}
	if sender.payloads[0].ProductName != "Test Tee" {
		t.Errorf("payload product name = %q", sender.payloads[0].ProductName)
	}
	if sender.payloads[0].ProductURL != "https://store.example/products/tee" {
		t.Errorf("payload product url = %q", sender.payloads[0].ProductURL)
	}
}

func TestDeliverPendingKeepsFailedForRetry(t *testing.T) {
	repos := newFakeRepos()
	seedProduct(t, repos)
	notifications := repos.Notifications.(*fakeNotificationRepo)
	seedNotification(t, notifications, "n-1", "price dropped")
	seedNotification(t, notifications, "n-2", "back in stock")

	sender := &recordingSender{failFor: map[string]error{
		"price dropped": &notify.SinkError{StatusCode: 502},
	}}
	svc := NewDeliveryService(notifications, repos.Products, sender, 50, discardLogger())

	stats, err := svc.DeliverPending(context.Background())
	if err != nil {
		t.Fatalf("DeliverPending() error = %v", err)
	}
	if stats.Delivered != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}

	for _, n := range notifications.notifications {
		switch n.ID {
		case "n-1":
			if n.Sent {
				t.Error("failed notification was marked sent")
			}
		case "n-2":
			if !n.Sent {
				t.Error("delivered notification was not marked sent")
			}
		}
	}

	// The failed one is picked up again on the next sweep.
	stats, err = svc.DeliverPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Scanned != 1 {
		t.Errorf("second sweep scanned %d, want 1", stats.Scanned)
	}
}

func TestDeliverPendingStaysUnsentWhenMarkFails(t *testing.T) {
	repos := newFakeRepos()
	seedProduct(t, repos)
	notifications := repos.Notifications.(*fakeNotificationRepo)
	notifications.markSentErr = errors.New("write failed")
	seedNotification(t, notifications, "n-1", "price dropped")

	sender := &recordingSender{}
	svc := NewDeliveryService(notifications, repos.Products, sender, 50, discardLogger())

	stats, err := svc.DeliverPending(context.Background())
	if err != nil {
		t.Fatalf("DeliverPending() error = %v", err)
	}
	if stats.Delivered != 0 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDeliverPendingEmptyQueue(t *testing.T) {
	repos := newFakeRepos()
	sender := &recordingSender{}
	svc := NewDeliveryService(repos.Notifications, repos.Products, sender, 50, discardLogger())

	stats, err := svc.DeliverPending(context.Background())
	if err != nil {
		t.Fatalf("DeliverPending() error = %v", err)
	}
	if stats.Scanned != 0 || len(sender.payloads) != 0 {
		t.Errorf("empty queue produced work: %+v", stats)
	}
}
