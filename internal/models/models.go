// Package models defines the persisted data model: products, variants,
// their time-series history, check runs, tracked items, notifications and
// scheduler logs.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StockStatus is the on-the-wire stock enum.
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockOutOfStock StockStatus = "out_of_stock"
	StockLowStock   StockStatus = "low_stock"
	StockBackorder  StockStatus = "backorder"
	StockPreorder   StockStatus = "preorder"
	StockUnknown    StockStatus = "unknown"
)

// Valid reports whether s is one of the recognized statuses.
func (s StockStatus) Valid() bool {
	switch s {
	case StockInStock, StockOutOfStock, StockLowStock, StockBackorder, StockPreorder, StockUnknown:
		return true
	}
	return false
}

// NotificationType classifies a notification event.
type NotificationType string

const (
	NotificationStock   NotificationType = "STOCK"
	NotificationPrice   NotificationType = "PRICE"
	NotificationRestock NotificationType = "RESTOCK"
)

// CheckRunStatus is the lifecycle state of a completed check.
type CheckRunStatus string

const (
	CheckRunSuccess CheckRunStatus = "success"
	CheckRunFailed  CheckRunStatus = "failed"
	CheckRunPartial CheckRunStatus = "partial"
)

// MaxVariants caps the number of variants a single product may own,
// guarding against combinatorial blowup from mis-extracted option sets.
const MaxVariants = 100

// Metadata is a free-form JSON column.
type Metadata map[string]any

// Value implements driver.Valuer, serializing to JSONB.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("metadata: cannot scan %T", src)
	}
}

// Attribute is one option name/value pair of a variant.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attributes is the ordered option set identifying a variant within its
// product. Order is preserved as extracted; identity is order-insensitive.
type Attributes []Attribute

// Value implements driver.Valuer.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return json.Marshal(Attributes{})
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *Attributes) Scan(src any) error {
	if src == nil {
		*a = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("attributes: cannot scan %T", src)
	}
}

// NaturalKey returns the canonical identity of the attribute set: pairs
// sorted by lowercased name, joined deterministically. Two variants of one
// product may never share a natural key.
func (a Attributes) NaturalKey() string {
	pairs := make([]string, 0, len(a))
	for _, attr := range a {
		pairs = append(pairs, strings.ToLower(strings.TrimSpace(attr.Name))+"="+strings.TrimSpace(attr.Value))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "|")
}

// Product is a logical offering at one canonical URL.
type Product struct {
	ID           string
	URL          string
	CanonicalURL *string
	Name         string
	Description  string
	Vendor       string
	MainImageURL string
	Metadata     Metadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Variant is a purchasable configuration of a product. The current_*
// fields reflect the most recent ingested observation; history tables
// retain every prior one.
type Variant struct {
	ID                 string
	ProductID          string
	SKU                *string
	Attributes         Attributes
	Currency           string
	CurrentPrice       *decimal.Decimal
	CurrentStockStatus StockStatus
	IsAvailable        bool
	LastCheckedAt      *time.Time
	Metadata           Metadata
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// VariantPriceHistory is one append-only price observation.
type VariantPriceHistory struct {
	ID         string
	VariantID  string
	RecordedAt time.Time
	Price      decimal.Decimal
	Currency   string
	Raw        string
	Metadata   Metadata
}

// VariantStockHistory is one append-only stock observation.
type VariantStockHistory struct {
	ID         string
	VariantID  string
	RecordedAt time.Time
	Status     StockStatus
	Raw        string
	Metadata   Metadata
}

// CheckRun is one attempt to refresh one product. finished_at is null
// while the check is in flight; the most recent finished_at per product
// anchors re-check throttling.
type CheckRun struct {
	ID           string
	ProductID    string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       CheckRunStatus
	ErrorMessage *string
	Metadata     Metadata
}

// TrackedItem is a user's subscription to a product or a specific variant.
// Users themselves live in the external auth service.
type TrackedItem struct {
	ID        string
	UserID    string
	ProductID string
	VariantID *string
	CreatedAt time.Time
}

// NotificationSettings holds a user's thresholds for notification
// translation. Missing rows fall back to DefaultNotificationSettings.
type NotificationSettings struct {
	UserID                string
	ThresholdPercentage   decimal.Decimal
	NotifyOnPriceIncrease bool
	NotifyRestock         bool
	NotifyStock           bool
}

// DefaultNotificationSettings returns the settings applied to users
// without an explicit row: 10% price-drop threshold, no price-rise
// notifications, stock and restock notifications on.
func DefaultNotificationSettings(userID string) NotificationSettings {
	return NotificationSettings{
		UserID:                userID,
		ThresholdPercentage:   decimal.NewFromInt(10),
		NotifyOnPriceIncrease: false,
		NotifyRestock:         true,
		NotifyStock:           true,
	}
}

// Notification is one deliverable event.
type Notification struct {
	ID        string
	UserID    string
	ProductID string
	VariantID *string
	Type      NotificationType
	Message   string
	OldPrice  *decimal.Decimal
	NewPrice  *decimal.Decimal
	OldStatus *StockStatus
	NewStatus *StockStatus
	CreatedAt time.Time
	Sent      bool
	SentAt    *time.Time
	Read      bool
	Metadata  Metadata
}

// SchedulerLog summarizes one scheduler sweep.
type SchedulerLog struct {
	ID              string
	RunStartedAt    time.Time
	RunFinishedAt   *time.Time
	ProductsChecked int
	ItemsChecked    int
	Success         bool
	Error           *string
	Metadata        Metadata
}
