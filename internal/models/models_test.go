package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAttributesNaturalKeyIsOrderInsensitive(t *testing.T) {
	a := Attributes{{Name: "Size", Value: "M"}, {Name: "Color", Value: "Blue"}}
	b := Attributes{{Name: "color", Value: "Blue"}, {Name: "size", Value: "M"}}

	if a.NaturalKey() != b.NaturalKey() {
		t.Errorf("natural keys differ: %q vs %q", a.NaturalKey(), b.NaturalKey())
	}
}

func TestAttributesNaturalKeyDistinguishesValues(t *testing.T) {
	a := Attributes{{Name: "size", Value: "M"}}
	b := Attributes{{Name: "size", Value: "L"}}

	if a.NaturalKey() == b.NaturalKey() {
		t.Error("different values should produce different natural keys")
	}
}

func TestAttributesNaturalKeyTrimsWhitespace(t *testing.T) {
	a := Attributes{{Name: " size ", Value: " M "}}
	b := Attributes{{Name: "size", Value: "M"}}

	if a.NaturalKey() != b.NaturalKey() {
		t.Errorf("whitespace should not affect identity: %q vs %q", a.NaturalKey(), b.NaturalKey())
	}
}

func TestAttributesRoundTrip(t *testing.T) {
	orig := Attributes{{Name: "size", Value: "M"}, {Name: "color", Value: "Blue"}}

	v, err := orig.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	var scanned Attributes
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(scanned) != 2 || scanned[0].Name != "size" || scanned[1].Value != "Blue" {
		t.Errorf("round trip mismatch: %+v", scanned)
	}
}

func TestMetadataScanNil(t *testing.T) {
	m := Metadata{"k": "v"}
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error = %v", err)
	}
	if m != nil {
		t.Errorf("expected nil metadata after scanning NULL, got %v", m)
	}
}

func TestStockStatusValid(t *testing.T) {
	for _, s := range []StockStatus{StockInStock, StockOutOfStock, StockLowStock, StockBackorder, StockPreorder, StockUnknown} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if StockStatus("available").Valid() {
		t.Error("unrecognized status should not be valid")
	}
}

func TestDefaultNotificationSettings(t *testing.T) {
	s := DefaultNotificationSettings("user-1")

	if !s.ThresholdPercentage.Equal(decimal.NewFromInt(10)) {
		t.Errorf("ThresholdPercentage = %s, want 10", s.ThresholdPercentage)
	}
	if s.NotifyOnPriceIncrease {
		t.Error("NotifyOnPriceIncrease should default to false")
	}
	if !s.NotifyRestock || !s.NotifyStock {
		t.Error("restock/stock notifications should default to true")
	}
}
