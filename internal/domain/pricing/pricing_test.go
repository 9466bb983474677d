package pricing

import (
	"errors"
	"testing"

	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/money"
)

func testCatalog(t *testing.T) *catalog.Snapshot {
	t.Helper()
	snap, err := catalog.NewSnapshot([]catalog.Product{
		{ID: "p1", Name: "Flower One", Kind: catalog.KindFlower, PricePerGram: 1250},
		{ID: "p2", Name: "Oil Two", Kind: catalog.KindExtract, PricePerBottle: 8995, BottleSizeML: 25},
		{ID: "p3", Name: "Unpriced", Kind: catalog.KindFlower},
		{ID: "p4", Name: "Premium", Kind: catalog.KindFlower, PricePerGram: 2500},
	}, nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return snap
}

func TestQuote(t *testing.T) {
	cat := testCatalog(t)

	tests := []struct {
		name     string
		items    []Item
		subtotal money.Amount
		shipping money.Amount
		total    money.Amount
	}{
		{
			name:     "flower below threshold",
			items:    []Item{{ProductID: "p1", Quantity: 4}},
			subtotal: 5000, shipping: 1000, total: 7499,
		},
		{
			name:     "extract below threshold",
			items:    []Item{{ProductID: "p2", Quantity: 1}},
			subtotal: 8995, shipping: 1000, total: 11494,
		},
		{
			name:     "threshold reached waives shipping",
			items:    []Item{{ProductID: "p4", Quantity: 4}},
			subtotal: 10000, shipping: 0, total: 11499,
		},
		{
			name:     "empty selection",
			items:    nil,
			subtotal: 0, shipping: 1000, total: 2499,
		},
		{
			name:     "zero quantities only",
			items:    []Item{{ProductID: "p1", Quantity: 0}, {ProductID: "p2", Quantity: 0}},
			subtotal: 0, shipping: 1000, total: 2499,
		},
		{
			name:     "unknown product skipped",
			items:    []Item{{ProductID: "ghost", Quantity: 3}, {ProductID: "p1", Quantity: 1}},
			subtotal: 1250, shipping: 1000, total: 3749,
		},
		{
			name:     "fallback price",
			items:    []Item{{ProductID: "p3", Quantity: 2}},
			subtotal: 2500, shipping: 1000, total: 4999,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := DefaultPolicy().Quote(tt.items, cat)
			if err != nil {
				t.Fatalf("Quote() error = %v", err)
			}
			if q.Subtotal != tt.subtotal {
				t.Errorf("Subtotal = %s, want %s", q.Subtotal, tt.subtotal)
			}
			if q.ShippingFee != tt.shipping {
				t.Errorf("ShippingFee = %s, want %s", q.ShippingFee, tt.shipping)
			}
			if q.PrescriptionFee != 1499 {
				t.Errorf("PrescriptionFee = %s, want 14.99", q.PrescriptionFee)
			}
			if q.GrandTotal != tt.total {
				t.Errorf("GrandTotal = %s, want %s", q.GrandTotal, tt.total)
			}
		})
	}
}

func TestQuoteTotalsInvariant(t *testing.T) {
	cat := testCatalog(t)
	pol := DefaultPolicy()
	for qty := 0; qty <= 12; qty++ {
		for _, id := range []string{"p1", "p2", "p3", "p4"} {
			q, err := pol.Quote([]Item{{ProductID: id, Quantity: qty}, {ProductID: "p1", Quantity: 1}}, cat)
			if err != nil {
				t.Fatalf("Quote() error = %v", err)
			}
			want := q.Subtotal + 1499
			if q.Subtotal < 10000 {
				want += 1000
			}
			if q.GrandTotal != want {
				t.Fatalf("%s x%d: GrandTotal = %s, want %s", id, qty, q.GrandTotal, want)
			}
		}
	}
}

func TestQuoteIsIdempotent(t *testing.T) {
	cat := testCatalog(t)
	items := []Item{{ProductID: "p2", Quantity: 2}, {ProductID: "p1", Quantity: 3}}
	pol := DefaultPolicy()
	a, err := pol.Quote(items, cat)
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	b, _ := pol.Quote(items, cat)
	if a.GrandTotal != b.GrandTotal || len(a.Lines) != len(b.Lines) {
		t.Fatalf("quotes differ: %+v vs %+v", a, b)
	}
	if a.Lines[0].ProductID != "p1" {
		t.Errorf("lines should be sorted by product id, got %s first", a.Lines[0].ProductID)
	}
	if items[0].ProductID != "p2" {
		t.Error("input items must not be reordered")
	}
}

func TestStrictPolicyRejectsUnpriced(t *testing.T) {
	cat := testCatalog(t)
	pol := DefaultPolicy()
	pol.Strict = true

	_, err := pol.Quote([]Item{{ProductID: "p3", Quantity: 1}}, cat)
	if !errors.Is(err, ErrUnpriced) {
		t.Fatalf("error = %v, want ErrUnpriced", err)
	}

	q, err := pol.Quote([]Item{{ProductID: "p3", Quantity: 0}}, cat)
	if err != nil {
		t.Fatalf("zero quantity should not be priced: %v", err)
	}
	if q.GrandTotal != 2499 {
		t.Errorf("GrandTotal = %s, want 24.99", q.GrandTotal)
	}
}

func TestLineTotal(t *testing.T) {
	p := catalog.Product{ID: "x", Kind: catalog.KindExtract, PricePerBottle: 6400}
	got, err := DefaultPolicy().LineTotal(p, 3)
	if err != nil {
		t.Fatalf("LineTotal() error = %v", err)
	}
	if got != 19200 {
		t.Errorf("LineTotal = %s, want 192.00", got)
	}
	if _, err := DefaultPolicy().LineTotal(p, 101); !errors.Is(err, ErrQuantityLimit) {
		t.Errorf("LineTotal(101) error = %v, want ErrQuantityLimit", err)
	}
}

func TestFallbackFlag(t *testing.T) {
	q, err := DefaultPolicy().Quote([]Item{{ProductID: "p3", Quantity: 1}}, testCatalog(t))
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if !q.HasFallbackPrices() {
		t.Error("expected fallback flag on unpriced line")
	}
	if q.Lines[0].UnitPrice != 1250 {
		t.Errorf("fallback unit price = %s, want 12.50", q.Lines[0].UnitPrice)
	}
}

func TestQuoteQuantityLimit(t *testing.T) {
	cat := testCatalog(t)
	pol := DefaultPolicy()

	if _, err := pol.Quote([]Item{{ProductID: "p1", Quantity: pol.MaxQuantity}}, cat); err != nil {
		t.Fatalf("quantity at the limit: %v", err)
	}
	_, err := pol.Quote([]Item{{ProductID: "p1", Quantity: pol.MaxQuantity + 1}}, cat)
	if !errors.Is(err, ErrQuantityLimit) {
		t.Fatalf("error = %v, want ErrQuantityLimit", err)
	}
}

func TestQuoteOverflow(t *testing.T) {
	pol := DefaultPolicy()
	pol.MaxQuantity = 0

	_, err := pol.Quote([]Item{{ProductID: "p1", Quantity: 7378697629483821}}, testCatalog(t))
	if !errors.Is(err, money.ErrOverflow) {
		t.Fatalf("error = %v, want ErrOverflow", err)
	}
}
