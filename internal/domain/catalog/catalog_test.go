package catalog

import (
	"context"
	"errors"
	"testing"
)

func TestStaticRepositoryLoadsSeed(t *testing.T) {
	snap, err := NewStaticRepository().Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	products, pharmacies := snap.Len()
	if products != 6 || pharmacies != 3 {
		t.Fatalf("got %d products / %d pharmacies, want 6 / 3", products, pharmacies)
	}

	p, ok := snap.Product("ext-tilray-1010")
	if !ok {
		t.Fatal("expected ext-tilray-1010 in seed")
	}
	if price, ok := p.UnitPrice(); !ok || price != 8995 {
		t.Errorf("UnitPrice() = %v, %v; want 89.95, true", price, ok)
	}

	unpriced, _ := snap.Product("flw-aurora-pink")
	if _, ok := unpriced.UnitPrice(); ok {
		t.Error("flw-aurora-pink should carry no price")
	}

	if !snap.Carries("ph-berlin-mitte", "flw-bedrocan") {
		t.Error("ph-berlin-mitte should carry flw-bedrocan")
	}
	ph, _ := snap.Pharmacy("ph-berlin-mitte")
	if len(ph.ProductIDs) != 3 {
		t.Errorf("ph-berlin-mitte products = %v, want 3 linked from the product side", ph.ProductIDs)
	}
}

func TestUnitPriceByKind(t *testing.T) {
	flower := Product{ID: "f", Kind: KindFlower, PricePerGram: 1250, PricePerBottle: 9999}
	if price, ok := flower.UnitPrice(); !ok || price != 1250 {
		t.Errorf("flower UnitPrice() = %v, %v", price, ok)
	}
	extract := Product{ID: "e", Kind: KindExtract, PricePerGram: 1250}
	if _, ok := extract.UnitPrice(); ok {
		t.Error("extract without bottle price should be unpriced")
	}
}

func TestNewSnapshotLinksBothSides(t *testing.T) {
	snap, err := NewSnapshot(
		[]Product{{ID: "p1", Kind: KindFlower}, {ID: "p2", Kind: KindExtract, PharmacyIDs: []string{"a"}}},
		[]Pharmacy{{ID: "a", ProductIDs: []string{"p1"}}, {ID: "b"}},
	)
	if err != nil {
		t.Fatalf("NewSnapshot() error = %v", err)
	}

	got := snap.ProductsAt("a")
	if len(got) != 2 || got[0].ID != "p1" || got[1].ID != "p2" {
		t.Fatalf("ProductsAt(a) = %+v", got)
	}
	p1, _ := snap.Product("p1")
	if len(p1.PharmacyIDs) != 1 || p1.PharmacyIDs[0] != "a" {
		t.Errorf("p1 pharmacies = %v, want [a]", p1.PharmacyIDs)
	}
	if snap.ProductsAt("b") == nil || len(snap.ProductsAt("b")) != 0 {
		t.Errorf("ProductsAt(b) should be empty, got %v", snap.ProductsAt("b"))
	}
	if snap.ProductsAt("missing") != nil {
		t.Error("ProductsAt(missing) should be nil")
	}
}

func TestNewSnapshotValidation(t *testing.T) {
	tests := []struct {
		name       string
		products   []Product
		pharmacies []Pharmacy
		want       error
	}{
		{
			name:     "duplicate product",
			products: []Product{{ID: "p", Kind: KindFlower}, {ID: "p", Kind: KindFlower}},
			want:     ErrDuplicateID,
		},
		{
			name:     "bad kind",
			products: []Product{{ID: "p", Kind: "edible"}},
			want:     ErrInvalidProduct,
		},
		{
			name:       "pharmacy lists unknown product",
			pharmacies: []Pharmacy{{ID: "a", ProductIDs: []string{"nope"}}},
			want:       ErrUnknownReference,
		},
		{
			name:     "product lists unknown pharmacy",
			products: []Product{{ID: "p", Kind: KindFlower, PharmacyIDs: []string{"nope"}}},
			want:     ErrUnknownReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSnapshot(tt.products, tt.pharmacies)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStaticRepositoryRejectsBadYAML(t *testing.T) {
	_, err := NewStaticRepositoryFromBytes([]byte("products: [")).Load(context.Background())
	if err == nil {
		t.Fatal("expected decode error")
	}
}
