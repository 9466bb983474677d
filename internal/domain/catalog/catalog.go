// Package catalog holds the products and pharmacies offered in the intake wizard.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/drfirst/go-intake/internal/domain/money"
)

// Kind distinguishes dried flower (priced per gram) from extracts (priced per bottle).
type Kind string

const (
	KindFlower  Kind = "flower"
	KindExtract Kind = "extract"
)

// Valid reports whether k is a known product kind.
func (k Kind) Valid() bool { return k == KindFlower || k == KindExtract }

// Unit returns the dispensing unit for the kind.
func (k Kind) Unit() string {
	if k == KindExtract {
		return "bottle"
	}
	return "g"
}

// Product is a prescribable cannabis product.
type Product struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Kind           Kind         `json:"kind"`
	THCPercent     float64      `json:"thc_percent"`
	CBDPercent     float64      `json:"cbd_percent"`
	PricePerGram   money.Amount `json:"price_per_gram,omitempty"`
	PricePerBottle money.Amount `json:"price_per_bottle,omitempty"`
	BottleSizeML   float64      `json:"bottle_size_ml,omitempty"`
	Description    string       `json:"description"`
	PharmacyIDs    []string     `json:"pharmacy_ids"`
}

// UnitPrice returns the price of one unit for the product's kind.
// ok is false when the product carries no price for its kind.
func (p Product) UnitPrice() (price money.Amount, ok bool) {
	switch p.Kind {
	case KindFlower:
		price = p.PricePerGram
	case KindExtract:
		price = p.PricePerBottle
	}
	return price, price > 0
}

// Pharmacy is a dispensing pharmacy.
type Pharmacy struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Street           string   `json:"street"`
	PostalCode       string   `json:"postal_code"`
	City             string   `json:"city"`
	Phone            string   `json:"phone,omitempty"`
	Rating           float64  `json:"rating"`
	DeliveryEstimate string   `json:"delivery_estimate"`
	ProductIDs       []string `json:"product_ids"`
}

// Repository loads a complete catalog.
type Repository interface {
	Load(ctx context.Context) (*Snapshot, error)
}

var (
	ErrDuplicateID      = errors.New("duplicate catalog id")
	ErrUnknownReference = errors.New("unknown catalog reference")
	ErrInvalidProduct   = errors.New("invalid product")
)

// Snapshot is an immutable, fully loaded catalog. It is safe for concurrent use.
type Snapshot struct {
	products   map[string]Product
	pharmacies map[string]Pharmacy
	carries    map[string]map[string]struct{} // pharmacy -> products
}

// NewSnapshot validates products and pharmacies and links them.
// A link declared on either side is visible from both.
func NewSnapshot(products []Product, pharmacies []Pharmacy) (*Snapshot, error) {
	s := &Snapshot{
		products:   make(map[string]Product, len(products)),
		pharmacies: make(map[string]Pharmacy, len(pharmacies)),
		carries:    make(map[string]map[string]struct{}, len(pharmacies)),
	}

	for _, p := range products {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: empty product id", ErrInvalidProduct)
		}
		if !p.Kind.Valid() {
			return nil, fmt.Errorf("%w: product %s has kind %q", ErrInvalidProduct, p.ID, p.Kind)
		}
		if _, dup := s.products[p.ID]; dup {
			return nil, fmt.Errorf("%w: product %s", ErrDuplicateID, p.ID)
		}
		s.products[p.ID] = p
	}
	for _, ph := range pharmacies {
		if ph.ID == "" {
			return nil, fmt.Errorf("%w: empty pharmacy id", ErrUnknownReference)
		}
		if _, dup := s.pharmacies[ph.ID]; dup {
			return nil, fmt.Errorf("%w: pharmacy %s", ErrDuplicateID, ph.ID)
		}
		s.pharmacies[ph.ID] = ph
		s.carries[ph.ID] = make(map[string]struct{})
	}

	for _, ph := range pharmacies {
		for _, pid := range ph.ProductIDs {
			if _, ok := s.products[pid]; !ok {
				return nil, fmt.Errorf("%w: pharmacy %s lists product %s", ErrUnknownReference, ph.ID, pid)
			}
			s.carries[ph.ID][pid] = struct{}{}
		}
	}
	for _, p := range products {
		for _, phID := range p.PharmacyIDs {
			if _, ok := s.pharmacies[phID]; !ok {
				return nil, fmt.Errorf("%w: product %s lists pharmacy %s", ErrUnknownReference, p.ID, phID)
			}
			s.carries[phID][p.ID] = struct{}{}
		}
	}

	// Rebuild both sides of the link so lookups agree.
	for phID, set := range s.carries {
		ph := s.pharmacies[phID]
		ph.ProductIDs = sortedKeys(set)
		s.pharmacies[phID] = ph
	}
	for id, p := range s.products {
		var phs []string
		for phID, set := range s.carries {
			if _, ok := set[id]; ok {
				phs = append(phs, phID)
			}
		}
		sort.Strings(phs)
		p.PharmacyIDs = phs
		s.products[id] = p
	}

	return s, nil
}

// Product looks up a product by ID.
func (s *Snapshot) Product(id string) (Product, bool) {
	p, ok := s.products[id]
	return p, ok
}

// Pharmacy looks up a pharmacy by ID.
func (s *Snapshot) Pharmacy(id string) (Pharmacy, bool) {
	p, ok := s.pharmacies[id]
	return p, ok
}

// Products returns all products sorted by ID.
func (s *Snapshot) Products() []Product {
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Pharmacies returns all pharmacies sorted by ID.
func (s *Snapshot) Pharmacies() []Pharmacy {
	out := make([]Pharmacy, 0, len(s.pharmacies))
	for _, p := range s.pharmacies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ProductsAt returns the products stocked by a pharmacy, sorted by ID.
func (s *Snapshot) ProductsAt(pharmacyID string) []Product {
	set, ok := s.carries[pharmacyID]
	if !ok {
		return nil
	}
	out := make([]Product, 0, len(set))
	for _, id := range sortedKeys(set) {
		out = append(out, s.products[id])
	}
	return out
}

// Carries reports whether the pharmacy stocks the product.
func (s *Snapshot) Carries(pharmacyID, productID string) bool {
	set, ok := s.carries[pharmacyID]
	if !ok {
		return false
	}
	_, ok = set[productID]
	return ok
}

// Len returns the number of products and pharmacies.
func (s *Snapshot) Len() (products, pharmacies int) {
	return len(s.products), len(s.pharmacies)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
