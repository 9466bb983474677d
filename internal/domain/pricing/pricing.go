// Package pricing computes order quotes for a product selection.
//
// Quotes are pure functions of the selection, the catalog and the policy.
package pricing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/money"
)

var (
	// ErrUnpriced is returned under a strict policy when a selected product has no list price.
	ErrUnpriced = errors.New("product has no list price")
	// ErrQuantityLimit is returned for an item above the policy's MaxQuantity.
	ErrQuantityLimit = errors.New("quantity above the per-product limit")
)

// Policy holds the fee schedule.
type Policy struct {
	PrescriptionFee   money.Amount
	ShippingFee       money.Amount
	ShippingThreshold money.Amount // shipping is charged while subtotal is below this
	FallbackUnitPrice money.Amount
	Strict            bool // reject unpriced products instead of using the fallback
	MaxQuantity       int  // per product; zero means no limit
}

// DefaultPolicy returns the standard fee schedule.
func DefaultPolicy() Policy {
	return Policy{
		PrescriptionFee:   1499,
		ShippingFee:       1000,
		ShippingThreshold: 10000,
		FallbackUnitPrice: 1250,
		MaxQuantity:       100,
	}
}

// CheckQuantity rejects quantities above MaxQuantity.
func (pol Policy) CheckQuantity(qty int) error {
	if pol.MaxQuantity > 0 && qty > pol.MaxQuantity {
		return fmt.Errorf("%w: %d > %d", ErrQuantityLimit, qty, pol.MaxQuantity)
	}
	return nil
}

// ProductLookup resolves product IDs. *catalog.Snapshot satisfies it.
type ProductLookup interface {
	Product(id string) (catalog.Product, bool)
}

// Item is one selected product.
type Item struct {
	ProductID  string `json:"product_id"`
	PharmacyID string `json:"pharmacy_id,omitempty"`
	Quantity   int    `json:"quantity"`
}

// Line is a priced item.
type Line struct {
	ProductID  string       `json:"product_id"`
	PharmacyID string       `json:"pharmacy_id,omitempty"`
	Name       string       `json:"name"`
	Kind       catalog.Kind `json:"kind"`
	Quantity   int          `json:"quantity"`
	Unit       string       `json:"unit"`
	UnitPrice  money.Amount `json:"unit_price"`
	Total      money.Amount `json:"total"`
	Fallback   bool         `json:"fallback,omitempty"`
}

// Quote is the price breakdown shown at checkout.
type Quote struct {
	Lines           []Line       `json:"lines"`
	Subtotal        money.Amount `json:"subtotal"`
	PrescriptionFee money.Amount `json:"prescription_fee"`
	ShippingFee     money.Amount `json:"shipping_fee"`
	GrandTotal      money.Amount `json:"grand_total"`
}

// HasFallbackPrices reports whether any line was priced with the fallback unit price.
func (q Quote) HasFallbackPrices() bool {
	for _, l := range q.Lines {
		if l.Fallback {
			return true
		}
	}
	return false
}

// UnitPrice returns the price used for one unit of p and whether the fallback was applied.
func (pol Policy) UnitPrice(p catalog.Product) (money.Amount, bool, error) {
	if price, ok := p.UnitPrice(); ok {
		return price, false, nil
	}
	if pol.Strict {
		return 0, false, fmt.Errorf("%w: %s", ErrUnpriced, p.ID)
	}
	return pol.FallbackUnitPrice, true, nil
}

// LineTotal returns quantity times the unit price of p.
func (pol Policy) LineTotal(p catalog.Product, quantity int) (money.Amount, error) {
	if err := pol.CheckQuantity(quantity); err != nil {
		return 0, fmt.Errorf("%s: %w", p.ID, err)
	}
	price, _, err := pol.UnitPrice(p)
	if err != nil {
		return 0, err
	}
	return price.Times(quantity)
}

// Quote prices the items. Items with a non-positive quantity and items naming
// unknown products are skipped. Lines are ordered by product ID. Quantities
// above MaxQuantity and totals that overflow are errors.
func (pol Policy) Quote(items []Item, products ProductLookup) (Quote, error) {
	q := Quote{Lines: []Line{}}

	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		p, ok := products.Product(it.ProductID)
		if !ok {
			continue
		}
		total, err := pol.LineTotal(p, it.Quantity)
		if err != nil {
			return Quote{}, err
		}
		price, fallback, _ := pol.UnitPrice(p)
		line := Line{
			ProductID:  p.ID,
			PharmacyID: it.PharmacyID,
			Name:       p.Name,
			Kind:       p.Kind,
			Quantity:   it.Quantity,
			Unit:       p.Kind.Unit(),
			UnitPrice:  price,
			Total:      total,
			Fallback:   fallback,
		}
		q.Lines = append(q.Lines, line)
		if q.Subtotal, err = q.Subtotal.Plus(total); err != nil {
			return Quote{}, err
		}
	}

	sort.SliceStable(q.Lines, func(i, j int) bool { return q.Lines[i].ProductID < q.Lines[j].ProductID })

	q.PrescriptionFee = pol.PrescriptionFee
	if q.Subtotal < pol.ShippingThreshold {
		q.ShippingFee = pol.ShippingFee
	}
	fees, err := q.PrescriptionFee.Plus(q.ShippingFee)
	if err != nil {
		return Quote{}, err
	}
	if q.GrandTotal, err = q.Subtotal.Plus(fees); err != nil {
		return Quote{}, err
	}
	return q, nil
}
