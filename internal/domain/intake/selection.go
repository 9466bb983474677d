package intake

import (
	"sort"

	"github.com/drfirst/go-intake/internal/domain/pricing"
)

// Pick is the chosen quantity of one product and the pharmacy dispensing it.
type Pick struct {
	Quantity   int    `json:"quantity"`
	PharmacyID string `json:"pharmacy_id"`
}

// Selection maps product IDs to picks. Values are treated as immutable:
// With returns a copy and never modifies the receiver.
type Selection map[string]Pick

// With returns a copy of s with productID set to pick. A zero quantity removes the entry.
func (s Selection) With(productID string, pick Pick) Selection {
	out := make(Selection, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	if pick.Quantity <= 0 {
		delete(out, productID)
		return out
	}
	out[productID] = pick
	return out
}

// Empty reports whether nothing with a positive quantity is selected.
func (s Selection) Empty() bool {
	for _, p := range s {
		if p.Quantity > 0 {
			return false
		}
	}
	return true
}

// Items returns the selection as pricing items, ordered by product ID.
func (s Selection) Items() []pricing.Item {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]pricing.Item, 0, len(ids))
	for _, id := range ids {
		p := s[id]
		items = append(items, pricing.Item{ProductID: id, PharmacyID: p.PharmacyID, Quantity: p.Quantity})
	}
	return items
}

// Pharmacies returns the distinct pharmacies in the selection, sorted.
func (s Selection) Pharmacies() []string {
	seen := make(map[string]struct{})
	for _, p := range s {
		if p.Quantity > 0 && p.PharmacyID != "" {
			seen[p.PharmacyID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
