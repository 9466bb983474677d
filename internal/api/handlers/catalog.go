package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/pricing"
)

// CatalogHandler serves the product catalog and stateless quotes.
type CatalogHandler struct {
	catalog *catalog.Snapshot
	policy  pricing.Policy
	logger  *zap.Logger
}

// NewCatalogHandler creates a new handler
func NewCatalogHandler(snap *catalog.Snapshot, policy pricing.Policy, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{catalog: snap, policy: policy, logger: logger}
}

// Routes returns the catalog routes
func (h *CatalogHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/products", h.Products)
	r.Get("/pharmacies", h.Pharmacies)
	r.Get("/pharmacies/{id}/products", h.PharmacyProducts)
	return r
}

// Products handles GET /catalog/products
func (h *CatalogHandler) Products(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Products())
}

// Pharmacies handles GET /catalog/pharmacies
func (h *CatalogHandler) Pharmacies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Pharmacies())
}

// PharmacyProducts handles GET /catalog/pharmacies/{id}/products
func (h *CatalogHandler) PharmacyProducts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.catalog.Pharmacy(id); !ok {
		jsonError(w, intake.ErrMsgUnknownPharmacy, intake.StatusNotFound.String(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.catalog.ProductsAt(id))
}

// QuoteRequest is the body of POST /quotes
type QuoteRequest struct {
	Items []pricing.Item `json:"items"`
}

// Quote handles POST /quotes. It prices a selection without a session.
func (h *CatalogHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	for _, it := range req.Items {
		if it.Quantity < 0 {
			jsonError(w, intake.ErrMsgQuantityNegative, intake.StatusInvalidArgument.String(), http.StatusBadRequest)
			return
		}
		if err := h.policy.CheckQuantity(it.Quantity); err != nil {
			jsonError(w, err.Error(), intake.StatusInvalidArgument.String(), http.StatusBadRequest)
			return
		}
	}

	q, err := h.policy.Quote(req.Items, h.catalog)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
