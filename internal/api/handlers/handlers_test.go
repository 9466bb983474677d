package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/drfirst/go-intake/internal/domain/catalog"
	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/pricing"
)

const testKey = "test-key"

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	snap, err := catalog.NewSnapshot(
		[]catalog.Product{
			{ID: "p1", Name: "Flower", Kind: catalog.KindFlower, PricePerGram: 1250},
			{ID: "p2", Name: "Oil", Kind: catalog.KindExtract, PricePerBottle: 8995, BottleSizeML: 25},
		},
		[]catalog.Pharmacy{{ID: "ph1", Name: "First", ProductIDs: []string{"p1", "p2"}}},
	)
	if err != nil {
		t.Fatal(err)
	}
	policy := pricing.DefaultPolicy()
	reducer := intake.NewReducer(intake.DefaultTable(), snap, policy)
	store := intake.NewStore(reducer, intake.Deps{Submitter: intake.DelaySubmitter{}}, intake.DefaultStoreConfig(), nil)

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Store:   store,
		Catalog: snap,
		Policy:  policy,
		APIKeys: map[string]string{testKey: "web"},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-API-Key", testKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func envelope(t *testing.T, a intake.Action) intake.Envelope {
	t.Helper()
	env, err := intake.Encode(a)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func createSession(t *testing.T, srv *httptest.Server) intake.View {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/api/v1/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	return decode[intake.View](t, resp)
}

func TestCreateAndGetSession(t *testing.T) {
	srv := testServer(t)
	view := createSession(t, srv)
	if view.ID == "" || view.Step != intake.StepProducts || view.Progress != 0 {
		t.Fatalf("view = %+v", view)
	}
	if view.CanAdvance || view.BlockingReason != intake.ErrMsgSelectionEmpty {
		t.Errorf("empty selection must block: %+v", view)
	}

	resp := do(t, srv, http.MethodGet, "/api/v1/sessions/"+view.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if got := decode[intake.View](t, resp); got.ID != view.ID {
		t.Errorf("got session %s", got.ID)
	}
}

func TestUnknownSession(t *testing.T) {
	srv := testServer(t)
	resp := do(t, srv, http.MethodGet, "/api/v1/sessions/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if e := decode[ErrorResponse](t, resp); e.Code != "not_found" {
		t.Errorf("error = %+v", e)
	}
}

func TestNextBlockedByGuard(t *testing.T) {
	srv := testServer(t)
	view := createSession(t, srv)

	resp := do(t, srv, http.MethodPost, "/api/v1/sessions/"+view.ID+"/next", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	e := decode[ErrorResponse](t, resp)
	if e.Code != "failed_precondition" || e.Error != intake.ErrMsgSelectionEmpty {
		t.Errorf("error = %+v", e)
	}
}

func TestSelectAndAdvance(t *testing.T) {
	srv := testServer(t)
	id := createSession(t, srv).ID

	resp := do(t, srv, http.MethodPost, "/api/v1/sessions/"+id+"/actions",
		envelope(t, intake.SelectProduct{ProductID: "p1", PharmacyID: "ph1", Quantity: 4}))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select status = %d", resp.StatusCode)
	}
	view := decode[intake.View](t, resp)
	if view.Quote == nil || view.Quote.GrandTotal != 7499 {
		t.Fatalf("quote = %+v", view.Quote)
	}

	resp = do(t, srv, http.MethodPost, "/api/v1/sessions/"+id+"/next", nil)
	view = decode[intake.View](t, resp)
	if view.Step != intake.StepTreatment || view.StepIndex != 1 || view.Progress != 10 {
		t.Fatalf("after next: %+v", view)
	}

	resp = do(t, srv, http.MethodPost, "/api/v1/sessions/"+id+"/back", nil)
	if view = decode[intake.View](t, resp); view.StepIndex != 0 {
		t.Fatalf("after back: %+v", view)
	}

	resp = do(t, srv, http.MethodGet, "/api/v1/sessions/"+id+"/events", nil)
	events := decode[[]intake.Event](t, resp)
	if len(events) < 3 {
		t.Errorf("events = %d, want at least 3", len(events))
	}
}

func TestAnswerForInactiveStep(t *testing.T) {
	srv := testServer(t)
	id := createSession(t, srv).ID

	resp := do(t, srv, http.MethodPost, "/api/v1/sessions/"+id+"/actions",
		envelope(t, intake.SetTreatment{Treatment: intake.TreatmentInitial}))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestInvalidEnvelope(t *testing.T) {
	srv := testServer(t)
	id := createSession(t, srv).ID

	for name, body := range map[string]interface{}{
		"unknown type":    map[string]string{"type": "teleport"},
		"missing payload": map[string]string{"type": "select_product"},
		"unknown field":   map[string]string{"kind": "next"},
	} {
		t.Run(name, func(t *testing.T) {
			resp := do(t, srv, http.MethodPost, "/api/v1/sessions/"+id+"/actions", body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			if e := decode[ErrorResponse](t, resp); e.Code != "invalid_argument" {
				t.Errorf("error = %+v", e)
			}
		})
	}
}

func TestAbandonSession(t *testing.T) {
	srv := testServer(t)
	id := createSession(t, srv).ID

	if resp := do(t, srv, http.MethodDelete, "/api/v1/sessions/"+id, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if resp := do(t, srv, http.MethodGet, "/api/v1/sessions/"+id, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", resp.StatusCode)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	srv := testServer(t)

	products := decode[[]catalog.Product](t, do(t, srv, http.MethodGet, "/api/v1/catalog/products", nil))
	if len(products) != 2 || products[0].ID != "p1" {
		t.Fatalf("products = %+v", products)
	}
	pharmacies := decode[[]catalog.Pharmacy](t, do(t, srv, http.MethodGet, "/api/v1/catalog/pharmacies", nil))
	if len(pharmacies) != 1 {
		t.Fatalf("pharmacies = %+v", pharmacies)
	}
	stocked := decode[[]catalog.Product](t, do(t, srv, http.MethodGet, "/api/v1/catalog/pharmacies/ph1/products", nil))
	if len(stocked) != 2 {
		t.Fatalf("stocked = %+v", stocked)
	}
	if resp := do(t, srv, http.MethodGet, "/api/v1/catalog/pharmacies/ph9/products", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown pharmacy status = %d", resp.StatusCode)
	}
}

func TestStatelessQuote(t *testing.T) {
	srv := testServer(t)
	tests := []struct {
		name  string
		items []pricing.Item
		want  int64
	}{
		{"empty", nil, 2499},
		{"flower below threshold", []pricing.Item{{ProductID: "p1", Quantity: 4}}, 7499},
		{"extract", []pricing.Item{{ProductID: "p2", Quantity: 1}}, 11494},
		{"free shipping", []pricing.Item{{ProductID: "p1", Quantity: 8}}, 11499},
		{"unknown product skipped", []pricing.Item{{ProductID: "zz", Quantity: 3}}, 2499},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodPost, "/api/v1/quotes", QuoteRequest{Items: tt.items})
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			if q := decode[pricing.Quote](t, resp); int64(q.GrandTotal) != tt.want {
				t.Errorf("grand total = %d, want %d", q.GrandTotal, tt.want)
			}
		})
	}

	resp := do(t, srv, http.MethodPost, "/api/v1/quotes", QuoteRequest{Items: []pricing.Item{{ProductID: "p1", Quantity: -1}}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative quantity status = %d", resp.StatusCode)
	}

	for _, qty := range []int{101, 7378697629483821} {
		resp := do(t, srv, http.MethodPost, "/api/v1/quotes", QuoteRequest{Items: []pricing.Item{{ProductID: "p1", Quantity: qty}}})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("quantity %d status = %d, want 400", qty, resp.StatusCode)
		}
		if e := decode[ErrorResponse](t, resp); e.Code != intake.StatusInvalidArgument.String() {
			t.Errorf("quantity %d code = %q", qty, e.Code)
		}
	}
}

func TestAPIKeyRequired(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	health, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("health must not need a key, status = %d", health.StatusCode)
	}
}
