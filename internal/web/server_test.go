package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mensahub/mensa/internal/auth"
	"github.com/mensahub/mensa/internal/database"
)

func newTestServer(t *testing.T) (*Server, *database.DB) {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if _, err := db.CreateTenant(ctx, "demo", "Demo Kitchen"); err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}

	return NewServer(db, 0, "", nil), db
}

func doRequest(t *testing.T, s *Server, method, path, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if tenantID != "" {
		req.Header.Set("x-tenant-id", tenantID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthNeedsNoTenant(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTenantHeaderRequired(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/products?page=1&limit=10", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without header, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/products?page=1&limit=10", "nobody", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown tenant, got %d", rec.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	s, db := newTestServer(t)
	ctx := context.Background()

	if _, err := db.CreateTenant(ctx, "secure", "Secure Kitchen"); err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}
	key, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		t.Fatalf("failed to hash key: %v", err)
	}
	if err := db.SetTenantAPIKeyHash(ctx, "secure", hash); err != nil {
		t.Fatalf("failed to store hash: %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/products?page=1&limit=10", "secure", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/products?page=1&limit=10", nil)
	req.Header.Set("x-tenant-id", "secure")
	req.Header.Set("x-api-key", key)
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestProductCRUD(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/products", "demo", map[string]any{
		"name":     "Vollkornbrot",
		"category": "Backwaren",
		"price":    2.5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeJSON(t, rec)
	id := int64(created["id"].(float64))
	if created["tenant_id"] != "demo" {
		t.Errorf("expected tenant_id demo, got %v", created["tenant_id"])
	}

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/products/%d", id), "demo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeJSON(t, rec); got["name"] != "Vollkornbrot" {
		t.Errorf("expected name Vollkornbrot, got %v", got["name"])
	}

	rec = doRequest(t, s, http.MethodPut, fmt.Sprintf("/api/products/%d", id), "demo", map[string]any{
		"price": 2.8,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeJSON(t, rec); got["price"] != 2.8 {
		t.Errorf("expected price 2.8, got %v", got["price"])
	}

	rec = doRequest(t, s, http.MethodDelete, fmt.Sprintf("/api/products/%d", id), "demo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/products/%d", id), "demo", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreateRejectsMissingName(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/products", "demo", map[string]any{
		"category": "Backwaren",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestErrorBodyIsValidJSON(t *testing.T) {
	s, db := newTestServer(t)
	ctx := context.Background()

	row, err := db.Tenant("demo").Create(ctx, "products", database.Row{"name": "Senf"})
	if err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	id := row["id"].(int64)

	// A quoted column name ends up inside the validation error message and
	// must survive the trip into the error envelope.
	rec := doRequest(t, s, http.MethodPut, fmt.Sprintf("/api/products/%d", id), "demo", map[string]any{
		`bad"col`: 1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not valid JSON: %v: %s", err, rec.Body.String())
	}
	if body["error"] == "" {
		t.Errorf("expected an error message, got %q", rec.Body.String())
	}
}

func TestUpdateUnknownIDReturns404(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPut, "/api/products/9999", "demo", map[string]any{
		"price": 1.0,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownResourceReturns404(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/widgets?page=1&limit=10", "demo", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListPagination(t *testing.T) {
	s, db := newTestServer(t)
	ctx := context.Background()
	repo := db.Tenant("demo")

	for i := 1; i <= 25; i++ {
		_, err := repo.Create(ctx, "suppliers", database.Row{
			"name": fmt.Sprintf("Lieferant %02d", i),
		})
		if err != nil {
			t.Fatalf("failed to seed supplier: %v", err)
		}
	}

	rec := doRequest(t, s, http.MethodGet, "/api/suppliers?page=2&limit=10", "demo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeJSON(t, rec)

	items := got["items"].([]any)
	if len(items) != 10 {
		t.Errorf("expected 10 items, got %d", len(items))
	}
	pagination := got["pagination"].(map[string]any)
	if pagination["totalItems"] != float64(25) {
		t.Errorf("expected 25 total items, got %v", pagination["totalItems"])
	}
	if pagination["totalPages"] != float64(3) {
		t.Errorf("expected 3 total pages, got %v", pagination["totalPages"])
	}
	if pagination["hasNextPage"] != true || pagination["hasPreviousPage"] != true {
		t.Errorf("expected a middle page, got %v", pagination)
	}
}

func TestListSearch(t *testing.T) {
	s, db := newTestServer(t)
	ctx := context.Background()
	repo := db.Tenant("demo")

	for _, name := range []string{"Currywurst", "Rote Curry-Paste", "Kartoffeln"} {
		if _, err := repo.Create(ctx, "products", database.Row{"name": name}); err != nil {
			t.Fatalf("failed to seed product: %v", err)
		}
	}

	rec := doRequest(t, s, http.MethodGet, "/api/products?q=Curry", "demo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeJSON(t, rec)
	if items := got["items"].([]any); len(items) != 2 {
		t.Errorf("expected 2 matches, got %d: %v", len(items), items)
	}
}

func TestTenantIsolation(t *testing.T) {
	s, db := newTestServer(t)
	ctx := context.Background()

	if _, err := db.CreateTenant(ctx, "acme", "Acme Catering"); err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}
	row, err := db.Tenant("demo").Create(ctx, "products", database.Row{"name": "Geheimrezept"})
	if err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	id := row["id"].(int64)

	rec := doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/products/%d", id), "acme", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 across tenants, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, fmt.Sprintf("/api/products/%d", id), "acme", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting across tenants, got %d", rec.Code)
	}
}

func seedRecipes(t *testing.T, db *database.DB) {
	t.Helper()
	ctx := context.Background()
	repo := db.Tenant("demo")

	recipes := []database.Row{
		{"name": "Linsensuppe", "category": "Suppe", "cost_per_serving": 1.2, "health_score": 8.0, "prep_time_minutes": 30},
		{"name": "Currywurst", "category": "Hauptgericht", "cost_per_serving": 2.4, "health_score": 3.0, "prep_time_minutes": 20},
		{"name": "Gemueseauflauf", "category": "Hauptgericht", "cost_per_serving": 1.8, "health_score": 7.5, "prep_time_minutes": 45},
	}
	for _, r := range recipes {
		if _, err := repo.Create(ctx, "recipes", r); err != nil {
			t.Fatalf("failed to seed recipe: %v", err)
		}
	}
}

func TestSuggestMeals(t *testing.T) {
	s, db := newTestServer(t)
	seedRecipes(t, db)

	rec := doRequest(t, s, http.MethodPost, "/api/ai/suggest-meals", "demo", map[string]any{
		"mode":       "cost_optimized",
		"weekNumber": 12,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeJSON(t, rec)
	if got["success"] != true {
		t.Fatalf("expected success, got %v", got)
	}
	plan := got["mealPlan"].(map[string]any)
	days := plan["days"].([]any)
	if len(days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(days))
	}
	firstDay := days[0].(map[string]any)
	if meals := firstDay["meals"].([]any); len(meals) != 2 {
		t.Errorf("expected 2 meals per day, got %d", len(meals))
	}
	if _, ok := got["suggestions"].([]any); !ok {
		t.Errorf("expected a suggestions array, got %v", got["suggestions"])
	}
}

func TestSuggestMealsWithoutRecipes(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/ai/suggest-meals", "demo", map[string]any{
		"mode":       "variety",
		"weekNumber": 5,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without recipes, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOptimizePlan(t *testing.T) {
	s, db := newTestServer(t)
	seedRecipes(t, db)

	rec := doRequest(t, s, http.MethodPost, "/api/ai/optimize-plan", "demo", map[string]any{
		"mode":       "balanced_nutrition",
		"weekNumber": 20,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeJSON(t, rec)
	if got["success"] != true {
		t.Fatalf("expected success, got %v", got)
	}
}

func TestSubmitOrder(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/orders", "demo", map[string]any{
		"notes": "Wochenbestellung",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	order := decodeJSON(t, rec)
	if order["status"] != "draft" {
		t.Fatalf("expected draft order, got %v", order["status"])
	}
	orderID := int64(order["id"].(float64))

	items := []map[string]any{
		{"order_id": orderID, "name": "Mehl", "quantity": 10.0, "unit_price": 0.8},
		{"order_id": orderID, "name": "Butter", "quantity": 4.0, "unit_price": 2.3},
	}
	for _, item := range items {
		rec = doRequest(t, s, http.MethodPost, "/api/order-items", "demo", item)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 for item, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec = doRequest(t, s, http.MethodPost, fmt.Sprintf("/api/orders/%d/submit", orderID), "demo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	submitted := decodeJSON(t, rec)
	if submitted["status"] != "submitted" {
		t.Errorf("expected status submitted, got %v", submitted["status"])
	}
	total, _ := submitted["total_cost"].(float64)
	if math.Abs(total-17.2) > 1e-6 {
		t.Errorf("expected total 17.2, got %v", submitted["total_cost"])
	}

	// A submitted order cannot be submitted twice.
	rec = doRequest(t, s, http.MethodPost, fmt.Sprintf("/api/orders/%d/submit", orderID), "demo", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on resubmit, got %d: %s", rec.Code, rec.Body.String())
	}
}
