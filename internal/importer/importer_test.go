package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mensahub/mensa/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if _, err := db.CreateTenant(context.Background(), "demo", "Demo Kitchen"); err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}
	return db
}

func writeCatalog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	return path
}

const sampleCatalog = `{
	"tenant": "demo",
	"supplier": {"name": "Backhaus Nord", "contactEmail": "orders@backhaus.test"},
	"products": [
		{"name": "Brot", "category": "Backwaren", "unit": "Stk", "price": 2.5, "articleNumber": "B-100"},
		{"name": "Broetchen", "category": "Backwaren", "unit": "Stk", "price": 0.45, "articleNumber": "B-101"}
	]
}`

func TestImportFile_CreatesSupplierAndProducts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dir := t.TempDir()

	m, err := New(db, nil, dir)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	path := writeCatalog(t, dir, "backhaus.json", sampleCatalog)
	result, err := m.ImportFile(ctx, path)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.ProductsCreated != 2 || result.ProductsUpdated != 0 {
		t.Errorf("expected 2 created / 0 updated, got %d / %d", result.ProductsCreated, result.ProductsUpdated)
	}

	repo := db.Tenant("demo")
	suppliers, err := repo.FindAll(ctx, "suppliers", database.ListOptions{})
	if err != nil {
		t.Fatalf("failed to list suppliers: %v", err)
	}
	if len(suppliers) != 1 || suppliers[0]["name"] != "Backhaus Nord" {
		t.Errorf("unexpected suppliers: %v", suppliers)
	}

	products, err := repo.FindAll(ctx, "products", database.ListOptions{})
	if err != nil {
		t.Fatalf("failed to list products: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("expected 2 products, got %d", len(products))
	}
}

func TestImportFile_ReimportUpdatesByArticleNumber(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dir := t.TempDir()

	m, err := New(db, nil, dir)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	path := writeCatalog(t, dir, "backhaus.json", sampleCatalog)
	if _, err := m.ImportFile(ctx, path); err != nil {
		t.Fatalf("first import failed: %v", err)
	}

	// Same articles, new price
	updated := writeCatalog(t, dir, "backhaus2.json", `{
		"tenant": "demo",
		"supplier": {"name": "Backhaus Nord"},
		"products": [
			{"name": "Brot", "unit": "Stk", "price": 2.8, "articleNumber": "B-100"}
		]
	}`)
	result, err := m.ImportFile(ctx, updated)
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if result.ProductsCreated != 0 || result.ProductsUpdated != 1 {
		t.Errorf("expected 0 created / 1 updated, got %d / %d", result.ProductsCreated, result.ProductsUpdated)
	}

	products, err := db.Tenant("demo").FindAll(ctx, "products", database.ListOptions{})
	if err != nil {
		t.Fatalf("failed to list products: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products after re-import, got %d", len(products))
	}
	for _, p := range products {
		if p["article_number"] == "B-100" && p["price"] != 2.8 {
			t.Errorf("expected updated price 2.8, got %v", p["price"])
		}
	}
}

func TestImportFile_UnknownTenantRejected(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()

	m, err := New(db, nil, dir)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	path := writeCatalog(t, dir, "bad.json", `{"tenant": "nobody", "supplier": {"name": "X"}}`)
	if _, err := m.ImportFile(context.Background(), path); err == nil {
		t.Error("expected error for unknown tenant")
	}
}

func TestImportFile_BadLineRollsBackWholeFile(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dir := t.TempDir()

	m, err := New(db, nil, dir)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	path := writeCatalog(t, dir, "partial.json", `{
		"tenant": "demo",
		"supplier": {"name": "Backhaus Nord"},
		"products": [
			{"name": "Brot", "price": 2.5, "articleNumber": "B-100"},
			{"price": 1.0, "articleNumber": "B-999"}
		]
	}`)
	if _, err := m.ImportFile(ctx, path); err == nil {
		t.Fatal("expected import to fail on nameless product")
	}

	repo := db.Tenant("demo")
	suppliers, _ := repo.FindAll(ctx, "suppliers", database.ListOptions{})
	products, _ := repo.FindAll(ctx, "products", database.ListOptions{})
	if len(suppliers) != 0 || len(products) != 0 {
		t.Errorf("expected full rollback, got %d suppliers / %d products", len(suppliers), len(products))
	}
}
