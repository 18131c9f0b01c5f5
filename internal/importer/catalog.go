package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mensahub/mensa/internal/database"
)

// Catalog is the drop-file format for supplier price lists. One file carries
// one supplier's products for one tenant.
type Catalog struct {
	Tenant   string `json:"tenant"`
	Supplier struct {
		Name         string `json:"name"`
		ContactEmail string `json:"contactEmail"`
		Phone        string `json:"phone"`
	} `json:"supplier"`
	Products []CatalogProduct `json:"products"`
}

// CatalogProduct is one price-list line.
type CatalogProduct struct {
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Unit          string  `json:"unit"`
	Price         float64 `json:"price"`
	ArticleNumber string  `json:"articleNumber"`
}

// ImportResult summarizes one processed catalog file.
type ImportResult struct {
	BatchID         string
	Tenant          string
	SupplierID      int64
	ProductsCreated int
	ProductsUpdated int
}

// ImportFile parses a catalog file and applies it in a single transaction:
// the supplier is upserted by name, each product by article number. A failing
// product line rolls back the whole file.
func (m *Manager) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	if catalog.Tenant == "" {
		return nil, fmt.Errorf("catalog file missing tenant")
	}
	if catalog.Supplier.Name == "" {
		return nil, fmt.Errorf("catalog file missing supplier name")
	}

	tenant, err := m.db.GetTenant(ctx, catalog.Tenant)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, fmt.Errorf("unknown tenant %q in catalog file", catalog.Tenant)
	}

	result := &ImportResult{
		BatchID: uuid.NewString(),
		Tenant:  catalog.Tenant,
	}

	err = m.db.Transaction(ctx, func(tx *database.Tx) error {
		repo := tx.Tenant(catalog.Tenant)

		supplierID, err := upsertSupplier(ctx, repo, catalog)
		if err != nil {
			return err
		}
		result.SupplierID = supplierID

		for _, p := range catalog.Products {
			if p.Name == "" {
				return fmt.Errorf("product line without name")
			}
			created, err := upsertProduct(ctx, repo, supplierID, p)
			if err != nil {
				return err
			}
			if created {
				result.ProductsCreated++
			} else {
				result.ProductsUpdated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import catalog: %w", err)
	}

	log.Info().
		Str("batch_id", result.BatchID).
		Str("tenant", result.Tenant).
		Str("supplier", catalog.Supplier.Name).
		Int("created", result.ProductsCreated).
		Int("updated", result.ProductsUpdated).
		Msg("Imported supplier catalog")

	return result, nil
}

func upsertSupplier(ctx context.Context, repo *database.Repo, catalog Catalog) (int64, error) {
	existing, err := repo.FindAll(ctx, "suppliers", database.ListOptions{
		Where: []database.Where{{Column: "name", Op: "=", Value: catalog.Supplier.Name}},
		Limit: 1,
	})
	if err != nil {
		return 0, err
	}

	data := database.Row{
		"name":          catalog.Supplier.Name,
		"contact_email": catalog.Supplier.ContactEmail,
		"phone":         catalog.Supplier.Phone,
	}

	if len(existing) > 0 {
		id := existing[0]["id"].(int64)
		if _, err := repo.Update(ctx, "suppliers", id, data); err != nil {
			return 0, err
		}
		return id, nil
	}

	row, err := repo.Create(ctx, "suppliers", data)
	if err != nil {
		return 0, err
	}
	return row["id"].(int64), nil
}

func upsertProduct(ctx context.Context, repo *database.Repo, supplierID int64, p CatalogProduct) (bool, error) {
	data := database.Row{
		"supplier_id":    supplierID,
		"name":           p.Name,
		"category":       p.Category,
		"unit":           p.Unit,
		"price":          p.Price,
		"article_number": p.ArticleNumber,
	}

	if p.ArticleNumber != "" {
		existing, err := repo.FindAll(ctx, "products", database.ListOptions{
			Where: []database.Where{
				{Column: "supplier_id", Op: "=", Value: supplierID},
				{Column: "article_number", Op: "=", Value: p.ArticleNumber},
			},
			Limit: 1,
		})
		if err != nil {
			return false, err
		}
		if len(existing) > 0 {
			id := existing[0]["id"].(int64)
			_, err := repo.Update(ctx, "products", id, data)
			return false, err
		}
	}

	_, err := repo.Create(ctx, "products", data)
	return true, err
}
