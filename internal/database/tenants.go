package database

import (
	"context"
	"fmt"
	"time"
)

// TenantRecord represents a tenant row.
type TenantRecord struct {
	ID         int64
	TenantID   string
	Name       string
	APIKeyHash string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func tenantFromRow(row Row) *TenantRecord {
	if row == nil {
		return nil
	}
	t := &TenantRecord{}
	t.ID, _ = row["id"].(int64)
	t.TenantID, _ = row["tenant_id"].(string)
	t.Name, _ = row["name"].(string)
	t.APIKeyHash, _ = row["api_key_hash"].(string)
	if s, ok := row["created_at"].(string); ok {
		t.CreatedAt, _ = parseTimestamp(s)
	}
	if s, ok := row["updated_at"].(string); ok {
		t.UpdatedAt, _ = parseTimestamp(s)
	}
	return t
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// CreateTenant inserts a new tenant record.
func (s *store) CreateTenant(ctx context.Context, tenantID, name string) (*TenantRecord, error) {
	row, err := s.Create(ctx, "tenants", Row{
		"tenant_id": tenantID,
		"name":      name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	return tenantFromRow(row), nil
}

// GetTenant retrieves a tenant by its slug (the x-tenant-id header value).
// Returns nil when the tenant does not exist.
func (s *store) GetTenant(ctx context.Context, tenantID string) (*TenantRecord, error) {
	row, err := s.Get(ctx, "SELECT * FROM tenants WHERE tenant_id = ?", tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenantFromRow(row), nil
}

// ListTenants returns every tenant.
func (s *store) ListTenants(ctx context.Context) ([]*TenantRecord, error) {
	rows, err := s.Query(ctx, "SELECT * FROM tenants ORDER BY tenant_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	tenants := make([]*TenantRecord, 0, len(rows))
	for _, row := range rows {
		tenants = append(tenants, tenantFromRow(row))
	}
	return tenants, nil
}

// SetTenantAPIKeyHash stores the bcrypt hash guarding a tenant's API access.
// An empty hash removes the requirement.
func (s *store) SetTenantAPIKeyHash(ctx context.Context, tenantID, hash string) error {
	res, err := s.Run(ctx, "UPDATE tenants SET api_key_hash = ?, updated_at = ? WHERE tenant_id = ?",
		hash, timestamp(), tenantID)
	if err != nil {
		return fmt.Errorf("failed to set tenant api key: %w", err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("tenant %s not found", tenantID)
	}
	return nil
}
