package database

import "context"

// Repo is a repository pre-bound to one tenant. Every method carries the
// tenant filter, so forgetting the scope is structurally impossible. The
// unscoped helpers on DB remain available for infrastructure code.
type Repo struct {
	s        *store
	tenantID string
}

// Tenant returns a repository scoped to the given tenant id.
func (db *DB) Tenant(tenantID string) *Repo {
	return &Repo{s: &db.store, tenantID: tenantID}
}

// Tenant returns a repository scoped to the given tenant id, bound to the
// transaction.
func (tx *Tx) Tenant(tenantID string) *Repo {
	return &Repo{s: &tx.store, tenantID: tenantID}
}

// TenantID returns the tenant the repository is bound to.
func (r *Repo) TenantID() string {
	return r.tenantID
}

func (r *Repo) FindByID(ctx context.Context, table string, id int64) (Row, error) {
	return r.s.FindByID(ctx, table, id, r.tenantID)
}

func (r *Repo) FindAll(ctx context.Context, table string, opts ListOptions) ([]Row, error) {
	return r.s.FindAll(ctx, table, r.tenantID, opts)
}

// Create inserts data with the repository's tenant id stamped onto the row.
func (r *Repo) Create(ctx context.Context, table string, data Row) (Row, error) {
	scoped := make(Row, len(data)+1)
	for k, v := range data {
		scoped[k] = v
	}
	scoped["tenant_id"] = r.tenantID
	return r.s.Create(ctx, table, scoped)
}

func (r *Repo) Update(ctx context.Context, table string, id int64, data Row) (Row, error) {
	return r.s.Update(ctx, table, id, data, r.tenantID)
}

func (r *Repo) Delete(ctx context.Context, table string, id int64) (bool, error) {
	return r.s.Delete(ctx, table, id, r.tenantID)
}

func (r *Repo) Search(ctx context.Context, table string, fields []string, term string) ([]Row, error) {
	return r.s.Search(ctx, table, fields, term, r.tenantID)
}

func (r *Repo) Paginate(ctx context.Context, table string, page, limit int, opts ListOptions) (*Page, error) {
	return r.s.Paginate(ctx, table, page, limit, r.tenantID, opts)
}
