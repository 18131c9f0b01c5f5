package database

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// identPattern is the only shape accepted for table and column names.
// Identifiers are interpolated into SQL, so anything else is rejected
// outright; values always go through parameter binding.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// Where is a single comparison in a conjunction. Structured conditions
// compile to parameterized SQL, so callers never hand the layer raw
// WHERE fragments.
type Where struct {
	Column string
	Op     string
	Value  any
}

var allowedOps = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"LIKE": true,
}

// Order is a single ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// ListOptions narrows and orders a FindAll or Paginate.
type ListOptions struct {
	Where   []Where
	OrderBy []Order
	Limit   int
	Offset  int
}

// timestamp returns the current time in SQLite's datetime text format.
// It matches the lexicographic ordering of CURRENT_TIMESTAMP defaults.
func timestamp() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05.999")
}

// buildFilter compiles the tenant scope plus structured conditions into a
// WHERE clause. Returns an empty string when nothing filters.
func buildFilter(tenantID string, conds []Where) (string, []any, error) {
	var parts []string
	var args []any

	if tenantID != "" {
		parts = append(parts, "tenant_id = ?")
		args = append(args, tenantID)
	}
	for _, c := range conds {
		if err := checkIdent(c.Column); err != nil {
			return "", nil, err
		}
		op := strings.ToUpper(strings.TrimSpace(c.Op))
		if op == "" {
			op = "="
		}
		if !allowedOps[op] {
			return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", c.Column, op))
		args = append(args, c.Value)
	}

	if len(parts) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func buildOrder(orderBy []Order) (string, error) {
	if len(orderBy) == 0 {
		return "", nil
	}
	terms := make([]string, 0, len(orderBy))
	for _, o := range orderBy {
		if err := checkIdent(o.Column); err != nil {
			return "", err
		}
		if o.Desc {
			terms = append(terms, o.Column+" DESC")
		} else {
			terms = append(terms, o.Column)
		}
	}
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

// FindByID retrieves a single row by primary key. A non-empty tenantID
// restricts the lookup to that tenant's rows. Returns nil when no row
// matches.
func (s *store) FindByID(ctx context.Context, table string, id int64, tenantID string) (Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE id = ?", table)
	args := []any{id}
	if tenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, tenantID)
	}
	return s.Get(ctx, query, args...)
}

// FindAll retrieves every row matching the tenant scope and options. Without
// an explicit OrderBy the row order is whatever SQLite returns.
func (s *store) FindAll(ctx context.Context, table, tenantID string, opts ListOptions) ([]Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	filter, args, err := buildFilter(tenantID, opts.Where)
	if err != nil {
		return nil, err
	}
	order, err := buildOrder(opts.OrderBy)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s%s%s", table, filter, order)
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	return s.Query(ctx, query, args...)
}

// Create inserts data as a new row and returns the row as stored, re-fetched
// by its generated id.
func (s *store) Create(ctx context.Context, table string, data Row) (Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("create %s: no columns given", table)
	}

	cols := make([]string, 0, len(data))
	for col := range data {
		if col == "id" {
			continue
		}
		if err := checkIdent(col); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = "?"
		args[i] = data[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	res, err := s.Run(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return s.FindByID(ctx, table, res.LastInsertID, "")
}

// Update applies a partial record to the row with the given id, stamping
// updated_at even when data is empty. Returns the updated row, or nil when
// no row matches the id (and tenant) — the caller can tell not-found apart
// from success by the nil row.
func (s *store) Update(ctx context.Context, table string, id int64, data Row, tenantID string) (Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(data))
	for col := range data {
		if col == "id" || col == "tenant_id" {
			continue
		}
		if err := checkIdent(col); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+3)
	for _, col := range cols {
		sets = append(sets, col+" = ?")
		args = append(args, data[col])
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, timestamp())

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
	args = append(args, id)
	if tenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, tenantID)
	}

	res, err := s.Run(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	return s.FindByID(ctx, table, id, tenantID)
}

// Delete removes the row with the given id. Returns true when a row was
// actually removed.
func (s *store) Delete(ctx context.Context, table string, id int64, tenantID string) (bool, error) {
	if err := checkIdent(table); err != nil {
		return false, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)
	args := []any{id}
	if tenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, tenantID)
	}
	res, err := s.Run(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

// Search matches term as a substring against each of the given columns.
func (s *store) Search(ctx context.Context, table string, fields []string, term, tenantID string) ([]Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("search %s: no search fields given", table)
	}

	likes := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	pattern := "%" + term + "%"
	for _, f := range fields {
		if err := checkIdent(f); err != nil {
			return nil, err
		}
		likes = append(likes, f+" LIKE ?")
		args = append(args, pattern)
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE (%s)", table, strings.Join(likes, " OR "))
	if tenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, tenantID)
	}

	return s.Query(ctx, query, args...)
}

// Pagination is the page metadata half of a pagination envelope.
type Pagination struct {
	Page            int   `json:"page"`
	Limit           int   `json:"limit"`
	TotalItems      int64 `json:"totalItems"`
	TotalPages      int   `json:"totalPages"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

// Page is a pagination envelope: one window of rows plus its metadata.
type Page struct {
	Items      []Row      `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Paginate returns the 1-based page of rows under the given filter along
// with a total count taken under the same filter. Limit and Offset in opts
// are ignored; the window comes from page and limit.
func (s *store) Paginate(ctx context.Context, table string, page, limit int, tenantID string, opts ListOptions) (*Page, error) {
	if limit < 1 {
		return nil, fmt.Errorf("paginate %s: limit must be positive, got %d", table, limit)
	}
	if page < 1 {
		return nil, fmt.Errorf("paginate %s: page must be positive, got %d", table, page)
	}
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	filter, args, err := buildFilter(tenantID, opts.Where)
	if err != nil {
		return nil, err
	}

	countRow, err := s.Get(ctx, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s%s", table, filter), args...)
	if err != nil {
		return nil, err
	}
	total, _ := countRow["n"].(int64)

	opts.Limit = limit
	opts.Offset = (page - 1) * limit
	items, err := s.FindAll(ctx, table, tenantID, opts)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Row{}
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &Page{
		Items: items,
		Pagination: Pagination{
			Page:            page,
			Limit:           limit,
			TotalItems:      total,
			TotalPages:      totalPages,
			HasNextPage:     page < totalPages,
			HasPreviousPage: page > 1 && total > 0,
		},
	}, nil
}
