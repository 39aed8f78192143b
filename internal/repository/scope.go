package repository

import (
	"context"
	"strings"

	"github.com/fieldcrm/crm-api/internal/auth"
	"gorm.io/gorm"
)

// MaxPageSize is the maximum allowed page size for paginated queries
const MaxPageSize = 200

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// SortConfig holds sorting configuration for list queries
type SortConfig struct {
	Field string    // The field to sort by (API field name)
	Order SortOrder // asc or desc
}

// ParseSortOrder parses a string into SortOrder, defaulting to desc
func ParseSortOrder(s string) SortOrder {
	if strings.ToLower(s) == "asc" {
		return SortOrderAsc
	}
	return SortOrderDesc
}

// BuildOrderClause builds the SQL ORDER BY clause from field mapping and sort config.
// Fields outside fieldMap fall back to defaultColumn.
func BuildOrderClause(config SortConfig, fieldMap map[string]string, defaultColumn string) string {
	column, ok := fieldMap[config.Field]
	if !ok {
		column = defaultColumn
	}

	order := "DESC"
	if config.Order == SortOrderAsc {
		order = "ASC"
	}

	return column + " " + order
}

// NormalizePage clamps page and page size to sane bounds
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// NormalizeSearch lowercases the query and collapses whitespace
func NormalizeSearch(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// ApplySearch matches the normalized query against any of the columns
func ApplySearch(query *gorm.DB, q string, columns ...string) *gorm.DB {
	q = NormalizeSearch(q)
	if q == "" || len(columns) == 0 {
		return query
	}
	pattern := "%" + q + "%"
	clauses := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, col := range columns {
		clauses = append(clauses, "LOWER("+col+") LIKE ?")
		args = append(args, pattern)
	}
	return query.Where("("+strings.Join(clauses, " OR ")+")", args...)
}

// ApplyLocationFilter restricts warehouse queries of a warehouseman to the active location.
// Other roles see every location unless they filter explicitly.
func ApplyLocationFilter(ctx context.Context, query *gorm.DB, column string) *gorm.DB {
	caps, ok := auth.CapabilitiesFromContext(ctx)
	if !ok || !caps.IsWarehouseman || caps.ActiveLocationID == nil {
		return query
	}
	return query.Where(column+" = ?", *caps.ActiveLocationID)
}
