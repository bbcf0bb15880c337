package repository

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// jsonbPatch builds a nested jsonb_set expression against a single column so
// several sub-paths change in one UPDATE. Appends and increments read the
// column's current value inside the statement.
type jsonbPatch struct {
	column string
	sql    string
	args   []interface{}
}

func newJSONBPatch(column string) *jsonbPatch {
	return &jsonbPatch{column: column, sql: column}
}

// jsonPath renders a Postgres text[] path literal, e.g. {steps,drain,status}.
func jsonPath(parts ...string) string {
	return "{" + strings.Join(parts, ",") + "}"
}

func (p *jsonbPatch) set(path string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	p.sql = fmt.Sprintf("jsonb_set(%s, ?::text[], ?::jsonb, true)", p.sql)
	p.args = append(p.args, path, string(data))
	return nil
}

func (p *jsonbPatch) appendTo(path string, value interface{}) error {
	data, err := json.Marshal([]interface{}{value})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	p.sql = fmt.Sprintf("jsonb_set(%s, ?::text[], COALESCE(%s #> ?::text[], '[]'::jsonb) || ?::jsonb, true)", p.sql, p.column)
	p.args = append(p.args, path, path, string(data))
	return nil
}

func (p *jsonbPatch) increment(path string, delta int) {
	p.sql = fmt.Sprintf("jsonb_set(%s, ?::text[], to_jsonb(COALESCE((%s #>> ?::text[])::int, 0) + ?::int), true)", p.sql, p.column)
	p.args = append(p.args, path, path, delta)
}

func (p *jsonbPatch) expr() clause.Expr {
	return gorm.Expr(p.sql, p.args...)
}
