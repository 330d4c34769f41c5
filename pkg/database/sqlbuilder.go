package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Now evaluates to the database clock. Timestamps owned by the database use it so
// rows written by different workers agree on ordering.
var Now = sqlbuilder.Raw("NOW()")

// InsertBuilder is a PostgreSQL insert builder with upsert helpers
type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

// OnConflictOverwrite turns the insert into an upsert keyed on key. Every column in
// overwrite takes the proposed value and updated_at moves to Now.
func (b *InsertBuilder) OnConflictOverwrite(key []string, overwrite ...string) *InsertBuilder {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	assignments := make([]string, 0, len(overwrite)+1)
	for _, col := range overwrite {
		assignments = append(assignments, ub.Assign(col, sqlbuilder.Raw("EXCLUDED."+col)))
	}
	assignments = append(assignments, ub.Assign("updated_at", Now))
	ub.Set(assignments...)

	b.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE %s", strings.Join(key, ", "), b.Var(ub)))
	return b
}

type UpdateBuilder struct {
	*sqlbuilder.UpdateBuilder
}

func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{sqlbuilder.PostgreSQL.NewUpdateBuilder()}
}

// Touch assigns updated_at to Now alongside the given assignments
func (b *UpdateBuilder) Touch(assignments ...string) *UpdateBuilder {
	b.Set(append(assignments, b.Assign("updated_at", Now))...)
	return b
}

type DeleteBuilder struct {
	*sqlbuilder.DeleteBuilder
}

func NewDeleteBuilder() *DeleteBuilder {
	return &DeleteBuilder{sqlbuilder.PostgreSQL.NewDeleteBuilder()}
}

// Struct maps a model's db tags to column lists
type Struct struct {
	*sqlbuilder.Struct
}

func NewStruct(v any) *Struct {
	return &Struct{sqlbuilder.NewStruct(v).For(sqlbuilder.PostgreSQL)}
}

// SelectFrom selects every mapped column from table
func (s *Struct) SelectFrom(table string) *sqlbuilder.SelectBuilder {
	return s.Struct.SelectFrom(table)
}
