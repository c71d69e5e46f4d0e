package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entitygrid/entitygrid/internal/schema"
)

// Dialect selects the SQL placeholder style.
type Dialect int

const (
	// DialectPostgres uses $1..$n placeholders
	DialectPostgres Dialect = iota
	// DialectSQLite uses ? placeholders
	DialectSQLite
)

func (d Dialect) placeholder(n int) string {
	if d == DialectSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// linkTable stores many-relation memberships for all entities.
const linkTable = "entity_links"

// eventTable stores the append-only change log for all entities.
const eventTable = "change_events"

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQL is a database/sql backed Store. Each entity maps to a table named
// after its schema table; many-relations and change events live in shared
// side tables.
type SQL struct {
	db      *sql.DB
	q       querier
	reg     *schema.Registry
	dialect Dialect
}

// NewSQL creates a SQL store over an open database handle.
func NewSQL(db *sql.DB, reg *schema.Registry, dialect Dialect) *SQL {
	return &SQL{db: db, q: db, reg: reg, dialect: dialect}
}

// columns returns the record columns of an entity table in sorted order for
// deterministic statements.
func (s *SQL) columns(entity string) ([]string, error) {
	e, ok := s.reg.Get(entity)
	if !ok {
		return nil, fmt.Errorf("entity %s not registered", entity)
	}
	cols := []string{schema.FieldID, schema.FieldStatus, schema.FieldLastModified, schema.FieldModifiedBy}
	for _, f := range e.ScalarFields() {
		cols = append(cols, f.Name)
	}
	sort.Strings(cols)
	return cols, nil
}

func (s *SQL) table(entity string) (string, error) {
	e, ok := s.reg.Get(entity)
	if !ok {
		return "", fmt.Errorf("entity %s not registered", entity)
	}
	return e.Table, nil
}

// Get implements Store.
func (s *SQL) Get(ctx context.Context, entity string, id int64) (Record, error) {
	table, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	cols, err := s.columns(entity)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s",
		strings.Join(cols, ", "), table, s.dialect.placeholder(1))
	return s.scanRow(s.q.QueryRowContext(ctx, query, id), cols)
}

// Insert implements Store.
func (s *SQL) Insert(ctx context.Context, entity string, fields Record) (Record, error) {
	table, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	cols, err := s.columns(entity)
	if err != nil {
		return nil, err
	}

	var names []string
	var placeholders []string
	var values []any
	counter := 1
	for _, col := range cols {
		value, ok := fields[col]
		if !ok {
			continue
		}
		names = append(names, col)
		placeholders = append(placeholders, s.dialect.placeholder(counter))
		values = append(values, value)
		counter++
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no fields to insert")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		table,
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(cols, ", "),
	)
	return s.scanRow(s.q.QueryRowContext(ctx, query, values...), cols)
}

// Update implements Store.
func (s *SQL) Update(ctx context.Context, entity string, id int64, fields Record) (Record, error) {
	table, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	cols, err := s.columns(entity)
	if err != nil {
		return nil, err
	}

	var assignments []string
	var values []any
	counter := 1
	for _, col := range cols {
		value, ok := fields[col]
		if !ok || col == schema.FieldID {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = %s", col, s.dialect.placeholder(counter)))
		values = append(values, value)
		counter++
	}
	if len(assignments) == 0 {
		return s.Get(ctx, entity, id)
	}
	values = append(values, id)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = %s RETURNING %s",
		table,
		strings.Join(assignments, ", "),
		s.dialect.placeholder(counter),
		strings.Join(cols, ", "),
	)
	return s.scanRow(s.q.QueryRowContext(ctx, query, values...), cols)
}

// List implements Store.
func (s *SQL) List(ctx context.Context, entity string, q Query) ([]Record, error) {
	table, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	cols, err := s.columns(entity)
	if err != nil {
		return nil, err
	}

	where, args := s.whereClause(q)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id",
		strings.Join(cols, ", "), table, where)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanColumns(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count implements Store.
func (s *SQL) Count(ctx context.Context, entity string, q Query) (int, error) {
	table, err := s.table(entity)
	if err != nil {
		return 0, err
	}

	where, args := s.whereClause(q)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where)

	var count int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQL) whereClause(q Query) (string, []any) {
	var conditions []string
	var args []any
	counter := 1
	if q.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = %s", s.dialect.placeholder(counter)))
		args = append(args, q.Status)
		counter++
	}
	if q.IDs != nil {
		var placeholders []string
		for _, id := range q.IDs {
			placeholders = append(placeholders, s.dialect.placeholder(counter))
			args = append(args, id)
			counter++
		}
		conditions = append(conditions, fmt.Sprintf("id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// Relations implements Store.
func (s *SQL) Relations(ctx context.Context, entity, field string, ownerID int64) ([]int64, error) {
	query := fmt.Sprintf(
		"SELECT related_id FROM %s WHERE entity = %s AND field = %s AND owner_id = %s ORDER BY related_id",
		linkTable, s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3))

	rows, err := s.q.QueryContext(ctx, query, entity, field, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetRelations implements Store.
func (s *SQL) SetRelations(ctx context.Context, entity, field string, ownerID int64, ids []int64) error {
	del := fmt.Sprintf("DELETE FROM %s WHERE entity = %s AND field = %s AND owner_id = %s",
		linkTable, s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3))
	if _, err := s.q.ExecContext(ctx, del, entity, field, ownerID); err != nil {
		return err
	}

	ins := fmt.Sprintf(
		"INSERT INTO %s (entity, field, owner_id, related_id) VALUES (%s, %s, %s, %s)",
		linkTable, s.dialect.placeholder(1), s.dialect.placeholder(2),
		s.dialect.placeholder(3), s.dialect.placeholder(4))
	for _, id := range ids {
		if _, err := s.q.ExecContext(ctx, ins, entity, field, ownerID, id); err != nil {
			return err
		}
	}
	return nil
}

// AppendEvent implements Store.
func (s *SQL) AppendEvent(ctx context.Context, ev Event) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (entity, entity_id, actor_id, actor_name, created_at, message) VALUES (%s, %s, %s, %s, %s, %s)",
		eventTable,
		s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3),
		s.dialect.placeholder(4), s.dialect.placeholder(5), s.dialect.placeholder(6))
	_, err := s.q.ExecContext(ctx, query, ev.Entity, ev.EntityID, ev.ActorID, ev.ActorName, ev.Time, ev.Message)
	return err
}

// Events implements Store.
func (s *SQL) Events(ctx context.Context, entity string, id int64) ([]Event, error) {
	query := fmt.Sprintf(
		"SELECT id, entity, entity_id, actor_id, actor_name, created_at, message FROM %s WHERE entity = %s AND entity_id = %s ORDER BY id DESC",
		eventTable, s.dialect.placeholder(1), s.dialect.placeholder(2))

	rows, err := s.q.QueryContext(ctx, query, entity, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Entity, &ev.EntityID, &ev.ActorID, &ev.ActorName, &ev.Time, &ev.Message); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// InTx implements Store.
func (s *SQL) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		// Already inside a transaction; nested boundaries join the outer one.
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &SQL{q: tx, reg: s.reg, dialect: s.dialect}
	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRow scans a single row into a record, mapping sql.ErrNoRows to
// ErrNotFound.
func (s *SQL) scanRow(row *sql.Row, cols []string) (Record, error) {
	rec, err := scanColumns(row, cols)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

// scanColumns scans the named columns into a record, normalizing driver
// value shapes.
func scanColumns(scanner rowScanner, cols []string) (Record, error) {
	values := make([]any, len(cols))
	pointers := make([]any, len(cols))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := scanner.Scan(pointers...); err != nil {
		return nil, err
	}

	rec := make(Record, len(cols))
	for i, col := range cols {
		rec[col] = normalizeValue(values[i])
	}
	return rec, nil
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case time.Time:
		return v
	default:
		return v
	}
}
