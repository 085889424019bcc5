// Package postgres implements the storage backend on PostgreSQL using pgx.
//
// Inserts go through pgx's batch protocol, one implicit round trip per batch,
// with ON CONFLICT DO NOTHING carrying the skip-duplicates contract.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/KhanhD1nh/export-data/internal/schema"
	"github.com/KhanhD1nh/export-data/internal/storage"
	"github.com/KhanhD1nh/export-data/pkg/records"
)

// NewDialer returns a storage.Dialer opening pgx connections against dsn.
func NewDialer(dsn string) storage.Dialer {
	return func(ctx context.Context) (storage.Conn, error) {
		pc, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres: connect: %w", err)
		}
		return &Conn{conn: pc}, nil
	}
}

// Conn wraps one pgx connection. At most one transaction is in flight at a
// time; the pool's release path rolls back anything left uncommitted.
type Conn struct {
	conn *pgx.Conn
	tx   pgx.Tx
}

// insertSQL holds the prepared statement text per table, built once.
var insertSQL = func() map[schema.Table]string {
	m := make(map[schema.Table]string, len(schema.DependencyOrder()))
	for _, t := range schema.DependencyOrder() {
		cols := schema.Columns(t)
		quoted := make([]string, len(cols))
		ph := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = `"` + c + `"`
			ph[i] = "$" + strconv.Itoa(i+1)
		}
		m[t] = fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT ("%s") DO NOTHING`,
			t, strings.Join(quoted, ", "), strings.Join(ph, ", "), schema.Key(t))
	}
	return m
}()

// InsertBatch writes rows into table in one transaction, skipping rows whose
// primary key already exists. For hoso rows, certificate references that do
// not resolve are nulled first: the exports regularly mention certificates
// that were never included in any file.
func (c *Conn) InsertBatch(ctx context.Context, table schema.Table, rows []records.Record) (int64, error) {
	if !schema.Known(table) {
		return 0, fmt.Errorf("postgres: unknown table %q", table)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if table == schema.TableHoSo {
		var err error
		rows, err = c.nullDanglingCertificates(ctx, rows)
		if err != nil {
			return 0, err
		}
	}

	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	c.tx = tx

	cols := schema.Columns(table)
	b := &pgx.Batch{}
	for _, row := range rows {
		args := make([]any, len(cols))
		for i, col := range cols {
			args[i] = row[col]
		}
		b.Queue(insertSQL[table], args...)
	}

	var inserted int64
	br := tx.SendBatch(ctx, b)
	for range rows {
		ct, err := br.Exec()
		if err != nil {
			_ = br.Close()
			c.rollback(ctx)
			return 0, fmt.Errorf("postgres: insert %s: %w", table, describe(err))
		}
		inserted += ct.RowsAffected()
	}
	if err := br.Close(); err != nil {
		c.rollback(ctx)
		return 0, fmt.Errorf("postgres: insert %s: %w", table, describe(err))
	}
	if err := tx.Commit(ctx); err != nil {
		c.rollback(ctx)
		return 0, fmt.Errorf("postgres: commit %s: %w", table, describe(err))
	}
	c.tx = nil
	return inserted, nil
}

// nullDanglingCertificates nulls giayChungNhanID values that do not exist in
// giaychungnhan, so the foreign key constraint does not fail the whole batch.
// Rows are copied before modification; the caller's slice is left intact.
func (c *Conn) nullDanglingCertificates(ctx context.Context, rows []records.Record) ([]records.Record, error) {
	refs := make(map[string]struct{})
	for _, r := range rows {
		if id, ok := r["giayChungNhanID"].(string); ok && id != "" {
			refs[id] = struct{}{}
		}
	}
	if len(refs) == 0 {
		return rows, nil
	}
	ids := make([]string, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}

	q, err := c.conn.Query(ctx,
		`SELECT "giayChungNhanID" FROM giaychungnhan WHERE "giayChungNhanID" = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: resolve certificate refs: %w", err)
	}
	exists := make(map[string]struct{}, len(ids))
	for q.Next() {
		var id string
		if err := q.Scan(&id); err != nil {
			q.Close()
			return nil, fmt.Errorf("postgres: resolve certificate refs: %w", err)
		}
		exists[id] = struct{}{}
	}
	q.Close()
	if err := q.Err(); err != nil {
		return nil, fmt.Errorf("postgres: resolve certificate refs: %w", err)
	}

	out := make([]records.Record, len(rows))
	for i, r := range rows {
		id, ok := r["giayChungNhanID"].(string)
		if !ok || id == "" {
			out[i] = r
			continue
		}
		if _, found := exists[id]; found {
			out[i] = r
			continue
		}
		cp := make(records.Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		cp["giayChungNhanID"] = nil
		out[i] = cp
	}
	return out, nil
}

// Reset rolls back any in-flight transaction.
func (c *Conn) Reset(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback(ctx)
	c.tx = nil
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

// Closed reports whether the underlying pgx connection is gone.
func (c *Conn) Closed() bool { return c.conn.IsClosed() }

// Close terminates the connection. Safe to call repeatedly.
func (c *Conn) Close(ctx context.Context) error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close(ctx)
}

func (c *Conn) rollback(ctx context.Context) {
	if c.tx != nil {
		_ = c.tx.Rollback(ctx)
		c.tx = nil
	}
}

// describe surfaces the SQLSTATE of server-side errors; pipeline logs carry
// the code so failures can be grouped without the full message text.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("[%s] %w", pgErr.Code, err)
	}
	return err
}
