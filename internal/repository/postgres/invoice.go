package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/repository"
)

type invoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository creates an InvoiceRepository backed by Postgres.
func NewInvoiceRepository(db *sql.DB) repository.InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) CreateHeader(ctx context.Context, inv *entity.Invoice) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO invoices (customer_id, seller_id, idempotency_key, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4) RETURNING id, code`,
		inv.CustomerID, inv.SellerID, inv.IdempotencyKey, inv.CreatedAt,
	).Scan(&inv.ID, &inv.Code)
	return translate(err, "insert invoice", false)
}

// InsertLines writes the batch as one multi-row INSERT, which Postgres
// applies atomically.
func (r *invoiceRepository) InsertLines(ctx context.Context, lines []entity.InvoiceLine) error {
	if len(lines) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO invoice_lines (invoice_id, product_id, quantity, unit_price_at_sale) VALUES ")
	args := make([]any, 0, len(lines)*4)
	for i, l := range lines {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, l.InvoiceID, l.ProductID, l.Quantity, l.UnitPriceAtSale)
	}
	_, err := r.db.ExecContext(ctx, sb.String(), args...)
	return translate(err, "insert invoice lines", false)
}

func (r *invoiceRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM invoices WHERE id = $1", id)
	return affected(res, err, "delete invoice", true)
}

func (r *invoiceRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entity.Invoice, error) {
	if key == "" {
		return nil, repository.ErrNotFound
	}
	var inv entity.Invoice
	err := r.db.QueryRowContext(ctx,
		"SELECT id, code, customer_id, seller_id, created_at FROM invoices WHERE idempotency_key = $1", key,
	).Scan(&inv.ID, &inv.Code, &inv.CustomerID, &inv.SellerID, &inv.CreatedAt)
	if err != nil {
		return nil, translate(err, "find invoice by idempotency key", false)
	}
	inv.IdempotencyKey = key
	return &inv, nil
}

func (r *invoiceRepository) FindRecord(ctx context.Context, id int64) (*entity.InvoiceRecord, error) {
	recs, err := r.records(ctx, "WHERE i.id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, repository.ErrNotFound
	}
	return &recs[0], nil
}

func (r *invoiceRepository) FindRecords(ctx context.Context, f repository.InvoiceFilter) ([]entity.InvoiceRecord, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("i.created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("i.created_at <= $%d", f.To)
	}
	if f.CustomerID != 0 {
		add("i.customer_id = $%d", f.CustomerID)
	}
	if f.SellerID != 0 {
		add("i.seller_id = $%d", f.SellerID)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	return r.records(ctx, where, args...)
}

const recordHeaderQuery = `
SELECT i.id, i.code, i.customer_id, i.seller_id, i.created_at,
       TRIM(c.first_name || ' ' || c.last_name), TRIM(s.first_name || ' ' || s.last_name)
FROM invoices i
JOIN customers c ON c.id = i.customer_id
JOIN sellers s ON s.id = i.seller_id
`

const recordLinesQuery = `
SELECT l.id, l.invoice_id, l.product_id, l.quantity, l.unit_price_at_sale, p.name
FROM invoice_lines l
JOIN products p ON p.id = l.product_id
WHERE l.invoice_id = ANY($1)
ORDER BY l.id
`

// records loads headers matching where, newest first, then their lines in a
// second query.
func (r *invoiceRepository) records(ctx context.Context, where string, args ...any) ([]entity.InvoiceRecord, error) {
	rows, err := r.db.QueryContext(ctx, recordHeaderQuery+where+" ORDER BY i.created_at DESC, i.id DESC", args...)
	if err != nil {
		return nil, errors.Wrap(err, "query invoices")
	}
	defer rows.Close()

	var recs []entity.InvoiceRecord
	index := make(map[int64]int)
	var ids []int64
	for rows.Next() {
		var rec entity.InvoiceRecord
		if err := rows.Scan(&rec.ID, &rec.Code, &rec.CustomerID, &rec.SellerID, &rec.CreatedAt,
			&rec.CustomerName, &rec.SellerName); err != nil {
			return nil, errors.Wrap(err, "scan invoice")
		}
		index[rec.ID] = len(recs)
		ids = append(ids, rec.ID)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate invoices")
	}
	if len(ids) == 0 {
		return recs, nil
	}

	lineRows, err := r.db.QueryContext(ctx, recordLinesQuery, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "query invoice lines")
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var l entity.InvoiceLineRecord
		if err := lineRows.Scan(&l.ID, &l.InvoiceID, &l.ProductID, &l.Quantity, &l.UnitPriceAtSale, &l.ProductName); err != nil {
			return nil, errors.Wrap(err, "scan invoice line")
		}
		i := index[l.InvoiceID]
		recs[i].Lines = append(recs[i].Lines, l)
	}
	return recs, errors.Wrap(lineRows.Err(), "iterate invoice lines")
}

func (r *invoiceRepository) DeleteOrphans(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM invoices i
		 WHERE i.created_at < $1
		   AND NOT EXISTS (SELECT 1 FROM invoice_lines l WHERE l.invoice_id = i.id)`,
		before)
	if err != nil {
		return 0, errors.Wrap(err, "delete orphan invoices")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "delete orphan invoices")
}
