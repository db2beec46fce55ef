package memory

import (
	"context"
	"sort"
	"time"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/repository"
)

type invoiceRepository struct{ s *Store }

func (r *invoiceRepository) CreateHeader(_ context.Context, inv *entity.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.customers[inv.CustomerID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.s.sellers[inv.SellerID]; !ok {
		return repository.ErrNotFound
	}
	if inv.IdempotencyKey != "" {
		for _, existing := range r.s.invoices {
			if existing.IdempotencyKey == inv.IdempotencyKey {
				return repository.ErrDuplicateKey
			}
		}
	}
	inv.ID = r.s.id("invoices")
	inv.Code = invoiceCode(inv.ID)
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = r.s.now()
	}
	r.s.invoices[inv.ID] = *inv
	return nil
}

func (r *invoiceRepository) InsertLines(_ context.Context, lines []entity.InvoiceLine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	// validate the whole batch first so nothing is written on failure
	for _, l := range lines {
		if _, ok := r.s.invoices[l.InvoiceID]; !ok {
			return repository.ErrNotFound
		}
		if _, ok := r.s.products[l.ProductID]; !ok {
			return repository.ErrNotFound
		}
	}
	for _, l := range lines {
		l.ID = r.s.id("invoice_lines")
		r.s.lines[l.InvoiceID] = append(r.s.lines[l.InvoiceID], l)
	}
	return nil
}

func (r *invoiceRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.invoices[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.invoices, id)
	delete(r.s.lines, id)
	return nil
}

func (r *invoiceRepository) FindByIdempotencyKey(_ context.Context, key string) (*entity.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if key == "" {
		return nil, repository.ErrNotFound
	}
	for _, inv := range r.s.invoices {
		if inv.IdempotencyKey == key {
			found := inv
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *invoiceRepository) FindRecord(_ context.Context, id int64) (*entity.InvoiceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rec := r.record(inv)
	return &rec, nil
}

func (r *invoiceRepository) FindRecords(_ context.Context, f repository.InvoiceFilter) ([]entity.InvoiceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []entity.InvoiceRecord
	for _, inv := range r.s.invoices {
		if !f.From.IsZero() && inv.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && inv.CreatedAt.After(f.To) {
			continue
		}
		if f.CustomerID != 0 && inv.CustomerID != f.CustomerID {
			continue
		}
		if f.SellerID != 0 && inv.SellerID != f.SellerID {
			continue
		}
		out = append(out, r.record(inv))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *invoiceRepository) DeleteOrphans(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, inv := range r.s.invoices {
		if len(r.s.lines[id]) == 0 && inv.CreatedAt.Before(before) {
			delete(r.s.invoices, id)
			n++
		}
	}
	return n, nil
}

// must be called with mu held
func (r *invoiceRepository) record(inv entity.Invoice) entity.InvoiceRecord {
	rec := entity.InvoiceRecord{Invoice: inv}
	if c, ok := r.s.customers[inv.CustomerID]; ok {
		rec.CustomerName = c.FullName()
	}
	if v, ok := r.s.sellers[inv.SellerID]; ok {
		rec.SellerName = v.FullName()
	}
	for _, l := range r.s.lines[inv.ID] {
		lr := entity.InvoiceLineRecord{InvoiceLine: l}
		if p, ok := r.s.products[l.ProductID]; ok {
			lr.ProductName = p.Name
		}
		rec.Lines = append(rec.Lines, lr)
	}
	return rec
}
