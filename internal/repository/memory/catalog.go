package memory

import (
	"context"
	"strings"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/repository"
)

type customerRepository struct{ s *Store }

func (r *customerRepository) FindByID(_ context.Context, id int64) (*entity.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.customers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *customerRepository) FindAll(_ context.Context) ([]entity.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]entity.Customer, 0, len(r.s.customers))
	for _, id := range sortedKeys(r.s.customers) {
		out = append(out, r.s.customers[id])
	}
	return out, nil
}

func (r *customerRepository) Search(_ context.Context, term string) ([]entity.Customer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []entity.Customer
	for _, id := range sortedKeys(r.s.customers) {
		c := r.s.customers[id]
		if containsFold(c.FirstName, term) || containsFold(c.LastName, term) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *customerRepository) Create(_ context.Context, c *entity.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.id("customers")
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	r.s.customers[c.ID] = *c
	return nil
}

func (r *customerRepository) Update(_ context.Context, c *entity.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.customers[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	c.CreatedAt = old.CreatedAt
	r.s.customers[c.ID] = *c
	return nil
}

func (r *customerRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.customers[id]; !ok {
		return repository.ErrNotFound
	}
	for _, inv := range r.s.invoices {
		if inv.CustomerID == id {
			return repository.ErrInUse
		}
	}
	delete(r.s.customers, id)
	return nil
}

type sellerRepository struct{ s *Store }

func (r *sellerRepository) FindByID(_ context.Context, id int64) (*entity.Seller, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, ok := r.s.sellers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r *sellerRepository) FindByAuthID(_ context.Context, authID string) (*entity.Seller, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, id := range sortedKeys(r.s.sellers) {
		if v := r.s.sellers[id]; v.AuthID != "" && v.AuthID == authID {
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *sellerRepository) FindAll(_ context.Context) ([]entity.Seller, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]entity.Seller, 0, len(r.s.sellers))
	for _, id := range sortedKeys(r.s.sellers) {
		out = append(out, r.s.sellers[id])
	}
	return out, nil
}

func (r *sellerRepository) Create(_ context.Context, v *entity.Seller) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.sellers {
		if (v.Email != "" && strings.EqualFold(existing.Email, v.Email)) ||
			(v.AuthID != "" && existing.AuthID == v.AuthID) {
			return repository.ErrDuplicateKey
		}
	}
	v.ID = r.s.id("sellers")
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.s.now()
	}
	r.s.sellers[v.ID] = *v
	return nil
}

type supplierRepository struct{ s *Store }

func (r *supplierRepository) FindByID(_ context.Context, id int64) (*entity.Supplier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, ok := r.s.suppliers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r *supplierRepository) FindAll(_ context.Context) ([]entity.Supplier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]entity.Supplier, 0, len(r.s.suppliers))
	for _, id := range sortedKeys(r.s.suppliers) {
		out = append(out, r.s.suppliers[id])
	}
	return out, nil
}

func (r *supplierRepository) SearchByContact(_ context.Context, name string) ([]entity.Supplier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []entity.Supplier
	for _, id := range sortedKeys(r.s.suppliers) {
		if v := r.s.suppliers[id]; containsFold(v.ContactName, name) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *supplierRepository) Create(_ context.Context, v *entity.Supplier) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v.ID = r.s.id("suppliers")
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.s.now()
	}
	r.s.suppliers[v.ID] = *v
	return nil
}

func (r *supplierRepository) Update(_ context.Context, v *entity.Supplier) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.suppliers[v.ID]
	if !ok {
		return repository.ErrNotFound
	}
	v.CreatedAt = old.CreatedAt
	r.s.suppliers[v.ID] = *v
	return nil
}

func (r *supplierRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.suppliers[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.suppliers, id)
	// mirrors ON DELETE SET NULL
	for pid, p := range r.s.products {
		if p.SupplierID != nil && *p.SupplierID == id {
			p.SupplierID = nil
			r.s.products[pid] = p
		}
	}
	return nil
}

type productRepository struct{ s *Store }

func (r *productRepository) FindByID(_ context.Context, id int64) (*entity.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *productRepository) FindAll(_ context.Context) ([]entity.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]entity.Product, 0, len(r.s.products))
	for _, id := range sortedKeys(r.s.products) {
		out = append(out, r.s.products[id])
	}
	return out, nil
}

func (r *productRepository) FindByCategory(_ context.Context, category string) ([]entity.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []entity.Product
	for _, id := range sortedKeys(r.s.products) {
		if p := r.s.products[id]; strings.EqualFold(p.Category, category) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *productRepository) Count(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.products), nil
}

func (r *productRepository) Create(_ context.Context, p *entity.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = r.s.id("products")
	now := r.s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.s.products[p.ID] = *p
	return nil
}

func (r *productRepository) Update(_ context.Context, p *entity.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	old, ok := r.s.products[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = r.s.now()
	r.s.products[p.ID] = *p
	return nil
}

func (r *productRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return repository.ErrNotFound
	}
	for _, ls := range r.s.lines {
		for _, l := range ls {
			if l.ProductID == id {
				return repository.ErrInUse
			}
		}
	}
	delete(r.s.products, id)
	return nil
}

func (r *productRepository) DecrementStock(_ context.Context, id int64, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Stock < qty {
		return repository.ErrStockConflict
	}
	p.Stock -= qty
	r.s.products[id] = p
	return nil
}

func (r *productRepository) IncrementStock(_ context.Context, id int64, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Stock += qty
	r.s.products[id] = p
	return nil
}
