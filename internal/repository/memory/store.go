// Package memory is an in-process implementation of the repository ports.
// It backs the test suites and the `memory` storage driver.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/repository"
)

// Store holds every table behind one lock, so each repository call is atomic.
type Store struct {
	mu sync.RWMutex

	nextID map[string]int64

	customers map[int64]entity.Customer
	sellers   map[int64]entity.Seller
	suppliers map[int64]entity.Supplier
	products  map[int64]entity.Product
	invoices  map[int64]entity.Invoice
	lines     map[int64][]entity.InvoiceLine // keyed by invoice id

	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		nextID:    make(map[string]int64),
		customers: make(map[int64]entity.Customer),
		sellers:   make(map[int64]entity.Seller),
		suppliers: make(map[int64]entity.Supplier),
		products:  make(map[int64]entity.Product),
		invoices:  make(map[int64]entity.Invoice),
		lines:     make(map[int64][]entity.InvoiceLine),
		now:       time.Now,
	}
}

// Repositories exposes the store through the repository ports.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Customers: &customerRepository{s},
		Sellers:   &sellerRepository{s},
		Suppliers: &supplierRepository{s},
		Products:  &productRepository{s},
		Invoices:  &invoiceRepository{s},
	}
}

// InvoiceCount reports how many invoice headers exist.
func (s *Store) InvoiceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.invoices)
}

// LineCount reports how many invoice lines exist across all invoices.
func (s *Store) LineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, ls := range s.lines {
		n += len(ls)
	}
	return n
}

// must be called with mu held for writing
func (s *Store) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func invoiceCode(id int64) string {
	return fmt.Sprintf("F-%06d", id)
}

// PutCustomer inserts or replaces c keeping its ID. Used for fixtures.
func (s *Store) PutCustomer(c entity.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
	s.bump("customers", c.ID)
}

// PutSeller inserts or replaces v keeping its ID.
func (s *Store) PutSeller(v entity.Seller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellers[v.ID] = v
	s.bump("sellers", v.ID)
}

// PutProduct inserts or replaces p keeping its ID.
func (s *Store) PutProduct(p entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	s.bump("products", p.ID)
}

func (s *Store) bump(table string, id int64) {
	if id > s.nextID[table] {
		s.nextID[table] = id
	}
}
