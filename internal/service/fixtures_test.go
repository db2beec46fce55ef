package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/repository"
	"github.com/libreria-tm/backend/internal/repository/memory"
)

var errStorageFault = errors.New("simulated storage fault")

// fixture is a memory store holding customer 1, seller 1 and product 5
// (price 10, stock 10), the data of the reference checkout scenarios.
type fixture struct {
	store *memory.Store
	repos repository.Repositories
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.PutCustomer(entity.Customer{ID: 1, FirstName: "Ana", LastName: "Rojas", CI: "4455667"})
	store.PutSeller(entity.Seller{ID: 1, AuthID: "auth-seller-1", FirstName: "Luis", LastName: "Vaca", Email: "luis@tm.bo"})
	store.PutProduct(entity.Product{ID: 5, Name: "Cuaderno A4", Category: "Papelería", SellPrice: decimal.NewFromInt(10), Stock: 10})
	return &fixture{store: store, repos: store.Repositories()}
}

func (f *fixture) product(t *testing.T, id int64) *entity.Product {
	t.Helper()
	p, err := f.repos.Products.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("product %d: %v", id, err)
	}
	return p
}

// faultyInvoices fails the selected operations.
type faultyInvoices struct {
	repository.InvoiceRepository
	failHeader bool
	failLines  bool
	failDelete bool
}

func (r *faultyInvoices) CreateHeader(ctx context.Context, inv *entity.Invoice) error {
	if r.failHeader {
		return errStorageFault
	}
	return r.InvoiceRepository.CreateHeader(ctx, inv)
}

func (r *faultyInvoices) InsertLines(ctx context.Context, lines []entity.InvoiceLine) error {
	if r.failLines {
		return errStorageFault
	}
	return r.InvoiceRepository.InsertLines(ctx, lines)
}

func (r *faultyInvoices) Delete(ctx context.Context, id int64) error {
	if r.failDelete {
		return errStorageFault
	}
	return r.InvoiceRepository.Delete(ctx, id)
}

// faultyProducts counts lookups and can reject decrements for one product.
type faultyProducts struct {
	repository.ProductRepository
	lookups       atomic.Int32
	failDecrement int64
}

func (r *faultyProducts) FindByID(ctx context.Context, id int64) (*entity.Product, error) {
	r.lookups.Add(1)
	return r.ProductRepository.FindByID(ctx, id)
}

func (r *faultyProducts) DecrementStock(ctx context.Context, id int64, qty int) error {
	if id == r.failDecrement {
		return errStorageFault
	}
	return r.ProductRepository.DecrementStock(ctx, id, qty)
}

// recordingPublisher keeps published events.
type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	topics []string
	keys   []string
	events []any
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return nil
}
