package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/idempotency"
	"github.com/libreria-tm/backend/internal/messaging"
	"github.com/libreria-tm/backend/internal/metrics"
	"github.com/libreria-tm/backend/internal/repository"
)

func saleOf(lines ...entity.SaleLineItem) entity.SaleRequest {
	return entity.SaleRequest{CustomerID: 1, SellerID: 1, LineItems: lines}
}

func line(productID int64, qty int) entity.SaleLineItem {
	return entity.SaleLineItem{ProductID: productID, Quantity: qty}
}

func TestExecuteSaleCompletes(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}
	svc := NewSaleService(f.repos, nil, pub, nil, SaleOptions{})

	res, err := svc.ExecuteSale(context.Background(), saleOf(line(5, 2)))
	require.NoError(t, err)

	assert.True(t, res.Total.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 8, f.product(t, 5).Stock)
	assert.Equal(t, "F-000001", res.Code)
	assert.Equal(t, "Ana Rojas", res.Customer.Name)
	assert.Equal(t, "Luis Vaca", res.Seller.Name)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, "Cuaderno A4", res.Lines[0].ProductName)
	assert.True(t, res.Lines[0].UnitPriceAtSale.Equal(decimal.NewFromInt(10)))
	assert.False(t, res.Replayed)

	require.Len(t, pub.events, 1)
	assert.Equal(t, messaging.TopicSaleCompleted, pub.topics[0])
	assert.Equal(t, res.Code, pub.keys[0])
	ev := pub.events[0].(entity.SaleCompleted)
	assert.Equal(t, res.InvoiceID, ev.InvoiceID)
	assert.True(t, ev.Total.Equal(res.Total))
}

func TestExecuteSaleInsufficientStock(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, 5)
	p.Stock = 1
	require.NoError(t, f.repos.Products.Update(context.Background(), p))
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{})

	_, err := svc.ExecuteSale(context.Background(), saleOf(line(5, 2)))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(5), stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, 0, f.store.InvoiceCount())
	assert.Equal(t, 1, f.product(t, 5).Stock)
}

func TestExecuteSaleUnknownCustomerStopsBeforeProducts(t *testing.T) {
	f := newFixture(t)
	products := &faultyProducts{ProductRepository: f.repos.Products}
	f.repos.Products = products
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{})

	req := saleOf(line(5, 2))
	req.CustomerID = 999
	_, err := svc.ExecuteSale(context.Background(), req)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "customer", nf.Entity)
	assert.Equal(t, int64(999), nf.ID)
	assert.Zero(t, products.lookups.Load())
}

func TestExecuteSaleUnknownSeller(t *testing.T) {
	f := newFixture(t)
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{})

	req := saleOf(line(5, 2))
	req.SellerID = 7
	_, err := svc.ExecuteSale(context.Background(), req)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "seller", nf.Entity)
}

func TestExecuteSaleUnknownProductLeavesNoSideEffects(t *testing.T) {
	f := newFixture(t)
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{})

	_, err := svc.ExecuteSale(context.Background(), saleOf(line(5, 2), line(42, 1)))

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "product", nf.Entity)
	assert.Equal(t, int64(42), nf.ID)
	assert.Equal(t, 0, f.store.InvoiceCount())
	assert.Equal(t, 10, f.product(t, 5).Stock)
}

func TestExecuteSaleLineWriteFailureDeletesHeader(t *testing.T) {
	f := newFixture(t)
	_, err := NewSaleService(f.repos, nil, nil, nil, SaleOptions{}).ExecuteSale(context.Background(), saleOf(line(5, 1)))
	require.NoError(t, err)
	before := f.store.InvoiceCount()

	f.repos.Invoices = &faultyInvoices{InvoiceRepository: f.repos.Invoices, failLines: true}
	reg := prometheus.NewRegistry()
	m := metrics.NewSaleMetrics(reg)
	svc := NewSaleService(f.repos, nil, nil, m, SaleOptions{})

	_, err = svc.ExecuteSale(context.Background(), saleOf(line(5, 2)))

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "lines", pe.Step)
	assert.ErrorIs(t, err, errStorageFault)
	assert.Equal(t, before, f.store.InvoiceCount())
	assert.Equal(t, 9, f.product(t, 5).Stock)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("failed", string(StateWritingLines))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("ok")))
}

func TestExecuteSaleFailedCompensationKeepsOriginalError(t *testing.T) {
	f := newFixture(t)
	f.repos.Invoices = &faultyInvoices{InvoiceRepository: f.repos.Invoices, failLines: true, failDelete: true}
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{})

	_, err := svc.ExecuteSale(context.Background(), saleOf(line(5, 2)))

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "lines", pe.Step)
	assert.Equal(t, 1, f.store.InvoiceCount(), "header stays for the orphan sweeper")
}

func TestExecuteSaleHeaderFailure(t *testing.T) {
	f := newFixture(t)
	f.repos.Invoices = &faultyInvoices{InvoiceRepository: f.repos.Invoices, failHeader: true}
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{})

	_, err := svc.ExecuteSale(context.Background(), saleOf(line(5, 2)))

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "header", pe.Step)
	assert.Equal(t, 10, f.product(t, 5).Stock)
}

func TestExecuteSaleStockFailureCompensates(t *testing.T) {
	f := newFixture(t)
	f.store.PutProduct(entity.Product{ID: 6, Name: "Lápiz", SellPrice: decimal.RequireFromString("2.50"), Stock: 4})
	f.repos.Products = &faultyProducts{ProductRepository: f.repos.Products, failDecrement: 6}
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{})

	_, err := svc.ExecuteSale(context.Background(), saleOf(line(5, 3), line(6, 1)))

	var se *StockUpdateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(6), se.ProductID)
	assert.Equal(t, 10, f.product(t, 5).Stock, "first decrement is restored")
	assert.Equal(t, 0, f.store.InvoiceCount())
	assert.Equal(t, 0, f.store.LineCount())
}

func TestExecuteSaleStockFailureKeepsInvoiceWhenConfigured(t *testing.T) {
	f := newFixture(t)
	f.store.PutProduct(entity.Product{ID: 6, Name: "Lápiz", SellPrice: decimal.RequireFromString("2.50"), Stock: 4})
	f.repos.Products = &faultyProducts{ProductRepository: f.repos.Products, failDecrement: 6}
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{KeepInvoiceOnStockFailure: true})

	_, err := svc.ExecuteSale(context.Background(), saleOf(line(5, 3), line(6, 1)))

	var se *StockUpdateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 7, f.product(t, 5).Stock)
	assert.Equal(t, 1, f.store.InvoiceCount())
	assert.Equal(t, 2, f.store.LineCount())
}

func TestExecuteSalePriceIsFrozen(t *testing.T) {
	f := newFixture(t)
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{})
	ctx := context.Background()

	res, err := svc.ExecuteSale(ctx, saleOf(line(5, 2)))
	require.NoError(t, err)

	p := f.product(t, 5)
	p.SellPrice = decimal.NewFromInt(99)
	require.NoError(t, f.repos.Products.Update(ctx, p))

	rec, err := f.repos.Invoices.FindRecord(ctx, res.InvoiceID)
	require.NoError(t, err)
	require.Len(t, rec.Lines, 1)
	assert.True(t, rec.Lines[0].UnitPriceAtSale.Equal(decimal.NewFromInt(10)))
	assert.True(t, rec.Total().Equal(decimal.NewFromInt(20)))
}

func TestExecuteSaleTotalIsSumOfSubtotals(t *testing.T) {
	f := newFixture(t)
	f.store.PutProduct(entity.Product{ID: 6, Name: "Lápiz", SellPrice: decimal.RequireFromString("2.35"), Stock: 40})
	f.store.PutProduct(entity.Product{ID: 7, Name: "Regla", SellPrice: decimal.RequireFromString("7.10"), Stock: 40})
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{})

	res, err := svc.ExecuteSale(context.Background(), saleOf(line(6, 3), line(7, 2), line(6, 1)))
	require.NoError(t, err)

	want := decimal.Zero
	for _, l := range res.Lines {
		assert.True(t, l.Subtotal.Equal(l.UnitPriceAtSale.Mul(decimal.NewFromInt(int64(l.Quantity)))))
		want = want.Add(l.Subtotal)
	}
	assert.True(t, res.Total.Equal(want))
	assert.Equal(t, "23.60", res.Total.StringFixed(2))
	assert.Equal(t, 36, f.product(t, 6).Stock)
}

func TestExecuteSaleRepeatedProductUsesSummedQuantity(t *testing.T) {
	f := newFixture(t)
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{})

	_, err := svc.ExecuteSale(context.Background(), saleOf(line(5, 6), line(5, 6)))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 12, stockErr.Requested)
	assert.Equal(t, 0, f.store.InvoiceCount())
}

func TestExecuteSaleRepeatedProductHugeQuantityIsRejected(t *testing.T) {
	for _, keep := range []bool{false, true} {
		f := newFixture(t)
		svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{KeepInvoiceOnStockFailure: keep})

		_, err := svc.ExecuteSale(context.Background(), saleOf(line(5, 2), line(5, math.MaxInt)))

		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr, "keep invoice: %v", keep)
		assert.Equal(t, 10, stockErr.Available)
		assert.Equal(t, math.MaxInt, stockErr.Requested)
		assert.Equal(t, 0, f.store.InvoiceCount())
		assert.Equal(t, 10, f.product(t, 5).Stock)
	}
}

func TestExecuteSaleValidationTouchesNoStorage(t *testing.T) {
	// nil repositories panic on any call
	svc := NewSaleService(repository.Repositories{}, nil, nil, nil, SaleOptions{})

	tests := []struct {
		name string
		req  entity.SaleRequest
		msg  string
	}{
		{"no lines", entity.SaleRequest{CustomerID: 1, SellerID: 1}, "line_items: at least one line item is required"},
		{"zero quantity", saleOf(line(5, 1), line(5, 0)), "line_items: line 2: quantity must be greater than 0"},
		{"negative quantity", saleOf(line(5, -3)), "line_items: line 1: quantity must be greater than 0"},
		{"missing customer", entity.SaleRequest{SellerID: 1, LineItems: []entity.SaleLineItem{line(5, 1)}}, "customer_id: must be greater than 0"},
		{"missing seller", entity.SaleRequest{CustomerID: 1, LineItems: []entity.SaleLineItem{line(5, 1)}}, "seller_id: must be greater than 0"},
		{"missing product", saleOf(line(0, 1)), "line_items: line 1: product_id must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			assert.NotPanics(t, func() {
				_, err = svc.ExecuteSale(context.Background(), tt.req)
			})
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.EqualError(t, err, tt.msg)
		})
	}
}

func TestExecuteSaleConcurrentStockFloor(t *testing.T) {
	f := newFixture(t)
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{})

	const attempts = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ExecuteSale(context.Background(), saleOf(line(5, 3)))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			var ise *InsufficientStockError
			var sue *StockUpdateError
			if !errors.As(err, &ise) && !errors.As(err, &sue) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	stock := f.product(t, 5).Stock
	assert.GreaterOrEqual(t, stock, 0)
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 10-3*succeeded, stock)
	assert.Equal(t, succeeded, f.store.InvoiceCount())
}

func TestExecuteSaleIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}
	svc := NewSaleService(f.repos, idempotency.NewLocalLocker(), pub, nil, SaleOptions{})

	req := saleOf(line(5, 2))
	req.IdempotencyKey = "checkout-123"

	first, err := svc.ExecuteSale(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.ExecuteSale(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.InvoiceID, second.InvoiceID)
	assert.Equal(t, first.Code, second.Code)
	assert.True(t, first.Total.Equal(second.Total))
	assert.Equal(t, "Ana Rojas", second.Customer.Name)
	assert.Equal(t, 8, f.product(t, 5).Stock)
	assert.Equal(t, 1, f.store.InvoiceCount())
	assert.Len(t, pub.events, 1)
}

func TestExecuteSaleKeyReusedForDifferentSale(t *testing.T) {
	f := newFixture(t)
	f.store.PutProduct(entity.Product{ID: 6, Name: "Lápiz", SellPrice: decimal.RequireFromString("2.50"), Stock: 4})
	svc := NewSaleService(f.repos, idempotency.NewLocalLocker(), nil, nil, SaleOptions{})
	ctx := context.Background()

	req := saleOf(line(5, 2), line(6, 1))
	req.IdempotencyKey = "checkout-9"
	first, err := svc.ExecuteSale(ctx, req)
	require.NoError(t, err)

	reordered := saleOf(line(6, 1), line(5, 1), line(5, 1))
	reordered.IdempotencyKey = "checkout-9"
	again, err := svc.ExecuteSale(ctx, reordered)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.InvoiceID, again.InvoiceID)

	for name, other := range map[string]entity.SaleRequest{
		"quantity": saleOf(line(5, 3), line(6, 1)),
		"product":  saleOf(line(5, 2)),
		"customer": {CustomerID: 2, SellerID: 1, LineItems: req.LineItems},
	} {
		other.IdempotencyKey = "checkout-9"
		_, err := svc.ExecuteSale(ctx, other)
		var reuse *KeyReuseError
		require.ErrorAs(t, err, &reuse, name)
		assert.Equal(t, first.InvoiceID, reuse.InvoiceID, name)
	}

	assert.Equal(t, 1, f.store.InvoiceCount())
	assert.Equal(t, 8, f.product(t, 5).Stock)
	assert.Equal(t, 3, f.product(t, 6).Stock)
}

func TestExecuteSaleKeyOnUnfinishedInvoiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repos.Invoices.CreateHeader(ctx, &entity.Invoice{CustomerID: 1, SellerID: 1, IdempotencyKey: "half-done"}))
	svc := NewSaleService(f.repos, nil, nil, nil, SaleOptions{})

	req := saleOf(line(5, 2))
	req.IdempotencyKey = "half-done"
	_, err := svc.ExecuteSale(ctx, req)

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 10, f.product(t, 5).Stock)
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, idempotency.ErrLocked
}

type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, errors.New("redis: connection refused")
}

func TestExecuteSaleIdempotencyConflict(t *testing.T) {
	f := newFixture(t)
	svc := NewSaleService(f.repos, busyLocker{}, nil, nil, SaleOptions{})

	req := saleOf(line(5, 2))
	req.IdempotencyKey = "in-flight"
	_, err := svc.ExecuteSale(context.Background(), req)

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "in-flight", ce.Key)
	assert.Equal(t, 10, f.product(t, 5).Stock)
}

func TestExecuteSaleProceedsWhenLockerUnavailable(t *testing.T) {
	f := newFixture(t)
	svc := NewSaleService(f.repos, brokenLocker{}, nil, nil, SaleOptions{})

	req := saleOf(line(5, 2))
	req.IdempotencyKey = "k"
	_, err := svc.ExecuteSale(context.Background(), req)
	require.NoError(t, err)
}

func TestExecuteSalePublishFailureDoesNotFailSale(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	m := metrics.NewSaleMetrics(prometheus.NewRegistry())
	svc := NewSaleService(f.repos, nil, pub, m, SaleOptions{})

	res, err := svc.ExecuteSale(context.Background(), saleOf(line(5, 2)))
	require.NoError(t, err)
	assert.NotZero(t, res.InvoiceID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishFailures))
}
