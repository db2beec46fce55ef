package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/idempotency"
	"github.com/libreria-tm/backend/internal/messaging"
	"github.com/libreria-tm/backend/internal/metrics"
	"github.com/libreria-tm/backend/internal/repository"
	"github.com/libreria-tm/backend/internal/saga"
)

// SaleState is a step of the checkout workflow.
type SaleState string

const (
	StateValidating          SaleState = "Validating"
	StateResolvingReferences SaleState = "ResolvingReferences"
	StatePricingLines        SaleState = "PricingLines"
	StateWritingHeader       SaleState = "WritingHeader"
	StateWritingLines        SaleState = "WritingLines"
	StateAdjustingStock      SaleState = "AdjustingStock"
	StateCompensating        SaleState = "Compensating"
	StateDeletingHeader      SaleState = "DeletingHeader"
	StateCompleted           SaleState = "Completed"
	StateFailed              SaleState = "Failed"
)

const publishTimeout = 5 * time.Second

// SaleOptions tunes the checkout workflow.
type SaleOptions struct {
	// LockTTL bounds how long an idempotency key stays locked.
	LockTTL time.Duration
	// KeepInvoiceOnStockFailure skips compensation when a stock decrement
	// fails after the lines are written.
	KeepInvoiceOnStockFailure bool
}

// SaleService runs the checkout workflow: validate, price, write the
// invoice, then decrement stock, compensating in reverse on failure.
type SaleService struct {
	repos     repository.Repositories
	locker    idempotency.Locker
	publisher messaging.Publisher
	metrics   *metrics.SaleMetrics
	opts      SaleOptions
	now       func() time.Time
}

func NewSaleService(
	repos repository.Repositories,
	locker idempotency.Locker,
	publisher messaging.Publisher,
	m *metrics.SaleMetrics,
	opts SaleOptions,
) *SaleService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if publisher == nil {
		publisher = messaging.NopBroker{}
	}
	return &SaleService{
		repos:     repos,
		locker:    locker,
		publisher: publisher,
		metrics:   m,
		opts:      opts,
		now:       time.Now,
	}
}

// saleRun tracks one attempt through the state machine.
type saleRun struct {
	state    SaleState
	failedAt SaleState
	replayed bool
}

func (r *saleRun) enter(s SaleState) { r.state = s }

// ExecuteSale records a sale. A non-empty req.IdempotencyKey makes repeated
// submissions return the first result with Replayed set.
func (s *SaleService) ExecuteSale(ctx context.Context, req entity.SaleRequest) (result *entity.SaleResult, err error) {
	started := s.now()
	run := &saleRun{state: StateValidating}
	defer func() { s.finish(run, req, err, started) }()

	if err := ValidateSale(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if res, err := s.replay(ctx, req); res != nil || err != nil {
			run.replayed = res != nil
			return res, err
		}
		if s.locker != nil {
			release, err := s.locker.Acquire(ctx, req.IdempotencyKey, s.opts.LockTTL)
			switch {
			case errors.Is(err, idempotency.ErrLocked):
				return nil, &ConflictError{Key: req.IdempotencyKey}
			case err != nil:
				zap.L().Warn("idempotency lock unavailable, relying on unique key",
					zap.String("idempotency_key", req.IdempotencyKey), zap.Error(err))
			default:
				defer release()
			}
		}
	}

	run.enter(StateResolvingReferences)
	customer, err := s.repos.Customers.FindByID(ctx, req.CustomerID)
	if err != nil {
		return nil, lookupError("customer", req.CustomerID, err)
	}
	seller, err := s.repos.Sellers.FindByID(ctx, req.SellerID)
	if err != nil {
		return nil, lookupError("seller", req.SellerID, err)
	}

	run.enter(StatePricingLines)
	priced, err := s.priceLines(ctx, req.LineItems)
	if err != nil {
		return nil, err
	}

	run.enter(StateWritingHeader)
	sg := saga.New("sale")
	invoice := &entity.Invoice{
		CustomerID:     customer.ID,
		SellerID:       seller.ID,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      s.now(),
	}
	err = sg.Run(ctx, "header",
		func(ctx context.Context) error { return s.repos.Invoices.CreateHeader(ctx, invoice) },
		func(ctx context.Context) error {
			run.enter(StateDeletingHeader)
			return s.repos.Invoices.Delete(ctx, invoice.ID)
		})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) && req.IdempotencyKey != "" {
			res, rerr := s.replay(ctx, req)
			if res != nil {
				run.replayed = true
				return res, nil
			}
			if rerr != nil {
				return nil, rerr
			}
		}
		return nil, &PersistenceError{Step: "header", Err: err}
	}

	run.enter(StateWritingLines)
	lines := make([]entity.InvoiceLine, 0, len(priced))
	for _, p := range priced {
		lines = append(lines, entity.InvoiceLine{
			InvoiceID:       invoice.ID,
			ProductID:       p.ProductID,
			Quantity:        p.Quantity,
			UnitPriceAtSale: p.UnitPriceAtSale,
		})
	}
	if err := s.repos.Invoices.InsertLines(ctx, lines); err != nil {
		s.compensate(ctx, run, sg, invoice.ID)
		return nil, &PersistenceError{Step: "lines", Err: err}
	}

	run.enter(StateAdjustingStock)
	for _, l := range lines {
		productID, qty := l.ProductID, l.Quantity
		err := sg.Run(ctx, fmt.Sprintf("stock:%d", productID),
			func(ctx context.Context) error { return s.repos.Products.DecrementStock(ctx, productID, qty) },
			func(ctx context.Context) error { return s.repos.Products.IncrementStock(ctx, productID, qty) })
		if err != nil {
			if s.opts.KeepInvoiceOnStockFailure {
				zap.L().Warn("stock decrement failed, invoice kept",
					zap.Int64("invoice_id", invoice.ID),
					zap.Int64("product_id", productID),
					zap.Error(err))
			} else {
				s.compensate(ctx, run, sg, invoice.ID)
			}
			return nil, &StockUpdateError{ProductID: productID, Err: err}
		}
	}

	run.enter(StateCompleted)
	result = &entity.SaleResult{
		InvoiceID: invoice.ID,
		Code:      invoice.Code,
		CreatedAt: invoice.CreatedAt,
		Customer:  entity.PartyRef{ID: customer.ID, Name: customer.FullName()},
		Seller:    entity.PartyRef{ID: seller.ID, Name: seller.FullName()},
		Lines:     priced,
		Total:     sumSubtotals(priced),
	}
	s.publishCompleted(ctx, result)
	return result, nil
}

// ValidateSale checks the request shape without touching storage.
func ValidateSale(req entity.SaleRequest) error {
	if req.CustomerID <= 0 {
		return &ValidationError{Field: "customer_id", Message: "must be greater than 0"}
	}
	if req.SellerID <= 0 {
		return &ValidationError{Field: "seller_id", Message: "must be greater than 0"}
	}
	if len(req.LineItems) == 0 {
		return &ValidationError{Field: "line_items", Message: "at least one line item is required"}
	}
	for i, item := range req.LineItems {
		if item.ProductID <= 0 {
			return &ValidationError{Field: "line_items", Message: fmt.Sprintf("line %d: product_id must be greater than 0", i+1)}
		}
		if item.Quantity <= 0 {
			return &ValidationError{Field: "line_items", Message: fmt.Sprintf("line %d: quantity must be greater than 0", i+1)}
		}
	}
	return nil
}

// priceLines resolves every line before anything is written. A product
// repeated across lines is checked against the summed quantity.
func (s *SaleService) priceLines(ctx context.Context, items []entity.SaleLineItem) ([]entity.PricedLine, error) {
	products := make(map[int64]*entity.Product, len(items))
	requested := make(map[int64]int, len(items))
	priced := make([]entity.PricedLine, 0, len(items))

	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			found, err := s.repos.Products.FindByID(ctx, item.ProductID)
			if err != nil {
				return nil, lookupError("product", item.ProductID, err)
			}
			p = found
			products[item.ProductID] = p
		}

		// Both sides stay within [0, stock], so the sum is only formed once it fits.
		if item.Quantity > p.Stock-requested[item.ProductID] {
			return nil, &InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   addCapped(requested[item.ProductID], item.Quantity),
			}
		}
		requested[item.ProductID] += item.Quantity

		priced = append(priced, entity.PricedLine{
			ProductID:       p.ID,
			ProductName:     p.Name,
			Quantity:        item.Quantity,
			UnitPriceAtSale: p.SellPrice,
			Subtotal:        p.SellPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}
	return priced, nil
}

func (s *SaleService) compensate(ctx context.Context, run *saleRun, sg *saga.Saga, invoiceID int64) {
	run.failedAt = run.state
	run.enter(StateCompensating)
	errs := sg.Abort(ctx)
	if len(errs) > 0 {
		zap.L().Error("sale compensation incomplete, orphan sweeper will retry header cleanup",
			zap.Int64("invoice_id", invoiceID),
			zap.Errors("errs", errs))
	}
	s.metrics.Compensated(len(errs) == 0)
}

// replay returns the stored result for req's key, or nil when no invoice
// carries it. A key reused with a different sale is rejected.
func (s *SaleService) replay(ctx context.Context, req entity.SaleRequest) (*entity.SaleResult, error) {
	key := req.IdempotencyKey
	invoice, err := s.repos.Invoices.FindByIdempotencyKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Step: "lookup idempotency key", Err: err}
	}
	rec, err := s.repos.Invoices.FindRecord(ctx, invoice.ID)
	if err != nil {
		return nil, &PersistenceError{Step: "load replayed invoice", Err: err}
	}
	if len(rec.Lines) == 0 {
		// header without lines: the first attempt is still writing or was abandoned
		return nil, &ConflictError{Key: key}
	}
	if !sameSale(req, rec) {
		return nil, &KeyReuseError{Key: key, InvoiceID: rec.ID}
	}
	zap.L().Info("replaying sale for idempotency key",
		zap.String("idempotency_key", key), zap.Int64("invoice_id", rec.ID))
	return &entity.SaleResult{
		InvoiceID: rec.ID,
		Code:      rec.Code,
		CreatedAt: rec.CreatedAt,
		Customer:  entity.PartyRef{ID: rec.CustomerID, Name: rec.CustomerName},
		Seller:    entity.PartyRef{ID: rec.SellerID, Name: rec.SellerName},
		Lines:     rec.PricedLines(),
		Total:     rec.Total(),
		Replayed:  true,
	}, nil
}

func (s *SaleService) publishCompleted(ctx context.Context, res *entity.SaleResult) {
	ev := entity.SaleCompleted{
		InvoiceID:   res.InvoiceID,
		Code:        res.Code,
		CustomerID:  res.Customer.ID,
		SellerID:    res.Seller.ID,
		Total:       res.Total,
		CompletedAt: res.CreatedAt,
	}
	for _, l := range res.Lines {
		ev.Lines = append(ev.Lines, entity.SaleCompletedLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPriceAtSale,
		})
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishEvent(ctx, messaging.TopicSaleCompleted, res.Code, ev); err != nil {
		zap.L().Error("failed to publish sale event",
			zap.Int64("invoice_id", res.InvoiceID), zap.Error(err))
		s.metrics.PublishFailed()
	}
}

func (s *SaleService) finish(run *saleRun, req entity.SaleRequest, err error, started time.Time) {
	if err == nil {
		outcome := "completed"
		if run.replayed {
			outcome = "replayed"
		}
		s.metrics.Observe(outcome, string(run.state), started)
		return
	}
	if run.failedAt == "" {
		run.failedAt = run.state
	}
	run.enter(StateFailed)
	s.metrics.Observe("failed", string(run.failedAt), started)

	fields := []zap.Field{
		zap.String("state", string(run.failedAt)),
		zap.Int64("customer_id", req.CustomerID),
		zap.Int64("seller_id", req.SellerID),
		zap.Error(err),
	}
	var pe *PersistenceError
	var se *StockUpdateError
	if errors.As(err, &pe) || errors.As(err, &se) {
		zap.L().Error("sale failed", fields...)
		return
	}
	zap.L().Info("sale rejected", fields...)
}

// sameSale reports whether rec was written for req: same parties and the same
// quantity per product, regardless of line order.
func sameSale(req entity.SaleRequest, rec *entity.InvoiceRecord) bool {
	if req.CustomerID != rec.CustomerID || req.SellerID != rec.SellerID {
		return false
	}
	want := make(map[int64]int, len(req.LineItems))
	for _, item := range req.LineItems {
		want[item.ProductID] = addCapped(want[item.ProductID], item.Quantity)
	}
	got := make(map[int64]int, len(rec.Lines))
	for _, l := range rec.Lines {
		got[l.ProductID] += l.Quantity
	}
	if len(want) != len(got) {
		return false
	}
	for id, qty := range want {
		if got[id] != qty {
			return false
		}
	}
	return true
}

func lookupError(entityName string, id int64, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Entity: entityName, ID: id}
	}
	return &PersistenceError{Step: "lookup " + entityName, Err: err}
}

// addCapped adds two non-negative ints, saturating at math.MaxInt.
func addCapped(a, b int) int {
	if b > math.MaxInt-a {
		return math.MaxInt
	}
	return a + b
}

func sumSubtotals(lines []entity.PricedLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal)
	}
	return total
}
