package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/messaging"
	"github.com/libreria-tm/backend/internal/metrics"
	"github.com/libreria-tm/backend/internal/repository"
)

// StockAlertService consumes completed sales and raises LowStock events for
// products left at or below the threshold.
type StockAlertService struct {
	products  repository.ProductRepository
	publisher messaging.Publisher
	threshold int
	metrics   *metrics.SaleMetrics
	now       func() time.Time
}

func NewStockAlertService(
	products repository.ProductRepository,
	publisher messaging.Publisher,
	threshold int,
	m *metrics.SaleMetrics,
) *StockAlertService {
	return &StockAlertService{
		products:  products,
		publisher: publisher,
		threshold: threshold,
		metrics:   m,
		now:       time.Now,
	}
}

// Run consumes sales.completed until ctx is cancelled.
func (s *StockAlertService) Run(ctx context.Context, sub messaging.Subscriber, groupID string) {
	zap.L().Info("stock alert consumer started", zap.Int("threshold", s.threshold))
	sub.Consume(ctx, messaging.TopicSaleCompleted, groupID, s.Handle)
}

// Handle processes one SaleCompleted payload.
func (s *StockAlertService) Handle(ctx context.Context, payload []byte) error {
	var ev entity.SaleCompleted
	if err := json.Unmarshal(payload, &ev); err != nil {
		return pkgerrors.Wrap(err, "decode sale event")
	}

	seen := make(map[int64]bool, len(ev.Lines))
	for _, l := range ev.Lines {
		if seen[l.ProductID] {
			continue
		}
		seen[l.ProductID] = true

		p, err := s.products.FindByID(ctx, l.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return pkgerrors.Wrapf(err, "load product %d", l.ProductID)
		}
		if p.Stock > s.threshold {
			continue
		}

		zap.L().Warn("low stock",
			zap.Int64("product_id", p.ID),
			zap.String("name", p.Name),
			zap.Int("stock", p.Stock),
			zap.String("invoice_code", ev.Code))
		s.metrics.LowStock()

		alert := entity.LowStock{
			ProductID: p.ID,
			Name:      p.Name,
			Stock:     p.Stock,
			Threshold: s.threshold,
			At:        s.now(),
		}
		if err := s.publisher.PublishEvent(ctx, messaging.TopicLowStock, strconv.FormatInt(p.ID, 10), alert); err != nil {
			return pkgerrors.Wrap(err, "publish low stock")
		}
	}
	return nil
}
