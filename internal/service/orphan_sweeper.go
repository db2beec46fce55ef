package service

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/libreria-tm/backend/internal/repository"
)

// OrphanSweeper deletes invoice headers left without lines when a
// compensation could not complete.
type OrphanSweeper struct {
	invoices repository.InvoiceRepository
	grace    time.Duration
	now      func() time.Time
}

// NewOrphanSweeper ignores headers younger than grace, which may belong to
// a sale still writing its lines.
func NewOrphanSweeper(invoices repository.InvoiceRepository, grace time.Duration) *OrphanSweeper {
	return &OrphanSweeper{invoices: invoices, grace: grace, now: time.Now}
}

func (s *OrphanSweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.invoices.DeleteOrphans(ctx, s.now().Add(-s.grace))
	if err != nil {
		return 0, pkgerrors.Wrap(err, "delete orphan invoices")
	}
	if n > 0 {
		zap.L().Warn("orphan invoice headers removed", zap.Int64("count", n))
	}
	return n, nil
}

// Register schedules Sweep on c.
func (s *OrphanSweeper) Register(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			zap.L().Error("orphan sweep failed", zap.Error(err))
		}
	})
}
