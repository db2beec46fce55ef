package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/libreria-tm/backend/internal/entity"
	"github.com/libreria-tm/backend/internal/repository"
)

const dayLayout = "2006-01-02"

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// ReportService builds read-only projections over invoices. Every amount is
// derived from the frozen unit prices of the invoice lines.
type ReportService struct {
	invoices repository.InvoiceRepository
	loc      *time.Location
	now      func() time.Time
}

// NewReportService computes day boundaries in loc (UTC when nil).
func NewReportService(invoices repository.InvoiceRepository, loc *time.Location) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{invoices: invoices, loc: loc, now: time.Now}
}

func (s *ReportService) ListInvoices(ctx context.Context) ([]entity.InvoiceSummary, error) {
	recs, err := s.invoices.FindRecords(ctx, repository.InvoiceFilter{})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list invoices")
	}
	return summariesOf(recs), nil
}

func (s *ReportService) InvoiceDocument(ctx context.Context, id int64) (*entity.InvoiceDocument, error) {
	rec, err := s.invoices.FindRecord(ctx, id)
	if err != nil {
		return nil, storeError("invoice", id, err)
	}
	doc := documentOf(*rec)
	return &doc, nil
}

// Today reports the sales of the current day.
func (s *ReportService) Today(ctx context.Context) (*entity.TodaySales, error) {
	start := s.startOfDay(s.now())
	recs, err := s.window(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return &entity.TodaySales{
		Date:     s.now().In(s.loc),
		Stats:    statsOf(recs),
		Invoices: summariesOf(recs),
	}, nil
}

// LastDays returns one bucket per day for the n days ending today, oldest
// first. Days without sales are included with zero totals.
func (s *ReportService) LastDays(ctx context.Context, n int) ([]entity.DailySales, error) {
	if n <= 0 {
		return nil, &ValidationError{Field: "days", Message: "must be greater than 0"}
	}
	today := s.startOfDay(s.now())
	from := today.AddDate(0, 0, -(n - 1))
	recs, err := s.window(ctx, from, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	buckets := make([]entity.DailySales, n)
	index := make(map[string]int, n)
	for i := 0; i < n; i++ {
		day := from.AddDate(0, 0, i).Format(dayLayout)
		buckets[i] = entity.DailySales{Date: day, Amount: decimal.Zero}
		index[day] = i
	}
	for _, r := range recs {
		i, ok := index[r.CreatedAt.In(s.loc).Format(dayLayout)]
		if !ok {
			continue
		}
		buckets[i].Count++
		buckets[i].Amount = buckets[i].Amount.Add(r.Total())
	}
	return buckets, nil
}

func (s *ReportService) CurrentMonth(ctx context.Context) (*entity.MonthSales, error) {
	now := s.now().In(s.loc)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	recs, err := s.window(ctx, start, start.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}
	return &entity.MonthSales{
		Month: fmt.Sprintf("%s de %d", monthNames[now.Month()-1], now.Year()),
		Stats: statsOf(recs),
	}, nil
}

// TodayVsYesterday compares the sale counts and amounts of both days. The
// percentage is the change in count, with one decimal.
func (s *ReportService) TodayVsYesterday(ctx context.Context) (*entity.SalesComparison, error) {
	today := s.startOfDay(s.now())
	yesterday := today.AddDate(0, 0, -1)
	recs, err := s.window(ctx, yesterday, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	cmp := &entity.SalesComparison{
		Today:     entity.DayTotals{Amount: decimal.Zero},
		Yesterday: entity.DayTotals{Amount: decimal.Zero},
	}
	for _, r := range recs {
		bucket := &cmp.Yesterday
		if !r.CreatedAt.Before(today) {
			bucket = &cmp.Today
		}
		bucket.Count++
		bucket.Amount = bucket.Amount.Add(r.Total())
	}

	cmp.CountDiff = cmp.Today.Count - cmp.Yesterday.Count
	cmp.AmountDiff = cmp.Today.Amount.Sub(cmp.Yesterday.Amount)
	cmp.PercentChange = "0%"
	if cmp.Yesterday.Count > 0 {
		pct := decimal.NewFromInt(int64(cmp.CountDiff)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(cmp.Yesterday.Count)))
		cmp.PercentChange = pct.StringFixed(1) + "%"
	}
	switch {
	case cmp.CountDiff > 0:
		cmp.Trend = "up"
	case cmp.CountDiff < 0:
		cmp.Trend = "down"
	default:
		cmp.Trend = "flat"
	}
	return cmp, nil
}

// invoiceRow is the CSV shape of an invoice summary.
type invoiceRow struct {
	Code     string `csv:"code"`
	Date     string `csv:"date"`
	Customer string `csv:"customer"`
	Seller   string `csv:"seller"`
	Lines    int    `csv:"lines"`
	Total    string `csv:"total"`
}

// ExportInvoicesCSV writes the invoice listing as CSV, newest first.
func (s *ReportService) ExportInvoicesCSV(ctx context.Context, w io.Writer) error {
	recs, err := s.invoices.FindRecords(ctx, repository.InvoiceFilter{})
	if err != nil {
		return pkgerrors.Wrap(err, "list invoices")
	}
	rows := make([]*invoiceRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, &invoiceRow{
			Code:     r.Code,
			Date:     r.CreatedAt.In(s.loc).Format("2006-01-02 15:04:05"),
			Customer: r.CustomerName,
			Seller:   r.SellerName,
			Lines:    len(r.Lines),
			Total:    r.Total().StringFixed(2),
		})
	}
	return pkgerrors.Wrap(gocsv.Marshal(rows, w), "write csv")
}

func (s *ReportService) startOfDay(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// window loads invoices created in [from, to).
func (s *ReportService) window(ctx context.Context, from, to time.Time) ([]entity.InvoiceRecord, error) {
	recs, err := s.invoices.FindRecords(ctx, repository.InvoiceFilter{From: from, To: to.Add(-time.Nanosecond)})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load invoices")
	}
	return recs, nil
}

func statsOf(recs []entity.InvoiceRecord) entity.SalesStats {
	st := entity.SalesStats{Count: len(recs), Amount: decimal.Zero, Average: decimal.Zero}
	for _, r := range recs {
		st.Amount = st.Amount.Add(r.Total())
	}
	if st.Count > 0 {
		st.Average = st.Amount.Div(decimal.NewFromInt(int64(st.Count))).Round(2)
	}
	return st
}

func summaryOf(r entity.InvoiceRecord) entity.InvoiceSummary {
	return entity.InvoiceSummary{
		ID:           r.ID,
		Code:         r.Code,
		CustomerID:   r.CustomerID,
		CustomerName: r.CustomerName,
		SellerID:     r.SellerID,
		SellerName:   r.SellerName,
		Date:         r.CreatedAt,
		Total:        r.Total(),
	}
}

func summariesOf(recs []entity.InvoiceRecord) []entity.InvoiceSummary {
	out := make([]entity.InvoiceSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, summaryOf(r))
	}
	return out
}

func documentOf(r entity.InvoiceRecord) entity.InvoiceDocument {
	return entity.InvoiceDocument{
		InvoiceID: r.ID,
		Code:      r.Code,
		Date:      r.CreatedAt,
		Customer:  entity.PartyRef{ID: r.CustomerID, Name: r.CustomerName},
		Seller:    entity.PartyRef{ID: r.SellerID, Name: r.SellerName},
		Lines:     r.PricedLines(),
		Total:     r.Total(),
	}
}
