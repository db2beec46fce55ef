package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceSummary is one row of the invoice listing.
type InvoiceSummary struct {
	ID           int64           `json:"id"`
	Code         string          `json:"code"`
	CustomerID   int64           `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	SellerID     int64           `json:"seller_id"`
	SellerName   string          `json:"seller_name"`
	Date         time.Time       `json:"date"`
	Total        decimal.Decimal `json:"total"`
}

// InvoiceDocument is the printable projection of one invoice.
type InvoiceDocument struct {
	InvoiceID int64           `json:"invoice_id"`
	Code      string          `json:"code"`
	Date      time.Time       `json:"date"`
	Customer  PartyRef        `json:"customer"`
	Seller    PartyRef        `json:"seller"`
	Lines     []PricedLine    `json:"lines"`
	Total     decimal.Decimal `json:"total"`
}

// SalesStats aggregates a set of invoices.
type SalesStats struct {
	Count   int             `json:"count"`
	Amount  decimal.Decimal `json:"amount"`
	Average decimal.Decimal `json:"average"`
}

// TodaySales is the "sales of the day" dashboard card.
type TodaySales struct {
	Date     time.Time        `json:"date"`
	Stats    SalesStats       `json:"stats"`
	Invoices []InvoiceSummary `json:"invoices"`
}

// DailySales is one bucket of the rolling window chart.
type DailySales struct {
	Date   string          `json:"date"` // YYYY-MM-DD in the store time zone
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// MonthSales is the current-month dashboard card.
type MonthSales struct {
	Month string     `json:"month"`
	Stats SalesStats `json:"stats"`
}

// DayTotals holds count and amount for one calendar day.
type DayTotals struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// SalesComparison compares today against yesterday.
type SalesComparison struct {
	Today         DayTotals       `json:"today"`
	Yesterday     DayTotals       `json:"yesterday"`
	CountDiff     int             `json:"count_diff"`
	AmountDiff    decimal.Decimal `json:"amount_diff"`
	PercentChange string          `json:"percent_change"`
	Trend         string          `json:"trend"` // up, down or flat
}

// SellerSales lists the invoices recorded by one seller.
type SellerSales struct {
	Seller PartyRef         `json:"seller"`
	Total  int              `json:"total"`
	Sales  []InvoiceSummary `json:"sales"`
}

// CustomerPurchases is the purchase history of one customer.
type CustomerPurchases struct {
	Customer  PartyRef          `json:"customer"`
	Purchases []InvoiceDocument `json:"purchases"`
}
