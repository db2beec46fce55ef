package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// --- Commands ---

// SaleLineItem is one requested product and quantity.
type SaleLineItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// SaleRequest is the validated input of the checkout workflow.
type SaleRequest struct {
	CustomerID     int64          `json:"customer_id"`
	SellerID       int64          `json:"seller_id"`
	LineItems      []SaleLineItem `json:"line_items"`
	IdempotencyKey string         `json:"-"`
}

// --- Views ---

// PartyRef names a customer or seller on an invoice view.
type PartyRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PricedLine is an invoice line with its frozen price and product name.
type PricedLine struct {
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name"`
	Quantity        int             `json:"quantity"`
	UnitPriceAtSale decimal.Decimal `json:"unit_price_at_sale"`
	Subtotal        decimal.Decimal `json:"subtotal"`
}

// SaleResult is returned by a completed (or replayed) sale.
type SaleResult struct {
	InvoiceID int64           `json:"invoice_id"`
	Code      string          `json:"code"`
	CreatedAt time.Time       `json:"created_at"`
	Customer  PartyRef        `json:"customer"`
	Seller    PartyRef        `json:"seller"`
	Lines     []PricedLine    `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	Replayed  bool            `json:"replayed"`
}

// InvoiceLineRecord is a persisted line joined with its product name.
type InvoiceLineRecord struct {
	InvoiceLine
	ProductName string `json:"product_name"`
}

// InvoiceRecord is the read model of a persisted invoice: header, party
// names and lines. All money derives from the frozen line prices.
type InvoiceRecord struct {
	Invoice
	CustomerName string              `json:"customer_name"`
	SellerName   string              `json:"seller_name"`
	Lines        []InvoiceLineRecord `json:"lines"`
}

// Total sums the frozen line subtotals.
func (r InvoiceRecord) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range r.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// PricedLines converts persisted lines into the view shape.
func (r InvoiceRecord) PricedLines() []PricedLine {
	out := make([]PricedLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		out = append(out, PricedLine{
			ProductID:       l.ProductID,
			ProductName:     l.ProductName,
			Quantity:        l.Quantity,
			UnitPriceAtSale: l.UnitPriceAtSale,
			Subtotal:        l.Subtotal(),
		})
	}
	return out
}
