package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event represents a domain event.
type Event interface {
	EventType() string
}

// --- Events ---

// SaleCompletedLine is a line of a SaleCompleted event.
type SaleCompletedLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SaleCompleted is emitted after an invoice, its lines and the stock
// decrements have all been committed.
type SaleCompleted struct {
	InvoiceID   int64               `json:"invoice_id"`
	Code        string              `json:"code"`
	CustomerID  int64               `json:"customer_id"`
	SellerID    int64               `json:"seller_id"`
	Lines       []SaleCompletedLine `json:"lines"`
	Total       decimal.Decimal     `json:"total"`
	CompletedAt time.Time           `json:"completed_at"`
}

func (e SaleCompleted) EventType() string { return "SaleCompleted" }

// LowStock is emitted when a sale leaves a product at or below the alert threshold.
type LowStock struct {
	ProductID int64     `json:"product_id"`
	Name      string    `json:"name"`
	Stock     int       `json:"stock"`
	Threshold int       `json:"threshold"`
	At        time.Time `json:"at"`
}

func (e LowStock) EventType() string { return "LowStock" }
