package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a buyer registered at the store counter.
type Customer struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CI        string    `json:"ci"` // national identity document number
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName returns "first last" as printed on invoices.
func (c Customer) FullName() string {
	return fullName(c.FirstName, c.LastName)
}

// Seller is the staff member who records a sale.
type Seller struct {
	ID        int64     `json:"id"`
	AuthID    string    `json:"auth_id"` // subject issued by the identity provider
	Code      string    `json:"code"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (s Seller) FullName() string {
	return fullName(s.FirstName, s.LastName)
}

// Supplier is a company the store buys stock from.
type Supplier struct {
	ID          int64     `json:"id"`
	Company     string    `json:"company"`
	Phone       string    `json:"phone"`
	ContactName string    `json:"contact_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Product is a catalog entry. Stock never goes below zero.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	CostPrice   decimal.Decimal `json:"cost_price"`
	SellPrice   decimal.Decimal `json:"sell_price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url"`
	SupplierID  *int64          `json:"supplier_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Invoice is the header written once per completed sale.
type Invoice struct {
	ID             int64     `json:"id"`
	Code           string    `json:"code"` // assigned by storage
	CustomerID     int64     `json:"customer_id"`
	SellerID       int64     `json:"seller_id"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// InvoiceLine is one product line of an invoice. UnitPriceAtSale is copied
// from the catalog when the sale is priced and is never re-read afterwards.
type InvoiceLine struct {
	ID              int64           `json:"id"`
	InvoiceID       int64           `json:"invoice_id"`
	ProductID       int64           `json:"product_id"`
	Quantity        int             `json:"quantity"`
	UnitPriceAtSale decimal.Decimal `json:"unit_price_at_sale"`
}

// Subtotal is quantity times the frozen unit price.
func (l InvoiceLine) Subtotal() decimal.Decimal {
	return l.UnitPriceAtSale.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func fullName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
