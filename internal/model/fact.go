// Package model defines the typed data shapes shared across the analytics
// engines, the store, and the API surface.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionFact is a single line item of a retail invoice. Facts are
// immutable once loaded; the engines treat a slice of facts as a read-only
// snapshot.
type TransactionFact struct {
	InvoiceNo   string          `json:"invoice_no"`
	StockCode   string          `json:"stock_code"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CustomerID  *int            `json:"customer_id,omitempty"` // nil for anonymous sales
	Country     string          `json:"country"`
	InvoiceDate time.Time       `json:"invoice_date"`
}

// Amount is the line revenue: quantity * unit price.
func (f TransactionFact) Amount() decimal.Decimal {
	return f.UnitPrice.Mul(decimal.NewFromInt(int64(f.Quantity)))
}

// OverviewStats summarizes a transaction snapshot for report headers.
type OverviewStats struct {
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalInvoices  int             `json:"total_invoices"`
	TotalCustomers int             `json:"total_customers"`
	TotalProducts  int             `json:"total_products"`
	FirstInvoice   time.Time       `json:"first_invoice"`
	LastInvoice    time.Time       `json:"last_invoice"`
}
