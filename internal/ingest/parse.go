package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/g5/dss-engine/internal/model"
)

// Expected export column order:
// InvoiceNo, StockCode, Description, Quantity, InvoiceDate, UnitPrice, CustomerID, Country.
const (
	colInvoiceNo = iota
	colStockCode
	colDescription
	colQuantity
	colInvoiceDate
	colUnitPrice
	colCustomerID
	colCountry
	columnCount
)

// dropReason classifies why a row was excluded from the fact table.
type dropReason int

const (
	dropNone dropReason = iota
	dropShortRow
	dropCancelled
	dropBadDate
	dropNonPositive
)

// Report tallies one ingest run. The dropped counters sum with Loaded to
// RowsRead.
type Report struct {
	RowsRead           int   `json:"rows_read"`
	Loaded             int64 `json:"loaded"`
	DroppedShortRow    int   `json:"dropped_short_row"`
	DroppedCancelled   int   `json:"dropped_cancelled"`
	DroppedBadDate     int   `json:"dropped_bad_date"`
	DroppedNonPositive int   `json:"dropped_non_positive"`
	GuestRows          int   `json:"guest_rows"` // loaded rows without a customer id
}

func (r *Report) count(reason dropReason) {
	switch reason {
	case dropShortRow:
		r.DroppedShortRow++
	case dropCancelled:
		r.DroppedCancelled++
	case dropBadDate:
		r.DroppedBadDate++
	case dropNonPositive:
		r.DroppedNonPositive++
	}
}

// dateLayouts covers the formats seen across retail exports: US-style
// slashes with and without seconds, and ISO variants.
var dateLayouts = []string{
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseRow cleans one export row into a fact. Cancelled invoices carry a
// 'C' prefix; quantity and price must both be positive to count as a sale.
// A missing customer id is a guest checkout and is kept.
func parseRow(rec []string) (model.TransactionFact, dropReason) {
	if len(rec) < columnCount {
		return model.TransactionFact{}, dropShortRow
	}

	invoice := rec[colInvoiceNo]
	if invoice == "" {
		return model.TransactionFact{}, dropShortRow
	}
	if strings.HasPrefix(invoice, "C") || strings.HasPrefix(invoice, "c") {
		return model.TransactionFact{}, dropCancelled
	}

	ts, ok := parseDate(rec[colInvoiceDate])
	if !ok {
		return model.TransactionFact{}, dropBadDate
	}

	qty, err := strconv.Atoi(rec[colQuantity])
	if err != nil || qty <= 0 {
		return model.TransactionFact{}, dropNonPositive
	}
	price, err := decimal.NewFromString(rec[colUnitPrice])
	if err != nil || !price.IsPositive() {
		return model.TransactionFact{}, dropNonPositive
	}

	f := model.TransactionFact{
		InvoiceNo:   invoice,
		StockCode:   rec[colStockCode],
		Description: rec[colDescription],
		Quantity:    qty,
		UnitPrice:   price,
		Country:     rec[colCountry],
		InvoiceDate: ts,
	}
	if raw := rec[colCustomerID]; raw != "" {
		// exports sometimes render ids as floats ("17850.0")
		if id, err := strconv.Atoi(strings.TrimSuffix(raw, ".0")); err == nil {
			f.CustomerID = &id
		}
	}
	return f, dropNone
}
