package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRow() []string {
	return []string{"536365", "85123A", "WHITE HANGING HEART T-LIGHT HOLDER", "6", "12/1/2010 8:26", "2.55", "17850", "United Kingdom"}
}

func TestParseRowValid(t *testing.T) {
	f, reason := parseRow(validRow())
	require.Equal(t, dropNone, reason)

	assert.Equal(t, "536365", f.InvoiceNo)
	assert.Equal(t, "85123A", f.StockCode)
	assert.Equal(t, 6, f.Quantity)
	assert.Equal(t, "2.55", f.UnitPrice.String())
	require.NotNil(t, f.CustomerID)
	assert.Equal(t, 17850, *f.CustomerID)
	assert.Equal(t, "United Kingdom", f.Country)
	assert.Equal(t, time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), f.InvoiceDate)
}

func TestParseRowCancelledInvoice(t *testing.T) {
	row := validRow()
	row[colInvoiceNo] = "C536365"
	_, reason := parseRow(row)
	assert.Equal(t, dropCancelled, reason)

	row[colInvoiceNo] = "c536365"
	_, reason = parseRow(row)
	assert.Equal(t, dropCancelled, reason)
}

func TestParseRowBadDate(t *testing.T) {
	row := validRow()
	row[colInvoiceDate] = ""
	_, reason := parseRow(row)
	assert.Equal(t, dropBadDate, reason)

	row[colInvoiceDate] = "not-a-date"
	_, reason = parseRow(row)
	assert.Equal(t, dropBadDate, reason)
}

func TestParseRowNonPositive(t *testing.T) {
	row := validRow()
	row[colQuantity] = "0"
	_, reason := parseRow(row)
	assert.Equal(t, dropNonPositive, reason)

	row = validRow()
	row[colQuantity] = "-3"
	_, reason = parseRow(row)
	assert.Equal(t, dropNonPositive, reason)

	row = validRow()
	row[colUnitPrice] = "0.00"
	_, reason = parseRow(row)
	assert.Equal(t, dropNonPositive, reason)

	row = validRow()
	row[colUnitPrice] = "-1.20"
	_, reason = parseRow(row)
	assert.Equal(t, dropNonPositive, reason)
}

func TestParseRowGuestCheckoutKept(t *testing.T) {
	row := validRow()
	row[colCustomerID] = ""
	f, reason := parseRow(row)
	require.Equal(t, dropNone, reason)
	assert.Nil(t, f.CustomerID)
}

func TestParseRowFloatCustomerID(t *testing.T) {
	row := validRow()
	row[colCustomerID] = "17850.0"
	f, reason := parseRow(row)
	require.Equal(t, dropNone, reason)
	require.NotNil(t, f.CustomerID)
	assert.Equal(t, 17850, *f.CustomerID)
}

func TestParseRowShort(t *testing.T) {
	_, reason := parseRow([]string{"536365", "85123A"})
	assert.Equal(t, dropShortRow, reason)

	row := validRow()
	row[colInvoiceNo] = ""
	_, reason = parseRow(row)
	assert.Equal(t, dropShortRow, reason)
}

func TestParseDateLayouts(t *testing.T) {
	for _, s := range []string{
		"12/1/2010 8:26",
		"12/1/2010 8:26:05",
		"2010-12-01 08:26:00",
		"2010-12-01T08:26:00",
		"2010-12-01",
	} {
		_, ok := parseDate(s)
		assert.True(t, ok, s)
	}
}
