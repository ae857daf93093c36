package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g5/dss-engine/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testFact(invoice, code, country string, day int, customer *int) model.TransactionFact {
	return model.TransactionFact{
		InvoiceNo:   invoice,
		StockCode:   code,
		Description: "Test Item " + code,
		Quantity:    2,
		UnitPrice:   decimal.RequireFromString("4.25"),
		CustomerID:  customer,
		Country:     country,
		InvoiceDate: time.Date(2011, 6, day, 10, 0, 0, 0, time.UTC),
	}
}

func intPtr(v int) *int { return &v }

func TestSQLite_InsertAndListFacts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.InsertFacts(ctx, []model.TransactionFact{
		testFact("I1", "A", "United Kingdom", 1, intPtr(100)),
		testFact("I2", "B", "France", 2, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	facts, err := st.Facts(ctx, FactFilter{})
	require.NoError(t, err)
	require.Len(t, facts, 2)

	// chronological order
	assert.Equal(t, "I1", facts[0].InvoiceNo)
	assert.True(t, decimal.RequireFromString("4.25").Equal(facts[0].UnitPrice))
	require.NotNil(t, facts[0].CustomerID)
	assert.Equal(t, 100, *facts[0].CustomerID)

	// guest checkout rows keep a nil customer id
	assert.Nil(t, facts[1].CustomerID)
}

func TestSQLite_FactsFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.InsertFacts(ctx, []model.TransactionFact{
		testFact("I1", "A", "United Kingdom", 1, intPtr(1)),
		testFact("I2", "B", "France", 5, intPtr(2)),
		testFact("I3", "C", "France", 10, intPtr(3)),
	})
	require.NoError(t, err)

	facts, err := st.Facts(ctx, FactFilter{Country: "France"})
	require.NoError(t, err)
	assert.Len(t, facts, 2)

	// window [June 2, June 10): From inclusive, To exclusive
	facts, err = st.Facts(ctx, FactFilter{
		From: time.Date(2011, 6, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2011, 6, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "I2", facts[0].InvoiceNo)

	facts, err = st.Facts(ctx, FactFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "I2", facts[0].InvoiceNo)
}

func TestSQLite_CountFacts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.CountFacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = st.InsertFacts(ctx, []model.TransactionFact{
		testFact("I1", "A", "United Kingdom", 1, intPtr(1)),
	})
	require.NoError(t, err)

	n, err = st.CountFacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLite_InsertFactsEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	n, err := st.InsertFacts(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func testProfile(customer int, segment model.Segment) model.RfmProfile {
	return model.RfmProfile{
		CustomerID:    customer,
		Country:       "United Kingdom",
		RecencyDays:   12,
		Frequency:     4,
		Monetary:      decimal.RequireFromString("150.50"),
		AvgOrderValue: decimal.RequireFromString("37.625"),
		TotalQuantity: 40,
		LastPurchase:  time.Date(2011, 11, 20, 0, 0, 0, 0, time.UTC),
		Segment:       segment,
	}
}

func TestSQLite_UpsertAndListProfiles(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertProfiles(ctx, []model.RfmProfile{
		testProfile(1, model.SegmentChampions),
		testProfile(2, model.SegmentAtRisk),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := st.Profiles(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].CustomerID)
	assert.True(t, decimal.RequireFromString("150.50").Equal(all[0].Monetary))
	assert.Equal(t, model.SegmentChampions, all[0].Segment)
	assert.Equal(t, 0, all[0].SegmentRank)

	champs, err := st.Profiles(ctx, model.SegmentChampions)
	require.NoError(t, err)
	require.Len(t, champs, 1)
	assert.Equal(t, 1, champs[0].CustomerID)
}

func TestSQLite_UpsertProfilesReplacesSnapshot(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertProfiles(ctx, []model.RfmProfile{testProfile(1, model.SegmentRegulars)})
	require.NoError(t, err)

	// re-run flips the segment in place instead of adding a row
	updated := testProfile(1, model.SegmentChampions)
	updated.Frequency = 9
	_, err = st.UpsertProfiles(ctx, []model.RfmProfile{updated})
	require.NoError(t, err)

	all, err := st.Profiles(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.SegmentChampions, all[0].Segment)
	assert.Equal(t, 9, all[0].Frequency)
}
