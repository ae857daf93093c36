package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "rfm_profiles",
		Columns:      []string{"customer_id", "segment"},
		ConflictKeys: []string{"customer_id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "rfm_profiles",
		ConflictKeys: []string{"customer_id"},
	}, [][]any{{1, "Champions"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "rfm_profiles",
		Columns: []string{"customer_id", "segment"},
	}, [][]any{{1, "Champions"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestBulkUpsert_Flow(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"customer_id", "segment"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_rfm_profiles" \(LIKE "rfm_profiles" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_rfm_profiles"}, cols).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "rfm_profiles" \("customer_id", "segment"\) SELECT "customer_id", "segment" FROM "_tmp_upsert_rfm_profiles" ON CONFLICT \("customer_id"\) DO UPDATE SET "segment" = EXCLUDED\."segment"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "rfm_profiles",
		Columns:      cols,
		ConflictKeys: []string{"customer_id"},
	}, [][]any{{1, "Champions"}, {2, "Loyal"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"customer_id", "segment", "monetary"})
	assert.Equal(t, `"customer_id", "segment", "monetary"`, result)
}
