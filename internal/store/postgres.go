package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/g5/dss-engine/internal/db"
	"github.com/g5/dss-engine/internal/model"
	"github.com/g5/dss-engine/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot store operations. Fact listing is filter-driven and built ad hoc.
var preparedStatements = map[string]string{
	"count_facts":         `SELECT COUNT(*) FROM transactions`,
	"profiles_all":        `SELECT customer_id, country, recency_days, frequency, monetary::text, avg_order_value::text, total_quantity, last_purchase, segment FROM rfm_profiles ORDER BY customer_id`,
	"profiles_by_segment": `SELECT customer_id, country, recency_days, frequency, monetary::text, avg_order_value::text, total_quantity, last_purchase, segment FROM rfm_profiles WHERE segment = $1 ORDER BY customer_id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	// the server may still be coming up when we connect
	pingCfg := resilience.DefaultRetryConfig()
	pingCfg.OnRetry = resilience.RetryLogger("postgres ping")
	if err := resilience.Do(ctx, pingCfg, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

// Pool exposes the underlying pool for subsystems needing direct access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS transactions (
	id           BIGSERIAL PRIMARY KEY,
	invoice_no   TEXT NOT NULL,
	stock_code   TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	quantity     INTEGER NOT NULL,
	unit_price   NUMERIC(14,4) NOT NULL,
	customer_id  INTEGER,
	country      TEXT NOT NULL DEFAULT '',
	invoice_date TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS rfm_profiles (
	customer_id     INTEGER PRIMARY KEY,
	country         TEXT NOT NULL DEFAULT '',
	recency_days    INTEGER NOT NULL,
	frequency       INTEGER NOT NULL,
	monetary        NUMERIC(14,4) NOT NULL,
	avg_order_value NUMERIC(14,4) NOT NULL,
	total_quantity  INTEGER NOT NULL,
	last_purchase   TIMESTAMPTZ NOT NULL,
	segment         TEXT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transactions_invoice_no ON transactions(invoice_no);
CREATE INDEX IF NOT EXISTS idx_transactions_country ON transactions(country);
CREATE INDEX IF NOT EXISTS idx_transactions_invoice_date ON transactions(invoice_date);
CREATE INDEX IF NOT EXISTS idx_transactions_customer_id ON transactions(customer_id);
CREATE INDEX IF NOT EXISTS idx_rfm_profiles_segment ON rfm_profiles(segment);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var factColumns = []string{
	"invoice_no", "stock_code", "description", "quantity",
	"unit_price", "customer_id", "country", "invoice_date",
}

func (s *PostgresStore) InsertFacts(ctx context.Context, facts []model.TransactionFact) (int64, error) {
	rows := make([][]any, len(facts))
	for i, f := range facts {
		var customer any
		if f.CustomerID != nil {
			customer = int32(*f.CustomerID)
		}
		rows[i] = []any{
			f.InvoiceNo, f.StockCode, f.Description, int32(f.Quantity),
			f.UnitPrice.String(), customer, f.Country, f.InvoiceDate.UTC(),
		}
	}
	n, err := db.CopyFrom(ctx, s.pool, "transactions", factColumns, rows)
	return n, eris.Wrap(err, "postgres: insert facts")
}

func (s *PostgresStore) Facts(ctx context.Context, filter FactFilter) ([]model.TransactionFact, error) {
	query := `SELECT invoice_no, stock_code, description, quantity, unit_price::text, customer_id, country, invoice_date FROM transactions`
	var conds []string
	var args []any
	if filter.Country != "" {
		args = append(args, filter.Country)
		conds = append(conds, "country = $"+strconv.Itoa(len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		conds = append(conds, "invoice_date >= $"+strconv.Itoa(len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		conds = append(conds, "invoice_date < $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY invoice_date, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += " OFFSET $" + strconv.Itoa(len(args))
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query facts")
	}
	defer rows.Close()

	var out []model.TransactionFact
	for rows.Next() {
		var f model.TransactionFact
		var price string
		var customer *int32
		if err := rows.Scan(&f.InvoiceNo, &f.StockCode, &f.Description, &f.Quantity,
			&price, &customer, &f.Country, &f.InvoiceDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fact")
		}
		if f.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, eris.Wrapf(err, "postgres: parse unit price %q", price)
		}
		if customer != nil {
			id := int(*customer)
			f.CustomerID = &id
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate facts")
}

func (s *PostgresStore) CountFacts(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count facts")
}

var profileColumns = []string{
	"customer_id", "country", "recency_days", "frequency",
	"monetary", "avg_order_value", "total_quantity", "last_purchase",
	"segment", "updated_at",
}

func (s *PostgresStore) UpsertProfiles(ctx context.Context, profiles []model.RfmProfile) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(profiles))
	for i, p := range profiles {
		rows[i] = []any{
			int32(p.CustomerID), p.Country, int32(p.RecencyDays), int32(p.Frequency),
			p.Monetary.String(), p.AvgOrderValue.String(), int32(p.TotalQuantity),
			p.LastPurchase.UTC(), string(p.Segment), now,
		}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "rfm_profiles",
		Columns:      profileColumns,
		ConflictKeys: []string{"customer_id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert profiles")
}

func (s *PostgresStore) Profiles(ctx context.Context, segment model.Segment) ([]model.RfmProfile, error) {
	query := `SELECT customer_id, country, recency_days, frequency, monetary::text, avg_order_value::text, total_quantity, last_purchase, segment FROM rfm_profiles ORDER BY customer_id`
	args := []any{}
	if segment != "" {
		query = `SELECT customer_id, country, recency_days, frequency, monetary::text, avg_order_value::text, total_quantity, last_purchase, segment FROM rfm_profiles WHERE segment = $1 ORDER BY customer_id`
		args = append(args, string(segment))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query profiles")
	}
	defer rows.Close()

	var out []model.RfmProfile
	for rows.Next() {
		var p model.RfmProfile
		var monetary, avgOrder, seg string
		if err := rows.Scan(&p.CustomerID, &p.Country, &p.RecencyDays, &p.Frequency,
			&monetary, &avgOrder, &p.TotalQuantity, &p.LastPurchase, &seg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile")
		}
		if p.Monetary, err = decimal.NewFromString(monetary); err != nil {
			return nil, eris.Wrapf(err, "postgres: parse monetary %q", monetary)
		}
		if p.AvgOrderValue, err = decimal.NewFromString(avgOrder); err != nil {
			return nil, eris.Wrapf(err, "postgres: parse avg order value %q", avgOrder)
		}
		p.Segment = model.Segment(seg)
		p.SegmentRank = p.Segment.Rank()
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate profiles")
}
