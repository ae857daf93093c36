package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/g5/dss-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS transactions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	invoice_no   TEXT NOT NULL,
	stock_code   TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	quantity     INTEGER NOT NULL,
	unit_price   TEXT NOT NULL,
	customer_id  INTEGER,
	country      TEXT NOT NULL DEFAULT '',
	invoice_date DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS rfm_profiles (
	customer_id     INTEGER PRIMARY KEY,
	country         TEXT NOT NULL DEFAULT '',
	recency_days    INTEGER NOT NULL,
	frequency       INTEGER NOT NULL,
	monetary        TEXT NOT NULL,
	avg_order_value TEXT NOT NULL,
	total_quantity  INTEGER NOT NULL,
	last_purchase   DATETIME NOT NULL,
	segment         TEXT NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_invoice_no ON transactions(invoice_no);
CREATE INDEX IF NOT EXISTS idx_transactions_country ON transactions(country);
CREATE INDEX IF NOT EXISTS idx_transactions_invoice_date ON transactions(invoice_date);
CREATE INDEX IF NOT EXISTS idx_transactions_customer_id ON transactions(customer_id);
CREATE INDEX IF NOT EXISTS idx_rfm_profiles_segment ON rfm_profiles(segment);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertFacts(ctx context.Context, facts []model.TransactionFact) (int64, error) {
	if len(facts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transactions (invoice_no, stock_code, description, quantity, unit_price, customer_id, country, invoice_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	for _, f := range facts {
		var customer any
		if f.CustomerID != nil {
			customer = *f.CustomerID
		}
		if _, err := stmt.ExecContext(ctx,
			f.InvoiceNo, f.StockCode, f.Description, f.Quantity,
			f.UnitPrice.String(), customer, f.Country, f.InvoiceDate.UTC(),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert fact invoice %s", f.InvoiceNo)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit facts")
	}
	return int64(len(facts)), nil
}

func (s *SQLiteStore) Facts(ctx context.Context, filter FactFilter) ([]model.TransactionFact, error) {
	query := `SELECT invoice_no, stock_code, description, quantity, unit_price, customer_id, country, invoice_date FROM transactions`
	var conds []string
	var args []any
	if filter.Country != "" {
		conds = append(conds, "country = ?")
		args = append(args, filter.Country)
	}
	if !filter.From.IsZero() {
		conds = append(conds, "invoice_date >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		conds = append(conds, "invoice_date < ?")
		args = append(args, filter.To.UTC())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY invoice_date, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query facts")
	}
	defer rows.Close()

	var out []model.TransactionFact
	for rows.Next() {
		f, err := scanFactRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate facts")
}

func scanFactRow(rows *sql.Rows) (model.TransactionFact, error) {
	var f model.TransactionFact
	var price string
	var customer sql.NullInt64
	if err := rows.Scan(&f.InvoiceNo, &f.StockCode, &f.Description, &f.Quantity,
		&price, &customer, &f.Country, &f.InvoiceDate); err != nil {
		return f, eris.Wrap(err, "sqlite: scan fact")
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return f, eris.Wrapf(err, "sqlite: parse unit price %q", price)
	}
	f.UnitPrice = p
	if customer.Valid {
		id := int(customer.Int64)
		f.CustomerID = &id
	}
	return f, nil
}

func (s *SQLiteStore) CountFacts(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count facts")
}

func (s *SQLiteStore) UpsertProfiles(ctx context.Context, profiles []model.RfmProfile) (int64, error) {
	if len(profiles) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rfm_profiles (customer_id, country, recency_days, frequency, monetary, avg_order_value, total_quantity, last_purchase, segment, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(customer_id) DO UPDATE SET
			country = excluded.country,
			recency_days = excluded.recency_days,
			frequency = excluded.frequency,
			monetary = excluded.monetary,
			avg_order_value = excluded.avg_order_value,
			total_quantity = excluded.total_quantity,
			last_purchase = excluded.last_purchase,
			segment = excluded.segment,
			updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range profiles {
		if _, err := stmt.ExecContext(ctx,
			p.CustomerID, p.Country, p.RecencyDays, p.Frequency,
			p.Monetary.String(), p.AvgOrderValue.String(), p.TotalQuantity,
			p.LastPurchase.UTC(), string(p.Segment), now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert profile %d", p.CustomerID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit profiles")
	}
	return int64(len(profiles)), nil
}

func (s *SQLiteStore) Profiles(ctx context.Context, segment model.Segment) ([]model.RfmProfile, error) {
	query := `SELECT customer_id, country, recency_days, frequency, monetary, avg_order_value, total_quantity, last_purchase, segment FROM rfm_profiles`
	var args []any
	if segment != "" {
		query += ` WHERE segment = ?`
		args = append(args, string(segment))
	}
	query += ` ORDER BY customer_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query profiles")
	}
	defer rows.Close()

	var out []model.RfmProfile
	for rows.Next() {
		var p model.RfmProfile
		var monetary, avgOrder, seg string
		if err := rows.Scan(&p.CustomerID, &p.Country, &p.RecencyDays, &p.Frequency,
			&monetary, &avgOrder, &p.TotalQuantity, &p.LastPurchase, &seg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile")
		}
		if p.Monetary, err = decimal.NewFromString(monetary); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse monetary %q", monetary)
		}
		if p.AvgOrderValue, err = decimal.NewFromString(avgOrder); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse avg order value %q", avgOrder)
		}
		p.Segment = model.Segment(seg)
		p.SegmentRank = p.Segment.Rank()
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate profiles")
}
