// Package ingest loads retail transaction exports (CSV or XLSX) into the
// fact store, applying the standard cleaning rules on the way in:
// cancelled invoices, unparsable dates and non-positive quantities or
// prices are dropped; guest rows without a customer id are kept.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/g5/dss-engine/internal/model"
	"github.com/g5/dss-engine/internal/resilience"
	"github.com/g5/dss-engine/internal/store"
)

const (
	defaultBatchSize = 1000

	// insertConcurrency caps in-flight batch writes. The parser outruns
	// the store, so a little overlap hides write latency.
	insertConcurrency = 4
)

// Loader batches cleaned facts into the store.
type Loader struct {
	store     store.Store
	batchSize int
}

func NewLoader(st store.Store, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Loader{store: st, batchSize: batchSize}
}

// LoadFile ingests one export file, dispatching on extension.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Report, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return l.loadCSV(ctx, path)
	case ".xlsx":
		return l.loadXLSX(ctx, path)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

func (l *Loader) loadCSV(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	// an insert failure aborts consume before the channel drains; the
	// cancel releases the reader goroutine
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowCh, errCh := streamCSV(ctx, f)
	report, err := l.consume(ctx, rowCh)
	if err != nil {
		return nil, err
	}
	if streamErr := <-errCh; streamErr != nil {
		return nil, streamErr
	}

	zap.L().Info("ingest: file loaded",
		zap.String("path", path),
		zap.Int("rows_read", report.RowsRead),
		zap.Int64("loaded", report.Loaded),
	)
	return report, nil
}

func (l *Loader) loadXLSX(ctx context.Context, path string) (*Report, error) {
	rows, err := readXLSXRows(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowCh := make(chan []string, 64)
	go func() {
		defer close(rowCh)
		for _, row := range rows {
			select {
			case rowCh <- row:
			case <-ctx.Done():
				return
			}
		}
	}()

	report, err := l.consume(ctx, rowCh)
	if err != nil {
		return nil, err
	}

	zap.L().Info("ingest: file loaded",
		zap.String("path", path),
		zap.Int("rows_read", report.RowsRead),
		zap.Int64("loaded", report.Loaded),
	)
	return report, nil
}

// consume parses and cleans rows on the calling goroutine and hands full
// batches to a bounded errgroup for insertion.
func (l *Loader) consume(ctx context.Context, rowCh <-chan []string) (*Report, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(insertConcurrency)

	var loaded atomic.Int64
	report := &Report{}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("insert facts")

	flush := func(batch []model.TransactionFact) {
		g.Go(func() error {
			// concurrent writers contend on the SQLite file lock
			return resilience.Do(gctx, retryCfg, func(ctx context.Context) error {
				n, err := l.store.InsertFacts(ctx, batch)
				if err != nil {
					return err
				}
				loaded.Add(n)
				return nil
			})
		})
	}

	batch := make([]model.TransactionFact, 0, l.batchSize)
	for row := range rowCh {
		if gctx.Err() != nil {
			break
		}
		report.RowsRead++

		fact, reason := parseRow(row)
		if reason != dropNone {
			report.count(reason)
			continue
		}
		if fact.CustomerID == nil {
			report.GuestRows++
		}

		batch = append(batch, fact)
		if len(batch) == l.batchSize {
			flush(batch)
			batch = make([]model.TransactionFact, 0, l.batchSize)
		}
	}
	if len(batch) > 0 {
		flush(batch)
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "ingest: insert batch")
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "ingest: cancelled")
	}

	report.Loaded = loaded.Load()
	return report, nil
}
