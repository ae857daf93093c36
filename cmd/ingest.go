package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/g5/dss-engine/internal/ingest"
)

var ingestBatchSize int

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Load a transaction export (CSV or XLSX) into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		batch := ingestBatchSize
		if batch == 0 {
			batch = cfg.Ingest.BatchSize
		}

		report, err := ingest.NewLoader(st, batch).LoadFile(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		formatIngestReport(os.Stdout, report)
		return nil
	},
}

func formatIngestReport(out io.Writer, r *ingest.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROWS_READ\tLOADED\tGUEST\tSHORT_ROW\tCANCELLED\tBAD_DATE\tNON_POSITIVE")
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
		r.RowsRead, r.Loaded, r.GuestRows,
		r.DroppedShortRow, r.DroppedCancelled, r.DroppedBadDate, r.DroppedNonPositive,
	)
	_ = w.Flush()
}

func init() {
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "insert batch size (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
