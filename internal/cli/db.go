package cli

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/gridconnect/gridconnect/internal/database"
	"github.com/gridconnect/gridconnect/internal/models"
	"github.com/gridconnect/gridconnect/internal/transfer"
	ustrings "github.com/gridconnect/gridconnect/internal/util/strings"
)

// dsn overrides the [database] dsn config value.
var dsn string

func newDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Move rows between server files and a PostgreSQL database",
		Long: `Database commands.

Commands:
  import  - Run a query and stream its rows into a server file
  export  - Insert the rows of a server file into a table

The connection string comes from --dsn or the [database] dsn config key, e.g.
  postgres://loader@db.internal:5432/sales?sslmode=require`,
	}
	dbCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string")

	dbCmd.AddCommand(newDBImportCmd())
	dbCmd.AddCommand(newDBExportCmd())
	return dbCmd
}

func newDBImportCmd() *cobra.Command {
	var (
		fileID   string
		query    string
		comma    string
		noHeader bool
		ff       fileFlags
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Stream query results into a server file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sep, err := parseComma(comma)
			if err != nil {
				return err
			}
			file, err := importDescriptor(cmd, &ff, fileID, noHeader)
			if err != nil {
				return err
			}
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			db, err := database.Open(ctx, cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			sink, err := transfer.OpenUploadSink(ctx, client, file, cfg.ChunkSizeBytes(), GetLogger())
			if err != nil {
				return err
			}
			rows, err := database.Import(ctx, db, sink, database.ImportOptions{
				Query:    query,
				Comma:    sep,
				NoHeader: noHeader,
			}, GetLogger())
			if err != nil {
				sink.Abort()
				return err
			}
			if err := sink.Close(); err != nil {
				return err
			}

			fmt.Printf("Imported %s into %s (%s)\n", ustrings.Count(rows, "row"), file.ID, ustrings.Count(int64(sink.Chunks()), "chunk"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&fileID, "file", "f", "", "Server file to write (required)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "SQL query to run (required)")
	cmd.Flags().StringVar(&comma, "comma", ",", `Field separator (a single character, or "tab")`)
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "Omit the column-name row")
	ff.register(cmd)
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func newDBExportCmd() *cobra.Command {
	var (
		table        string
		comma        string
		headerRow    int
		firstDataRow int
		batchSize    int
	)

	cmd := &cobra.Command{
		Use:   "export <file-id>",
		Short: "Insert the rows of a server file into a table",
		Long: `Read a server file chunk by chunk and insert its rows into a table.

Columns are named by the header row. Empty fields are inserted as NULL.
Connection failures are retried per the [retry] config; constraint and
data errors fail at once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sep, err := parseComma(comma)
			if err != nil {
				return err
			}
			client, cfg, err := getAPIClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			db, err := database.Open(ctx, cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			rc, err := transfer.NewDownloader(GetLogger(), nil).Open(ctx, transfer.NewServerFileSource(client, args[0], ""))
			if err != nil {
				return err
			}
			defer rc.Close()

			rows, err := database.Export(ctx, rc, db, database.ExportOptions{
				Table:        table,
				Comma:        sep,
				HeaderRow:    headerRow,
				FirstDataRow: firstDataRow,
				BatchSize:    batchSize,
				Policy:       cfg.RetryPolicy(),
			}, GetLogger())
			if err != nil {
				return err
			}

			fmt.Printf("Exported %s into %s\n", ustrings.Count(rows, "row"), table)
			return nil
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "Target table, optionally schema-qualified (required)")
	cmd.Flags().StringVar(&comma, "comma", ",", `Field separator (a single character, or "tab")`)
	cmd.Flags().IntVar(&headerRow, "header-row", 1, "Row holding column names")
	cmd.Flags().IntVar(&firstDataRow, "first-data-row", 2, "First row holding data")
	cmd.Flags().IntVar(&batchSize, "batch-size", database.DefaultBatchSize, "Rows per INSERT statement")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

// importDescriptor builds the server file for 'db import'. Without a column-name row the
// descriptor says so: header row 0 and, unless given, data from row 1.
func importDescriptor(cmd *cobra.Command, ff *fileFlags, fileID string, noHeader bool) (*models.ServerFile, error) {
	file := ff.descriptor(fileID, "")
	if !noHeader {
		return file, nil
	}
	if cmd.Flags().Changed("header-row") && ff.headerRow != 0 {
		return nil, fmt.Errorf("--header-row %d conflicts with --no-header", ff.headerRow)
	}
	file.HeaderRow = 0
	if !cmd.Flags().Changed("first-data-row") {
		file.FirstDataRow = 1
	}
	return file, nil
}

// parseComma accepts a single character, "tab" or a literal \t.
func parseComma(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("field separator must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("invalid field separator %q", s)
	}
	return r, nil
}
