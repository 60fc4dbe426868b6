package database

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gridconnect/gridconnect/internal/logging"
	"github.com/gridconnect/gridconnect/internal/retry"
)

// maxParams is PostgreSQL's limit on bind parameters per statement.
const maxParams = 65535

// DefaultBatchSize is the number of rows per INSERT statement.
const DefaultBatchSize = 500

// ExportOptions describes how a delimited server file maps onto a table.
type ExportOptions struct {
	// Table is the target, optionally schema-qualified ("sales.orders").
	Table string
	// Comma is the field separator. Zero means ','.
	Comma rune
	// HeaderRow is the 1-based row holding column names.
	HeaderRow int
	// FirstDataRow is the 1-based row of the first record.
	FirstDataRow int
	BatchSize    int
	// Policy retries a batch after transient connection or write failures.
	Policy retry.Policy
}

// Export reads delimited rows from r and inserts them into opts.Table in batches.
// Column names come from the header row. It returns the number of rows written.
//
// A failing batch is retried per opts.Policy; server-side data errors and API errors
// surfaced while reading r fail at once.
func Export(ctx context.Context, r io.Reader, db Execer, opts ExportOptions, logger *logging.Logger) (int64, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if strings.TrimSpace(opts.Table) == "" {
		return 0, fmt.Errorf("target table is required")
	}
	headerRow := opts.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}
	firstDataRow := opts.FirstDataRow
	if firstDataRow <= headerRow {
		firstDataRow = headerRow + 1
	}

	reader := csv.NewReader(r)
	reader.Comma = opts.Comma
	if reader.Comma == 0 {
		reader.Comma = ','
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var columns []string
	for row := 1; row < firstDataRow; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			return 0, fmt.Errorf("file ended before row %d", firstDataRow)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		if row == headerRow {
			columns = normalizeColumns(record)
		}
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("header row %d has no columns", headerRow)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize*len(columns) > maxParams {
		batchSize = maxParams / len(columns)
	}

	w := &batchWriter{
		db:      db,
		table:   tableIdentifier(opts.Table),
		columns: columns,
		policy:  opts.Policy,
		logger:  logger,
	}

	var written int64
	batch := make([][]string, 0, batchSize)
	row := firstDataRow - 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return written, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		if isBlank(record) {
			continue
		}
		if len(record) != len(columns) {
			return written, fmt.Errorf("row %d has %d fields, expected %d", row, len(record), len(columns))
		}

		batch = append(batch, record)
		if len(batch) == batchSize {
			if err := w.insert(ctx, batch); err != nil {
				return written, err
			}
			written += int64(len(batch))
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := w.insert(ctx, batch); err != nil {
			return written, err
		}
		written += int64(len(batch))
	}

	logger.Info().Str("table", opts.Table).Int64("rows", written).Msg("Export written to database")
	return written, nil
}

type batchWriter struct {
	db      Execer
	table   string
	columns []string
	policy  retry.Policy
	logger  *logging.Logger
}

// insert writes one multi-row INSERT, retrying transient failures.
func (w *batchWriter) insert(ctx context.Context, batch [][]string) error {
	query, args := w.statement(batch)

	policy := w.policy
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		w.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msgf("Insert into %s failed", w.table)
	}

	err := policy.Do(ctx, func(ctx context.Context) error {
		_, err := w.db.ExecContext(ctx, query, args...)
		return classify(err)
	})
	if err != nil {
		var perm *permanentError
		if errors.As(err, &perm) {
			err = perm.err
		}
		return fmt.Errorf("failed to insert %d rows into %s: %w", len(batch), w.table, err)
	}
	return nil
}

func (w *batchWriter) statement(batch [][]string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(w.table)
	b.WriteString(" (")
	for i, c := range w.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{c}.Sanitize())
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(batch)*len(w.columns))
	for r, record := range batch {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i, v := range record {
			if i > 0 {
				b.WriteString(", ")
			}
			args = append(args, nullable(v))
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteByte(')')
	}
	return b.String(), args
}

// tableIdentifier quotes a possibly schema-qualified table name.
func tableIdentifier(table string) string {
	parts := strings.Split(strings.TrimSpace(table), ".")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return pgx.Identifier(parts).Sanitize()
}

func normalizeColumns(record []string) []string {
	cols := make([]string, len(record))
	for i, c := range record {
		c = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
		if c == "" {
			c = fmt.Sprintf("column_%d", i+1)
		}
		cols[i] = c
	}
	return cols
}

// nullable maps empty fields to NULL.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func isBlank(record []string) bool {
	return len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "")
}
