package database

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gridconnect/gridconnect/internal/logging"
)

// ImportOptions controls how query results are written as delimited text.
type ImportOptions struct {
	Query string
	// Comma is the field separator. Zero means ','.
	Comma rune
	// NoHeader omits the column-name row.
	NoHeader bool
}

// Import runs opts.Query and writes its rows to w as delimited text, one record per
// line. w is typically a transfer.UploadSink. It returns the number of data rows.
func Import(ctx context.Context, db Querier, w io.Writer, opts ImportOptions, logger *logging.Logger) (int64, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if strings.TrimSpace(opts.Query) == "" {
		return 0, fmt.Errorf("query is required")
	}

	rows, err := db.Query(ctx, opts.Query)
	if err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("failed to read columns: %w", err)
	}

	cw := csv.NewWriter(w)
	if opts.Comma != 0 {
		cw.Comma = opts.Comma
	}
	if !opts.NoHeader {
		if err := cw.Write(columns); err != nil {
			return 0, fmt.Errorf("failed to write header: %w", err)
		}
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	record := make([]string, len(columns))

	var count int64
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if err := rows.Scan(ptrs...); err != nil {
			return count, fmt.Errorf("failed to scan row %d: %w", count+1, err)
		}
		for i, v := range values {
			record[i] = formatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return count, fmt.Errorf("failed to write row %d: %w", count+1, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("failed to read rows: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return count, fmt.Errorf("failed to flush rows: %w", err)
	}

	logger.Info().Int64("rows", count).Int("columns", len(columns)).Msg("Query rows streamed")
	return count, nil
}

// formatValue renders a scanned value as text. NULL becomes an empty field.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
