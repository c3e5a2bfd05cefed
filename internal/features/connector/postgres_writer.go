package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresWriter lands records in a Postgres table via idempotent upserts
// keyed on the external id column.
type PostgresWriter struct {
	db      *sql.DB
	table   string
	mapping map[string]string
	logger  *zap.Logger
}

func NewPostgresWriter(setting *Setting, logger *zap.Logger) (*PostgresWriter, error) {
	if setting.TargetDSN == "" || setting.TargetTable == "" {
		return nil, Permanent("postgres.open", errors.New("connector setting has no target DSN or table"))
	}

	db, err := sql.Open("postgres", setting.TargetDSN)
	if err != nil {
		return nil, Permanent("postgres.open", err)
	}

	return &PostgresWriter{
		db:      db,
		table:   setting.TargetTable,
		mapping: setting.Mapping,
		logger:  logger,
	}, nil
}

func (w *PostgresWriter) Close() error {
	return w.db.Close()
}

// Upsert inserts or updates one record. Re-running the same record is safe:
// the conflict target is the external_id column, so duplicates collapse into
// an update.
func (w *PostgresWriter) Upsert(ctx context.Context, rec Record) (*Result, error) {
	if rec.ExternalID == "" {
		return nil, Permanent("postgres.upsert", errors.New("record has no external id"))
	}

	cols := []string{"external_id"}
	vals := []any{rec.ExternalID}

	fields := make([]string, 0, len(w.mapping))
	for field := range w.mapping {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		v, ok := rec.Data[field]
		if !ok {
			continue
		}
		cols = append(cols, w.mapping[field])
		vals = append(vals, v)
	}

	placeholders := make([]string, len(cols))
	updates := make([]string, 0, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "external_id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	updates = append(updates, "updated_at = NOW()")

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)
		 ON CONFLICT (external_id) DO UPDATE SET %s
		 RETURNING id, (xmax <> 0) AS was_update`,
		pq.QuoteIdentifier(w.table),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)

	var internalID string
	var wasUpdate bool
	if err := w.db.QueryRowContext(ctx, query, vals...).Scan(&internalID, &wasUpdate); err != nil {
		return nil, classifyPg("postgres.upsert", err)
	}

	return &Result{InternalID: internalID, WasUpdate: wasUpdate}, nil
}

// classifyPg maps Postgres failures to retry classes. Constraint and syntax
// errors will fail the same way every attempt; connection and contention
// errors are worth retrying.
func classifyPg(op string, err error) *SyncError {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := string(pqErr.Code.Class())
		switch class {
		case "08", "53", "57": // connection, resources, operator intervention
			return Transient(op, err)
		case "40": // serialization failure, deadlock
			return Transient(op, err)
		case "22", "23", "42": // bad data, constraint violation, bad SQL
			return Permanent(op, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Transient(op, err)
	}
	return Transient(op, err)
}
