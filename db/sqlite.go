// Package db implements the billing-fact store on SQLite. It satisfies
// the engine's Store contract and owns the billing_facts and
// account_directory tables.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"billing-trust/core/billing"
	"billing-trust/core/trust"
	apperrors "billing-trust/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS billing_facts (
  id                   INTEGER PRIMARY KEY,
  uploadid             TEXT NOT NULL,
  provider             TEXT NOT NULL DEFAULT '',
  billedcost           TEXT,
  chargeperiodstart    TEXT,
  createdat            TEXT,
  servicename          TEXT,
  regionname           TEXT,
  subaccountid         TEXT,
  subaccountname       TEXT,
  resourceid           TEXT,
  billingaccountid     TEXT,
  billingcurrency      TEXT,
  costbasis            TEXT,
  chargecategory       TEXT,
  chargeclass          TEXT,
  chargefrequency      TEXT,
  commitmentdiscountid TEXT,
  consumedquantity     TEXT,
  consumedunit         TEXT,
  tags                 TEXT
);
CREATE INDEX IF NOT EXISTS idx_facts_upload ON billing_facts(uploadid);
CREATE INDEX IF NOT EXISTS idx_facts_charge ON billing_facts(uploadid, chargeperiodstart);
CREATE TABLE IF NOT EXISTS account_directory (
  id        INTEGER PRIMARY KEY,
  uploadid  TEXT NOT NULL,
  provider  TEXT NOT NULL DEFAULT '',
  accountid TEXT NOT NULL,
  UNIQUE(uploadid, provider, accountid)
);
CREATE INDEX IF NOT EXISTS idx_directory_upload ON account_directory(uploadid);
`

// factFields maps each billing_facts column to the logical field the
// normalizer resolves it by, in insert order after uploadid and provider.
var factFields = []struct {
	col   string
	field string
}{
	{"billedcost", billing.FieldBilledCost},
	{"chargeperiodstart", billing.FieldChargePeriodStart},
	{"createdat", billing.FieldCreatedAt},
	{"servicename", billing.FieldServiceName},
	{"regionname", billing.FieldRegionName},
	{"subaccountid", billing.FieldSubAccountID},
	{"subaccountname", billing.FieldSubAccountName},
	{"resourceid", billing.FieldResourceID},
	{"billingaccountid", billing.FieldBillingAccountID},
	{"billingcurrency", billing.FieldBillingCurrency},
	{"costbasis", billing.FieldCostBasis},
	{"chargecategory", billing.FieldChargeCategory},
	{"chargeclass", billing.FieldChargeClass},
	{"chargefrequency", billing.FieldChargeFrequency},
	{"commitmentdiscountid", billing.FieldCommitmentDiscountID},
	{"consumedquantity", billing.FieldConsumedQuantity},
	{"consumedunit", billing.FieldConsumedUnit},
	{"tags", billing.FieldTags},
}

// factColumns are the billing_facts columns in insert order.
var factColumns = func() []string {
	cols := []string{"uploadid", "provider"}
	for _, f := range factFields {
		cols = append(cols, f.col)
	}
	return cols
}()

// SQLiteStore is the trust.Store implementation backed by one SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (and if needed creates) the store at path.
func Open(path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.Store("opening billing store", err)
	}
	if err := db.Ping(); err != nil {
		return nil, apperrors.Store("pinging billing store", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, apperrors.Store("creating billing schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FetchBillingRows returns the raw rows matching the scope. An empty
// upload set returns an empty slice without touching the database; this
// guards against unscoped full-table scans.
func (s *SQLiteStore) FetchBillingRows(ctx context.Context, scope trust.Scope) ([]billing.RawRow, error) {
	if len(scope.UploadIDs) == 0 {
		return []billing.RawRow{}, nil
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(factColumns, ", "))
	sb.WriteString(" FROM billing_facts WHERE uploadid IN (")
	sb.WriteString(placeholders(len(scope.UploadIDs)))
	sb.WriteString(")")

	args := make([]any, 0, len(scope.UploadIDs)+5)
	for _, id := range scope.UploadIDs {
		args = append(args, id)
	}
	if scope.Provider != "" {
		sb.WriteString(" AND provider = ?")
		args = append(args, scope.Provider)
	}
	if scope.Service != "" {
		sb.WriteString(" AND servicename = ?")
		args = append(args, scope.Service)
	}
	if scope.Region != "" {
		sb.WriteString(" AND regionname = ?")
		args = append(args, scope.Region)
	}
	if scope.StartDate != "" {
		sb.WriteString(" AND chargeperiodstart >= ?")
		args = append(args, scope.StartDate)
	}
	if scope.EndDate != "" {
		sb.WriteString(" AND chargeperiodstart <= ?")
		args = append(args, scope.EndDate+"T23:59:59Z")
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, apperrors.Store("querying billing facts", err)
	}
	defer rows.Close()

	var out []billing.RawRow
	for rows.Next() {
		values := make([]sql.NullString, len(factColumns))
		dest := make([]any, len(factColumns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, apperrors.Store("scanning billing fact", err)
		}

		raw := make(billing.RawRow, len(factColumns))
		for i, col := range factColumns {
			if values[i].Valid && values[i].String != "" {
				raw[col] = values[i].String
			}
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store("iterating billing facts", err)
	}
	if out == nil {
		out = []billing.RawRow{}
	}
	return out, nil
}

// FetchExpectedAccountIDs returns the directory accounts for the upload
// scope, used as the completeness denominator.
func (s *SQLiteStore) FetchExpectedAccountIDs(ctx context.Context, uploadIDs []string, provider string) ([]string, error) {
	if len(uploadIDs) == 0 {
		return []string{}, nil
	}

	query := "SELECT DISTINCT accountid FROM account_directory WHERE uploadid IN (" +
		placeholders(len(uploadIDs)) + ")"
	args := make([]any, 0, len(uploadIDs)+1)
	for _, id := range uploadIDs {
		args = append(args, id)
	}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	query += " ORDER BY accountid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Store("querying account directory", err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Store("scanning directory account", err)
		}
		accounts = append(accounts, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store("iterating account directory", err)
	}
	if accounts == nil {
		accounts = []string{}
	}
	return accounts, nil
}

// InsertRows loads raw fact rows under a fresh upload ID and registers
// every distinct sub-account in the directory. It returns the upload ID.
func (s *SQLiteStore) InsertRows(ctx context.Context, provider string, raws []billing.RawRow) (string, error) {
	uploadID := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", apperrors.Store("beginning load transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insert := "INSERT INTO billing_facts (" + strings.Join(factColumns, ", ") +
		") VALUES (" + placeholders(len(factColumns)) + ")"
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return "", apperrors.Store("preparing fact insert", err)
	}
	defer stmt.Close()

	accounts := make(map[string]struct{})
	for _, raw := range raws {
		args := make([]any, 0, len(factColumns))
		args = append(args, uploadID, provider)
		for _, f := range factFields {
			args = append(args, rawColumn(raw, f.field))
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return "", apperrors.Store("inserting billing fact", err)
		}
		if account := rawColumn(raw, billing.FieldSubAccountID); account != "" {
			accounts[account] = struct{}{}
		}
	}

	for account := range accounts {
		if _, err = tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO account_directory (uploadid, provider, accountid) VALUES (?, ?, ?)",
			uploadID, provider, account); err != nil {
			return "", apperrors.Store("registering directory account", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", apperrors.Store("committing load transaction", err)
	}
	return uploadID, nil
}

// rawColumn resolves one logical field from a raw row, accepting the
// same field aliases the normalizer accepts and serializing tag maps.
func rawColumn(raw billing.RawRow, field string) string {
	v, ok := raw.Lookup(field)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]any, map[string]string:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
