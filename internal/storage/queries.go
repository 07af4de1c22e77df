package storage

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"settleflow/internal/core"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX, d Dialect) *Queries {
	return &Queries{db: db, dialect: d, loc: time.UTC}
}

type Queries struct {
	db      DBTX
	dialect Dialect
	loc     *time.Location
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect, loc: q.loc}
}

// In returns a copy reading offset-less stored times in loc.
func (q *Queries) In(loc *time.Location) *Queries {
	if loc == nil {
		loc = time.UTC
	}
	return &Queries{db: q.db, dialect: q.dialect, loc: loc}
}

const settlementExists = `SELECT EXISTS (SELECT 1 FROM settlements WHERE id = ?)`

func (q *Queries) SettlementExists(ctx context.Context, id int64) (bool, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.Rebind(settlementExists), id)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const createSettlement = `INSERT INTO settlements (id, start_date, end_date) VALUES (?, ?, ?)`

func (q *Queries) CreateSettlement(ctx context.Context, s core.Settlement) error {
	_, err := q.db.ExecContext(ctx, q.dialect.Rebind(createSettlement),
		s.ID,
		q.dialect.instantArg(s.Start),
		q.dialect.instantArg(s.End),
	)
	return err
}

const createTransaction = `INSERT INTO transactions (
    settlement_id, transaction_type, sku, order_id, shipment_id, marketplace_name,
    amount_type, amount_description, amount, quantity, posted_date_time
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`

func (q *Queries) CreateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.Rebind(createTransaction),
		t.SettlementID,
		t.TransactionType,
		t.SKU,
		t.OrderID,
		t.ShipmentID,
		t.MarketplaceName,
		t.AmountType,
		t.AmountDescription,
		t.Amount.String(),
		t.Quantity,
		q.dialect.instantArg(t.PostedAt),
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const listTransactionsInRange = `SELECT id, settlement_id, transaction_type, sku, order_id, shipment_id,
    marketplace_name, amount_type, amount_description, amount, quantity, posted_date_time
FROM transactions
WHERE %s
ORDER BY %s ASC, id ASC`

func (q *Queries) ListTransactionsInRange(ctx context.Context, from, to time.Time) ([]core.Transaction, error) {
	query := fmt.Sprintf(listTransactionsInRange, q.dialect.rangeWhere("posted_date_time"), q.dialect.orderBy("posted_date_time"))
	rows, err := q.db.QueryContext(ctx, q.dialect.Rebind(query), q.dialect.rangeArgs(from, to)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Transaction
	for rows.Next() {
		var (
			i      core.Transaction
			amount decimal.Decimal
			posted = instant{loc: q.loc}
		)
		if err := rows.Scan(
			&i.ID,
			&i.SettlementID,
			&i.TransactionType,
			&i.SKU,
			&i.OrderID,
			&i.ShipmentID,
			&i.MarketplaceName,
			&i.AmountType,
			&i.AmountDescription,
			&amount,
			&i.Quantity,
			&posted,
		); err != nil {
			return nil, err
		}
		i.Amount = amount
		i.PostedAt = posted.Time
		if within(i.PostedAt, from, to) {
			items = append(items, i)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(items, func(a, b core.Transaction) int {
		return a.PostedAt.Compare(b.PostedAt)
	})
	return items, nil
}

const listSettlements = `SELECT id, start_date, end_date FROM settlements ORDER BY start_date ASC, id ASC`

func (q *Queries) ListSettlements(ctx context.Context) ([]core.Settlement, error) {
	rows, err := q.db.QueryContext(ctx, listSettlements)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Settlement
	for rows.Next() {
		var (
			i          core.Settlement
			start, end = instant{loc: q.loc}, instant{loc: q.loc}
		)
		if err := rows.Scan(&i.ID, &start, &end); err != nil {
			return nil, err
		}
		i.Start, i.End = start.Time, end.Time
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const (
	listCapexInRange = `SELECT id, date, amount, description, category FROM capex
WHERE %s ORDER BY %s ASC, id ASC`
	listOpexInRange = `SELECT id, date, amount, description, category FROM opex
WHERE %s ORDER BY %s ASC, id ASC`
)

func (q *Queries) ListCapexInRange(ctx context.Context, from, to time.Time) ([]core.LedgerRecord, error) {
	return q.listLedger(ctx, listCapexInRange, core.Capex, from, to)
}

func (q *Queries) ListOpexInRange(ctx context.Context, from, to time.Time) ([]core.LedgerRecord, error) {
	return q.listLedger(ctx, listOpexInRange, core.Opex, from, to)
}

func (q *Queries) listLedger(ctx context.Context, query string, class core.ExpenditureClass, from, to time.Time) ([]core.LedgerRecord, error) {
	query = fmt.Sprintf(query, q.dialect.rangeWhere("date"), q.dialect.orderBy("date"))
	rows, err := q.db.QueryContext(ctx, q.dialect.Rebind(query), q.dialect.rangeArgs(from, to)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.LedgerRecord
	for rows.Next() {
		var (
			i      core.LedgerRecord
			date   = instant{loc: q.loc}
			amount decimal.Decimal
		)
		if err := rows.Scan(&i.ID, &date, &amount, &i.Description, &i.Category); err != nil {
			return nil, err
		}
		i.Class = class
		i.Date = date.Time
		i.Amount = amount
		if within(i.Date, from, to) {
			items = append(items, i)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(items, func(a, b core.LedgerRecord) int {
		return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.ID, b.ID))
	})
	return items, nil
}

const (
	createCapex = `INSERT INTO capex (date, amount, description, category) VALUES (?, ?, ?, ?)`
	createOpex  = `INSERT INTO opex (date, amount, description, category) VALUES (?, ?, ?, ?)`
)

func (q *Queries) CreateLedgerRecord(ctx context.Context, r core.LedgerRecord) error {
	query := createOpex
	if r.Class == core.Capex {
		query = createCapex
	}
	_, err := q.db.ExecContext(ctx, q.dialect.Rebind(query),
		q.dialect.instantArg(r.Date),
		r.Amount.String(),
		r.Description,
		r.Category,
	)
	return err
}

const countRows = `SELECT
    (SELECT COUNT(*) FROM settlements),
    (SELECT COUNT(*) FROM transactions)`

type CountRowsRow struct {
	Settlements  int64
	Transactions int64
}

func (q *Queries) CountRows(ctx context.Context) (CountRowsRow, error) {
	row := q.db.QueryRowContext(ctx, countRows)
	var i CountRowsRow
	err := row.Scan(&i.Settlements, &i.Transactions)
	return i, err
}
