package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"finlogs/backend/internal/domain"
	"finlogs/backend/internal/store"
)

// Store is the postgres-backed Repository. All reads and writes run under a
// per-query timeout so a wedged connection cannot stall a request forever.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open connects, configures the pool and verifies the database is reachable.
func Open(databaseURL string, queryTimeout time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &Store{db: db, queryTimeout: queryTimeout}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// Bootstrap creates the schema when it does not exist yet. Statements are
// idempotent so startup is safe against an already-initialized database.
func (s *Store) Bootstrap(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS parties (
			id BIGSERIAL PRIMARY KEY,
			tenant TEXT NOT NULL,
			name TEXT NOT NULL,
			normalized_name TEXT NOT NULL,
			party_type TEXT NOT NULL,
			credit_allowed BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (tenant, normalized_name)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			tenant TEXT NOT NULL,
			txn_date DATE NOT NULL,
			bill_no TEXT NOT NULL DEFAULT '',
			party_id BIGINT NOT NULL REFERENCES parties(id),
			txn_type TEXT NOT NULL,
			mode TEXT NOT NULL,
			amount NUMERIC(14,2) NOT NULL CHECK (amount >= 0)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_tenant_date ON transactions (tenant, txn_date)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_tenant_party ON transactions (tenant, party_id)`,
		`CREATE TABLE IF NOT EXISTS daily_cash (
			tenant TEXT NOT NULL,
			cash_date DATE NOT NULL,
			amount NUMERIC(14,2) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (tenant, cash_date)
		)`,
		`CREATE TABLE IF NOT EXISTS app_settings (
			tenant TEXT NOT NULL,
			key TEXT NOT NULL,
			value NUMERIC(14,2) NOT NULL,
			PRIMARY KEY (tenant, key)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			tenant TEXT NOT NULL,
			username TEXT NOT NULL,
			action TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant_created ON audit_logs (tenant, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// placeholders renders "$start, $start+1, ..." for an IN clause.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func (s *Store) CreateParty(ctx context.Context, tenant string, party domain.Party) (*domain.Party, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		INSERT INTO parties (tenant, name, normalized_name, party_type, credit_allowed)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, q, tenant, party.Name, party.NormalizedName, party.Type, party.CreditAllowed).Scan(&party.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, fmt.Errorf("create party: %w", err)
	}
	return &party, nil
}

func (s *Store) GetPartyByNormalizedName(ctx context.Context, tenant string, normalized string) (*domain.Party, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		SELECT id, name, normalized_name, party_type, credit_allowed
		FROM parties WHERE tenant = $1 AND normalized_name = $2`
	var party domain.Party
	err := s.db.QueryRowContext(ctx, q, tenant, normalized).
		Scan(&party.ID, &party.Name, &party.NormalizedName, &party.Type, &party.CreditAllowed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get party: %w", err)
	}
	return &party, nil
}

func (s *Store) ListParties(ctx context.Context, tenant string) ([]domain.Party, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		SELECT id, name, normalized_name, party_type, credit_allowed
		FROM parties WHERE tenant = $1 ORDER BY name`
	rows, err := s.db.QueryContext(ctx, q, tenant)
	if err != nil {
		return nil, fmt.Errorf("list parties: %w", err)
	}
	defer rows.Close()

	parties := make([]domain.Party, 0, 16)
	for rows.Next() {
		var party domain.Party
		if err := rows.Scan(&party.ID, &party.Name, &party.NormalizedName, &party.Type, &party.CreditAllowed); err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		parties = append(parties, party)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list parties: %w", err)
	}
	return parties, nil
}

func (s *Store) RenameParty(ctx context.Context, tenant string, partyID int64, name string, normalized string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		UPDATE parties SET name = $3, normalized_name = $4
		WHERE tenant = $1 AND id = $2`
	res, err := s.db.ExecContext(ctx, q, tenant, partyID, name, normalized)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("rename party: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename party: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountPartiesByType(ctx context.Context, tenant string, partyType string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `SELECT COUNT(*) FROM parties WHERE tenant = $1 AND party_type = $2`
	var count int
	if err := s.db.QueryRowContext(ctx, q, tenant, partyType).Scan(&count); err != nil {
		return 0, fmt.Errorf("count parties: %w", err)
	}
	return count, nil
}

func (s *Store) AddTransaction(ctx context.Context, tenant string, txn domain.Transaction) (*domain.Transaction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		INSERT INTO transactions (tenant, txn_date, bill_no, party_id, txn_type, mode, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, q, tenant, txn.Date, txn.BillNo, txn.PartyID, txn.Type, txn.Mode, txn.Amount).Scan(&txn.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("add transaction: %w", err)
	}
	return &txn, nil
}

func (s *Store) GetTransaction(ctx context.Context, tenant string, id int64) (*domain.Transaction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		SELECT id, txn_date, bill_no, party_id, txn_type, mode, amount
		FROM transactions WHERE tenant = $1 AND id = $2`
	var txn domain.Transaction
	err := s.db.QueryRowContext(ctx, q, tenant, id).
		Scan(&txn.ID, &txn.Date, &txn.BillNo, &txn.PartyID, &txn.Type, &txn.Mode, &txn.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &txn, nil
}

func (s *Store) GetTransactionView(ctx context.Context, tenant string, id int64) (*domain.TransactionView, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		SELECT t.id, t.txn_date, t.bill_no, COALESCE(p.name, ''), t.txn_type, t.mode, t.amount
		FROM transactions t
		LEFT JOIN parties p ON p.id = t.party_id AND p.tenant = t.tenant
		WHERE t.tenant = $1 AND t.id = $2`
	var view domain.TransactionView
	var date time.Time
	err := s.db.QueryRowContext(ctx, q, tenant, id).
		Scan(&view.ID, &date, &view.BillNo, &view.Party, &view.Type, &view.Mode, &view.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction view: %w", err)
	}
	view.Date = date.Format(domain.DateLayout)
	return &view, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tenant string, id int64, patch domain.TransactionPatch) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var column string
	var value any
	switch {
	case patch.Date != nil:
		column, value = "txn_date", *patch.Date
	case patch.BillNo != nil:
		column, value = "bill_no", *patch.BillNo
	case patch.Type != nil:
		column, value = "txn_type", *patch.Type
	case patch.Mode != nil:
		column, value = "mode", *patch.Mode
	case patch.Amount != nil:
		if patch.Amount.IsNegative() {
			return store.ErrInvalidInput
		}
		column, value = "amount", *patch.Amount
	default:
		return store.ErrInvalidInput
	}

	q := fmt.Sprintf(`UPDATE transactions SET %s = $3 WHERE tenant = $1 AND id = $2`, column)
	res, err := s.db.ExecContext(ctx, q, tenant, id, value)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, tenant string, id int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `DELETE FROM transactions WHERE tenant = $1 AND id = $2`
	res, err := s.db.ExecContext(ctx, q, tenant, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, tenant string, filter store.ListFilter) ([]domain.TransactionView, int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where := []string{"t.tenant = $1"}
	args := []any{tenant}
	if filter.On != nil {
		args = append(args, *filter.On)
		where = append(where, fmt.Sprintf("t.txn_date = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("t.txn_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("t.txn_date <= $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	countQ := `SELECT COUNT(*) FROM transactions t WHERE ` + clause
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	args = append(args, limit, (page-1)*limit)

	q := fmt.Sprintf(`
		SELECT t.id, t.txn_date, t.bill_no, COALESCE(p.name, ''), t.txn_type, t.mode, t.amount
		FROM transactions t
		LEFT JOIN parties p ON p.id = t.party_id AND p.tenant = t.tenant
		WHERE %s
		ORDER BY t.txn_date DESC, t.id DESC
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	views, err := scanViews(rows)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

func scanViews(rows *sql.Rows) ([]domain.TransactionView, error) {
	views := make([]domain.TransactionView, 0, 64)
	for rows.Next() {
		var view domain.TransactionView
		var date time.Time
		if err := rows.Scan(&view.ID, &date, &view.BillNo, &view.Party, &view.Type, &view.Mode, &view.Amount); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		view.Date = date.Format(domain.DateLayout)
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return views, nil
}

func (s *Store) ListPartyTransactions(ctx context.Context, tenant string, partyID int64, from *time.Time, to *time.Time) ([]domain.Transaction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where := []string{"tenant = $1", "party_id = $2"}
	args := []any{tenant, partyID}
	if from != nil {
		args = append(args, *from)
		where = append(where, fmt.Sprintf("txn_date >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		where = append(where, fmt.Sprintf("txn_date <= $%d", len(args)))
	}

	q := fmt.Sprintf(`
		SELECT id, txn_date, bill_no, party_id, txn_type, mode, amount
		FROM transactions WHERE %s
		ORDER BY txn_date, id`, strings.Join(where, " AND "))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list party transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		var txn domain.Transaction
		if err := rows.Scan(&txn.ID, &txn.Date, &txn.BillNo, &txn.PartyID, &txn.Type, &txn.Mode, &txn.Amount); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list party transactions: %w", err)
	}
	return txns, nil
}

func (s *Store) ListTransactionsByModes(ctx context.Context, tenant string, modes []string) ([]domain.TransactionView, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	args := []any{tenant}
	modeClause := ""
	if len(modes) > 0 {
		modeClause = fmt.Sprintf(" AND t.mode IN (%s)", placeholders(2, len(modes)))
		for _, m := range modes {
			args = append(args, m)
		}
	}

	q := fmt.Sprintf(`
		SELECT t.id, t.txn_date, t.bill_no, COALESCE(p.name, ''), t.txn_type, t.mode, t.amount
		FROM transactions t
		LEFT JOIN parties p ON p.id = t.party_id AND p.tenant = t.tenant
		WHERE t.tenant = $1%s
		ORDER BY t.txn_date, t.id`, modeClause)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions by mode: %w", err)
	}
	defer rows.Close()
	return scanViews(rows)
}

func (s *Store) ListTransactionsByType(ctx context.Context, tenant string, txnType string) ([]domain.TransactionView, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		SELECT t.id, t.txn_date, t.bill_no, COALESCE(p.name, ''), t.txn_type, t.mode, t.amount
		FROM transactions t
		LEFT JOIN parties p ON p.id = t.party_id AND p.tenant = t.tenant
		WHERE t.tenant = $1 AND t.txn_type = $2
		ORDER BY t.txn_date, t.id`
	rows, err := s.db.QueryContext(ctx, q, tenant, txnType)
	if err != nil {
		return nil, fmt.Errorf("list transactions by type: %w", err)
	}
	defer rows.Close()
	return scanViews(rows)
}

func (s *Store) SumAmounts(ctx context.Context, tenant string, filter store.SumFilter) (decimal.Decimal, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where := []string{"t.tenant = $1"}
	args := []any{tenant}
	join := ""

	if len(filter.Types) > 0 {
		clause := fmt.Sprintf("t.txn_type IN (%s)", placeholders(len(args)+1, len(filter.Types)))
		for _, v := range filter.Types {
			args = append(args, v)
		}
		where = append(where, clause)
	}
	if len(filter.Modes) > 0 {
		clause := fmt.Sprintf("t.mode IN (%s)", placeholders(len(args)+1, len(filter.Modes)))
		for _, v := range filter.Modes {
			args = append(args, v)
		}
		where = append(where, clause)
	}
	if len(filter.PartyTypes) > 0 {
		join = " JOIN parties p ON p.id = t.party_id AND p.tenant = t.tenant"
		clause := fmt.Sprintf("p.party_type IN (%s)", placeholders(len(args)+1, len(filter.PartyTypes)))
		for _, v := range filter.PartyTypes {
			args = append(args, v)
		}
		where = append(where, clause)
	}
	if filter.On != nil {
		args = append(args, *filter.On)
		where = append(where, fmt.Sprintf("t.txn_date = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("t.txn_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("t.txn_date <= $%d", len(args)))
	}
	if filter.Before != nil {
		args = append(args, *filter.Before)
		where = append(where, fmt.Sprintf("t.txn_date < $%d", len(args)))
	}

	q := fmt.Sprintf(`SELECT COALESCE(SUM(t.amount), 0) FROM transactions t%s WHERE %s`,
		join, strings.Join(where, " AND "))
	var total decimal.Decimal
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum amounts: %w", err)
	}
	return total, nil
}

func (s *Store) SumSigned(ctx context.Context, tenant string, positiveType string) (decimal.Decimal, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		SELECT COALESCE(SUM(CASE WHEN txn_type = $2 THEN amount ELSE -amount END), 0)
		FROM transactions WHERE tenant = $1`
	var total decimal.Decimal
	if err := s.db.QueryRowContext(ctx, q, tenant, positiveType).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum signed: %w", err)
	}
	return total, nil
}

func (s *Store) PartySaleReceiptTotals(ctx context.Context, tenant string, partyType string) ([]domain.PartyFlow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		SELECT p.name,
			COALESCE(SUM(CASE WHEN t.txn_type = 'Sale' THEN t.amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN t.txn_type = 'Receipt' THEN t.amount ELSE 0 END), 0)
		FROM parties p
		LEFT JOIN transactions t ON t.party_id = p.id AND t.tenant = p.tenant
		WHERE p.tenant = $1 AND p.party_type = $2
		GROUP BY p.name
		ORDER BY p.name`
	rows, err := s.db.QueryContext(ctx, q, tenant, partyType)
	if err != nil {
		return nil, fmt.Errorf("party totals: %w", err)
	}
	defer rows.Close()

	flows := make([]domain.PartyFlow, 0, 16)
	for rows.Next() {
		var flow domain.PartyFlow
		if err := rows.Scan(&flow.Party, &flow.Sales, &flow.Receipts); err != nil {
			return nil, fmt.Errorf("scan party flow: %w", err)
		}
		flows = append(flows, flow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("party totals: %w", err)
	}
	return flows, nil
}

func (s *Store) DailyAggregates(ctx context.Context, tenant string, from time.Time, to time.Time) ([]domain.DayAggregate, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	bankModes := domain.BankClassModes()
	args := []any{tenant, from, to}
	bankIn := placeholders(len(args)+1, len(bankModes))
	for _, m := range bankModes {
		args = append(args, m)
	}

	q := fmt.Sprintf(`
		SELECT t.txn_date,
			COALESCE(SUM(CASE WHEN t.txn_type = 'Sale' THEN t.amount ELSE 0 END), 0) AS total_sales,
			COALESCE(SUM(CASE WHEN (t.mode = 'Cash' AND t.txn_type IN ('Sale', 'Receipt'))
				OR (t.mode = 'Credit' AND t.txn_type = 'Receipt') THEN t.amount ELSE 0 END), 0) AS cash_in,
			COALESCE(SUM(CASE WHEN t.mode = 'Cash' AND t.txn_type = 'Expense' THEN t.amount ELSE 0 END), 0) AS cash_expense,
			COALESCE(SUM(CASE WHEN t.mode IN (%s) AND t.txn_type IN ('Sale', 'Receipt') THEN t.amount ELSE 0 END), 0) AS bank_in,
			COALESCE(SUM(CASE WHEN t.txn_type = 'Sale'
				AND (p.party_type = 'Credit Customer' OR t.mode = 'Credit') THEN t.amount ELSE 0 END), 0) AS credit_sales,
			COALESCE(SUM(CASE WHEN t.txn_type = 'Receipt'
				AND p.party_type = 'Credit Customer' THEN t.amount ELSE 0 END), 0) AS credit_receipts
		FROM transactions t
		LEFT JOIN parties p ON p.id = t.party_id AND p.tenant = t.tenant
		WHERE t.tenant = $1 AND t.txn_date BETWEEN $2 AND $3
		GROUP BY t.txn_date
		ORDER BY t.txn_date`, bankIn)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("daily aggregates: %w", err)
	}
	defer rows.Close()

	aggs := make([]domain.DayAggregate, 0, 31)
	for rows.Next() {
		var agg domain.DayAggregate
		if err := rows.Scan(&agg.Date, &agg.TotalSales, &agg.CashIn, &agg.CashExpense,
			&agg.BankIn, &agg.CreditSales, &agg.CreditReceipts); err != nil {
			return nil, fmt.Errorf("scan day aggregate: %w", err)
		}
		aggs = append(aggs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("daily aggregates: %w", err)
	}
	return aggs, nil
}

func (s *Store) ActivityDates(ctx context.Context, tenant string, from time.Time, to time.Time) ([]time.Time, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		SELECT DISTINCT d FROM (
			SELECT txn_date AS d FROM transactions WHERE tenant = $1 AND txn_date BETWEEN $2 AND $3
			UNION
			SELECT cash_date FROM daily_cash WHERE tenant = $1 AND cash_date BETWEEN $2 AND $3
		) dates
		ORDER BY d`
	rows, err := s.db.QueryContext(ctx, q, tenant, from, to)
	if err != nil {
		return nil, fmt.Errorf("activity dates: %w", err)
	}
	defer rows.Close()

	dates := make([]time.Time, 0, 31)
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan activity date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activity dates: %w", err)
	}
	return dates, nil
}

func (s *Store) ListDailyCash(ctx context.Context, tenant string, from time.Time, to time.Time) ([]domain.DailyCashCount, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		SELECT cash_date, amount, updated_at
		FROM daily_cash
		WHERE tenant = $1 AND cash_date BETWEEN $2 AND $3
		ORDER BY cash_date`
	rows, err := s.db.QueryContext(ctx, q, tenant, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily cash: %w", err)
	}
	defer rows.Close()

	counts := make([]domain.DailyCashCount, 0, 31)
	for rows.Next() {
		var count domain.DailyCashCount
		if err := rows.Scan(&count.Date, &count.Amount, &count.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan daily cash: %w", err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list daily cash: %w", err)
	}
	return counts, nil
}

func (s *Store) LatestDailyCashBefore(ctx context.Context, tenant string, date time.Time) (*domain.DailyCashCount, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		SELECT cash_date, amount, updated_at
		FROM daily_cash
		WHERE tenant = $1 AND cash_date < $2
		ORDER BY cash_date DESC
		LIMIT 1`
	var count domain.DailyCashCount
	err := s.db.QueryRowContext(ctx, q, tenant, date).Scan(&count.Date, &count.Amount, &count.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest daily cash: %w", err)
	}
	return &count, nil
}

func (s *Store) UpsertDailyCash(ctx context.Context, tenant string, date time.Time, amount decimal.Decimal) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		INSERT INTO daily_cash (tenant, cash_date, amount, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant, cash_date) DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, q, tenant, date, amount); err != nil {
		return fmt.Errorf("upsert daily cash: %w", err)
	}
	return nil
}

func (s *Store) GetNumericSetting(ctx context.Context, tenant string, key string) (decimal.Decimal, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `SELECT value FROM app_settings WHERE tenant = $1 AND key = $2`
	var value decimal.Decimal
	err := s.db.QueryRowContext(ctx, q, tenant, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

func (s *Store) SetNumericSetting(ctx context.Context, tenant string, key string, value decimal.Decimal) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		INSERT INTO app_settings (tenant, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant, key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := s.db.ExecContext(ctx, q, tenant, key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		INSERT INTO audit_logs (id, tenant, username, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, q, entry.ID, entry.Tenant, entry.Username, entry.Action, entry.Details, createdAt); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, tenant string, limit int) ([]domain.AuditLog, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if limit < 1 {
		limit = 100
	}
	const q = `
		SELECT id, tenant, username, action, details, created_at
		FROM audit_logs WHERE tenant = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.Tenant, &entry.Username, &entry.Action, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, $4, NOW())`
	if _, err := s.db.ExecContext(ctx, q, user.Username, user.Password, user.Role, user.Active); err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `SELECT username, password_hash, role, active, created_at FROM users ORDER BY username`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `UPDATE users SET password_hash = $2 WHERE username = $1`
	res, err := s.db.ExecContext(ctx, q, username, password)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, username string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `DELETE FROM users WHERE username = $1`
	res, err := s.db.ExecContext(ctx, q, username)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
