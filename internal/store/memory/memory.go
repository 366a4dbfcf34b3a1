package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"finlogs/backend/internal/domain"
	"finlogs/backend/internal/store"
)

// Store is an in-memory Repository used in dev mode and by the test suites.
// All returned values are copies; callers never share slices or maps with
// the store.
type Store struct {
	mu          sync.RWMutex
	tenants     map[string]*tenantState
	users       map[string]domain.UserAccount
	auditLogs   []domain.AuditLog
	nextPartyID int64
	nextTxnID   int64
}

type tenantState struct {
	parties      map[int64]domain.Party
	partyByNorm  map[string]int64
	transactions map[int64]domain.Transaction
	dailyCash    map[string]domain.DailyCashCount
	settings     map[string]decimal.Decimal
}

func newTenantState() *tenantState {
	return &tenantState{
		parties:      make(map[int64]domain.Party),
		partyByNorm:  make(map[string]int64),
		transactions: make(map[int64]domain.Transaction),
		dailyCash:    make(map[string]domain.DailyCashCount),
		settings:     make(map[string]decimal.Decimal),
	}
}

func New() *Store {
	return &Store{
		tenants:   make(map[string]*tenantState),
		users:     make(map[string]domain.UserAccount),
		auditLogs: make([]domain.AuditLog, 0, 128),
	}
}

// NewSeeded builds a store with the default admin and accounts users.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_ACCOUNTS_PASSWORD; dev
// defaults are used with a warning when unset. The in-memory store is never
// used in production (postgres takes over when DATABASE_URL is set).
func NewSeeded() *Store {
	s := New()
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin1020")
	accountsPwd := envOr("SEED_ACCOUNTS_PASSWORD", "user123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_ACCOUNTS_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_ACCOUNTS_PASSWORD to override.")
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"user", accountsPwd, "accounts"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		s.users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// tenant returns the state bucket for a tenant, creating it on first touch.
// Callers must hold the write lock; read-only paths use tenantRead.
func (s *Store) tenant(name string) *tenantState {
	ts, ok := s.tenants[name]
	if !ok {
		ts = newTenantState()
		s.tenants[name] = ts
	}
	return ts
}

func (s *Store) tenantRead(name string) (*tenantState, bool) {
	ts, ok := s.tenants[name]
	return ts, ok
}

func dateKey(t time.Time) string {
	return t.Format(domain.DateLayout)
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func inRange(d time.Time, from time.Time, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}

func (s *Store) CreateParty(_ context.Context, tenant string, party domain.Party) (*domain.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(party.Name) == "" || party.NormalizedName == "" {
		return nil, store.ErrInvalidInput
	}

	ts := s.tenant(tenant)
	if _, exists := ts.partyByNorm[party.NormalizedName]; exists {
		return nil, store.ErrDuplicate
	}

	s.nextPartyID++
	party.ID = s.nextPartyID
	ts.parties[party.ID] = party
	ts.partyByNorm[party.NormalizedName] = party.ID

	created := party
	return &created, nil
}

func (s *Store) GetPartyByNormalizedName(_ context.Context, tenant string, normalized string) (*domain.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tenantRead(tenant)
	if !ok {
		return nil, store.ErrNotFound
	}
	id, ok := ts.partyByNorm[normalized]
	if !ok {
		return nil, store.ErrNotFound
	}
	party := ts.parties[id]
	return &party, nil
}

func (s *Store) ListParties(_ context.Context, tenant string) ([]domain.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parties := make([]domain.Party, 0, 16)
	if ts, ok := s.tenantRead(tenant); ok {
		for _, p := range ts.parties {
			parties = append(parties, p)
		}
	}
	slices.SortFunc(parties, func(a, b domain.Party) int {
		return strings.Compare(a.Name, b.Name)
	})
	return parties, nil
}

func (s *Store) RenameParty(_ context.Context, tenant string, partyID int64, name string, normalized string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.tenant(tenant)
	party, ok := ts.parties[partyID]
	if !ok {
		return store.ErrNotFound
	}
	if existingID, taken := ts.partyByNorm[normalized]; taken && existingID != partyID {
		return store.ErrDuplicate
	}

	delete(ts.partyByNorm, party.NormalizedName)
	party.Name = name
	party.NormalizedName = normalized
	ts.parties[partyID] = party
	ts.partyByNorm[normalized] = partyID
	return nil
}

func (s *Store) CountPartiesByType(_ context.Context, tenant string, partyType string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	if ts, ok := s.tenantRead(tenant); ok {
		for _, p := range ts.parties {
			if p.Type == partyType {
				count++
			}
		}
	}
	return count, nil
}

func (s *Store) AddTransaction(_ context.Context, tenant string, txn domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.tenant(tenant)
	if _, ok := ts.parties[txn.PartyID]; !ok {
		return nil, store.ErrNotFound
	}
	if txn.Amount.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.nextTxnID++
	txn.ID = s.nextTxnID
	txn.Date = truncateDate(txn.Date)
	ts.transactions[txn.ID] = txn

	created := txn
	return &created, nil
}

func (s *Store) GetTransaction(_ context.Context, tenant string, id int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tenantRead(tenant)
	if !ok {
		return nil, store.ErrNotFound
	}
	txn, ok := ts.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &txn, nil
}

func (s *Store) GetTransactionView(_ context.Context, tenant string, id int64) (*domain.TransactionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tenantRead(tenant)
	if !ok {
		return nil, store.ErrNotFound
	}
	txn, ok := ts.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	view := ts.toView(txn)
	return &view, nil
}

func (ts *tenantState) toView(txn domain.Transaction) domain.TransactionView {
	partyName := ""
	if party, ok := ts.parties[txn.PartyID]; ok {
		partyName = party.Name
	}
	return domain.TransactionView{
		ID:     txn.ID,
		Date:   dateKey(txn.Date),
		BillNo: txn.BillNo,
		Party:  partyName,
		Type:   txn.Type,
		Mode:   txn.Mode,
		Amount: txn.Amount,
	}
}

func (s *Store) UpdateTransaction(_ context.Context, tenant string, id int64, patch domain.TransactionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.tenant(tenant)
	txn, ok := ts.transactions[id]
	if !ok {
		return store.ErrNotFound
	}

	switch {
	case patch.Date != nil:
		txn.Date = truncateDate(*patch.Date)
	case patch.BillNo != nil:
		txn.BillNo = *patch.BillNo
	case patch.Type != nil:
		txn.Type = *patch.Type
	case patch.Mode != nil:
		txn.Mode = *patch.Mode
	case patch.Amount != nil:
		if patch.Amount.IsNegative() {
			return store.ErrInvalidInput
		}
		txn.Amount = *patch.Amount
	default:
		return store.ErrInvalidInput
	}

	ts.transactions[id] = txn
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, tenant string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.tenant(tenant)
	if _, ok := ts.transactions[id]; !ok {
		return store.ErrNotFound
	}
	delete(ts.transactions, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, tenant string, filter store.ListFilter) ([]domain.TransactionView, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]domain.TransactionView, 0, 64)
	ts, ok := s.tenantRead(tenant)
	if !ok {
		return views, 0, nil
	}

	matched := make([]domain.Transaction, 0, len(ts.transactions))
	for _, txn := range ts.transactions {
		if filter.On != nil && !txn.Date.Equal(truncateDate(*filter.On)) {
			continue
		}
		if filter.From != nil && txn.Date.Before(truncateDate(*filter.From)) {
			continue
		}
		if filter.To != nil && txn.Date.After(truncateDate(*filter.To)) {
			continue
		}
		matched = append(matched, txn)
	}

	// Most recent first, id breaking date ties.
	slices.SortFunc(matched, func(a, b domain.Transaction) int {
		if !a.Date.Equal(b.Date) {
			if a.Date.After(b.Date) {
				return -1
			}
			return 1
		}
		return int(b.ID - a.ID)
	})

	total := len(matched)
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	offset := (page - 1) * limit
	if offset >= total {
		return views, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	for _, txn := range matched[offset:end] {
		views = append(views, ts.toView(txn))
	}
	return views, total, nil
}

func (s *Store) ListPartyTransactions(_ context.Context, tenant string, partyID int64, from *time.Time, to *time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 32)
	ts, ok := s.tenantRead(tenant)
	if !ok {
		return result, nil
	}
	for _, txn := range ts.transactions {
		if txn.PartyID != partyID {
			continue
		}
		if from != nil && txn.Date.Before(truncateDate(*from)) {
			continue
		}
		if to != nil && txn.Date.After(truncateDate(*to)) {
			continue
		}
		result = append(result, txn)
	}
	sortAscending(result)
	return result, nil
}

// sortAscending orders by date, insertion id breaking ties; the ledger and
// account reports depend on this ordering for running balances.
func sortAscending(txns []domain.Transaction) {
	slices.SortFunc(txns, func(a, b domain.Transaction) int {
		if !a.Date.Equal(b.Date) {
			if a.Date.Before(b.Date) {
				return -1
			}
			return 1
		}
		return int(a.ID - b.ID)
	})
}

// modeMatches mirrors the SQL IN list exactly: matching is case-sensitive,
// legacy spellings only count when the caller names them.
func modeMatches(mode string, modes []string) bool {
	if len(modes) == 0 {
		return true
	}
	return slices.Contains(modes, mode)
}

func typeMatches(txnType string, types []string) bool {
	if len(types) == 0 {
		return true
	}
	return slices.Contains(types, txnType)
}

func (s *Store) ListTransactionsByModes(_ context.Context, tenant string, modes []string) ([]domain.TransactionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]domain.TransactionView, 0, 64)
	ts, ok := s.tenantRead(tenant)
	if !ok {
		return views, nil
	}

	matched := make([]domain.Transaction, 0, len(ts.transactions))
	for _, txn := range ts.transactions {
		if modeMatches(txn.Mode, modes) {
			matched = append(matched, txn)
		}
	}
	sortAscending(matched)
	for _, txn := range matched {
		views = append(views, ts.toView(txn))
	}
	return views, nil
}

func (s *Store) ListTransactionsByType(_ context.Context, tenant string, txnType string) ([]domain.TransactionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]domain.TransactionView, 0, 64)
	ts, ok := s.tenantRead(tenant)
	if !ok {
		return views, nil
	}

	matched := make([]domain.Transaction, 0, len(ts.transactions))
	for _, txn := range ts.transactions {
		if txn.Type == txnType {
			matched = append(matched, txn)
		}
	}
	sortAscending(matched)
	for _, txn := range matched {
		views = append(views, ts.toView(txn))
	}
	return views, nil
}

func (s *Store) SumAmounts(_ context.Context, tenant string, filter store.SumFilter) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	ts, ok := s.tenantRead(tenant)
	if !ok {
		return total, nil
	}

	for _, txn := range ts.transactions {
		if !typeMatches(txn.Type, filter.Types) || !modeMatches(txn.Mode, filter.Modes) {
			continue
		}
		if len(filter.PartyTypes) > 0 {
			party, ok := ts.parties[txn.PartyID]
			if !ok || !slices.Contains(filter.PartyTypes, party.Type) {
				continue
			}
		}
		if filter.On != nil && !txn.Date.Equal(truncateDate(*filter.On)) {
			continue
		}
		if filter.From != nil && txn.Date.Before(truncateDate(*filter.From)) {
			continue
		}
		if filter.To != nil && txn.Date.After(truncateDate(*filter.To)) {
			continue
		}
		if filter.Before != nil && !txn.Date.Before(truncateDate(*filter.Before)) {
			continue
		}
		total = total.Add(txn.Amount)
	}
	return total, nil
}

func (s *Store) SumSigned(_ context.Context, tenant string, positiveType string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	ts, ok := s.tenantRead(tenant)
	if !ok {
		return total, nil
	}
	for _, txn := range ts.transactions {
		if txn.Type == positiveType {
			total = total.Add(txn.Amount)
		} else {
			total = total.Sub(txn.Amount)
		}
	}
	return total, nil
}

func (s *Store) PartySaleReceiptTotals(_ context.Context, tenant string, partyType string) ([]domain.PartyFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flows := make([]domain.PartyFlow, 0, 16)
	ts, ok := s.tenantRead(tenant)
	if !ok {
		return flows, nil
	}

	byParty := make(map[int64]*domain.PartyFlow)
	for id, party := range ts.parties {
		if party.Type == partyType {
			byParty[id] = &domain.PartyFlow{Party: party.Name, Sales: decimal.Zero, Receipts: decimal.Zero}
		}
	}
	for _, txn := range ts.transactions {
		flow, ok := byParty[txn.PartyID]
		if !ok {
			continue
		}
		switch txn.Type {
		case domain.TxnSale:
			flow.Sales = flow.Sales.Add(txn.Amount)
		case domain.TxnReceipt:
			flow.Receipts = flow.Receipts.Add(txn.Amount)
		}
	}
	for _, flow := range byParty {
		flows = append(flows, *flow)
	}
	slices.SortFunc(flows, func(a, b domain.PartyFlow) int {
		return strings.Compare(a.Party, b.Party)
	})
	return flows, nil
}

func (s *Store) DailyAggregates(_ context.Context, tenant string, from time.Time, to time.Time) ([]domain.DayAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	aggs := make([]domain.DayAggregate, 0, 31)
	ts, ok := s.tenantRead(tenant)
	if !ok {
		return aggs, nil
	}

	from = truncateDate(from)
	to = truncateDate(to)
	byDate := make(map[string]*domain.DayAggregate)
	for _, txn := range ts.transactions {
		if !inRange(txn.Date, from, to) {
			continue
		}
		key := dateKey(txn.Date)
		agg, ok := byDate[key]
		if !ok {
			agg = &domain.DayAggregate{
				Date:           txn.Date,
				TotalSales:     decimal.Zero,
				CashIn:         decimal.Zero,
				CashExpense:    decimal.Zero,
				BankIn:         decimal.Zero,
				CreditSales:    decimal.Zero,
				CreditReceipts: decimal.Zero,
			}
			byDate[key] = agg
		}

		isCash := txn.Mode == domain.ModeCash
		isCredit := txn.Mode == domain.ModeCredit
		creditCustomer := false
		if party, ok := ts.parties[txn.PartyID]; ok {
			creditCustomer = party.Type == domain.PartyCreditCustomer
		}

		if txn.Type == domain.TxnSale {
			agg.TotalSales = agg.TotalSales.Add(txn.Amount)
			if creditCustomer || isCredit {
				agg.CreditSales = agg.CreditSales.Add(txn.Amount)
			}
		}
		if (isCash && domain.IsInflow(txn.Type)) || (isCredit && txn.Type == domain.TxnReceipt) {
			agg.CashIn = agg.CashIn.Add(txn.Amount)
		}
		if isCash && txn.Type == domain.TxnExpense {
			agg.CashExpense = agg.CashExpense.Add(txn.Amount)
		}
		if slices.Contains(domain.BankClassModes(), txn.Mode) && domain.IsInflow(txn.Type) {
			agg.BankIn = agg.BankIn.Add(txn.Amount)
		}
		if txn.Type == domain.TxnReceipt && creditCustomer {
			agg.CreditReceipts = agg.CreditReceipts.Add(txn.Amount)
		}
	}

	for _, agg := range byDate {
		aggs = append(aggs, *agg)
	}
	slices.SortFunc(aggs, func(a, b domain.DayAggregate) int {
		return a.Date.Compare(b.Date)
	})
	return aggs, nil
}

func (s *Store) ActivityDates(_ context.Context, tenant string, from time.Time, to time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dates := make([]time.Time, 0, 31)
	ts, ok := s.tenantRead(tenant)
	if !ok {
		return dates, nil
	}

	from = truncateDate(from)
	to = truncateDate(to)
	seen := make(map[string]time.Time)
	for _, txn := range ts.transactions {
		if inRange(txn.Date, from, to) {
			seen[dateKey(txn.Date)] = txn.Date
		}
	}
	for key, count := range ts.dailyCash {
		if inRange(count.Date, from, to) {
			seen[key] = count.Date
		}
	}
	for _, d := range seen {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })
	return dates, nil
}

func (s *Store) ListDailyCash(_ context.Context, tenant string, from time.Time, to time.Time) ([]domain.DailyCashCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make([]domain.DailyCashCount, 0, 31)
	ts, ok := s.tenantRead(tenant)
	if !ok {
		return counts, nil
	}
	from = truncateDate(from)
	to = truncateDate(to)
	for _, count := range ts.dailyCash {
		if inRange(count.Date, from, to) {
			counts = append(counts, count)
		}
	}
	slices.SortFunc(counts, func(a, b domain.DailyCashCount) int {
		return a.Date.Compare(b.Date)
	})
	return counts, nil
}

func (s *Store) LatestDailyCashBefore(_ context.Context, tenant string, date time.Time) (*domain.DailyCashCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tenantRead(tenant)
	if !ok {
		return nil, store.ErrNotFound
	}
	date = truncateDate(date)

	var latest *domain.DailyCashCount
	for _, count := range ts.dailyCash {
		if !count.Date.Before(date) {
			continue
		}
		if latest == nil || count.Date.After(latest.Date) {
			c := count
			latest = &c
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) UpsertDailyCash(_ context.Context, tenant string, date time.Time, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.tenant(tenant)
	date = truncateDate(date)
	ts.dailyCash[dateKey(date)] = domain.DailyCashCount{
		Date:      date,
		Amount:    amount,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *Store) GetNumericSetting(_ context.Context, tenant string, key string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ts, ok := s.tenantRead(tenant); ok {
		if val, ok := ts.settings[key]; ok {
			return val, nil
		}
	}
	return decimal.Zero, nil
}

func (s *Store) SetNumericSetting(_ context.Context, tenant string, key string, value decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tenant(tenant).settings[key] = value
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, tenant string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		if s.auditLogs[i].Tenant == tenant {
			logs = append(logs, s.auditLogs[i])
		}
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrDuplicate
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

func (s *Store) DeleteUser(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, username)
	return nil
}
