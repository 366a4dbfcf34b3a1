package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"finlogs/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate")
)

// SumFilter selects the transactions feeding a single aggregate sum. Empty
// slices match everything; nil time pointers leave that bound open. From/To
// are inclusive, Before is strict.
type SumFilter struct {
	Types      []string
	Modes      []string
	PartyTypes []string
	On         *time.Time
	From       *time.Time
	To         *time.Time
	Before     *time.Time
}

// ListFilter pages transaction listings. On pins a single date; otherwise
// From/To bound the range inclusively.
type ListFilter struct {
	On    *time.Time
	From  *time.Time
	To    *time.Time
	Page  int
	Limit int
}

// Repository is the persistence contract the reporting engine consumes.
// Every method is scoped by an explicit tenant so concurrent multi-tenant
// requests never share ambient state.
type Repository interface {
	CreateParty(ctx context.Context, tenant string, party domain.Party) (*domain.Party, error)
	GetPartyByNormalizedName(ctx context.Context, tenant string, normalized string) (*domain.Party, error)
	ListParties(ctx context.Context, tenant string) ([]domain.Party, error)
	RenameParty(ctx context.Context, tenant string, partyID int64, name string, normalized string) error
	CountPartiesByType(ctx context.Context, tenant string, partyType string) (int, error)

	AddTransaction(ctx context.Context, tenant string, txn domain.Transaction) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, tenant string, id int64) (*domain.Transaction, error)
	GetTransactionView(ctx context.Context, tenant string, id int64) (*domain.TransactionView, error)
	UpdateTransaction(ctx context.Context, tenant string, id int64, patch domain.TransactionPatch) error
	DeleteTransaction(ctx context.Context, tenant string, id int64) error
	ListTransactions(ctx context.Context, tenant string, filter ListFilter) ([]domain.TransactionView, int, error)
	ListPartyTransactions(ctx context.Context, tenant string, partyID int64, from *time.Time, to *time.Time) ([]domain.Transaction, error)
	ListTransactionsByModes(ctx context.Context, tenant string, modes []string) ([]domain.TransactionView, error)
	ListTransactionsByType(ctx context.Context, tenant string, txnType string) ([]domain.TransactionView, error)

	SumAmounts(ctx context.Context, tenant string, filter SumFilter) (decimal.Decimal, error)
	SumSigned(ctx context.Context, tenant string, positiveType string) (decimal.Decimal, error)
	PartySaleReceiptTotals(ctx context.Context, tenant string, partyType string) ([]domain.PartyFlow, error)
	DailyAggregates(ctx context.Context, tenant string, from time.Time, to time.Time) ([]domain.DayAggregate, error)
	ActivityDates(ctx context.Context, tenant string, from time.Time, to time.Time) ([]time.Time, error)

	ListDailyCash(ctx context.Context, tenant string, from time.Time, to time.Time) ([]domain.DailyCashCount, error)
	LatestDailyCashBefore(ctx context.Context, tenant string, date time.Time) (*domain.DailyCashCount, error)
	UpsertDailyCash(ctx context.Context, tenant string, date time.Time, amount decimal.Decimal) error

	GetNumericSetting(ctx context.Context, tenant string, key string) (decimal.Decimal, error)
	SetNumericSetting(ctx context.Context, tenant string, key string, value decimal.Decimal) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, tenant string, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	DeleteUser(ctx context.Context, username string) error
}
