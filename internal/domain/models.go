package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for all transaction and cash-count dates.
const DateLayout = "2006-01-02"

// Transaction types the reporting logic treats specially. The type column is
// an open string set; anything outside this list still flows through the
// ledger with the default classification.
const (
	TxnSale       = "Sale"
	TxnReceipt    = "Receipt"
	TxnSaleReturn = "Sale Return"
	TxnExpense    = "Expense"
	TxnPurchase   = "Purchase"
)

// Party types.
const (
	PartyCustomer       = "Customer"
	PartyCreditCustomer = "Credit Customer"
	PartyBank           = "Bank"
	PartySupplier       = "Supplier"
)

// Payment modes after normalization.
const (
	ModeCash   = "Cash"
	ModeBank   = "Bank"
	ModeUPI    = "UPI"
	ModeCredit = "Credit"
)

// bankClassAliases maps every spelling that settles into the bank account to
// the canonical bank-class member it represents. Legacy rows may still carry
// any of these spellings, so queries must match the whole set.
var bankClassAliases = map[string]string{
	"bank":       ModeBank,
	"upi":        ModeUPI,
	"gpay":       ModeBank,
	"google pay": ModeBank,
	"googlepay":  ModeBank,
}

// BankClassModes returns every payment-mode spelling treated as the single
// logical bank account, including legacy Google Pay variants.
func BankClassModes() []string {
	return []string{ModeBank, ModeUPI, "GPay", "GPAY", "Google Pay", "GooglePay"}
}

// IsBankClass reports whether a stored payment mode belongs to the logical
// bank account.
func IsBankClass(mode string) bool {
	_, ok := bankClassAliases[strings.ToLower(strings.TrimSpace(mode))]
	return ok
}

// NormalizeMode canonicalizes a payment mode for new writes. Known aliases
// collapse to their canonical spelling; unknown values are title-trimmed and
// stored as given so the open set stays open.
func NormalizeMode(raw string) string {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "cash":
		return ModeCash
	case "credit":
		return ModeCredit
	case "upi":
		return ModeUPI
	case "bank", "gpay", "google pay", "googlepay":
		return ModeBank
	default:
		return trimmed
	}
}

// NormalizeName derives the unique lookup key for a party name.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// LedgerEffect returns the sign a transaction type applies to a party's
// running receivable balance. Anything that is not a Sale decreases the
// balance; this blanket rule is inherited from the legacy behavior and kept
// in one place so a richer type table has a single seam.
func LedgerEffect(txnType string) int {
	switch txnType {
	case TxnSale:
		return 1
	case TxnReceipt, TxnSaleReturn:
		return -1
	default:
		return -1
	}
}

// IsInflow reports whether a transaction type moves money into an account
// (the debit side of the cash and bank books).
func IsInflow(txnType string) bool {
	return txnType == TxnSale || txnType == TxnReceipt
}

type Party struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name"`
	Type           string `json:"type"`
	CreditAllowed  bool   `json:"credit_allowed"`
}

type Transaction struct {
	ID      int64           `json:"id"`
	Date    time.Time       `json:"-"`
	BillNo  string          `json:"bill_no"`
	PartyID int64           `json:"party_id"`
	Type    string          `json:"type"`
	Mode    string          `json:"mode"`
	Amount  decimal.Decimal `json:"amount"`
}

// TransactionView is a transaction joined with its party name, dates
// formatted for the wire.
type TransactionView struct {
	ID     int64           `json:"id"`
	Date   string          `json:"date"`
	BillNo string          `json:"bill_no"`
	Party  string          `json:"party"`
	Type   string          `json:"type"`
	Mode   string          `json:"mode"`
	Amount decimal.Decimal `json:"amount"`
}

// TransactionPatch carries a single-field edit; exactly one pointer is set.
type TransactionPatch struct {
	Date   *time.Time
	BillNo *string
	Type   *string
	Mode   *string
	Amount *decimal.Decimal
}

type DailyCashCount struct {
	Date      time.Time       `json:"-"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DayAggregate is one date's grouped transaction sums, the raw material for
// the daily cash reconciliation walk.
type DayAggregate struct {
	Date           time.Time
	TotalSales     decimal.Decimal
	CashIn         decimal.Decimal
	CashExpense    decimal.Decimal
	BankIn         decimal.Decimal
	CreditSales    decimal.Decimal
	CreditReceipts decimal.Decimal
}

// PartyFlow is a party's Sale and Receipt totals, used by the outstanding
// report.
type PartyFlow struct {
	Party    string
	Sales    decimal.Decimal
	Receipts decimal.Decimal
}

type LedgerRow struct {
	ID      int64           `json:"id"`
	Date    string          `json:"date"`
	BillNo  string          `json:"bill_no"`
	Type    string          `json:"type"`
	Mode    string          `json:"mode"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

type AccountRow struct {
	Date    string          `json:"date"`
	BillNo  string          `json:"bill_no"`
	Party   string          `json:"party"`
	Type    string          `json:"type"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Balance decimal.Decimal `json:"balance"`
}

type TypeReportRow struct {
	Date   string          `json:"date"`
	BillNo string          `json:"bill_no"`
	Party  string          `json:"party"`
	Mode   string          `json:"mode"`
	Amount decimal.Decimal `json:"amount"`
}

type TypeReport struct {
	Rows  []TypeReportRow `json:"rows"`
	Total decimal.Decimal `json:"total"`
}

type OutstandingEntry struct {
	Party   string          `json:"party"`
	Balance decimal.Decimal `json:"balance"`
}

type OutstandingReport struct {
	Data  []OutstandingEntry `json:"data"`
	Total decimal.Decimal    `json:"total"`
}

type TrialBalanceLine struct {
	Account string          `json:"account"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
}

type ProfitAndLoss struct {
	Sales     decimal.Decimal `json:"sales"`
	Expenses  decimal.Decimal `json:"expenses"`
	NetProfit decimal.Decimal `json:"net_profit"`
}

type DashboardMetrics struct {
	SalesToday  decimal.Decimal `json:"sales_today"`
	SalesMonth  decimal.Decimal `json:"sales_month"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	BankBalance decimal.Decimal `json:"bank_balance"`
	Receivables decimal.Decimal `json:"receivables"`
}

// DailySummaryRow is one reconciled day. CashInHand is nil when no physical
// count was recorded for the date.
type DailySummaryRow struct {
	Date            string           `json:"date"`
	OpeningCash     decimal.Decimal  `json:"opening_cash"`
	CashIn          decimal.Decimal  `json:"cash_in"`
	CashExpense     decimal.Decimal  `json:"cash_expense"`
	CashNeeded      decimal.Decimal  `json:"cash_needed"`
	ClosingCash     decimal.Decimal  `json:"closing_cash"`
	CashInHand      *decimal.Decimal `json:"cash_in_hand"`
	CashShortExcess decimal.Decimal  `json:"cash_short_excess"`
	Bank            decimal.Decimal  `json:"bank"`
	CreditSale      decimal.Decimal  `json:"credit_sale"`
	TotalSales      decimal.Decimal  `json:"total_sales"`
}

// ShortExcessRow is a column projection of DailySummaryRow; it is always
// derived from the same computation, never recomputed independently.
type ShortExcessRow struct {
	Date            string           `json:"date"`
	OpeningCash     decimal.Decimal  `json:"opening_cash"`
	CashIn          decimal.Decimal  `json:"cash_in"`
	CashExpense     decimal.Decimal  `json:"cash_expense"`
	CashNeeded      decimal.Decimal  `json:"cash_needed"`
	CashInHand      *decimal.Decimal `json:"cash_in_hand"`
	CashShortExcess decimal.Decimal  `json:"cash_short_excess"`
}

type DailyModeSummaryRow struct {
	Date    string          `json:"date"`
	CashIn  decimal.Decimal `json:"cash_in"`
	CashOut decimal.Decimal `json:"cash_out"`
	BankIn  decimal.Decimal `json:"bank_in"`
	BankOut decimal.Decimal `json:"bank_out"`
	UPIIn   decimal.Decimal `json:"upi_in"`
	UPIOut  decimal.Decimal `json:"upi_out"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

type PartyCreateRequest struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	CreditAllowed bool   `json:"credit_allowed"`
}

type PartyRenameRequest struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

type TransactionCreateRequest struct {
	Date   string          `json:"date"`
	BillNo string          `json:"bill_no"`
	Party  string          `json:"party"`
	Type   string          `json:"type"`
	Mode   string          `json:"mode"`
	Amount decimal.Decimal `json:"amount"`
}

type TransactionEditRequest struct {
	ID       int64  `json:"id"`
	Field    string `json:"field"`
	NewValue string `json:"new_value"`
}

type TransactionListResponse struct {
	Transactions []TransactionView `json:"transactions"`
	Page         int               `json:"page"`
	Limit        int               `json:"limit"`
	Total        int               `json:"total"`
	TotalPages   int               `json:"total_pages"`
}

type DailyCashRequest struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

type OpeningCashRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type OpeningCashResponse struct {
	OpeningCash decimal.Decimal `json:"opening_cash"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type ChangePasswordRequest struct {
	Username    string `json:"username"`
	NewPassword string `json:"new_password"`
}

type CheckUserRequest struct {
	Username string `json:"username"`
}

type CheckUserResponse struct {
	Exists bool `json:"exists"`
}
