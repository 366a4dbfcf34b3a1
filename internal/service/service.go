package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"finlogs/backend/internal/cache"
	"finlogs/backend/internal/domain"
	"finlogs/backend/internal/store"
	"finlogs/backend/internal/xid"
)

const openingCashKey = "opening_cash_seed"

// DefaultTenant is used when no tenant was attached to the request context.
const DefaultTenant = "default"

type ctxKey string

const (
	actorKey  ctxKey = "actor"
	tenantKey ctxKey = "tenant"
)

// WithActor attaches the authenticated user to the context for audit trails.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) domain.Actor {
	if actor, ok := ctx.Value(actorKey).(domain.Actor); ok {
		return actor
	}
	return domain.Actor{Username: "system", Role: "system"}
}

// WithTenant scopes the request to one tenant's books.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

func TenantFromContext(ctx context.Context) string {
	if tenant, ok := ctx.Value(tenantKey).(string); ok && tenant != "" {
		return tenant
	}
	return DefaultTenant
}

// Service implements the bookkeeping engine: mutations over the transaction
// log, derived reports, and the daily cash reconciliation. Reports are
// cached; every successful mutation ends by invalidating the tenant's whole
// report cache.
type Service struct {
	repo   store.Repository
	cache  cache.ReportCache
	ttl    time.Duration
	logger *logrus.Logger
}

func New(repo store.Repository, reportCache cache.ReportCache, ttl time.Duration, logger *logrus.Logger) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{repo: repo, cache: reportCache, ttl: ttl, logger: logger}
}

// invalidate drops the tenant's cached reports. Only called after a mutation
// has fully succeeded; a failed write must leave stale-but-consistent cache
// entries untouched.
func (s *Service) invalidate(ctx context.Context, tenant string) {
	if err := s.cache.InvalidateAll(ctx, tenant); err != nil {
		s.logger.WithError(err).WithField("tenant", tenant).Warn("report cache invalidation failed")
	}
}

func (s *Service) writeAudit(ctx context.Context, action, details string) {
	actor := ActorFromContext(ctx)
	entry := domain.AuditLog{
		ID:        xid.New("audit"),
		Tenant:    TenantFromContext(ctx),
		Username:  actor.Username,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("action", action).Warn("audit log write failed")
	}
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", store.ErrInvalidInput, raw)
	}
	return t.UTC(), nil
}

func (s *Service) CreateParty(ctx context.Context, req domain.PartyCreateRequest) (*domain.Party, error) {
	tenant := TenantFromContext(ctx)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: party name required", store.ErrInvalidInput)
	}
	partyType := strings.TrimSpace(req.Type)
	if partyType == "" {
		partyType = domain.PartyCustomer
	}

	normalized := domain.NormalizeName(name)
	if _, err := s.repo.GetPartyByNormalizedName(ctx, tenant, normalized); err == nil {
		return nil, fmt.Errorf("%w: party %q already exists", store.ErrInvalidInput, name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// A tenant's books carry a single bank account.
	if partyType == domain.PartyBank {
		count, err := s.repo.CountPartiesByType(ctx, tenant, domain.PartyBank)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, fmt.Errorf("%w: a bank party already exists", store.ErrInvalidInput)
		}
	}

	party, err := s.repo.CreateParty(ctx, tenant, domain.Party{
		Name:           name,
		NormalizedName: normalized,
		Type:           partyType,
		CreditAllowed:  req.CreditAllowed,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: party %q already exists", store.ErrInvalidInput, name)
		}
		return nil, err
	}

	s.writeAudit(ctx, "party.create", fmt.Sprintf("name=%s type=%s", name, partyType))
	s.invalidate(ctx, tenant)
	return party, nil
}

func (s *Service) RenameParty(ctx context.Context, req domain.PartyRenameRequest) error {
	tenant := TenantFromContext(ctx)

	newName := strings.TrimSpace(req.NewName)
	if newName == "" {
		return fmt.Errorf("%w: new name required", store.ErrInvalidInput)
	}

	party, err := s.repo.GetPartyByNormalizedName(ctx, tenant, domain.NormalizeName(req.OldName))
	if err != nil {
		return err
	}

	normalized := domain.NormalizeName(newName)
	if existing, err := s.repo.GetPartyByNormalizedName(ctx, tenant, normalized); err == nil && existing.ID != party.ID {
		return fmt.Errorf("%w: party %q already exists", store.ErrInvalidInput, newName)
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := s.repo.RenameParty(ctx, tenant, party.ID, newName, normalized); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("%w: party %q already exists", store.ErrInvalidInput, newName)
		}
		return err
	}

	s.writeAudit(ctx, "party.rename", fmt.Sprintf("old=%s new=%s", req.OldName, newName))
	s.invalidate(ctx, tenant)
	return nil
}

func (s *Service) ListParties(ctx context.Context) ([]domain.Party, error) {
	return s.repo.ListParties(ctx, TenantFromContext(ctx))
}

func (s *Service) AddTransaction(ctx context.Context, req domain.TransactionCreateRequest) (*domain.Transaction, error) {
	tenant := TenantFromContext(ctx)

	date := time.Now().UTC()
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := parseDate(req.Date)
		if err != nil {
			return nil, err
		}
		date = parsed
	}
	if strings.TrimSpace(req.Type) == "" {
		return nil, fmt.Errorf("%w: transaction type required", store.ErrInvalidInput)
	}
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", store.ErrInvalidInput)
	}

	party, err := s.repo.GetPartyByNormalizedName(ctx, tenant, domain.NormalizeName(req.Party))
	if err != nil {
		return nil, err
	}

	txn, err := s.repo.AddTransaction(ctx, tenant, domain.Transaction{
		Date:    date,
		BillNo:  strings.TrimSpace(req.BillNo),
		PartyID: party.ID,
		Type:    strings.TrimSpace(req.Type),
		Mode:    domain.NormalizeMode(req.Mode),
		Amount:  req.Amount,
	})
	if err != nil {
		return nil, err
	}

	s.writeAudit(ctx, "transaction.add",
		fmt.Sprintf("id=%d party=%s type=%s mode=%s amount=%s", txn.ID, party.Name, txn.Type, txn.Mode, txn.Amount))
	s.invalidate(ctx, tenant)
	return txn, nil
}

// EditTransaction changes exactly one whitelisted field. The value arrives as
// a string and is parsed per field; anything outside the whitelist is
// rejected before any write.
func (s *Service) EditTransaction(ctx context.Context, req domain.TransactionEditRequest) error {
	tenant := TenantFromContext(ctx)

	var patch domain.TransactionPatch
	value := strings.TrimSpace(req.NewValue)
	switch req.Field {
	case "date":
		date, err := parseDate(value)
		if err != nil {
			return err
		}
		patch.Date = &date
	case "bill_no":
		patch.BillNo = &value
	case "type":
		if value == "" {
			return fmt.Errorf("%w: transaction type required", store.ErrInvalidInput)
		}
		patch.Type = &value
	case "mode":
		mode := domain.NormalizeMode(value)
		patch.Mode = &mode
	case "amount":
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("%w: bad amount %q", store.ErrInvalidInput, value)
		}
		if amount.IsNegative() {
			return fmt.Errorf("%w: amount must not be negative", store.ErrInvalidInput)
		}
		patch.Amount = &amount
	default:
		return fmt.Errorf("%w: field %q is not editable", store.ErrInvalidInput, req.Field)
	}

	if err := s.repo.UpdateTransaction(ctx, tenant, req.ID, patch); err != nil {
		return err
	}

	s.writeAudit(ctx, "transaction.edit", fmt.Sprintf("id=%d field=%s value=%s", req.ID, req.Field, value))
	s.invalidate(ctx, tenant)
	return nil
}

func (s *Service) DeleteTransaction(ctx context.Context, id int64) error {
	tenant := TenantFromContext(ctx)

	if err := s.repo.DeleteTransaction(ctx, tenant, id); err != nil {
		return err
	}

	s.writeAudit(ctx, "transaction.delete", fmt.Sprintf("id=%d", id))
	s.invalidate(ctx, tenant)
	return nil
}

func (s *Service) GetTransaction(ctx context.Context, id int64) (*domain.TransactionView, error) {
	return s.repo.GetTransactionView(ctx, TenantFromContext(ctx), id)
}

func (s *Service) ListTransactions(ctx context.Context, start, end string, page, limit int) (*domain.TransactionListResponse, error) {
	tenant := TenantFromContext(ctx)

	filter := store.ListFilter{Page: page, Limit: limit}
	if start != "" || end != "" {
		from, to := resolveDateRange(start, end, defaultRangeDays)
		filter.From, filter.To = &from, &to
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	views, total, err := s.repo.ListTransactions(ctx, tenant, filter)
	if err != nil {
		return nil, err
	}

	totalPages := total / filter.Limit
	if total%filter.Limit != 0 {
		totalPages++
	}
	return &domain.TransactionListResponse{
		Transactions: views,
		Page:         filter.Page,
		Limit:        filter.Limit,
		Total:        total,
		TotalPages:   totalPages,
	}, nil
}

func (s *Service) TransactionsByDate(ctx context.Context, rawDate string) ([]domain.TransactionView, error) {
	tenant := TenantFromContext(ctx)

	date, err := parseDate(rawDate)
	if err != nil {
		return nil, err
	}
	views, _, err := s.repo.ListTransactions(ctx, tenant, store.ListFilter{On: &date, Limit: 1000})
	return views, err
}

func (s *Service) SetDailyCash(ctx context.Context, req domain.DailyCashRequest) error {
	tenant := TenantFromContext(ctx)

	date, err := parseDate(req.Date)
	if err != nil {
		return err
	}
	if err := s.repo.UpsertDailyCash(ctx, tenant, date, req.Amount); err != nil {
		return err
	}

	s.writeAudit(ctx, "daily_cash.set", fmt.Sprintf("date=%s amount=%s", req.Date, req.Amount))
	s.invalidate(ctx, tenant)
	return nil
}

func (s *Service) SetOpeningCash(ctx context.Context, amount decimal.Decimal) error {
	tenant := TenantFromContext(ctx)

	if err := s.repo.SetNumericSetting(ctx, tenant, openingCashKey, amount); err != nil {
		return err
	}

	s.writeAudit(ctx, "opening_cash.set", fmt.Sprintf("amount=%s", amount))
	s.invalidate(ctx, tenant)
	return nil
}

func (s *Service) OpeningCash(ctx context.Context) (decimal.Decimal, error) {
	return s.repo.GetNumericSetting(ctx, TenantFromContext(ctx), openingCashKey)
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, TenantFromContext(ctx), limit)
}

// Authenticate verifies a username/password pair against the stored bcrypt
// hash. Inactive users cannot log in.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.UserAccount, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		if user.Username != username {
			continue
		}
		if !user.Active {
			return nil, store.ErrNotFound
		}
		if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
			return nil, store.ErrNotFound
		}
		found := user
		return &found, nil
	}
	return nil, store.ErrNotFound
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) error {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return fmt.Errorf("%w: username and password required", store.ErrInvalidInput)
	}
	role := req.Role
	if role != "admin" && role != "accounts" {
		role = "accounts"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("%w: user %q already exists", store.ErrInvalidInput, username)
		}
		return err
	}

	s.writeAudit(ctx, "user.create", fmt.Sprintf("username=%s role=%s", username, role))
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) error {
	if req.NewPassword == "" {
		return fmt.Errorf("%w: new password required", store.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, req.Username, string(hash)); err != nil {
		return err
	}

	s.writeAudit(ctx, "user.change_password", fmt.Sprintf("username=%s", req.Username))
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, username string) error {
	if username == "admin" {
		return fmt.Errorf("%w: the admin user cannot be deleted", store.ErrInvalidInput)
	}
	if err := s.repo.DeleteUser(ctx, username); err != nil {
		return err
	}

	s.writeAudit(ctx, "user.delete", fmt.Sprintf("username=%s", username))
	return nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	return s.repo.ListUsers(ctx)
}

// CheckUser reports whether a username is registered, without revealing
// anything else about the account.
func (s *Service) CheckUser(ctx context.Context, username string) (bool, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return false, err
	}
	for _, user := range users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}
