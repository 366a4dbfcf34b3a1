package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"finlogs/backend/internal/cache"
	"finlogs/backend/internal/domain"
	"finlogs/backend/internal/store"
	"finlogs/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	svc := New(memory.New(), cache.NewMemory(), time.Minute, logger)
	ctx := WithTenant(context.Background(), "shop1")
	ctx = WithActor(ctx, domain.Actor{Username: "tester", Role: "admin"})
	return svc, ctx
}

func mustParty(t *testing.T, svc *Service, ctx context.Context, name, partyType string) *domain.Party {
	t.Helper()
	party, err := svc.CreateParty(ctx, domain.PartyCreateRequest{Name: name, Type: partyType})
	if err != nil {
		t.Fatalf("create party %s: %v", name, err)
	}
	return party
}

func mustTxn(t *testing.T, svc *Service, ctx context.Context, date, party, txnType, mode, amount string) *domain.Transaction {
	t.Helper()
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("bad amount %s: %v", amount, err)
	}
	txn, err := svc.AddTransaction(ctx, domain.TransactionCreateRequest{
		Date: date, Party: party, Type: txnType, Mode: mode, Amount: amt,
	})
	if err != nil {
		t.Fatalf("add transaction: %v", err)
	}
	return txn
}

func TestCreatePartyRejectsDuplicateNormalizedName(t *testing.T) {
	svc, ctx := newTestService(t)

	mustParty(t, svc, ctx, "Ravi Traders", domain.PartyCustomer)

	_, err := svc.CreateParty(ctx, domain.PartyCreateRequest{Name: "ravi traders", Type: domain.PartyCustomer})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("lowercase duplicate: got %v, want ErrInvalidInput", err)
	}
	_, err = svc.CreateParty(ctx, domain.PartyCreateRequest{Name: "  RAVI TRADERS  ", Type: domain.PartyCustomer})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("padded uppercase duplicate: got %v, want ErrInvalidInput", err)
	}
}

func TestCreatePartyAllowsSingleBankOnly(t *testing.T) {
	svc, ctx := newTestService(t)

	mustParty(t, svc, ctx, "HDFC", domain.PartyBank)
	_, err := svc.CreateParty(ctx, domain.PartyCreateRequest{Name: "ICICI", Type: domain.PartyBank})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("second bank party: got %v, want ErrInvalidInput", err)
	}

	parties, err := svc.ListParties(ctx)
	if err != nil {
		t.Fatalf("list parties: %v", err)
	}
	if len(parties) != 1 {
		t.Fatalf("expected 1 party after rejected second bank, got %d", len(parties))
	}
}

func TestRenameParty(t *testing.T) {
	svc, ctx := newTestService(t)

	mustParty(t, svc, ctx, "Old Name", domain.PartyCustomer)
	mustParty(t, svc, ctx, "Taken", domain.PartyCustomer)

	err := svc.RenameParty(ctx, domain.PartyRenameRequest{OldName: "Old Name", NewName: "Taken"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("rename onto existing party: got %v, want ErrInvalidInput", err)
	}

	if err := svc.RenameParty(ctx, domain.PartyRenameRequest{OldName: "Old Name", NewName: "Fresh Name"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := svc.RenameParty(ctx, domain.PartyRenameRequest{OldName: "Old Name", NewName: "Whatever"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rename of vanished name: got %v, want ErrNotFound", err)
	}
}

func TestAddTransactionUnknownParty(t *testing.T) {
	svc, ctx := newTestService(t)

	_, err := svc.AddTransaction(ctx, domain.TransactionCreateRequest{
		Date: "2024-03-01", Party: "ghost", Type: domain.TxnSale, Mode: "Cash",
		Amount: decimal.NewFromInt(100),
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestAddTransactionNormalizesMode(t *testing.T) {
	svc, ctx := newTestService(t)
	mustParty(t, svc, ctx, "Walk In", domain.PartyCustomer)

	txn := mustTxn(t, svc, ctx, "2024-03-01", "Walk In", domain.TxnSale, "gpay", "250")
	if txn.Mode != domain.ModeBank {
		t.Fatalf("mode = %q, want %q", txn.Mode, domain.ModeBank)
	}
}

func TestEditTransactionWhitelist(t *testing.T) {
	svc, ctx := newTestService(t)
	mustParty(t, svc, ctx, "Walk In", domain.PartyCustomer)
	txn := mustTxn(t, svc, ctx, "2024-03-01", "Walk In", domain.TxnSale, "Cash", "100")

	err := svc.EditTransaction(ctx, domain.TransactionEditRequest{ID: txn.ID, Field: "party_id", NewValue: "99"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("editing party_id: got %v, want ErrInvalidInput", err)
	}

	if err := svc.EditTransaction(ctx, domain.TransactionEditRequest{ID: txn.ID, Field: "amount", NewValue: "175.50"}); err != nil {
		t.Fatalf("edit amount: %v", err)
	}
	view, err := svc.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if !view.Amount.Equal(decimal.RequireFromString("175.50")) {
		t.Fatalf("amount = %s, want 175.50", view.Amount)
	}

	err = svc.EditTransaction(ctx, domain.TransactionEditRequest{ID: txn.ID, Field: "amount", NewValue: "-5"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("negative amount: got %v, want ErrInvalidInput", err)
	}
	err = svc.EditTransaction(ctx, domain.TransactionEditRequest{ID: 9999, Field: "bill_no", NewValue: "B-1"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing txn: got %v, want ErrNotFound", err)
	}
}

func TestDeleteTransaction(t *testing.T) {
	svc, ctx := newTestService(t)
	mustParty(t, svc, ctx, "Walk In", domain.PartyCustomer)
	txn := mustTxn(t, svc, ctx, "2024-03-01", "Walk In", domain.TxnSale, "Cash", "100")

	if err := svc.DeleteTransaction(ctx, txn.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteTransaction(ctx, txn.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestListTransactionsPaging(t *testing.T) {
	svc, ctx := newTestService(t)
	mustParty(t, svc, ctx, "Walk In", domain.PartyCustomer)
	for i := 0; i < 5; i++ {
		mustTxn(t, svc, ctx, "2024-03-01", "Walk In", domain.TxnSale, "Cash", "10")
	}

	resp, err := svc.ListTransactions(ctx, "", "", 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if resp.Total != 5 || resp.TotalPages != 3 || len(resp.Transactions) != 2 {
		t.Fatalf("total=%d pages=%d rows=%d", resp.Total, resp.TotalPages, len(resp.Transactions))
	}
}

func TestOpeningCashSetting(t *testing.T) {
	svc, ctx := newTestService(t)

	amount, err := svc.OpeningCash(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !amount.IsZero() {
		t.Fatalf("unset opening cash = %s, want 0", amount)
	}

	if err := svc.SetOpeningCash(ctx, decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("set: %v", err)
	}
	amount, err = svc.OpeningCash(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !amount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("opening cash = %s, want 1000", amount)
	}
}

func TestMutationsWriteAuditLog(t *testing.T) {
	svc, ctx := newTestService(t)

	mustParty(t, svc, ctx, "Walk In", domain.PartyCustomer)
	mustTxn(t, svc, ctx, "2024-03-01", "Walk In", domain.TxnSale, "Cash", "100")

	logs, err := svc.ListAuditLogs(ctx, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(logs))
	}
	if logs[0].Action != "transaction.add" || logs[1].Action != "party.create" {
		t.Fatalf("unexpected actions %s, %s", logs[0].Action, logs[1].Action)
	}
	if logs[0].Username != "tester" || logs[0].Tenant != "shop1" {
		t.Fatalf("actor/tenant not recorded: %+v", logs[0])
	}
}

func TestTenantIsolation(t *testing.T) {
	svc, ctx := newTestService(t)
	otherCtx := WithTenant(context.Background(), "shop2")

	mustParty(t, svc, ctx, "Walk In", domain.PartyCustomer)

	parties, err := svc.ListParties(otherCtx)
	if err != nil {
		t.Fatalf("list parties: %v", err)
	}
	if len(parties) != 0 {
		t.Fatalf("shop2 sees %d of shop1's parties", len(parties))
	}
}

func TestUserLifecycle(t *testing.T) {
	svc, ctx := newTestService(t)

	if err := svc.CreateUser(ctx, domain.UserCreateRequest{Username: "clerk", Password: "secret", Role: "accounts"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := svc.CreateUser(ctx, domain.UserCreateRequest{Username: "clerk", Password: "other", Role: "accounts"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("duplicate user: got %v, want ErrInvalidInput", err)
	}

	user, err := svc.Authenticate(ctx, "clerk", "secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Role != "accounts" {
		t.Fatalf("role = %q", user.Role)
	}
	if _, err := svc.Authenticate(ctx, "clerk", "wrong"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("wrong password: got %v, want ErrNotFound", err)
	}

	if err := svc.ChangePassword(ctx, domain.ChangePasswordRequest{Username: "clerk", NewPassword: "rotated"}); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "clerk", "rotated"); err != nil {
		t.Fatalf("authenticate after rotation: %v", err)
	}

	if err := svc.DeleteUser(ctx, "admin"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("deleting admin: got %v, want ErrInvalidInput", err)
	}
	if err := svc.DeleteUser(ctx, "clerk"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
}
