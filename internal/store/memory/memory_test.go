package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finlogs/backend/internal/domain"
	"finlogs/backend/internal/store"
)

func seedTxn(t *testing.T, s *Store, tenant string, partyID int64, date, txnType, mode, amount string) {
	t.Helper()
	day, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		t.Fatalf("bad date %s: %v", date, err)
	}
	_, err = s.AddTransaction(context.Background(), tenant, domain.Transaction{
		Date:    day,
		PartyID: partyID,
		Type:    txnType,
		Mode:    mode,
		Amount:  decimal.RequireFromString(amount),
	})
	if err != nil {
		t.Fatalf("add transaction: %v", err)
	}
}

// Mode matching is exact, like the SQL IN list in the postgres store. A
// legacy-cased row only matches when the caller lists that exact spelling.
func TestModeMatchingIsExact(t *testing.T) {
	s := New()
	ctx := context.Background()

	party, err := s.CreateParty(ctx, "shop1", domain.Party{
		Name: "Walk In", NormalizedName: "walk_in", Type: domain.PartyCustomer,
	})
	if err != nil {
		t.Fatalf("create party: %v", err)
	}

	seedTxn(t, s, "shop1", party.ID, "2024-03-01", domain.TxnSale, "Cash", "100")
	seedTxn(t, s, "shop1", party.ID, "2024-03-01", domain.TxnSale, "CASH", "999")

	views, err := s.ListTransactionsByModes(ctx, "shop1", []string{"Cash"})
	if err != nil {
		t.Fatalf("list by modes: %v", err)
	}
	if len(views) != 1 || !views[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected only the exact-cased row, got %+v", views)
	}

	total, err := s.SumAmounts(ctx, "shop1", store.SumFilter{Modes: []string{"Cash"}})
	if err != nil {
		t.Fatalf("sum amounts: %v", err)
	}
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("sum = %s, want 100", total)
	}
}

func TestDailyAggregatesUseExactModes(t *testing.T) {
	s := New()
	ctx := context.Background()

	party, err := s.CreateParty(ctx, "shop1", domain.Party{
		Name: "Walk In", NormalizedName: "walk_in", Type: domain.PartyCustomer,
	})
	if err != nil {
		t.Fatalf("create party: %v", err)
	}

	seedTxn(t, s, "shop1", party.ID, "2024-03-01", domain.TxnSale, "Cash", "100")
	seedTxn(t, s, "shop1", party.ID, "2024-03-01", domain.TxnSale, "cash", "50")

	from, _ := time.Parse(domain.DateLayout, "2024-03-01")
	aggs, err := s.DailyAggregates(ctx, "shop1", from, from)
	if err != nil {
		t.Fatalf("daily aggregates: %v", err)
	}
	if len(aggs) != 1 {
		t.Fatalf("aggregates = %d, want 1", len(aggs))
	}
	if !aggs[0].CashIn.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("cash in = %s, want 100 (lowercase row must not count)", aggs[0].CashIn)
	}
	if !aggs[0].TotalSales.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("total sales = %s, want 150", aggs[0].TotalSales)
	}
}
