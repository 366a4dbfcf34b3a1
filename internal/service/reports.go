package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"finlogs/backend/internal/cache"
	"finlogs/backend/internal/domain"
	"finlogs/backend/internal/store"
)

// cachedReport is the read-through path every report shares: serve from the
// cache when a fresh entry exists, otherwise compute, store and return. Cache
// failures degrade to a plain compute; a broken cache must never take the
// reports down.
func cachedReport[T any](ctx context.Context, s *Service, kind, start, end string, compute func(tenant string) (T, error)) (T, error) {
	var zero T
	tenant := TenantFromContext(ctx)
	key := cache.Key(tenant, kind, start, end)

	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("report cache read failed")
	} else if ok {
		var cached T
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
		s.logger.WithField("key", key).Warn("discarding undecodable cache entry")
	}

	result, err := compute(tenant)
	if err != nil {
		return zero, err
	}

	if payload, err := json.Marshal(result); err == nil {
		if err := s.cache.Set(ctx, key, payload, s.ttl); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("report cache write failed")
		}
	}
	return result, nil
}

// optionalRange parses start/end when both are present; otherwise the report
// runs unbounded.
func optionalRange(start, end string) (*time.Time, *time.Time) {
	from, errFrom := time.Parse(domain.DateLayout, start)
	to, errTo := time.Parse(domain.DateLayout, end)
	if errFrom != nil || errTo != nil {
		return nil, nil
	}
	if from.After(to) {
		from, to = to, from
	}
	return &from, &to
}

// Ledger renders a party's statement: every transaction in range with a
// running receivable balance. An unknown party yields an empty statement
// rather than an error.
func (s *Service) Ledger(ctx context.Context, partyName, start, end string) ([]domain.LedgerRow, error) {
	normalized := domain.NormalizeName(partyName)
	return cachedReport(ctx, s, "ledger:"+normalized, start, end, func(tenant string) ([]domain.LedgerRow, error) {
		rows := make([]domain.LedgerRow, 0, 32)

		party, err := s.repo.GetPartyByNormalizedName(ctx, tenant, normalized)
		if errors.Is(err, store.ErrNotFound) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}

		from, to := optionalRange(start, end)
		txns, err := s.repo.ListPartyTransactions(ctx, tenant, party.ID, from, to)
		if err != nil {
			return nil, err
		}

		balance := decimal.Zero
		for _, txn := range txns {
			if domain.LedgerEffect(txn.Type) > 0 {
				balance = balance.Add(txn.Amount)
			} else {
				balance = balance.Sub(txn.Amount)
			}
			rows = append(rows, domain.LedgerRow{
				ID:      txn.ID,
				Date:    txn.Date.Format(domain.DateLayout),
				BillNo:  txn.BillNo,
				Type:    txn.Type,
				Mode:    txn.Mode,
				Amount:  txn.Amount,
				Balance: balance,
			})
		}
		return rows, nil
	})
}

// AccountByMode renders the cashbook for one payment account. Any bank-class
// mode collapses to the single logical bank account.
func (s *Service) AccountByMode(ctx context.Context, mode string) ([]domain.AccountRow, error) {
	normalized := domain.NormalizeMode(mode)
	modes := []string{normalized}
	if domain.IsBankClass(normalized) {
		modes = domain.BankClassModes()
	}

	return cachedReport(ctx, s, "account_mode:"+normalized, "", "", func(tenant string) ([]domain.AccountRow, error) {
		txns, err := s.repo.ListTransactionsByModes(ctx, tenant, modes)
		if err != nil {
			return nil, err
		}

		rows := make([]domain.AccountRow, 0, len(txns))
		balance := decimal.Zero
		for _, txn := range txns {
			row := domain.AccountRow{
				Date:   txn.Date,
				BillNo: txn.BillNo,
				Party:  txn.Party,
				Type:   txn.Type,
				Debit:  decimal.Zero,
				Credit: decimal.Zero,
			}
			if domain.IsInflow(txn.Type) {
				row.Debit = txn.Amount
				balance = balance.Add(txn.Amount)
			} else {
				row.Credit = txn.Amount
				balance = balance.Sub(txn.Amount)
			}
			row.Balance = balance
			rows = append(rows, row)
		}
		return rows, nil
	})
}

func (s *Service) AccountByType(ctx context.Context, txnType string) (*domain.TypeReport, error) {
	report, err := cachedReport(ctx, s, "account_type:"+txnType, "", "", func(tenant string) (domain.TypeReport, error) {
		txns, err := s.repo.ListTransactionsByType(ctx, tenant, txnType)
		if err != nil {
			return domain.TypeReport{}, err
		}

		rows := make([]domain.TypeReportRow, 0, len(txns))
		total := decimal.Zero
		for _, txn := range txns {
			rows = append(rows, domain.TypeReportRow{
				Date:   txn.Date,
				BillNo: txn.BillNo,
				Party:  txn.Party,
				Mode:   txn.Mode,
				Amount: txn.Amount,
			})
			total = total.Add(txn.Amount)
		}
		return domain.TypeReport{Rows: rows, Total: total}, nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// Outstanding lists credit customers still owing money: only positive
// balances appear.
func (s *Service) Outstanding(ctx context.Context) (*domain.OutstandingReport, error) {
	report, err := cachedReport(ctx, s, "outstanding", "", "", func(tenant string) (domain.OutstandingReport, error) {
		flows, err := s.repo.PartySaleReceiptTotals(ctx, tenant, domain.PartyCreditCustomer)
		if err != nil {
			return domain.OutstandingReport{}, err
		}

		entries := make([]domain.OutstandingEntry, 0, len(flows))
		total := decimal.Zero
		for _, flow := range flows {
			balance := flow.Sales.Sub(flow.Receipts)
			if balance.IsPositive() {
				entries = append(entries, domain.OutstandingEntry{Party: flow.Party, Balance: balance})
				total = total.Add(balance)
			}
		}
		return domain.OutstandingReport{Data: entries, Total: total}, nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Service) modeNet(ctx context.Context, tenant string, modes []string) (decimal.Decimal, error) {
	inflow, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{
		Types: []string{domain.TxnSale, domain.TxnReceipt},
		Modes: modes,
	})
	if err != nil {
		return decimal.Zero, err
	}
	outflow, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{
		Types: []string{domain.TxnExpense},
		Modes: modes,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return inflow.Sub(outflow), nil
}

// trialLine places a net balance in the debit column when positive, in the
// credit column (sign flipped) when negative.
func trialLine(account string, net decimal.Decimal) domain.TrialBalanceLine {
	line := domain.TrialBalanceLine{Account: account, Debit: decimal.Zero, Credit: decimal.Zero}
	if net.IsNegative() {
		line.Credit = net.Neg()
	} else {
		line.Debit = net
	}
	return line
}

func (s *Service) TrialBalance(ctx context.Context) ([]domain.TrialBalanceLine, error) {
	return cachedReport(ctx, s, "trial_balance", "", "", func(tenant string) ([]domain.TrialBalanceLine, error) {
		cashNet, err := s.modeNet(ctx, tenant, []string{domain.ModeCash})
		if err != nil {
			return nil, err
		}
		bankNet, err := s.modeNet(ctx, tenant, domain.BankClassModes())
		if err != nil {
			return nil, err
		}
		upiNet, err := s.modeNet(ctx, tenant, []string{domain.ModeUPI})
		if err != nil {
			return nil, err
		}
		debtors, err := s.repo.SumSigned(ctx, tenant, domain.TxnSale)
		if err != nil {
			return nil, err
		}
		creditors, err := s.repo.SumSigned(ctx, tenant, domain.TxnPurchase)
		if err != nil {
			return nil, err
		}
		sales, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{Types: []string{domain.TxnSale}})
		if err != nil {
			return nil, err
		}
		expenses, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{Types: []string{domain.TxnExpense}})
		if err != nil {
			return nil, err
		}

		lines := []domain.TrialBalanceLine{
			trialLine("Cash Account", cashNet),
			trialLine("Bank Account", bankNet),
			trialLine("UPI Account", upiNet),
			trialLine("Sundry Debtors", debtors),
			trialLine("Sundry Creditors", creditors),
			{Account: "Sales Account", Debit: decimal.Zero, Credit: sales},
			{Account: "Expense Account", Debit: expenses, Credit: decimal.Zero},
		}
		return lines, nil
	})
}

func (s *Service) ProfitAndLoss(ctx context.Context) (*domain.ProfitAndLoss, error) {
	report, err := cachedReport(ctx, s, "profit_and_loss", "", "", func(tenant string) (domain.ProfitAndLoss, error) {
		sales, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{Types: []string{domain.TxnSale}})
		if err != nil {
			return domain.ProfitAndLoss{}, err
		}
		expenses, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{Types: []string{domain.TxnExpense}})
		if err != nil {
			return domain.ProfitAndLoss{}, err
		}
		return domain.ProfitAndLoss{
			Sales:     sales,
			Expenses:  expenses,
			NetProfit: sales.Sub(expenses),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *Service) Dashboard(ctx context.Context) (*domain.DashboardMetrics, error) {
	today := time.Now().UTC()
	todayStr := today.Format(domain.DateLayout)

	report, err := cachedReport(ctx, s, "dashboard", todayStr, todayStr, func(tenant string) (domain.DashboardMetrics, error) {
		day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

		salesToday, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{
			Types: []string{domain.TxnSale}, On: &day,
		})
		if err != nil {
			return domain.DashboardMetrics{}, err
		}
		salesMonth, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{
			Types: []string{domain.TxnSale}, From: &monthStart, To: &day,
		})
		if err != nil {
			return domain.DashboardMetrics{}, err
		}
		cashBalance, err := s.modeNet(ctx, tenant, []string{domain.ModeCash})
		if err != nil {
			return domain.DashboardMetrics{}, err
		}
		bankBalance, err := s.modeNet(ctx, tenant, domain.BankClassModes())
		if err != nil {
			return domain.DashboardMetrics{}, err
		}
		customerSales, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{
			Types: []string{domain.TxnSale}, PartyTypes: []string{domain.PartyCustomer},
		})
		if err != nil {
			return domain.DashboardMetrics{}, err
		}
		customerReceipts, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{
			Types: []string{domain.TxnReceipt}, PartyTypes: []string{domain.PartyCustomer},
		})
		if err != nil {
			return domain.DashboardMetrics{}, err
		}

		return domain.DashboardMetrics{
			SalesToday:  salesToday,
			SalesMonth:  salesMonth,
			CashBalance: cashBalance,
			BankBalance: bankBalance,
			Receivables: customerSales.Sub(customerReceipts),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// DailyModeSummary renders the per-date in/out grid for the cash, bank and
// UPI columns.
func (s *Service) DailyModeSummary(ctx context.Context) ([]domain.DailyModeSummaryRow, error) {
	return cachedReport(ctx, s, "daily_mode_summary", "", "", func(tenant string) ([]domain.DailyModeSummaryRow, error) {
		txns, err := s.repo.ListTransactionsByModes(ctx, tenant, nil)
		if err != nil {
			return nil, err
		}

		byDate := make(map[string]*domain.DailyModeSummaryRow)
		order := make([]string, 0, 31)
		for _, txn := range txns {
			row, ok := byDate[txn.Date]
			if !ok {
				row = &domain.DailyModeSummaryRow{
					Date:   txn.Date,
					CashIn: decimal.Zero, CashOut: decimal.Zero,
					BankIn: decimal.Zero, BankOut: decimal.Zero,
					UPIIn: decimal.Zero, UPIOut: decimal.Zero,
				}
				byDate[txn.Date] = row
				order = append(order, txn.Date)
			}

			in := domain.IsInflow(txn.Type)
			switch {
			case txn.Mode == domain.ModeCash:
				if in {
					row.CashIn = row.CashIn.Add(txn.Amount)
				} else {
					row.CashOut = row.CashOut.Add(txn.Amount)
				}
			case txn.Mode == domain.ModeUPI:
				if in {
					row.UPIIn = row.UPIIn.Add(txn.Amount)
				} else {
					row.UPIOut = row.UPIOut.Add(txn.Amount)
				}
			case domain.IsBankClass(txn.Mode):
				if in {
					row.BankIn = row.BankIn.Add(txn.Amount)
				} else {
					row.BankOut = row.BankOut.Add(txn.Amount)
				}
			}
		}

		rows := make([]domain.DailyModeSummaryRow, 0, len(order))
		// Input arrives date-ascending; the grid shows newest first.
		for i := len(order) - 1; i >= 0; i-- {
			rows = append(rows, *byDate[order[i]])
		}
		return rows, nil
	})
}
