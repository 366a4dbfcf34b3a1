package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"finlogs/backend/internal/domain"
	"finlogs/backend/internal/store"
)

const defaultRangeDays = 30

// resolveDateRange turns optional start/end strings into a concrete inclusive
// window. The bounds fall back independently: a missing or unparsable end
// becomes today, a missing or unparsable start becomes the first day of the
// `days`-long window ending at the resolved end (so the window spans exactly
// `days` dates). A reversed range is swapped, never rejected.
func resolveDateRange(start, end string, days int) (time.Time, time.Time) {
	if days <= 0 {
		days = defaultRangeDays
	}
	to, err := time.Parse(domain.DateLayout, end)
	if err != nil {
		now := time.Now().UTC()
		to = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	from, err := time.Parse(domain.DateLayout, start)
	if err != nil {
		from = to.AddDate(0, 0, -(days - 1))
	}
	if from.After(to) {
		from, to = to, from
	}
	return from.UTC(), to.UTC()
}

// openingCashBefore determines the cash position at the start of the window:
// the latest physical count strictly before it wins; otherwise the opening
// seed plus all cash flow recorded before the window.
func (s *Service) openingCashBefore(ctx context.Context, tenant string, from time.Time) (decimal.Decimal, error) {
	count, err := s.repo.LatestDailyCashBefore(ctx, tenant, from)
	if err == nil {
		return count.Amount, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, err
	}

	seed, err := s.repo.GetNumericSetting(ctx, tenant, openingCashKey)
	if err != nil {
		return decimal.Zero, err
	}
	cashIn, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{
		Types:  []string{domain.TxnSale, domain.TxnReceipt},
		Modes:  []string{domain.ModeCash},
		Before: &from,
	})
	if err != nil {
		return decimal.Zero, err
	}
	creditReceipts, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{
		Types:  []string{domain.TxnReceipt},
		Modes:  []string{domain.ModeCredit},
		Before: &from,
	})
	if err != nil {
		return decimal.Zero, err
	}
	cashOut, err := s.repo.SumAmounts(ctx, tenant, store.SumFilter{
		Types:  []string{domain.TxnExpense},
		Modes:  []string{domain.ModeCash},
		Before: &from,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return seed.Add(cashIn).Add(creditReceipts).Sub(cashOut), nil
}

// DailySummary reconciles the cash book day by day. Active dates are those
// with transactions or a recorded physical count; the walk runs ascending so
// each day's opening carries forward from the previous one, with a recorded
// count overriding the computed closing. Output is newest first.
func (s *Service) DailySummary(ctx context.Context, start, end string, days int) ([]domain.DailySummaryRow, error) {
	from, to := resolveDateRange(start, end, days)
	fromStr := from.Format(domain.DateLayout)
	toStr := to.Format(domain.DateLayout)

	return cachedReport(ctx, s, "daily_summary", fromStr, toStr, func(tenant string) ([]domain.DailySummaryRow, error) {
		rows := make([]domain.DailySummaryRow, 0, 31)

		dates, err := s.repo.ActivityDates(ctx, tenant, from, to)
		if err != nil {
			return nil, err
		}
		if len(dates) == 0 {
			return rows, nil
		}

		aggs, err := s.repo.DailyAggregates(ctx, tenant, from, to)
		if err != nil {
			return nil, err
		}
		aggByDate := make(map[string]domain.DayAggregate, len(aggs))
		for _, agg := range aggs {
			aggByDate[agg.Date.Format(domain.DateLayout)] = agg
		}

		counts, err := s.repo.ListDailyCash(ctx, tenant, from, to)
		if err != nil {
			return nil, err
		}
		countByDate := make(map[string]decimal.Decimal, len(counts))
		for _, count := range counts {
			countByDate[count.Date.Format(domain.DateLayout)] = count.Amount
		}

		opening, err := s.openingCashBefore(ctx, tenant, from)
		if err != nil {
			return nil, err
		}

		for _, date := range dates {
			key := date.Format(domain.DateLayout)
			agg := aggByDate[key]

			needed := opening.Add(agg.CashIn).Sub(agg.CashExpense)
			row := domain.DailySummaryRow{
				Date:        key,
				OpeningCash: opening,
				CashIn:      agg.CashIn,
				CashExpense: agg.CashExpense,
				CashNeeded:  needed,
				Bank:        agg.BankIn,
				CreditSale:  agg.CreditSales.Sub(agg.CreditReceipts),
				TotalSales:  agg.TotalSales,
			}
			if count, counted := countByDate[key]; counted {
				row.ClosingCash = count
				row.CashInHand = &count
				row.CashShortExcess = count.Sub(needed)
			} else {
				row.ClosingCash = needed
				row.CashShortExcess = decimal.Zero
			}
			rows = append(rows, row)
			opening = row.ClosingCash
		}

		// Newest first on the wire.
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
		return rows, nil
	})
}

// ShortExcess is a column projection of DailySummary; the figures always come
// from the same walk, never from a second computation.
func (s *Service) ShortExcess(ctx context.Context, start, end string, days int) ([]domain.ShortExcessRow, error) {
	summary, err := s.DailySummary(ctx, start, end, days)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.ShortExcessRow, 0, len(summary))
	for _, day := range summary {
		rows = append(rows, domain.ShortExcessRow{
			Date:            day.Date,
			OpeningCash:     day.OpeningCash,
			CashIn:          day.CashIn,
			CashExpense:     day.CashExpense,
			CashNeeded:      day.CashNeeded,
			CashInHand:      day.CashInHand,
			CashShortExcess: day.CashShortExcess,
		})
	}
	return rows, nil
}
