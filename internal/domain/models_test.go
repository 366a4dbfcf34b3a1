package domain

import "testing"

func TestNormalizeMode(t *testing.T) {
	cases := map[string]string{
		"cash":        ModeCash,
		" Cash ":      ModeCash,
		"CREDIT":      ModeCredit,
		"upi":         ModeUPI,
		"gpay":        ModeBank,
		"GPAY":        ModeBank,
		"Google Pay":  ModeBank,
		"googlepay":   ModeBank,
		"bank":        ModeBank,
		"Cheque":      "Cheque",
		" Barter    ": "Barter",
	}
	for raw, want := range cases {
		if got := NormalizeMode(raw); got != want {
			t.Errorf("NormalizeMode(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestIsBankClass(t *testing.T) {
	for _, mode := range BankClassModes() {
		if !IsBankClass(mode) {
			t.Errorf("IsBankClass(%q) = false", mode)
		}
	}
	for _, mode := range []string{ModeCash, ModeCredit, "Cheque", ""} {
		if IsBankClass(mode) {
			t.Errorf("IsBankClass(%q) = true", mode)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  Ravi Traders "); got != "ravi_traders" {
		t.Fatalf("NormalizeName = %q", got)
	}
}

func TestLedgerEffect(t *testing.T) {
	if LedgerEffect(TxnSale) != 1 {
		t.Error("Sale must increase the balance")
	}
	for _, txnType := range []string{TxnReceipt, TxnSaleReturn, TxnExpense, TxnPurchase, "Journal"} {
		if LedgerEffect(txnType) != -1 {
			t.Errorf("LedgerEffect(%q) = %d, want -1", txnType, LedgerEffect(txnType))
		}
	}
}

func TestIsInflow(t *testing.T) {
	if !IsInflow(TxnSale) || !IsInflow(TxnReceipt) {
		t.Error("Sale and Receipt are inflows")
	}
	if IsInflow(TxnExpense) || IsInflow(TxnPurchase) || IsInflow(TxnSaleReturn) {
		t.Error("outflow types misclassified")
	}
}
