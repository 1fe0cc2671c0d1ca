package account

import "github.com/shopspring/decimal"

// Aggregate returns the net position across accounts, rounded to cents.
// Depository adds available (current when available is unknown), credit
// subtracts current, investment adds current, and loan subtracts current
// only when includeLoans is set.
func Aggregate(accounts []*Account, includeLoans bool) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		if a == nil || a.Balances == nil {
			continue
		}
		total = total.Add(contribution(a.Balances, includeLoans))
	}
	return total.Round(2)
}

func contribution(b Balances, includeLoans bool) decimal.Decimal {
	switch v := b.(type) {
	case DepositoryBalances:
		if v.Available != nil {
			return *v.Available
		}
		return v.Current
	case CreditBalances:
		return v.Current.Neg()
	case InvestmentBalances:
		return v.Current
	case LoanBalances:
		if includeLoans {
			return v.Current.Neg()
		}
		return decimal.Zero
	default:
		return decimal.Zero
	}
}
