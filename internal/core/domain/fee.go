package domain

import "github.com/shopspring/decimal"

// FeeType selects how a fee is derived from the charge amount.
type FeeType string

const (
	FeeTypePercentage FeeType = "PERCENTAGE"
	FeeTypeFixed      FeeType = "FIXED"
	FeeTypeMixed      FeeType = "MIXED"
)

// FeeScheme values are in reais; percentages are 0-100.
type FeeScheme struct {
	Type              FeeType          `json:"type"`
	CashInPercentage  decimal.Decimal  `json:"cash_in_percentage"`
	CashInFixed       decimal.Decimal  `json:"cash_in_fixed"`
	CashOutPercentage decimal.Decimal  `json:"cash_out_percentage"`
	CashOutFixed      decimal.Decimal  `json:"cash_out_fixed"`
	MinFee            decimal.Decimal  `json:"min_fee"`
	MaxFee            *decimal.Decimal `json:"max_fee,omitempty"`
}

// Components returns the percentage and fixed parts for a direction.
func (s FeeScheme) Components(dir Direction) (percentage, fixed decimal.Decimal) {
	if dir == DirectionCashOut {
		return s.CashOutPercentage, s.CashOutFixed
	}
	return s.CashInPercentage, s.CashInFixed
}
