// Package fee computes gateway fees for PIX charges.
package fee

import (
	"errors"
	"fmt"

	"pix-gateway/internal/core/domain"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("fee: amount must be positive")
	ErrInvalidScheme  = errors.New("fee: invalid fee scheme")
	ErrUnknownFeeType = errors.New("fee: unknown fee type")
)

var hundred = decimal.NewFromInt(100)

// Result holds a fee breakdown in reais.
type Result struct {
	Fee                 decimal.Decimal
	Net                 decimal.Decimal
	EffectivePercentage decimal.Decimal // reporting only
}

// Calculate derives the fee for amount under scheme, clamped to [MinFee, MaxFee]
// and rounded half-up to cents. Net is never negative.
func Calculate(amount decimal.Decimal, scheme domain.FeeScheme, dir domain.Direction) (*Result, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if err := validate(scheme); err != nil {
		return nil, err
	}

	pct, fixed := scheme.Components(dir)

	var raw decimal.Decimal
	switch scheme.Type {
	case domain.FeeTypePercentage:
		raw = amount.Mul(pct).Div(hundred)
	case domain.FeeTypeFixed:
		raw = fixed
	case domain.FeeTypeMixed:
		raw = amount.Mul(pct).Div(hundred).Add(fixed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeeType, scheme.Type)
	}

	if raw.LessThan(scheme.MinFee) {
		raw = scheme.MinFee
	}
	if scheme.MaxFee != nil && raw.GreaterThan(*scheme.MaxFee) {
		raw = *scheme.MaxFee
	}

	fee := raw.Round(2)
	net := amount.Sub(fee)
	if net.IsNegative() {
		net = decimal.Zero
	}

	return &Result{
		Fee:                 fee,
		Net:                 net.Round(2),
		EffectivePercentage: fee.Div(amount).Mul(hundred).Round(2),
	}, nil
}

// CalculateMinor runs Calculate on centavo amounts.
func CalculateMinor(amount int64, scheme domain.FeeScheme, dir domain.Direction) (feeAmount, netAmount int64, err error) {
	res, err := Calculate(decimal.New(amount, -2), scheme, dir)
	if err != nil {
		return 0, 0, err
	}
	return res.Fee.Shift(2).IntPart(), res.Net.Shift(2).IntPart(), nil
}

func validate(s domain.FeeScheme) error {
	for _, d := range []decimal.Decimal{s.CashInPercentage, s.CashInFixed, s.CashOutPercentage, s.CashOutFixed, s.MinFee} {
		if d.IsNegative() {
			return fmt.Errorf("%w: negative component", ErrInvalidScheme)
		}
	}
	if s.MaxFee != nil && s.MaxFee.LessThan(s.MinFee) {
		return fmt.Errorf("%w: max_fee below min_fee", ErrInvalidScheme)
	}
	return nil
}
