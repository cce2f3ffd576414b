package funding

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var reCurrency = regexp.MustCompile(`^[A-Z]{3}$`)

// ISO 4217 minor units that differ from the default of 2.
var minorUnits = map[string]int32{
	"JPY": 0, "KRW": 0, "VND": 0, "CLP": 0, "ISK": 0,
	"UGX": 0, "XAF": 0, "XOF": 0, "PYG": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "JOD": 3, "TND": 3, "IQD": 3, "LYD": 3,
}

// MinorUnit is the number of fractional digits of the smallest currency unit.
func MinorUnit(currency string) int32 {
	if n, ok := minorUnits[currency]; ok {
		return n
	}
	return 2
}

// NormalizeCurrency upper-cases and checks a three letter code.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !reCurrency.MatchString(c) {
		return "", invalid("currency", "must be a 3-letter ISO 4217 code")
	}
	return c, nil
}

// MaxAmount is the largest amount a decimal(20,4) column holds.
var MaxAmount = decimal.RequireFromString("9999999999999999.9999")

// ValidateAmount requires a positive amount expressible in the currency's
// smallest unit and storable without rounding.
func ValidateAmount(field string, amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return invalid(field, "must be greater than 0")
	}
	if amount.GreaterThan(MaxAmount) {
		return invalid(field, "must not exceed "+MaxAmount.String())
	}
	if !amount.Equal(amount.Truncate(MinorUnit(currency))) {
		return invalid(field, "has more decimal places than "+currency+" allows")
	}
	return nil
}

func sumDisbursed(ds []Disbursement) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d.Amount)
	}
	return total
}

func sumRepaid(rs []Repayment) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rs {
		total = total.Add(r.Amount)
	}
	return total
}

func (r *FundingRequest) Disbursed() decimal.Decimal { return sumDisbursed(r.Disbursements) }
func (r *FundingRequest) Repaid() decimal.Decimal    { return sumRepaid(r.Repayments) }

// Outstanding is disbursed minus repaid; never negative for a committed aggregate.
func (r *FundingRequest) Outstanding() decimal.Decimal {
	return r.Disbursed().Sub(r.Repaid())
}
