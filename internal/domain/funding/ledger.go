package funding

import "github.com/shopspring/decimal"

// Disburse validates d against r and returns a copy of r with d appended.
// Status is left alone; Apply owns transitions.
func Disburse(r *FundingRequest, d Disbursement) (*FundingRequest, error) {
	if err := ValidateAmount("amount", d.Amount, r.Currency); err != nil {
		return nil, err
	}
	available := r.Principal.Sub(r.Disbursed())
	if d.Amount.GreaterThan(available) {
		return nil, &OverdrawError{Operation: OpDisburse, Requested: d.Amount, Available: available}
	}
	next := r.Clone()
	d.RequestID = r.ID
	d.Seq = len(r.Disbursements) + 1
	next.Disbursements = append(next.Disbursements, d)
	return next, nil
}

// Repay validates p against the outstanding balance and returns a copy of r
// with p appended and the amount allocated to schedule entries oldest first.
func Repay(r *FundingRequest, p Repayment) (*FundingRequest, error) {
	if err := ValidateAmount("amount", p.Amount, r.Currency); err != nil {
		return nil, err
	}
	outstanding := r.Outstanding()
	if p.Amount.GreaterThan(outstanding) {
		return nil, &OverdrawError{Operation: OpRepay, Requested: p.Amount, Available: outstanding}
	}
	next := r.Clone()
	p.RequestID = r.ID
	p.Seq = len(r.Repayments) + 1
	next.Repayments = append(next.Repayments, p)
	allocate(next.Schedule, p.Amount)
	return next, nil
}

// allocate spreads amount over unpaid installments in due order. Anything
// left once every installment is covered is not tracked per entry.
func allocate(entries []ScheduleEntry, amount decimal.Decimal) {
	left := amount
	for i := range entries {
		if !left.IsPositive() {
			return
		}
		rem := entries[i].Remaining()
		if !rem.IsPositive() {
			continue
		}
		pay := decimal.Min(rem, left)
		entries[i].PaidToDate = entries[i].PaidToDate.Add(pay)
		left = left.Sub(pay)
	}
}

func findDisbursement(r *FundingRequest, key string) (Disbursement, bool) {
	for _, d := range r.Disbursements {
		if d.IdempotencyKey != nil && *d.IdempotencyKey == key {
			return d, true
		}
	}
	return Disbursement{}, false
}

func findRepayment(r *FundingRequest, key string) (Repayment, bool) {
	for _, p := range r.Repayments {
		if p.IdempotencyKey != nil && *p.IdempotencyKey == key {
			return p, true
		}
	}
	return Repayment{}, false
}
