package funding

import (
	"time"

	"github.com/shopspring/decimal"
)

const MaxScheduleMonths = 600

// GenerateSchedule splits base into months installments, each truncated to
// the currency's smallest unit, with the truncation remainder added to the
// last one. Installment i is due i calendar months after anchor.
func GenerateSchedule(base decimal.Decimal, months int, anchor time.Time, currency string) ([]ScheduleEntry, error) {
	if months <= 0 {
		return nil, invalid("months", "must be greater than 0")
	}
	if months > MaxScheduleMonths {
		return nil, invalid("months", "must be at most 600")
	}
	if !base.IsPositive() {
		return nil, invalid("amount", "nothing to schedule")
	}

	per := base.Div(decimal.NewFromInt(int64(months))).Truncate(MinorUnit(currency))
	last := base.Sub(per.Mul(decimal.NewFromInt(int64(months - 1))))

	out := make([]ScheduleEntry, months)
	for i := range out {
		amt := per
		if i == months-1 {
			amt = last
		}
		out[i] = ScheduleEntry{
			Seq:        i + 1,
			DueDate:    addMonths(anchor, i+1),
			Amount:     amt,
			PaidToDate: decimal.Zero,
		}
	}
	return out, nil
}

// addMonths moves t forward n calendar months, clamping to the last day of
// the target month (Jan 31 + 1 month = Feb 28/29). The result is a UTC date.
func addMonths(t time.Time, n int) time.Time {
	t = t.UTC()
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}
