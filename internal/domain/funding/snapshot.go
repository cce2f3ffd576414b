package funding

import (
	"fmt"
	"time"
)

// Snapshot flattens the aggregate into field → scalar pairs for audit
// diffs. Owned records are keyed by position, e.g. "repayments.2.amount".
// A nil request yields an empty snapshot.
func Snapshot(r *FundingRequest) map[string]any {
	out := map[string]any{}
	if r == nil {
		return out
	}
	out["id"] = r.ID
	out["organization_id"] = r.OrganizationID
	out["amount"] = r.Principal.String()
	out["currency"] = r.Currency
	out["purpose"] = r.Purpose
	out["status"] = string(r.Status)
	out["version"] = r.Version
	out["created_by"] = r.CreatedBy
	out["balance.outstanding"] = r.Outstanding().String()
	for k, v := range r.Metadata {
		out["metadata."+k] = v
	}
	for i, d := range r.Disbursements {
		p := fmt.Sprintf("disbursements.%d.", i)
		out[p+"id"] = d.ID
		out[p+"amount"] = d.Amount.String()
		out[p+"created_at"] = d.CreatedAt.UTC().Format(time.RFC3339)
		if d.IdempotencyKey != nil {
			out[p+"idempotency_key"] = *d.IdempotencyKey
		}
	}
	for i, rp := range r.Repayments {
		p := fmt.Sprintf("repayments.%d.", i)
		out[p+"id"] = rp.ID
		out[p+"amount"] = rp.Amount.String()
		out[p+"created_at"] = rp.CreatedAt.UTC().Format(time.RFC3339)
		if rp.IdempotencyKey != nil {
			out[p+"idempotency_key"] = *rp.IdempotencyKey
		}
	}
	for i, e := range r.Schedule {
		p := fmt.Sprintf("schedule.%d.", i)
		out[p+"due"] = e.DueDate.Format(time.DateOnly)
		out[p+"amount"] = e.Amount.String()
		out[p+"paid"] = e.PaidToDate.String()
	}
	return out
}
