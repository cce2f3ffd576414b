package funding

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Operation string

const (
	OpCreate   Operation = "create"
	OpSubmit   Operation = "submit"
	OpApprove  Operation = "approve"
	OpReject   Operation = "reject"
	OpDisburse Operation = "disburse"
	OpSchedule Operation = "schedule"
	OpRepay    Operation = "repay"
	OpClose    Operation = "close"
)

type transition struct {
	from []Status
	to   Status // empty: status unchanged (or decided by the operation)
}

var transitions = map[Operation]transition{
	OpSubmit:   {from: []Status{StatusDraft}, to: StatusSubmitted},
	OpApprove:  {from: []Status{StatusSubmitted}, to: StatusApproved},
	OpReject:   {from: []Status{StatusSubmitted}, to: StatusRejected},
	OpDisburse: {from: []Status{StatusApproved, StatusDisbursed}, to: StatusDisbursed},
	OpSchedule: {from: []Status{StatusApproved, StatusDisbursed}},
	OpRepay:    {from: []Status{StatusDisbursed}},
	OpClose:    {from: []Status{StatusRepaid}, to: StatusClosed},
}

// Allowed reports whether op may run against a request in status s.
func Allowed(op Operation, s Status) bool {
	t, ok := transitions[op]
	if !ok {
		return false
	}
	for _, f := range t.from {
		if f == s {
			return true
		}
	}
	return false
}

// Command is one lifecycle operation. Only the fields relevant to Op are read.
type Command struct {
	Op             Operation
	Actor          Actor
	Amount         decimal.Decimal
	Months         int
	IdempotencyKey string
	// RecordID names the Disbursement or Repayment created by this command.
	RecordID string
	At       time.Time
}

// Outcome describes what Apply did besides returning the new aggregate.
type Outcome struct {
	// Replayed is set when an idempotency key matched an existing record;
	// the returned aggregate is the input and nothing must be committed.
	Replayed bool
}

// Apply is the single gate for every mutation. It never modifies r; on
// success it returns the next state of the aggregate with UpdatedAt set.
// On error no partial effect exists.
func Apply(r *FundingRequest, cmd Command) (*FundingRequest, Outcome, error) {
	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key != "" {
		if replay, err := checkReplay(r, cmd.Op, key, cmd.Amount); err != nil || replay {
			return r, Outcome{Replayed: replay}, err
		}
	}

	if !Allowed(cmd.Op, r.Status) {
		return nil, Outcome{}, &StateError{Status: r.Status, Operation: cmd.Op}
	}

	var (
		next *FundingRequest
		err  error
	)
	switch cmd.Op {
	case OpSubmit, OpApprove, OpReject, OpClose:
		next = r.Clone()
	case OpDisburse:
		next, err = Disburse(r, Disbursement{
			ID:             cmd.RecordID,
			Amount:         cmd.Amount,
			IdempotencyKey: keyPtr(key),
			ActorID:        cmd.Actor.UserID,
			CreatedAt:      cmd.At,
		})
	case OpRepay:
		next, err = Repay(r, Repayment{
			ID:             cmd.RecordID,
			Amount:         cmd.Amount,
			IdempotencyKey: keyPtr(key),
			ActorID:        cmd.Actor.UserID,
			CreatedAt:      cmd.At,
		})
		if err == nil && next.Outstanding().IsZero() {
			next.Status = StatusRepaid
		}
	case OpSchedule:
		next, err = schedule(r, cmd.Months, cmd.At)
	}
	if err != nil {
		return nil, Outcome{}, err
	}

	if to := transitions[cmd.Op].to; to != "" {
		next.Status = to
	}
	next.UpdatedAt = cmd.At
	return next, Outcome{}, nil
}

// schedule replaces the repayment plan. Before any disbursement the plan
// covers the principal and starts from the call time; afterwards it covers
// the outstanding balance and is anchored on the first disbursement.
func schedule(r *FundingRequest, months int, now time.Time) (*FundingRequest, error) {
	base, anchor := r.Principal, now
	if len(r.Disbursements) > 0 {
		base = r.Outstanding()
		anchor = r.Disbursements[0].CreatedAt
	}
	entries, err := GenerateSchedule(base, months, anchor, r.Currency)
	if err != nil {
		return nil, err
	}
	next := r.Clone()
	for i := range entries {
		entries[i].RequestID = r.ID
	}
	next.Schedule = entries
	return next, nil
}

func checkReplay(r *FundingRequest, op Operation, key string, amount decimal.Decimal) (bool, error) {
	var (
		prev  decimal.Decimal
		found bool
	)
	switch op {
	case OpDisburse:
		var d Disbursement
		d, found = findDisbursement(r, key)
		prev = d.Amount
	case OpRepay:
		var p Repayment
		p, found = findRepayment(r, key)
		prev = p.Amount
	default:
		return false, nil
	}
	if !found {
		return false, nil
	}
	if !prev.Equal(amount) {
		return false, invalid("idempotency_key", "already used with a different amount")
	}
	return true, nil
}

func keyPtr(k string) *string {
	if k == "" {
		return nil
	}
	return &k
}

// NewRequest builds a draft request. The caller assigns ID and timestamps.
func NewRequest(id string, actor Actor, principal decimal.Decimal, currency, purpose string, meta map[string]string, now time.Time) (*FundingRequest, error) {
	if strings.TrimSpace(actor.OrgID) == "" {
		return nil, invalid("organization_id", "is required")
	}
	cur, err := NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	if err := ValidateAmount("amount", principal, cur); err != nil {
		return nil, err
	}
	md, err := NewMetadata(meta)
	if err != nil {
		return nil, err
	}
	return &FundingRequest{
		ID:             id,
		OrganizationID: actor.OrgID,
		Principal:      principal,
		Currency:       cur,
		Purpose:        strings.TrimSpace(purpose),
		Status:         StatusDraft,
		Metadata:       md,
		CreatedBy:      actor.UserID,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
