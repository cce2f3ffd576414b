package funding

import (
	"time"

	domain "funfund-ledger/internal/domain/funding"

	"github.com/shopspring/decimal"
)

type CreateInput struct {
	Amount   decimal.Decimal   `json:"amount" validate:"decpos"`
	Currency string            `json:"currency" validate:"required,iso4217"`
	Purpose  string            `json:"purpose" validate:"max=2000"`
	Metadata map[string]string `json:"metadata" validate:"max=32"`
}

// MovementInput is the body of disburse and repay.
type MovementInput struct {
	Amount         decimal.Decimal `json:"amount" validate:"decpos"`
	IdempotencyKey string          `json:"idempotency_key" validate:"omitempty,max=64"`
}

type ScheduleInput struct {
	Months int `json:"months" validate:"required,min=1,max=600"`
}

// ReasonInput is accepted by approve, reject and close. Reason ends up in the
// audit record only.
type ReasonInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

type BalanceDTO struct {
	Outstanding decimal.Decimal `json:"outstanding"`
	Disbursed   decimal.Decimal `json:"disbursed"`
	Repaid      decimal.Decimal `json:"repaid"`
}

type ScheduleEntryDTO struct {
	Seq    int             `json:"seq"`
	Due    string          `json:"due"`
	Amount decimal.Decimal `json:"amount"`
	Paid   decimal.Decimal `json:"paid"`
}

// MovementDTO is a disbursement or a repayment.
type MovementDTO struct {
	ID             string          `json:"id"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	ActorID        string          `json:"actor_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

type RequestDTO struct {
	ID            string             `json:"id"`
	Amount        decimal.Decimal    `json:"amount"`
	Currency      string             `json:"currency"`
	Purpose       string             `json:"purpose"`
	Status        string             `json:"status"`
	Version       int64              `json:"version"`
	Balance       BalanceDTO         `json:"balance"`
	Schedule      []ScheduleEntryDTO `json:"schedule,omitempty"`
	Disbursements []MovementDTO      `json:"disbursements"`
	Repayments    []MovementDTO      `json:"repayments"`
	Metadata      map[string]any     `json:"metadata"`
	CreatedBy     string             `json:"created_by"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type AttentionDTO struct {
	RequestID      string          `json:"request_id"`
	OrganizationID string          `json:"organization_id"`
	Currency       string          `json:"currency"`
	Seq            int             `json:"seq"`
	Due            string          `json:"due"`
	Remaining      decimal.Decimal `json:"remaining"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	Kind           string          `json:"kind"`
}

func toDTO(r *domain.FundingRequest) *RequestDTO {
	out := &RequestDTO{
		ID:       r.ID,
		Amount:   r.Principal,
		Currency: r.Currency,
		Purpose:  r.Purpose,
		Status:   string(r.Status),
		Version:  r.Version,
		Balance: BalanceDTO{
			Outstanding: r.Outstanding(),
			Disbursed:   r.Disbursed(),
			Repaid:      r.Repaid(),
		},
		Disbursements: make([]MovementDTO, 0, len(r.Disbursements)),
		Repayments:    make([]MovementDTO, 0, len(r.Repayments)),
		Metadata:      map[string]any{},
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}
	for _, d := range r.Disbursements {
		out.Disbursements = append(out.Disbursements, movement(d.ID, d.Amount, d.IdempotencyKey, d.ActorID, d.CreatedAt))
	}
	for _, p := range r.Repayments {
		out.Repayments = append(out.Repayments, movement(p.ID, p.Amount, p.IdempotencyKey, p.ActorID, p.CreatedAt))
	}
	for _, e := range r.Schedule {
		out.Schedule = append(out.Schedule, ScheduleEntryDTO{
			Seq:    e.Seq,
			Due:    e.DueDate.Format(time.DateOnly),
			Amount: e.Amount,
			Paid:   e.PaidToDate,
		})
	}
	return out
}

func movement(id string, amount decimal.Decimal, key *string, actor string, at time.Time) MovementDTO {
	m := MovementDTO{ID: id, Amount: amount, ActorID: actor, CreatedAt: at}
	if key != nil {
		m.IdempotencyKey = *key
	}
	return m
}

func toAttentionDTO(it domain.AttentionItem) AttentionDTO {
	return AttentionDTO{
		RequestID:      it.RequestID,
		OrganizationID: it.OrganizationID,
		Currency:       it.Currency,
		Seq:            it.Seq,
		Due:            it.DueDate.Format(time.DateOnly),
		Remaining:      it.Remaining,
		Outstanding:    it.Outstanding,
		Kind:           string(it.Kind),
	}
}
