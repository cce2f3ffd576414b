package funding

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusDisbursed Status = "disbursed"
	StatusRepaid    Status = "repaid"
	StatusRejected  Status = "rejected"
	StatusClosed    Status = "closed"
)

// Terminal reports whether no further mutation is permitted.
func (s Status) Terminal() bool { return s == StatusRejected || s == StatusClosed }

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusDisbursed,
		StatusRepaid, StatusRejected, StatusClosed:
		return true
	}
	return false
}

// Actor is the authenticated caller of an operation. It is always passed
// explicitly; nothing in this package reads identity from ambient state.
type Actor struct {
	UserID string
	OrgID  string
}

// FundingRequest is the aggregate root. Owned records are only ever created
// through Apply.
type FundingRequest struct {
	ID             string            `gorm:"primaryKey;size:32;column:id"`
	OrganizationID string            `gorm:"size:64;not null;index:idx_funding_requests_org_status,priority:1;column:organization_id"`
	Principal      decimal.Decimal   `gorm:"type:decimal(20,4);not null;column:principal"`
	Currency       string            `gorm:"size:3;not null;column:currency"`
	Purpose        string            `gorm:"type:text;column:purpose"`
	Status         Status            `gorm:"size:16;not null;default:'draft';index:idx_funding_requests_org_status,priority:2;column:status"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata"`
	CreatedBy      string            `gorm:"size:64;column:created_by"`
	Version        int64             `gorm:"not null;default:1;column:version"`
	CreatedAt      time.Time         `gorm:"column:created_at"`
	UpdatedAt      time.Time         `gorm:"column:updated_at"`

	Disbursements []Disbursement  `gorm:"foreignKey:RequestID;references:ID"`
	Repayments    []Repayment     `gorm:"foreignKey:RequestID;references:ID"`
	Schedule      []ScheduleEntry `gorm:"foreignKey:RequestID;references:ID"`
}

func (FundingRequest) TableName() string { return "funding_requests" }

type Disbursement struct {
	ID             string          `gorm:"primaryKey;size:32;column:id"`
	RequestID      string          `gorm:"size:32;not null;index;uniqueIndex:ux_disbursements_request_idemp,priority:1;column:request_id"`
	Seq            int             `gorm:"not null;column:seq"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null;column:amount"`
	IdempotencyKey *string         `gorm:"size:64;uniqueIndex:ux_disbursements_request_idemp,priority:2;column:idempotency_key"`
	ActorID        string          `gorm:"size:64;column:actor_id"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
}

func (Disbursement) TableName() string { return "funding_disbursements" }

type Repayment struct {
	ID             string          `gorm:"primaryKey;size:32;column:id"`
	RequestID      string          `gorm:"size:32;not null;index;uniqueIndex:ux_repayments_request_idemp,priority:1;column:request_id"`
	Seq            int             `gorm:"not null;column:seq"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null;column:amount"`
	IdempotencyKey *string         `gorm:"size:64;uniqueIndex:ux_repayments_request_idemp,priority:2;column:idempotency_key"`
	ActorID        string          `gorm:"size:64;column:actor_id"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
}

func (Repayment) TableName() string { return "funding_repayments" }

type ScheduleEntry struct {
	RequestID  string          `gorm:"primaryKey;size:32;column:request_id"`
	Seq        int             `gorm:"primaryKey;autoIncrement:false;column:seq"`
	DueDate    time.Time       `gorm:"type:date;not null;index;column:due_date"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null;column:amount"`
	PaidToDate decimal.Decimal `gorm:"type:decimal(20,4);not null;column:paid_to_date"`
}

func (ScheduleEntry) TableName() string { return "funding_schedule_entries" }

// Remaining is the unpaid part of the installment.
func (e ScheduleEntry) Remaining() decimal.Decimal { return e.Amount.Sub(e.PaidToDate) }

// Clone returns a deep copy so pure operations never alias the input.
func (r *FundingRequest) Clone() *FundingRequest {
	if r == nil {
		return nil
	}
	out := *r
	if r.Metadata != nil {
		out.Metadata = make(datatypes.JSONMap, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	out.Disbursements = append([]Disbursement(nil), r.Disbursements...)
	out.Repayments = append([]Repayment(nil), r.Repayments...)
	out.Schedule = append([]ScheduleEntry(nil), r.Schedule...)
	return &out
}
