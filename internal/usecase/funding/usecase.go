package funding

import (
	"context"
	"strings"
	"time"

	"funfund-ledger/internal/domain/audit"
	domain "funfund-ledger/internal/domain/funding"
	"funfund-ledger/internal/domain/uow"
	"funfund-ledger/pkg/id"

	"github.com/rs/zerolog"
)

// MaxAttentionDays bounds the look-ahead of the attention query.
const MaxAttentionDays = 365

type Usecase struct {
	store   domain.Repository
	history audit.Reader
	uow     uow.UnitOfWork
	now     func() time.Time
}

// NewUsecase: store serves reads, tx carries every write together with its
// audit record.
func NewUsecase(store domain.Repository, history audit.Reader, tx uow.UnitOfWork) *Usecase {
	return &Usecase{store: store, history: history, uow: tx, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source; used by tests and the CLI.
func (u *Usecase) WithClock(now func() time.Time) *Usecase {
	u.now = now
	return u
}

func (u *Usecase) Create(ctx context.Context, actor domain.Actor, in CreateInput) (*RequestDTO, error) {
	r, err := domain.NewRequest(id.NewID32(), actor, in.Amount, in.Currency, in.Purpose, in.Metadata, u.now())
	if err != nil {
		return nil, err
	}
	rec := newRecord(actor, domain.OpCreate, nil, r, map[string]any{"version": r.Version})

	err = u.uow.WithinTx(ctx, func(repos uow.Repos) error {
		if err := repos.Requests.Create(ctx, r); err != nil {
			return err
		}
		return repos.Audit.Emit(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("request_id", r.ID).
		Str("org_id", r.OrganizationID).
		Str("amount", r.Principal.String()).
		Str("currency", r.Currency).
		Msg("funding request created")
	return toDTO(r), nil
}

func (u *Usecase) Get(ctx context.Context, actor domain.Actor, requestID string) (*RequestDTO, error) {
	r, err := u.load(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	return toDTO(r), nil
}

func (u *Usecase) List(ctx context.Context, actor domain.Actor, status string) ([]RequestDTO, error) {
	st := domain.Status(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: "unknown status"}
	}
	rows, err := u.store.List(ctx, actor.OrgID, st)
	if err != nil {
		return nil, err
	}
	out := make([]RequestDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *toDTO(&rows[i]))
	}
	return out, nil
}

func (u *Usecase) Submit(ctx context.Context, actor domain.Actor, requestID string) (*RequestDTO, error) {
	return u.mutate(ctx, actor, requestID, domain.Command{Op: domain.OpSubmit}, nil)
}

func (u *Usecase) Approve(ctx context.Context, actor domain.Actor, requestID string, in ReasonInput) (*RequestDTO, error) {
	return u.mutate(ctx, actor, requestID, domain.Command{Op: domain.OpApprove}, reasonMeta(in))
}

func (u *Usecase) Reject(ctx context.Context, actor domain.Actor, requestID string, in ReasonInput) (*RequestDTO, error) {
	return u.mutate(ctx, actor, requestID, domain.Command{Op: domain.OpReject}, reasonMeta(in))
}

func (u *Usecase) Close(ctx context.Context, actor domain.Actor, requestID string, in ReasonInput) (*RequestDTO, error) {
	return u.mutate(ctx, actor, requestID, domain.Command{Op: domain.OpClose}, reasonMeta(in))
}

func (u *Usecase) Disburse(ctx context.Context, actor domain.Actor, requestID string, in MovementInput) (*RequestDTO, error) {
	cmd := domain.Command{Op: domain.OpDisburse, Amount: in.Amount, IdempotencyKey: in.IdempotencyKey}
	return u.mutate(ctx, actor, requestID, cmd, movementMeta(in))
}

func (u *Usecase) Repay(ctx context.Context, actor domain.Actor, requestID string, in MovementInput) (*RequestDTO, error) {
	cmd := domain.Command{Op: domain.OpRepay, Amount: in.Amount, IdempotencyKey: in.IdempotencyKey}
	return u.mutate(ctx, actor, requestID, cmd, movementMeta(in))
}

func (u *Usecase) SetSchedule(ctx context.Context, actor domain.Actor, requestID string, in ScheduleInput) (*RequestDTO, error) {
	cmd := domain.Command{Op: domain.OpSchedule, Months: in.Months}
	return u.mutate(ctx, actor, requestID, cmd, map[string]any{"months": in.Months})
}

// Attention lists unpaid installments due within the next withinDays days,
// overdue ones included. An empty OrgID on actor means every organization
// and is only used by the maintenance CLI.
func (u *Usecase) Attention(ctx context.Context, actor domain.Actor, withinDays int) ([]AttentionDTO, error) {
	if withinDays < 0 || withinDays > MaxAttentionDays {
		return nil, &domain.ValidationError{Field: "within_days", Message: "must be between 0 and 365"}
	}
	items, err := u.store.ListAttention(ctx, actor.OrgID, u.now(), time.Duration(withinDays)*24*time.Hour)
	if err != nil {
		return nil, err
	}
	out := make([]AttentionDTO, 0, len(items))
	for _, it := range items {
		out = append(out, toAttentionDTO(it))
	}
	return out, nil
}

// History returns the audit trail of one request, oldest first.
func (u *Usecase) History(ctx context.Context, actor domain.Actor, requestID string) ([]audit.Record, error) {
	if _, err := u.load(ctx, actor, requestID); err != nil {
		return nil, err
	}
	recs, err := u.history.ListByEntity(ctx, audit.EntityFundingRequest, requestID)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []audit.Record{}
	}
	return recs, nil
}

// load hides requests of other organizations behind ErrNotFound.
func (u *Usecase) load(ctx context.Context, actor domain.Actor, requestID string) (*domain.FundingRequest, error) {
	if !id.Valid32(requestID) {
		return nil, domain.ErrNotFound
	}
	r, version, err := u.store.Load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.OrganizationID != actor.OrgID {
		return nil, domain.ErrNotFound
	}
	r.Version = version
	return r, nil
}

// mutate runs one lifecycle command: load, Apply, then commit the new state
// and its audit record in one transaction. A version mismatch at commit time
// surfaces as ErrConcurrencyConflict; nothing is retried here.
func (u *Usecase) mutate(ctx context.Context, actor domain.Actor, requestID string, cmd domain.Command, meta map[string]any) (*RequestDTO, error) {
	cur, err := u.load(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	log := zerolog.Ctx(ctx).With().Str("request_id", requestID).Str("op", string(cmd.Op)).Logger()

	cmd.Actor = actor
	cmd.At = u.now()
	cmd.RecordID = id.NewID32()
	next, outcome, err := domain.Apply(cur, cmd)
	if err != nil {
		log.Debug().Err(err).Msg("funding command refused")
		return nil, err
	}
	if outcome.Replayed {
		log.Info().Str("idempotency_key", cmd.IdempotencyKey).Msg("idempotent replay")
		return toDTO(cur), nil
	}

	expected := cur.Version
	next.Version = expected + 1
	if meta == nil {
		meta = map[string]any{}
	}
	meta["version"] = next.Version
	rec := newRecord(actor, cmd.Op, cur, next, meta)

	err = u.uow.WithinTx(ctx, func(repos uow.Repos) error {
		v, err := repos.Requests.Commit(ctx, requestID, expected, next)
		if err != nil {
			return err
		}
		next.Version = v
		return repos.Audit.Emit(ctx, rec)
	})
	if err != nil {
		log.Warn().Err(err).Int64("expected_version", expected).Msg("funding commit failed")
		return nil, err
	}
	log.Info().
		Str("status", string(next.Status)).
		Int64("version", next.Version).
		Str("outstanding", next.Outstanding().String()).
		Msg("funding request updated")
	return toDTO(next), nil
}

func newRecord(actor domain.Actor, op domain.Operation, before, after *domain.FundingRequest, meta map[string]any) audit.Record {
	return audit.Record{
		ID:          id.NewID32(),
		Entity:      audit.EntityFundingRequest,
		EntityID:    after.ID,
		ActorUserID: actor.UserID,
		Action:      string(op),
		Diff:        audit.ComputeDiff(domain.Snapshot(before), domain.Snapshot(after)),
		Meta:        meta,
		CreatedAt:   after.UpdatedAt,
	}
}

func reasonMeta(in ReasonInput) map[string]any {
	if r := strings.TrimSpace(in.Reason); r != "" {
		return map[string]any{"reason": r}
	}
	return nil
}

func movementMeta(in MovementInput) map[string]any {
	m := map[string]any{"amount": in.Amount.String()}
	if k := strings.TrimSpace(in.IdempotencyKey); k != "" {
		m["idempotency_key"] = k
	}
	return m
}
