package funding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"funfund-ledger/internal/adapter/repository/memory"
	"funfund-ledger/internal/domain/audit"
	domain "funfund-ledger/internal/domain/funding"
	"funfund-ledger/internal/domain/uow"
	"funfund-ledger/internal/testutil/auditmock"
	"funfund-ledger/internal/testutil/fundingmock"
	"funfund-ledger/internal/testutil/uowmock"

	"github.com/shopspring/decimal"
)

var (
	alice   = domain.Actor{UserID: "user-alice", OrgID: "org-1"}
	mallory = domain.Actor{UserID: "user-mallory", OrgID: "org-2"}
	clock   = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newMemoryUsecase() (*Usecase, *memory.Store) {
	s := memory.New()
	return NewUsecase(s, s, s).WithClock(func() time.Time { return clock }), s
}

func mustCreate(t *testing.T, uc *Usecase, amount string) *RequestDTO {
	t.Helper()
	dto, err := uc.Create(context.Background(), alice, CreateInput{Amount: d(amount), Currency: "USD", Purpose: "inventory"})
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	return dto
}

func TestCreate_DraftAndAudit(t *testing.T) {
	uc, store := newMemoryUsecase()
	ctx := context.Background()

	dto := mustCreate(t, uc, "10000")
	if len(dto.ID) != 32 {
		t.Fatalf("ID length: %d", len(dto.ID))
	}
	if dto.Status != "draft" || dto.Version != 1 {
		t.Fatalf("status=%s version=%d", dto.Status, dto.Version)
	}
	if !dto.Balance.Outstanding.IsZero() {
		t.Fatalf("outstanding=%s", dto.Balance.Outstanding)
	}

	recs, _ := store.ListByEntity(ctx, audit.EntityFundingRequest, dto.ID)
	if len(recs) != 1 || recs[0].Action != "create" || recs[0].ActorUserID != alice.UserID {
		t.Fatalf("unexpected audit: %+v", recs)
	}
	if recs[0].Diff.Added["status"] != "draft" {
		t.Fatalf("create diff should add status: %+v", recs[0].Diff)
	}
}

func TestCreate_Invalid(t *testing.T) {
	uc, _ := newMemoryUsecase()
	_, err := uc.Create(context.Background(), alice, CreateInput{Amount: d("-1"), Currency: "USD"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "amount" {
		t.Fatalf("want ValidationError on amount, got %v", err)
	}
}

func TestLifecycle_EndToEnd(t *testing.T) {
	uc, store := newMemoryUsecase()
	ctx := context.Background()
	id := mustCreate(t, uc, "10000").ID

	steps := []struct {
		name string
		run  func() (*RequestDTO, error)
		want string
	}{
		{"submit", func() (*RequestDTO, error) { return uc.Submit(ctx, alice, id) }, "submitted"},
		{"approve", func() (*RequestDTO, error) { return uc.Approve(ctx, alice, id, ReasonInput{}) }, "approved"},
		{"disburse", func() (*RequestDTO, error) {
			return uc.Disburse(ctx, alice, id, MovementInput{Amount: d("10000"), IdempotencyKey: "dis-1"})
		}, "disbursed"},
		{"schedule", func() (*RequestDTO, error) { return uc.SetSchedule(ctx, alice, id, ScheduleInput{Months: 6}) }, "disbursed"},
		{"repay", func() (*RequestDTO, error) { return uc.Repay(ctx, alice, id, MovementInput{Amount: d("10000")}) }, "repaid"},
		{"close", func() (*RequestDTO, error) { return uc.Close(ctx, alice, id, ReasonInput{Reason: "settled"}) }, "closed"},
	}
	for i, st := range steps {
		dto, err := st.run()
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if dto.Status != st.want {
			t.Fatalf("%s: status=%s want %s", st.name, dto.Status, st.want)
		}
		if dto.Version != int64(i+2) {
			t.Fatalf("%s: version=%d want %d", st.name, dto.Version, i+2)
		}
	}

	recs, err := uc.History(ctx, alice, id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(recs) != len(steps)+1 {
		t.Fatalf("want %d audit records, got %d", len(steps)+1, len(recs))
	}
	last := recs[len(recs)-1]
	if last.Meta["reason"] != "settled" || last.Diff.Changed["status"] != [2]any{"repaid", "closed"} {
		t.Fatalf("close record: %+v", last)
	}

	// terminal: nothing else goes through, nothing else is recorded
	if _, err := uc.Repay(ctx, alice, id, MovementInput{Amount: d("1")}); !isState(err) {
		t.Fatalf("repay after close: want StateError, got %v", err)
	}
	after, _ := store.ListByEntity(ctx, audit.EntityFundingRequest, id)
	if len(after) != len(recs) {
		t.Fatalf("refused operation must not emit audit")
	}
}

func TestSchedule_SumsToBaseWithRemainderOnLast(t *testing.T) {
	uc, _ := newMemoryUsecase()
	ctx := context.Background()
	id := mustCreate(t, uc, "10000").ID
	_, _ = uc.Submit(ctx, alice, id)
	_, _ = uc.Approve(ctx, alice, id, ReasonInput{})

	dto, err := uc.SetSchedule(ctx, alice, id, ScheduleInput{Months: 6})
	if err != nil {
		t.Fatalf("SetSchedule: %v", err)
	}
	if len(dto.Schedule) != 6 {
		t.Fatalf("entries=%d", len(dto.Schedule))
	}
	sum := decimal.Zero
	for _, e := range dto.Schedule[:5] {
		if !e.Amount.Equal(d("1666.66")) {
			t.Fatalf("installment=%s", e.Amount)
		}
		sum = sum.Add(e.Amount)
	}
	if last := dto.Schedule[5].Amount; !last.Equal(d("1666.70")) {
		t.Fatalf("last=%s", last)
	}
	if !sum.Add(dto.Schedule[5].Amount).Equal(d("10000")) {
		t.Fatalf("sum != principal")
	}
	if dto.Schedule[0].Due != "2026-06-01" {
		t.Fatalf("first due=%s", dto.Schedule[0].Due)
	}
}

func TestDisburse_OverdrawAndReplay(t *testing.T) {
	uc, store := newMemoryUsecase()
	ctx := context.Background()
	id := mustCreate(t, uc, "10000").ID
	_, _ = uc.Submit(ctx, alice, id)
	_, _ = uc.Approve(ctx, alice, id, ReasonInput{})

	first, err := uc.Disburse(ctx, alice, id, MovementInput{Amount: d("4000"), IdempotencyKey: "k-1"})
	if err != nil {
		t.Fatalf("Disburse: %v", err)
	}
	again, err := uc.Disburse(ctx, alice, id, MovementInput{Amount: d("4000"), IdempotencyKey: "k-1"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if again.Version != first.Version || len(again.Disbursements) != 1 {
		t.Fatalf("replay must not commit: %+v", again)
	}
	recs, _ := store.ListByEntity(ctx, audit.EntityFundingRequest, id)
	if len(recs) != 4 {
		t.Fatalf("replay must not emit audit, got %d records", len(recs))
	}

	_, err = uc.Disburse(ctx, alice, id, MovementInput{Amount: d("6000.01")})
	var oe *domain.OverdrawError
	if !errors.As(err, &oe) || !oe.Available.Equal(d("6000")) {
		t.Fatalf("want OverdrawError with 6000 available, got %v", err)
	}

	_, err = uc.Disburse(ctx, alice, id, MovementInput{Amount: d("10"), IdempotencyKey: "k-1"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "idempotency_key" {
		t.Fatalf("want ValidationError on idempotency_key, got %v", err)
	}
}

func TestRepay_BeforeDisbursementIsStateError(t *testing.T) {
	uc, _ := newMemoryUsecase()
	ctx := context.Background()
	id := mustCreate(t, uc, "100").ID
	_, _ = uc.Submit(ctx, alice, id)
	_, _ = uc.Approve(ctx, alice, id, ReasonInput{})

	if _, err := uc.Repay(ctx, alice, id, MovementInput{Amount: d("1")}); !isState(err) {
		t.Fatalf("want StateError, got %v", err)
	}
}

func TestOtherOrganizationSeesNotFound(t *testing.T) {
	uc, _ := newMemoryUsecase()
	ctx := context.Background()
	id := mustCreate(t, uc, "100").ID

	if _, err := uc.Get(ctx, mallory, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get: want ErrNotFound, got %v", err)
	}
	if _, err := uc.Submit(ctx, mallory, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Submit: want ErrNotFound, got %v", err)
	}
	if _, err := uc.History(ctx, mallory, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("History: want ErrNotFound, got %v", err)
	}
	if _, err := uc.Get(ctx, alice, "not-an-id"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("malformed id: want ErrNotFound, got %v", err)
	}
}

func TestList_FiltersByStatus(t *testing.T) {
	uc, _ := newMemoryUsecase()
	ctx := context.Background()
	a := mustCreate(t, uc, "100").ID
	mustCreate(t, uc, "200")
	_, _ = uc.Submit(ctx, alice, a)

	all, err := uc.List(ctx, alice, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("List all: %d %v", len(all), err)
	}
	sub, err := uc.List(ctx, alice, "Submitted")
	if err != nil || len(sub) != 1 || sub[0].ID != a {
		t.Fatalf("List submitted: %+v %v", sub, err)
	}
	if _, err := uc.List(ctx, alice, "pending"); err == nil {
		t.Fatalf("unknown status must be rejected")
	}
	other, _ := uc.List(ctx, mallory, "")
	if len(other) != 0 {
		t.Fatalf("other org sees %d requests", len(other))
	}
}

func TestAttention(t *testing.T) {
	uc, _ := newMemoryUsecase()
	ctx := context.Background()
	id := mustCreate(t, uc, "300").ID
	_, _ = uc.Submit(ctx, alice, id)
	_, _ = uc.Approve(ctx, alice, id, ReasonInput{})
	_, _ = uc.Disburse(ctx, alice, id, MovementInput{Amount: d("300")})
	_, _ = uc.SetSchedule(ctx, alice, id, ScheduleInput{Months: 3})

	uc.WithClock(func() time.Time { return time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC) })
	items, err := uc.Attention(ctx, alice, 30)
	if err != nil {
		t.Fatalf("Attention: %v", err)
	}
	if len(items) != 2 || items[0].Kind != "overdue" || items[1].Kind != "due_soon" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if items[0].Due != "2026-06-01" || !items[0].Remaining.Equal(d("100")) {
		t.Fatalf("first item: %+v", items[0])
	}

	if _, err := uc.Attention(ctx, alice, -1); err == nil {
		t.Fatalf("negative window must be rejected")
	}
}

func TestConcurrentDisbursements_NoDoubleApply(t *testing.T) {
	uc, _ := newMemoryUsecase()
	ctx := context.Background()
	id := mustCreate(t, uc, "1000").ID
	_, _ = uc.Submit(ctx, alice, id)
	_, _ = uc.Approve(ctx, alice, id, ReasonInput{})

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = uc.Disburse(ctx, alice, id, MovementInput{Amount: d("1000")})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConcurrencyConflict):
		default:
			var oe *domain.OverdrawError
			if !errors.As(err, &oe) {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	}
	if ok != 1 {
		t.Fatalf("want exactly one successful disbursement, got %d", ok)
	}
	got, _ := uc.Get(ctx, alice, id)
	if !got.Balance.Disbursed.Equal(d("1000")) {
		t.Fatalf("disbursed=%s", got.Balance.Disbursed)
	}
}

func TestMutate_ConflictAtCommitLeavesNoAudit(t *testing.T) {
	r, _ := domain.NewRequest("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", alice, d("100"), "USD", "", nil, clock)
	sink := &auditmock.Sink{}
	repo := &fundingmock.Repo{
		LoadFn: func(context.Context, string) (*domain.FundingRequest, int64, error) { return r.Clone(), 1, nil },
		CommitFn: func(_ context.Context, _ string, expected int64, next *domain.FundingRequest) (int64, error) {
			if expected != 1 || next.Version != 2 || next.Status != domain.StatusSubmitted {
				t.Fatalf("commit args: expected=%d next=%+v", expected, next)
			}
			return 0, domain.ErrConcurrencyConflict
		},
	}
	uc := NewUsecase(repo, sink, uowmock.Passthrough(uow.Repos{Requests: repo, Audit: sink}))

	_, err := uc.Submit(context.Background(), alice, r.ID)
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("want ErrConcurrencyConflict, got %v", err)
	}
	if len(sink.Records) != 0 {
		t.Fatalf("audit emitted despite failed commit")
	}
}

func TestMutate_SinkFailureSurfaces(t *testing.T) {
	r, _ := domain.NewRequest("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", alice, d("100"), "USD", "", nil, clock)
	sink := &auditmock.Sink{EmitFn: func(context.Context, audit.Record) error { return domain.ErrUnavailable }}
	repo := &fundingmock.Repo{
		LoadFn: func(context.Context, string) (*domain.FundingRequest, int64, error) { return r.Clone(), 1, nil },
	}
	uc := NewUsecase(repo, sink, uowmock.Passthrough(uow.Repos{Requests: repo, Audit: sink}))

	if _, err := uc.Submit(context.Background(), alice, r.ID); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestMutate_LoadFailure(t *testing.T) {
	repo := &fundingmock.Repo{} // Load defaults to context.Canceled
	uc := NewUsecase(repo, &auditmock.Sink{}, uowmock.New())
	if _, err := uc.Submit(context.Background(), alice, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func isState(err error) bool {
	var se *domain.StateError
	return errors.As(err, &se)
}
