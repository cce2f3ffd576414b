package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"funfund-ledger/internal/adapter/middleware"
	domain "funfund-ledger/internal/domain/funding"
	"funfund-ledger/internal/usecase/funding"

	"github.com/labstack/echo/v4"
)

type FundingHandler struct {
	uc                   *funding.Usecase
	defaultAttentionDays int
}

func NewFundingHandler(uc *funding.Usecase, defaultAttentionDays int) *FundingHandler {
	return &FundingHandler{uc: uc, defaultAttentionDays: defaultAttentionDays}
}

func (h *FundingHandler) Create(c echo.Context) error {
	var req funding.CreateInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := c.Validate(&req); err != nil {
		return invalidBody(c, err)
	}
	dto, err := h.uc.Create(c.Request().Context(), middleware.ActorFrom(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *FundingHandler) List(c echo.Context) error {
	out, err := h.uc.List(c.Request().Context(), middleware.ActorFrom(c), c.QueryParam("status"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *FundingHandler) Attention(c echo.Context) error {
	days := h.defaultAttentionDays
	if raw := c.QueryParam("within_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "within_days must be an integer", Code: "bad_request"})
		}
		days = n
	}
	out, err := h.uc.Attention(c.Request().Context(), middleware.ActorFrom(c), days)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *FundingHandler) Get(c echo.Context) error {
	dto, err := h.uc.Get(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *FundingHandler) History(c echo.Context) error {
	recs, err := h.uc.History(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *FundingHandler) Submit(c echo.Context) error {
	dto, err := h.uc.Submit(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *FundingHandler) Approve(c echo.Context) error {
	return h.withReason(c, h.uc.Approve)
}

func (h *FundingHandler) Reject(c echo.Context) error {
	return h.withReason(c, h.uc.Reject)
}

func (h *FundingHandler) Close(c echo.Context) error {
	return h.withReason(c, h.uc.Close)
}

func (h *FundingHandler) Disburse(c echo.Context) error {
	return h.movement(c, h.uc.Disburse)
}

func (h *FundingHandler) Repay(c echo.Context) error {
	return h.movement(c, h.uc.Repay)
}

func (h *FundingHandler) Schedule(c echo.Context) error {
	var req funding.ScheduleInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalidBody(c, err)
	}
	dto, err := h.uc.SetSchedule(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type reasonOp = func(ctx context.Context, actor domain.Actor, id string, in funding.ReasonInput) (*funding.RequestDTO, error)

func (h *FundingHandler) withReason(c echo.Context, op reasonOp) error {
	var req funding.ReasonInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalidBody(c, err)
	}
	dto, err := op(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type movementOp = func(ctx context.Context, actor domain.Actor, id string, in funding.MovementInput) (*funding.RequestDTO, error)

// movement binds disburse and repay. The ledger idempotency key comes from
// the body, or from the Idempotency-Key header when the body has none.
func (h *FundingHandler) movement(c echo.Context, op movementOp) error {
	var req funding.MovementInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = strings.ToLower(strings.TrimSpace(c.Request().Header.Get(middleware.HeaderIdempotencyKey)))
	}
	if err := c.Validate(&req); err != nil {
		return invalidBody(c, err)
	}
	dto, err := op(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}
