package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	testKey = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testOrg = "org-1"
)

// helper: new Echo with Actor + Idempotency and a simple route
func setupEcho(rdb *redis.Client, ttl time.Duration, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(Actor(), Idempotency(rdb, ttl))
	e.POST("/requests", handler)
	e.GET("/requests", handler) // for non-mutating bypass test
	return e
}

func mkJSONBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func headers(org, key string) map[string]string {
	h := map[string]string{HeaderActorID: "user-1", HeaderOrgID: org}
	if key != "" {
		h[HeaderIdempotencyKey] = key
	}
	return h
}

func doReq(t *testing.T, e *echo.Echo, method, path string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

// countingHandler answers 201 with the number of times it ran.
func countingHandler(n *atomic.Int32) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusCreated, map[string]any{"calls": n.Add(1)})
	}
}

func Test_BypassOnGET(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	e := setupEcho(rdb, 30*time.Second, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "get ok"})
	})
	rec := doReq(t, e, http.MethodGet, "/requests", nil, headers(testOrg, testKey))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("GET must not touch redis, keys=%v", mr.Keys())
	}
}

func Test_NoKey_PassesThroughEveryTime(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, time.Minute, countingHandler(&n))

	for i := 0; i < 2; i++ {
		rec := doReq(t, e, http.MethodPost, "/requests", mkJSONBody(t, map[string]int{"x": 1}), headers(testOrg, ""))
		if rec.Code != http.StatusCreated {
			t.Fatalf("want 201, got %d", rec.Code)
		}
	}
	if n.Load() != 2 {
		t.Fatalf("handler calls = %d, want 2", n.Load())
	}
}

func Test_InvalidKey(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, time.Minute, countingHandler(&n))

	rec := doReq(t, e, http.MethodPost, "/requests", mkJSONBody(t, map[string]int{"x": 1}), headers(testOrg, "NOT-VALID"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid key => want 400, got %d", rec.Code)
	}
	if n.Load() != 0 {
		t.Fatalf("handler must not run")
	}
}

func Test_MissingActor_401(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, time.Minute, countingHandler(&n))

	rec := doReq(t, e, http.MethodPost, "/requests", mkJSONBody(t, map[string]int{"x": 1}), map[string]string{HeaderActorID: "u"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing org => want 401, got %d", rec.Code)
	}
}

func Test_HappyPath_Then_Replay(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, 2*time.Minute, countingHandler(&n))

	body := map[string]any{"amount": 4000}
	rec1 := doReq(t, e, http.MethodPost, "/requests", mkJSONBody(t, body), headers(testOrg, testKey))
	if rec1.Code != http.StatusCreated {
		t.Fatalf("first request => want 201, got %d, body: %s", rec1.Code, rec1.Body.String())
	}

	// same key and body -> stored response, handler not called again
	rec2 := doReq(t, e, http.MethodPost, "/requests", mkJSONBody(t, body), headers(testOrg, testKey))
	if rec2.Code != http.StatusCreated {
		t.Fatalf("replay => want 201, got %d, body: %s", rec2.Code, rec2.Body.String())
	}
	if rec1.Body.String() != rec2.Body.String() {
		t.Fatalf("replay body mismatch: %q vs %q", rec1.Body.String(), rec2.Body.String())
	}
	if rec2.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("replay header missing")
	}
	if n.Load() != 1 {
		t.Fatalf("handler calls = %d, want 1", n.Load())
	}

	// the same key from another organization is a different request
	rec3 := doReq(t, e, http.MethodPost, "/requests", mkJSONBody(t, body), headers("org-2", testKey))
	if rec3.Code != http.StatusCreated || n.Load() != 2 {
		t.Fatalf("other org => want fresh 201, got %d calls=%d", rec3.Code, n.Load())
	}
}

func Test_ServerError_IsNotStored(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, time.Minute, func(c echo.Context) error {
		if n.Add(1) == 1 {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "store down")
		}
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	rec1 := doReq(t, e, http.MethodPost, "/requests", mkJSONBody(t, map[string]int{"x": 1}), headers(testOrg, testKey))
	if rec1.Code != http.StatusServiceUnavailable {
		t.Fatalf("first => want 503, got %d", rec1.Code)
	}
	rec2 := doReq(t, e, http.MethodPost, "/requests", mkJSONBody(t, map[string]int{"x": 1}), headers(testOrg, testKey))
	if rec2.Code != http.StatusOK || n.Load() != 2 {
		t.Fatalf("retry after 5xx => want fresh 200, got %d calls=%d", rec2.Code, n.Load())
	}
}

func Test_Conflict_When_InProgress(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, 2*time.Minute, countingHandler(&n))

	body := []byte(`{"x":1}`)
	key := buildKey(http.MethodPost, "/requests", testOrg, testKey)
	entry := idempEntry{InProgress: true, BodySHA256: bodyHash(body), Key: testKey, CreatedAt: time.Now().UTC()}
	if ok, err := provisionalSet(context.Background(), rdb, key, entry); err != nil || !ok {
		t.Fatalf("seed provisional failed, ok=%v err=%v", ok, err)
	}

	rec := doReq(t, e, http.MethodPost, "/requests", bytes.NewReader(body), headers(testOrg, testKey))
	if rec.Code != http.StatusConflict {
		t.Fatalf("in-progress => want 409, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func Test_Conflict_When_SameKey_DifferentBody(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, 2*time.Minute, countingHandler(&n))

	key := buildKey(http.MethodPost, "/requests", testOrg, testKey)
	final := idempEntry{
		Code:       http.StatusCreated,
		Body:       []byte(`{"ok":true}`),
		BodySHA256: bodyHash([]byte(`{"x":1}`)),
		Key:        testKey,
		CreatedAt:  time.Now().UTC(),
	}
	if err := saveFinal(context.Background(), rdb, key, final, 5*time.Minute); err != nil {
		t.Fatalf("seed final failed: %v", err)
	}

	rec := doReq(t, e, http.MethodPost, "/requests", bytes.NewReader([]byte(`{"x":2}`)), headers(testOrg, testKey))
	if rec.Code != http.StatusConflict {
		t.Fatalf("different body same key => want 409, got %d", rec.Code)
	}
	if n.Load() != 0 {
		t.Fatalf("handler must not run")
	}
}

func Test_HandlerError_IsRenderedAndStored(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	e := setupEcho(rdb, time.Minute, func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, errors.New("overdraw").Error())
	})

	rec := doReq(t, e, http.MethodPost, "/requests", mkJSONBody(t, map[string]int{"x": 1}), headers(testOrg, testKey))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d", rec.Code)
	}
	got, err := loadEntry(context.Background(), rdb, buildKey(http.MethodPost, "/requests", testOrg, testKey))
	if err != nil {
		t.Fatalf("loadEntry: %v", err)
	}
	if got.InProgress || got.Code != http.StatusUnprocessableEntity {
		t.Fatalf("stored entry = %+v", got)
	}
}

func Test_ConflictResponse_IsNotStored(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var n atomic.Int32
	e := setupEcho(rdb, time.Minute, func(c echo.Context) error {
		if n.Add(1) == 1 {
			return c.JSON(http.StatusConflict, map[string]string{"error": "version changed", "code": "conflict"})
		}
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	body := map[string]int{"x": 1}
	rec1 := doReq(t, e, http.MethodPost, "/requests", mkJSONBody(t, body), headers(testOrg, testKey))
	if rec1.Code != http.StatusConflict {
		t.Fatalf("first => want 409, got %d", rec1.Code)
	}
	if _, err := loadEntry(context.Background(), rdb, buildKey(http.MethodPost, "/requests", testOrg, testKey)); err == nil {
		t.Fatalf("409 response must release the key")
	}

	rec2 := doReq(t, e, http.MethodPost, "/requests", mkJSONBody(t, body), headers(testOrg, testKey))
	if rec2.Code != http.StatusOK || n.Load() != 2 {
		t.Fatalf("retry after 409 => want fresh 200, got %d calls=%d", rec2.Code, n.Load())
	}
	if rec2.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("retry after 409 must not be a replay")
	}
}

func Test_StoreUnavailable_Returns503(t *testing.T) {
	// closed address → SetNX error
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	e := setupEcho(rdb, time.Minute, func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := doReq(t, e, http.MethodPost, "/requests", bytes.NewReader([]byte(`{}`)), headers(testOrg, testKey))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("store unavailable => want 503, got %d", rec.Code)
	}
}

func Test_SameKey_DifferentPath_RunsBoth(t *testing.T) {
	mr, rdb := newMiniredisClient(t)
	defer mr.Close()
	var n atomic.Int32
	e := echo.New()
	e.Use(Actor(), Idempotency(rdb, time.Minute))
	e.POST("/requests/:id/disburse", countingHandler(&n))

	body := []byte(`{"amount":1}`)
	rec1 := doReq(t, e, http.MethodPost, "/requests/a/disburse", bytes.NewReader(body), headers(testOrg, testKey))
	rec2 := doReq(t, e, http.MethodPost, "/requests/b/disburse", bytes.NewReader(body), headers(testOrg, testKey))
	if rec1.Code != http.StatusCreated || rec2.Code != http.StatusCreated {
		t.Fatalf("want 201/201, got %d/%d", rec1.Code, rec2.Code)
	}
	if n.Load() != 2 || rec2.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("second path must not replay the first, calls=%d", n.Load())
	}
}
