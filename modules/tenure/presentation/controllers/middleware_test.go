package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/groveops/grove/modules/tenure/domain/checkin"
	"github.com/groveops/grove/modules/tenure/services"
	"github.com/groveops/grove/pkg/composables"
	"github.com/groveops/grove/pkg/eventbus"
	"github.com/groveops/grove/pkg/repo"
)

// stubTx satisfies pgx.Tx without a database; only Commit and Rollback are
// reachable through the handlers under test.
type stubTx struct {
	pgx.Tx
	committed bool
}

func (t *stubTx) Commit(context.Context) error { t.committed = true; return nil }
func (t *stubTx) Rollback(context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	return nil
}

type stubPool struct {
	repo.Tx
}

func (p *stubPool) Begin(context.Context) (pgx.Tx, error) { return &stubTx{}, nil }

// stubCheckInRepo keeps check-ins in memory keyed by id.
type stubCheckInRepo struct {
	items map[uuid.UUID]checkin.CheckIn
}

func newStubCheckInRepo() *stubCheckInRepo {
	return &stubCheckInRepo{items: map[uuid.UUID]checkin.CheckIn{}}
}

func (r *stubCheckInRepo) GetByID(_ context.Context, id uuid.UUID) (*checkin.CheckIn, error) {
	c, ok := r.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

func (r *stubCheckInRepo) FindOpen(_ context.Context, subjectID, dimensionID uuid.UUID, kind checkin.Kind) (*checkin.CheckIn, error) {
	for _, c := range r.items {
		if c.SubjectID() == subjectID && c.DimensionID() == dimensionID && c.Kind() == kind && !c.IsFinalized() {
			return &c, nil
		}
	}
	return nil, nil
}

func (r *stubCheckInRepo) ListOpenBySubject(_ context.Context, subjectID uuid.UUID) ([]checkin.CheckIn, error) {
	var out []checkin.CheckIn
	for _, c := range r.items {
		if c.SubjectID() == subjectID && !c.IsFinalized() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}

func (r *stubCheckInRepo) Insert(_ context.Context, c checkin.CheckIn) (checkin.CheckIn, error) {
	c = checkin.Hydrate(
		c.TenantID(), uuid.New(), c.SubjectID(), c.DimensionID(), c.Kind(),
		c.EmployeeRating(), c.EmployeePrivateNotes(), c.EmployeeCompletedAt(),
		c.ManagerRating(), c.ManagerPrivateNotes(), c.ManagerCompletedAt(),
		c.OfficialRating(), c.SharedNotes(), c.OfficialCompletedAt(),
		c.FinalizedByID(), c.EmployeeAcknowledgedAt(), c.CreatedAt(), c.UpdatedAt(),
	)
	r.items[c.ID()] = c
	return c, nil
}

func (r *stubCheckInRepo) Update(_ context.Context, c checkin.CheckIn) (checkin.CheckIn, error) {
	if _, ok := r.items[c.ID()]; !ok {
		return checkin.CheckIn{}, pgx.ErrNoRows
	}
	r.items[c.ID()] = c
	return c, nil
}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	logger := logrus.New()
	service := services.NewCheckInService(newStubCheckInRepo(), eventbus.NewEventPublisher(logger))

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := composables.WithPool(r.Context(), &stubPool{})
			ctx = composables.WithLogger(ctx, logrus.NewEntry(logger))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	NewCheckInAPIController(service).Register(router)
	return router
}

func doJSON(t *testing.T, router *mux.Router, method, target string, headers map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRequireTenant_RejectsMissingHeader(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/tenure/api/check-ins", nil, map[string]string{
		"subject_id":   uuid.NewString(),
		"dimension_id": uuid.NewString(),
		"kind":         "assignment",
	})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var payload apiError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "TENURE_INVALID_BODY", payload.Code)
}

func TestCheckInAPI_FindOrCreateIsStable(t *testing.T) {
	router := newTestRouter(t)
	headers := map[string]string{
		"X-Tenant-ID":  uuid.NewString(),
		"X-Request-ID": "req-checkin-1",
	}
	body := map[string]string{
		"subject_id":   uuid.NewString(),
		"dimension_id": uuid.NewString(),
		"kind":         "assignment",
	}

	first := doJSON(t, router, http.MethodPost, "/tenure/api/check-ins", headers, body)
	require.Equal(t, http.StatusOK, first.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &created))
	require.Equal(t, "empty", created["state"])
	require.NotEmpty(t, created["id"])

	second := doJSON(t, router, http.MethodPost, "/tenure/api/check-ins", headers, body)
	require.Equal(t, http.StatusOK, second.Code)
	var found map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &found))
	require.Equal(t, created["id"], found["id"])
}

func TestCheckInAPI_MalformedBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/tenure/api/check-ins", bytes.NewBufferString("{"))
	req.Header.Set("X-Tenant-ID", uuid.NewString())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var payload apiError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "TENURE_INVALID_BODY", payload.Code)
	require.Equal(t, "malformed request body", payload.Message)
}

func TestCheckInAPI_FinalizeConflictKeepsServiceMessage(t *testing.T) {
	router := newTestRouter(t)
	headers := map[string]string{
		"X-Tenant-ID": uuid.NewString(),
		"X-Actor-ID":  uuid.NewString(),
	}

	created := doJSON(t, router, http.MethodPost, "/tenure/api/check-ins", headers, map[string]string{
		"subject_id":   uuid.NewString(),
		"dimension_id": uuid.NewString(),
		"kind":         "assignment",
	})
	require.Equal(t, http.StatusOK, created.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &payload))

	target := fmt.Sprintf("/tenure/api/check-ins/%s/finalize", payload["id"])
	rr := doJSON(t, router, http.MethodPost, target, headers, map[string]any{"rating": 4})

	require.Equal(t, http.StatusConflict, rr.Code)
	var conflict apiError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &conflict))
	require.Equal(t, "TENURE_STATE_CONFLICT", conflict.Code)
}

func TestProvideRequestParams_CapturesClient(t *testing.T) {
	var got *composables.Params
	handler := ProvideRequestParams()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = composables.UseParams(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/tenure/api/check-ins", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("User-Agent", "grove-test")
	req.Header.Set("X-Request-ID", "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	require.Equal(t, "203.0.113.9", got.IP)
	require.Equal(t, "grove-test", got.UserAgent)
	require.Equal(t, "req-42", got.RequestID)
}

func TestWriteServiceError_SurfacesExecutionFailuresVerbatim(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tenure/api/changes", nil)
	req.Header.Set("X-Request-ID", "req-500")

	err := &services.ServiceError{
		Status:  http.StatusInternalServerError,
		Code:    "TENURE_EXECUTION_FAILED",
		Message: "change execution failed at delta 0 (anticipated_energy_percentage)",
		Cause:   errors.New("deadlock detected"),
	}
	writeServiceError(rr, req, err)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var payload apiError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "TENURE_EXECUTION_FAILED", payload.Code)
	require.Contains(t, payload.Message, "delta 0")
	require.Contains(t, payload.Message, "deadlock detected")
	require.Equal(t, "req-500", payload.Meta["request_id"])
}

func TestWriteServiceError_RejectionsKeepTheirMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tenure/api/changes", nil)

	err := &services.ServiceError{
		Status:  http.StatusConflict,
		Code:    "TENURE_STATE_CONFLICT",
		Message: "an open tenure already exists for this subject and dimension",
		Cause:   errors.New("SQLSTATE 23505"),
	}
	writeServiceError(rr, req, err)

	require.Equal(t, http.StatusConflict, rr.Code)
	var payload apiError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "an open tenure already exists for this subject and dimension", payload.Message)
	require.NotContains(t, payload.Message, "SQLSTATE")
}
