package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tarkostock/internal/apierror"
	"tarkostock/internal/config"
	"tarkostock/internal/dto"
	"tarkostock/internal/middleware"
	"tarkostock/internal/model"
	"tarkostock/internal/repository"
	"tarkostock/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type stubQueue struct {
	jobID string
	err   error
	calls int
}

func (q *stubQueue) EnqueueSweep(_ context.Context, trigger string) (string, error) {
	q.calls++
	return q.jobID, q.err
}

type stubDeadLetters struct{ limit int64 }

func (d *stubDeadLetters) List(_ context.Context, limit int64) (*dto.DeadLetterList, error) {
	d.limit = limit
	return &dto.DeadLetterList{Queue: "jobs:consistency", Count: 1, Entries: []dto.DeadLetter{{
		JobType: "consistency_sweep", Reason: "store unavailable", Attempts: 3,
	}}}, nil
}

type testServer struct {
	engine   *gin.Engine
	variant  uuid.UUID
	customer uuid.UUID
	actor    uuid.UUID
}

func newTestServer(t *testing.T, queue *stubQueue, dead ...*stubDeadLetters) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore()
	s := &testServer{variant: uuid.New(), customer: uuid.New(), actor: uuid.New()}

	err := store.InTx(context.Background(), func(r repository.Repos) error {
		pt := &model.ProductType{ID: uuid.New(), Name: "HDPE Pipe", Kind: model.ProductKindRoll,
			RequiredParameters: datatypes.JSONSlice[string]{"OD"}}
		brand := &model.Brand{ID: uuid.New(), Name: "Tarko"}
		if err := r.Catalog.CreateProductType(context.Background(), pt); err != nil {
			return err
		}
		if err := r.Catalog.CreateBrand(context.Background(), brand); err != nil {
			return err
		}
		if err := r.Catalog.CreateVariant(context.Background(), &model.ProductVariant{
			ID: s.variant, ProductTypeID: pt.ID, BrandID: brand.ID, Active: true,
			Parameters: datatypes.JSONMap{"OD": "32"},
		}); err != nil {
			return err
		}
		return r.Catalog.CreateCustomer(context.Background(), &model.Customer{ID: s.customer, Name: "Demo Farms", Active: true})
	})
	require.NoError(t, err)

	deps := Deps{
		Store:     store,
		Lifecycle: service.NewLifecycleService(store, nil, service.Options{ConflictRetries: 1}),
		Ledger:    service.NewLedgerService(store),
		Catalog:   service.NewCatalogService(store, nil, 0),
		Checker:   service.NewConsistencyService(store),
	}
	if queue != nil {
		deps.Queue = queue
	}
	if len(dead) > 0 {
		deps.DeadLetters = dead[0]
	}
	s.engine = New(&config.Config{Env: "test", ServiceName: "tarkostock-test"}, deps)
	return s
}

func (s *testServer) do(t *testing.T, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderActorID, s.actor.String())
	if role != "" {
		req.Header.Set(middleware.HeaderActorRole, role)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) produce(t *testing.T) dto.OperationResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/batches", "operator", map[string]any{
		"product_variant_id": s.variant,
		"batch_code":         "B-" + uuid.NewString()[:8],
		"rolls":              []map[string]any{{"count": 2, "length": "100"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp dto.OperationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apierror.APIError {
	t.Helper()
	var env apierror.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "connected", body["store"])
	assert.Equal(t, "disabled", body["redis"])
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestProduce_Created(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.produce(t)

	assert.Equal(t, string(model.TxProduction), resp.Transaction.Type)
	require.NotNil(t, resp.Batch)
	assert.Equal(t, "200", resp.Batch.CurrentQuantity.String())
	require.Len(t, resp.Stock, 1)
	assert.Equal(t, 2, resp.Stock[0].Quantity)
}

func TestPolicy_Rejections(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]any{"product_variant_id": s.variant, "batch_code": "B-1", "spare_pieces": 1}

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		body   any
	}{
		{"auditor cannot produce", http.MethodPost, "/v1/batches", "auditor", body},
		{"missing role", http.MethodPost, "/v1/batches", "", body},
		{"unknown role", http.MethodGet, "/v1/transactions", "intern", nil},
		{"operator cannot scrap", http.MethodPost, "/v1/scraps", "operator", map[string]any{}},
		{"operator cannot revert", http.MethodPost, "/v1/transactions/" + uuid.NewString() + "/revert", "operator", nil},
		{"supervisor cannot sweep", http.MethodPost, "/v1/consistency/sweep", "supervisor", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, tc.method, tc.path, tc.role, tc.body)
			require.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, apierror.KindForbidden, decodeError(t, w).Kind)
		})
	}

	// Nothing reached the ledger.
	w := s.do(t, http.MethodGet, "/v1/transactions", "auditor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.TransactionListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Zero(t, list.Total)
}

func TestMalformedActorID(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/transactions", nil)
	req.Header.Set(middleware.HeaderActorID, "not-a-uuid")
	req.Header.Set(middleware.HeaderActorRole, "admin")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/v1/batches", "operator", map[string]any{"product_variant_id": s.variant})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var verr apierror.ValidationError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verr))
	assert.Equal(t, "required", verr.Fields["batch_code"])

	w = s.do(t, http.MethodPost, "/v1/stock/cut", "operator", map[string]any{
		"stock_id": uuid.New(), "cut_lengths": []string{"10", "-1"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verr))
	assert.Equal(t, "gt", verr.Fields["cut_lengths[1]"])

	// Item types are matched exactly, as the core does.
	w = s.do(t, http.MethodPost, "/v1/dispatches", "operator", map[string]any{
		"customer_id": s.customer,
		"items":       []map[string]any{{"stock_id": uuid.New(), "item_type": "full_roll", "quantity": 1}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verr))
	assert.Equal(t, "oneof", verr.Fields["items[0].item_type"])

	// Rejected by the core rather than the binder.
	w = s.do(t, http.MethodPost, "/v1/batches", "operator", map[string]any{
		"product_variant_id": s.variant, "batch_code": "B-empty",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apierror.KindValidation, decodeError(t, w).Kind)

	w = s.do(t, http.MethodGet, "/v1/transactions?limit=1000", "auditor", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCutDispatchAndRevert(t *testing.T) {
	s := newTestServer(t, nil)
	prod := s.produce(t)
	roll := prod.Stock[0].ID

	w := s.do(t, http.MethodPost, "/v1/stock/cut", "operator", map[string]any{
		"stock_id": roll, "cut_lengths": []string{"30", "70"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var cut dto.OperationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cut))
	assert.Len(t, cut.PieceIDs, 2)

	w = s.do(t, http.MethodPost, "/v1/dispatches", "operator", map[string]any{
		"customer_id": s.customer,
		"items":       []map[string]any{{"stock_id": roll, "item_type": "FULL_ROLL", "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var disp dto.OperationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &disp))

	w = s.do(t, http.MethodPost, "/v1/transactions/"+disp.Transaction.ID.String()+"/revert", "supervisor", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/transactions/"+disp.Transaction.ID.String()+"/revert", "supervisor",
		map[string]any{"reason": "again"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "transaction already reverted", decodeError(t, w).Detail)

	w = s.do(t, http.MethodGet, "/v1/pieces/"+cut.PieceIDs[0].String()+"/history", "auditor", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/v1/consistency", "auditor", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report dto.ConsistencyReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Empty(t, report.Violations)
}

func TestNotFoundAndBadIDs(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/v1/transactions/"+uuid.NewString(), "auditor", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/transactions/nope", "auditor", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/v1/consistency/sweeps/latest", "auditor", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSweep(t *testing.T) {
	t.Run("without a queue", func(t *testing.T) {
		s := newTestServer(t, nil)
		w := s.do(t, http.MethodPost, "/v1/consistency/sweep", "admin", nil)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, apierror.KindStorage, decodeError(t, w).Kind)
	})

	t.Run("queued", func(t *testing.T) {
		q := &stubQueue{jobID: "job-1"}
		s := newTestServer(t, q)
		w := s.do(t, http.MethodPost, "/v1/consistency/sweep", "admin", nil)
		require.Equal(t, http.StatusAccepted, w.Code)
		var resp dto.SweepResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.SweepResponse{Queued: true, JobID: "job-1"}, resp)
		assert.Equal(t, 1, q.calls)
	})

	t.Run("queue down", func(t *testing.T) {
		s := newTestServer(t, &stubQueue{err: errors.New("dial tcp: connection refused")})
		w := s.do(t, http.MethodPost, "/v1/consistency/sweep", "admin", nil)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NotContains(t, w.Body.String(), "dial tcp")
	})
}

func TestDeadLetters(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/v1/consistency/dead-letters", "admin", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	dead := &stubDeadLetters{}
	s = newTestServer(t, nil, dead)
	w = s.do(t, http.MethodGet, "/v1/consistency/dead-letters", "auditor", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/v1/consistency/dead-letters?limit=5", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.DeadLetterList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.EqualValues(t, 1, list.Count)
	assert.Equal(t, "consistency_sweep", list.Entries[0].JobType)
	assert.EqualValues(t, 5, dead.limit)

	w = s.do(t, http.MethodGet, "/v1/consistency/dead-letters?limit=0", "admin", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
