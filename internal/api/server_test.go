package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"card-recon-engine/internal/batch"
	"card-recon-engine/internal/matcher"
	"card-recon-engine/internal/models"
	"card-recon-engine/internal/orchestrator"
	"card-recon-engine/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *orchestrator.Orchestrator, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	orch := orchestrator.New(st, matcher.NewEngine(nil), &orchestrator.Config{Workers: 1, QueueSize: 4})
	t.Cleanup(orch.Close)
	return NewServer("127.0.0.1:0", orch), orch, st
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStartBatchEmptyBody(t *testing.T) {
	s, orch, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/batches/start", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp startBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.BatchID)
	assert.Equal(t, string(batch.StatusProcessing), resp.Status)
	assert.False(t, resp.StartedAt.IsZero())

	// The batch is durable and carries the operator default.
	b, err := orch.GetBatch(context.Background(), resp.BatchID)
	require.NoError(t, err)
	assert.Equal(t, "SYSTEM", b.CreatedBy)
}

func TestStartBatchWithBody(t *testing.T) {
	s, orch, _ := newTestServer(t)

	body := `{"createdBy":"scheduler","configSnapshot":"{\"batchWindow\":{\"windowStart\":\"2024-03-01T00:00:00\",\"windowEnd\":\"2024-03-08T00:00:00\"}}"}`
	rec := doRequest(s, http.MethodPost, "/api/batches/start", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp startBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	b, err := orch.GetBatch(context.Background(), resp.BatchID)
	require.NoError(t, err)
	assert.Equal(t, "scheduler", b.CreatedBy)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), b.WindowStart.UTC())
}

func TestStartBatchInvalidJSON(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/batches/start", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBatchNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/batches/no-such-batch", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "no-such-batch")
}

func TestGetBatchAfterCompletion(t *testing.T) {
	s, _, st := newTestServer(t)

	ts := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	_, err := st.InsertBankTransactionIfAbsent(context.Background(), &models.BankTransaction{
		TxnID: "B1", CardNumber: "411111******1111",
		Amount: decimal.NewFromInt(100), Currency: "USD", TxnTimestamp: ts,
	})
	require.NoError(t, err)
	_, err = st.InsertSchemeTransactionIfAbsent(context.Background(), &models.SchemeTransaction{
		TxnID: "S1", CardNumber: "411111******1111",
		Amount: decimal.NewFromInt(100), Currency: "USD", TxnTimestamp: ts,
	})
	require.NoError(t, err)

	body := `{"configSnapshot":"{\"batchWindow\":{\"windowStart\":\"2024-03-01T00:00:00\",\"windowEnd\":\"2024-03-08T00:00:00\"}}"}`
	rec := doRequest(s, http.MethodPost, "/api/batches/start", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var started startBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	// Execution is asynchronous; poll the status endpoint like an operator
	// would.
	var final batchResponse
	require.Eventually(t, func() bool {
		rec := doRequest(s, http.MethodGet, "/api/batches/"+started.BatchID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &final); err != nil {
			return false
		}
		return batch.Status(final.Status).IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, string(batch.StatusCompleted), final.Status)
	assert.Equal(t, 2, final.TotalProcessed)
	assert.Equal(t, 1, final.ExactMatches)
	assert.Equal(t, 0, final.Exceptions)
	require.NotNil(t, final.EndedAt)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(s, http.MethodDelete, "/api/batches/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
