package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"card-recon-engine/internal/batch"
	"card-recon-engine/internal/matcher"
	"card-recon-engine/internal/models"
	"card-recon-engine/internal/store"
	reconerrors "card-recon-engine/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLedgers(t *testing.T, st store.Store, base time.Time) {
	t.Helper()
	ctx := context.Background()

	// Two exact pairs, one fuzzy pair, one bank-only record.
	for i := 0; i < 2; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		amount := decimal.NewFromInt(int64(100 + i))
		_, err := st.InsertBankTransactionIfAbsent(ctx, &models.BankTransaction{
			TxnID: fmt.Sprintf("B%d", i), CardNumber: "411111******1111",
			Amount: amount, Currency: "USD", TxnTimestamp: ts,
		})
		require.NoError(t, err)
		_, err = st.InsertSchemeTransactionIfAbsent(ctx, &models.SchemeTransaction{
			TxnID: fmt.Sprintf("S%d", i), CardNumber: "411111******1111",
			Amount: amount, Currency: "USD", TxnTimestamp: ts.Add(30 * time.Minute),
		})
		require.NoError(t, err)
	}

	_, err := st.InsertBankTransactionIfAbsent(ctx, &models.BankTransaction{
		TxnID: "B-fuzzy", CardNumber: "555555******4444",
		Amount: decimal.NewFromFloat(200.00), Currency: "USD",
		TxnTimestamp: base.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	_, err = st.InsertSchemeTransactionIfAbsent(ctx, &models.SchemeTransaction{
		TxnID: "S-fuzzy", CardNumber: "555555******4444",
		Amount: decimal.NewFromFloat(200.05), Currency: "USD",
		TxnTimestamp: base.Add(4 * time.Hour),
	})
	require.NoError(t, err)

	_, err = st.InsertBankTransactionIfAbsent(ctx, &models.BankTransaction{
		TxnID: "B-alone", CardNumber: "400000******0002",
		Amount: decimal.NewFromFloat(999.99), Currency: "GBP",
		TxnTimestamp: base.Add(5 * time.Hour),
	})
	require.NoError(t, err)
}

func newOrchestrator(st store.Store) *Orchestrator {
	return New(st, matcher.NewEngine(nil), &Config{Workers: 1, QueueSize: 4})
}

func TestCreateDefaults(t *testing.T) {
	st := store.NewMemoryStore()
	orch := newOrchestrator(st)
	defer orch.Close()

	b, err := orch.Create(context.Background(), "", "")
	require.NoError(t, err)

	assert.NotEmpty(t, b.BatchID)
	assert.Equal(t, batch.StatusProcessing, b.Status)
	assert.Equal(t, "SYSTEM", b.CreatedBy)
	assert.Equal(t, "{}", b.ConfigSnapshot)
	// Empty snapshot resolves to the default trailing window. AddDate over a
	// DST boundary can shift the span by an hour.
	assert.InDelta(t, float64(batch.DefaultWindowDays*24*time.Hour),
		float64(b.WindowEnd.Sub(b.WindowStart)), float64(2*time.Hour))

	// The record is durable immediately.
	got, err := orch.GetBatch(context.Background(), b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusProcessing, got.Status)
}

func TestCreateWithExplicitWindow(t *testing.T) {
	st := store.NewMemoryStore()
	orch := newOrchestrator(st)
	defer orch.Close()

	snapshot := `{"batchWindow":{"windowStart":"2024-03-01T00:00:00","windowEnd":"2024-03-08T00:00:00"}}`
	b, err := orch.Create(context.Background(), "ops-team", snapshot)
	require.NoError(t, err)

	assert.Equal(t, "ops-team", b.CreatedBy)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), b.WindowStart.UTC())
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), b.WindowEnd.UTC())
}

func TestExecuteCompletesBatch(t *testing.T) {
	st := store.NewMemoryStore()
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	seedLedgers(t, st, base)

	orch := newOrchestrator(st)
	defer orch.Close()

	snapshot := `{"batchWindow":{"windowStart":"2024-03-01T00:00:00","windowEnd":"2024-03-08T00:00:00"}}`
	b, err := orch.Create(context.Background(), "", snapshot)
	require.NoError(t, err)

	require.NoError(t, orch.Execute(context.Background(), b.BatchID))

	got, err := orch.GetBatch(context.Background(), b.BatchID)
	require.NoError(t, err)

	assert.Equal(t, batch.StatusCompleted, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, 7, got.Counters.TotalProcessed)
	assert.Equal(t, 2, got.Counters.ExactMatches)
	assert.Equal(t, 1, got.Counters.FuzzyMatches)
	assert.Equal(t, 1, got.Counters.UnmatchedBank)
	assert.Equal(t, 0, got.Counters.UnmatchedScheme)
	assert.Equal(t, 1, got.Counters.Exceptions)
	assert.NoError(t, got.Counters.Verify())

	cases, err := st.FetchExceptionCases(context.Background(), b.BatchID)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, matcher.SideBankOnly, cases[0].Side)
	assert.Equal(t, "B-alone", cases[0].BankTxnID)
}

func TestExecuteUnknownBatch(t *testing.T) {
	st := store.NewMemoryStore()
	orch := newOrchestrator(st)
	defer orch.Close()

	err := orch.Execute(context.Background(), "no-such-batch")
	assert.True(t, reconerrors.IsNotFound(err))
}

func TestExecuteTerminalBatchRejected(t *testing.T) {
	st := store.NewMemoryStore()
	orch := newOrchestrator(st)
	defer orch.Close()

	b, err := orch.Create(context.Background(), "", "")
	require.NoError(t, err)
	require.NoError(t, orch.Execute(context.Background(), b.BatchID))

	err = orch.Execute(context.Background(), b.BatchID)
	require.Error(t, err)
	re, ok := reconerrors.AsReconError(err)
	require.True(t, ok)
	assert.Equal(t, reconerrors.CodeBatchTerminal, re.Code)

	// The completed result is untouched.
	got, err := orch.GetBatch(context.Background(), b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusCompleted, got.Status)
}

// failingStore wraps a Store and fails ledger reads.
type failingStore struct {
	store.Store
}

func (f *failingStore) FetchBankTransactions(ctx context.Context, start, end time.Time) ([]*models.BankTransaction, error) {
	return nil, fmt.Errorf("ledger unavailable")
}

func TestExecuteFailureLeavesZeroCounters(t *testing.T) {
	st := &failingStore{Store: store.NewMemoryStore()}
	orch := newOrchestrator(st)
	defer orch.Close()

	b, err := orch.Create(context.Background(), "", "")
	require.NoError(t, err)

	err = orch.Execute(context.Background(), b.BatchID)
	require.Error(t, err)

	got, err := orch.GetBatch(context.Background(), b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusFailed, got.Status)
	require.NotNil(t, got.EndedAt)
	// A failed batch never carries partial counts.
	assert.Equal(t, batch.Counters{}, got.Counters)
}

// blockingStore parks ledger reads until released, to hold an execution
// in-flight.
type blockingStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) FetchBankTransactions(ctx context.Context, start, end time.Time) ([]*models.BankTransaction, error) {
	close(b.entered)
	<-b.release
	return b.Store.FetchBankTransactions(ctx, start, end)
}

func TestExecuteSingleFlight(t *testing.T) {
	st := &blockingStore{
		Store:   store.NewMemoryStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	orch := newOrchestrator(st)
	defer orch.Close()

	b, err := orch.Create(context.Background(), "", "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- orch.Execute(context.Background(), b.BatchID)
	}()

	// Wait until the first execution is inside the pipeline, then race a
	// duplicate trigger against it.
	<-st.entered
	err = orch.Execute(context.Background(), b.BatchID)
	require.Error(t, err)
	re, ok := reconerrors.AsReconError(err)
	require.True(t, ok)
	assert.Equal(t, reconerrors.CodeExecutionInFlight, re.Code)

	close(st.release)
	require.NoError(t, <-done)

	got, err := orch.GetBatch(context.Background(), b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusCompleted, got.Status)
}

func TestTriggerRunsInBackground(t *testing.T) {
	st := store.NewMemoryStore()
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	seedLedgers(t, st, base)

	orch := newOrchestrator(st)
	defer orch.Close()

	snapshot := `{"batchWindow":{"windowStart":"2024-03-01T00:00:00","windowEnd":"2024-03-08T00:00:00"}}`
	b, err := orch.Trigger(context.Background(), "scheduler", snapshot)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusProcessing, b.Status)

	require.Eventually(t, func() bool {
		got, err := orch.GetBatch(context.Background(), b.BatchID)
		return err == nil && got.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	got, err := orch.GetBatch(context.Background(), b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusCompleted, got.Status)
}
