// Package orchestrator owns the reconciliation batch lifecycle: creation,
// single-flight execution, terminal transitions and counter aggregation.
//
// The state machine is PROCESSING → {COMPLETED | FAILED}. A batch is
// persisted already in PROCESSING, so there is no externally observable
// pending state. COMPLETED and FAILED are terminal; nothing in this core
// retries automatically — a caller wanting a retry triggers a new batch with
// a fresh identifier.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"card-recon-engine/internal/batch"
	"card-recon-engine/internal/fetcher"
	"card-recon-engine/internal/matcher"
	"card-recon-engine/internal/store"
	"card-recon-engine/pkg/errors"
	"card-recon-engine/pkg/logger"

	"github.com/google/uuid"
)

// Config holds orchestrator tuning options.
type Config struct {
	// Workers is the size of the background execution pool.
	Workers int
	// QueueSize bounds how many triggered-but-not-started executions may be
	// pending.
	QueueSize int
	// ExecutionTimeout bounds a single batch execution. Zero means no limit.
	ExecutionTimeout time.Duration
}

// DefaultConfig returns sensible orchestrator defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:          4,
		QueueSize:        16,
		ExecutionTimeout: 30 * time.Minute,
	}
}

// Orchestrator sequences window resolution, ledger fetching, matching and
// exception classification for a batch, and is the only writer of batch
// status and counters.
type Orchestrator struct {
	store      store.Store
	resolver   *batch.WindowResolver
	fetcher    *fetcher.Fetcher
	engine     *matcher.Engine
	classifier *matcher.ExceptionClassifier
	pool       *Pool
	timeout    time.Duration
	clock      func() time.Time
	log        logger.Logger

	// inFlight enforces at most one active execution per batch identifier.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates an orchestrator over the given store and matching engine. A nil
// config selects the defaults.
func New(st store.Store, engine *matcher.Engine, cfg *Config) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Orchestrator{
		store:      st,
		resolver:   batch.NewWindowResolver(),
		fetcher:    fetcher.New(st),
		engine:     engine,
		classifier: matcher.NewExceptionClassifier(),
		pool:       NewPool(cfg.Workers, cfg.QueueSize),
		timeout:    cfg.ExecutionTimeout,
		clock:      time.Now,
		log:        logger.GetGlobalLogger().WithComponent("batch_orchestrator"),
		inFlight:   make(map[string]struct{}),
	}
}

// Close drains the background execution pool.
func (o *Orchestrator) Close() {
	o.pool.Close()
}

// Create allocates a new batch, resolves its window from the configuration
// snapshot, and persists it in PROCESSING. It returns immediately; execution
// is a separate step.
func (o *Orchestrator) Create(ctx context.Context, createdBy, configSnapshot string) (*batch.Batch, error) {
	if createdBy == "" {
		createdBy = "SYSTEM"
	}
	if configSnapshot == "" {
		configSnapshot = "{}"
	}

	window := o.resolver.Resolve(configSnapshot)

	b := &batch.Batch{
		BatchID:        uuid.NewString(),
		Status:         batch.StatusProcessing,
		WindowStart:    window.Start,
		WindowEnd:      window.End,
		StartedAt:      o.clock(),
		CreatedBy:      createdBy,
		ConfigSnapshot: configSnapshot,
	}

	if err := o.store.CreateBatch(ctx, b); err != nil {
		return nil, errors.DataAccessError(errors.CodeWriteFailed, "create batch", err)
	}

	o.log.WithFields(logger.Fields{
		"batch_id":     b.BatchID,
		"created_by":   createdBy,
		"window_start": b.WindowStart,
		"window_end":   b.WindowEnd,
	}).Info("Created reconciliation batch")

	return b, nil
}

// Trigger creates a batch and submits its execution to the worker pool. The
// caller gets the batch record back immediately and polls its status;
// execution failures surface only through the batch's terminal state.
func (o *Orchestrator) Trigger(ctx context.Context, createdBy, configSnapshot string) (*batch.Batch, error) {
	b, err := o.Create(ctx, createdBy, configSnapshot)
	if err != nil {
		return nil, err
	}

	batchID := b.BatchID
	err = o.pool.Submit(Task{
		Name: "execute-batch-" + batchID,
		Run: func(ctx context.Context) error {
			if o.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, o.timeout)
				defer cancel()
			}
			return o.Execute(ctx, batchID)
		},
	})
	if err != nil {
		// The batch exists but will never run; fail it so the caller's poll
		// reaches a terminal state instead of hanging in PROCESSING.
		o.failBatch(ctx, batchID)
		return nil, errors.ExecutionError(errors.CodeBatchNotRunnable, batchID, err.Error())
	}

	return b, nil
}

// GetBatch returns the full batch record, or a distinct not-found outcome.
func (o *Orchestrator) GetBatch(ctx context.Context, batchID string) (*batch.Batch, error) {
	b, err := o.store.GetBatch(ctx, batchID)
	if err == store.ErrNotFound {
		return nil, errors.NotFoundError(batchID)
	}
	if err != nil {
		return nil, errors.DataAccessError(errors.CodeQueryFailed, "get batch", err)
	}
	return b, nil
}

// Execute runs the full pipeline for a PROCESSING batch: fetch ledgers →
// match → classify exceptions → aggregate counters → one atomic terminal
// transition. Concurrent calls for the same identifier are rejected; the
// second caller never silently duplicates a run.
func (o *Orchestrator) Execute(ctx context.Context, batchID string) error {
	if !o.acquire(batchID) {
		return errors.ExecutionError(errors.CodeExecutionInFlight, batchID,
			"another execution is already in progress")
	}
	defer o.release(batchID)

	b, err := o.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	if b.Status.IsTerminal() {
		return errors.ExecutionError(errors.CodeBatchTerminal, batchID,
			fmt.Sprintf("batch is already %s", b.Status))
	}

	log := o.log.WithField("batch_id", batchID)
	log.Info("Executing reconciliation batch")

	counters, cases, err := o.runPipeline(ctx, b)
	if err != nil {
		log.WithError(err).Error("Batch execution failed")
		o.failBatch(ctx, batchID)
		return err
	}

	if err := o.store.InsertExceptionCases(ctx, cases); err != nil {
		log.WithError(err).Error("Failed to persist exception cases")
		o.failBatch(ctx, batchID)
		return errors.DataAccessError(errors.CodeWriteFailed, "insert exception cases", err)
	}

	if err := o.store.FinalizeBatch(ctx, batchID, batch.StatusCompleted, o.clock(), counters); err != nil {
		return errors.DataAccessError(errors.CodeWriteFailed, "finalize batch", err)
	}

	log.WithFields(logger.Fields{
		"total_processed":  counters.TotalProcessed,
		"exact_matches":    counters.ExactMatches,
		"fuzzy_matches":    counters.FuzzyMatches,
		"unmatched_bank":   counters.UnmatchedBank,
		"unmatched_scheme": counters.UnmatchedScheme,
		"exceptions":       counters.Exceptions,
	}).Info("Batch completed")

	return nil
}

// runPipeline performs the read-and-compute phases of an execution.
func (o *Orchestrator) runPipeline(ctx context.Context, b *batch.Batch) (batch.Counters, []*matcher.ExceptionCase, error) {
	window := batch.Window{Start: b.WindowStart, End: b.WindowEnd}

	ledgers, err := o.fetcher.FetchWindow(ctx, window)
	if err != nil {
		return batch.Counters{}, nil, err
	}

	partition, err := o.engine.Reconcile(ledgers.Bank, ledgers.Scheme)
	if err != nil {
		return batch.Counters{}, nil, err
	}

	cases := o.classifier.Classify(b.BatchID, partition)

	counters := batch.Counters{
		TotalProcessed:  ledgers.Total(),
		ExactMatches:    len(partition.ExactMatches),
		FuzzyMatches:    len(partition.FuzzyMatches),
		UnmatchedBank:   len(partition.UnmatchedBank),
		UnmatchedScheme: len(partition.UnmatchedScheme),
		Exceptions:      len(cases),
	}

	if err := counters.Verify(); err != nil {
		return batch.Counters{}, nil, errors.InvariantError(errors.CodeCounterMismatch, err.Error())
	}

	return counters, cases, nil
}

// failBatch moves a batch to FAILED with zero counters. A failed batch
// carries no partial counts so audit figures are never misleading. Errors
// here are logged but not surfaced; the original failure is what the caller
// sees.
func (o *Orchestrator) failBatch(ctx context.Context, batchID string) {
	err := o.store.FinalizeBatch(ctx, batchID, batch.StatusFailed, o.clock(), batch.Counters{})
	if err != nil && err != store.ErrAlreadyFinalized {
		o.log.WithError(err).WithField("batch_id", batchID).Error("Failed to mark batch as FAILED")
	}
}

func (o *Orchestrator) acquire(batchID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.inFlight[batchID]; busy {
		return false
	}
	o.inFlight[batchID] = struct{}{}
	return true
}

func (o *Orchestrator) release(batchID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, batchID)
}
