package orchestrators

import (
	"context"
	"fmt"
	"time"

	outboxStore "clubhouse/internal/adapters/storage/outbox"
	domain "clubhouse/internal/domain/outbox"
	"clubhouse/pkg/logger"
)

// Outbox processing defaults.
const (
	DefaultOutboxBatchSize = 20
	DefaultOutboxBaseDelay = 30 * time.Second
	DefaultOutboxMaxDelay  = time.Hour
)

// OutboxProcessor delivers queued notifications with retries.
type OutboxProcessor struct {
	store     outboxStore.Store
	executors map[string]ActionExecutor
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
	now       func() time.Time
}

// ActionExecutor executes a specific type of external action.
type ActionExecutor interface {
	// Execute runs the external action with the given payload.
	// Returns the external ID (e.g. provider message ID) and any error.
	Execute(ctx context.Context, payload string) (string, error)
}

// NewOutboxProcessor creates a new outbox processor keyed by action type.
func NewOutboxProcessor(store outboxStore.Store, executors map[string]ActionExecutor) *OutboxProcessor {
	return &OutboxProcessor{
		store:     store,
		executors: executors,
		baseDelay: DefaultOutboxBaseDelay,
		maxDelay:  DefaultOutboxMaxDelay,
		batchSize: DefaultOutboxBatchSize,
		now:       time.Now,
	}
}

// ProcessPending processes pending outbox entries whose backoff has elapsed.
// PRE: Context is valid
// POST: Due entries attempted once; returns how many were attempted
func (p *OutboxProcessor) ProcessPending(ctx context.Context) (int, error) {
	entries, err := p.store.ListDue(ctx, p.now().UTC(), p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list due outbox entries: %w", err)
	}

	attempted := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return attempted, ctx.Err()
		}
		attempted++
		if err := p.attempt(ctx, entry); err != nil {
			logger.Error("outbox_process_failed", "entry_id", entry.ID, "action_type", entry.ActionType, "error", err)
		}
	}
	return attempted, nil
}

// attempt runs one delivery and persists the outcome.
// POST: An entry abandoned while in flight keeps its abandoned status
func (p *OutboxProcessor) attempt(ctx context.Context, entry domain.Entry) error {
	now := p.now().UTC()
	entry.MarkAttempt(now)

	executor, ok := p.executors[entry.ActionType]
	if !ok {
		entry.MarkFailed(fmt.Errorf("no executor registered for action type: %s", entry.ActionType))
		entry.ScheduleRetry(now, p.baseDelay, p.maxDelay)
		logger.Warn("outbox_action_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "error", entry.ErrorMessage)
		return p.record(ctx, entry)
	}

	externalID, err := executor.Execute(ctx, entry.Payload)
	if err != nil {
		entry.MarkFailed(err)
		entry.ScheduleRetry(now, p.baseDelay, p.maxDelay)
		logger.Warn("outbox_action_failed", "entry_id", entry.ID, "action_type", entry.ActionType, "attempt", entry.Attempts, "error", err)
	} else {
		entry.MarkSuccess(externalID)
		logger.Info("outbox_action_succeeded", "entry_id", entry.ID, "action_type", entry.ActionType, "external_id", externalID)
	}
	return p.record(ctx, entry)
}

func (p *OutboxProcessor) record(ctx context.Context, entry domain.Entry) error {
	applied, err := p.store.UpdateAttempt(ctx, entry)
	if err != nil {
		return err
	}
	if !applied {
		logger.Info("outbox_attempt_discarded", "entry_id", entry.ID, "status", entry.Status)
	}
	return nil
}

// RetryEntry gives an entry a fresh attempt budget and delivers it now (admin retry).
// PRE: entryID is non-empty
// POST: Entry attempted once; domain.ErrTerminal for done or abandoned entries
func (p *OutboxProcessor) RetryEntry(ctx context.Context, entryID string) (domain.Entry, error) {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return domain.Entry{}, err
	}
	if err := entry.ResetForRetry(); err != nil {
		return domain.Entry{}, err
	}
	if err := p.attempt(ctx, entry); err != nil {
		return domain.Entry{}, err
	}
	return p.store.GetByID(ctx, entryID)
}

// AbandonEntry marks an entry as abandoned by admin.
// PRE: entryID is non-empty
// POST: Entry status set to abandoned; domain.ErrTerminal if it was already delivered
func (p *OutboxProcessor) AbandonEntry(ctx context.Context, entryID string) (domain.Entry, error) {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return domain.Entry{}, err
	}
	if entry.Status == domain.StatusDone {
		return domain.Entry{}, domain.ErrTerminal
	}
	entry.MarkAbandoned()
	if err := p.store.Save(ctx, entry); err != nil {
		return domain.Entry{}, err
	}
	logger.Info("outbox_entry_abandoned", "entry_id", entry.ID, "action_type", entry.ActionType)
	return entry, nil
}

// ListEntries returns failed entries, or the most recent entries of any status when all is set.
func (p *OutboxProcessor) ListEntries(ctx context.Context, all bool, limit int) ([]domain.Entry, error) {
	if all {
		return p.store.ListRecent(ctx, limit)
	}
	return p.store.ListFailed(ctx, limit)
}

// StartBackgroundWorker periodically processes pending outbox entries.
// PRE: interval > 0
// POST: Worker runs until ctx is cancelled; the returned channel closes once it has stopped
func StartBackgroundWorker(ctx context.Context, processor *OutboxProcessor, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
				if n, err := processor.ProcessPending(runCtx); err != nil {
					logger.Error("outbox_background_process_failed", "error", err)
				} else if n > 0 {
					logger.Debug("outbox_background_processed", "attempted", n)
				}
				cancel()
			case <-ctx.Done():
				logger.Info("outbox_background_worker_stopped")
				return
			}
		}
	}()
	return done
}
