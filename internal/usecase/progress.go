package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

// BatchTracker holds in-memory progress for running and recently finished
// batches. One instance is owned by the application; all methods are safe
// for concurrent use.
type BatchTracker struct {
	mu      sync.Mutex
	batches map[string]*domain.BatchProgress

	retention     time.Duration
	sweepInterval time.Duration
	sink          domain.ProgressSink
}

// NewBatchTracker builds a tracker. Finished batches stay pollable for
// `retention`; sink may be nil.
func NewBatchTracker(retention, sweepInterval time.Duration, sink domain.ProgressSink) *BatchTracker {
	if retention <= 0 {
		retention = time.Hour
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	return &BatchTracker{
		batches:       make(map[string]*domain.BatchProgress),
		retention:     retention,
		sweepInterval: sweepInterval,
		sink:          sink,
	}
}

// Run sweeps expired batches until ctx is cancelled.
func (t *BatchTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Sweep(now)
		}
	}
}

// InitBatch registers a new batch in the processing state.
func (t *BatchTracker) InitBatch(batchID string, totalFiles int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches[batchID] = &domain.BatchProgress{
		BatchID:    batchID,
		TotalFiles: totalFiles,
		Status:     domain.BatchProcessing,
		Results:    make([]domain.FileResult, 0, totalFiles),
		StartTime:  time.Now(),
	}
}

// SetStage records which file and pipeline stage the batch is currently on.
func (t *BatchTracker) SetStage(batchID, fileName, phase string) {
	t.mu.Lock()
	if bp, ok := t.batches[batchID]; ok {
		bp.CurrentFile = fileName
		bp.CurrentPhase = phase
	}
	t.mu.Unlock()

	if t.sink != nil {
		t.sink.OnStage(batchID, fileName, phase)
	}
}

// MarkFileProcessed appends a file result and advances the counter. When the
// last file lands, the batch transitions to completed and the current-file
// fields clear.
func (t *BatchTracker) MarkFileProcessed(batchID string, result domain.FileResult) {
	t.mu.Lock()
	var completed bool
	if bp, ok := t.batches[batchID]; ok {
		bp.Results = append(bp.Results, result)
		bp.ProcessedFiles++
		if bp.ProcessedFiles >= bp.TotalFiles {
			bp.Status = domain.BatchCompleted
			bp.CurrentFile = ""
			bp.CurrentPhase = ""
			end := time.Now()
			bp.EndTime = &end
			completed = true
		}
	}
	t.mu.Unlock()

	if t.sink != nil {
		t.sink.OnFileDone(batchID, result)
		if completed {
			t.sink.OnBatchDone(batchID, domain.BatchCompleted)
		}
	}
}

// MarkBatchFailed moves the batch to the failed state with an error message.
func (t *BatchTracker) MarkBatchFailed(batchID, errMsg string) {
	t.mu.Lock()
	if bp, ok := t.batches[batchID]; ok {
		bp.Status = domain.BatchFailed
		bp.Error = errMsg
		bp.CurrentFile = ""
		bp.CurrentPhase = ""
		end := time.Now()
		bp.EndTime = &end
	}
	t.mu.Unlock()

	if t.sink != nil {
		t.sink.OnBatchDone(batchID, domain.BatchFailed)
	}
}

// Progress returns a snapshot of a batch's state.
func (t *BatchTracker) Progress(batchID string) (domain.BatchProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bp, ok := t.batches[batchID]
	if !ok {
		return domain.BatchProgress{}, false
	}
	snap := *bp
	snap.Results = append([]domain.FileResult(nil), bp.Results...)
	return snap, true
}

// Sweep drops batches that started more than the retention window ago,
// regardless of status, so abandoned in-flight entries age out too.
func (t *BatchTracker) Sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, bp := range t.batches {
		if now.Sub(bp.StartTime) > t.retention {
			delete(t.batches, id)
		}
	}
}

// Cleanup removes one batch's progress immediately. Unknown ids are a no-op.
func (t *BatchTracker) Cleanup(batchID string) {
	t.mu.Lock()
	delete(t.batches, batchID)
	t.mu.Unlock()
}

// MultiSink fans progress events out to several sinks.
type MultiSink []domain.ProgressSink

// OnStage forwards a stage transition to every sink.
func (m MultiSink) OnStage(batchID, fileName, phase string) {
	for _, s := range m {
		s.OnStage(batchID, fileName, phase)
	}
}

// OnFileDone forwards a finished file to every sink.
func (m MultiSink) OnFileDone(batchID string, result domain.FileResult) {
	for _, s := range m {
		s.OnFileDone(batchID, result)
	}
}

// OnBatchDone forwards a finished batch to every sink.
func (m MultiSink) OnBatchDone(batchID string, status domain.BatchStatus) {
	for _, s := range m {
		s.OnBatchDone(batchID, status)
	}
}

// LoggingSink mirrors progress events into the structured log.
type LoggingSink struct{}

// OnStage logs a stage transition.
func (LoggingSink) OnStage(batchID, fileName, phase string) {
	slog.Debug("batch stage",
		slog.String("batch_id", batchID),
		slog.String("file", fileName),
		slog.String("phase", phase))
}

// OnFileDone logs a finished file.
func (LoggingSink) OnFileDone(batchID string, result domain.FileResult) {
	attrs := []any{
		slog.String("batch_id", batchID),
		slog.String("file", result.FileName),
		slog.String("status", result.Status),
	}
	if result.Error != "" {
		attrs = append(attrs, slog.String("error", result.Error))
	}
	slog.Info("batch file processed", attrs...)
}

// OnBatchDone logs a finished batch.
func (LoggingSink) OnBatchDone(batchID string, status domain.BatchStatus) {
	slog.Info("batch finished",
		slog.String("batch_id", batchID),
		slog.String("status", string(status)))
}
