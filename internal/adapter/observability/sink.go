package observability

import (
	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

// MetricsSink feeds batch progress events into the Prometheus collectors.
type MetricsSink struct{}

// OnStage is a no-op; stage transitions are traced, not counted.
func (MetricsSink) OnStage(_, _, _ string) {}

// OnFileDone counts the processed file and records its score.
func (MetricsSink) OnFileDone(_ string, result domain.FileResult) {
	score := -1.0
	if result.Score != nil {
		score = *result.Score
	}
	ObserveFileProcessed(result.Status, score)
}

// OnBatchDone counts the finished batch.
func (MetricsSink) OnBatchDone(_ string, status domain.BatchStatus) {
	ObserveBatchFinished(string(status))
}
