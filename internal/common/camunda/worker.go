// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"gritsync/internal/common/config"
	"gritsync/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"
)

// HandlerFunc is the signature every job handler exposes as Handle.
type HandlerFunc func(worker.JobClient, entities.Job)

// Instrument wraps h with the active-job gauge and duration histogram.
func Instrument(taskType string, h HandlerFunc) HandlerFunc {
	return func(client worker.JobClient, job entities.Job) {
		active := metrics.WorkerJobsActive.WithLabelValues(taskType)
		active.Inc()
		defer active.Dec()

		start := time.Now()
		h(&countingClient{JobClient: client, taskType: taskType}, job)
		metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
	}
}

// countingClient counts completions issued through it.
type countingClient struct {
	worker.JobClient
	taskType string
}

func (c *countingClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	metrics.WorkerJobsCompleted.WithLabelValues(c.taskType).Inc()
	return c.JobClient.NewCompleteJobCommand()
}

// StartWorker opens a job worker for taskType when it is enabled and returns
// it so the caller can close it on shutdown.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, h HandlerFunc, log *zap.Logger) worker.JobWorker {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return nil
	}

	jw := client.NewJobWorker().
		JobType(taskType).
		Handler(worker.JobHandler(Instrument(taskType, h))).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Name("gritsync-" + taskType).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
	return jw
}
