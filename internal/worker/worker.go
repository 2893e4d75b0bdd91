// Package worker implements the analysis job execution loop.
package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/siteintel/analyzer/internal/analysis"
	"github.com/siteintel/analyzer/internal/arbiter"
	"github.com/siteintel/analyzer/internal/metrics"
	"github.com/siteintel/analyzer/internal/progress"
	"github.com/siteintel/analyzer/internal/runner"
)

// Topics published on job completion.
const (
	TopicJobCompleted = "jobs.completed"
	TopicJobFailed    = "jobs.failed"
)

// Worker consumes queue items and executes the analysis pipeline: fetch
// the page once, fan each requested module out to the providers, and
// arbitrate a winner per module.
type Worker struct {
	queue     analysis.Queue
	jobStore  analysis.JobStore
	fetcher   analysis.Fetcher
	runner    *runner.Runner
	arbiter   *arbiter.Arbiter
	publisher analysis.Publisher
	emitter   progress.Emitter
	clock     analysis.Clock
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue analysis.Queue,
	jobStore analysis.JobStore,
	fetcher analysis.Fetcher,
	r *runner.Runner,
	a *arbiter.Arbiter,
	publisher analysis.Publisher,
	emitter progress.Emitter,
	clock analysis.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		fetcher:   fetcher,
		runner:    r,
		arbiter:   a,
		publisher: publisher,
		emitter:   emitter,
		clock:     clock,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item analysis.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := w.clock.Now()
	if err := w.jobStore.UpdateJob(ctx, item.JobID, func(j *analysis.Job) {
		j.Status = analysis.JobStatusRunning
		if j.Results == nil {
			j.Results = make(map[analysis.Module]analysis.ModuleResult, len(j.Modules))
		}
	}); err != nil {
		w.logger.Error("mark job running failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	w.emit(progress.Event{
		JobID: item.JobID,
		TS:    start,
		Stage: progress.StageJobStart,
		URL:   item.URL,
	})

	page, err := w.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		w.failJob(ctx, item, fmt.Sprintf("fetch failed: %v", err))
		return
	}
	w.logger.Info("page fetched",
		zap.String("job_id", item.JobID),
		zap.String("url", page.URL),
		zap.Int("status", page.StatusCode),
		zap.Int("text_len", len(page.Text)),
		zap.Bool("rendered", page.Rendered),
	)

	succeeded := w.runModules(ctx, item, page)

	final := analysis.JobStatusCompleted
	errText := ""
	if succeeded == 0 {
		final = analysis.JobStatusFailed
		errText = "all modules failed"
	}
	if err := w.jobStore.UpdateJob(ctx, item.JobID, func(j *analysis.Job) {
		j.Status = final
		j.Progress = 100
		j.ErrorText = errText
	}); err != nil {
		w.logger.Error("finalize job failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(final))

	stage := progress.StageJobDone
	topic := TopicJobCompleted
	if final == analysis.JobStatusFailed {
		stage = progress.StageJobError
		topic = TopicJobFailed
	}
	w.emit(progress.Event{
		JobID:   item.JobID,
		TS:      w.clock.Now(),
		Stage:   stage,
		URL:     item.URL,
		Percent: 100,
		Dur:     w.clock.Now().Sub(start),
		Note:    errText,
	})
	w.publish(ctx, topic, item.JobID)
}

// runModules executes every requested module concurrently and attaches
// the arbitrated result to the job as each module finishes. It returns
// the number of modules that produced usable output.
func (w *Worker) runModules(ctx context.Context, item analysis.QueueItem, page analysis.PageContent) int {
	total := len(item.Modules)
	var (
		mu        sync.Mutex
		done      int
		succeeded int
		wg        sync.WaitGroup
	)
	for _, module := range item.Modules {
		wg.Add(1)
		go func(module analysis.Module) {
			defer wg.Done()

			w.emit(progress.Event{
				JobID:  item.JobID,
				TS:     w.clock.Now(),
				Stage:  progress.StageModuleStart,
				URL:    item.URL,
				Module: string(module),
			})

			task := w.runner.Run(ctx, module, page, item.Params)
			result := w.arbiter.Select(ctx, module, task.Candidates)
			metrics.ObserveModuleTask(string(module), string(task.Status))
			for _, c := range task.Candidates {
				outcome := "ok"
				if !c.OK {
					outcome = string(c.FailureKind)
				}
				metrics.ObserveProviderRequest(c.Provider, outcome, c.Latency)
			}

			mu.Lock()
			done++
			if !result.Failed {
				succeeded++
			}
			mu.Unlock()

			// Progress is derived from the attached results inside the
			// mutator, so concurrent module completions can never write
			// it backwards for pollers.
			percent := 0
			if err := w.jobStore.UpdateJob(ctx, item.JobID, func(j *analysis.Job) {
				j.Results[module] = result
				j.Progress = len(j.Results) * 100 / total
				percent = j.Progress
			}); err != nil {
				w.logger.Error("attach module result failed",
					zap.String("job_id", item.JobID),
					zap.String("module", string(module)),
					zap.Error(err),
				)
			}

			w.emit(progress.Event{
				JobID:    item.JobID,
				TS:       w.clock.Now(),
				Stage:    progress.StageModuleDone,
				URL:      item.URL,
				Module:   string(module),
				Provider: result.Provider,
				Failed:   result.Failed,
				Percent:  percent,
				Dur:      task.Duration,
				Note:     result.Error,
			})
		}(module)
	}
	wg.Wait()
	return succeeded
}

func (w *Worker) failJob(ctx context.Context, item analysis.QueueItem, errText string) {
	w.logger.Warn("job failed", zap.String("job_id", item.JobID), zap.String("error", errText))
	if err := w.jobStore.UpdateJob(ctx, item.JobID, func(j *analysis.Job) {
		j.Status = analysis.JobStatusFailed
		j.ErrorText = errText
	}); err != nil {
		w.logger.Error("mark job failed errored", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(analysis.JobStatusFailed))
	w.emit(progress.Event{
		JobID: item.JobID,
		TS:    w.clock.Now(),
		Stage: progress.StageJobError,
		URL:   item.URL,
		Note:  errText,
	})
	w.publish(ctx, TopicJobFailed, item.JobID)
}

func (w *Worker) publish(ctx context.Context, topic, jobID string) {
	if w.publisher == nil {
		return
	}
	job, err := w.jobStore.GetJob(ctx, jobID)
	if err != nil {
		w.logger.Error("load job for publish failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if _, err := w.publisher.Publish(ctx, topic, job); err != nil {
		w.logger.Error("publish job event failed",
			zap.String("job_id", jobID),
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter == nil {
		return
	}
	w.emitter.Emit(evt)
}
