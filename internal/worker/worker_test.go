package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/siteintel/analyzer/internal/analysis"
	"github.com/siteintel/analyzer/internal/arbiter"
	"github.com/siteintel/analyzer/internal/clock/system"
	"github.com/siteintel/analyzer/internal/metrics"
	"github.com/siteintel/analyzer/internal/progress"
	memorypub "github.com/siteintel/analyzer/internal/publisher/memory"
	memoryqueue "github.com/siteintel/analyzer/internal/queue/memory"
	"github.com/siteintel/analyzer/internal/runner"
	memorystore "github.com/siteintel/analyzer/internal/store/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type stubFetcher struct {
	page analysis.PageContent
	err  error
}

func (f *stubFetcher) Fetch(context.Context, string) (analysis.PageContent, error) {
	if f.err != nil {
		return analysis.PageContent{}, f.err
	}
	return f.page, nil
}

// scriptedProvider fails whenever failOnJSON matches the prompt shape,
// which lets one provider succeed for markdown modules and fail for the
// JSON contact module within the same job.
type scriptedProvider struct {
	name       string
	output     string
	fail       bool
	failOnJSON bool
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Invoke(_ context.Context, prompt analysis.Prompt, _ analysis.Constraints) analysis.CandidateResult {
	if p.fail || (p.failOnJSON && prompt.JSONResponse) {
		return analysis.CandidateResult{
			Provider:      p.name,
			OK:            false,
			FailureKind:   analysis.FailureProvider,
			FailureDetail: "scripted failure",
		}
	}
	return analysis.CandidateResult{Provider: p.name, OK: true, Output: p.output}
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, len(e.events))
	for i, evt := range e.events {
		out[i] = evt.Stage
	}
	return out
}

type fixture struct {
	queue     *memoryqueue.Queue
	store     *memorystore.JobStore
	publisher *memorypub.Publisher
	emitter   *captureEmitter
	worker    *Worker
}

func newFixture(t *testing.T, fetcher analysis.Fetcher, providers ...analysis.Provider) *fixture {
	t.Helper()

	clock := system.New()
	queue := memoryqueue.NewQueue(16)
	store := memorystore.NewJobStore(clock, memorystore.Options{})
	publisher := memorypub.New()
	emitter := &captureEmitter{}

	longOutput := "Title, meta and keyword coverage look reasonable; recommendations follow for content structure."
	if len(providers) == 0 {
		providers = []analysis.Provider{&scriptedProvider{name: "gemini", output: longOutput}}
	}
	r, err := runner.New(providers, runner.Options{Timeout: 5 * time.Second, MinContentLength: 10}, zap.NewNop())
	require.NoError(t, err)
	a, err := arbiter.New(arbiter.NewHeuristic(10), nil, []string{"gemini", "openai"}, zap.NewNop())
	require.NoError(t, err)

	return &fixture{
		queue:     queue,
		store:     store,
		publisher: publisher,
		emitter:   emitter,
		worker:    New(queue, store, fetcher, r, a, publisher, emitter, clock, zap.NewNop()),
	}
}

func (f *fixture) submit(t *testing.T, id string, modules ...analysis.Module) {
	t.Helper()
	ctx := context.Background()
	job := analysis.Job{
		ID:        id,
		URL:       "https://example.com",
		Modules:   modules,
		Status:    analysis.JobStatusQueued,
		Submitted: time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateJob(ctx, job))
	require.NoError(t, f.queue.Enqueue(ctx, analysis.QueueItem{
		JobID:   id,
		URL:     job.URL,
		Modules: modules,
	}))
}

func (f *fixture) runUntil(t *testing.T, id string, status analysis.JobStatus) analysis.Job {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.worker.Run(ctx)

	var job analysis.Job
	require.Eventually(t, func() bool {
		got, err := f.store.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		job = got
		return got.Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func testPage() analysis.PageContent {
	return analysis.PageContent{
		URL:        "https://example.com",
		Domain:     "example.com",
		StatusCode: 200,
		Title:      "Example Corp",
		Text:       "Example Corp builds example products for example customers around the world.",
	}
}

func TestWorkerCompletesJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubFetcher{page: testPage()})
	f.submit(t, "job-1", analysis.ModuleSEO, analysis.ModuleAudit)

	job := f.runUntil(t, "job-1", analysis.JobStatusCompleted)
	require.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Started)
	require.NotNil(t, job.Finished)
	require.Len(t, job.Results, 2)
	for _, m := range []analysis.Module{analysis.ModuleSEO, analysis.ModuleAudit} {
		result := job.Results[m]
		require.False(t, result.Failed)
		require.Equal(t, "gemini", result.Provider)
		require.NotEmpty(t, result.Output)
	}

	require.Eventually(t, func() bool {
		msgs := f.publisher.Messages()
		return len(msgs) == 1 && msgs[0].Topic == TopicJobCompleted
	}, time.Second, 10*time.Millisecond)

	stages := f.emitter.stages()
	require.Contains(t, stages, progress.StageJobStart)
	require.Contains(t, stages, progress.StageModuleDone)
	require.Equal(t, progress.StageJobDone, stages[len(stages)-1])
}

func TestWorkerFetchFailureFailsJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubFetcher{err: fmt.Errorf("connection refused")})
	f.submit(t, "job-1", analysis.ModuleSEO)

	job := f.runUntil(t, "job-1", analysis.JobStatusFailed)
	require.Contains(t, job.ErrorText, "fetch failed")
	require.Contains(t, job.ErrorText, "connection refused")
	require.Empty(t, job.Results)

	require.Eventually(t, func() bool {
		msgs := f.publisher.Messages()
		return len(msgs) == 1 && msgs[0].Topic == TopicJobFailed
	}, time.Second, 10*time.Millisecond)
}

func TestWorkerAllModulesFailedFailsJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubFetcher{page: testPage()},
		&scriptedProvider{name: "gemini", fail: true},
		&scriptedProvider{name: "openai", fail: true},
	)
	f.submit(t, "job-1", analysis.ModuleSEO, analysis.ModuleAudit)

	job := f.runUntil(t, "job-1", analysis.JobStatusFailed)
	require.Equal(t, "all modules failed", job.ErrorText)
	require.Len(t, job.Results, 2)
	for _, result := range job.Results {
		require.True(t, result.Failed)
		require.Contains(t, result.Error, "all providers failed")
	}
}

// progressRecordingStore captures job progress after every mutation,
// inside the store's own lock, so the recorded sequence is exactly what
// a poller could observe.
type progressRecordingStore struct {
	analysis.JobStore

	mu       sync.Mutex
	observed []int
}

func (s *progressRecordingStore) UpdateJob(ctx context.Context, id string, mutate func(*analysis.Job)) error {
	return s.JobStore.UpdateJob(ctx, id, func(j *analysis.Job) {
		mutate(j)
		s.mu.Lock()
		s.observed = append(s.observed, j.Progress)
		s.mu.Unlock()
	})
}

func (s *progressRecordingStore) snapshots() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.observed))
	copy(out, s.observed)
	return out
}

func TestWorkerProgressNeverRegresses(t *testing.T) {
	t.Parallel()

	clock := system.New()
	queue := memoryqueue.NewQueue(16)
	store := &progressRecordingStore{JobStore: memorystore.NewJobStore(clock, memorystore.Options{})}
	emitter := &captureEmitter{}

	providers := []analysis.Provider{&scriptedProvider{
		name:   "gemini",
		output: "Title, meta and keyword coverage look reasonable; recommendations follow for content structure.",
	}}
	r, err := runner.New(providers, runner.Options{Timeout: 5 * time.Second, MinContentLength: 10}, zap.NewNop())
	require.NoError(t, err)
	a, err := arbiter.New(arbiter.NewHeuristic(10), nil, []string{"gemini"}, zap.NewNop())
	require.NoError(t, err)
	w := New(queue, store, &stubFetcher{page: testPage()}, r, a, memorypub.New(), emitter, clock, zap.NewNop())

	modules := analysis.AllModules()
	job := analysis.Job{
		ID:        "job-1",
		URL:       "https://example.com",
		Modules:   modules,
		Status:    analysis.JobStatusQueued,
		Submitted: time.Now().UTC(),
	}
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, job))
	require.NoError(t, queue.Enqueue(ctx, analysis.QueueItem{JobID: job.ID, URL: job.URL, Modules: modules}))

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(runCtx)

	var final analysis.Job
	require.Eventually(t, func() bool {
		got, err := store.GetJob(context.Background(), "job-1")
		if err != nil {
			return false
		}
		final = got
		return got.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, analysis.JobStatusCompleted, final.Status)
	require.Equal(t, 100, final.Progress)

	snapshots := store.snapshots()
	require.NotEmpty(t, snapshots)
	for i := 1; i < len(snapshots); i++ {
		require.GreaterOrEqual(t, snapshots[i], snapshots[i-1],
			"progress regressed from %d to %d at mutation %d", snapshots[i-1], snapshots[i], i)
	}
	require.Equal(t, 100, snapshots[len(snapshots)-1])
}

func TestWorkerPartialModuleFailureStillCompletes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubFetcher{page: testPage()},
		&scriptedProvider{name: "gemini", output: "Emails, phone numbers and social profiles extracted.", failOnJSON: true},
	)
	f.submit(t, "job-1", analysis.ModuleSEO, analysis.ModuleContact)

	job := f.runUntil(t, "job-1", analysis.JobStatusCompleted)
	require.Empty(t, job.ErrorText)
	require.Len(t, job.Results, 2)
	require.False(t, job.Results[analysis.ModuleSEO].Failed)
	require.True(t, job.Results[analysis.ModuleContact].Failed)
}
