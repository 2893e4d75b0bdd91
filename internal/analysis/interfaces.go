package analysis

import (
	"context"
	"time"
)

// Provider is a uniform adapter over one external model backend.
// Invoke never returns a Go error: provider-side failures come back as
// a CandidateResult with OK=false and a categorized FailureKind, so a
// single misbehaving backend cannot abort a module fan-out.
// Implementations are stateless and safe for concurrent use.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, prompt Prompt, c Constraints) CandidateResult
}

// JobStore owns every Job for its lifetime. Update applies the mutator
// atomically under the store lock; readers always see a consistent
// snapshot and never a partially-applied transition.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateJob(ctx context.Context, jobID string, mutate func(*Job)) error
	ListJobIDs(ctx context.Context) ([]string, error)
}

// Fetcher retrieves and extracts the target page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (PageContent, error)
}

// Renderer produces a fully rendered DOM for script-heavy pages.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, int, error)
}

// PromotionDetector decides whether a static fetch needs re-rendering.
type PromotionDetector interface {
	ShouldPromote(statusCode int, body []byte) bool
}

// Publisher pushes job completion events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for analysis jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
