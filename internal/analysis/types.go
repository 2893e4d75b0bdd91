// Package analysis defines core types shared across subsystems.
package analysis

import "time"

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

// Job status values held in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// TaskStatus represents the lifecycle state of a single module task.
type TaskStatus string

// Module task states.
const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusFailed  TaskStatus = "failed"
)

// FailureKind categorizes a failed provider call.
type FailureKind string

// Provider failure categories.
const (
	FailureTimeout         FailureKind = "timeout"
	FailureRateLimited     FailureKind = "rate_limited"
	FailureInvalidResponse FailureKind = "invalid_response"
	FailureNetwork         FailureKind = "network_error"
	FailureProvider        FailureKind = "provider_error"
)

// Transient reports whether a retry could plausibly succeed.
func (k FailureKind) Transient() bool {
	switch k {
	case FailureTimeout, FailureNetwork, FailureRateLimited:
		return true
	default:
		return false
	}
}

// ModuleParams carries the module-specific knobs accepted by the API.
// Zero values mean "use the module default".
type ModuleParams struct {
	ContentType  string   `json:"content_type,omitempty"`
	Platforms    []string `json:"platforms,omitempty"`
	CampaignType string   `json:"campaign_type,omitempty"`
	CompanyName  string   `json:"company_name,omitempty"`
	Humorous     bool     `json:"humorous,omitempty"`
}

// CandidateResult is one provider's attempt at a module prompt.
// Immutable once produced; the arbiter only reads it.
type CandidateResult struct {
	Provider      string        `json:"provider"`
	Output        string        `json:"output,omitempty"`
	Latency       time.Duration `json:"latency"`
	OK            bool          `json:"ok"`
	FailureKind   FailureKind   `json:"failure_kind,omitempty"`
	FailureDetail string        `json:"failure_detail,omitempty"`
}

// ModuleResult is the arbitrated final output for one module.
// Immutable once written into a Job. A failed module keeps Failed=true
// and Error set so the client still sees an entry per requested module.
type ModuleResult struct {
	Module    Module `json:"module"`
	Output    string `json:"output,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Rationale string `json:"rationale,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ModuleTask tracks the execution of one module against a provider set.
type ModuleTask struct {
	Module     Module            `json:"module"`
	Params     ModuleParams      `json:"params"`
	Status     TaskStatus        `json:"status"`
	Candidates []CandidateResult `json:"candidates"`
	Duration   time.Duration     `json:"duration"`
}

// Job is the client-visible unit of work, owned by the job store.
type Job struct {
	ID        string                  `json:"id"`
	URL       string                  `json:"url"`
	Modules   []Module                `json:"modules"`
	Params    ModuleParams            `json:"params"`
	Status    JobStatus               `json:"status"`
	Submitted time.Time               `json:"submitted_at"`
	Started   *time.Time              `json:"started_at,omitempty"`
	Finished  *time.Time              `json:"finished_at,omitempty"`
	Progress  int                     `json:"progress"`
	Results   map[Module]ModuleResult `json:"results,omitempty"`
	ErrorText string                  `json:"error,omitempty"`
}

// Clone returns a deep copy safe to hand to readers.
func (j Job) Clone() Job {
	cp := j
	cp.Modules = append([]Module(nil), j.Modules...)
	if j.Params.Platforms != nil {
		cp.Params.Platforms = append([]string(nil), j.Params.Platforms...)
	}
	if j.Started != nil {
		t := *j.Started
		cp.Started = &t
	}
	if j.Finished != nil {
		t := *j.Finished
		cp.Finished = &t
	}
	if j.Results != nil {
		cp.Results = make(map[Module]ModuleResult, len(j.Results))
		for k, v := range j.Results {
			cp.Results[k] = v
		}
	}
	return cp
}

// Prompt is a deterministic model request built by the module runner.
type Prompt struct {
	System       string
	User         string
	JSONResponse bool
}

// Constraints bound a single provider invocation.
type Constraints struct {
	Timeout         time.Duration
	MaxOutputTokens int
}

// Link is a resolved anchor extracted from a fetched page.
type Link struct {
	URL   string `json:"url"`
	Text  string `json:"text,omitempty"`
	Title string `json:"title,omitempty"`
}

// Image is an image reference extracted from a fetched page.
type Image struct {
	URL   string `json:"url"`
	Alt   string `json:"alt,omitempty"`
	Title string `json:"title,omitempty"`
}

// PageContent is the page-fetch collaborator's view of the target URL.
type PageContent struct {
	URL             string        `json:"url"`
	Domain          string        `json:"domain"`
	StatusCode      int           `json:"status_code"`
	Title           string        `json:"title"`
	MetaDescription string        `json:"meta_description,omitempty"`
	Keywords        string        `json:"keywords,omitempty"`
	Text            string        `json:"text,omitempty"`
	Links           []Link        `json:"links,omitempty"`
	Images          []Image       `json:"images,omitempty"`
	Rendered        bool          `json:"rendered,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Usable reports whether enough text was extracted to analyze directly.
// Prompts for thin pages ask the model to infer from the domain instead.
func (p PageContent) Usable(minLength int) bool {
	return len(p.Text) >= minLength
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	URL       string
	Modules   []Module
	Params    ModuleParams
	Submitted int64
}
