// Package progress defines the event structures emitted while analysis
// jobs run, plus a non-blocking hub that fans them out to pluggable
// sinks such as structured logs or Prometheus collectors.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart    Stage = "JOB_START"
	StageModuleStart Stage = "MODULE_START"
	StageModuleDone  Stage = "MODULE_DONE"
	StageJobDone     Stage = "JOB_DONE"
	StageJobError    Stage = "JOB_ERROR"
)

// Event captures a single milestone of an analysis job.
type Event struct {
	// JobID identifies the job run.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// URL is the page under analysis.
	URL string
	// Module scopes module events to one analysis module.
	Module string
	// Provider names the winning provider on MODULE_DONE events.
	Provider string
	// Failed marks a MODULE_DONE whose module produced no usable output.
	Failed bool
	// Percent is the job's overall completion at emit time.
	Percent int
	// Dur captures execution latency for modules and job completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageModuleStart, StageModuleDone:
		if e.Module == "" {
			return fmt.Errorf("%s requires module", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Percent < 0 || e.Percent > 100 {
		return errors.New("percent must be within [0,100]")
	}
	return nil
}
