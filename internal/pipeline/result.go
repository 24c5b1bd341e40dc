package pipeline

import (
	"math"
	"time"

	"montage/internal/config"
	"montage/internal/queue"
	"montage/internal/services"
)

// Outcome is what a handler asks the manager to do with its task.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeRetry
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeRetry:
		return "retry"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the return value of a stage handler.
type Result struct {
	Outcome Outcome
	// State is set for OutcomeDone and names the status the run advances to.
	State State
	Err   error
}

// Done reports a successful stage that leaves the run in state.
func Done(state State) Result {
	return Result{Outcome: OutcomeDone, State: state}
}

// Retry asks for the task to be scheduled again.
func Retry(err error) Result {
	return Result{Outcome: OutcomeRetry, Err: err}
}

// Fatal fails the run without spending the remaining budget.
func Fatal(err error) Result {
	return Result{Outcome: OutcomeFatal, Err: err}
}

// Classify turns a handler error into Retry or Fatal. Validation,
// configuration and not-found errors cannot be fixed by running again.
func Classify(err error) Result {
	if services.IsFatal(err) {
		return Fatal(err)
	}
	return Retry(err)
}

// RetryPolicy is the per-stage retry budget. MaxAttempts counts retries after
// the first execution.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
}

// Next returns the delay before retry number attempt+1 and whether the budget
// still allows it. attempt is the number of retries already spent.
func (p RetryPolicy) Next(attempt int) (time.Duration, bool) {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	return time.Duration(float64(base) * math.Pow(2, float64(attempt))), true
}

// PolicyFor returns the configured budget for stage.
func PolicyFor(cfg *config.Config, stage queue.Stage) RetryPolicy {
	budget := cfg.Workflow.StageRetryBudget
	if stage == queue.StageRender {
		budget = cfg.Workflow.RenderRetryBudget
	}
	return RetryPolicy{
		MaxAttempts: budget,
		Base:        time.Duration(cfg.Workflow.RetryBackoffSeconds) * time.Second,
	}
}
