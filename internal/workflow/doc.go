// Package workflow advances pipeline runs through their stages.
//
// The Manager runs a configurable number of lanes. Each lane claims the next
// due stage task from the queue, moves the run into the stage with a
// conditional status write, executes the registered pipeline handler while
// heartbeating the task, and applies the handler's Result: completion
// transitions and enqueues the next stage with the same request id, retry
// requeues the task after the stage's backoff, and fatal or exhausted failures
// mark the run FAILED (never overriding COMPLETED). Stale running tasks are
// reclaimed by the heartbeat monitor so a crashed lane's work is picked up
// again; a lane whose lease was reclaimed abandons its result.
//
// The stage graph itself lives in pipeline.SpecFor; this package only
// coordinates. Operator commands (Submit, Approve, Retry) live here as well so
// the CLI and HTTP API share one set of rules.
package workflow
