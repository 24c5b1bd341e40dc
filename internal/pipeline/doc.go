// Package pipeline holds the stage handlers the workflow manager drives and
// the data that decides how a run moves between statuses.
//
// Each stage (analyze, script, audio, render) is a Handler that receives the
// current run and returns a Result: Done with the typed state the run
// advances to, Retry with a transient error, or Fatal. The stage table
// records the conditional status writes each stage performs on entry and on
// completion, and RetryPolicy decides how long a retry waits and when the
// budget is exhausted. The handlers never touch retry bookkeeping; the
// workflow manager owns the loop.
//
// Services bundles the long-lived collaborators (speech provider, narration
// adapter, reconcile engine, renderer, asset catalog, storage, notifier) and
// is built once by the daemon bootstrap.
package pipeline
