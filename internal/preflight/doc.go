// Package preflight provides readiness checks for the media tools, speech
// provider and filesystem paths montage depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before starting the workflow lanes. If any check
//     fails it refuses to start rather than failing every run at render time.
//   - The CLI "montage check" command prints the same results plus the
//     binary inventory from CheckSystemDeps.
//
// Each check is gated by its config section; a silent speech provider or an
// unset asset catalog is reported as passed.
package preflight
