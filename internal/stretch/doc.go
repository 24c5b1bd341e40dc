// Package stretch reconciles a video clip's duration with its narration.
//
// MakePlan is pure: it decides between trimming, bounded slow motion and
// freeze-frame extension. Stretcher.Reconcile renders the plan with ffmpeg and
// substitutes a solid-color placeholder when the clip cannot be decoded.
package stretch
