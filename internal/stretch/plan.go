package stretch

import (
	"math"

	"montage/internal/config"
)

// Action names the operation a plan performs.
type Action string

const (
	ActionTrim        Action = "trim"
	ActionSlowMotion  Action = "slow_motion"
	ActionSlowFreeze  Action = "slow_motion_freeze"
	ActionBoomerang   Action = "boomerang"
	ActionPlaceholder Action = "placeholder"
)

// PlanOptions bound the distortion a plan may apply.
type PlanOptions struct {
	// MinSlowdown is the slowest playback factor allowed for small gaps.
	MinSlowdown float64
	// LargeGapFactor is the fixed factor used before freezing.
	LargeGapFactor float64
	// SmallGapRatio separates small from large gaps as a share of v.
	SmallGapRatio float64
	// Extension is config.ExtensionFreeze or config.ExtensionBoomerang.
	Extension string
}

// DefaultPlanOptions returns the standard bounds.
func DefaultPlanOptions() PlanOptions {
	return PlanOptions{
		MinSlowdown:    0.77,
		LargeGapFactor: 0.85,
		SmallGapRatio:  0.3,
		Extension:      config.ExtensionFreeze,
	}
}

// PlanOptionsFromConfig reads plan bounds from configuration.
func PlanOptionsFromConfig(cfg *config.Config) PlanOptions {
	return PlanOptions{
		MinSlowdown:    cfg.Reconcile.MinSlowdown,
		LargeGapFactor: cfg.Reconcile.LargeGapFactor,
		SmallGapRatio:  cfg.Reconcile.SmallGapRatio,
		Extension:      cfg.Reconcile.Extension,
	}
}

func (o PlanOptions) withDefaults() PlanOptions {
	d := DefaultPlanOptions()
	if o.MinSlowdown <= 0 || o.MinSlowdown > 1 {
		o.MinSlowdown = d.MinSlowdown
	}
	if o.LargeGapFactor <= 0 || o.LargeGapFactor > 1 {
		o.LargeGapFactor = d.LargeGapFactor
	}
	if o.SmallGapRatio <= 0 {
		o.SmallGapRatio = d.SmallGapRatio
	}
	if o.Extension == "" {
		o.Extension = d.Extension
	}
	return o
}

// Plan describes how a clip of Natural seconds becomes Target seconds.
type Plan struct {
	Action  Action
	Natural float64
	Target  float64
	// SpeedFactor is the playback factor; below 1 is slow motion.
	SpeedFactor float64
	// FreezeSeconds holds the last frame after the slowed clip.
	FreezeSeconds float64
	// Loops counts forward/reverse passes for boomerang plans.
	Loops int
}

// StretchedSeconds is the clip length after slow motion, before freezing.
func (p Plan) StretchedSeconds() float64 {
	if p.SpeedFactor <= 0 {
		return p.Natural
	}
	return p.Natural / p.SpeedFactor
}

// boundaryEpsilon keeps a gap of exactly the small-gap ratio on the small
// side despite float rounding.
const boundaryEpsilon = 1e-9

// MakePlan decides how to turn a clip of v seconds into t seconds.
func MakePlan(v, t float64, opts PlanOptions) Plan {
	opts = opts.withDefaults()
	plan := Plan{Natural: v, Target: t, SpeedFactor: 1}
	if v <= 0 || math.IsNaN(v) {
		plan.Action = ActionPlaceholder
		plan.Natural = 0
		return plan
	}
	if v >= t {
		plan.Action = ActionTrim
		return plan
	}

	gap := t - v
	if gap <= opts.SmallGapRatio*v+boundaryEpsilon {
		plan.Action = ActionSlowMotion
		plan.SpeedFactor = math.Max(v/t, opts.MinSlowdown)
		if residual := t - plan.StretchedSeconds(); residual > boundaryEpsilon {
			plan.FreezeSeconds = residual
		}
		return plan
	}

	if opts.Extension == config.ExtensionBoomerang {
		plan.Action = ActionBoomerang
		plan.Loops = int(math.Ceil(t / (2 * v)))
		return plan
	}

	plan.Action = ActionSlowFreeze
	plan.SpeedFactor = opts.LargeGapFactor
	if residual := t - plan.StretchedSeconds(); residual > 0 {
		plan.FreezeSeconds = residual
	}
	return plan
}
