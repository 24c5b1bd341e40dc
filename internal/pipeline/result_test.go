package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"montage/internal/queue"
	"montage/internal/services"
	"montage/internal/testsupport"
)

func TestRetryPolicyBackoffSchedule(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Base: time.Second}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for attempt, delay := range want {
		got, ok := policy.Next(attempt)
		assert.True(t, ok, "attempt %d", attempt)
		assert.Equal(t, delay, got, "attempt %d", attempt)
	}
	_, ok := policy.Next(3)
	assert.False(t, ok, "budget exhausted after three retries")
}

func TestRetryPolicyDefaultsBase(t *testing.T) {
	got, ok := RetryPolicy{MaxAttempts: 1}.Next(0)
	assert.True(t, ok)
	assert.Equal(t, time.Second, got)

	_, ok = RetryPolicy{}.Next(0)
	assert.False(t, ok)
}

func TestPolicyForUsesRenderBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	render := PolicyFor(cfg, queue.StageRender)
	assert.Equal(t, 12, render.MaxAttempts)
	assert.Equal(t, time.Second, render.Base)

	for _, stage := range []queue.Stage{queue.StageAnalyze, queue.StageScript, queue.StageAudio} {
		assert.Equal(t, 3, PolicyFor(cfg, stage).MaxAttempts, stage)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Outcome
	}{
		{"validation", services.Wrap(services.ErrValidation, "script", "write", "empty", nil), OutcomeFatal},
		{"configuration", services.Wrap(services.ErrConfiguration, "speech", "init", "bad", nil), OutcomeFatal},
		{"not found", services.Wrap(services.ErrNotFound, "analyze", "fetch", "gone", nil), OutcomeFatal},
		{"transient", services.Wrap(services.ErrTransient, "audio", "synthesize", "503", nil), OutcomeRetry},
		{"media", services.Wrap(services.ErrMediaValidation, "render", "probe", "zero duration", nil), OutcomeRetry},
		{"plain", errors.New("boom"), OutcomeRetry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Classify(tc.err)
			assert.Equal(t, tc.want, res.Outcome)
			assert.Equal(t, tc.err, res.Err)
		})
	}
}
