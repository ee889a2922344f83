package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectStagnationInsufficientData(t *testing.T) {
	d := NewConvergenceDetector(DefaultConvergenceConfig())
	d.RecordProgress(0.1, 1)
	d.RecordProgress(0.1, 2)
	assert.Equal(t, StagnationInsufficientData, d.DetectStagnation().Status)
	assert.Equal(t, 0, d.IterationsStagnant())
}

func TestDetectStagnationFlatProgress(t *testing.T) {
	d := NewConvergenceDetector(DefaultConvergenceConfig())
	for i := 1; i <= 4; i++ {
		d.RecordProgress(0.5, i)
	}
	report := d.DetectStagnation()
	assert.Equal(t, StagnationStagnant, report.Status)
	assert.Equal(t, 1, report.IterationsStagnant)
	assert.InDelta(t, 0, report.Velocity.Velocity, 1e-12)
}

func TestDetectStagnationResetsOnProgress(t *testing.T) {
	d := NewConvergenceDetector(DefaultConvergenceConfig())
	for i := 1; i <= 3; i++ {
		d.RecordProgress(0.2, i)
		d.DetectStagnation()
	}
	require.Equal(t, 1, d.IterationsStagnant())

	d.RecordProgress(0.4, 4)
	report := d.DetectStagnation()
	assert.Equal(t, StagnationActive, report.Status)
	assert.Equal(t, 0, d.IterationsStagnant())
	assert.InDelta(t, 0.1, report.Velocity.Velocity, 1e-9) // (0.4-0.2)/(4-2)
}

func TestRecordProgressClampsAndCaps(t *testing.T) {
	cfg := DefaultConvergenceConfig()
	cfg.HistorySize = 5
	d := NewConvergenceDetector(cfg)
	d.RecordProgress(-3, 0)
	d.RecordProgress(7, 1)
	h := d.History()
	assert.Equal(t, 0.0, h[0].Progress)
	assert.Equal(t, 1.0, h[1].Progress)

	for i := 2; i < 20; i++ {
		d.RecordProgress(0.1, i)
	}
	h = d.History()
	require.Len(t, h, 5)
	assert.Equal(t, 15, h[0].Iteration)
}

func TestCheckTermination(t *testing.T) {
	tests := []struct {
		name       string
		progress   float64
		validation float64
		used       int
		budget     int
		streak     int
		want       TerminationReason
	}{
		{"success", 0.96, 0.95, 3, 10, 0, TerminationSuccess},
		{"success beats exhaustion", 0.99, 0.99, 10, 10, 9, TerminationSuccess},
		{"progress alone is not success", 0.99, 0.5, 3, 10, 0, TerminationNone},
		{"budget", 0.5, 0.5, 10, 10, 0, TerminationBudgetExhausted},
		{"stagnation over limit", 0.5, 0.5, 3, 10, 6, TerminationStagnation},
		{"stagnation at limit continues", 0.5, 0.5, 3, 10, 5, TerminationNone},
		{"continue", 0.5, 0.5, 3, 10, 0, TerminationNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewConvergenceDetector(DefaultConvergenceConfig())
			d.stagnantStreak = tt.streak
			got := d.CheckTermination(tt.progress, tt.validation, tt.used, tt.budget)
			assert.Equal(t, tt.want, got.Reason)
			assert.Equal(t, tt.want != TerminationNone, got.ShouldStop())
		})
	}
}

func TestPredictConvergence(t *testing.T) {
	d := NewConvergenceDetector(DefaultConvergenceConfig())
	for i := 0; i < 10; i++ {
		d.RecordProgress(float64(i)*0.1, i)
	}
	p := d.PredictConvergence()
	assert.InDelta(t, 0.1, p.MeanVelocity, 1e-9)
	assert.Equal(t, 1, p.RemainingIterations)
	assert.InDelta(t, 1.0, p.Confidence, 1e-9)
	assert.True(t, p.Likely)
}

func TestPredictConvergenceFlat(t *testing.T) {
	d := NewConvergenceDetector(DefaultConvergenceConfig())
	for i := 0; i < 4; i++ {
		d.RecordProgress(0.3, i)
	}
	p := d.PredictConvergence()
	assert.Equal(t, -1, p.RemainingIterations)
	assert.False(t, p.Likely)
}

func TestConvergenceReset(t *testing.T) {
	d := NewConvergenceDetector(DefaultConvergenceConfig())
	for i := 0; i < 4; i++ {
		d.RecordProgress(0.3, i)
		d.DetectStagnation()
	}
	d.Reset()
	assert.Empty(t, d.History())
	assert.Equal(t, 0, d.IterationsStagnant())
}
