package engine

import (
	"math"
	"time"
)

// ConvergenceConfig tunes stagnation detection and termination.
type ConvergenceConfig struct {
	HistorySize            int     // Maximum retained samples; oldest evicted first
	MinDataPoints          int     // Samples required before any verdict
	Window                 int     // Trailing samples used for velocity
	VelocityThreshold      float64 // |velocity| below this is stagnant
	StagnationLimit        int     // Consecutive stagnant checks tolerated before terminating
	SuccessProgress        float64
	SuccessValidation      float64
	ConfidenceFloor        float64 // Minimum confidence for a "likely" prediction
	MaxPredictedIterations int     // Prediction ceiling for a "likely" prediction
}

// DefaultConvergenceConfig returns sensible defaults.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		HistorySize:            100,
		MinDataPoints:          3,
		Window:                 3,
		VelocityThreshold:      0.01,
		StagnationLimit:        5,
		SuccessProgress:        0.95,
		SuccessValidation:      0.9,
		ConfidenceFloor:        0.7,
		MaxPredictedIterations: 20,
	}
}

// ProgressSample is one observation in the history.
type ProgressSample struct {
	Progress  float64
	Iteration int
	Timestamp time.Time
}

// VelocityMetric is derived from the window it was computed over.
type VelocityMetric struct {
	Velocity float64 // Δprogress / Δiteration
	Samples  int
	FromIter int
	ToIter   int
}

// StagnationStatus is the verdict of DetectStagnation.
type StagnationStatus string

const (
	StagnationInsufficientData StagnationStatus = "insufficient_data"
	StagnationActive           StagnationStatus = "active"
	StagnationStagnant         StagnationStatus = "stagnant"
)

// StagnationReport carries the verdict and the numbers behind it.
type StagnationReport struct {
	Status             StagnationStatus
	Velocity           VelocityMetric
	IterationsStagnant int
}

// TerminationReason says why the loop should stop. TerminationNone means continue.
type TerminationReason string

const (
	TerminationNone            TerminationReason = ""
	TerminationSuccess         TerminationReason = "success"
	TerminationBudgetExhausted TerminationReason = "budget_exhausted"
	TerminationStagnation      TerminationReason = "stagnation"
)

// TerminationCondition is a control-loop value; it is never an error.
type TerminationCondition struct {
	Reason  TerminationReason
	Message string
}

// ShouldStop reports whether any termination reason applies.
func (t TerminationCondition) ShouldStop() bool { return t.Reason != TerminationNone }

// ConvergencePrediction extrapolates how far the task is from done.
type ConvergencePrediction struct {
	MeanVelocity        float64
	RemainingIterations int // -1 when progress is not moving forward
	Confidence          float64
	Likely              bool
}

// ConvergenceDetector owns the ProgressHistory of one task.
type ConvergenceDetector struct {
	config         ConvergenceConfig
	history        []ProgressSample
	stagnantStreak int
	now            func() time.Time
}

// NewConvergenceDetector returns an empty detector.
func NewConvergenceDetector(cfg ConvergenceConfig) *ConvergenceDetector {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConvergenceConfig().HistorySize
	}
	if cfg.Window < 2 {
		cfg.Window = 2
	}
	return &ConvergenceDetector{config: cfg, now: time.Now}
}

// RecordProgress appends a sample, clamping progress to [0,1] and evicting
// the oldest sample past the cap.
func (d *ConvergenceDetector) RecordProgress(progress float64, iteration int) {
	d.history = append(d.history, ProgressSample{
		Progress:  clampUnit(progress),
		Iteration: iteration,
		Timestamp: d.now(),
	})
	if over := len(d.history) - d.config.HistorySize; over > 0 {
		d.history = append(d.history[:0:0], d.history[over:]...)
	}
}

// History returns a copy of the retained samples.
func (d *ConvergenceDetector) History() []ProgressSample {
	out := make([]ProgressSample, len(d.history))
	copy(out, d.history)
	return out
}

// IterationsStagnant returns the consecutive-stagnation counter.
func (d *ConvergenceDetector) IterationsStagnant() int { return d.stagnantStreak }

// velocityOver computes Δprogress/Δiteration between the first and last samples.
func velocityOver(samples []ProgressSample) VelocityMetric {
	if len(samples) < 2 {
		return VelocityMetric{Samples: len(samples)}
	}
	first, last := samples[0], samples[len(samples)-1]
	m := VelocityMetric{Samples: len(samples), FromIter: first.Iteration, ToIter: last.Iteration}
	if dIter := last.Iteration - first.Iteration; dIter != 0 {
		m.Velocity = (last.Progress - first.Progress) / float64(dIter)
	}
	return m
}

// CurrentVelocity returns the velocity over the trailing window.
func (d *ConvergenceDetector) CurrentVelocity() VelocityMetric {
	w := d.config.Window
	if w > len(d.history) {
		w = len(d.history)
	}
	return velocityOver(d.history[len(d.history)-w:])
}

// DetectStagnation classifies the trailing window. Each stagnant verdict
// extends the streak; an active verdict resets it.
func (d *ConvergenceDetector) DetectStagnation() StagnationReport {
	if len(d.history) < d.config.MinDataPoints || len(d.history) < 2 {
		return StagnationReport{Status: StagnationInsufficientData, IterationsStagnant: d.stagnantStreak}
	}

	v := d.CurrentVelocity()
	if math.Abs(v.Velocity) < d.config.VelocityThreshold {
		d.stagnantStreak++
		return StagnationReport{Status: StagnationStagnant, Velocity: v, IterationsStagnant: d.stagnantStreak}
	}

	d.stagnantStreak = 0
	return StagnationReport{Status: StagnationActive, Velocity: v}
}

// CheckTermination applies, in priority order: success, budget exhaustion,
// prolonged stagnation.
func (d *ConvergenceDetector) CheckTermination(progress, validationScore float64, used, budget int) TerminationCondition {
	if progress > d.config.SuccessProgress && validationScore > d.config.SuccessValidation {
		return TerminationCondition{Reason: TerminationSuccess, Message: "progress and validation above thresholds"}
	}
	if used >= budget {
		return TerminationCondition{Reason: TerminationBudgetExhausted, Message: "iteration budget spent"}
	}
	if d.stagnantStreak > d.config.StagnationLimit {
		return TerminationCondition{Reason: TerminationStagnation, Message: "no progress for too many iterations"}
	}
	return TerminationCondition{Reason: TerminationNone}
}

// PredictConvergence extrapolates from the mean per-step velocity across the
// whole history.
func (d *ConvergenceDetector) PredictConvergence() ConvergencePrediction {
	n := len(d.history)
	if n < 2 {
		return ConvergencePrediction{RemainingIterations: -1}
	}

	var sum float64
	steps := 0
	for i := 1; i < n; i++ {
		dIter := d.history[i].Iteration - d.history[i-1].Iteration
		if dIter == 0 {
			continue
		}
		sum += (d.history[i].Progress - d.history[i-1].Progress) / float64(dIter)
		steps++
	}
	if steps == 0 {
		return ConvergencePrediction{RemainingIterations: -1}
	}
	mean := sum / float64(steps)

	p := ConvergencePrediction{MeanVelocity: mean, RemainingIterations: -1}
	if mean > 0 {
		remaining := (1 - d.history[n-1].Progress) / mean
		p.RemainingIterations = int(math.Ceil(remaining))
	}

	sampleFactor := math.Min(1, float64(n)/10)
	velocityFactor := math.Min(1, math.Abs(mean)*10)
	p.Confidence = math.Min(1, 0.5*sampleFactor+0.5*velocityFactor)

	p.Likely = p.Confidence >= d.config.ConfidenceFloor &&
		p.RemainingIterations >= 0 &&
		p.RemainingIterations <= d.config.MaxPredictedIterations
	return p
}

// Reset clears history and the streak.
func (d *ConvergenceDetector) Reset() {
	d.history = nil
	d.stagnantStreak = 0
}
