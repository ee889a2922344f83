package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SymptomKind classifies an observed failure.
type SymptomKind string

const (
	SymptomEmptyOutput       SymptomKind = "empty_output"
	SymptomToolFailure       SymptomKind = "tool_failure"
	SymptomTimeout           SymptomKind = "timeout"
	SymptomValidationFailure SymptomKind = "validation_failure"
	SymptomStagnation        SymptomKind = "stagnation"
	SymptomBudgetPressure    SymptomKind = "budget_pressure"
	SymptomParseError        SymptomKind = "parse_error"
	SymptomSecurityViolation SymptomKind = "security_violation"
)

// Severity orders symptoms by how quickly they should escalate.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Symptom is the discriminated key of a FailurePattern. Detail narrows the
// kind, e.g. the tool name for SymptomToolFailure.
type Symptom struct {
	Kind   SymptomKind
	Detail string
}

func (s Symptom) key() string { return string(s.Kind) + ":" + s.Detail }

func (s Symptom) String() string {
	if s.Detail == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Detail)
}

// Severity returns the base severity for the symptom kind.
func (s Symptom) Severity() Severity {
	switch s.Kind {
	case SymptomSecurityViolation:
		return SeverityCritical
	case SymptomStagnation, SymptomBudgetPressure:
		return SeverityHigh
	case SymptomToolFailure, SymptomTimeout, SymptomValidationFailure:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SymptomForResult classifies a tool result. ok is false for results that
// carry no symptom.
func SymptomForResult(r ToolResult) (Symptom, bool) {
	if r.Success {
		if strings.TrimSpace(r.Output) == "" {
			return Symptom{Kind: SymptomEmptyOutput, Detail: r.Tool}, true
		}
		return Symptom{}, false
	}
	msg := strings.ToLower(r.ErrorText())
	switch {
	case strings.Contains(msg, "timed out"):
		return Symptom{Kind: SymptomTimeout, Detail: r.Tool}, true
	case strings.Contains(msg, "sandbox violation"):
		return Symptom{Kind: SymptomSecurityViolation, Detail: r.Tool}, true
	case strings.Contains(msg, "validation failed"), strings.Contains(msg, "invalid argument"), strings.Contains(msg, "invalid_arguments"):
		return Symptom{Kind: SymptomParseError, Detail: r.Tool}, true
	}
	return Symptom{Kind: SymptomToolFailure, Detail: r.Tool}, true
}

// FailurePattern aggregates repeats of one symptom.
type FailurePattern struct {
	Symptom   Symptom
	Frequency int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Strategy is the planner approach currently in force.
type Strategy string

const (
	StrategyDirect      Strategy = "direct"
	StrategyExploratory Strategy = "exploratory"
	StrategySystematic  Strategy = "systematic"
)

var strategyRing = []Strategy{StrategyDirect, StrategyExploratory, StrategySystematic}

// ActionKind enumerates recovery actions.
type ActionKind string

const (
	ActionRetryWithBackoff   ActionKind = "retry_with_backoff"
	ActionRelaxValidation    ActionKind = "relax_validation_threshold"
	ActionRotateStrategy     ActionKind = "rotate_strategy"
	ActionReduceParallelism  ActionKind = "reduce_parallelism"
	ActionReassessComplexity ActionKind = "reassess_complexity"
	ActionSimplifyApproach   ActionKind = "simplify_approach"
	ActionAbort              ActionKind = "abort"
)

// RecoveryAction is what the task loop should do next. Only the fields
// relevant to Kind are set.
type RecoveryAction struct {
	Kind        ActionKind
	Delay       time.Duration // RetryWithBackoff
	Threshold   float64       // RelaxValidation: new validation threshold
	Strategy    Strategy      // RotateStrategy: strategy now in force
	Parallelism int           // ReduceParallelism: new concurrency ceiling
	Reason      string
}

// RecoveryConfig tunes pattern retention and escalation.
type RecoveryConfig struct {
	RecencyWindow          time.Duration // Patterns unseen for this long are stale
	MaxPatterns            int           // History size that triggers pruning
	MaxAttemptsPerStrategy int
	MaxRecoveryAttempts    int // Total select calls before forcing Abort
	AbortFrequency         int // A single symptom this frequent forces Abort
	BackoffBase            time.Duration
	ValidationThreshold    float64 // Starting validation threshold
	ValidationFloor        float64 // Relaxation never goes below this
	ValidationStep         float64
	ParallelismLadder      []int
}

// DefaultRecoveryConfig returns sensible defaults.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		RecencyWindow:          5 * time.Minute,
		MaxPatterns:            50,
		MaxAttemptsPerStrategy: 3,
		MaxRecoveryAttempts:    10,
		AbortFrequency:         10,
		BackoffBase:            1 * time.Second,
		ValidationThreshold:    0.9,
		ValidationFloor:        0.5,
		ValidationStep:         0.1,
		ParallelismLadder:      []int{4, 2, 1},
	}
}

// Recovery decides what to do when progress stalls. Owned by one task loop.
type Recovery struct {
	config   RecoveryConfig
	patterns map[string]*FailurePattern

	strategyIdx      int
	strategyAttempts map[Strategy]int
	parallelismStep  int
	validation       float64
	attempts         int

	now func() time.Time
}

// NewRecovery starts in StrategyDirect with one attempt recorded against it.
func NewRecovery(cfg RecoveryConfig) *Recovery {
	if len(cfg.ParallelismLadder) == 0 {
		cfg.ParallelismLadder = []int{4, 2, 1}
	}
	return &Recovery{
		config:           cfg,
		patterns:         make(map[string]*FailurePattern),
		strategyAttempts: map[Strategy]int{StrategyDirect: 1},
		validation:       cfg.ValidationThreshold,
		now:              time.Now,
	}
}

// DetectPattern records an occurrence of symptom and returns the updated pattern.
func (r *Recovery) DetectPattern(symptom Symptom) FailurePattern {
	now := r.now()
	key := symptom.key()

	p, ok := r.patterns[key]
	switch {
	case !ok:
		p = &FailurePattern{Symptom: symptom, Frequency: 1, FirstSeen: now, LastSeen: now}
		r.patterns[key] = p
	case now.Sub(p.LastSeen) > r.config.RecencyWindow:
		// The symptom went quiet long enough that this is a fresh occurrence.
		p.Frequency = 1
		p.FirstSeen = now
		p.LastSeen = now
	default:
		p.Frequency++
		p.LastSeen = now
	}

	if len(r.patterns) > r.config.MaxPatterns {
		r.prune(key)
	}
	return *p
}

// prune removes stale patterns first, then the least frequent, until the
// history fits. The pattern under keep is never removed.
func (r *Recovery) prune(keep string) {
	now := r.now()
	for k, p := range r.patterns {
		if k != keep && now.Sub(p.LastSeen) > r.config.RecencyWindow {
			delete(r.patterns, k)
		}
	}
	if len(r.patterns) <= r.config.MaxPatterns {
		return
	}

	keys := make([]string, 0, len(r.patterns))
	for k := range r.patterns {
		if k != keep {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := r.patterns[keys[i]], r.patterns[keys[j]]
		if pi.Frequency != pj.Frequency {
			return pi.Frequency < pj.Frequency
		}
		return pi.LastSeen.Before(pj.LastSeen)
	})
	for _, k := range keys {
		if len(r.patterns) <= r.config.MaxPatterns {
			break
		}
		delete(r.patterns, k)
	}
}

// Patterns returns a snapshot of the retained patterns, most frequent first.
func (r *Recovery) Patterns() []FailurePattern {
	out := make([]FailurePattern, 0, len(r.patterns))
	for _, p := range r.patterns {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Symptom.key() < out[j].Symptom.key()
	})
	return out
}

// SelectRecoveryAction maps a pattern and the attempt count to an action.
// Repetition escalates every symptom toward Abort; critical symptoms get
// there fastest.
func (r *Recovery) SelectRecoveryAction(pattern FailurePattern) RecoveryAction {
	r.attempts++

	if r.ShouldAbort() {
		return RecoveryAction{Kind: ActionAbort, Reason: "every strategy exhausted"}
	}
	if r.config.MaxRecoveryAttempts > 0 && r.attempts > r.config.MaxRecoveryAttempts {
		return RecoveryAction{Kind: ActionAbort, Reason: fmt.Sprintf("recovery attempted %d times", r.attempts-1)}
	}
	if pattern.Frequency >= r.config.AbortFrequency {
		return RecoveryAction{Kind: ActionAbort, Reason: fmt.Sprintf("%s repeated %d times", pattern.Symptom, pattern.Frequency)}
	}

	freq := pattern.Frequency
	if pattern.Symptom.Severity() == SeverityCritical && freq > 1 {
		return RecoveryAction{Kind: ActionAbort, Reason: fmt.Sprintf("%s repeated", pattern.Symptom)}
	}

	switch pattern.Symptom.Kind {
	case SymptomSecurityViolation:
		return r.rotate("sandbox violation")

	case SymptomTimeout:
		if freq <= 2 {
			return r.backoff(pattern)
		}
		if next, ok := r.stepDownParallelism(); ok {
			return RecoveryAction{Kind: ActionReduceParallelism, Parallelism: next, Reason: "repeated timeouts"}
		}
		return RecoveryAction{Kind: ActionSimplifyApproach, Reason: "timeouts persist at minimum parallelism"}

	case SymptomToolFailure, SymptomParseError:
		if freq <= 2 {
			return r.backoff(pattern)
		}
		if freq <= 4 {
			return r.rotate(pattern.Symptom.String())
		}
		return RecoveryAction{Kind: ActionSimplifyApproach, Reason: pattern.Symptom.String() + " keeps recurring"}

	case SymptomEmptyOutput:
		if freq <= 1 {
			return r.backoff(pattern)
		}
		return r.rotate("tools keep returning nothing")

	case SymptomValidationFailure:
		if freq <= 2 {
			if relaxed, ok := r.relaxValidation(); ok {
				return RecoveryAction{Kind: ActionRelaxValidation, Threshold: relaxed, Reason: "validation keeps failing"}
			}
		}
		return r.rotate("validation failures at relaxed threshold")

	case SymptomStagnation:
		switch freq {
		case 1:
			return r.rotate("progress stalled")
		case 2:
			return RecoveryAction{Kind: ActionReassessComplexity, Reason: "progress stalled after strategy change"}
		default:
			return RecoveryAction{Kind: ActionSimplifyApproach, Reason: "progress stalled repeatedly"}
		}

	case SymptomBudgetPressure:
		if freq <= 2 {
			return RecoveryAction{Kind: ActionReassessComplexity, Reason: "budget nearly spent"}
		}
		return RecoveryAction{Kind: ActionSimplifyApproach, Reason: "budget pressure persists"}
	}

	return r.backoff(pattern)
}

func (r *Recovery) backoff(p FailurePattern) RecoveryAction {
	exp := p.Frequency - 1
	if exp < 0 {
		exp = 0
	}
	return RecoveryAction{
		Kind:   ActionRetryWithBackoff,
		Delay:  r.config.BackoffBase * time.Duration(1<<uint(exp)),
		Reason: p.Symptom.String(),
	}
}

func (r *Recovery) rotate(reason string) RecoveryAction {
	return RecoveryAction{Kind: ActionRotateStrategy, Strategy: r.RotateStrategy(), Reason: reason}
}

func (r *Recovery) stepDownParallelism() (int, bool) {
	if r.parallelismStep+1 >= len(r.config.ParallelismLadder) {
		return r.config.ParallelismLadder[len(r.config.ParallelismLadder)-1], false
	}
	r.parallelismStep++
	return r.config.ParallelismLadder[r.parallelismStep], true
}

func (r *Recovery) relaxValidation() (float64, bool) {
	next := r.validation - r.config.ValidationStep
	if next < r.config.ValidationFloor-1e-9 {
		return r.validation, false
	}
	r.validation = next
	return next, true
}

// RotateStrategy advances the Direct → Exploratory → Systematic ring and
// counts the attempt against the new strategy.
func (r *Recovery) RotateStrategy() Strategy {
	r.strategyIdx = (r.strategyIdx + 1) % len(strategyRing)
	s := strategyRing[r.strategyIdx]
	r.strategyAttempts[s]++
	return s
}

// CurrentStrategy returns the strategy in force.
func (r *Recovery) CurrentStrategy() Strategy { return strategyRing[r.strategyIdx] }

// StrategyAttempts returns how often s has been put in force.
func (r *Recovery) StrategyAttempts(s Strategy) int { return r.strategyAttempts[s] }

// Parallelism returns the current concurrency ceiling from the ladder.
func (r *Recovery) Parallelism() int { return r.config.ParallelismLadder[r.parallelismStep] }

// ValidationThreshold returns the possibly relaxed validation threshold.
func (r *Recovery) ValidationThreshold() float64 { return r.validation }

// ShouldAbort is true once every strategy reached MaxAttemptsPerStrategy.
func (r *Recovery) ShouldAbort() bool {
	for _, s := range strategyRing {
		if r.strategyAttempts[s] < r.config.MaxAttemptsPerStrategy {
			return false
		}
	}
	return true
}
