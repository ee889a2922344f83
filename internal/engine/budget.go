// Package engine provides agent orchestration functionality.
// This file contains iteration budget management.

package engine

import (
	"fmt"
	"math"
	"time"
)

// BudgetConfig defines how many iterations a task may spend.
type BudgetConfig struct {
	BaseBudget              int     // Floor for every task
	ScaleFactor             float64 // Iterations added per unit of complexity
	MaxBudget               int     // Hard ceiling
	LowUncertainty          float64 // Uncertainty applied at or below HighComplexityThreshold
	HighUncertainty         float64 // Uncertainty applied above HighComplexityThreshold
	HighComplexityThreshold float64
	WarningThreshold        float64 // Utilization that triggers the one-shot warning
	AdjustMargin            float64 // Complexity rise that makes a runtime adjustment noteworthy
}

// DefaultBudgetConfig returns sensible default budget configuration.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		BaseBudget:              8,
		ScaleFactor:             30,
		MaxBudget:               50,
		LowUncertainty:          0.2,
		HighUncertainty:         0.5,
		HighComplexityThreshold: 0.7,
		WarningThreshold:        0.8,
		AdjustMargin:            0.1,
	}
}

// Validate rejects configurations that would break monotonicity or bounds.
func (c BudgetConfig) Validate() error {
	switch {
	case c.BaseBudget < 0:
		return Errorf(KindConfig, "budget", "base budget must be non-negative, got %d", c.BaseBudget)
	case c.MaxBudget < c.BaseBudget:
		return Errorf(KindConfig, "budget", "max budget %d is below base budget %d", c.MaxBudget, c.BaseBudget)
	case c.ScaleFactor < 0:
		return Errorf(KindConfig, "budget", "scale factor must be non-negative, got %v", c.ScaleFactor)
	case c.HighUncertainty < c.LowUncertainty:
		return Errorf(KindConfig, "budget", "high uncertainty %v is below low uncertainty %v", c.HighUncertainty, c.LowUncertainty)
	case c.WarningThreshold <= 0 || c.WarningThreshold > 1:
		return Errorf(KindConfig, "budget", "warning threshold must be in (0,1], got %v", c.WarningThreshold)
	}
	return nil
}

// BudgetWarningKind distinguishes threshold crossings from exhaustion.
type BudgetWarningKind string

const (
	BudgetWarningThreshold BudgetWarningKind = "threshold"
	BudgetWarningExhausted BudgetWarningKind = "exhausted"
	BudgetWarningIncreased BudgetWarningKind = "increased"
)

// BudgetWarning is a control-loop signal, not an error.
type BudgetWarning struct {
	Kind        BudgetWarningKind
	Used        int
	Allocated   int
	Utilization float64
	Message     string
}

// BudgetManager owns the BudgetState of a single task. It is not safe for
// concurrent use; the task loop is its only writer.
type BudgetManager struct {
	config     BudgetConfig
	allocated  int
	used       int
	complexity float64
	startTime  time.Time

	thresholdWarned bool
	exhaustedWarned bool
}

// NewBudgetManager creates a manager with the base budget allocated.
func NewBudgetManager(cfg BudgetConfig) *BudgetManager {
	return &BudgetManager{
		config:    cfg,
		allocated: cfg.BaseBudget,
		startTime: time.Now(),
	}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// budgetFor is the allocation formula. It is monotonic in complexity because
// both the linear term and the uncertainty step only grow.
func (c BudgetConfig) budgetFor(complexity float64) int {
	complexity = clampUnit(complexity)
	uncertainty := c.LowUncertainty
	if complexity > c.HighComplexityThreshold {
		uncertainty = c.HighUncertainty
	}
	allocated := c.BaseBudget + int(math.Floor(c.ScaleFactor*complexity*(1+uncertainty)))
	if allocated > c.MaxBudget {
		allocated = c.MaxBudget
	}
	if allocated < c.BaseBudget {
		allocated = c.BaseBudget
	}
	return allocated
}

// CalculateBudget recomputes (not accumulates) the allocation for complexity.
func (b *BudgetManager) CalculateBudget(complexity float64) int {
	b.complexity = clampUnit(complexity)
	b.allocated = b.config.budgetFor(b.complexity)
	return b.allocated
}

// IncrementIteration records one spent iteration.
func (b *BudgetManager) IncrementIteration() {
	b.used++
}

// Allocated returns the current allocation.
func (b *BudgetManager) Allocated() int { return b.allocated }

// Used returns the iterations spent so far.
func (b *BudgetManager) Used() int { return b.used }

// Complexity returns the last assessed complexity score.
func (b *BudgetManager) Complexity() float64 { return b.complexity }

// Elapsed returns wall time since the budget was last reset.
func (b *BudgetManager) Elapsed() time.Duration { return time.Since(b.startTime) }

// GetRemaining returns how many iterations are left, never negative.
func (b *BudgetManager) GetRemaining() int {
	if b.used >= b.allocated {
		return 0
	}
	return b.allocated - b.used
}

// IsExhausted reports whether every allocated iteration has been used.
func (b *BudgetManager) IsExhausted() bool {
	return b.used >= b.allocated
}

// GetUtilization returns used/allocated in [0, +inf); 1 means exhausted.
func (b *BudgetManager) GetUtilization() float64 {
	if b.allocated <= 0 {
		return 1
	}
	return float64(b.used) / float64(b.allocated)
}

// CheckExhaustionWarning returns a warning once per upward crossing of the
// configured threshold, and a distinct one once on exhaustion. Otherwise nil.
func (b *BudgetManager) CheckExhaustionWarning() *BudgetWarning {
	util := b.GetUtilization()

	if b.IsExhausted() {
		if b.exhaustedWarned {
			return nil
		}
		b.exhaustedWarned = true
		b.thresholdWarned = true
		return &BudgetWarning{
			Kind:        BudgetWarningExhausted,
			Used:        b.used,
			Allocated:   b.allocated,
			Utilization: util,
			Message:     fmt.Sprintf("iteration budget exhausted: %d/%d used", b.used, b.allocated),
		}
	}
	b.exhaustedWarned = false

	if util >= b.config.WarningThreshold {
		if b.thresholdWarned {
			return nil
		}
		b.thresholdWarned = true
		return &BudgetWarning{
			Kind:        BudgetWarningThreshold,
			Used:        b.used,
			Allocated:   b.allocated,
			Utilization: util,
			Message:     fmt.Sprintf("iteration budget %.0f%% used (%d/%d)", util*100, b.used, b.allocated),
		}
	}

	// Back under the threshold (budget grew), so the next crossing warns again.
	b.thresholdWarned = false
	return nil
}

// AdjustBudgetRuntime reassesses complexity mid-task. A warning is returned
// only when complexity rose by more than the margin and the allocation grew.
func (b *BudgetManager) AdjustBudgetRuntime(newComplexity float64) (int, *BudgetWarning) {
	oldComplexity := b.complexity
	oldAllocated := b.allocated
	allocated := b.CalculateBudget(newComplexity)

	if b.complexity-oldComplexity > b.config.AdjustMargin && allocated > oldAllocated {
		return allocated, &BudgetWarning{
			Kind:        BudgetWarningIncreased,
			Used:        b.used,
			Allocated:   allocated,
			Utilization: b.GetUtilization(),
			Message: fmt.Sprintf("complexity rose %.2f -> %.2f; budget increased %d -> %d",
				oldComplexity, b.complexity, oldAllocated, allocated),
		}
	}
	return allocated, nil
}

// Reset clears the lifecycle between tasks.
func (b *BudgetManager) Reset() {
	b.allocated = b.config.BaseBudget
	b.used = 0
	b.complexity = 0
	b.startTime = time.Now()
	b.thresholdWarned = false
	b.exhaustedWarned = false
}
