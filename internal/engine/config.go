package engine

import "fmt"

// EngineConfig holds every tunable of the resource and recovery loop.
type EngineConfig struct {
	Budget      BudgetConfig
	Retry       RetryPolicy
	Convergence ConvergenceConfig
	Recovery    RecoveryConfig
}

// DefaultEngineConfig returns a default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Budget:      DefaultBudgetConfig(),
		Retry:       DefaultRetryPolicy(),
		Convergence: DefaultConvergenceConfig(),
		Recovery:    DefaultRecoveryConfig(),
	}
}

// Validate reports the first invalid section as a KindConfig error.
func (c EngineConfig) Validate() error {
	if err := c.Budget.Validate(); err != nil {
		return err
	}
	switch {
	case c.Retry.MaxRetries < 0:
		return Errorf(KindConfig, "retry", "max retries must be non-negative, got %d", c.Retry.MaxRetries)
	case c.Retry.MaxDelay > 0 && c.Retry.MaxDelay < c.Retry.InitialDelay:
		return Errorf(KindConfig, "retry", "max delay %v is below initial delay %v", c.Retry.MaxDelay, c.Retry.InitialDelay)
	case c.Convergence.MinDataPoints < 2:
		return Errorf(KindConfig, "convergence", "min data points must be at least 2, got %d", c.Convergence.MinDataPoints)
	case c.Convergence.HistorySize < c.Convergence.MinDataPoints:
		return Errorf(KindConfig, "convergence", "history size %d is below min data points %d",
			c.Convergence.HistorySize, c.Convergence.MinDataPoints)
	case c.Recovery.MaxPatterns <= 0:
		return Errorf(KindConfig, "recovery", "max patterns must be positive, got %d", c.Recovery.MaxPatterns)
	case c.Recovery.MaxAttemptsPerStrategy <= 0:
		return Errorf(KindConfig, "recovery", "max attempts per strategy must be positive, got %d",
			c.Recovery.MaxAttemptsPerStrategy)
	}
	for i, p := range c.Recovery.ParallelismLadder {
		if p <= 0 || (i > 0 && p > c.Recovery.ParallelismLadder[i-1]) {
			return NewError(KindConfig, "recovery", fmt.Errorf("parallelism ladder %v must be positive and non-increasing",
				c.Recovery.ParallelismLadder))
		}
	}
	return nil
}
