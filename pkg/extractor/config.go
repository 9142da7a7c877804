package extractor

import "github.com/jmylchreest/cinetag/pkg/llm"

// DefaultMaxRepairAttempts is the number of repair prompts allowed after the
// initial request, giving three model calls per extraction.
const DefaultMaxRepairAttempts = 2

// Config holds the policy for one Extractor. It is passed explicitly so
// extractors with different policies can coexist. The zero value is the
// default policy.
type Config struct {
	// Model is requested on every model call. Empty keeps the model the
	// client was built with.
	Model string `json:"model" yaml:"model"`

	// Temperature is sent with every model call (default 0).
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxRepairAttempts bounds repair prompts after the initial request.
	// Nil means DefaultMaxRepairAttempts; negative values are treated as 0.
	// Use RepairAttempts to set it.
	MaxRepairAttempts *int `json:"max_repair_attempts,omitempty" yaml:"max_repair_attempts,omitempty"`
}

// RepairAttempts returns a MaxRepairAttempts value of n. RepairAttempts(0)
// disables repair.
func RepairAttempts(n int) *int {
	return &n
}

// DefaultConfig returns the default extraction policy.
func DefaultConfig() Config {
	return Config{
		MaxRepairAttempts: RepairAttempts(DefaultMaxRepairAttempts),
	}
}

// repairAttempts returns the effective repair ceiling.
func (c Config) repairAttempts() int {
	if c.MaxRepairAttempts == nil {
		return DefaultMaxRepairAttempts
	}
	return max(*c.MaxRepairAttempts, 0)
}

// maxCalls returns the total number of model calls allowed.
func (c Config) maxCalls() int {
	return 1 + c.repairAttempts()
}

// callOptions returns the per-call options that carry this policy to the
// model on every request.
func (c Config) callOptions() []llm.CallOption {
	opts := []llm.CallOption{llm.CallTemperature(c.Temperature)}
	if c.Model != "" {
		opts = append(opts, llm.CallModel(c.Model))
	}
	return opts
}
