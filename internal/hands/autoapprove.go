package hands

import (
	"fmt"
	"strings"
)

// Decision is the outcome class for a candidate tool call.
type Decision string

const (
	// AutoApprove executes immediately without human intervention.
	AutoApprove Decision = "auto_approve"
	// Queue creates an approval request and waits for a human.
	Queue Decision = "queue"
)

// ApprovalResult carries the decision plus the evidence behind it.
type ApprovalResult struct {
	Decision          Decision   `json:"decision"`
	RiskEvaluation    Evaluation `json:"risk_evaluation"`
	Reasons           []string   `json:"reasons"`
	TimeoutApplicable bool       `json:"timeout_applicable"`
	TimeoutMs         uint64     `json:"timeout_ms,omitempty"`
}

// AutoApprover decides whether a Hand's tool calls execute unattended.
//
// By default a tool outside the whitelist still auto-approves when its risk
// is within threshold (risk-based approval). StrictWhitelist switches to
// requiring both. Critical risk always queues.
type AutoApprover struct {
	config          AutoApproveConfig
	autonomyLevel   AutonomyLevel
	evaluator       *Evaluator
	allowedTools    map[string]struct{}
	unattended      bool
	strictWhitelist bool
}

// NewAutoApprover builds an approver from a Hand's auto-approve block.
func NewAutoApprover(config AutoApproveConfig, level AutonomyLevel, unattended bool) *AutoApprover {
	allowed := make(map[string]struct{}, len(config.AllowedTools))
	for _, t := range config.AllowedTools {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	return &AutoApprover{
		config:        config,
		autonomyLevel: level,
		evaluator:     NewEvaluator(),
		allowedTools:  allowed,
		unattended:    unattended,
	}
}

// Disabled returns an approver where every operation queues.
func Disabled() *AutoApprover {
	return NewAutoApprover(DefaultAutoApproveConfig(), Timid, false)
}

// WithStrictWhitelist requires whitelist membership in addition to the risk
// threshold for the non-critical path.
func (a *AutoApprover) WithStrictWhitelist(strict bool) *AutoApprover {
	a.strictWhitelist = strict
	return a
}

// IsEnabled reports whether auto-approval is on at all.
func (a *AutoApprover) IsEnabled() bool {
	return a.config.Enabled
}

// TimeoutMs returns the configured queue timeout.
func (a *AutoApprover) TimeoutMs() uint64 {
	return a.config.TimeoutMs
}

// AutonomyLevel returns the level this approver was built for.
func (a *AutoApprover) AutonomyLevel() AutonomyLevel {
	return a.autonomyLevel
}

// ShouldApprove decides one candidate (tool, args) pair.
func (a *AutoApprover) ShouldApprove(toolName string, args map[string]any) ApprovalResult {
	evaluation := a.evaluator.Evaluate(toolName, args)

	if !a.config.Enabled {
		return ApprovalResult{
			Decision:       Queue,
			RiskEvaluation: evaluation,
			Reasons:        []string{"Auto-approval is disabled"},
		}
	}

	var reasons []string

	_, inWhitelist := a.allowedTools[strings.ToLower(toolName)]
	if inWhitelist {
		reasons = append(reasons, fmt.Sprintf("Tool '%s' is in allowed_tools whitelist", toolName))
	}

	riskOK := evaluation.RiskLevel <= a.config.RiskThreshold.value()
	if riskOK {
		reasons = append(reasons, fmt.Sprintf("Risk level %s meets threshold %s",
			evaluation.RiskLevel, a.config.RiskThreshold))
	} else {
		reasons = append(reasons, fmt.Sprintf("Risk level %s exceeds threshold %s",
			evaluation.RiskLevel, a.config.RiskThreshold))
	}

	var decision Decision
	switch {
	case evaluation.RiskLevel == RiskCritical:
		reasons = append(reasons, "Critical risk always requires human approval")
		decision = Queue
	case inWhitelist && riskOK:
		decision = AutoApprove
	case !inWhitelist && riskOK && !a.strictWhitelist:
		// Risk-based approval: the tool is not whitelisted but its risk is
		// acceptable.
		decision = AutoApprove
	default:
		decision = Queue
	}

	timeoutApplicable := decision == Queue &&
		a.unattended &&
		evaluation.RiskLevel != RiskCritical &&
		a.config.TimeoutMs > 0

	result := ApprovalResult{
		Decision:          decision,
		RiskEvaluation:    evaluation,
		Reasons:           reasons,
		TimeoutApplicable: timeoutApplicable,
	}
	if timeoutApplicable {
		result.TimeoutMs = a.config.TimeoutMs
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("Timeout auto-approval enabled: %dms", a.config.TimeoutMs))
	}
	return result
}

// Builder constructs an AutoApprover with fluent defaults, mostly for Hand
// configuration shorthand and tests.
type Builder struct {
	enabled       bool
	allowedTools  []string
	riskThreshold RiskThreshold
	timeoutMs     uint64
	autonomyLevel AutonomyLevel
	unattended    bool
	strict        bool
}

// NewBuilder creates a builder with the package defaults.
func NewBuilder() *Builder {
	return &Builder{
		riskThreshold: ThresholdLow,
		timeoutMs:     30000,
		autonomyLevel: Crazy,
		unattended:    true,
	}
}

// Enabled turns auto-approval on or off.
func (b *Builder) Enabled(enabled bool) *Builder {
	b.enabled = enabled
	return b
}

// AllowedTools replaces the whitelist.
func (b *Builder) AllowedTools(tools ...string) *Builder {
	b.allowedTools = tools
	return b
}

// WithSafeTools appends the default read-only tools to the whitelist.
func (b *Builder) WithSafeTools() *Builder {
	b.allowedTools = append(b.allowedTools, "Read", "Glob", "LS", "NotebookRead")
	return b
}

// WithLowRiskTools appends the default low-risk tools to the whitelist.
func (b *Builder) WithLowRiskTools() *Builder {
	b.allowedTools = append(b.allowedTools, "Grep", "WebSearch", "WebFetch", "Task")
	return b
}

// RiskThreshold sets the maximum auto-approvable risk.
func (b *Builder) RiskThreshold(threshold RiskThreshold) *Builder {
	b.riskThreshold = threshold
	return b
}

// TimeoutMs sets the queue timeout.
func (b *Builder) TimeoutMs(ms uint64) *Builder {
	b.timeoutMs = ms
	return b
}

// AutonomyLevel sets the level.
func (b *Builder) AutonomyLevel(level AutonomyLevel) *Builder {
	b.autonomyLevel = level
	return b
}

// Unattended sets unattended mode.
func (b *Builder) Unattended(unattended bool) *Builder {
	b.unattended = unattended
	return b
}

// StrictWhitelist requires whitelist membership for auto-approval.
func (b *Builder) StrictWhitelist(strict bool) *Builder {
	b.strict = strict
	return b
}

// Build assembles the approver.
func (b *Builder) Build() *AutoApprover {
	approver := NewAutoApprover(AutoApproveConfig{
		Enabled:       b.enabled,
		AllowedTools:  b.allowedTools,
		RiskThreshold: b.riskThreshold,
		TimeoutMs:     b.timeoutMs,
	}, b.autonomyLevel, b.unattended)
	approver.strictWhitelist = b.strict
	return approver
}
