package hands

import (
	"fmt"
	"math"
)

// CloseCriteria are the five decision dimensions, each scored 0-10:
// Convergence (lower is better; inverted in scoring), Leverage,
// Optionality, Surplus, Evolution.
type CloseCriteria struct {
	Convergence float64 `json:"convergence"`
	Leverage    float64 `json:"leverage"`
	Optionality float64 `json:"optionality"`
	Surplus     float64 `json:"surplus"`
	Evolution   float64 `json:"evolution"`
	Description string  `json:"description,omitempty"`
}

// ScoreWeights weight each dimension in the final score.
type ScoreWeights struct {
	Convergence float64
	Leverage    float64
	Optionality float64
	Surplus     float64
	Evolution   float64
}

// DefaultWeights are the standard CLOSE weights; Optionality carries the
// most.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		Convergence: 1.0,
		Leverage:    1.2,
		Optionality: 1.5,
		Surplus:     1.3,
		Evolution:   0.8,
	}
}

// Score computes the weighted CLOSE score in [0, 10], rounded to two
// decimals. Higher is better.
func (c CloseCriteria) Score() float64 {
	w := DefaultWeights()
	maxScore := 10.0 * (w.Convergence + w.Leverage + w.Optionality + w.Surplus + w.Evolution)

	total := ((10.0-c.Convergence)*w.Convergence +
		c.Leverage*w.Leverage +
		c.Optionality*w.Optionality +
		c.Surplus*w.Surplus +
		c.Evolution*w.Evolution) / maxScore * 10.0

	return math.Round(total*100) / 100
}

// CloseAction is the recommended action from a CLOSE evaluation.
type CloseAction string

const (
	Proceed            CloseAction = "proceed"
	ProceedWithCaution CloseAction = "proceed_with_caution"
	Pause              CloseAction = "pause"
	// Block exists for explicit policy overrides; Decide never emits it.
	Block CloseAction = "block"
)

// CloseDecision is the scored outcome of a CLOSE evaluation.
type CloseDecision struct {
	Score     float64     `json:"score"`
	Action    CloseAction `json:"action"`
	Reasoning string      `json:"reasoning"`
}

// CanProceed reports whether the decision allows acting.
func (d CloseDecision) CanProceed() bool {
	return d.Action == Proceed || d.Action == ProceedWithCaution
}

// IsBlocked reports whether the decision requires human input.
func (d CloseDecision) IsBlocked() bool {
	return d.Action == Pause || d.Action == Block
}

// Decide maps the score onto the level's threshold pair: at or above
// approval proceeds, at or above caution proceeds with caution, anything
// lower pauses.
func (c CloseCriteria) Decide(level AutonomyLevel) CloseDecision {
	score := c.Score()
	approval, caution := level.Thresholds()

	var action CloseAction
	switch {
	case score >= approval:
		action = Proceed
	case score >= caution:
		action = ProceedWithCaution
	default:
		action = Pause
	}

	return CloseDecision{
		Score:  score,
		Action: action,
		Reasoning: fmt.Sprintf(
			"CLOSE score: %.2f/10 (C=%.1f, L=%.1f, O=%.1f, S=%.1f, E=%.1f), thresholds: approval=%.1f, caution=%.1f",
			score, c.Convergence, c.Leverage, c.Optionality, c.Surplus, c.Evolution, approval, caution),
	}
}

// MeetsThreshold reports whether the score reaches the level's approval
// threshold.
func (c CloseCriteria) MeetsThreshold(level AutonomyLevel) bool {
	approval, _ := level.Thresholds()
	return c.Score() >= approval
}

// Canned criteria for Hands that do not compute their own CLOSE inputs.

// LowRiskImplementation: high optionality, low convergence.
func LowRiskImplementation(description string) CloseCriteria {
	return CloseCriteria{Convergence: 3, Leverage: 7, Optionality: 8, Surplus: 7, Evolution: 5, Description: description}
}

// HighRiskArchitecture: low optionality, high convergence.
func HighRiskArchitecture(description string) CloseCriteria {
	return CloseCriteria{Convergence: 8, Leverage: 6, Optionality: 3, Surplus: 4, Evolution: 7, Description: description}
}

// TestWriting: very high optionality.
func TestWriting(description string) CloseCriteria {
	return CloseCriteria{Convergence: 2, Leverage: 8, Optionality: 9, Surplus: 8, Evolution: 6, Description: description}
}

// Rollback: maximum optionality.
func Rollback(description string) CloseCriteria {
	return CloseCriteria{Convergence: 5, Leverage: 7, Optionality: 10, Surplus: 9, Evolution: 4, Description: description}
}

// SearchVsBuild: high leverage and optionality.
func SearchVsBuild(description string) CloseCriteria {
	return CloseCriteria{Convergence: 8, Leverage: 9, Optionality: 9, Surplus: 9, Evolution: 7, Description: description}
}
