package hands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_KnownValue(t *testing.T) {
	criteria := CloseCriteria{Convergence: 3, Leverage: 7, Optionality: 8, Surplus: 7, Evolution: 5}
	// ((10-3)*1.0 + 7*1.2 + 8*1.5 + 7*1.3 + 5*0.8) / 58 * 10 = 6.98
	assert.InDelta(t, 6.98, criteria.Score(), 0.001)
}

func TestScore_Bounds(t *testing.T) {
	cases := []CloseCriteria{
		{},
		{Convergence: 10},
		{Convergence: 0, Leverage: 10, Optionality: 10, Surplus: 10, Evolution: 10},
		{Convergence: 10, Leverage: 0, Optionality: 0, Surplus: 0, Evolution: 0},
		{Convergence: 5, Leverage: 5, Optionality: 5, Surplus: 5, Evolution: 5},
	}
	for _, c := range cases {
		score := c.Score()
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 10.0)
	}
}

func TestScore_BestCaseIsTen(t *testing.T) {
	best := CloseCriteria{Convergence: 0, Leverage: 10, Optionality: 10, Surplus: 10, Evolution: 10}
	assert.Equal(t, 10.0, best.Score())
}

func TestThresholds(t *testing.T) {
	approval, caution := Crazy.Thresholds()
	assert.Equal(t, 6.0, approval)
	assert.Equal(t, 4.0, caution)

	approval, caution = Lunatic.Thresholds()
	assert.Equal(t, 5.0, approval)
	assert.Equal(t, 3.0, caution)

	approval, caution = Timid.Thresholds()
	assert.Equal(t, 8.0, approval)
	assert.Equal(t, 6.0, caution)

	// Unknown levels fall back to Timid's thresholds.
	approval, caution = AutonomyLevel("bogus").Thresholds()
	assert.Equal(t, 8.0, approval)
	assert.Equal(t, 6.0, caution)
}

func TestDecide_Proceed(t *testing.T) {
	criteria := CloseCriteria{Convergence: 3, Leverage: 7, Optionality: 8, Surplus: 7, Evolution: 5}
	decision := criteria.Decide(Crazy)

	// Score 6.98 against approval 6.0 proceeds.
	assert.Equal(t, Proceed, decision.Action)
	assert.True(t, decision.CanProceed())
	assert.False(t, decision.IsBlocked())
	assert.Contains(t, decision.Reasoning, "6.98")
}

func TestDecide_ProceedWithCaution(t *testing.T) {
	criteria := CloseCriteria{Convergence: 3, Leverage: 7, Optionality: 8, Surplus: 7, Evolution: 5}
	decision := criteria.Decide(Bold)

	// Score 6.98: below Bold's 7.0 approval, above its 5.0 caution.
	assert.Equal(t, ProceedWithCaution, decision.Action)
	assert.True(t, decision.CanProceed())
}

func TestDecide_Pause(t *testing.T) {
	criteria := HighRiskArchitecture("risky rework")
	decision := criteria.Decide(Timid)

	assert.Equal(t, Pause, decision.Action)
	assert.True(t, decision.IsBlocked())
}

func TestDecide_NeverEmitsBlock(t *testing.T) {
	levels := []AutonomyLevel{Timid, Bold, Wild, Crazy, Insane, Lunatic}
	grid := []float64{0, 2.5, 5, 7.5, 10}

	for _, level := range levels {
		for _, c := range grid {
			for _, l := range grid {
				decision := CloseCriteria{Convergence: c, Leverage: l, Optionality: l, Surplus: c, Evolution: l}.Decide(level)
				assert.NotEqual(t, Block, decision.Action)
			}
		}
	}
}

func TestMeetsThreshold(t *testing.T) {
	criteria := LowRiskImplementation("small change")
	assert.True(t, criteria.MeetsThreshold(Insane))
}

func TestCannedCriteria(t *testing.T) {
	assert.True(t, SearchVsBuild("reuse").Decide(Crazy).CanProceed())
	assert.Equal(t, 10.0, Rollback("undo").Optionality)
	assert.Equal(t, "write tests", TestWriting("write tests").Description)
}
