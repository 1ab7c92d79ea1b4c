// Package hands implements the autonomous "Hands" subsystem: cron-scheduled
// task manifests, the CLOSE decision rubric, risk evaluation, and the
// auto-approval policy that gates unattended tool execution.
package hands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// AutonomyLevel is the coarse authority class of a Hand, from most careful
// to least.
type AutonomyLevel string

const (
	Timid   AutonomyLevel = "timid"
	Bold    AutonomyLevel = "bold"
	Wild    AutonomyLevel = "wild"
	Crazy   AutonomyLevel = "crazy"
	Insane  AutonomyLevel = "insane"
	Lunatic AutonomyLevel = "lunatic"
)

// Thresholds returns the (approval, caution) CLOSE score thresholds for the
// level. Unknown levels get Timid's thresholds.
func (l AutonomyLevel) Thresholds() (approval, caution float64) {
	switch l {
	case Lunatic:
		return 5.0, 3.0
	case Insane:
		return 5.5, 3.5
	case Crazy:
		return 6.0, 4.0
	case Wild:
		return 6.5, 4.5
	case Bold:
		return 7.0, 5.0
	default:
		return 8.0, 6.0
	}
}

// Valid reports whether the level is one of the six defined values.
func (l AutonomyLevel) Valid() bool {
	switch l {
	case Timid, Bold, Wild, Crazy, Insane, Lunatic:
		return true
	}
	return false
}

// AutoApproveConfig is a Hand's auto-approval sub-block.
type AutoApproveConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	AllowedTools  []string      `yaml:"allowed_tools" json:"allowedTools"`
	RiskThreshold RiskThreshold `yaml:"risk_threshold" json:"riskThreshold"`
	TimeoutMs     uint64        `yaml:"timeout_ms" json:"timeoutMs"`
}

// DefaultAutoApproveConfig matches a fresh manifest with the sub-block
// omitted.
func DefaultAutoApproveConfig() AutoApproveConfig {
	return AutoApproveConfig{
		RiskThreshold: ThresholdMedium,
		TimeoutMs:     30000,
	}
}

// AutonomyConfig is a Hand's autonomy block.
type AutonomyConfig struct {
	Level         AutonomyLevel     `yaml:"level" json:"level"`
	Unattended    bool              `yaml:"unattended" json:"unattended"`
	MaxIterations int               `yaml:"max_iterations" json:"maxIterations"`
	AutoApprove   AutoApproveConfig `yaml:"auto_approve" json:"autoApprove"`
}

// ResourceBudget bounds one Hand execution.
type ResourceBudget struct {
	MaxTokens       int     `yaml:"max_tokens" json:"max_tokens"`
	MaxCostUSD      float64 `yaml:"max_cost" json:"max_cost_usd"`
	MaxDurationSecs int     `yaml:"max_duration_secs" json:"max_duration_sec"`
}

// DefaultResourceBudget matches a manifest with the budget omitted.
func DefaultResourceBudget() ResourceBudget {
	return ResourceBudget{
		MaxTokens:       100000,
		MaxCostUSD:      5.0,
		MaxDurationSecs: 600,
	}
}

// Hand is a persistent autonomous task manifest.
type Hand struct {
	ID       string         `yaml:"id" json:"id"`
	Name     string         `yaml:"name" json:"name"`
	Agent    string         `yaml:"agent" json:"agent"`
	Schedule string         `yaml:"schedule" json:"schedule"`
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Content  string         `yaml:"content" json:"content"`
	Autonomy AutonomyConfig `yaml:"autonomy" json:"autonomy"`
	Budget   ResourceBudget `yaml:"budget" json:"budget"`

	EvolutionLoop bool `yaml:"evolution_loop" json:"evolution_loop"`
	WebSearch     bool `yaml:"web_search" json:"web_search"`
}

// Validate checks the fields the scheduler depends on.
func (h *Hand) Validate() error {
	if h.ID == "" {
		return fmt.Errorf("hand manifest missing id")
	}
	if h.Schedule == "" {
		return fmt.Errorf("hand %s missing schedule", h.ID)
	}
	if h.Autonomy.Level != "" && !h.Autonomy.Level.Valid() {
		return fmt.Errorf("hand %s has invalid autonomy level %q", h.ID, h.Autonomy.Level)
	}
	if !h.Autonomy.AutoApprove.RiskThreshold.Valid() {
		return fmt.Errorf("hand %s has invalid risk threshold %q", h.ID, h.Autonomy.AutoApprove.RiskThreshold)
	}
	return nil
}

// LoadManifest parses one Hand manifest file.
func LoadManifest(path string) (*Hand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hand manifest %s: %w", path, err)
	}

	hand := Hand{
		Enabled: true,
		Autonomy: AutonomyConfig{
			Level:         Timid,
			MaxIterations: 10,
			AutoApprove:   DefaultAutoApproveConfig(),
		},
		Budget: DefaultResourceBudget(),
	}
	if err := yaml.Unmarshal(data, &hand); err != nil {
		return nil, fmt.Errorf("parse hand manifest %s: %w", path, err)
	}
	if hand.ID == "" {
		hand.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := hand.Validate(); err != nil {
		return nil, err
	}
	return &hand, nil
}

// DiscoverHands loads every manifest under dir. Files with a .disabled
// suffix are excluded, as are manifests with enabled set to false. A
// manifest that fails to parse is skipped with the error collected; other
// entries proceed.
func DiscoverHands(dir string) ([]*Hand, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("read hands directory %s: %w", dir, err)}
	}

	var (
		hands []*Hand
		errs  []error
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".disabled") {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		hand, err := LoadManifest(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !hand.Enabled {
			continue
		}
		hands = append(hands, hand)
	}
	return hands, errs
}
