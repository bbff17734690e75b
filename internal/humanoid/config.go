// internal/humanoid/config.go
package humanoid

import (
	"fmt"
	"math/rand"
)

// Config holds the parameters that shape simulated typing and clicking.
// Durations are in milliseconds, like the rest of the timing model.
type Config struct {
	// Enabled turns the delays on. With it off every action runs back to back.
	Enabled bool       `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Rng     *rand.Rand `json:"-" yaml:"-" mapstructure:"-"`

	// Key Pause (IKD) Parameters
	KeyPauseMean         float64 `json:"keyPauseMean" yaml:"keyPauseMean" mapstructure:"key_pause_mean"`
	KeyPauseStdDev       float64 `json:"keyPauseStdDev" yaml:"keyPauseStdDev" mapstructure:"key_pause_std_dev"`
	KeyPauseMin          float64 `json:"keyPauseMin" yaml:"keyPauseMin" mapstructure:"key_pause_min"`
	KeyPauseMax          float64 `json:"keyPauseMax" yaml:"keyPauseMax" mapstructure:"key_pause_max"`
	KeyPauseNgramFactor2 float64 `json:"keyPauseNgramFactor2" yaml:"keyPauseNgramFactor2" mapstructure:"key_pause_ngram_factor2"`
	KeyPauseNgramFactor3 float64 `json:"keyPauseNgramFactor3" yaml:"keyPauseNgramFactor3" mapstructure:"key_pause_ngram_factor3"`

	// Typos are always corrected before the field is left.
	TypoRate float64 `json:"typoRate" yaml:"typoRate" mapstructure:"typo_rate"`

	// Clicking Behavior
	ClickHoldMinMs int `json:"click_hold_min_ms" yaml:"click_hold_min_ms" mapstructure:"click_hold_min_ms"`
	ClickHoldMaxMs int `json:"click_hold_max_ms" yaml:"click_hold_max_ms" mapstructure:"click_hold_max_ms"`

	// Pause between fields.
	FieldPauseMean   float64 `json:"fieldPauseMean" yaml:"fieldPauseMean" mapstructure:"field_pause_mean"`
	FieldPauseStdDev float64 `json:"fieldPauseStdDev" yaml:"fieldPauseStdDev" mapstructure:"field_pause_std_dev"`
	FieldPauseMax    float64 `json:"fieldPauseMax" yaml:"fieldPauseMax" mapstructure:"field_pause_max"`
}

// DefaultConfig returns a configuration representing an average user.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		KeyPauseMean:         70.0,
		KeyPauseStdDev:       28.0,
		KeyPauseMin:          35.0,
		KeyPauseMax:          250.0,
		KeyPauseNgramFactor2: 0.7,
		KeyPauseNgramFactor3: 0.55,
		TypoRate:             0.02,
		ClickHoldMinMs:       50,
		ClickHoldMaxMs:       120,
		FieldPauseMean:       400.0,
		FieldPauseStdDev:     150.0,
		FieldPauseMax:        1200.0,
	}
}

// Validate rejects configurations whose bounds cannot be honoured.
func (c Config) Validate() error {
	if c.KeyPauseMin < 0 || c.KeyPauseMax < c.KeyPauseMin {
		return fmt.Errorf("humanoid: key pause bounds [%v, %v] are invalid", c.KeyPauseMin, c.KeyPauseMax)
	}
	if c.ClickHoldMinMs < 0 || c.ClickHoldMaxMs < c.ClickHoldMinMs {
		return fmt.Errorf("humanoid: click hold bounds [%d, %d] are invalid", c.ClickHoldMinMs, c.ClickHoldMaxMs)
	}
	if c.TypoRate < 0 || c.TypoRate > 1 {
		return fmt.Errorf("humanoid: typo rate %v must be within [0, 1]", c.TypoRate)
	}
	if c.FieldPauseMax < 0 {
		return fmt.Errorf("humanoid: field pause max %v must not be negative", c.FieldPauseMax)
	}
	return nil
}
