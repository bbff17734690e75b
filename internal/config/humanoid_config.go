// File: internal/config/humanoid_config.go
// Defaults for the fill.humanoid section. They mirror humanoid.DefaultConfig
// so a config file only needs to name the values it changes.
package config

import (
	"github.com/spf13/viper"

	"github.com/xkilldash9x/scalpel-fields/internal/humanoid"
)

func setHumanoidDefaults(v *viper.Viper) {
	d := humanoid.DefaultConfig()
	v.SetDefault("fill.humanoid.enabled", d.Enabled)

	// Key Pause (IKD)
	v.SetDefault("fill.humanoid.key_pause_mean", d.KeyPauseMean)
	v.SetDefault("fill.humanoid.key_pause_std_dev", d.KeyPauseStdDev)
	v.SetDefault("fill.humanoid.key_pause_min", d.KeyPauseMin)
	v.SetDefault("fill.humanoid.key_pause_max", d.KeyPauseMax)
	v.SetDefault("fill.humanoid.key_pause_ngram_factor2", d.KeyPauseNgramFactor2)
	v.SetDefault("fill.humanoid.key_pause_ngram_factor3", d.KeyPauseNgramFactor3)
	v.SetDefault("fill.humanoid.typo_rate", d.TypoRate)

	// Clicking
	v.SetDefault("fill.humanoid.click_hold_min_ms", d.ClickHoldMinMs)
	v.SetDefault("fill.humanoid.click_hold_max_ms", d.ClickHoldMaxMs)

	// Between fields
	v.SetDefault("fill.humanoid.field_pause_mean", d.FieldPauseMean)
	v.SetDefault("fill.humanoid.field_pause_std_dev", d.FieldPauseStdDev)
	v.SetDefault("fill.humanoid.field_pause_max", d.FieldPauseMax)
}
