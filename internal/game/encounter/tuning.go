package encounter

import (
	"errors"
	"fmt"
)

// Tuning holds the pacing and threat constants the encounter applies on
// top of the per-roll resolver math.
type Tuning struct {
	// BaseActionInterval is the seconds between actions for a combatant
	// with zero haste.
	BaseActionInterval float64 `mapstructure:"base_action_interval" yaml:"base_action_interval"`
	// ThreatPerDamage scales threat-worthy damage into threat score.
	ThreatPerDamage float64 `mapstructure:"threat_per_damage" yaml:"threat_per_damage"`
	// HealingThreatFactor scales healing done into threat split across
	// every engaged enemy.
	HealingThreatFactor float64 `mapstructure:"healing_threat_factor" yaml:"healing_threat_factor"`
	// HealerThreshold is the default ally health fraction below which
	// healers act, for abilities that do not carry their own.
	HealerThreshold float64 `mapstructure:"healer_threshold" yaml:"healer_threshold"`
	// EventLogSize bounds the in-memory combat log.
	EventLogSize int `mapstructure:"event_log_size" yaml:"event_log_size"`
}

// DefaultTuning returns the pacing constants the simulation ships with.
func DefaultTuning() Tuning {
	return Tuning{
		BaseActionInterval:  2.0,
		ThreatPerDamage:     1.0,
		HealingThreatFactor: 0.5,
		HealerThreshold:     0.7,
		EventLogSize:        256,
	}
}

// Validate reports every out-of-range constant.
func (t Tuning) Validate() error {
	var violations []error
	if t.BaseActionInterval <= 0 {
		violations = append(violations, fmt.Errorf("base action interval must be positive, got %v", t.BaseActionInterval))
	}
	if t.ThreatPerDamage < 0 {
		violations = append(violations, fmt.Errorf("threat per damage must not be negative, got %v", t.ThreatPerDamage))
	}
	if t.HealingThreatFactor < 0 {
		violations = append(violations, fmt.Errorf("healing threat factor must not be negative, got %v", t.HealingThreatFactor))
	}
	if t.HealerThreshold <= 0 || t.HealerThreshold > 1 {
		violations = append(violations, fmt.Errorf("healer threshold must be in (0, 1], got %v", t.HealerThreshold))
	}
	if t.EventLogSize < 1 {
		violations = append(violations, fmt.Errorf("event log size must be at least 1, got %d", t.EventLogSize))
	}
	return errors.Join(violations...)
}
