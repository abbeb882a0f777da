package history

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSetting is returned when a settings update carries a value
// outside its allowed range.
var ErrInvalidSetting = errors.New("invalid setting")

// Live polling intervals selected by Settings.RealTimeMode.
const (
	RealTimeInterval = 1 * time.Second
	StandardInterval = 3 * time.Second
)

// Settings are the user-adjustable detection options.
type Settings struct {
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	RealTimeMode        bool    `json:"realTimeMode"`
	AutoSave            bool    `json:"autoSave"`
}

// DefaultSettings returns the settings a fresh session starts with.
func DefaultSettings() Settings {
	return Settings{
		ConfidenceThreshold: 0.7,
		RealTimeMode:        true,
		AutoSave:            false,
	}
}

// Interval returns the live polling interval for these settings.
func (s Settings) Interval() time.Duration {
	if s.RealTimeMode {
		return RealTimeInterval
	}
	return StandardInterval
}

// Validate reports whether every field is within range.
func (s Settings) Validate() error {
	return validateThreshold(s.ConfidenceThreshold)
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	ConfidenceThreshold *float64 `json:"confidenceThreshold,omitempty"`
	RealTimeMode        *bool    `json:"realTimeMode,omitempty"`
	AutoSave            *bool    `json:"autoSave,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.ConfidenceThreshold == nil && p.RealTimeMode == nil && p.AutoSave == nil
}

func (p SettingsPatch) apply(s Settings) (Settings, error) {
	if p.ConfidenceThreshold != nil {
		if err := validateThreshold(*p.ConfidenceThreshold); err != nil {
			return s, err
		}
		s.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.RealTimeMode != nil {
		s.RealTimeMode = *p.RealTimeMode
	}
	if p.AutoSave != nil {
		s.AutoSave = *p.AutoSave
	}
	return s, nil
}

func validateThreshold(v float64) error {
	// NaN fails both comparisons, so test the accepted range positively.
	if !(v >= 0 && v <= 1) {
		return fmt.Errorf("%w: confidence threshold %v not in [0, 1]", ErrInvalidSetting, v)
	}
	return nil
}
