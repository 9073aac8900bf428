package model

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/gridworks/powercalc/pkg/validation"
)

var validate = validator.New()

// ErrInvalidSettings wraps all configuration-level failures. A run is
// rejected before any matrix work when settings fail validation.
var ErrInvalidSettings = errors.New("invalid analysis settings")

// Standard selects the fault-calculation standard. Only IEC 60909 is
// implemented; the field exists so serialized projects round-trip.
type Standard string

const (
	StandardIEC60909 Standard = "iec-60909"
)

// Settings are the global knobs of an analysis run.
type Settings struct {
	BaseMVA        float64  `yaml:"base_mva" validate:"required,gt=0"`
	FrequencyHz    float64  `yaml:"frequency_hz" validate:"omitempty,eq=50|eq=60"`
	VoltageFactorC float64  `yaml:"voltage_factor_c" validate:"omitempty,gte=0.9,lte=1.2"`
	Standard       Standard `yaml:"standard"`

	// Load-flow controls.
	Tolerance     float64 `yaml:"tolerance" validate:"omitempty,gt=0"`
	MaxIterations int     `yaml:"max_iterations" validate:"omitempty,gte=1,lte=100"`

	// Loop-flow loading threshold, fraction of branch rating.
	LoopLoadingThreshold float64 `yaml:"loop_loading_threshold" validate:"omitempty,gt=0,lte=1"`
}

// DefaultSettings returns settings with standard defaults applied.
func DefaultSettings() Settings {
	return Settings{
		BaseMVA:              100.0,
		FrequencyHz:          50.0,
		VoltageFactorC:       1.1,
		Standard:             StandardIEC60909,
		Tolerance:            1e-6,
		MaxIterations:        20,
		LoopLoadingThreshold: 0.8,
	}
}

// Normalized returns a copy with zero-valued optional fields replaced
// by their defaults.
func (s Settings) Normalized() Settings {
	d := DefaultSettings()
	if s.BaseMVA == 0 {
		s.BaseMVA = d.BaseMVA
	}
	if s.FrequencyHz == 0 {
		s.FrequencyHz = d.FrequencyHz
	}
	if s.VoltageFactorC == 0 {
		s.VoltageFactorC = d.VoltageFactorC
	}
	if s.Standard == "" {
		s.Standard = d.Standard
	}
	if s.Tolerance == 0 {
		s.Tolerance = d.Tolerance
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.LoopLoadingThreshold == 0 {
		s.LoopLoadingThreshold = d.LoopLoadingThreshold
	}
	return s
}

// Validate checks settings with struct tags plus range checks the
// tags cannot express. Any failure is fatal to the run.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	cv := validation.NewConfigValidator("Settings")
	cv.PositiveFloat("base_mva", s.BaseMVA)
	if s.VoltageFactorC != 0 {
		cv.RangeFloat("voltage_factor_c", s.VoltageFactorC, 0.9, 1.2)
	}
	if s.Standard != "" && s.Standard != StandardIEC60909 {
		cv.AddError(fmt.Errorf("Settings.standard: unsupported standard %q", s.Standard))
	}
	if err := cv.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}
