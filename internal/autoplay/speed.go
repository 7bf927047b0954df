package autoplay

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MinRate and MaxRate bound ChangeSpeed.
	MinRate = 0.25
	MaxRate = 4.0
)

// ErrSpeedOutOfRange is returned when a rate is outside [MinRate, MaxRate].
var ErrSpeedOutOfRange = errors.New("speed out of range")

// SpeedSteps are the rates offered by the speed control, in cycle order.
var SpeedSteps = []float64{0.75, 1, 1.25, 1.5, 2}

// NextSpeed returns the step after current, wrapping to the slowest step.
// A rate between steps moves to the next higher step.
func NextSpeed(current float64) float64 {
	for _, step := range SpeedSteps {
		if step > current {
			return step
		}
	}
	return SpeedSteps[0]
}

// ValidateRate checks that rate is a usable playback multiplier.
func ValidateRate(rate float64) error {
	if math.IsNaN(rate) || rate < MinRate || rate > MaxRate {
		return fmt.Errorf("%w: %v (must be between %v and %v)", ErrSpeedOutOfRange, rate, MinRate, MaxRate)
	}
	return nil
}

// FormatRate renders a rate the way the speed control labels it.
func FormatRate(rate float64) string {
	return fmt.Sprintf("%gx", rate)
}
