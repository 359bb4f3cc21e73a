package epoch

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDuration rejects an epoch timing parameter.
var ErrInvalidDuration = errors.New("epoch: invalid duration")

// MaxDuration bounds administrative timing updates.
const MaxDuration = 365 * 24 * time.Hour

// Config holds the epoch timing parameters enforced by the ledger.
type Config struct {
	// MinimumEpochTime is how long an epoch stays open before it may be
	// closed.
	MinimumEpochTime time.Duration

	// MinimumChallengeTime is the waiting window after the first accepted
	// submission during which better solutions may replace it.
	MinimumChallengeTime time.Duration
}

// DefaultConfig returns daily epochs with a 30 minute challenge window.
func DefaultConfig() Config {
	return Config{
		MinimumEpochTime:     24 * time.Hour,
		MinimumChallengeTime: 30 * time.Minute,
	}
}

// Validate ensures the configuration is self-consistent.
func (c Config) Validate() error {
	if err := validateDuration("minimum epoch time", c.MinimumEpochTime); err != nil {
		return err
	}
	return validateDuration("minimum challenge time", c.MinimumChallengeTime)
}

func validateDuration(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidDuration, name)
	}
	if d%time.Second != 0 {
		return fmt.Errorf("%w: %s must be a whole number of seconds", ErrInvalidDuration, name)
	}
	if d > MaxDuration {
		return fmt.Errorf("%w: %s must not exceed %s", ErrInvalidDuration, name, MaxDuration)
	}
	return nil
}

// ValidateEpochTime checks a single minimum epoch time update.
func ValidateEpochTime(d time.Duration) error {
	return validateDuration("minimum epoch time", d)
}

// ValidateChallengeTime checks a single minimum challenge time update.
func ValidateChallengeTime(d time.Duration) error {
	return validateDuration("minimum challenge time", d)
}
