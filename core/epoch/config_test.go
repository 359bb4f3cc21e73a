package epoch

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := []Config{
		{MinimumEpochTime: 0, MinimumChallengeTime: time.Minute},
		{MinimumEpochTime: time.Hour, MinimumChallengeTime: 1500 * time.Millisecond},
		{MinimumEpochTime: MaxDuration + time.Second, MinimumChallengeTime: time.Minute},
	}
	for _, cfg := range bad {
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("expected %+v to be rejected, got %v", cfg, err)
		}
	}
}
