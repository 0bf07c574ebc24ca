package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidatePositiveDuration(t *testing.T) {
	assert.NoError(t, ValidatePositiveDuration(time.Nanosecond))
	assert.Error(t, ValidatePositiveDuration(0))
	assert.Error(t, ValidatePositiveDuration(-time.Second))
}

func TestValidateNonNegativeDuration(t *testing.T) {
	assert.NoError(t, ValidateNonNegativeDuration(0))
	assert.NoError(t, ValidateNonNegativeDuration(time.Second))
	assert.Error(t, ValidateNonNegativeDuration(-time.Nanosecond))
}

func TestValidateDurationRange(t *testing.T) {
	tests := []struct {
		name    string
		d       time.Duration
		min     time.Duration
		max     time.Duration
		wantErr string
	}{
		{name: "inside", d: time.Minute, min: time.Second, max: time.Hour},
		{name: "at min", d: time.Second, min: time.Second, max: time.Hour},
		{name: "at max", d: time.Hour, min: time.Second, max: time.Hour},
		{name: "below", d: time.Millisecond, min: time.Second, max: time.Hour, wantErr: "below minimum"},
		{name: "above", d: 2 * time.Hour, min: time.Second, max: time.Hour, wantErr: "exceeds maximum"},
		{name: "inverted range", d: time.Minute, min: time.Hour, max: time.Second, wantErr: "invalid range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDurationRange(tt.d, tt.min, tt.max)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
