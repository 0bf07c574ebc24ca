package labels

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/common/model"
)

// ErrInvalidName is returned for metric or label names that the exposition
// formats cannot carry.
var ErrInvalidName = errors.New("invalid name")

// ValidateMetricName checks name against the legacy metric name grammar
// `[a-zA-Z_:][a-zA-Z0-9_:]*`.
func ValidateMetricName(name string) error {
	if !model.LegacyValidation.IsValidMetricName(name) {
		return fmt.Errorf("%w: metric name %q", ErrInvalidName, name)
	}
	return nil
}

// ValidateLabelName checks name against the legacy label name grammar
// `[a-zA-Z_][a-zA-Z0-9_]*`. Names starting with "__" are reserved.
func ValidateLabelName(name string) error {
	if !model.LegacyValidation.IsValidLabelName(name) {
		return fmt.Errorf("%w: label name %q", ErrInvalidName, name)
	}
	if strings.HasPrefix(name, model.ReservedLabelPrefix) {
		return fmt.Errorf("%w: label name %q uses the reserved prefix %q", ErrInvalidName, name, model.ReservedLabelPrefix)
	}
	return nil
}

// ValidateLabelNames validates every name and rejects duplicates.
func ValidateLabelNames(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if err := ValidateLabelName(n); err != nil {
			return err
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("%w: label name %q is repeated", ErrInvalidName, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}
