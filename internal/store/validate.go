package store

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

const (
	maxValueBytes = 10000
	maxListItems  = 100
	maxMapEntries = 50
)

var (
	keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

	forbiddenValuePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script[^>]*>`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)data:`),
		regexp.MustCompile(`(?i)vbscript:`),
		regexp.MustCompile(`(?i)<iframe[^>]*>`),
		regexp.MustCompile(`(?i)<object[^>]*>`),
		regexp.MustCompile(`(?i)<embed[^>]*>`),
	}
)

// ValidationError describes the first rule an input broke.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ValidateUID accepts only the canonical 36 character UUID form.
func ValidateUID(uid string) error {
	if uid == "" {
		return invalid("uid", "UID cannot be empty")
	}
	if len(uid) != 36 {
		return invalid("uid", "Invalid UID format")
	}
	if _, err := uuid.Parse(uid); err != nil {
		return invalid("uid", "Invalid UID format")
	}
	return nil
}

// ValidateKey accepts non-empty tokens of letters, digits and underscores,
// which also rules out traversal and scheme injection.
func ValidateKey(key string) error {
	if key == "" {
		return invalid("key", "Key must be a non-empty string")
	}
	if !keyPattern.MatchString(key) {
		return invalid("key", "Key can only contain letters, numbers, and underscores")
	}
	return nil
}

// ValidateValue checks a decoded JSON value: scalars, lists of scalars and
// objects, within the size limits.
func ValidateValue(value any) error {
	if value == nil {
		return invalid("value", "Value cannot be None")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return invalid("value", "Value is not JSON compatible: %v", err)
	}
	if len(encoded) > maxValueBytes {
		return invalid("value", "Value too large (max 10KB)")
	}

	switch v := value.(type) {
	case string:
		for _, pattern := range forbiddenValuePatterns {
			if pattern.MatchString(v) {
				return invalid("value", "Value contains forbidden pattern: %s", pattern.String())
			}
		}
	case bool, float64, float32, int, int64, json.Number:
	case []any:
		if len(v) > maxListItems {
			return invalid("value", "List too large (max 100 items)")
		}
		for i, item := range v {
			if !isScalar(item) {
				return invalid("value", "Invalid item type at index %d", i)
			}
			if err := ValidateValue(item); err != nil {
				return invalid("value", "Invalid item at index %d: %s", i, reason(err))
			}
		}
	case map[string]any:
		if len(v) > maxMapEntries {
			return invalid("value", "Dictionary too large (max 50 items)")
		}
		for k, item := range v {
			if err := ValidateKey(k); err != nil {
				return invalid("value", "Invalid key '%s': %s", k, reason(err))
			}
			if err := ValidateValue(item); err != nil {
				return invalid("value", "Invalid value for key '%s': %s", k, reason(err))
			}
		}
	default:
		return invalid("value", "Unsupported value type %T", value)
	}
	return nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int64, json.Number:
		return true
	}
	return false
}

func reason(err error) string {
	if ve, ok := err.(*ValidationError); ok {
		return ve.Reason
	}
	return err.Error()
}
