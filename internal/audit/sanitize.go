package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gosuda/praxis/internal/domain"
)

// Redacted replaces the value of every sensitive key in a sanitized snapshot.
const Redacted = "***REDACTED***"

// sensitiveKeys are matched as lowercase substrings of a key.
var sensitiveKeys = []string{ //nolint:gochecknoglobals // fixed redaction list
	"password",
	"passwordhash",
	"secret",
	"apikey",
	"token",
	"accesstoken",
	"refreshtoken",
	"privatekey",
	"creditcard",
	"cvv",
	"pin",
}

// IsSensitiveKey reports whether values stored under key must be redacted.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Sanitize returns a deep copy of data with sensitive values redacted.
// Values outside the JSON variant set that cannot be converted are dropped
// to nil; use SanitizeStrict to surface them as errors instead.
func Sanitize(data domain.Snapshot) domain.Snapshot {
	if data == nil {
		return nil
	}
	out, _ := cleanMap(data, false)
	return out
}

// SanitizeStrict is Sanitize but fails on values that are not JSON-safe.
func SanitizeStrict(data domain.Snapshot) (domain.Snapshot, error) {
	if data == nil {
		return nil, nil
	}
	return cleanMap(data, true)
}

func cleanMap(in map[string]any, strict bool) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if IsSensitiveKey(k) {
			out[k] = Redacted
			continue
		}
		cleaned, err := cleanValue(v, strict)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = cleaned
	}
	return out, nil
}

func cleanValue(v any, strict bool) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, json.Number,
		float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val, nil
	case time.Time:
		return val, nil
	case map[string]any:
		return cleanMap(val, strict)
	case domain.Snapshot:
		return cleanMap(val, strict)
	case domain.Metadata:
		return cleanMap(val, strict)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			cleaned, err := cleanValue(item, strict)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = cleaned
		}
		return out, nil
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(val))
		for i, m := range val {
			cleaned, err := cleanMap(m, strict)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = cleaned
		}
		return out, nil
	default:
		return normalize(val, strict)
	}
}

// normalize converts an arbitrary Go value into the JSON variant set and
// sanitizes the result, so redaction also applies to struct fields.
func normalize(v any, strict bool) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		if strict {
			return nil, fmt.Errorf("value of type %T is not JSON-safe: %w", v, err)
		}
		return nil, nil //nolint:nilnil // dropped value
	}
	var generic any
	if err = json.Unmarshal(raw, &generic); err != nil {
		if strict {
			return nil, fmt.Errorf("value of type %T is not JSON-safe: %w", v, err)
		}
		return nil, nil //nolint:nilnil // dropped value
	}
	return cleanValue(generic, strict)
}
