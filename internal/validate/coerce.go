package validate

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/codex-k8s/orion-orchestrator/internal/catalog"
)

// coerce converts a raw value to the declared parameter type. The second
// return is false when the value cannot be represented as that type.
func coerce(t catalog.ParamType, value any) (any, bool) {
	switch t {
	case catalog.TypeString:
		s, ok := value.(string)
		return s, ok
	case catalog.TypePath:
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, false
		}
		return s, true
	case catalog.TypeInteger:
		return coerceInt(value)
	case catalog.TypeBoolean:
		return coerceBool(value)
	case catalog.TypeArray:
		switch v := value.(type) {
		case []any:
			return v, true
		case []string:
			out := make([]any, len(v))
			for i, s := range v {
				out[i] = s
			}
			return out, true
		}
		return nil, false
	case catalog.TypeObject:
		m, ok := value.(map[string]any)
		return m, ok
	}
	return nil, false
}

func coerceInt(value any) (any, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return floatToInt(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err != nil {
			return nil, false
		}
		return floatToInt(f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	}
	return nil, false
}

// floatToInt accepts integral floats that fit in an int64. 2^63 itself is
// representable as a float64 but not as an int64, hence the open upper bound.
func floatToInt(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, false
	}
	return int64(f), true
}

func coerceBool(value any) (any, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	}
	return nil, false
}

// numeric returns the value as float64 for range checks.
func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
