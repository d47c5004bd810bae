package model

import (
	"fmt"

	"github.com/YuminosukeSato/binclf/pkg/errors"
)

// The helpers below coerce SetParams values. Values may come from Go code
// (float64, int, bool, string, slices) or from a decoded YAML document
// (int for integral numbers, []interface{} for sequences).

// ParamFloat coerces v to float64.
func ParamFloat(name string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	default:
		return 0, errors.NewValidationError(name, "expected a number", v)
	}
}

// ParamInt coerces v to int. Floats must be integral.
func ParamInt(name string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case int32:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return 0, errors.NewValidationError(name, "expected an integer", v)
		}
		return int(x), nil
	default:
		return 0, errors.NewValidationError(name, "expected an integer", v)
	}
}

// ParamBool coerces v to bool.
func ParamBool(name string, v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, errors.NewValidationError(name, "expected a boolean", v)
	}
	return b, nil
}

// ParamString coerces v to string.
func ParamString(name string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.NewValidationError(name, "expected a string", v)
	}
	return s, nil
}

// ParamFloatSlice coerces v to []float64.
func ParamFloatSlice(name string, v interface{}) ([]float64, error) {
	switch x := v.(type) {
	case []float64:
		return append([]float64(nil), x...), nil
	case []int:
		out := make([]float64, len(x))
		for i, e := range x {
			out[i] = float64(e)
		}
		return out, nil
	case []interface{}:
		out := make([]float64, len(x))
		for i, e := range x {
			f, err := ParamFloat(fmt.Sprintf("%s[%d]", name, i), e)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, errors.NewValidationError(name, "expected a list of numbers", v)
	}
}

// ParamStringSlice coerces v to []string. A single string becomes a one-element slice.
func ParamStringSlice(name string, v interface{}) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{x}, nil
	case []string:
		return append([]string(nil), x...), nil
	case []interface{}:
		out := make([]string, len(x))
		for i, e := range x {
			s, err := ParamString(fmt.Sprintf("%s[%d]", name, i), e)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, errors.NewValidationError(name, "expected a string or a list of strings", v)
	}
}

// UnknownParam is the error SetParams returns for a key it does not know.
func UnknownParam(model, key string) error {
	return errors.NewValidationError(key, fmt.Sprintf("unknown parameter for %s", model), key)
}
