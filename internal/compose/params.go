package compose

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
)

// Params are the named arguments of an operation. Numbers may be any Go
// numeric type or a json.Number.
type Params map[string]any

// Float returns a numeric parameter. ok is false when the key is absent.
func (p Params) Float(key string) (v float64, ok bool, err error) {
	raw, ok := p[key]
	if !ok {
		return 0, false, nil
	}
	switch n := raw.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, true, fmt.Errorf("%w: %s: %w", domain.ErrInvalidParams, key, err)
		}
		return f, true, nil
	default:
		return 0, true, fmt.Errorf("%w: %s must be a number, got %T", domain.ErrInvalidParams, key, raw)
	}
}

// RequireFloat returns a numeric parameter that must be present.
func (p Params) RequireFloat(key string) (float64, error) {
	v, ok, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrInvalidParams, key)
	}
	return v, nil
}

// FloatOr returns a numeric parameter or def when absent.
func (p Params) FloatOr(key string, def float64) (float64, error) {
	v, ok, err := p.Float(key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// StringOr returns a string parameter or def when absent.
func (p Params) StringOr(key, def string) (string, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", domain.ErrInvalidParams, key, raw)
	}
	return s, nil
}

func (p Params) clone() map[string]any {
	if len(p) == 0 {
		return nil
	}
	return maps.Clone(map[string]any(p))
}
