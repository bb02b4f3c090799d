package indicator

import (
	"fmt"
	"strconv"

	"signalperf/internal/model"
)

// params reads typed values out of a RuleIdentity parameter bag.
type params struct {
	rule model.RuleIdentity
}

func (p params) intOr(key string, def int) (int, error) {
	raw, ok := p.rule.Param(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %s=%q: %w", p.rule.Name, key, raw, ErrInvalidParam)
	}
	return v, nil
}

func (p params) floatOr(key string, def float64) (float64, error) {
	raw, ok := p.rule.Param(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v != v {
		return 0, fmt.Errorf("%s %s=%q: %w", p.rule.Name, key, raw, ErrInvalidParam)
	}
	return v, nil
}

func (p params) stringOr(key, def string) string {
	if raw, ok := p.rule.Param(key); ok && raw != "" {
		return raw
	}
	return def
}

// requirePositive fails fast on a period < 1.
func requirePositive(indicator string, names []string, values ...int) error {
	for i, v := range values {
		if v < 1 {
			return fmt.Errorf("%s: %s must be >= 1, got %d: %w", indicator, names[i], v, ErrInvalidParam)
		}
	}
	return nil
}
