package model

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Report is the flat metric-name → value mapping produced by the metrics engine.
type Report map[string]float64

// Keys returns metric names in sorted order.
func (r Report) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JSON returns the JSON-encoded report (keys sorted by encoding/json).
func (r Report) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// RuleIdentity names a calculator and carries its raw parameters.
// It is built once by the caller before entering the core.
type RuleIdentity struct {
	Name   string            `json:"name" yaml:"name"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// String renders "Name(k=v,...)" with keys sorted, stable across runs.
func (r RuleIdentity) String() string {
	if len(r.Params) == 0 {
		return r.Name
	}
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(r.Params[k])
	}
	b.WriteByte(')')
	return b.String()
}

// Param looks up a parameter case-insensitively.
func (r RuleIdentity) Param(key string) (string, bool) {
	if v, ok := r.Params[key]; ok {
		return v, true
	}
	for k, v := range r.Params {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// ParseRuleIdentity parses "Name:k=v,k=v" (the CLI form) into a RuleIdentity.
func ParseRuleIdentity(s string) RuleIdentity {
	s = strings.TrimSpace(s)
	name, rest, found := strings.Cut(s, ":")
	rule := RuleIdentity{Name: strings.TrimSpace(name)}
	if !found || strings.TrimSpace(rest) == "" {
		return rule
	}
	rule.Params = make(map[string]string)
	for _, kv := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		rule.Params[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return rule
}

// RunRecord is a persisted report for one (series, rule) pair.
type RunRecord struct {
	RunID  string       `json:"run_id"`
	Symbol string       `json:"symbol"`
	TF     int          `json:"tf"`
	Rule   RuleIdentity `json:"rule"`
	Report Report       `json:"report"`
	Trades []Trade      `json:"trades,omitempty"`
	Err    string       `json:"error,omitempty"`
}

// CacheKey returns "report:{symbol}:{tf}s:{rule}".
func (r *RunRecord) CacheKey() string {
	return "report:" + r.Symbol + ":" + strconv.Itoa(r.TF) + "s:" + r.Rule.String()
}
