package procedure

import (
	"errors"
	"fmt"
	"time"
)

// Builtin returns a registry pre-populated with the lab's three procedures.
// All three are idempotent, which is what makes them safe to serve in
// at-least-once mode.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register("add", Add)
	r.Register("reverse_string", ReverseString)
	r.Register("get_time", GetTime)
	return r
}

// Add sums the numeric params a and b.
func Add(params map[string]any) (any, error) {
	a, ok := asNumber(params["a"])
	if !ok {
		return nil, fmt.Errorf("param a is not numeric: %v", params["a"])
	}
	b, ok := asNumber(params["b"])
	if !ok {
		return nil, fmt.Errorf("param b is not numeric: %v", params["b"])
	}
	return a + b, nil
}

// ReverseString reverses the character sequence of param s.
// Reversal is rune-wise so multi-byte characters survive intact.
func ReverseString(params map[string]any) (any, error) {
	v, present := params["s"]
	if !present {
		return nil, errors.New("param s is required")
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("param s is not a string: %v", v)
	}

	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes), nil
}

// GetTime returns the current UTC time in RFC 3339 format.
func GetTime(params map[string]any) (any, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

// asNumber accepts the numeric shapes a params value can arrive in.
// JSON decoding always yields float64, but handlers invoked directly from Go
// (tests, embedding) may pass native ints.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
