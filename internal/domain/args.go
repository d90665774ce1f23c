package domain

import (
	"fmt"
	"sort"
)

// Args are the materialized resource values passed to a case body.
type Args map[string]any

// Arg returns the named argument converted to T.
func Arg[T any](args Args, name string) (T, error) {
	var zero T
	v, ok := args[name]
	if !ok {
		return zero, fmt.Errorf("argument %q not provided", name)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("argument %q: expected %T, got %T", name, zero, v)
	}
	return typed, nil
}

// MustArg is like Arg but panics on a missing or mistyped argument.
// A panic inside a body is reported as a failure of that case.
func MustArg[T any](args Args, name string) T {
	v, err := Arg[T](args, name)
	if err != nil {
		panic(err)
	}
	return v
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
