package harness

import (
	"fmt"

	"fortio.org/safecast"
)

// args wraps a step's YAML arguments with typed accessors.
type args map[string]any

func (a args) intArg(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return safecast.Conv[int](n)
	case uint64:
		return safecast.Conv[int](n)
	}
	return 0, fmt.Errorf("argument %q: expected an integer, got %T", key, v)
}

func (a args) stringArg(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", fmt.Errorf("argument %q is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected a string, got %T", key, v)
	}
	return s, nil
}

func (a args) boolArg(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q: expected a bool, got %T", key, v)
	}
	return b, nil
}

// narrow reads an integer argument into an engine field type, rejecting
// values that do not fit.
func narrow[T uint16 | uint32](a args, key string, def int) (T, error) {
	n, err := a.intArg(key, def)
	if err != nil {
		return 0, err
	}
	v, err := safecast.Conv[T](n)
	if err != nil {
		return 0, fmt.Errorf("argument %q: %w", key, err)
	}
	return v, nil
}
