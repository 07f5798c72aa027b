package enums

import (
	"fmt"
	"slices"
)

func contains[T ~string](valid []T, value T) bool {
	return slices.Contains(valid, value)
}

func parse[T ~string](valid []T, label, value string) (T, error) {
	candidate := T(value)
	if contains(valid, candidate) {
		return candidate, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", label, value)
}
