package domain

import (
	"errors"
	"slices"
)

// ErrInvariant marks a record violating a structural invariant.
var ErrInvariant = errors.New("invariant violated")

func invariantError(msg string) error {
	return errors.Join(ErrInvariant, errors.New(msg))
}

// Contains reports whether set holds v.
func Contains(set []string, v string) bool {
	return slices.Contains(set, v)
}

// AddToSet inserts v keeping the set sorted and unique. It reports whether v was added.
func AddToSet(set []string, v string) ([]string, bool) {
	idx, found := slices.BinarySearch(set, v)
	if found {
		return set, false
	}
	return slices.Insert(set, idx, v), true
}

// RemoveFromSet deletes v from a sorted set. It reports whether v was present.
func RemoveFromSet(set []string, v string) ([]string, bool) {
	idx, found := slices.BinarySearch(set, v)
	if !found {
		return set, false
	}
	return slices.Delete(set, idx, idx+1), true
}

// NormalizeSet sorts and de-duplicates values, dropping empty strings.
func NormalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
