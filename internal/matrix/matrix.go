// Package matrix expands job matrix declarations into concrete assignments.
package matrix

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bgricker/matrixrun/internal/provider"
)

var (
	// ErrEmptyAxis indicates an axis was declared without any values.
	ErrEmptyAxis = errors.New("matrix axis has no values")
	// ErrDuplicateAxis indicates the same axis name was declared twice.
	ErrDuplicateAxis = errors.New("matrix axis declared more than once")
	// ErrNoCombinations indicates exclusions removed every combination.
	ErrNoCombinations = errors.New("matrix excludes every combination")
)

// Pair binds one axis name to the value chosen for an instance.
type Pair struct {
	Axis  string `json:"axis"`
	Value string `json:"value"`
}

// Assignment is an ordered set of axis values identifying one job instance.
type Assignment []Pair

// Get returns the value bound to axis.
func (a Assignment) Get(axis string) (string, bool) {
	for _, p := range a {
		if p.Axis == axis {
			return p.Value, true
		}
	}
	return "", false
}

// Map returns the assignment as a plain map.
func (a Assignment) Map() map[string]string {
	if len(a) == 0 {
		return nil
	}
	out := make(map[string]string, len(a))
	for _, p := range a {
		out[p.Axis] = p.Value
	}
	return out
}

// Values returns the bound values in axis order.
func (a Assignment) Values() []string {
	out := make([]string, 0, len(a))
	for _, p := range a {
		out = append(out, p.Value)
	}
	return out
}

// Label renders the values the way GitHub suffixes matrix job names, e.g. "3.9, 1".
func (a Assignment) Label() string {
	return strings.Join(a.Values(), ", ")
}

// Matches reports whether every key in filter is bound to the same value.
func (a Assignment) Matches(filter map[string]string) bool {
	for k, want := range filter {
		got, ok := a.Get(k)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func (a Assignment) with(axis, value string) Assignment {
	out := make(Assignment, len(a), len(a)+1)
	copy(out, a)
	for i := range out {
		if out[i].Axis == axis {
			out[i].Value = value
			return out
		}
	}
	return append(out, Pair{Axis: axis, Value: value})
}

// Validate checks axis declarations without expanding them.
func Validate(m provider.Matrix) error {
	seen := make(map[string]struct{}, len(m.Axes))
	for _, axis := range m.Axes {
		if _, ok := seen[axis.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateAxis, axis.Name)
		}
		seen[axis.Name] = struct{}{}
		if len(axis.Values) == 0 {
			return fmt.Errorf("%w: %q", ErrEmptyAxis, axis.Name)
		}
	}
	return nil
}

// Expand returns one assignment per element of the cross-product of the axes,
// with exclusions filtered out and inclusions merged in. The first axis varies
// slowest. A matrix with no axes yields exactly one empty assignment.
func Expand(m provider.Matrix) ([]Assignment, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}

	combos := make([]Assignment, 1, size(m))
	combos[0] = Assignment{}
	for _, axis := range m.Axes {
		next := make([]Assignment, 0, len(combos)*len(axis.Values))
		for _, combo := range combos {
			for _, v := range axis.Values {
				next = append(next, combo.with(axis.Name, v))
			}
		}
		combos = next
	}
	// An include-only matrix has no base combination to extend.
	if len(m.Axes) == 0 && len(m.Include) > 0 {
		combos = nil
	}

	if len(m.Exclude) > 0 {
		kept := combos[:0:0]
		for _, combo := range combos {
			if !excluded(combo, m.Exclude) {
				kept = append(kept, combo)
			}
		}
		combos = kept
	}

	if len(m.Include) > 0 {
		combos = include(combos, m.Axes, m.Include)
	}

	if len(combos) == 0 {
		return nil, ErrNoCombinations
	}
	return combos, nil
}

// size is the length of the axis cross-product, before include/exclude.
func size(m provider.Matrix) int {
	n := 1
	for _, axis := range m.Axes {
		n *= len(axis.Values)
	}
	return n
}

func excluded(combo Assignment, excludes []map[string]string) bool {
	for _, ex := range excludes {
		if len(ex) > 0 && combo.Matches(ex) {
			return true
		}
	}
	return false
}

// include follows GitHub semantics. An entry is merged into every
// cross-product combination whose original axis values it does not change;
// values added by earlier entries may be overwritten. An entry that merges
// into nothing becomes a combination of its own.
func include(combos []Assignment, axes []provider.Axis, entries []map[string]string) []Assignment {
	original := make(map[string]struct{}, len(axes))
	for _, axis := range axes {
		original[axis.Name] = struct{}{}
	}
	base := len(combos)

	for _, entry := range entries {
		if len(entry) == 0 {
			continue
		}
		keys := sortedKeys(entry)
		matchedAny := false
		for i := 0; i < base; i++ {
			if !matchesOriginal(combos[i], entry, original) {
				continue
			}
			matchedAny = true
			for _, k := range keys {
				combos[i] = combos[i].with(k, entry[k])
			}
		}
		if !matchedAny {
			added := Assignment{}
			for _, axis := range axes {
				if v, ok := entry[axis.Name]; ok {
					added = added.with(axis.Name, v)
				}
			}
			for _, k := range keys {
				added = added.with(k, entry[k])
			}
			combos = append(combos, added)
		}
	}
	return combos
}

func matchesOriginal(combo Assignment, entry map[string]string, original map[string]struct{}) bool {
	for k, v := range entry {
		if _, ok := original[k]; !ok {
			continue
		}
		if got, _ := combo.Get(k); got != v {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
