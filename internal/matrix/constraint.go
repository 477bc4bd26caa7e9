package matrix

import (
	"strconv"
	"strings"
)

const (
	legacyConstraint  = "<2"
	currentConstraint = "<3,>=2"
)

// LibraryConstraint selects the install constraint for a library-version axis
// value: exactly 1 pins below the 2.x line, anything else pins to 2.x.
// Workflows express the same choice as
// ${{ matrix.pydantic-version == 1 && '<2' || '<3,>=2' }}, which the
// expression evaluator resolves; tests use this function as the reference
// that evaluation must agree with.
func LibraryConstraint(axisValue string) string {
	if f, err := strconv.ParseFloat(strings.TrimSpace(axisValue), 64); err == nil && f == 1 {
		return legacyConstraint
	}
	return currentConstraint
}

// InstallRequirement renders a requirement specifier such as "pydantic<2".
func InstallRequirement(pkg, axisValue string) string {
	return pkg + LibraryConstraint(axisValue)
}
