package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgricker/matrixrun/internal/matrix"
)

func matrixContext(values map[string]string) Context {
	return Context{"matrix": values, "env": {"CI": "true"}}
}

func TestInterpolateMatrixReference(t *testing.T) {
	e := New(matrixContext(map[string]string{"python-version": "3.10"}))
	got, err := e.Interpolate("python${{ matrix.python-version }} -m pytest")
	require.NoError(t, err)
	assert.Equal(t, "python3.10 -m pytest", got)
	assert.Empty(t, e.Warnings())
}

func TestInterpolateIndexSyntax(t *testing.T) {
	e := New(matrixContext(map[string]string{"os": "linux"}))
	got, err := e.Interpolate("${{ matrix['os'] }}/${{ env.CI }}")
	require.NoError(t, err)
	assert.Equal(t, "linux/true", got)
}

func TestConditionalConstraintMatchesPureFunction(t *testing.T) {
	const tmpl = `pip install "pydantic${{ matrix.pydantic-version == 1 && '<2' || '<3,>=2' }}"`
	for _, version := range []string{"1", "2", "3"} {
		e := New(matrixContext(map[string]string{"pydantic-version": version}))
		got, err := e.Interpolate(tmpl)
		require.NoError(t, err)
		want := `pip install "` + matrix.InstallRequirement("pydantic", version) + `"`
		assert.Equal(t, want, got, "pydantic-version=%s", version)
	}
}

func TestEvaluateOperators(t *testing.T) {
	e := New(matrixContext(map[string]string{"n": "2", "os": "Linux"}))
	tests := []struct {
		expr string
		want string
	}{
		{"matrix.n == 2", "true"},
		{"matrix.n == '2'", "true"},
		{"matrix.n != 2", "false"},
		{"matrix.n > 1", "true"},
		{"matrix.n <= 1", "false"},
		{"matrix.os == 'linux'", "true"},
		{"!matrix.missing", "true"},
		{"matrix.missing || 'fallback'", "fallback"},
		{"matrix.os && 'yes'", "yes"},
		{"(matrix.n == 1 || matrix.n == 2) && 'hit' || 'miss'", "hit"},
		{"'it''s'", "it's"},
		{"null", ""},
		{"3.10", "3.1"},
		{"-1 < 0", "true"},
		{"true && false", "false"},
	}
	for _, tt := range tests {
		v, err := e.Evaluate(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, v.String(), tt.expr)
	}
}

func TestUnknownContextWarns(t *testing.T) {
	e := New(matrixContext(nil))
	got, err := e.Interpolate("ref=${{ github.ref }} token=${{ secrets.TOKEN }} again=${{ github.sha }}")
	require.NoError(t, err)
	assert.Equal(t, "ref= token= again=", got)
	assert.Equal(t, []string{
		`context "github" is not available locally`,
		`context "secrets" is not available locally`,
	}, e.Warnings())
}

func TestEvaluateErrors(t *testing.T) {
	e := New(matrixContext(nil))
	for _, bad := range []string{
		"contains(matrix.os, 'x')",
		"'unterminated",
		"matrix.os ==",
		"(matrix.os",
		"matrix.os $ 1",
		"matrix.",
		"matrix[os]",
		"1 2",
	} {
		_, err := e.Evaluate(bad)
		assert.Error(t, err, bad)
	}

	_, err := e.Interpolate("echo ${{ matrix.os")
	assert.Error(t, err)
}

func TestInterpolateBracesInsideStrings(t *testing.T) {
	e := New(matrixContext(map[string]string{"os": "linux"}))
	got, err := e.Interpolate("a ${{ '}}' }} b ${{ 'it''s }}' }} ${{ matrix.os }}")
	require.NoError(t, err)
	assert.Equal(t, "a }} b it's }} linux", got)

	_, err = e.Interpolate("${{ '}}' ")
	assert.Error(t, err)
}

func TestInterpolateMap(t *testing.T) {
	e := New(matrixContext(map[string]string{"python-version": "3.9"}))
	got, err := e.InterpolateMap(map[string]string{"python-version": "${{ matrix.python-version }}", "cache": "pip"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"python-version": "3.9", "cache": "pip"}, got)

	empty, err := e.InterpolateMap(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Value{}.Truthy())
	assert.False(t, Value{Kind: KindString}.Truthy())
	assert.False(t, Value{Kind: KindNumber}.Truthy())
	assert.True(t, Value{Kind: KindNumber, Num: -1}.Truthy())
	assert.True(t, Value{Kind: KindString, Str: "0"}.Truthy())
}
