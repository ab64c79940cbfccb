package check_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.trai.ch/parablock/check"
)

func TestRecorder_CollectsEveryFailure(t *testing.T) {
	r := check.NewRecorder()

	assert.True(t, r.True(true))
	assert.False(t, r.True(false, "first"))
	assert.False(t, r.Equal("a", "b", "letters %d", 2))
	assert.True(t, r.Equal(int64(3), 3), "numeric kinds are coerced")
	assert.False(t, r.NoError(errors.New("boom")))
	assert.True(t, r.Error(errors.New("boom")))
	assert.False(t, r.Contains("parablock", "zzz"))
	r.Fail()

	require.True(t, r.Failed())
	assert.Equal(t, 8, r.Checks())

	failures := r.Failures()
	require.Len(t, failures, 5)
	assert.Equal(t, "True: first: condition is false", failures[0].String())
	assert.Contains(t, failures[1].Message, "letters 2")
	assert.Contains(t, failures[1].Message, "-want +got")
	assert.Equal(t, "NoError", failures[2].Assertion)
	assert.Equal(t, "Contains", failures[3].Assertion)
	assert.Equal(t, "Fail: failed", failures[4].String())
	assert.Contains(t, r.Report(), "True: first: condition is false\n")
}

func TestRecorder_EqualStructs(t *testing.T) {
	type point struct{ X, Y int }
	type hidden struct{ x int }

	r := check.NewRecorder()
	assert.True(t, r.Equal(point{1, 2}, point{1, 2}))
	assert.False(t, r.Equal(point{1, 2}, point{2, 1}))
	assert.True(t, r.Equal(hidden{1}, hidden{1}), "unexported fields fall back to DeepEqual")
	assert.True(t, r.NotEqual([]int{1}, []int{2}))
	assert.True(t, r.Equal(nil, nil))
}

func TestRecorder_Symbols(t *testing.T) {
	r := check.NewRecorder()
	symbols := r.Symbols()

	for _, name := range []string{"True", "False", "Equal", "NotEqual", "NoError", "Error", "Contains", "Fail"} {
		require.Contains(t, symbols, name)
	}

	trueFn, ok := symbols["True"].Interface().(func(bool, ...any) bool)
	require.True(t, ok)
	trueFn(false)
	assert.True(t, r.Failed())
}

func TestPackageLevel_PanicsOnFailure(t *testing.T) {
	assert.NotPanics(t, func() { check.Equal(2, 2) })

	defer func() {
		rec := recover()
		var failed *check.FailedError
		require.ErrorAs(t, rec.(error), &failed)
		assert.Equal(t, "Contains", failed.Failure.Assertion)
	}()
	check.Contains("abc", "z")
}
