package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := IO("writing file", cause)
	assert.Contains(t, err.Error(), "writing file")
	assert.Contains(t, err.Error(), "disk full")
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := MalformedRecord("bad record", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestExitCodesAreDistinctPerKind(t *testing.T) {
	kinds := []error{
		NotARepository("."),
		AlreadyExists("."),
		EmptyStage(),
		DirtyWorkingTree("x"),
		UnknownTarget("x"),
		MalformedRecord("x", nil),
		IO("x", nil),
	}

	seen := map[int]bool{}
	for _, k := range kinds {
		code := ExitCode(k)
		assert.False(t, seen[code], "exit code %d reused across kinds", code)
		seen[code] = true
		assert.NotEqual(t, 0, code)
	}
}

func TestExitCodeDefaultsForNonSitError(t *testing.T) {
	assert.Equal(t, 1, ExitCode(errors.New("plain error")))
}
