package hosterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinels_WrappedErrorsStillMatch(t *testing.T) {
	wrapped := fmt.Errorf("store: lookup failed: %w", ErrNotFound)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrTimeout))
}

func TestSentinels_AreDistinct(t *testing.T) {
	all := []error{ErrNotFound, ErrTransient, ErrDenied, ErrTimeout, ErrAmbiguous, ErrWorkerCrashed}
	for i, a := range all {
		for j, b := range all {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
		}
	}
}
