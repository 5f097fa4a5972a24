package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountEmpty(t *testing.T) {
	e := NewEstimator()
	assert.Equal(t, 0, e.Count(""))
}

func TestCountPositive(t *testing.T) {
	e := NewEstimator()
	assert.Positive(t, e.Count("hello world"))
	assert.Positive(t, e.Count("é"))
}

func TestCountScalesWithLength(t *testing.T) {
	e := NewEstimator()
	short := e.Count("one sentence about something.")
	long := e.Count(strings.Repeat("one sentence about something. ", 20))
	assert.Greater(t, long, short)
}

func TestCountFallback(t *testing.T) {
	// An estimator without an encoding uses the bytes/4 approximation.
	e := &Estimator{}
	assert.Equal(t, 1, e.Count("abc"))
	assert.Equal(t, 2, e.Count("abcdefgh"))
	assert.Equal(t, 0, e.Count(""))
}
