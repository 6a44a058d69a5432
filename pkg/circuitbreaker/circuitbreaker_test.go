package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func failing() error    { return errBackend }
func succeeding() error { return nil }

func TestOpensAfterFailureThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute, MaxRequestsHalfOpen: 1})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(failing), errBackend)
	}
	assert.Equal(t, StateOpen, cb.State())

	// Open breaker sheds without invoking fn.
	invoked := false
	err := cb.Execute(func() error { invoked = true; return nil })
	var openErr ErrOpen
	require.ErrorAs(t, err, &openErr)
	assert.False(t, invoked)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute, MaxRequestsHalfOpen: 1})

	cb.Execute(failing)
	cb.Execute(failing)
	cb.Execute(succeeding)
	cb.Execute(failing)
	cb.Execute(failing)

	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond, MaxRequestsHalfOpen: 3})

	cb.Execute(failing)
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Execute(succeeding))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(succeeding))
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond, MaxRequestsHalfOpen: 3})

	cb.Execute(failing)
	time.Sleep(20 * time.Millisecond)

	assert.ErrorIs(t, cb.Execute(failing), errBackend)
	assert.Equal(t, StateOpen, cb.State())
}
