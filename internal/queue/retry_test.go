package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_NextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, p.NextDelay(0))
	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 5*time.Second, p.NextDelay(4))
	assert.Equal(t, 5*time.Second, p.NextDelay(500))
}

func TestRetryPolicy_Disabled(t *testing.T) {
	var p RetryPolicy
	assert.False(t, p.Enabled())
	assert.Zero(t, p.NextDelay(3))
}

func TestRetryPolicy_DefaultFactor(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond}
	assert.Equal(t, 400*time.Millisecond, p.NextDelay(3))
}
