package sensor

import (
	"context"
	"testing"

	"github.com/fako1024/btsense"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedRandomWalk(t *testing.T) {
	s := NewSimulated(WithBaseline(20, 50), WithSeed(42))

	for i := 0; i < 1000; i++ {
		temp, hum, err := s.Measure(context.Background())
		require.Nil(t, err)

		r := btsense.Reading{Temperature: temp, Humidity: hum}
		assert.True(t, r.IsValid(), "simulated reading MUST be in range: %s", r)
		assert.InDelta(t, temp, round1(temp), 1e-9)
	}
}

func TestSimulatedDeterministic(t *testing.T) {
	s1, s2 := NewSimulated(WithSeed(7)), NewSimulated(WithSeed(7))
	for i := 0; i < 10; i++ {
		t1, h1, _ := s1.Measure(context.Background())
		t2, h2, _ := s2.Measure(context.Background())
		assert.Equal(t, t1, t2)
		assert.Equal(t, h1, h2)
	}
}

func TestSimulatedFaultRequiresReinit(t *testing.T) {
	s := NewSimulated()
	s.InjectFaults(1)

	_, _, err := s.Measure(context.Background())
	assert.ErrorIs(t, err, btsense.ErrSensorFault)

	// The device stays unusable until reinitialized
	_, _, err = s.Measure(context.Background())
	assert.ErrorIs(t, err, btsense.ErrSensorFault)

	require.Nil(t, s.Reinitialize())
	assert.Equal(t, 1, s.Reinits())

	_, _, err = s.Measure(context.Background())
	assert.Nil(t, err)
}

func TestSimulatedSentinel(t *testing.T) {
	s := NewSimulated()
	s.InjectSentinels(2)

	for i := 0; i < 2; i++ {
		temp, hum, err := s.Measure(context.Background())
		require.Nil(t, err)
		assert.Equal(t, btsense.SentinelInvalid, temp)
		assert.Equal(t, btsense.SentinelInvalid, hum)
	}

	temp, _, err := s.Measure(context.Background())
	require.Nil(t, err)
	assert.NotEqual(t, btsense.SentinelInvalid, temp)
}

func TestSimulatedRates(t *testing.T) {
	s := NewSimulated(WithFaultRate(1))
	_, _, err := s.Measure(context.Background())
	assert.ErrorIs(t, err, btsense.ErrSensorFault)

	s = NewSimulated(WithSentinelRate(1))
	temp, _, err := s.Measure(context.Background())
	require.Nil(t, err)
	assert.Equal(t, btsense.SentinelInvalid, temp)
}

func TestSimulatedCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewSimulated().Measure(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
