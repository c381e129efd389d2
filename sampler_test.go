package btsense_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fako1024/btsense"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplerStoresValidReadings(t *testing.T) {
	src := &scriptedSensor{script: []measurement{valid(21.5, 40), valid(21.6, 41)}}
	buf := btsense.NewSampleBuffer(10)
	s := btsense.NewSampler(src, buf)

	s.Step(context.Background())
	s.Step(context.Background())

	assert.Equal(t, []float64{21.5, 21.6}, buf.PeekChunk(10).Temperatures())
	assert.Equal(t, []float64{40, 41}, buf.PeekChunk(10).Humidities())
	assert.Equal(t, int64(2), s.Stats().Stored)
	assert.Equal(t, btsense.SamplerSampling, s.State())
}

func TestSamplerSentinelFiltering(t *testing.T) {
	// GOAL: Verify sentinel and out of range readings are never stored
	//
	// TEST SCENARIO: valid, sentinel, valid, out of range, valid → only the three valid readings are buffered in order

	src := &scriptedSensor{script: []measurement{
		valid(20.1, 30),
		sentinel(),
		valid(20.2, 31),
		valid(120, 31),
		{temp: 20.0, hum: btsense.SentinelInvalid},
		valid(20.3, 32),
	}}
	buf := btsense.NewSampleBuffer(10)
	s := btsense.NewSampler(src, buf)

	for i := 0; i < 6; i++ {
		s.Step(context.Background())
		assert.Equal(t, btsense.SamplerSampling, s.State(), "invalid readings MUST not change the state")
	}

	assert.Equal(t, 3, buf.Len(), "buffer MUST grow by exactly the number of valid readings")
	assert.Equal(t, []float64{20.1, 20.2, 20.3}, buf.PeekChunk(10).Temperatures())
	assert.Equal(t, int64(3), s.Stats().Invalid)
	assert.Zero(t, src.reinits, "invalid readings MUST not trigger a reinitialization")
}

func TestSamplerFaultOnTickFive(t *testing.T) {
	// GOAL: Verify a sensor fault loses only the reading of its own tick
	//
	// TEST SCENARIO: fault on tick 5 of 8 → sensor reinitialized once → ticks 1-4 and 6-8 buffered

	script := make([]measurement, 0, 8)
	for tick := 1; tick <= 8; tick++ {
		if tick == 5 {
			script = append(script, fault())
			continue
		}
		script = append(script, valid(float64(tick), 50))
	}
	src := &scriptedSensor{script: script}
	buf := btsense.NewSampleBuffer(100)
	s := btsense.NewSampler(src, buf)

	for tick := 1; tick <= 8; tick++ {
		s.Step(context.Background())
		if tick == 5 {
			assert.Equal(t, btsense.SamplerRecovering, s.State())
		}
	}

	assert.Equal(t, []float64{1, 2, 3, 4, 6, 7, 8}, buf.PeekChunk(100).Temperatures())
	assert.Equal(t, 1, src.reinits)
	assert.Equal(t, 8, src.measures, "the tick after a single fault MUST measure again")
	assert.Equal(t, btsense.SamplerSampling, s.State())
	assert.False(t, s.Faulted())
}

func TestSamplerReinitializeFailureIsIgnored(t *testing.T) {
	src := &scriptedSensor{
		script:    []measurement{fault(), valid(21, 50)},
		reinitErr: errors.New("bus error"),
	}
	buf := btsense.NewSampleBuffer(10)
	s := btsense.NewSampler(src, buf)

	s.Step(context.Background())
	s.Step(context.Background())

	assert.Equal(t, 1, buf.Len())
	assert.Equal(t, int64(1), s.Stats().Faults)
}

func TestSamplerBackoffAndFaultFlag(t *testing.T) {
	// GOAL: Verify repeated faults back off exponentially and raise the fault flag
	//
	// TEST SCENARIO: permanent fault with threshold 3 → measurements on ticks 1, 2, 4, 8 → flag raised on the third fault → cleared on recovery

	script := make([]measurement, 0, 4)
	for i := 0; i < 4; i++ {
		script = append(script, fault())
	}
	script = append(script, valid(21, 50))
	src := &scriptedSensor{script: script}

	var events []bool
	buf := btsense.NewSampleBuffer(10)
	s := btsense.NewSampler(src, buf,
		btsense.WithSamplerInterval(time.Second),
		btsense.WithSamplerFaultThreshold(3),
		btsense.WithSamplerFaultHandler(func(faulted bool, consecutive int) {
			events = append(events, faulted)
		}),
	)

	measuredOn := []int{}
	for tick := 1; tick <= 16; tick++ {
		before := src.measures
		s.Step(context.Background())
		if src.measures > before {
			measuredOn = append(measuredOn, tick)
		}
		if tick == 4 {
			assert.True(t, s.Faulted(), "fault flag MUST be raised after three consecutive faults")
		}
	}

	// Pauses of 0, 1, 3 and 7 ticks after the first four faults
	assert.Equal(t, []int{1, 2, 4, 8, 16}, measuredOn[:5])
	assert.Equal(t, 4, src.reinits)
	assert.False(t, s.Faulted(), "fault flag MUST clear after a valid reading")
	assert.Equal(t, []bool{true, false}, events)
	assert.Equal(t, 1, buf.Len())
}

func TestSamplerBackoffIsCapped(t *testing.T) {
	script := make([]measurement, 0, 20)
	for i := 0; i < 20; i++ {
		script = append(script, fault())
	}
	src := &scriptedSensor{script: script}
	s := btsense.NewSampler(src, btsense.NewSampleBuffer(10), btsense.WithSamplerInterval(10*time.Second))

	// With a 10s interval the 30s cap allows at most two skipped ticks
	for tick := 0; tick < 60; tick++ {
		s.Step(context.Background())
	}
	assert.GreaterOrEqual(t, src.measures, 20)
}

func TestSamplerCancelledMeasurementIsNoFault(t *testing.T) {
	src := &scriptedSensor{}
	buf := btsense.NewSampleBuffer(10)
	s := btsense.NewSampler(src, buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Step(ctx)

	assert.Zero(t, src.reinits, "a cancelled measurement MUST not reinitialize the sensor")
	assert.Zero(t, s.Stats().Faults)
	assert.Equal(t, btsense.SamplerSampling, s.State())
	assert.True(t, buf.IsEmpty())

	// Sampling continues normally on the next tick
	s.Step(context.Background())
	assert.Equal(t, 1, buf.Len())
}

func TestSamplerStateIsSafeForConcurrentReads(t *testing.T) {
	src := &scriptedSensor{script: []measurement{fault(), valid(21, 50), fault()}}
	s := btsense.NewSampler(src, btsense.NewSampleBuffer(10), btsense.WithSamplerInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	seen := map[btsense.SamplerState]bool{}
	require.Eventually(t, func() bool {
		seen[s.State()] = true
		return src.measuresCount() >= 5
	}, time.Second, 100*time.Microsecond)
	cancel()
	<-done

	assert.True(t, seen[btsense.SamplerSampling] || seen[btsense.SamplerRecovering])
}

func TestSamplerRunStopsOnCancel(t *testing.T) {
	src := &scriptedSensor{}
	buf := btsense.NewSampleBuffer(100)
	s := btsense.NewSampler(src, buf, btsense.WithSamplerInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	require.Eventually(t, func() bool { return buf.Len() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop after cancellation")
	}
}
