package btsense

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"
)

const (

	// DefaultSampleInterval is the period between two sensor measurements
	DefaultSampleInterval = time.Second

	// DefaultFaultThreshold is the number of consecutive sensor faults after
	// which the sampler reports the sensor as faulted
	DefaultFaultThreshold = 5

	// DefaultMaxRecoveryBackoff caps the pause between recovery attempts
	DefaultMaxRecoveryBackoff = 30 * time.Second
)

// ErrSensorFault denotes an I/O level failure while reading the sensor
var ErrSensorFault = errors.New("sensor fault")

// SensorSource denotes a physical (or simulated) temperature / humidity sensor
type SensorSource interface {

	// Measure performs a measurement. A successful measurement may still carry
	// SentinelInvalid values if the sensor had nothing valid to report
	Measure(ctx context.Context) (temperature, humidity float64, err error)

	// Reinitialize re-creates the underlying handle after a fault
	Reinitialize() error
}

// SamplerState denotes the state of the sampling loop
type SamplerState int

const (

	// SamplerSampling is the normal operating state
	SamplerSampling SamplerState = iota

	// SamplerRecovering is active between a sensor fault and the next attempt
	SamplerRecovering
)

// SamplerStats summarizes the sampling loop's activity
type SamplerStats struct {
	Stored  int64
	Invalid int64
	Faults  int64
	Dropped uint64
}

// Sampler periodically pulls readings from a SensorSource into a SampleBuffer
type Sampler struct {
	source SensorSource
	buffer *SampleBuffer

	interval       time.Duration
	faultThreshold int
	faultHandler   func(faulted bool, consecutive int)

	state       atomic.Int32
	consecutive int
	holdoff     int
	backOff     *backoff.ExponentialBackOff

	faulted atomic.Bool
	stored  atomic.Int64
	invalid atomic.Int64
	faults  atomic.Int64

	now    func() time.Time
	logger Logger
}

// NewSampler instantiates a new sampling loop, executing functional options, if any
func NewSampler(source SensorSource, buffer *SampleBuffer, options ...func(*Sampler)) *Sampler {
	s := &Sampler{
		source:         source,
		buffer:         buffer,
		interval:       DefaultSampleInterval,
		faultThreshold: DefaultFaultThreshold,
		now:            time.Now,
		logger:         &NullLogger{},
	}

	for _, option := range options {
		option(s)
	}

	// The first retry happens on the next tick, each further consecutive fault
	// doubles the pause
	s.backOff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.interval),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(max(s.interval, DefaultMaxRecoveryBackoff)),
		backoff.WithMaxElapsedTime(0),
	)

	return s
}

// WithSamplerInterval sets the period between two measurements
func WithSamplerInterval(interval time.Duration) func(*Sampler) {
	return func(s *Sampler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSamplerFaultThreshold sets the number of consecutive faults that raise the fault flag
func WithSamplerFaultThreshold(n int) func(*Sampler) {
	return func(s *Sampler) {
		if n > 0 {
			s.faultThreshold = n
		}
	}
}

// WithSamplerFaultHandler defines a handler function that is called whenever the fault flag changes
func WithSamplerFaultHandler(fn func(faulted bool, consecutive int)) func(*Sampler) {
	return func(s *Sampler) {
		s.faultHandler = fn
	}
}

// WithSamplerLogger sets a logger
func WithSamplerLogger(logger Logger) func(*Sampler) {
	return func(s *Sampler) {
		s.logger = logger
	}
}

// State returns the current state of the loop
func (s *Sampler) State() SamplerState {
	return SamplerState(s.state.Load())
}

// Faulted returns true while the sensor has failed more than the configured
// number of consecutive times
func (s *Sampler) Faulted() bool {
	return s.faulted.Load()
}

// Stats returns the loop's counters
func (s *Sampler) Stats() SamplerStats {
	return SamplerStats{
		Stored:  s.stored.Load(),
		Invalid: s.invalid.Load(),
		Faults:  s.faults.Load(),
		Dropped: s.buffer.Dropped(),
	}
}

// Run samples on every tick until the context is cancelled
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Step(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Step performs a single tick of the sampling loop
func (s *Sampler) Step(ctx context.Context) {

	// Skip ticks while backing off after repeated faults
	if s.holdoff > 0 {
		s.holdoff--
		return
	}
	s.state.Store(int32(SamplerSampling))

	temp, hum, err := s.source.Measure(ctx)
	if err != nil {

		// Cancellation during shutdown is not a sensor fault
		if ctx.Err() != nil {
			return
		}
		s.handleFault(err)
		return
	}

	reading := Reading{
		TimeStamp:   s.now(),
		Temperature: temp,
		Humidity:    hum,
	}
	s.resetFaults()

	if !reading.IsValid() {
		s.invalid.Inc()
		s.logger.Warnf("sensor reading error, discarding invalid reading (%s)", reading)
		return
	}

	if s.buffer.Append(reading) {
		s.logger.Warnf("buffer full (capacity %d), dropped oldest reading", s.buffer.Cap())
	}
	s.stored.Inc()
	s.logger.Infof("stored data - %s", reading)
}

func (s *Sampler) handleFault(err error) {
	s.faults.Inc()
	s.consecutive++
	s.state.Store(int32(SamplerRecovering))

	s.logger.Warnf("sensor read error (%d consecutive): %s", s.consecutive, err)
	if rerr := s.source.Reinitialize(); rerr != nil {
		s.logger.Warnf("failed to reinitialize sensor: %s", rerr)
	}

	if s.consecutive == 1 {
		s.backOff.Reset()
	}
	if wait := s.backOff.NextBackOff(); wait != backoff.Stop {
		s.holdoff = int(wait/s.interval) - 1
	}

	if s.consecutive >= s.faultThreshold && !s.faulted.Swap(true) {
		s.logger.Errorf("sensor faulted after %d consecutive failures", s.consecutive)
		if s.faultHandler != nil {
			s.faultHandler(true, s.consecutive)
		}
	}
}

func (s *Sampler) resetFaults() {
	if s.consecutive == 0 {
		return
	}

	s.logger.Infof("sensor recovered after %d consecutive failures", s.consecutive)
	s.consecutive = 0
	s.holdoff = 0
	if s.faulted.Swap(false) && s.faultHandler != nil {
		s.faultHandler(false, 0)
	}
}
