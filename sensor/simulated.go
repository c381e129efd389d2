// Package sensor provides temperature / humidity sources for a btsense node
package sensor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/fako1024/btsense"
)

// Simulated denotes a software sensor producing a slow random walk around a
// base climate. Faults and sentinel readings can be injected at a given rate
// or on demand
type Simulated struct {
	temperature float64
	humidity    float64

	faultRate    float64
	sentinelRate float64

	pendingFaults    int
	pendingSentinels int

	initialized bool
	reinits     int

	rng   *rand.Rand
	mutex sync.Mutex
}

// NewSimulated instantiates a new simulated sensor, executing functional options, if any
func NewSimulated(options ...func(*Simulated)) *Simulated {
	s := &Simulated{
		temperature: 21.5,
		humidity:    45.0,
		initialized: true,
		rng:         rand.New(rand.NewSource(1)),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// WithBaseline sets the starting temperature and humidity
func WithBaseline(temperature, humidity float64) func(*Simulated) {
	return func(s *Simulated) {
		s.temperature = temperature
		s.humidity = humidity
	}
}

// WithFaultRate sets the probability of a hard I/O fault per measurement
func WithFaultRate(rate float64) func(*Simulated) {
	return func(s *Simulated) {
		s.faultRate = rate
	}
}

// WithSentinelRate sets the probability of a sentinel "no reading" result per measurement
func WithSentinelRate(rate float64) func(*Simulated) {
	return func(s *Simulated) {
		s.sentinelRate = rate
	}
}

// WithSeed sets the seed of the random walk
func WithSeed(seed int64) func(*Simulated) {
	return func(s *Simulated) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// InjectFaults makes the next n measurements fail with a sensor fault
func (s *Simulated) InjectFaults(n int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pendingFaults += n
}

// InjectSentinels makes the next n measurements report the sentinel value
func (s *Simulated) InjectSentinels(n int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pendingSentinels += n
}

// Reinits returns how often the sensor was reinitialized
func (s *Simulated) Reinits() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.reinits
}

// Measure performs a simulated measurement
func (s *Simulated) Measure(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.initialized {
		return 0, 0, fmt.Errorf("%w: device not initialized", btsense.ErrSensorFault)
	}
	if s.pendingFaults > 0 || (s.faultRate > 0 && s.rng.Float64() < s.faultRate) {
		if s.pendingFaults > 0 {
			s.pendingFaults--
		}
		s.initialized = false
		return 0, 0, fmt.Errorf("%w: ETIMEDOUT", btsense.ErrSensorFault)
	}
	if s.pendingSentinels > 0 || (s.sentinelRate > 0 && s.rng.Float64() < s.sentinelRate) {
		if s.pendingSentinels > 0 {
			s.pendingSentinels--
		}
		return btsense.SentinelInvalid, btsense.SentinelInvalid, nil
	}

	s.temperature = clamp(s.temperature+s.rng.NormFloat64()*0.1, -40, 80)
	s.humidity = clamp(s.humidity+s.rng.NormFloat64()*0.3, 0, 100)

	// DHT22 resolution is 0.1
	return round1(s.temperature), round1(s.humidity), nil
}

// Reinitialize re-creates the simulated device handle
func (s *Simulated) Reinitialize() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.initialized = true
	s.reinits++
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
