//go:generate stringer -type=State -trimprefix=State
//go:generate stringer -type=EventType -trimprefix=Event
//go:generate stringer -type=Channel -trimprefix=Channel
package btsense

import (
	"fmt"
	"time"
)

const (

	// SentinelInvalid is reported by DHT style drivers instead of a reading when
	// a measurement failed without raising an error
	SentinelInvalid = -128.0

	minTemperature = -40.0
	maxTemperature = 80.0
	minHumidity    = 0.0
	maxHumidity    = 100.0
)

// State denotes a connection state
type State int

const (

	// StateAdvertising is active while broadcasting and waiting for a central
	StateAdvertising State = iota

	// StateConnected is active while a central is connected to the node
	StateConnected

	// StateDisconnected is active after the central went away, until advertising resumes
	StateDisconnected
)

// ConnectionStatus denotes the current status of the bluetooth link
type ConnectionStatus struct {
	Error error
	State
}

// EventType denotes the kind of an event raised by a transport
type EventType int

const (

	// EventConnected is raised when a central connects
	EventConnected EventType = iota

	// EventDisconnected is raised when a central disconnects
	EventDisconnected

	// EventWrite is raised when a central writes to a characteristic
	EventWrite
)

// Event denotes an asynchronous notification delivered by a transport
type Event struct {
	Type    EventType
	Peer    string
	Channel Channel
	Data    []byte
}

// Channel identifies one of the outbound notification characteristics
type Channel int

const (

	// ChannelTemperature carries the temperature sequence of a chunk
	ChannelTemperature Channel = iota

	// ChannelHumidity carries the humidity sequence of a chunk
	ChannelHumidity
)

// Channels lists all outbound channels in transmission order
var Channels = []Channel{ChannelTemperature, ChannelHumidity}

// Reading denotes a temperature / humidity measurement at a certain point in time
type Reading struct {
	TimeStamp   time.Time
	Temperature float64
	Humidity    float64
}

// IsValid checks that neither value carries the sentinel and both are within
// the physical range of the sensor
func (r Reading) IsValid() bool {
	if r.Temperature == SentinelInvalid || r.Humidity == SentinelInvalid {
		return false
	}
	if r.Temperature < minTemperature || r.Temperature > maxTemperature {
		return false
	}

	return r.Humidity >= minHumidity && r.Humidity <= maxHumidity
}

// String fulfils the Stringer interface
func (r Reading) String() string {
	return fmt.Sprintf("Temperature: %.1f°C, Humidity: %.1f%%", r.Temperature, r.Humidity)
}

// Readings denotes a set of readings (usually one chunk)
type Readings []Reading

// Temperatures returns the temperature values in order
func (r Readings) Temperatures() []float64 {
	res := make([]float64, len(r))
	for i := range r {
		res[i] = r[i].Temperature
	}
	return res
}

// Humidities returns the humidity values in order
func (r Readings) Humidities() []float64 {
	res := make([]float64, len(r))
	for i := range r {
		res[i] = r[i].Humidity
	}
	return res
}
