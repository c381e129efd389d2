package btsense

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
)

const (

	// DefaultDeviceName is the local name broadcast while advertising
	DefaultDeviceName = "ESP32 Sensor"

	// ServiceUUID identifies the environmental sensing service
	ServiceUUID = "12345678-1234-5678-1234-56789abcdef0"

	// TemperatureCharacteristicUUID identifies the temperature notification characteristic
	TemperatureCharacteristicUUID = "12345678-1234-5678-1234-56789abcdef1"

	// HumidityCharacteristicUUID identifies the humidity notification characteristic
	HumidityCharacteristicUUID = "12345678-1234-5678-1234-56789abcdef2"
)

// CharacteristicUUID returns the UUID of the characteristic backing a channel
func CharacteristicUUID(ch Channel) string {
	if ch == ChannelHumidity {
		return HumidityCharacteristicUUID
	}
	return TemperatureCharacteristicUUID
}

// Transport denotes the wireless radio of the node
type Transport interface {
	Advertiser
	Sender

	// SetEventHandler registers the handler for connection and write events.
	// The handler must not block
	SetEventHandler(fn func(Event))

	// Close stops advertising and releases the radio
	Close() error
}

// Node denotes a sensor node sampling a sensor and notifying readings to a central
type Node struct {
	source    SensorSource
	transport Transport

	bufferCapacity     int
	chunkSize          int
	sampleInterval     time.Duration
	collectionInterval time.Duration
	pacingDelay        time.Duration
	faultThreshold     int

	stateChangeHandler func(status ConnectionStatus)
	stateChangeChan    chan ConnectionStatus
	faultHandler       func(faulted bool, consecutive int)

	buffer      *SampleBuffer
	sampler     *Sampler
	transmitter *Transmitter
	connection  *ConnectionStateMachine

	closeOnce sync.Once

	logger Logger
}

// New instantiates a new Node, executing functional options, if any. The
// transport's events are routed to the connection state machine and the
// initial advertise command is issued
func New(source SensorSource, transport Transport, options ...func(*Node)) (*Node, error) {
	if source == nil {
		return nil, errors.New("no sensor source provided")
	}
	if transport == nil {
		return nil, errors.New("no transport provided")
	}

	// Initialize a new instance of a Node
	n := &Node{
		source:             source,
		transport:          transport,
		bufferCapacity:     DefaultBufferCapacity,
		chunkSize:          DefaultChunkSize,
		sampleInterval:     DefaultSampleInterval,
		collectionInterval: DefaultCollectionInterval,
		pacingDelay:        DefaultPacingDelay,
		faultThreshold:     DefaultFaultThreshold,
		logger:             &NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(n)
	}

	if n.collectionInterval < n.sampleInterval {
		n.logger.Warnf("collection interval (%v) is shorter than sample interval (%v)", n.collectionInterval, n.sampleInterval)
	}
	if limit := transport.MaxPayload(); limit > 0 && MaxEncodedSize(n.chunkSize) > limit {
		n.logger.Warnf("chunks of %d readings may exceed the transport payload limit of %d bytes and fail to send", n.chunkSize, limit)
	}

	n.buffer = NewSampleBuffer(n.bufferCapacity)
	n.sampler = NewSampler(source, n.buffer,
		WithSamplerInterval(n.sampleInterval),
		WithSamplerFaultThreshold(n.faultThreshold),
		WithSamplerFaultHandler(n.faultHandler),
		WithSamplerLogger(n.logger),
	)
	n.transmitter = NewTransmitter(n.buffer, transport,
		WithTransmitterChunkSize(n.chunkSize),
		WithTransmitterInterval(n.collectionInterval),
		WithTransmitterPacing(n.pacingDelay),
		WithTransmitterLogger(n.logger),
	)

	n.connection = NewConnectionStateMachine(transport, n.logger)
	n.connection.SetStateChangeHandler(n.stateChangeHandler)
	n.connection.SetStateChangeChannel(n.stateChangeChan)

	transport.SetEventHandler(n.connection.OnEvent)
	n.connection.Advertise()

	return n, nil
}

// ConnectionStatus returns the current status of the bluetooth link
func (n *Node) ConnectionStatus() ConnectionStatus {
	return n.connection.ConnectionStatus()
}

// Buffer returns the buffer of pending readings
func (n *Node) Buffer() *SampleBuffer {
	return n.buffer
}

// Sampler returns the sampling loop
func (n *Node) Sampler() *Sampler {
	return n.sampler
}

// Transmitter returns the transmission loop
func (n *Node) Transmitter() *Transmitter {
	return n.transmitter
}

// Run executes the sampling and transmission loops concurrently until the
// context is cancelled
func (n *Node) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		n.sampler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		n.transmitter.Run(ctx)
	}()

	n.logger.Infof("node running (sample interval %v, collection interval %v, chunk size %d)", n.sampleInterval, n.collectionInterval, n.chunkSize)
	wg.Wait()

	if pending := n.buffer.Len(); pending > 0 {
		n.logger.Warnf("stopping with %d unsent readings", pending)
	}
}

// Close terminates the node, releasing the transport and the sensor (if it can be closed)
func (n *Node) Close() (err error) {
	n.closeOnce.Do(func() {
		n.transport.SetEventHandler(nil)
		err = multierr.Append(err, n.transport.Close())
		if closer, ok := n.source.(interface{ Close() error }); ok {
			err = multierr.Append(err, closer.Close())
		}
	})
	return
}
