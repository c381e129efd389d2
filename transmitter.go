package btsense

import (
	"context"
	"errors"
	"time"
)

const (

	// DefaultChunkSize is the maximum number of readings sent per notification
	DefaultChunkSize = 10

	// DefaultCollectionInterval is the period between two transmission attempts
	DefaultCollectionInterval = 60 * time.Second

	// DefaultPacingDelay is the pause between two chunks of a single drain
	DefaultPacingDelay = 100 * time.Millisecond
)

// ErrNoSubscriber is returned by transports if no central is subscribed to a channel
var ErrNoSubscriber = errors.New("no subscriber")

// Sender denotes the notify primitive of a transport
type Sender interface {

	// Send pushes a payload to any central subscribed to the channel
	Send(ch Channel, data []byte) error

	// MaxPayload returns the largest payload Send accepts, or <= 0 if unlimited
	MaxPayload() int
}

// TransmitReport summarizes a single drain of the buffer
type TransmitReport struct {
	Chunks   int
	Sends    int
	Failures int
	Readings int
}

// Transmitter periodically drains a SampleBuffer in chunks and hands them to a Sender
type Transmitter struct {
	buffer *SampleBuffer
	sender Sender

	chunkSize          int
	collectionInterval time.Duration
	pacingDelay        time.Duration

	logger Logger
}

// NewTransmitter instantiates a new transmission loop, executing functional options, if any
func NewTransmitter(buffer *SampleBuffer, sender Sender, options ...func(*Transmitter)) *Transmitter {
	t := &Transmitter{
		buffer:             buffer,
		sender:             sender,
		chunkSize:          DefaultChunkSize,
		collectionInterval: DefaultCollectionInterval,
		pacingDelay:        DefaultPacingDelay,
		logger:             &NullLogger{},
	}

	for _, option := range options {
		option(t)
	}

	return t
}

// WithTransmitterChunkSize sets the maximum number of readings per chunk
func WithTransmitterChunkSize(n int) func(*Transmitter) {
	return func(t *Transmitter) {
		if n > 0 {
			t.chunkSize = n
		}
	}
}

// WithTransmitterInterval sets the collection interval
func WithTransmitterInterval(interval time.Duration) func(*Transmitter) {
	return func(t *Transmitter) {
		if interval > 0 {
			t.collectionInterval = interval
		}
	}
}

// WithTransmitterPacing sets the delay between two chunks (zero disables pacing)
func WithTransmitterPacing(delay time.Duration) func(*Transmitter) {
	return func(t *Transmitter) {
		if delay >= 0 {
			t.pacingDelay = delay
		}
	}
}

// WithTransmitterLogger sets a logger
func WithTransmitterLogger(logger Logger) func(*Transmitter) {
	return func(t *Transmitter) {
		t.logger = logger
	}
}

// Run drains the buffer once per collection interval until the context is cancelled
func (t *Transmitter) Run(ctx context.Context) {
	ticker := time.NewTicker(t.collectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Step(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Step drains the buffer completely in chunks of the configured size (the last
// one may be shorter). Every chunk is removed from the buffer after its send
// attempt, whether the attempt succeeded or not
func (t *Transmitter) Step(ctx context.Context) (report TransmitReport) {
	for !t.buffer.IsEmpty() {
		chunk := t.buffer.PeekChunk(t.chunkSize)

		tempData := EncodeValues(chunk.Temperatures())
		humData := EncodeValues(chunk.Humidities())

		report.Failures += t.send(ChannelTemperature, tempData)
		report.Failures += t.send(ChannelHumidity, humData)
		report.Sends += 2

		t.logger.Debugf("sent data chunk - temperature: %v, humidity: %v", chunk.Temperatures(), chunk.Humidities())
		t.logger.Debugf("temperature data bytes: %q, humidity data bytes: %q", tempData, humData)

		if err := t.buffer.RemovePrefix(len(chunk)); err != nil {
			panic(err)
		}
		report.Chunks++
		report.Readings += len(chunk)

		if t.buffer.IsEmpty() || t.pacingDelay == 0 {
			continue
		}

		select {
		case <-time.After(t.pacingDelay):
		case <-ctx.Done():
			t.logger.Infof("transmission interrupted, %d readings pending", t.buffer.Len())
			return
		}
	}

	if report.Chunks > 0 {
		t.logger.Infof("sent %d readings in %d chunks (%d failed sends), ready to collect new data", report.Readings, report.Chunks, report.Failures)
	}

	return
}

func (t *Transmitter) send(ch Channel, data []byte) int {
	if err := t.sender.Send(ch, data); err != nil {
		t.logger.Warnf("error updating %s characteristic: %s", ch, err)
		return 1
	}
	return 0
}
