package btsense

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultBufferCapacity holds one hour of readings at the default sample interval
const DefaultBufferCapacity = 3600

// ErrRange is returned when more elements are removed than the buffer holds
var ErrRange = errors.New("range error")

// SampleBuffer is a bounded FIFO of pending readings. There is exactly one
// appending producer and one consumer removing head prefixes it has peeked.
// When full, Append drops the oldest reading.
type SampleBuffer struct {
	data     []Reading
	head     int
	capacity int
	dropped  uint64

	mutex sync.Mutex
}

// NewSampleBuffer creates a new buffer holding at most capacity readings
func NewSampleBuffer(capacity int) *SampleBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &SampleBuffer{
		data:     make([]Reading, 0, min(capacity, 64)),
		capacity: capacity,
	}
}

// Append adds a reading to the tail. It never fails, returning true if the
// oldest reading had to be dropped to make room
func (b *SampleBuffer) Append(r Reading) (droppedOldest bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if len(b.data)-b.head >= b.capacity {
		b.head++
		b.dropped++
		droppedOldest = true
	}

	// Compact once the dead head prefix dominates the backing array
	if b.head > 0 && b.head >= len(b.data)/2 {
		n := copy(b.data, b.data[b.head:])
		clear(b.data[n:])
		b.data = b.data[:n]
		b.head = 0
	}

	b.data = append(b.data, r)
	return
}

// PeekChunk returns a copy of up to maxSize readings from the head without consuming them
func (b *SampleBuffer) PeekChunk(maxSize int) Readings {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	n := min(maxSize, len(b.data)-b.head)
	if n <= 0 {
		return Readings{}
	}

	res := make(Readings, n)
	copy(res, b.data[b.head:b.head+n])

	return res
}

// RemovePrefix discards the first n readings
func (b *SampleBuffer) RemovePrefix(n int) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if n < 0 || n > len(b.data)-b.head {
		return fmt.Errorf("%w: cannot remove %d readings from buffer of length %d", ErrRange, n, len(b.data)-b.head)
	}

	b.head += n
	if b.head == len(b.data) {
		clear(b.data)
		b.data = b.data[:0]
		b.head = 0
	}

	return nil
}

// IsEmpty returns true if no reading is pending
func (b *SampleBuffer) IsEmpty() bool {
	return b.Len() == 0
}

// Len returns the number of pending readings
func (b *SampleBuffer) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.data) - b.head
}

// Cap returns the maximum number of pending readings
func (b *SampleBuffer) Cap() int {
	return b.capacity
}

// Dropped returns the number of readings discarded due to overflow
func (b *SampleBuffer) Dropped() uint64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.dropped
}
