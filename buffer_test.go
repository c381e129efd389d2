package btsense_test

import (
	"math/rand"
	"testing"

	"github.com/fako1024/btsense"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(i int) btsense.Reading {
	return btsense.Reading{Temperature: float64(i), Humidity: float64(i) / 2}
}

func TestSampleBufferPeekDoesNotConsume(t *testing.T) {
	buf := btsense.NewSampleBuffer(100)
	require.True(t, buf.IsEmpty())
	require.Empty(t, buf.PeekChunk(10))

	for i := 0; i < 5; i++ {
		buf.Append(reading(i))
	}

	first := buf.PeekChunk(3)
	second := buf.PeekChunk(3)
	assert.Equal(t, first, second, "peeking twice MUST return the same prefix")
	assert.Len(t, first, 3)
	assert.Equal(t, 5, buf.Len())

	assert.Len(t, buf.PeekChunk(10), 5, "peek MUST be bounded by the buffer length")

	// Mutating a peeked chunk must not touch the buffer
	first[0].Temperature = 99
	assert.Equal(t, 0.0, buf.PeekChunk(1)[0].Temperature)
}

func TestSampleBufferRemovePrefix(t *testing.T) {
	buf := btsense.NewSampleBuffer(100)
	for i := 0; i < 5; i++ {
		buf.Append(reading(i))
	}

	require.NoError(t, buf.RemovePrefix(2))
	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, 2.0, buf.PeekChunk(1)[0].Temperature)

	err := buf.RemovePrefix(4)
	require.ErrorIs(t, err, btsense.ErrRange)
	assert.Equal(t, 3, buf.Len(), "failed removal MUST not change the buffer")

	require.ErrorIs(t, buf.RemovePrefix(-1), btsense.ErrRange)
	require.NoError(t, buf.RemovePrefix(0))

	require.NoError(t, buf.RemovePrefix(3))
	assert.True(t, buf.IsEmpty())
}

func TestSampleBufferDropsOldestWhenFull(t *testing.T) {
	buf := btsense.NewSampleBuffer(4)

	for i := 0; i < 4; i++ {
		assert.False(t, buf.Append(reading(i)))
	}
	assert.True(t, buf.Append(reading(4)), "append to a full buffer MUST report a drop")
	assert.True(t, buf.Append(reading(5)))

	assert.Equal(t, 4, buf.Len())
	assert.Equal(t, uint64(2), buf.Dropped())
	assert.Equal(t, []float64{2, 3, 4, 5}, buf.PeekChunk(10).Temperatures(), "oldest readings MUST be dropped first")
}

func TestSampleBufferNonPositiveCapacity(t *testing.T) {
	buf := btsense.NewSampleBuffer(0)
	assert.Equal(t, btsense.DefaultBufferCapacity, buf.Cap())
}

func TestSampleBufferFIFO(t *testing.T) {
	// Random interleaving of appends and chunked peek / remove pairs: the
	// concatenated chunks MUST equal the appended sequence
	rng := rand.New(rand.NewSource(42))
	buf := btsense.NewSampleBuffer(1 << 16)

	var (
		produced int
		consumed []float64
	)
	for round := 0; round < 2000; round++ {
		for n := rng.Intn(7); n > 0; n-- {
			buf.Append(reading(produced))
			produced++
		}

		chunk := buf.PeekChunk(1 + rng.Intn(10))
		// Appends between peek and remove do not affect the head
		if rng.Intn(2) == 0 {
			buf.Append(reading(produced))
			produced++
		}
		require.NoError(t, buf.RemovePrefix(len(chunk)))
		consumed = append(consumed, chunk.Temperatures()...)
	}
	for !buf.IsEmpty() {
		chunk := buf.PeekChunk(10)
		require.NoError(t, buf.RemovePrefix(len(chunk)))
		consumed = append(consumed, chunk.Temperatures()...)
	}

	require.Len(t, consumed, produced)
	for i, v := range consumed {
		require.Equal(t, float64(i), v, "reading %d out of order", i)
	}
}

func TestSampleBufferConcurrentProducerConsumer(t *testing.T) {
	const total = 5000
	buf := btsense.NewSampleBuffer(total)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			buf.Append(reading(i))
		}
	}()

	consumed := make([]float64, 0, total)
	for len(consumed) < total {
		chunk := buf.PeekChunk(10)
		if len(chunk) == 0 {
			continue
		}
		require.NoError(t, buf.RemovePrefix(len(chunk)))
		consumed = append(consumed, chunk.Temperatures()...)
	}
	<-done

	for i, v := range consumed {
		require.Equal(t, float64(i), v)
	}
	assert.Zero(t, buf.Dropped())
}
