package btsense

import "time"

// WithBufferCapacity sets the maximum number of pending readings
func WithBufferCapacity(capacity int) func(*Node) {
	return func(n *Node) {
		n.bufferCapacity = capacity
	}
}

// WithChunkSize sets the maximum number of readings per notification
func WithChunkSize(chunkSize int) func(*Node) {
	return func(n *Node) {
		n.chunkSize = chunkSize
	}
}

// WithSampleInterval sets the period between two sensor measurements
func WithSampleInterval(interval time.Duration) func(*Node) {
	return func(n *Node) {
		n.sampleInterval = interval
	}
}

// WithCollectionInterval sets the period between two transmission attempts
func WithCollectionInterval(interval time.Duration) func(*Node) {
	return func(n *Node) {
		n.collectionInterval = interval
	}
}

// WithPacingDelay sets the pause between two chunks
func WithPacingDelay(delay time.Duration) func(*Node) {
	return func(n *Node) {
		n.pacingDelay = delay
	}
}

// WithFaultThreshold sets the number of consecutive sensor faults that raise the fault flag
func WithFaultThreshold(n int) func(*Node) {
	return func(node *Node) {
		node.faultThreshold = n
	}
}

// WithFaultHandler defines a handler function that is called when the sensor fault flag changes
func WithFaultHandler(fn func(faulted bool, consecutive int)) func(*Node) {
	return func(n *Node) {
		n.faultHandler = fn
	}
}

// WithStateChangeHandler defines a handler function that is called upon state change
func WithStateChangeHandler(fn func(status ConnectionStatus)) func(*Node) {
	return func(n *Node) {
		n.stateChangeHandler = fn
	}
}

// WithStateChangeChannel defines a channel that receives state changes
func WithStateChangeChannel(ch chan ConnectionStatus) func(*Node) {
	return func(n *Node) {
		n.stateChangeChan = ch
	}
}

// WithLogger sets a logger
func WithLogger(logger Logger) func(*Node) {
	return func(n *Node) {
		n.logger = logger
	}
}
