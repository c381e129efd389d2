package btsense

import (
	"errors"
	"sync"
)

// Advertiser denotes the advertising primitive of a transport
type Advertiser interface {

	// Advertise starts broadcasting the node's presence. Calling it while
	// already advertising re-issues the broadcast command
	Advertise() error
}

// ConnectionStateMachine tracks the link to a central from transport events
// and restarts advertising whenever the central goes away
type ConnectionStateMachine struct {
	connectionStatus ConnectionStatus
	peer             string

	advertiser Advertiser

	stateChangeHandler func(status ConnectionStatus)
	stateChangeChan    chan ConnectionStatus

	mutex  sync.Mutex
	logger Logger
}

// NewConnectionStateMachine creates a state machine in state StateAdvertising
func NewConnectionStateMachine(advertiser Advertiser, logger Logger) *ConnectionStateMachine {
	if logger == nil {
		logger = &NullLogger{}
	}
	return &ConnectionStateMachine{
		connectionStatus: ConnectionStatus{State: StateAdvertising},
		advertiser:       advertiser,
		logger:           logger,
	}
}

// ConnectionStatus returns the current status of the link
func (c *ConnectionStateMachine) ConnectionStatus() ConnectionStatus {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.connectionStatus
}

// Peer returns the ID of the connected central, if any
func (c *ConnectionStateMachine) Peer() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.peer
}

// SetStateChangeHandler defines a handler function that is called upon state change.
// The handler runs inside OnEvent and must not call back into the state machine
func (c *ConnectionStateMachine) SetStateChangeHandler(fn func(status ConnectionStatus)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stateChangeHandler = fn
}

// SetStateChangeChannel defines a channel that receives state changes (non-blocking)
func (c *ConnectionStateMachine) SetStateChangeChannel(ch chan ConnectionStatus) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stateChangeChan = ch
}

// OnEvent is the sole mutator of the state machine. It is called from the
// transport's event delivery context and does not block
func (c *ConnectionStateMachine) OnEvent(ev Event) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch ev.Type {
	case EventConnected:
		if c.connectionStatus.State == StateConnected {
			c.logger.Warnf("central `%s` connected while already connected to `%s`", ev.Peer, c.peer)
			return
		}
		c.logger.Infof("central `%s` connected", ev.Peer)
		c.peer = ev.Peer
		c.setStatus(StateConnected, nil)

	case EventDisconnected:
		c.logger.Infof("central `%s` disconnected", ev.Peer)
		c.peer = ""
		c.setStatus(StateDisconnected, nil)
		c.advertise()

	case EventWrite:
		c.logger.Infof("central `%s` wrote %d bytes to %s characteristic", ev.Peer, len(ev.Data), ev.Channel)

	default:
		c.logger.Warnf("ignoring unknown event type %s", ev.Type)
	}
}

// Advertise (re-)issues the advertise command. It is always safe to call
func (c *ConnectionStateMachine) Advertise() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.advertise()
}

////////////////////////////////////////////////////////////////////////////////

func (c *ConnectionStateMachine) advertise() {
	err := c.advertiser.Advertise()
	if err != nil {
		c.logger.Errorf("failed to start advertising: %s", err)
	}

	// Advertising alongside an established connection does not change the state
	switch c.connectionStatus.State {
	case StateConnected:
		return
	case StateAdvertising:
		if sameError(c.connectionStatus.Error, err) {
			return
		}
	}
	c.setStatus(StateAdvertising, err)
}

func (c *ConnectionStateMachine) setStatus(state State, err error) {
	c.connectionStatus = ConnectionStatus{
		State: state,
		Error: err,
	}

	// Call handler function, if any
	if c.stateChangeHandler != nil {
		c.stateChangeHandler(c.connectionStatus)
	}

	// Put state change on channel, if any
	if c.stateChangeChan != nil {
		select {
		case c.stateChangeChan <- c.connectionStatus:
		default:
		}
	}
}

// sameError reports whether two advertise results describe the same outcome.
// Wrapped errors are fresh values on every call, so their messages are compared
func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	return errors.Is(a, b) || errors.Is(b, a) || a.Error() == b.Error()
}
