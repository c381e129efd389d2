package bluez

import (
	"github.com/fako1024/btsense"
	"tinygo.org/x/bluetooth"
)

// WithDeviceName sets the local name to advertise
func WithDeviceName(deviceName string) func(*Transport) {
	return func(t *Transport) {
		t.deviceName = deviceName
	}
}

// WithAdapter sets the bluetooth adapter (defaults to bluetooth.DefaultAdapter)
func WithAdapter(adapter *bluetooth.Adapter) func(*Transport) {
	return func(t *Transport) {
		t.adapter = adapter
	}
}

// WithMaxPayload sets a known notification capacity (e.g. after raising the MTU).
// Payloads exceeding it fail to send
func WithMaxPayload(n int) func(*Transport) {
	return func(t *Transport) {
		t.maxPayload = n
	}
}

// WithLogger sets a logger
func WithLogger(logger btsense.Logger) func(*Transport) {
	return func(t *Transport) {
		t.logger = logger
	}
}
