package gatt

import (
	"github.com/fako1024/btsense"
	"github.com/fako1024/gatt"
)

// WithDeviceName sets the local name to advertise
func WithDeviceName(deviceName string) func(*Transport) {
	return func(t *Transport) {
		t.deviceName = deviceName
	}
}

// WithDevice sets the Bluetooth device
func WithDevice(btDevice gatt.Device) func(*Transport) {
	return func(t *Transport) {
		t.btDevice = btDevice
	}
}

// WithLogger sets a logger
func WithLogger(logger btsense.Logger) func(*Transport) {
	return func(t *Transport) {
		t.logger = logger
	}
}
