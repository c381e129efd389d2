package collector

import (
	"github.com/fako1024/btsense"
	"github.com/fako1024/gatt"
)

// WithDeviceID sets the Bluetooth device ID of the node
func WithDeviceID(deviceID string) func(*Collector) {
	return func(f *Collector) {
		f.deviceID = deviceID
	}
}

// WithDeviceName sets the Bluetooth device name of the node
func WithDeviceName(deviceName string) func(*Collector) {
	return func(f *Collector) {
		f.deviceName = deviceName
	}
}

// WithDevice sets the Bluetooth device
func WithDevice(btDevice gatt.Device) func(*Collector) {
	return func(f *Collector) {
		f.btDevice = btDevice
	}
}

// WithLogger sets a logger
func WithLogger(logger btsense.Logger) func(*Collector) {
	return func(f *Collector) {
		f.logger = logger
	}
}
