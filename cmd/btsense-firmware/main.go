//go:build tinygo

// Firmware for a DHT22 sensor node on a BLE capable microcontroller
package main

import (
	"context"
	"fmt"
	"machine"
	"time"

	"github.com/fako1024/btsense"
	"github.com/fako1024/btsense/sensor"
	"github.com/fako1024/btsense/transport/bluez"
)

// DHT22 data line
const sensorPin = machine.Pin(18)

type serialLogger struct{}

func (serialLogger) Debugf(format string, args ...interface{}) {}
func (serialLogger) Infof(format string, args ...interface{})  { printf("INFO  ", format, args...) }
func (serialLogger) Warnf(format string, args ...interface{})  { printf("WARN  ", format, args...) }
func (serialLogger) Errorf(format string, args ...interface{}) { printf("ERROR ", format, args...) }
func (serialLogger) Fatalf(format string, args ...interface{}) {
	printf("FATAL ", format, args...)
	halt()
}

func main() {

	// Give the host time to enumerate the USB serial device
	time.Sleep(1500 * time.Millisecond)

	logger := serialLogger{}

	transport, err := bluez.New(bluez.WithLogger(logger))
	if err != nil {
		logger.Fatalf("failed to initialize bluetooth: %s", err)
	}

	node, err := btsense.New(sensor.NewDHT22(sensorPin), transport, btsense.WithLogger(logger))
	if err != nil {
		logger.Fatalf("failed to initialize node: %s", err)
	}

	node.Run(context.Background())
}

func halt() {
	for {
		time.Sleep(time.Second)
	}
}

func printf(prefix, format string, args ...interface{}) {
	println(prefix + fmt.Sprintf(format, args...))
}
