//go:build tinygo

package sensor

import (
	"context"
	"fmt"
	"machine"

	"github.com/fako1024/btsense"
	"tinygo.org/x/drivers/dht"
)

// DHT22 denotes an AM2302 / DHT22 sensor attached to a single GPIO pin
type DHT22 struct {
	pin    machine.Pin
	device dht.Device
}

// NewDHT22 creates a new DHT22 sensor on the given pin
func NewDHT22(pin machine.Pin) *DHT22 {
	d := &DHT22{pin: pin}
	d.device = dht.New(pin, dht.DHT22)
	return d
}

// Measure reads temperature (°C) and relative humidity (%) from the sensor. Corrupt
// or incomplete transfers yield the sentinel value, a silent sensor is a fault
func (d *DHT22) Measure(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	temp, hum, err := d.device.Measurements()
	if err != nil {
		if code, ok := err.(dht.ErrorCode); ok {
			switch code {
			case dht.ChecksumError, dht.NoDataError, dht.UpdateError:
				return btsense.SentinelInvalid, btsense.SentinelInvalid, nil
			}
		}
		return 0, 0, fmt.Errorf("%w: %s", btsense.ErrSensorFault, err)
	}

	return float64(temp) / 10, float64(hum) / 10, nil
}

// Reinitialize re-creates the driver handle on the same pin
func (d *DHT22) Reinitialize() error {
	d.pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.device = dht.New(d.pin, dht.DHT22)
	return nil
}
