// Package bluez implements a btsense transport on top of tinygo.org/x/bluetooth,
// using BlueZ over D-Bus on Linux hosts and the native stack on microcontrollers
package bluez

import (
	"fmt"
	"sync"

	"github.com/fako1024/btsense"
	"go.uber.org/atomic"
	"tinygo.org/x/bluetooth"
)

// Transport denotes a GATT server exposing one notify characteristic per channel
type Transport struct {
	deviceName string
	maxPayload int

	adapter       *bluetooth.Adapter
	advertisement *bluetooth.Advertisement
	chars         [2]bluetooth.Characteristic

	advertising  bool
	connected    atomic.Bool
	eventHandler func(btsense.Event)
	mutex        sync.Mutex

	logger btsense.Logger
}

// New enables the adapter, registers the sensing service and configures the advertisement
func New(options ...func(*Transport)) (*Transport, error) {
	t := &Transport{
		deviceName: btsense.DefaultDeviceName,
		adapter:    bluetooth.DefaultAdapter,
		logger:     &btsense.NullLogger{},
	}

	for _, option := range options {
		option(t)
	}

	if err := t.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}
	t.adapter.SetConnectHandler(t.onConnect)

	serviceUUID, err := bluetooth.ParseUUID(btsense.ServiceUUID)
	if err != nil {
		return nil, err
	}

	service := &bluetooth.Service{UUID: serviceUUID}
	for _, ch := range btsense.Channels {
		ch := ch
		charUUID, err := bluetooth.ParseUUID(btsense.CharacteristicUUID(ch))
		if err != nil {
			return nil, err
		}
		service.Characteristics = append(service.Characteristics, bluetooth.CharacteristicConfig{
			Handle: &t.chars[ch],
			UUID:   charUUID,
			Value:  []byte{},
			Flags: bluetooth.CharacteristicReadPermission |
				bluetooth.CharacteristicNotifyPermission |
				bluetooth.CharacteristicWritePermission,
			WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
				t.emit(btsense.Event{
					Type:    btsense.EventWrite,
					Channel: ch,
					Data:    append([]byte(nil), value...),
				})
			},
		})
	}
	if err := t.adapter.AddService(service); err != nil {
		return nil, fmt.Errorf("failed to add sensing service: %w", err)
	}

	t.advertisement = t.adapter.DefaultAdvertisement()
	if err := t.advertisement.Configure(bluetooth.AdvertisementOptions{
		LocalName:    t.deviceName,
		ServiceUUIDs: []bluetooth.UUID{serviceUUID},
	}); err != nil {
		return nil, fmt.Errorf("failed to configure advertisement: %w", err)
	}

	return t, nil
}

// Advertise (re-)starts advertising
func (t *Transport) Advertise() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	// The stack may have stopped advertising on its own when a central connected
	if t.advertising {
		if err := t.advertisement.Stop(); err != nil {
			t.logger.Debugf("failed to stop advertising before restart: %s", err)
		}
		t.advertising = false
	}

	if err := t.advertisement.Start(); err != nil {
		return fmt.Errorf("failed to advertise `%s`: %w", t.deviceName, err)
	}
	t.advertising = true
	t.logger.Debugf("advertising `%s`", t.deviceName)

	return nil
}

// Send updates the characteristic value of the channel and notifies subscribed centrals
func (t *Transport) Send(ch btsense.Channel, data []byte) error {
	if int(ch) < 0 || int(ch) >= len(t.chars) {
		return fmt.Errorf("unknown channel %s", ch)
	}
	if t.maxPayload > 0 && len(data) > t.maxPayload {
		return fmt.Errorf("payload of %d bytes exceeds notification capacity of %d bytes", len(data), t.maxPayload)
	}

	if _, err := t.chars[ch].Write(data); err != nil {
		return fmt.Errorf("failed to notify %s characteristic: %w", ch, err)
	}
	if !t.connected.Load() {
		return fmt.Errorf("%w on %s characteristic", btsense.ErrNoSubscriber, ch)
	}

	return nil
}

// MaxPayload returns the configured notification capacity, or zero if it is unknown
func (t *Transport) MaxPayload() int {
	return t.maxPayload
}

// SetEventHandler registers the handler for connection and write events
func (t *Transport) SetEventHandler(fn func(btsense.Event)) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.eventHandler = fn
}

// Close stops advertising
func (t *Transport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.advertising {
		return nil
	}
	t.advertising = false

	return t.advertisement.Stop()
}

////////////////////////////////////////////////////////////////////////////////

func (t *Transport) emit(ev btsense.Event) {
	t.mutex.Lock()
	fn := t.eventHandler
	t.mutex.Unlock()

	if fn != nil {
		fn(ev)
	}
}

func (t *Transport) onConnect(device bluetooth.Device, connected bool) {
	t.connected.Store(connected)

	ev := btsense.Event{
		Type: btsense.EventDisconnected,
		Peer: device.Address.String(),
	}
	if connected {
		ev.Type = btsense.EventConnected
	}
	t.emit(ev)
}
