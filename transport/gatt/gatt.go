// Package gatt implements a btsense transport acting as a BLE peripheral on
// top of the Linux HCI user channel
package gatt

import (
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/fako1024/btsense"
	"github.com/fako1024/gatt"
	"go.uber.org/multierr"
)

var defaultBTServerOptions = []gatt.Option{
	gatt.LnxMaxConnections(1),
	gatt.LnxDeviceID(-1, true),
}

// Transport denotes a GATT server exposing one notify characteristic per channel
type Transport struct {
	deviceName string

	btDevice  gatt.Device
	btService *gatt.Service

	notifiers *hashmap.Map[btsense.Channel, gatt.Notifier]
	values    *hashmap.Map[btsense.Channel, []byte]

	eventHandler       func(btsense.Event)
	poweredOn          bool
	advertiseRequested bool
	mutex              sync.Mutex

	logger btsense.Logger
}

// New instantiates a new GATT transport, executing functional options, if any
func New(options ...func(*Transport)) (*Transport, error) {

	// Initialize a new instance of a Transport
	t := &Transport{
		deviceName: btsense.DefaultDeviceName,
		notifiers:  hashmap.New[btsense.Channel, gatt.Notifier](),
		values:     hashmap.New[btsense.Channel, []byte](),
		logger:     &btsense.NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(t)
	}

	// Initialize a new GATT device (if not provided as option)
	if t.btDevice == nil {
		btDevice, err := gatt.NewDevice(defaultBTServerOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to open bluetooth device: %w", err)
		}
		t.btDevice = btDevice
	}
	t.btService = t.newService()

	// Register handlers
	t.btDevice.Handle(
		gatt.AddCentralConnected(t.onCentralConnected),
		gatt.AddCentralDisconnected(t.onCentralDisconnected),
	)

	// Initialize the device
	return t, t.btDevice.Init(t.onStateChanged)
}

// Advertise starts advertising the device name and sensing service. If the
// adapter is not powered on yet, advertising starts as soon as it is
func (t *Transport) Advertise() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.advertiseRequested = true
	if !t.poweredOn {
		t.logger.Debugf("adapter not powered on yet, deferring advertising")
		return nil
	}

	return t.advertise()
}

// Send updates the characteristic value of the channel and notifies the subscribed central
func (t *Transport) Send(ch btsense.Channel, data []byte) error {
	t.values.Set(ch, data)

	n, ok := t.notifiers.Get(ch)
	if !ok {
		return fmt.Errorf("%w on %s characteristic", btsense.ErrNoSubscriber, ch)
	}
	if n.Done() {
		t.notifiers.Del(ch)
		return fmt.Errorf("%w on %s characteristic (unsubscribed)", btsense.ErrNoSubscriber, ch)
	}
	if limit := n.Cap(); limit > 0 && len(data) > limit {
		return fmt.Errorf("payload of %d bytes exceeds notification capacity of %d bytes", len(data), limit)
	}

	if _, err := n.Write(data); err != nil {
		return fmt.Errorf("failed to notify %s characteristic: %w", ch, err)
	}

	return nil
}

// MaxPayload returns the smallest notification capacity among the current
// subscriptions, or zero while the capacity is unknown
func (t *Transport) MaxPayload() int {
	limit := 0
	t.notifiers.Range(func(_ btsense.Channel, n gatt.Notifier) bool {
		if c := n.Cap(); c > 0 && (limit == 0 || c < limit) {
			limit = c
		}
		return true
	})

	return limit
}

// SetEventHandler registers the handler for connection and write events
func (t *Transport) SetEventHandler(fn func(btsense.Event)) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.eventHandler = fn
}

// Close stops advertising and removes the service from the device
func (t *Transport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.advertiseRequested = false
	if !t.poweredOn {
		return nil
	}

	return multierr.Combine(
		t.btDevice.StopAdvertising(),
		t.btDevice.RemoveAllServices(),
	)
}

////////////////////////////////////////////////////////////////////////////////

func (t *Transport) newService() *gatt.Service {
	s := gatt.NewService(gatt.MustParseUUID(btsense.ServiceUUID))

	for _, ch := range btsense.Channels {
		ch := ch
		c := s.AddCharacteristic(gatt.MustParseUUID(btsense.CharacteristicUUID(ch)))

		c.HandleReadFunc(func(rsp gatt.ResponseWriter, req *gatt.ReadRequest) {
			t.serveRead(ch, rsp)
		})
		c.HandleWriteFunc(func(r gatt.Request, data []byte) (status byte) {
			t.serveWrite(ch, r.Central, data)
			return gatt.StatusSuccess
		})
		c.HandleNotifyFunc(func(r gatt.Request, n gatt.Notifier) {
			t.subscribe(ch, r.Central, n)
		})
	}

	return s
}

// serveRead responds with the last value sent on the channel
func (t *Transport) serveRead(ch btsense.Channel, rsp gatt.ResponseWriter) {
	value, _ := t.values.Get(ch)
	if _, err := rsp.Write(value); err != nil {
		t.logger.Warnf("failed to respond to read of %s characteristic: %s", ch, err)
	}
}

func (t *Transport) serveWrite(ch btsense.Channel, c gatt.Central, data []byte) {
	t.emit(btsense.Event{
		Type:    btsense.EventWrite,
		Peer:    c.ID(),
		Channel: ch,
		Data:    append([]byte(nil), data...),
	})
}

func (t *Transport) subscribe(ch btsense.Channel, c gatt.Central, n gatt.Notifier) {
	t.logger.Debugf("central `%s` subscribed to %s characteristic (capacity %d)", c.ID(), ch, n.Cap())
	t.notifiers.Set(ch, n)
}

func (t *Transport) advertise() error {
	if err := t.btDevice.AdvertiseNameAndServices(t.deviceName, []gatt.UUID{t.btService.UUID()}); err != nil {
		return fmt.Errorf("failed to advertise `%s`: %w", t.deviceName, err)
	}
	t.logger.Debugf("advertising `%s` with service %s", t.deviceName, t.btService.UUID())

	return nil
}

func (t *Transport) emit(ev btsense.Event) {
	t.mutex.Lock()
	fn := t.eventHandler
	t.mutex.Unlock()

	if fn != nil {
		fn(ev)
	}
}

func (t *Transport) onStateChanged(d gatt.Device, s gatt.State) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	switch s {
	case gatt.StatePoweredOn:
		if err := d.AddService(t.btService); err != nil {
			t.logger.Errorf("failed to add sensing service: %s", err)
			return
		}
		t.poweredOn = true
		if t.advertiseRequested {
			if err := t.advertise(); err != nil {
				t.logger.Errorf("%s", err)
			}
		}
	default:
		t.poweredOn = false
		t.logger.Warnf("bluetooth adapter changed to state %v", s)
	}
}

func (t *Transport) onCentralConnected(c gatt.Central) {
	t.emit(btsense.Event{
		Type: btsense.EventConnected,
		Peer: c.ID(),
	})
}

func (t *Transport) onCentralDisconnected(c gatt.Central) {

	// Subscriptions end with the connection
	for _, ch := range btsense.Channels {
		t.notifiers.Del(ch)
	}

	t.emit(btsense.Event{
		Type: btsense.EventDisconnected,
		Peer: c.ID(),
	})
}
