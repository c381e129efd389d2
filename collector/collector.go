// Package collector implements the central side of a btsense link: it scans
// for a sensor node, subscribes to its notification characteristics and
// reassembles the readings of each chunk
package collector

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fako1024/btsense"
	"github.com/fako1024/gatt"
)

var defaultBTClientOptions = []gatt.Option{
	gatt.LnxMaxConnections(1),
	gatt.LnxDeviceID(-1, true),
}

// Collector denotes a central receiving readings from a btsense node
type Collector struct {
	connectionStatus btsense.ConnectionStatus

	deviceID   string
	deviceName string

	stateChangeHandler func(status btsense.ConnectionStatus)
	stateChangeChan    chan btsense.ConnectionStatus

	readingsChan    chan btsense.Readings
	pendingTemps    []float64
	pendingReceived time.Time

	doneChan chan struct{}
	closed   bool

	btDevice             gatt.Device
	btPeripheral         gatt.Peripheral
	btTempCharacteristic *gatt.Characteristic
	btHumCharacteristic  *gatt.Characteristic

	mutex  sync.Mutex
	logger btsense.Logger
}

// New instantiates a new Collector, executing functional options, if any
func New(options ...func(*Collector)) (*Collector, error) {

	// Initialize a new instance of a Collector
	f := &Collector{
		connectionStatus: btsense.ConnectionStatus{State: btsense.StateAdvertising},
		deviceName:       btsense.DefaultDeviceName,
		readingsChan:     make(chan btsense.Readings, 64),
		doneChan:         make(chan struct{}),
		logger:           &btsense.NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(f)
	}

	// Initialize a new GATT device (if not provided as option)
	if f.btDevice == nil {
		btDevice, err := gatt.NewDevice(defaultBTClientOptions...)
		if err != nil {
			return nil, err
		}
		f.btDevice = btDevice
	}

	return f, f.subscribe()
}

// ConnectionStatus returns the current status of the link to the node
func (f *Collector) ConnectionStatus() btsense.ConnectionStatus {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.connectionStatus
}

// SetStateChangeHandler defines a handler function that is called upon state change
func (f *Collector) SetStateChangeHandler(fn func(status btsense.ConnectionStatus)) {
	f.stateChangeHandler = fn
}

// SetStateChangeChannel defines a channel that receives state changes (non-blocking)
func (f *Collector) SetStateChangeChannel(ch chan btsense.ConnectionStatus) {
	f.stateChangeChan = ch
}

// Readings returns the channel receiving one batch of readings per chunk sent by the node
func (f *Collector) Readings() <-chan btsense.Readings {
	return f.readingsChan
}

// ReadLatest reads the most recent chunk directly from the node's characteristics
func (f *Collector) ReadLatest() (btsense.Readings, error) {

	if status := f.ConnectionStatus(); status.State != btsense.StateConnected {
		return nil, fmt.Errorf("cannot read data unless device is connected (current status: %#v)", status)
	}

	rawTemps, err := f.btPeripheral.ReadCharacteristic(f.btTempCharacteristic)
	if err != nil {
		return nil, err
	}
	rawHums, err := f.btPeripheral.ReadCharacteristic(f.btHumCharacteristic)
	if err != nil {
		return nil, err
	}

	return parseChunk(rawTemps, rawHums, time.Now())
}

// Close terminates the connection to the device. Subsequent calls are no-ops
func (f *Collector) Close() error {
	if !f.release() {
		return nil
	}

	f.btDevice.StopScanning()
	return f.btDevice.RemoveAllServices()
}

////////////////////////////////////////////////////////////////////////////////

func (f *Collector) subscribe() error {

	// Register handlers
	f.btDevice.Handle(
		gatt.AddPeripheralDiscovered(f.genOnPeriphDiscovered()),
		gatt.AddPeripheralConnected(f.onPeriphConnected),
		gatt.AddPeripheralDisconnected(f.onPeriphDisconnected),
	)

	// Initialize the device
	return f.btDevice.Init(f.onStateChanged)
}

func (f *Collector) setStatus(state btsense.State, err error) {
	f.mutex.Lock()
	f.connectionStatus = btsense.ConnectionStatus{
		State: state,
		Error: err,
	}
	status := f.connectionStatus
	f.mutex.Unlock()

	// Call handler function, if any
	if f.stateChangeHandler != nil {
		f.stateChangeHandler(status)
	}

	// Put state change on channel, if any
	if f.stateChangeChan != nil {
		select {
		case f.stateChangeChan <- status:
		default:
		}
	}
}

////////////////////////////////////////////////////////////////////////////////

func (f *Collector) onStateChanged(d gatt.Device, s gatt.State) {
	switch s {
	case gatt.StatePoweredOn:
		if err := d.Scan([]gatt.UUID{}, false); err != nil {
			f.logger.Warnf("failed to enable initial scanning: %s", err)
		}
		return
	case gatt.StatePoweredOff:
		f.setStatus(btsense.StateDisconnected, nil)
		return
	default:
		if err := d.StopScanning(); err != nil {
			f.logger.Warnf("failed to stop initial scanning: %s", err)
		}
	}
}

func (f *Collector) genOnPeriphDiscovered() func(p gatt.Peripheral, arg2 *gatt.Advertisement, arg3 int) {
	return func(p gatt.Peripheral, arg2 *gatt.Advertisement, arg3 int) {

		f.logger.Debugf("discovered device `%s/%s`", p.Name(), p.ID())

		// Check if name and / or device ID have been overridden
		if !f.thisDevice(p) {
			return
		}

		f.logger.Debugf("connecting device `%s/%s`", p.Name(), p.ID())

		// Stop scanning once we've got the node we're looking for
		if err := p.Device().StopScanning(); err != nil {
			f.logger.Warnf("failed to stop initial scanning: %s", err)
		}
		if err := p.Device().Connect(p); err != nil {
			f.logger.Errorf("Failed to connect device `%s/%s`: %s", p.Name(), p.ID(), err)
		}
	}
}

func (f *Collector) onPeriphConnected(p gatt.Peripheral, connErr error) {

	if !f.thisDevice(p) {
		return
	}

	f.logger.Debugf("connected peripheral `%s/%s`", p.Name(), p.ID())

	f.setStatus(btsense.StateConnected, nil)
	defer func() {
		p.Device().CancelConnection(p)
		f.setStatus(btsense.StateDisconnected, connErr)
	}()

	// Discover services
	ss, err := p.DiscoverServices([]gatt.UUID{
		gatt.MustParseUUID(btsense.ServiceUUID),
	})
	if err != nil {
		connErr = fmt.Errorf("failed to discover services: %w", err)
		return
	}

	for _, s := range ss {
		if !uuidEqual(s.UUID(), btsense.ServiceUUID) {
			continue
		}
		f.btPeripheral = p

		// Discover characteristics
		cs, err := p.DiscoverCharacteristics([]gatt.UUID{
			gatt.MustParseUUID(btsense.TemperatureCharacteristicUUID),
			gatt.MustParseUUID(btsense.HumidityCharacteristicUUID),
		}, s)
		if err != nil {
			connErr = fmt.Errorf("failed to discover sensing characteristics: %w", err)
			return
		}

		for _, c := range cs {
			var handler func(c *gatt.Characteristic, req []byte, err error)
			switch {
			case uuidEqual(c.UUID(), btsense.TemperatureCharacteristicUUID):
				f.btTempCharacteristic = c
				handler = f.receiveTemperatureData
			case uuidEqual(c.UUID(), btsense.HumidityCharacteristicUUID):
				f.btHumCharacteristic = c
				handler = f.receiveHumidityData
			default:
				continue
			}

			// Discover descriptors (required to locate the CCCD)
			if _, err := p.DiscoverDescriptors(nil, c); err != nil {
				connErr = fmt.Errorf("failed to discover descriptors of characteristic %s: %w", c.UUID(), err)
				return
			}
			if err := p.SetNotifyValue(c, handler); err != nil {
				connErr = fmt.Errorf("failed to subscribe to characteristic %s: %w", c.UUID(), err)
				return
			}
		}
	}

	if f.btTempCharacteristic == nil || f.btHumCharacteristic == nil {
		connErr = fmt.Errorf("device `%s/%s` does not expose the sensing characteristics", p.Name(), p.ID())
		return
	}

	f.logger.Debugf("waiting to release peripheral `%s/%s`", p.Name(), p.ID())
	<-f.doneChan
	f.logger.Debugf("released peripheral `%s/%s`", p.Name(), p.ID())
}

func (f *Collector) onPeriphDisconnected(p gatt.Peripheral, err error) {

	if !f.thisDevice(p) {
		return
	}

	if !f.disconnect() {
		f.logger.Debugf("disconnected peripheral `%s/%s` after close", p.Name(), p.ID())
		return
	}
	f.logger.Debugf("disconnected peripheral `%s/%s`", p.Name(), p.ID())

	time.Sleep(100 * time.Millisecond)
	f.setStatus(btsense.StateAdvertising, nil)
	if err := f.btDevice.Scan([]gatt.UUID{gatt.MustParseUUID(btsense.ServiceUUID)}, false); err != nil {
		f.logger.Warnf("failed to re-enable scanning after disconnect: %s", err)
	}
}

func (f *Collector) thisDevice(p gatt.Peripheral) bool {

	// Check if name and / or device ID have been overridden
	if f.deviceID != "" && strings.EqualFold(p.ID(), f.deviceID) {
		return true
	}

	return strings.EqualFold(p.Name(), f.deviceName)
}

// disconnect releases a pending connection handler, returning false once the
// collector has been closed
func (f *Collector) disconnect() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.closed {
		return false
	}
	select {
	case f.doneChan <- struct{}{}:
	default:
	}
	return true
}

// release unblocks all connection handlers for good, returning false if the
// collector was already closed
func (f *Collector) release() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.closed {
		return false
	}
	f.closed = true
	close(f.doneChan)
	return true
}

// Temperature and humidity notifications of a chunk always arrive in this order
func (f *Collector) receiveTemperatureData(c *gatt.Characteristic, req []byte, err error) {
	if err != nil {
		f.logger.Warnf("failed to receive temperature data: %s", err)
		return
	}

	temps, err := btsense.DecodeValues(req)
	if err != nil {
		f.logger.Warnf("discarding temperature data: %s", err)
		return
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.pendingTemps != nil {
		f.logger.Warnf("discarding %d temperature values without matching humidity data", len(f.pendingTemps))
	}
	f.pendingTemps = temps
	f.pendingReceived = time.Now()
}

func (f *Collector) receiveHumidityData(c *gatt.Characteristic, req []byte, err error) {
	if err != nil {
		f.logger.Warnf("failed to receive humidity data: %s", err)
		return
	}

	f.mutex.Lock()
	temps, received := f.pendingTemps, f.pendingReceived
	f.pendingTemps = nil
	f.mutex.Unlock()

	if temps == nil {
		f.logger.Warnf("discarding humidity data without matching temperature data")
		return
	}

	hums, err := btsense.DecodeValues(req)
	if err != nil {
		f.logger.Warnf("discarding humidity data: %s", err)
		return
	}

	readings, err := zipChunk(temps, hums, received)
	if err != nil {
		f.logger.Warnf("discarding chunk: %s", err)
		return
	}

	select {
	case f.readingsChan <- readings:
	default:
		f.logger.Warnf("readings channel full, dropping chunk of %d readings", len(readings))
	}
}

////////////////////////////////////////////////////////////////////////////////

func parseChunk(rawTemps, rawHums []byte, ts time.Time) (btsense.Readings, error) {
	temps, err := btsense.DecodeValues(rawTemps)
	if err != nil {
		return nil, err
	}
	hums, err := btsense.DecodeValues(rawHums)
	if err != nil {
		return nil, err
	}

	return zipChunk(temps, hums, ts)
}

func zipChunk(temps, hums []float64, ts time.Time) (btsense.Readings, error) {
	if len(temps) != len(hums) {
		return nil, fmt.Errorf("mismatching chunk lengths (temperature: %d, humidity: %d)", len(temps), len(hums))
	}

	res := make(btsense.Readings, len(temps))
	for i := range temps {
		res[i] = btsense.Reading{
			TimeStamp:   ts,
			Temperature: temps[i],
			Humidity:    hums[i],
		}
	}

	return res, nil
}

func uuidEqual(u gatt.UUID, s string) bool {
	return strings.EqualFold(u.String(), strings.ReplaceAll(s, "-", ""))
}
