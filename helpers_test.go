package btsense_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fako1024/btsense"
)

// measurement is one scripted sensor result
type measurement struct {
	temp, hum float64
	err       error
}

func valid(temp, hum float64) measurement {
	return measurement{temp: temp, hum: hum}
}

func sentinel() measurement {
	return measurement{temp: btsense.SentinelInvalid, hum: btsense.SentinelInvalid}
}

func fault() measurement {
	return measurement{err: fmt.Errorf("%w: ETIMEDOUT", btsense.ErrSensorFault)}
}

// scriptedSensor replays a fixed sequence of measurements, then repeats the last valid reading
type scriptedSensor struct {
	script    []measurement
	measures  int
	reinits   int
	reinitErr error

	mutex sync.Mutex
}

func (s *scriptedSensor) Measure(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.measures++
	if len(s.script) == 0 {
		return 20.0, 50.0, nil
	}
	m := s.script[0]
	s.script = s.script[1:]

	return m.temp, m.hum, m.err
}

func (s *scriptedSensor) measuresCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.measures
}

func (s *scriptedSensor) Reinitialize() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.reinits++
	return s.reinitErr
}

type sent struct {
	ch   btsense.Channel
	data []byte
}

// fakeTransport records all interactions with the radio
type fakeTransport struct {
	sends      []sent
	advertises int
	closes     int

	failSends    bool
	maxPayload   int
	advertiseErr error
	closeErr     error

	handler func(btsense.Event)
	mutex   sync.Mutex
}

func (f *fakeTransport) Advertise() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.advertises++
	return f.advertiseErr
}

func (f *fakeTransport) Send(ch btsense.Channel, data []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.sends = append(f.sends, sent{ch: ch, data: append([]byte(nil), data...)})
	if f.failSends {
		return btsense.ErrNoSubscriber
	}
	return nil
}

func (f *fakeTransport) MaxPayload() int {
	return f.maxPayload
}

func (f *fakeTransport) SetEventHandler(fn func(btsense.Event)) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.handler = fn
}

func (f *fakeTransport) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.closes++
	return f.closeErr
}

func (f *fakeTransport) raise(ev btsense.Event) {
	f.mutex.Lock()
	fn := f.handler
	f.mutex.Unlock()

	if fn != nil {
		fn(ev)
	}
}

func (f *fakeTransport) sentMessages() []sent {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]sent(nil), f.sends...)
}

func (f *fakeTransport) advertiseCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.advertises
}

// decodeAll concatenates the decoded payloads of one channel
func decodeAll(sends []sent, ch btsense.Channel) ([]float64, error) {
	var res []float64
	for _, s := range sends {
		if s.ch != ch {
			continue
		}
		values, err := btsense.DecodeValues(s.data)
		if err != nil {
			return nil, err
		}
		res = append(res, values...)
	}
	return res, nil
}

var errAdvertise = errors.New("advertising not permitted")
