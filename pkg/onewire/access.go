package onewire

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Adapter is a Backend wrapped with exclusive-access arbitration and a
// discovery engine. Device drivers talk to the bus through it.
//
// Every transport method takes the caller's Holder. When the holder already
// owns the adapter (BeginExclusive) the call runs inside that session;
// otherwise the call acquires a session, blocking until the adapter is free,
// and releases it before returning.
type Adapter struct {
	backend Backend
	arb     *Arbiter
	freed   atomic.Bool

	mu     sync.Mutex // guards search and filter
	search SearchState
	filter SearchFilter
}

// NewAdapter wraps b.
func NewAdapter(b Backend) *Adapter {
	return &Adapter{backend: b, arb: NewArbiter()}
}

// Backend returns the wrapped backend.
func (a *Adapter) Backend() Backend { return a.backend }

// Info describes the adapter and the port it is bound to.
func (a *Adapter) Info() AdapterInfo {
	return AdapterInfo{
		Name:         a.backend.Name(),
		Port:         a.backend.PortName(),
		PortType:     a.backend.PortType(),
		Capabilities: a.backend.Capabilities(),
	}
}

// Name returns the adapter name.
func (a *Adapter) Name() string { return a.backend.Name() }

// PortName returns the selected port.
func (a *Adapter) PortName() string { return a.backend.PortName() }

// Capabilities returns the optional features of the backend.
func (a *Adapter) Capabilities() Capabilities { return a.backend.Capabilities() }

// BeginExclusive blocks until h owns the adapter or ctx ends. It returns at
// once if h already holds a valid session.
func (a *Adapter) BeginExclusive(ctx context.Context, h Holder) error {
	if h.IsZero() {
		return fmt.Errorf("%w: exclusive access needs a holder", ErrSetup)
	}
	_, err := a.arb.Acquire(ctx, h)
	return err
}

// TryBeginExclusive makes one attempt to own the adapter and fails with
// ErrBusy if another holder has it.
func (a *Adapter) TryBeginExclusive(h Holder) error {
	if h.IsZero() {
		return fmt.Errorf("%w: exclusive access needs a holder", ErrSetup)
	}
	_, err := a.arb.TryAcquire(h)
	return err
}

// EndExclusive releases h's session. Calling it without a session is a
// no-op.
func (a *Adapter) EndExclusive(h Holder) { a.arb.Release(h) }

// HoldsExclusive reports whether h owns the adapter.
func (a *Adapter) HoldsExclusive(h Holder) bool { return a.arb.Holds(h) }

// Free releases the port and ends any live session.
func (a *Adapter) Free() error {
	a.freed.Store(true)
	a.arb.Invalidate()
	if err := a.backend.FreePort(); err != nil {
		return ioError("free port", err)
	}
	return nil
}

// Freed reports whether Free has been called.
func (a *Adapter) Freed() bool { return a.freed.Load() }

// with runs fn inside h's session, acquiring a one-shot session when h does
// not already hold one.
func (a *Adapter) with(h Holder, fn func(b Backend) error) error {
	if h.IsZero() {
		h = NewHolder()
	} else if a.arb.Holds(h) {
		return fn(a.backend)
	}
	s, err := a.arb.Acquire(context.Background(), h)
	if err != nil {
		return err
	}
	defer s.Release()
	return fn(a.backend)
}

func resetBackend(b Backend) (ResetResult, error) {
	r, err := b.Reset()
	if err != nil {
		return r, ioError("reset", err)
	}
	if r == ResetShort {
		return r, ErrShort
	}
	return r, nil
}

func sendByte(b Backend, v byte) error {
	got, err := b.TouchByte(v)
	if err != nil {
		return ioError("send byte", err)
	}
	if got != v {
		return fmt.Errorf("%w: sent %02X, read back %02X", ErrEchoMismatch, v, got)
	}
	return nil
}

// Reset pulses the bus and reports what answered. A short is returned as
// ErrShort alongside ResetShort.
func (a *Adapter) Reset(h Holder) (ResetResult, error) {
	var r ResetResult
	err := a.with(h, func(b Backend) error {
		var err error
		r, err = resetBackend(b)
		return err
	})
	return r, err
}

// SendBit writes one bit and verifies the echo.
func (a *Adapter) SendBit(h Holder, bit bool) error {
	return a.with(h, func(b Backend) error {
		got, err := b.TouchBit(bit)
		if err != nil {
			return ioError("send bit", err)
		}
		if got != bit {
			return fmt.Errorf("%w: sent bit %t, read back %t", ErrEchoMismatch, bit, got)
		}
		return nil
	})
}

// ReadBit reads one bit.
func (a *Adapter) ReadBit(h Holder) (bool, error) {
	var bit bool
	err := a.with(h, func(b Backend) error {
		var err error
		bit, err = b.TouchBit(true)
		return ioError("read bit", err)
	})
	return bit, err
}

// SendByte writes one byte and verifies the echo.
func (a *Adapter) SendByte(h Holder, v byte) error {
	return a.with(h, func(b Backend) error { return sendByte(b, v) })
}

// ReadByte reads one byte.
func (a *Adapter) ReadByte(h Holder) (byte, error) {
	var v byte
	err := a.with(h, func(b Backend) error {
		var err error
		v, err = b.TouchByte(0xFF)
		return ioError("read byte", err)
	})
	return v, err
}

// ExchangeBlock exchanges buf[off:off+n] with the bus in place. Read
// positions must be set to 0xFF by the caller.
func (a *Adapter) ExchangeBlock(h Holder, buf []byte, off, n int) error {
	if off < 0 || n < 0 || off+n > len(buf) {
		return fmt.Errorf("%w: block [%d:%d] outside buffer of %d", ErrSetup, off, off+n, len(buf))
	}
	return a.with(h, func(b Backend) error {
		return ioError("exchange block", b.Block(buf[off:off+n]))
	})
}

// ReceiveBlock reads n bytes into a new buffer.
func (a *Adapter) ReceiveBlock(h Holder, n int) ([]byte, error) {
	buf := bytes.Repeat([]byte{0xFF}, n)
	if err := a.ExchangeBlock(h, buf, 0, n); err != nil {
		return nil, err
	}
	return buf, nil
}

// Speed returns the current bus speed.
func (a *Adapter) Speed(h Holder) (Speed, error) {
	var s Speed
	err := a.with(h, func(b Backend) error {
		s = b.Speed()
		return nil
	})
	return s, err
}

// SetSpeed changes the bus speed. Entering overdrive or hyperdrive leaves h
// holding the adapter until EndExclusive, because those timings cannot
// survive another flow taking the bus in between.
func (a *Adapter) SetSpeed(h Holder, s Speed) error {
	if s != SpeedOverdrive && s != SpeedHyperdrive {
		return a.with(h, func(b Backend) error { return ioError("set speed", b.SetSpeed(s)) })
	}
	if h.IsZero() {
		return fmt.Errorf("%w: %s speed needs a holder", ErrSetup, s)
	}
	held := a.arb.Holds(h)
	if !held {
		if _, err := a.arb.Acquire(context.Background(), h); err != nil {
			return err
		}
	}
	if err := a.backend.SetSpeed(s); err != nil {
		if !held {
			a.arb.Release(h)
		}
		return ioError("set speed", err)
	}
	return nil
}

// SetPowerLevel changes the pull-up state of the bus, either now or after
// the next bit or byte.
func (a *Adapter) SetPowerLevel(h Holder, level PowerLevel, cond PowerCondition) error {
	return a.with(h, func(b Backend) error {
		return ioError("set power level", b.SetPowerLevel(level, cond))
	})
}

// SetPowerNormal returns the bus to its normal pull-up.
func (a *Adapter) SetPowerNormal(h Holder) error {
	return a.SetPowerLevel(h, PowerNormal, PowerNow)
}

// StartPowerDelivery enables the strong pull-up.
func (a *Adapter) StartPowerDelivery(h Holder, cond PowerCondition) error {
	return a.SetPowerLevel(h, PowerStrongPullup, cond)
}

// StartProgramPulse issues the 12V EPROM programming pulse.
func (a *Adapter) StartProgramPulse(h Holder, cond PowerCondition) error {
	return a.SetPowerLevel(h, PowerProgram, cond)
}

// StartBreak holds the bus low.
func (a *Adapter) StartBreak(h Holder) error {
	return a.SetPowerLevel(h, PowerBreak, PowerNow)
}
