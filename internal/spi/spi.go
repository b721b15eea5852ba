// Package spi provides the host side of the cartridge bus: a polled SPI
// transport, discrete GPIO pins and the lock that serialises access to
// both between independent owners.
package spi

import (
	"errors"
	"time"
)

// ErrHardwareInit is returned when the peripheral registers cannot be
// opened or mapped.
var ErrHardwareInit = errors.New("spi: hardware init failed")

// Well known lock keys of the owners sharing the bus.
const (
	KeyGBX   uint32 = 0xC42C4865
	KeyRadio uint32 = 0x7258AE90
)

// Transport is a synchronous full duplex byte exchange. None of the methods
// report errors: a transfer is assumed to complete, and correctness is
// established by the callers verifying what they read back.
type Transport interface {
	// Transfer sends buf and replaces its contents with the received bytes.
	Transfer(buf []byte)

	// ReadStart begins a long read by sending header and discarding what is
	// received, leaving the transfer active.
	ReadStart(header []byte)
	// ReadCont clocks out one zero byte of a long read and returns the byte
	// received.
	ReadCont() byte
	// ReadEnd sends trailer and ends the long read.
	ReadEnd(trailer []byte)
}

// Pin is a discrete strobe line. It must be drivable in the middle of a
// long read, so it cannot itself be routed over the SPI bus.
type Pin interface {
	SetOutput(output bool)
	Write(high bool)
	Read() bool
}

// ChipSelect is implemented by transports whose primary chip select can be
// parked idle while another owner holds the bus.
type ChipSelect interface {
	ForceIdle()
	Release()
}

// Spinner waits for a fixed duration without yielding to the scheduler.
type Spinner interface {
	Spin(d time.Duration)
}

// BusyWait spins on the monotonic clock.
type BusyWait struct{}

// Spin polls time.Since until d has elapsed.
func (BusyWait) Spin(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}
