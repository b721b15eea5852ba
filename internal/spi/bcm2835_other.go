//go:build !linux

package spi

import "fmt"

// Config describes the peripheral block of the host.
type Config struct {
	ClockHz        uint32
	PeripheralBase int64
}

// Controller is only available on linux hosts.
type Controller struct{}

// Open always fails: the peripheral registers are mapped from /dev/mem.
func Open(cfg Config) (*Controller, error) {
	return nil, fmt.Errorf("%w: /dev/mem register mapping requires linux", ErrHardwareInit)
}

func (c *Controller) Close() error            { return nil }
func (c *Controller) Transfer(buf []byte)     {}
func (c *Controller) ReadStart(header []byte) {}
func (c *Controller) ReadCont() byte          { return 0 }
func (c *Controller) ReadEnd(trailer []byte)  {}
func (c *Controller) ForceIdle()              {}
func (c *Controller) Release()                {}

// Pin returns host GPIO n.
func (c *Controller) Pin(n uint8) *GPIOPin {
	return &GPIOPin{}
}

// GPIOPin is a host GPIO line.
type GPIOPin struct{}

func (p *GPIOPin) SetOutput(output bool) {}
func (p *GPIOPin) Write(high bool)       {}
func (p *GPIOPin) Read() bool            { return false }
