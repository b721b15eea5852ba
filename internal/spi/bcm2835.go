//go:build linux

package spi

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	blockSize = 4 * 1024

	gpioOffset = 0x200000
	spi0Offset = 0x204000

	// GPIO register offsets, in bytes.
	gpfsel0 = 0x0000
	gpset0  = 0x001c
	gpclr0  = 0x0028
	gplev0  = 0x0034

	fselInput  = 0b000
	fselOutput = 0b001
	fselAlt0   = 0b100
	fselMask   = 0b111

	// SPI0 register offsets, in bytes.
	spiCS   = 0x0000
	spiFIFO = 0x0004
	spiCLK  = 0x0008

	csTXD   = 0x00040000
	csRXD   = 0x00020000
	csDONE  = 0x00010000
	csTA    = 0x00000080
	csCLEAR = 0x00000030

	coreClockHz = 400000000

	pinCE0  = 8
	pinMISO = 9
	pinMOSI = 10
	pinSCLK = 11
)

// Config describes the peripheral block of the host.
type Config struct {
	ClockHz        uint32
	PeripheralBase int64
}

// Controller drives the BCM2835 SPI0 block and GPIO registers mapped from
// /dev/mem. It is not safe for concurrent use; callers serialise through
// a Lock.
type Controller struct {
	f         *os.File
	gpioMem   []byte
	spiMem    []byte
	gpio, spi []uint32
}

// Open maps the GPIO and SPI0 register blocks, puts the SPI pins on their
// alternate function and programs the clock divider.
func Open(cfg Config) (*Controller, error) {
	if cfg.ClockHz == 0 {
		return nil, fmt.Errorf("%w: zero clock speed", ErrHardwareInit)
	}

	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open /dev/mem: %v", ErrHardwareInit, err)
	}

	c := &Controller{f: f}
	if c.gpioMem, err = mapBlock(f, cfg.PeripheralBase+gpioOffset); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: gpio mmap failed: %v", ErrHardwareInit, err)
	}
	if c.spiMem, err = mapBlock(f, cfg.PeripheralBase+spi0Offset); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: spi0 mmap failed: %v", ErrHardwareInit, err)
	}
	c.gpio = words(c.gpioMem)
	c.spi = words(c.spiMem)

	for _, pin := range []uint8{pinCE0, pinMISO, pinMOSI, pinSCLK} {
		c.fsel(pin, fselAlt0)
	}

	c.write(&c.spi[spiCS/4], 0)
	c.write(&c.spi[spiCLK/4], uint32(coreClockHz/cfg.ClockHz))
	c.writeNB(&c.spi[spiCS/4], csCLEAR)

	return c, nil
}

func mapBlock(f *os.File, offset int64) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), offset, blockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func words(b []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// Close returns the SPI pins to inputs and unmaps the registers.
func (c *Controller) Close() error {
	if c.gpio != nil {
		for _, pin := range []uint8{pinCE0, pinMISO, pinMOSI, pinSCLK} {
			c.fsel(pin, fselInput)
		}
	}
	if c.gpioMem != nil {
		_ = unix.Munmap(c.gpioMem)
		c.gpioMem, c.gpio = nil, nil
	}
	if c.spiMem != nil {
		_ = unix.Munmap(c.spiMem)
		c.spiMem, c.spi = nil, nil
	}
	if c.f != nil {
		err := c.f.Close()
		c.f = nil
		return err
	}
	return nil
}

// Transfer is a polled transfer: every byte waits for room in the TX FIFO
// and for its echo in the RX FIFO.
func (c *Controller) Transfer(buf []byte) {
	cs, fifo := &c.spi[spiCS/4], &c.spi[spiFIFO/4]

	c.setBits(cs, csCLEAR, csCLEAR)
	c.setBits(cs, csTA, csTA)

	for i := range buf {
		for c.read(cs)&csTXD == 0 {
		}
		c.writeNB(fifo, uint32(buf[i]))
		for c.read(cs)&csRXD == 0 {
		}
		buf[i] = byte(c.readNB(fifo))
	}

	for c.readNB(cs)&csDONE == 0 {
	}
	c.setBits(cs, 0, csTA)
}

func (c *Controller) ReadStart(header []byte) {
	cs := &c.spi[spiCS/4]
	c.setBits(cs, csCLEAR, csCLEAR)
	c.setBits(cs, csTA, csTA)
	c.exchange(header)
}

func (c *Controller) ReadCont() byte {
	cs, fifo := &c.spi[spiCS/4], &c.spi[spiFIFO/4]
	c.writeNB(fifo, 0)
	for c.read(cs)&csRXD == 0 {
	}
	return byte(c.readNB(fifo))
}

func (c *Controller) ReadEnd(trailer []byte) {
	c.exchange(trailer)
	c.setBits(&c.spi[spiCS/4], 0, csTA)
}

// exchange sends buf discarding the received bytes, and waits for DONE
// without dropping TA.
func (c *Controller) exchange(buf []byte) {
	cs, fifo := &c.spi[spiCS/4], &c.spi[spiFIFO/4]
	for _, b := range buf {
		for c.read(cs)&csTXD == 0 {
		}
		c.writeNB(fifo, uint32(b))
		for c.read(cs)&csRXD == 0 {
		}
		c.readNB(fifo)
	}
	for c.readNB(cs)&csDONE == 0 {
	}
}

// ForceIdle parks CE0 as a GPIO output driven high.
func (c *Controller) ForceIdle() {
	c.fsel(pinCE0, fselOutput)
	c.write(&c.gpio[gpset0/4], 1<<pinCE0)
}

// Release hands CE0 back to the SPI block.
func (c *Controller) Release() {
	c.fsel(pinCE0, fselAlt0)
}

// Pin returns host GPIO n.
func (c *Controller) Pin(n uint8) *GPIOPin {
	return &GPIOPin{c: c, n: n}
}

func (c *Controller) fsel(pin uint8, mode uint32) {
	shift := uint32(pin%10) * 3
	c.setBits(&c.gpio[gpfsel0/4+uint32(pin/10)], mode<<shift, fselMask<<shift)
}

// Every peripheral access is repeated; the first access after switching
// peripherals may return stale data.
func (c *Controller) write(reg *uint32, v uint32) {
	atomic.StoreUint32(reg, v)
	atomic.StoreUint32(reg, v)
}

func (c *Controller) writeNB(reg *uint32, v uint32) {
	atomic.StoreUint32(reg, v)
}

func (c *Controller) read(reg *uint32) uint32 {
	atomic.LoadUint32(reg)
	return atomic.LoadUint32(reg)
}

func (c *Controller) readNB(reg *uint32) uint32 {
	return atomic.LoadUint32(reg)
}

func (c *Controller) setBits(reg *uint32, value, mask uint32) {
	v := c.read(reg)
	c.write(reg, (v&^mask)|(value&mask))
}

// GPIOPin is a host GPIO line.
type GPIOPin struct {
	c *Controller
	n uint8
}

func (p *GPIOPin) SetOutput(output bool) {
	if output {
		p.c.fsel(p.n, fselOutput)
		return
	}
	p.c.fsel(p.n, fselInput)
}

func (p *GPIOPin) Write(high bool) {
	reg := gpclr0
	if high {
		reg = gpset0
	}
	p.c.write(&p.c.gpio[reg/4+int(p.n/32)], 1<<(p.n%32))
}

func (p *GPIOPin) Read() bool {
	return p.c.read(&p.c.gpio[gplev0/4+int(p.n/32)])&(1<<(p.n%32)) != 0
}
