// Package expander drives the pair of MCP23S17 port expanders that carry
// the cartridge address, data and control lines. Chip A holds ports A and
// B, chip B holds ports C and D.
package expander

import (
	"fmt"

	"github.com/thelolagemann/cartreader/internal/spi"
)

// Port is one of the four 8-bit expander ports.
type Port uint8

const (
	PortA Port = iota
	PortB
	PortC
	PortD
)

func (p Port) String() string {
	if p > PortD {
		return fmt.Sprintf("Port(%d)", uint8(p))
	}
	return string(rune('A' + p))
}

// SPI opcodes (0100 AAA R) of the two chips.
const (
	chipAWrite = 0x48
	chipARead  = 0x49
	chipBWrite = 0x42
	chipBRead  = 0x43
)

// Register addresses with IOCON.BANK = 0; the B register of each pair is
// the A address + 1.
const (
	RegIODIR = 0x00
	RegIOCON = 0x0A
	RegGPPU  = 0x0C
	RegGPIO  = 0x12
	RegOLAT  = 0x14

	// ConfigSEQOP disables the address pointer increment, so consecutive
	// bytes of one transaction toggle between the A and B register of a
	// pair. ConfigHAEN enables the hardware address pins.
	ConfigSEQOP = 0x20
	ConfigHAEN  = 0x08
)

// Expander issues 3-byte transactions for a single port and 4-byte
// transactions for both ports of one chip. It keeps no copy of the port
// state: the chip registers are the only record of it.
type Expander struct {
	tr  spi.Transport
	buf [4]byte
}

// New returns an expander talking over tr. Init must be called before use.
func New(tr spi.Transport) *Expander {
	return &Expander{tr: tr}
}

// Init configures both chips and leaves every port an input with pull-ups
// disabled.
func (e *Expander) Init() {
	e.transfer(chipAWrite, RegIOCON, ConfigSEQOP|ConfigHAEN)
	e.transfer(chipBWrite, RegIOCON, ConfigSEQOP|ConfigHAEN)
	e.SetDirAll(0xFF, 0xFF, 0xFF, 0xFF)
	e.SetPullupAll(0x00, 0x00, 0x00, 0x00)
}

// SetDir sets the direction of a port; a set bit is an input.
func (e *Expander) SetDir(p Port, dir byte) {
	e.writeReg(p, RegIODIR, dir)
}

// SetDirAll sets the direction of all four ports.
func (e *Expander) SetDirAll(a, b, c, d byte) {
	e.transfer(chipAWrite, RegIODIR, a, b)
	e.transfer(chipBWrite, RegIODIR, c, d)
}

// SetPullup enables the 100k pull-ups of the set bits of a port.
func (e *Expander) SetPullup(p Port, v byte) {
	e.writeReg(p, RegGPPU, v)
}

// SetPullupAll sets the pull-ups of all four ports.
func (e *Expander) SetPullupAll(a, b, c, d byte) {
	e.transfer(chipAWrite, RegGPPU, a, b)
	e.transfer(chipBWrite, RegGPPU, c, d)
}

// Write sets the output latch of a port.
func (e *Expander) Write(p Port, v byte) {
	e.writeReg(p, RegGPIO, v)
}

// WriteAll sets the output latches of all four ports.
func (e *Expander) WriteAll(a, b, c, d byte) {
	e.transfer(chipAWrite, RegGPIO, a, b)
	e.transfer(chipBWrite, RegGPIO, c, d)
}

// WriteAB sets ports A and B in one transaction.
func (e *Expander) WriteAB(a, b byte) {
	e.transfer(chipAWrite, RegGPIO, a, b)
}

// WriteCD sets ports C and D in one transaction.
func (e *Expander) WriteCD(c, d byte) {
	e.transfer(chipBWrite, RegGPIO, c, d)
}

// Read returns the pin levels of a port.
func (e *Expander) Read(p Port) byte {
	return e.readReg(p, RegGPIO)
}

// Latch returns the output latch of a port.
func (e *Expander) Latch(p Port) byte {
	return e.readReg(p, RegOLAT)
}

// Dir returns the direction register of a port.
func (e *Expander) Dir(p Port) byte {
	return e.readReg(p, RegIODIR)
}

// StartReadAB begins a continuous read of ports A and B: the read header is
// sent once and every ReadAB clocks out the next pair.
func (e *Expander) StartReadAB() {
	e.buf[0], e.buf[1] = chipARead, RegGPIO
	e.tr.ReadStart(e.buf[:2])
}

// ReadAB returns the next A and B pin levels of a continuous read.
func (e *Expander) ReadAB() (a, b byte) {
	a = e.tr.ReadCont()
	b = e.tr.ReadCont()
	return a, b
}

// EndRead finishes a continuous read.
func (e *Expander) EndRead() {
	e.tr.ReadEnd(nil)
}

func chip(p Port) (write, read byte) {
	if p < PortC {
		return chipAWrite, chipARead
	}
	return chipBWrite, chipBRead
}

func (e *Expander) writeReg(p Port, reg, v byte) {
	write, _ := chip(p)
	e.transfer(write, reg+byte(p&1), v)
}

func (e *Expander) readReg(p Port, reg byte) byte {
	_, read := chip(p)
	e.buf[0], e.buf[1], e.buf[2] = read, reg+byte(p&1), 0
	e.tr.Transfer(e.buf[:3])
	return e.buf[2]
}

func (e *Expander) transfer(op, reg byte, data ...byte) {
	n := copy(e.buf[2:], data)
	e.buf[0], e.buf[1] = op, reg
	e.tr.Transfer(e.buf[:2+n])
}
