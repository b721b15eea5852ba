// Package sim emulates the reader board: the two port expanders, the host
// read strobe, a virtual clock and whichever cartridge is inserted. It
// implements spi.Transport, spi.Pin and spi.Spinner so the protocol engines
// run against it unchanged.
package sim

import (
	"sync"
	"time"
)

// Control lines of port D shared by both pin maps.
const (
	lineCS   = 0x01 // GBA CS, GB CSRAM
	lineWR   = 0x04
	lineCS2  = 0x08 // GBA only
	lineDTSW = 0x40
	linePWR  = 0x80
)

// Bus is a snapshot of what the host drives onto the cartridge connector.
type Bus struct {
	Latch [4]byte
	Dir   [4]byte // set bit = expander input
	RD    bool    // host strobe level
}

// Out returns the bits of port p the host drives, inputs read as 0.
func (b Bus) Out(p int) byte {
	return b.Latch[p] &^ b.Dir[p]
}

// Powered reports whether the cartridge supply is switched on. PWR is
// active low and must be driven.
func (b Bus) Powered() bool {
	return b.Dir[3]&linePWR == 0 && b.Latch[3]&linePWR == 0
}

// High reports the level of a port D control line. An undriven line
// reads inactive (high).
func (b Bus) High(mask byte) bool {
	if b.Dir[3]&mask != 0 {
		return true
	}
	return b.Latch[3]&mask != 0
}

// Address16 is the 16-bit address on ports A and B.
func (b Bus) Address16() uint16 {
	return uint16(b.Out(0)) | uint16(b.Out(1))<<8
}

// Cartridge is an emulated cartridge.
type Cartridge interface {
	// Update is called whenever the bus changes.
	Update(prev, cur Bus, now time.Duration)
	// Drive returns the levels the cartridge puts on ports A-C and the
	// mask of bits it drives.
	Drive(cur Bus) (val, mask [3]byte)
	// PressesSwitch reports whether the cartridge shape holds the slot
	// detect switch closed.
	PressesSwitch() bool
}

// Board is a simulated reader. It is safe for use from several goroutines,
// though the protocol engines serialise through the bus lock anyway.
type Board struct {
	mu    sync.Mutex
	chips [2]*mcp
	cart  Cartridge

	rdOutput bool
	rdLevel  bool

	prev    Bus
	watches []func(prev, cur Bus)
	clock   time.Duration
	stream  *stream

	// byteTime is charged to the clock for every byte on the bus
	byteTime time.Duration

	transactions int
}

// NewBoard returns a board with an empty slot and both chips at reset.
func NewBoard() *Board {
	b := &Board{
		chips: [2]*mcp{newMCP(4), newMCP(1)},
	}
	b.prev = b.bus()
	return b
}

// Insert places c in the slot, replacing what was there.
func (b *Board) Insert(c Cartridge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cart = c
	b.prev = b.bus()
}

// Eject empties the slot.
func (b *Board) Eject() {
	b.Insert(nil)
}

// Watch registers fn to observe every change of the connector state.
func (b *Board) Watch(fn func(prev, cur Bus)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watches = append(b.watches, fn)
}

// Now returns the virtual time elapsed.
func (b *Board) Now() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock
}

// Spin advances the virtual clock.
func (b *Board) Spin(d time.Duration) {
	b.mu.Lock()
	b.clock += d
	b.mu.Unlock()
}

// SetClockHz makes every byte on the bus cost the time it takes at hz.
// The default of 0 leaves bus traffic free.
func (b *Board) SetClockHz(hz uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byteTime = 0
	if hz > 0 {
		b.byteTime = 8 * time.Second / time.Duration(hz)
	}
}

func (b *Board) charge(n int) {
	b.clock += time.Duration(n) * b.byteTime
}

// Bus returns the current connector state.
func (b *Board) Bus() Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bus()
}

// Transactions returns the number of SPI transactions issued, counting a
// long read once.
func (b *Board) Transactions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transactions
}

// Transfer executes one expander transaction.
func (b *Board) Transfer(buf []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transactions++
	b.charge(len(buf))
	if len(buf) < 2 {
		return
	}
	c := b.chip(buf[0])
	if c == nil {
		for i := range buf {
			buf[i] = 0
		}
		return
	}
	read := buf[0]&1 != 0
	reg := buf[1]
	buf[0], buf[1] = 0, 0
	for i := 2; i < len(buf); i++ {
		if read {
			buf[i] = b.readReg(c, reg)
		} else {
			c.write(reg, buf[i])
			b.update()
		}
		reg = c.next(reg)
	}
}

type stream struct {
	c   *mcp
	reg byte
}

func (b *Board) ReadStart(header []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transactions++
	b.charge(len(header))
	b.stream = nil
	if len(header) < 2 || header[0]&1 == 0 {
		return
	}
	if c := b.chip(header[0]); c != nil {
		b.stream = &stream{c: c, reg: header[1]}
	}
}

func (b *Board) ReadCont() byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.charge(1)
	if b.stream == nil {
		return 0
	}
	v := b.readReg(b.stream.c, b.stream.reg)
	b.stream.reg = b.stream.c.next(b.stream.reg)
	return v
}

func (b *Board) ReadEnd(trailer []byte) {
	b.mu.Lock()
	b.charge(len(trailer))
	b.stream = nil
	b.mu.Unlock()
}

// ForceIdle and Release satisfy spi.ChipSelect; the board has no second
// device on the bus.
func (b *Board) ForceIdle() {}
func (b *Board) Release()   {}

// RD returns the host read strobe.
func (b *Board) RD() *Pin {
	return &Pin{b: b}
}

// Pin is the simulated host GPIO wired to the cartridge RD line.
type Pin struct {
	b *Board
}

func (p *Pin) SetOutput(output bool) {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	p.b.rdOutput = output
	p.b.update()
}

func (p *Pin) Write(high bool) {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	p.b.rdLevel = high
	p.b.update()
}

func (p *Pin) Read() bool {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	return p.b.rdLevel
}

func (b *Board) chip(op byte) *mcp {
	if op&0xF0 != 0x40 {
		return nil
	}
	addr := (op >> 1) & 7
	for _, c := range b.chips {
		if c.addr == addr {
			return c
		}
	}
	return nil
}

func (b *Board) bus() Bus {
	var s Bus
	for i, c := range b.chips {
		s.Latch[2*i], s.Latch[2*i+1] = c.olat[0], c.olat[1]
		s.Dir[2*i], s.Dir[2*i+1] = c.iodir[0], c.iodir[1]
	}
	// an input strobe floats; the cartridge sees it inactive
	s.RD = b.rdLevel || !b.rdOutput
	return s
}

func (b *Board) update() {
	cur := b.bus()
	if cur == b.prev {
		return
	}
	if b.cart != nil {
		b.cart.Update(b.prev, cur, b.clock)
	}
	for _, fn := range b.watches {
		fn(b.prev, cur)
	}
	b.prev = cur
}

// readReg reads a register, resolving GPIO against what the cartridge
// drives.
func (b *Board) readReg(c *mcp, reg byte) byte {
	if reg&^1 != 0x12 {
		return c.read(reg)
	}
	half := int(reg & 1)
	port := 0
	if c == b.chips[1] {
		port = 2
	}
	port += half

	cur := b.bus()
	var val, mask byte
	if port < 3 && b.cart != nil {
		v, m := b.cart.Drive(cur)
		val, mask = v[port], m[port]
	}
	if port == 3 {
		mask = lineDTSW
		val = lineDTSW
		if b.cart != nil && b.cart.PressesSwitch() {
			val = 0
		} else if c.gppu[half]&lineDTSW == 0 {
			val = 0 // floating without the pull-up
		}
	}

	in := c.iodir[half]
	undriven := in &^ mask & c.gppu[half]
	return (c.olat[half] &^ in) | (val & mask & in) | undriven
}
